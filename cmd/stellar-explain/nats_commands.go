package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	natspkg "github.com/brojonat/stellar-explain/service/nats"
	"github.com/itchyny/gojq"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/urfave/cli/v2"
)

// subscribeCommand streams explanation events from JetStream.
func subscribeCommand() *cli.Command {
	return &cli.Command{
		Name:      "subscribe",
		Usage:     "Follow explanation events",
		ArgsUsage: "[tx_hash]",
		Description: `Stream explanation events published to NATS JetStream the first time a
transaction is explained. Events are published to explanations.tx.{hash}.

Example:
  stellar-explain nats subscribe --account GA5ZSEJYB37JRC5AVCIA5MOP4RHTM335X2KGX3IHOJAPP5RE34K4KZVN --json`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "account",
				Aliases: []string{"a"},
				Usage:   "Only show events with a payment to or from this account",
			},
			&cli.StringFlag{
				Name:  "jq",
				Usage: "jq filter applied to each event",
			},
			&cli.BoolFlag{
				Name:    "durable",
				Aliases: []string{"d"},
				Usage:   "Create a durable consumer (survives restarts)",
			},
			&cli.StringFlag{
				Name:  "consumer-name",
				Usage: "Consumer name (required for durable)",
				Value: "stellar-explain-cli",
			},
			&cli.BoolFlag{
				Name:  "new-only",
				Usage: "Skip events already in the stream",
			},
		},
		Action: func(c *cli.Context) error {
			subject := natspkg.StreamSubjects
			if c.NArg() > 0 {
				subject = natspkg.SubjectPrefix + c.Args().Get(0)
			}

			var code *gojq.Code
			if filter := c.String("jq"); filter != "" {
				var err error
				if code, err = compileJQ(filter); err != nil {
					return err
				}
			}

			consumerConfig := jetstream.ConsumerConfig{
				FilterSubject: subject,
				AckPolicy:     jetstream.AckExplicitPolicy,
			}
			if c.Bool("new-only") {
				consumerConfig.DeliverPolicy = jetstream.DeliverNewPolicy
			}
			if c.Bool("durable") {
				consumerConfig.Durable = c.String("consumer-name")
				consumerConfig.Name = c.String("consumer-name")
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			return streamExplanations(ctx, c, consumerConfig, c.String("account"), code)
		},
	}
}

// streamExplanations connects to NATS and prints events until ctx is done.
func streamExplanations(ctx context.Context, c *cli.Context, consumerConfig jetstream.ConsumerConfig, account string, code *gojq.Code) error {
	natsURL := c.String("nats-url")
	jsonOutput := c.Bool("json")
	out := c.App.Writer

	nc, err := nats.Connect(natsURL)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	cons, err := js.CreateOrUpdateConsumer(ctx, natspkg.StreamName, consumerConfig)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	if !jsonOutput && code == nil {
		fmt.Fprintf(c.App.ErrWriter, "📡 Subscribing to: %s\n", consumerConfig.FilterSubject)
		fmt.Fprintf(c.App.ErrWriter, "   NATS: %s\n", natsURL)
		fmt.Fprintf(c.App.ErrWriter, "\nWaiting for explanations... (Ctrl-C to exit)\n\n")
	}

	msgChan := make(chan jetstream.Msg, 10)
	consumeCtx, err := cons.Consume(func(msg jetstream.Msg) {
		msgChan <- msg
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	defer consumeCtx.Stop()

	count := 0
	for {
		select {
		case msg := <-msgChan:
			var event natspkg.ExplanationEvent
			if err := json.Unmarshal(msg.Data(), &event); err != nil {
				fmt.Fprintf(c.App.ErrWriter, "Error parsing event: %v\n", err)
				msg.Ack()
				continue
			}
			msg.Ack()

			if !matchesAccount(&event, account) {
				continue
			}
			count++

			if err := printEvent(out, &event, count, jsonOutput, code); err != nil {
				return err
			}

		case <-ctx.Done():
			if !jsonOutput && code == nil {
				fmt.Fprintf(c.App.ErrWriter, "\n✅ Received %d explanations\n", count)
			}
			return nil
		}
	}
}

// matchesAccount reports whether event involves account. An empty account
// matches everything.
func matchesAccount(event *natspkg.ExplanationEvent, account string) bool {
	return account == "" || slices.Contains(event.Accounts, account)
}

func printEvent(w io.Writer, event *natspkg.ExplanationEvent, n int, jsonOutput bool, code *gojq.Code) error {
	if code != nil {
		data, err := json.Marshal(event)
		if err != nil {
			return err
		}
		return runJQ(w, code, data)
	}

	if jsonOutput {
		data, err := json.Marshal(event)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(data))
		return nil
	}

	fmt.Fprintf(w, "─────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "Explanation #%d\n", n)
	fmt.Fprintf(w, "─────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "Hash:       %s\n", event.TransactionHash)
	fmt.Fprintf(w, "Summary:    %s\n", event.Summary)
	fmt.Fprintf(w, "Successful: %t\n", event.Successful)
	fmt.Fprintf(w, "Payments:   %d\n", event.PaymentCount)
	if event.Ledger != 0 {
		fmt.Fprintf(w, "Ledger:     %d\n", event.Ledger)
	}
	if len(event.Accounts) > 0 {
		fmt.Fprintf(w, "Accounts:   %v\n", event.Accounts)
	}
	fmt.Fprintf(w, "Published:  %s\n\n", event.PublishedAt.Format(time.RFC3339))
	return nil
}

// inspectStreamCommand shows information about the explanations stream.
func inspectStreamCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect-stream",
		Usage: "Inspect the EXPLANATIONS JetStream stream",
		Action: func(c *cli.Context) error {
			nc, err := nats.Connect(c.String("nats-url"))
			if err != nil {
				return fmt.Errorf("failed to connect to NATS: %w", err)
			}
			defer nc.Close()

			js, err := jetstream.New(nc)
			if err != nil {
				return fmt.Errorf("failed to create JetStream context: %w", err)
			}

			stream, err := js.Stream(c.Context, natspkg.StreamName)
			if err != nil {
				return fmt.Errorf("failed to get stream: %w", err)
			}

			info, err := stream.Info(c.Context)
			if err != nil {
				return fmt.Errorf("failed to get stream info: %w", err)
			}

			if c.Bool("json") {
				return writeJSON(c.App.Writer, info)
			}

			w := c.App.Writer
			fmt.Fprintf(w, "Stream: %s\n", info.Config.Name)
			fmt.Fprintf(w, "─────────────────────────────────────────────────────\n")
			fmt.Fprintf(w, "Description:  %s\n", info.Config.Description)
			fmt.Fprintf(w, "Subjects:     %v\n", info.Config.Subjects)
			fmt.Fprintf(w, "Messages:     %d\n", info.State.Msgs)
			fmt.Fprintf(w, "Bytes:        %d\n", info.State.Bytes)
			fmt.Fprintf(w, "First Seq:    %d\n", info.State.FirstSeq)
			fmt.Fprintf(w, "Last Seq:     %d\n", info.State.LastSeq)
			fmt.Fprintf(w, "Consumers:    %d\n", info.State.Consumers)
			fmt.Fprintf(w, "Max Age:      %s\n", info.Config.MaxAge)
			fmt.Fprintf(w, "Duplicates:   %s\n", info.Config.Duplicates)
			return nil
		},
	}
}
