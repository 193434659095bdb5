package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"text/tabwriter"
	"time"

	"github.com/brojonat/stellar-explain/client"
	"github.com/brojonat/stellar-explain/service/explain"
	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"
)

// requestFlags are shared by every command that calls the HTTP API.
func requestFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "jq",
			Usage: "jq filter applied to the JSON response (string results print unquoted)",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Request timeout",
			Value: 30 * time.Second,
		},
	}
}

func txCommand() *cli.Command {
	return &cli.Command{
		Name:      "tx",
		Usage:     "Explain a transaction",
		ArgsUsage: "TX_HASH",
		Flags:     requestFlags(),
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("transaction hash is required")
			}
			hash := c.Args().Get(0)
			ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
			defer cancel()

			if wantsRaw(c) {
				return renderRaw(ctx, c, "/tx/"+url.PathEscape(hash), nil)
			}

			exp, err := newAPIClient(c).ExplainTransaction(ctx, hash)
			if err != nil {
				return err
			}
			printTransactionExplanation(c.App.Writer, exp)
			return nil
		},
	}
}

func rawCommand() *cli.Command {
	return &cli.Command{
		Name:      "raw",
		Usage:     "Show the normalized transaction an explanation is built from",
		ArgsUsage: "TX_HASH",
		Flags:     requestFlags(),
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("transaction hash is required")
			}
			ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
			defer cancel()

			// There is no friendlier rendering of the raw form than JSON.
			return renderRaw(ctx, c, "/tx/"+url.PathEscape(c.Args().Get(0))+"/raw", nil)
		},
	}
}

func accountCommand() *cli.Command {
	return &cli.Command{
		Name:      "account",
		Usage:     "Explain an account",
		ArgsUsage: "ACCOUNT_ADDRESS",
		Flags:     requestFlags(),
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("account address is required")
			}
			address := c.Args().Get(0)
			ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
			defer cancel()

			if wantsRaw(c) {
				return renderRaw(ctx, c, "/account/"+url.PathEscape(address), nil)
			}

			exp, err := newAPIClient(c).ExplainAccount(ctx, address)
			if err != nil {
				return err
			}

			w := c.App.Writer
			fmt.Fprintln(w, exp.Summary)
			fmt.Fprintf(w, "\nAddress:      %s\n", exp.Address)
			fmt.Fprintf(w, "XLM balance:  %s\n", exp.XLMBalance)
			fmt.Fprintf(w, "Other assets: %d\n", exp.AssetCount)
			fmt.Fprintf(w, "Signers:      %d\n", exp.SignerCount)
			if exp.HomeDomain != nil {
				fmt.Fprintf(w, "Home domain:  %s\n", *exp.HomeDomain)
			}
			if exp.OrgName != nil {
				fmt.Fprintf(w, "Organization: %s\n", *exp.OrgName)
			}
			for _, flag := range exp.FlagDescriptions {
				fmt.Fprintf(w, "  - %s\n", flag)
			}
			return nil
		},
	}
}

func accountTransactionsCommand() *cli.Command {
	flags := append(requestFlags(),
		&cli.IntFlag{
			Name:    "limit",
			Aliases: []string{"n"},
			Usage:   "Page size (1-50, server default when unset)",
		},
		&cli.StringFlag{
			Name:  "cursor",
			Usage: "Paging token from a previous page",
		},
		&cli.StringFlag{
			Name:  "order",
			Usage: "Sort order (asc, desc)",
		},
	)

	return &cli.Command{
		Name:      "account-txs",
		Aliases:   []string{"txs"},
		Usage:     "List an account's transactions with one-line summaries",
		ArgsUsage: "ACCOUNT_ADDRESS",
		Flags:     flags,
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("account address is required")
			}
			address := c.Args().Get(0)
			opts := client.PageOptions{
				Limit:  c.Int("limit"),
				Cursor: c.String("cursor"),
				Order:  c.String("order"),
			}
			ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
			defer cancel()

			if wantsRaw(c) {
				return renderRaw(ctx, c, "/account/"+url.PathEscape(address)+"/transactions", opts.Values())
			}

			page, err := newAPIClient(c).AccountTransactions(ctx, address, opts)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "HASH\tCREATED\tOK\tOPS\tSUMMARY")
			for _, item := range page.Items {
				fmt.Fprintf(w, "%s\t%s\t%t\t%d\t%s\n",
					item.Hash,
					item.CreatedAt,
					item.Successful,
					item.OperationCount,
					item.Summary,
				)
			}
			w.Flush()

			if page.NextCursor != "" {
				fmt.Fprintf(c.App.ErrWriter, "\nNext page: --cursor %s\n", page.NextCursor)
			}
			return nil
		},
	}
}

func printTransactionExplanation(w io.Writer, exp *explain.TransactionExplanation) {
	fmt.Fprintln(w, exp.Summary)
	fmt.Fprintf(w, "\nHash:       %s\n", exp.TransactionHash)
	fmt.Fprintf(w, "Successful: %t\n", exp.Successful)
	if exp.CreatedAt != "" {
		fmt.Fprintf(w, "Created:    %s\n", exp.CreatedAt)
	}
	if exp.Ledger != 0 {
		fmt.Fprintf(w, "Ledger:     %d\n", exp.Ledger)
	}
	if len(exp.PaymentExplanations) > 0 {
		fmt.Fprintln(w, "\nPayments:")
		for _, p := range exp.PaymentExplanations {
			fmt.Fprintf(w, "  - %s\n", p.Summary)
		}
	}
	if exp.SkippedOperations > 0 {
		fmt.Fprintf(w, "\nSkipped operations: %d\n", exp.SkippedOperations)
	}
	if exp.MemoExplanation != nil {
		fmt.Fprintf(w, "\nMemo: %s\n", *exp.MemoExplanation)
	}
	if exp.FeeExplanation != nil {
		fmt.Fprintf(w, "Fee:  %s\n", *exp.FeeExplanation)
	}
}

func newAPIClient(c *cli.Context) *client.Client {
	return client.NewClient(c.String("server-url"), nil, nil)
}

func wantsRaw(c *cli.Context) bool {
	return c.Bool("json") || c.String("jq") != ""
}

// renderRaw fetches path and prints the body, through the --jq filter when set.
func renderRaw(ctx context.Context, c *cli.Context, path string, query url.Values) error {
	filter := c.String("jq")

	// Compile first so a typo does not cost a request.
	var code *gojq.Code
	if filter != "" {
		var err error
		if code, err = compileJQ(filter); err != nil {
			return err
		}
	}

	body, err := newAPIClient(c).GetRaw(ctx, path, query)
	if err != nil {
		return err
	}

	if code == nil {
		var v any
		if err := json.Unmarshal(body, &v); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return writeJSON(c.App.Writer, v)
	}
	return runJQ(c.App.Writer, code, body)
}

func compileJQ(filter string) (*gojq.Code, error) {
	query, err := gojq.Parse(filter)
	if err != nil {
		return nil, fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
	}
	return code, nil
}

func runJQ(w io.Writer, code *gojq.Code, body []byte) error {
	var input any
	if err := json.Unmarshal(body, &input); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	iter := code.Run(input)
	for {
		v, ok := iter.Next()
		if !ok {
			return nil
		}
		if err, isErr := v.(error); isErr {
			return fmt.Errorf("jq filter failed: %w", err)
		}
		if s, isString := v.(string); isString {
			fmt.Fprintln(w, s)
			continue
		}
		if err := writeJSON(w, v); err != nil {
			return err
		}
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
