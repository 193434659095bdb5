package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/brojonat/stellar-explain/service/temporal"
	"github.com/urfave/cli/v2"
)

// archiveWaiter is implemented by schedulers that can block on a run.
type archiveWaiter interface {
	WaitArchive(ctx context.Context, workflowID string) (*temporal.ArchiveAccountResult, error)
}

// newScheduler connects to Temporal using the global flags. Tests replace it
// with a MockScheduler.
var newScheduler = func(c *cli.Context) (temporal.Scheduler, func(), error) {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cl, err := temporal.NewClient(
		c.String("temporal-host"),
		c.String("temporal-namespace"),
		c.String("temporal-task-queue"),
		logger,
	)
	if err != nil {
		return nil, nil, err
	}
	return cl, cl.Close, nil
}

func archiveCommand() *cli.Command {
	return &cli.Command{
		Name:      "archive",
		Usage:     "Explain and archive an account's recent transactions once",
		ArgsUsage: "<account_address>",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "How many recent transactions to consider (1-50)",
				Value:   10,
			},
			&cli.BoolFlag{
				Name:    "wait",
				Aliases: []string{"w"},
				Usage:   "Block until the run completes and print its result",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: account address")
			}
			address := c.Args().First()

			scheduler, closer, err := newScheduler(c)
			if err != nil {
				return err
			}
			defer closer()

			workflowID, err := scheduler.StartArchive(c.Context, address, c.Int("limit"))
			if err != nil {
				return err
			}

			if !c.Bool("wait") {
				if c.Bool("json") {
					return writeJSON(c.App.Writer, map[string]string{"workflow_id": workflowID})
				}
				fmt.Fprintf(c.App.Writer, "✓ Started %s\n", workflowID)
				return nil
			}

			waiter, ok := scheduler.(archiveWaiter)
			if !ok {
				return fmt.Errorf("scheduler cannot wait for workflow %s", workflowID)
			}
			result, err := waiter.WaitArchive(c.Context, workflowID)
			if err != nil {
				return err
			}

			if c.Bool("json") {
				return writeJSON(c.App.Writer, result)
			}
			w := c.App.Writer
			fmt.Fprintf(w, "Account:          %s\n", result.Address)
			fmt.Fprintf(w, "Listed:           %d\n", result.Listed)
			fmt.Fprintf(w, "Already archived: %d\n", result.AlreadyArchived)
			fmt.Fprintf(w, "Archived:         %d\n", result.Archived)
			fmt.Fprintf(w, "Published:        %d\n", result.Published)
			if len(result.Failed) > 0 {
				fmt.Fprintf(w, "Failed:           %v\n", result.Failed)
			}
			return nil
		},
	}
}

func scheduleCommand() *cli.Command {
	return &cli.Command{
		Name:      "schedule",
		Usage:     "Create or update a recurring archive run for an account",
		ArgsUsage: "<account_address>",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:    "interval",
				Aliases: []string{"i"},
				Usage:   "Time between runs",
				Value:   time.Hour,
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "How many recent transactions each run considers (1-50)",
				Value:   10,
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: account address")
			}
			address := c.Args().First()
			interval := c.Duration("interval")
			if interval < time.Minute {
				return fmt.Errorf("interval must be at least 1m, got %s", interval)
			}

			scheduler, closer, err := newScheduler(c)
			if err != nil {
				return err
			}
			defer closer()

			if err := scheduler.UpsertArchiveSchedule(c.Context, address, c.Int("limit"), interval); err != nil {
				return err
			}

			fmt.Fprintf(c.App.Writer, "✓ Archiving %s every %s\n", address, interval)
			return nil
		},
	}
}

func unscheduleCommand() *cli.Command {
	return &cli.Command{
		Name:      "unschedule",
		Usage:     "Delete the recurring archive run for an account",
		ArgsUsage: "<account_address>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: account address")
			}
			address := c.Args().First()

			scheduler, closer, err := newScheduler(c)
			if err != nil {
				return err
			}
			defer closer()

			if err := scheduler.DeleteArchiveSchedule(c.Context, address); err != nil {
				return err
			}

			fmt.Fprintf(c.App.Writer, "✓ Unscheduled %s\n", address)
			return nil
		},
	}
}
