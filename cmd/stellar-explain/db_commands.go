package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/brojonat/stellar-explain/service/db"
	"github.com/brojonat/stellar-explain/service/explain"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"
)

// archive is the part of *db.Store the db commands use.
type archive interface {
	GetTransactionExplanation(ctx context.Context, hash string) (*explain.TransactionExplanation, error)
	ListRecent(ctx context.Context, limit int) ([]*db.ExplanationRecord, error)
	ListByAccount(ctx context.Context, address string, limit int) ([]*db.ExplanationRecord, error)
	CountExplanations(ctx context.Context) (int64, error)
	DeleteTransactionExplanation(ctx context.Context, hash string) error
}

// openArchive connects to the archive named by the global flags. Tests
// replace it to point at a throwaway database.
var openArchive = func(c *cli.Context) (archive, func(), error) {
	dbURL := c.String("database-url")
	if dbURL == "" {
		return nil, nil, fmt.Errorf("database-url is required (set DATABASE_URL env var or use --database-url)")
	}

	pool, err := pgxpool.New(c.Context, dbURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(c.Context); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db.NewStore(pool, c.String("network"), nil), pool.Close, nil
}

func listExplanationsCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Usage:   "List archived explanations, most recently archived first",
		Aliases: []string{"ls"},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "account",
				Aliases: []string{"a"},
				Usage:   "Only explanations with a payment to or from this account",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Limit number of explanations",
				Value:   50,
			},
		},
		Action: func(c *cli.Context) error {
			store, closer, err := openArchive(c)
			if err != nil {
				return err
			}
			defer closer()

			var records []*db.ExplanationRecord
			if account := c.String("account"); account != "" {
				records, err = store.ListByAccount(c.Context, account, c.Int("limit"))
			} else {
				records, err = store.ListRecent(c.Context, c.Int("limit"))
			}
			if err != nil {
				return fmt.Errorf("failed to list explanations: %w", err)
			}

			if c.Bool("json") {
				return writeJSON(c.App.Writer, records)
			}

			w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "HASH\tLEDGER\tOK\tARCHIVED\tSUMMARY")
			for _, r := range records {
				summary := ""
				if r.Explanation != nil {
					summary = r.Explanation.Summary
				}
				fmt.Fprintf(w, "%s\t%d\t%t\t%s\t%s\n",
					r.Hash,
					r.Ledger,
					r.Successful,
					r.ArchivedAt.Format(time.RFC3339),
					summary,
				)
			}
			w.Flush()

			fmt.Fprintf(c.App.ErrWriter, "\nTotal: %d explanations\n", len(records))
			return nil
		},
	}
}

func getExplanationCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Show an archived explanation",
		ArgsUsage: "<tx_hash>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: transaction hash")
			}

			store, closer, err := openArchive(c)
			if err != nil {
				return err
			}
			defer closer()

			exp, err := store.GetTransactionExplanation(c.Context, c.Args().First())
			if err != nil {
				return fmt.Errorf("failed to get explanation: %w", err)
			}

			if c.Bool("json") {
				return writeJSON(c.App.Writer, exp)
			}
			printTransactionExplanation(c.App.Writer, exp)
			return nil
		},
	}
}

func countExplanationsCommand() *cli.Command {
	return &cli.Command{
		Name:  "count",
		Usage: "Count archived explanations",
		Action: func(c *cli.Context) error {
			store, closer, err := openArchive(c)
			if err != nil {
				return err
			}
			defer closer()

			n, err := store.CountExplanations(c.Context)
			if err != nil {
				return fmt.Errorf("failed to count explanations: %w", err)
			}

			if c.Bool("json") {
				return writeJSON(c.App.Writer, map[string]int64{"count": n})
			}
			fmt.Fprintln(c.App.Writer, n)
			return nil
		},
	}
}

func deleteExplanationCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete an archived explanation so the next request re-explains it",
		Aliases:   []string{"rm"},
		ArgsUsage: "<tx_hash>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: transaction hash")
			}
			hash := c.Args().First()

			store, closer, err := openArchive(c)
			if err != nil {
				return err
			}
			defer closer()

			if err := store.DeleteTransactionExplanation(c.Context, hash); err != nil {
				if errors.Is(err, db.ErrNotFound) {
					return fmt.Errorf("no archived explanation for %s", hash)
				}
				return fmt.Errorf("failed to delete explanation: %w", err)
			}

			fmt.Fprintf(c.App.Writer, "✓ Deleted %s\n", hash)
			return nil
		},
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply the archive schema migrations",
		Action: func(c *cli.Context) error {
			dbURL := c.String("database-url")
			if dbURL == "" {
				return fmt.Errorf("database-url is required (set DATABASE_URL env var or use --database-url)")
			}

			pool, err := pgxpool.New(c.Context, dbURL)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer pool.Close()

			if err := db.Migrate(c.Context, pool); err != nil {
				return err
			}

			fmt.Fprintln(c.App.Writer, "✓ Migrations applied")
			return nil
		},
	}
}
