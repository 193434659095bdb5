package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "stellar-explain",
		Usage: "Explain Stellar transactions and accounts in plain English",
		Description: `A command-line tool for the stellar-explain service.

Use this CLI to query the explanation API, inspect the archive, follow
explanation events and manage Temporal archive runs.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			// HTTP API commands
			txCommand(),
			rawCommand(),
			accountCommand(),
			accountTransactionsCommand(),
			{
				Name:  "db",
				Usage: "Explanation archive commands",
				Subcommands: []*cli.Command{
					listExplanationsCommand(),
					getExplanationCommand(),
					countExplanationsCommand(),
					deleteExplanationCommand(),
					migrateCommand(),
				},
			},
			{
				Name:  "temporal",
				Usage: "Temporal archive workflow commands",
				Subcommands: []*cli.Command{
					archiveCommand(),
					scheduleCommand(),
					unscheduleCommand(),
				},
			},
			{
				Name:  "nats",
				Usage: "NATS explanation event commands",
				Subcommands: []*cli.Command{
					subscribeCommand(),
					inspectStreamCommand(),
				},
			},
			{
				Name:  "server",
				Usage: "Server utility commands",
				Subcommands: []*cli.Command{
					healthCommand(),
					versionCommand(),
				},
			},
		},
		// Global flags available to all commands
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server-url",
				Usage:   "stellar-explain server URL",
				EnvVars: []string{"STELLAR_EXPLAIN_URL", "SERVER_URL"},
				Value:   "http://localhost:8080",
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL",
				EnvVars: []string{"DATABASE_URL"},
			},
			&cli.StringFlag{
				Name:    "network",
				Usage:   "Stellar network the archive is scoped to (public, testnet)",
				EnvVars: []string{"STELLAR_NETWORK"},
				Value:   "public",
			},
			&cli.StringFlag{
				Name:    "temporal-host",
				Usage:   "Temporal server address",
				EnvVars: []string{"TEMPORAL_HOST"},
				Value:   "localhost:7233",
			},
			&cli.StringFlag{
				Name:    "temporal-namespace",
				Usage:   "Temporal namespace",
				EnvVars: []string{"TEMPORAL_NAMESPACE"},
				Value:   "default",
			},
			&cli.StringFlag{
				Name:    "temporal-task-queue",
				Usage:   "Temporal task queue of the archive worker",
				EnvVars: []string{"TEMPORAL_TASK_QUEUE"},
				Value:   "stellar-explain-archive",
			},
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "NATS server URL",
				EnvVars: []string{"NATS_URL"},
				Value:   "nats://localhost:4222",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
		},
	}
}
