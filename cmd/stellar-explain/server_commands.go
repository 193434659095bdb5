package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
)

func healthCommand() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "Check server health",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Request timeout",
				Value: 5 * time.Second,
			},
		},
		Action: func(c *cli.Context) error {
			serverURL := c.String("server-url")
			if serverURL == "" {
				return fmt.Errorf("server-url is required (set STELLAR_EXPLAIN_URL env var or use --server-url)")
			}

			ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
			defer cancel()

			health, err := newAPIClient(c).Health(ctx)
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}

			if c.Bool("json") {
				if err := writeJSON(c.App.Writer, health); err != nil {
					return err
				}
			}

			if !health.Healthy() {
				return fmt.Errorf("server is %s (horizon reachable: %t)", health.Status, health.HorizonReachable)
			}

			if !c.Bool("json") {
				fmt.Fprintf(c.App.Writer, "✓ Server is healthy\n")
				fmt.Fprintf(c.App.Writer, "  URL:     %s\n", serverURL)
				fmt.Fprintf(c.App.Writer, "  Network: %s\n", health.Network)
				fmt.Fprintf(c.App.Writer, "  Version: %s\n", health.Version)
			}
			return nil
		},
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show version information",
		Action: func(c *cli.Context) error {
			fmt.Fprintf(c.App.Writer, "stellar-explain CLI\n")
			fmt.Fprintf(c.App.Writer, "  Version: %s\n", version)
			fmt.Fprintf(c.App.Writer, "  Commit:  %s\n", commit)
			fmt.Fprintf(c.App.Writer, "  Built:   %s\n", date)
			return nil
		},
	}
}
