package main

import (
	"bytes"
	"testing"

	"github.com/urfave/cli/v2"
)

// runApp runs the CLI with args (without the program name) and returns what
// it wrote to stdout and stderr.
func runApp(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	app := newApp()
	app.Writer = &stdout
	app.ErrWriter = &stderr
	app.ExitErrHandler = func(*cli.Context, error) {}

	err := app.Run(append([]string{"stellar-explain"}, args...))
	return stdout.String(), stderr.String(), err
}
