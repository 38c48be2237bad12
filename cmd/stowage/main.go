// Package main is the entry of the application.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/wuxler/stowage/pkg/cmdhelper"
	"github.com/wuxler/stowage/pkg/commands"
)

const (
	appName = "stowage"
)

func main() {
	app := commands.New(appName)
	app.ExitErrHandler = func(ctx context.Context, c *cli.Command, err error) {
		cli.HandleExitCoder(err)
		cmdhelper.Fprintf(c.ErrWriter, "Error: %+v\n", err)
		os.Exit(1)
	}

	// Ctrl+C cancels the context so long-running commands shut down
	// gracefully.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	//nolint:errcheck // already checked in root command ExitErrHandler
	_ = app.Run(ctx, os.Args)
}
