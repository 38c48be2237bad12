// Package server implements the read-only inspection server command.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/wuxler/stowage/pkg/cmdhelper"
	"github.com/wuxler/stowage/pkg/commands/internal/options"
	"github.com/wuxler/stowage/pkg/stow"
	"github.com/wuxler/stowage/pkg/stow/storages/cached"
	"github.com/wuxler/stowage/pkg/xlog"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// New creates a new Command.
func New(global *options.GlobalOptions, store *options.StoreOptions) *Command {
	return &Command{
		Global:        global,
		Store:         store,
		ServerOptions: options.NewServerOptions(),
	}
}

// Command is a command to start the inspection server.
type Command struct {
	Global        *options.GlobalOptions
	Store         *options.StoreOptions
	ServerOptions *options.ServerOptions
}

// ToCLI transforms to a *cli.Command.
func (c *Command) ToCLI() *cli.Command {
	return &cli.Command{
		Name:    "server",
		Aliases: []string{"srv"},
		Usage:   "Serve the manifest records and payloads over a read-only HTTP API",
		UsageText: `stowage server [OPTIONS]

# Serve on the default loopback address
$ stowage server

# Expose the API on all interfaces
$ stowage server --host 0.0.0.0 --port 9000
`,
		Flags:  c.Flags(),
		Before: cli.BeforeFunc(cmdhelper.NoArgs()),
		Action: c.Run,
	}
}

// Flags defines the flags related to the current command.
func (c *Command) Flags() []cli.Flag {
	flags := []cli.Flag{}
	flags = append(flags, c.ServerOptions.Flags()...)
	return flags
}

// Run is the main function for the current command
func (c *Command) Run(ctx context.Context, cmd *cli.Command) error {
	if err := c.Store.Complete(c.Global.Config()); err != nil {
		return err
	}
	c.ServerOptions.Complete(c.Global.Config())

	records, err := c.Store.OpenRecordStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = records.Close() }()

	// Reads dominate on the inspection endpoints, front every driver with
	// the read-through cache.
	registry, err := c.Store.NewRegistry(ctx, records, func(s stow.Storage) stow.Storage {
		return cached.New(s)
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              c.ServerOptions.Address(),
		Handler:           NewRouter(records, registry),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe()
	}()

	xlog.C(ctx).Infof("serving inspection API on http://%s", srv.Addr)
	cmdhelper.Fprintf(cmd.Writer, "Serving on http://%s, interrupt to stop\n", srv.Addr)

	select {
	case err := <-serveErr:
		// ListenAndServe never returns nil, a bind failure lands here.
		return err
	case <-ctx.Done():
	}

	// The main entrypoint cancels ctx on SIGINT and SIGTERM, drain in-flight
	// requests before giving up.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}
	if err := <-serveErr; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	xlog.C(ctx).Info("server stopped")
	return nil
}
