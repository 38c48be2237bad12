// Package db implements the database management commands.
package db

import (
	"context"
	"errors"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/urfave/cli/v3"

	"github.com/wuxler/stowage/pkg/cmdhelper"
	"github.com/wuxler/stowage/pkg/commands/internal/options"
	"github.com/wuxler/stowage/pkg/stow/storages/dbstore"
	"github.com/wuxler/stowage/pkg/xlog"
)

// New creates a new Command.
func New(global *options.GlobalOptions, store *options.StoreOptions) *Command {
	return &Command{Global: global, Store: store}
}

// Command is a command group for database management and retains the
// common options for subcommands.
type Command struct {
	Global *options.GlobalOptions
	Store  *options.StoreOptions
}

// ToCLI transforms to a *cli.Command.
func (c *Command) ToCLI() *cli.Command {
	return &cli.Command{
		Name:  "db",
		Usage: "Manage the manifest database",
		Commands: []*cli.Command{
			NewInitCommand(c).ToCLI(),
			NewResetCommand(c).ToCLI(),
		},
	}
}

// NewInitCommand returns an init command with default values.
func NewInitCommand(parent *Command) *InitCommand {
	return &InitCommand{parent: parent}
}

// InitCommand creates the database schema and the payload storage layout.
type InitCommand struct {
	parent *Command
}

// ToCLI transforms to a *cli.Command.
func (c *InitCommand) ToCLI() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Create the database schema and the payload storage layout",
		UsageText: `stowage db init [OPTIONS]

# Initialize with the default locations under ~/.stowage
$ stowage db init

# Initialize a database at a custom path
$ stowage db init --db /srv/stowage/stowage.db
`,
		Before: cli.BeforeFunc(cmdhelper.NoArgs()),
		Action: c.Run,
	}
}

// Run is the main function for the current command
func (c *InitCommand) Run(ctx context.Context, cmd *cli.Command) error {
	if err := c.parent.Store.Complete(c.parent.Global.Config()); err != nil {
		return err
	}

	records, err := c.parent.Store.OpenRecordStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = records.Close() }()

	if _, err := c.parent.Store.NewRegistry(ctx, records); err != nil {
		return err
	}

	cmdhelper.Fprintf(cmd.Writer, "Database ready at %s", c.parent.Store.DatabasePath)
	cmdhelper.Fprintf(cmd.Writer, "Payload storage ready at %s", c.parent.Store.StorageRoot)
	return nil
}

// NewResetCommand returns a reset command with default values.
func NewResetCommand(parent *Command) *ResetCommand {
	return &ResetCommand{parent: parent}
}

// ResetCommand drops every record and recreates an empty schema.
type ResetCommand struct {
	parent *Command

	Force bool
}

// ToCLI transforms to a *cli.Command.
func (c *ResetCommand) ToCLI() *cli.Command {
	return &cli.Command{
		Name:  "reset",
		Usage: "Drop all manifests and payloads and recreate an empty schema",
		UsageText: `stowage db reset [OPTIONS]

# Reset the database after an interactive confirmation
$ stowage db reset

# Reset the database without prompting
$ stowage db reset --force
`,
		Flags:  c.Flags(),
		Before: cli.BeforeFunc(cmdhelper.NoArgs()),
		Action: c.Run,
	}
}

// Flags defines the flags related to the current command.
func (c *ResetCommand) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:        "force",
			Aliases:     []string{"f"},
			Usage:       "force to run, ignore the confirmation prompt",
			Destination: &c.Force,
			Value:       c.Force,
		},
	}
}

// Run is the main function for the current command
func (c *ResetCommand) Run(ctx context.Context, cmd *cli.Command) error {
	if err := c.parent.Store.Complete(c.parent.Global.Config()); err != nil {
		return err
	}

	confirmed := true
	if !c.Force {
		prompt := &promptui.Prompt{
			Label:     "Are you sure to reset the database, all manifests will be lost",
			Default:   "N",
			IsConfirm: true,
		}
		userInput, err := prompt.Run()
		if err != nil {
			if errors.Is(err, promptui.ErrAbort) {
				return nil
			}
			return err
		}
		confirmed = strings.EqualFold(userInput, "y")
	}
	if !confirmed {
		return nil
	}

	records, err := c.parent.Store.OpenRecordStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = records.Close() }()

	if err := records.DropAll(ctx); err != nil {
		return err
	}
	blobs := dbstore.New(records.DB())
	if err := blobs.DropAll(ctx); err != nil {
		return err
	}

	if err := records.CreateAll(ctx); err != nil {
		return err
	}
	if err := blobs.CreateAll(ctx); err != nil {
		return err
	}

	xlog.C(ctx).Infof("database reset at %s", c.parent.Store.DatabasePath)
	cmdhelper.Fprintf(cmd.Writer, "Reset %s, payload files under %s are kept",
		c.parent.Store.DatabasePath, c.parent.Store.StorageRoot)
	return nil
}
