// Package commands assembles the command tree of the application.
package commands

import (
	"github.com/urfave/cli/v3"

	"github.com/wuxler/stowage/pkg/commands/content"
	"github.com/wuxler/stowage/pkg/commands/db"
	"github.com/wuxler/stowage/pkg/commands/internal/options"
	"github.com/wuxler/stowage/pkg/commands/manifest"
	"github.com/wuxler/stowage/pkg/commands/server"
)

// New assembles the root command with every subcommand attached. The
// global and store flags are persistent, subcommands see the same option
// values the root parsed.
func New(appName string) *cli.Command {
	global := options.NewGlobalOptions()
	store := options.NewStoreOptions()

	flags := []cli.Flag{}
	flags = append(flags, global.Flags()...)
	flags = append(flags, store.Flags()...)

	return &cli.Command{
		Name:                  appName,
		Usage:                 "Stowage saves objects as content-addressed payloads with manifest records",
		Suggest:               true,
		EnableShellCompletion: true,
		HideVersion:           true,
		Flags:                 flags,
		Before:                cli.BeforeFunc(global.Setup),
		Commands: []*cli.Command{
			NewVersionCommand().ToCLI(),
			db.New(global, store).ToCLI(),
			manifest.New(global, store).ToCLI(),
			content.New(global, store).ToCLI(),
			server.New(global, store).ToCLI(),
		},
	}
}
