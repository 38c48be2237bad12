package commands

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/wuxler/stowage/pkg/appinfo"
	"github.com/wuxler/stowage/pkg/cmdhelper"
)

// NewVersionCommand returns the version command.
func NewVersionCommand() *VersionCommand {
	return &VersionCommand{Format: "text"}
}

// VersionCommand prints the build metadata of the binary.
type VersionCommand struct {
	Short  bool
	Format string
}

// ToCLI transforms to a *cli.Command.
func (c *VersionCommand) ToCLI() *cli.Command {
	return &cli.Command{
		Name:   "version",
		Usage:  "Show version",
		Flags:  c.Flags(),
		Before: cli.BeforeFunc(cmdhelper.NoArgs()),
		Action: c.Run,
	}
}

// Run is the main function for the current command
func (c *VersionCommand) Run(_ context.Context, cmd *cli.Command) error {
	return appinfo.GetVersion().Write(cmd.Writer, appinfo.WriteOptions{
		AppName: cmd.Root().Name,
		Format:  c.Format,
		Short:   c.Short,
	})
}

// Flags returns a list of cli flags of the commands.
func (c *VersionCommand) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:        "short",
			Aliases:     []string{"s"},
			Usage:       "print the one-line form only",
			Value:       c.Short,
			Destination: &c.Short,
		},
		&cli.StringFlag{
			Name:        "format",
			Aliases:     []string{"f"},
			Usage:       `output format, one of "text", "json" or "yaml"`,
			Value:       c.Format,
			Destination: &c.Format,
		},
	}
}
