// Package manifest implements the manifest inspection commands.
package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/wuxler/stowage/pkg/cmdhelper"
	"github.com/wuxler/stowage/pkg/commands/internal/options"
	"github.com/wuxler/stowage/pkg/errdefs"
	"github.com/wuxler/stowage/pkg/stow"
)

// New creates a new Command.
func New(global *options.GlobalOptions, store *options.StoreOptions) *Command {
	return &Command{Global: global, Store: store}
}

// Command is a command group for manifest inspection and retains the
// common options for subcommands.
type Command struct {
	Global *options.GlobalOptions
	Store  *options.StoreOptions
}

// ToCLI transforms to a *cli.Command.
func (c *Command) ToCLI() *cli.Command {
	return &cli.Command{
		Name:    "manifest",
		Aliases: []string{"mf"},
		Usage:   "Inspect manifests recorded in the database",
		Commands: []*cli.Command{
			NewListCommand(c).ToCLI(),
			NewShowCommand(c).ToCLI(),
		},
	}
}

// NewListCommand returns a list command with default values.
func NewListCommand(parent *Command) *ListCommand {
	return &ListCommand{parent: parent}
}

// ListCommand prints recorded manifests, newest first.
type ListCommand struct {
	parent *Command

	Tags  []string
	Class string
	Limit int64
}

// ToCLI transforms to a *cli.Command.
func (c *ListCommand) ToCLI() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List manifests, newest first",
		UsageText: `stowage manifest list [OPTIONS]

# List every manifest
$ stowage manifest list

# List manifests carrying all the given tags
$ stowage manifest list --tag env=prod --tag team=data

# List the five newest manifests of a class
$ stowage manifest list --class 9cfb8f86-87f3-4d55-9b1e-6da52b83c799 --limit 5
`,
		Flags:  c.Flags(),
		Before: cli.BeforeFunc(cmdhelper.NoArgs()),
		Action: c.Run,
	}
}

// Flags defines the flags related to the current command.
func (c *ListCommand) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{
			Name:        "tag",
			Aliases:     []string{"t"},
			Usage:       "filter by tag formatted as KEY=VALUE, repeatable",
			Destination: &c.Tags,
		},
		&cli.StringFlag{
			Name:        "class",
			Usage:       "filter by class id",
			Destination: &c.Class,
		},
		&cli.IntFlag{
			Name:        "limit",
			Aliases:     []string{"n"},
			Usage:       "maximum number of manifests to print",
			Destination: &c.Limit,
		},
	}
}

// Run is the main function for the current command
func (c *ListCommand) Run(ctx context.Context, cmd *cli.Command) error {
	if err := c.parent.Store.Complete(c.parent.Global.Config()); err != nil {
		return err
	}

	opts := []stow.ListOption{}
	tags, err := parseTagPairs(c.Tags)
	if err != nil {
		return err
	}
	if len(tags) > 0 {
		opts = append(opts, stow.WithTagFilter(tags))
	}
	if c.Class != "" {
		classID, err := uuid.Parse(c.Class)
		if err != nil {
			return errdefs.Newf(errdefs.ErrInvalidParameter, "invalid class id %q", c.Class)
		}
		opts = append(opts, stow.WithClassFilter(classID))
	}
	if c.Limit > 0 {
		opts = append(opts, stow.WithLimit(int(c.Limit)))
	}

	records, err := c.parent.Store.OpenRecordStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = records.Close() }()

	manifests, err := records.ListManifests(ctx, opts...)
	if err != nil {
		return err
	}
	table := cmdhelper.NewTableWriter(cmd.Writer, "ID", "CREATED", "UNPACKER", "TAGS")
	for _, m := range manifests {
		table.AddRow(m.ID, m.CreatedAt.Format(time.RFC3339), m.UnpackerName, formatTags(m.Tags))
	}
	return table.Flush()
}

// NewShowCommand returns a show command with default values.
func NewShowCommand(parent *Command) *ShowCommand {
	return &ShowCommand{
		parent: parent,
		Format: "json",
	}
}

// ShowCommand prints one manifest with its contents attached.
type ShowCommand struct {
	parent *Command

	Format string
}

// ToCLI transforms to a *cli.Command.
func (c *ShowCommand) ToCLI() *cli.Command {
	return &cli.Command{
		Name:    "show",
		Aliases: []string{"get", "inspect"},
		Usage:   "Show a manifest with its contents",
		UsageText: `stowage manifest show [OPTIONS] MANIFEST_ID

# Show a manifest as indented JSON
$ stowage manifest show 06f4c701-88e5-4ba2-8e06-b9f12b8a95f4

# Show a manifest as YAML
$ stowage manifest show --format yaml 06f4c701-88e5-4ba2-8e06-b9f12b8a95f4
`,
		ArgsUsage: "MANIFEST_ID",
		Flags:     c.Flags(),
		Before:    cli.BeforeFunc(cmdhelper.ExactArgs(1)),
		Action:    c.Run,
	}
}

// Flags defines the flags related to the current command.
func (c *ShowCommand) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "format",
			Aliases:     []string{"f"},
			Usage:       `output format, oneof ["json", "yaml"]`,
			Value:       c.Format,
			Destination: &c.Format,
		},
	}
}

// Run is the main function for the current command
func (c *ShowCommand) Run(ctx context.Context, cmd *cli.Command) error {
	if err := c.parent.Store.Complete(c.parent.Global.Config()); err != nil {
		return err
	}

	raw := cmd.Args().First()
	id, err := uuid.Parse(raw)
	if err != nil {
		return errdefs.Newf(errdefs.ErrInvalidParameter, "invalid manifest id %q", raw)
	}

	records, err := c.parent.Store.OpenRecordStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = records.Close() }()

	manifest, err := records.GetManifest(ctx, id)
	if err != nil {
		return err
	}

	switch c.Format {
	case "yaml", "yml":
		// Round-trip through JSON so ids and times render as strings.
		raw, err := json.Marshal(manifest)
		if err != nil {
			return err
		}
		doc := map[string]any{}
		if err := json.Unmarshal(raw, &doc); err != nil {
			return err
		}
		return yaml.NewEncoder(cmd.Writer).Encode(doc)
	case "json":
		content, err := cmdhelper.PrettifyJSON(manifest)
		if err != nil {
			return err
		}
		cmdhelper.Fprintf(cmd.Writer, string(content))
		return nil
	default:
		return fmt.Errorf("unknown format %q", c.Format)
	}
}

func parseTagPairs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	tags := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, errdefs.Newf(errdefs.ErrInvalidParameter, "tag filter %q is not formatted as KEY=VALUE", pair)
		}
		tags[key] = value
	}
	return tags, nil
}

func formatTags(tags map[string]string) string {
	if len(tags) == 0 {
		return "-"
	}
	keys := lo.Keys(tags)
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, key+"="+tags[key])
	}
	return strings.Join(pairs, ",")
}
