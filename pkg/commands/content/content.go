// Package content implements the content payload commands.
package content

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/wuxler/stowage/pkg/cmdhelper"
	"github.com/wuxler/stowage/pkg/commands/internal/options"
	"github.com/wuxler/stowage/pkg/errdefs"
	"github.com/wuxler/stowage/pkg/util/xio"
	"github.com/wuxler/stowage/pkg/xlog"
)

// New creates a new Command.
func New(global *options.GlobalOptions, store *options.StoreOptions) *Command {
	return &Command{Global: global, Store: store}
}

// Command is a command group for content payloads and retains the common
// options for subcommands.
type Command struct {
	Global *options.GlobalOptions
	Store  *options.StoreOptions
}

// ToCLI transforms to a *cli.Command.
func (c *Command) ToCLI() *cli.Command {
	return &cli.Command{
		Name:  "content",
		Usage: "Inspect the contents recorded for a manifest",
		Commands: []*cli.Command{
			NewListCommand(c).ToCLI(),
			NewCatCommand(c).ToCLI(),
		},
	}
}

// NewListCommand returns a list command with default values.
func NewListCommand(parent *Command) *ListCommand {
	return &ListCommand{parent: parent}
}

// ListCommand prints the content rows of a manifest in unpack order.
type ListCommand struct {
	parent *Command
}

// ToCLI transforms to a *cli.Command.
func (c *ListCommand) ToCLI() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List the contents of a manifest in unpack order",
		UsageText: `stowage content list MANIFEST_ID

# List the contents recorded for a manifest
$ stowage content list 06f4c701-88e5-4ba2-8e06-b9f12b8a95f4
`,
		ArgsUsage: "MANIFEST_ID",
		Before:    cli.BeforeFunc(cmdhelper.ExactArgs(1)),
		Action:    c.Run,
	}
}

// Run is the main function for the current command
func (c *ListCommand) Run(ctx context.Context, cmd *cli.Command) error {
	if err := c.parent.Store.Complete(c.parent.Global.Config()); err != nil {
		return err
	}

	id, err := parseManifestID(cmd.Args().First())
	if err != nil {
		return err
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

	table := cmdhelper.NewTableWriter(cmd.Writer, "KEY", "KIND", "TYPE", "ENCODING", "SIZE", "DIGEST")
	for _, content := range manifest.Contents {
		encoding := content.ContentEncoding
		if encoding == "" {
			encoding = "-"
		}
		table.AddRow(content.ContentKey, content.SerializerKind, content.ContentType,
			encoding, content.ContentSize, content.Digest().Digest)
	}
	return table.Flush()
}

// NewCatCommand returns a cat command with default values.
func NewCatCommand(parent *Command) *CatCommand {
	return &CatCommand{parent: parent}
}

// CatCommand streams the raw encoded payload of one content to stdout.
type CatCommand struct {
	parent *Command
}

// ToCLI transforms to a *cli.Command.
func (c *CatCommand) ToCLI() *cli.Command {
	return &cli.Command{
		Name:  "cat",
		Usage: "Print the raw payload bytes of a content",
		UsageText: `stowage content cat MANIFEST_ID KEY

# Write the payload recorded under the key "value" to stdout
$ stowage content cat 06f4c701-88e5-4ba2-8e06-b9f12b8a95f4 value

# Payloads are emitted exactly as stored, compressed ones stay compressed
$ stowage content cat 06f4c701-88e5-4ba2-8e06-b9f12b8a95f4 rows | gunzip
`,
		ArgsUsage: "MANIFEST_ID KEY",
		Before:    cli.BeforeFunc(cmdhelper.ExactArgs(2)),
		Action:    c.Run,
	}
}

// Run is the main function for the current command
func (c *CatCommand) Run(ctx context.Context, cmd *cli.Command) error {
	if err := c.parent.Store.Complete(c.parent.Global.Config()); err != nil {
		return err
	}

	id, err := parseManifestID(cmd.Args().First())
	if err != nil {
		return err
	}
	key := cmd.Args().Get(1)

	records, err := c.parent.Store.OpenRecordStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = records.Close() }()

	registry, err := c.parent.Store.NewRegistry(ctx, records)
	if err != nil {
		return err
	}

	manifest, err := records.GetManifest(ctx, id)
	if err != nil {
		return err
	}
	content, ok := manifest.Content(key)
	if !ok {
		return errdefs.Newf(errdefs.ErrNotFound, "content %q in manifest %s", key, id)
	}

	storage, err := registry.Storage(content.StorageName)
	if err != nil {
		return err
	}
	locator, err := storage.DecodeLocator(string(content.StorageConfig))
	if err != nil {
		return err
	}
	rc, err := storage.ReadDataStream(ctx, locator)
	if err != nil {
		return err
	}
	defer xio.CloseAndLogError(rc)

	measured := xio.NewMeasuredReader(rc)
	if _, err := io.Copy(cmd.Writer, measured); err != nil {
		return err
	}
	xlog.C(ctx).Debugf("read %d bytes of %s/%s at %.0f B/s",
		measured.Total(), id, key, measured.BytesPer(time.Second))
	return nil
}

func parseManifestID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errdefs.Newf(errdefs.ErrInvalidParameter, "invalid manifest id %q", raw)
	}
	return id, nil
}
