package stowdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// schemaItems are the DDL statements making up the two-table schema, in
// creation order. Each statement is idempotent so a partially created schema
// heals on the next CreateAll.
var schemaItems = []struct {
	name    string
	command string
}{
	{"manifests", `
CREATE TABLE IF NOT EXISTS manifests (
	id            TEXT    PRIMARY KEY NOT NULL,
	tags          TEXT    NOT NULL,
	class_id      TEXT    NOT NULL,
	unpacker_name TEXT    NOT NULL,
	created_at    TEXT    NOT NULL
)`},
	{"manifests_index_created_at", `
CREATE INDEX IF NOT EXISTS manifests_index_created_at ON manifests (created_at)`},
	{"contents", `
CREATE TABLE IF NOT EXISTS contents (
	id                     TEXT    PRIMARY KEY NOT NULL,
	manifest_id            TEXT    NOT NULL REFERENCES manifests (id),
	content_key            TEXT    NOT NULL,
	content_type           TEXT    NOT NULL,
	content_encoding       TEXT,
	content_hash           TEXT    NOT NULL,
	content_hash_algorithm TEXT    NOT NULL,
	content_size           INTEGER NOT NULL,
	serializer_name        TEXT    NOT NULL,
	serializer_config      TEXT,
	serializer_kind        INTEGER NOT NULL,
	storage_name           TEXT    NOT NULL,
	storage_config         TEXT    NOT NULL,
	created_at             TEXT    NOT NULL,
	UNIQUE (manifest_id, content_key)
)`},
	{"contents_index_manifest_id", `
CREATE INDEX IF NOT EXISTS contents_index_manifest_id ON contents (manifest_id)`},
}

// CreateAll brings the schema into being. It is idempotent and cheap when
// the schema already exists.
func (s *Store) CreateAll(ctx context.Context) error {
	return s.transact(ctx, func(tx *sql.Tx) error {
		// Fast path: when the item created last exists, all of them do.
		last := schemaItems[len(schemaItems)-1].name
		var one int64
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM sqlite_schema WHERE name = ?`, last).Scan(&one)
		if err == nil {
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("unable to check whether schema exists: %w", err)
		}
		for _, item := range schemaItems {
			if _, err := tx.ExecContext(ctx, item.command); err != nil {
				return fmt.Errorf("unable to create %s: %w", item.name, err)
			}
		}
		return nil
	})
}

// DropAll drops both tables and every record in them. Meant for explicit
// resets, there is no undo.
func (s *Store) DropAll(ctx context.Context) error {
	return s.transact(ctx, func(tx *sql.Tx) error {
		// Children first so the foreign key never dangles.
		for _, name := range []string{"contents", "manifests"} {
			if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS `+name); err != nil {
				return fmt.Errorf("unable to drop %s: %w", name, err)
			}
		}
		return nil
	})
}
