package stowdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wuxler/stowage/pkg/errdefs"
	"github.com/wuxler/stowage/pkg/stow"
)

// timeFormat is RFC 3339 in UTC with fixed nanosecond width. The fixed width
// keeps the column lexicographically ordered, so ORDER BY created_at is
// chronological.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

const (
	insertManifestCommand = `
INSERT INTO manifests (id, tags, class_id, unpacker_name, created_at)
VALUES (?, ?, ?, ?, ?)`

	insertContentCommand = `
INSERT INTO contents (
	id, manifest_id, content_key, content_type, content_encoding,
	content_hash, content_hash_algorithm, content_size,
	serializer_name, serializer_config, serializer_kind,
	storage_name, storage_config, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectManifestQuery = `
SELECT id, tags, class_id, unpacker_name, created_at FROM manifests WHERE id = ?`

	selectContentsQuery = `
SELECT id, manifest_id, content_key, content_type, content_encoding,
	content_hash, content_hash_algorithm, content_size,
	serializer_name, serializer_config, serializer_kind,
	storage_name, storage_config, created_at
FROM contents WHERE manifest_id = ? ORDER BY rowid`
)

// CommitManifests implements stow.RecordStore. The batch is written in a
// single transaction: either every manifest with all its contents becomes
// visible or none does.
func (s *Store) CommitManifests(ctx context.Context, manifests []*stow.Manifest) error {
	if len(manifests) == 0 {
		return nil
	}
	for _, manifest := range manifests {
		if err := validateManifest(manifest); err != nil {
			return err
		}
	}
	return s.transact(ctx, func(tx *sql.Tx) error {
		manifestStmt, err := tx.PrepareContext(ctx, insertManifestCommand)
		if err != nil {
			return fmt.Errorf("unable to prepare manifest insert: %w", err)
		}
		defer manifestStmt.Close()
		contentStmt, err := tx.PrepareContext(ctx, insertContentCommand)
		if err != nil {
			return fmt.Errorf("unable to prepare content insert: %w", err)
		}
		defer contentStmt.Close()

		for _, manifest := range manifests {
			tags, err := encodeTags(manifest.Tags)
			if err != nil {
				return err
			}
			if _, err := manifestStmt.ExecContext(ctx,
				manifest.ID.String(),
				tags,
				manifest.ClassID.String(),
				manifest.UnpackerName,
				formatTime(manifest.CreatedAt),
			); err != nil {
				return wrapConstraint(fmt.Errorf("unable to insert manifest %s: %w", manifest.ID, err))
			}
			for _, content := range manifest.Contents {
				if _, err := contentStmt.ExecContext(ctx,
					content.ID.String(),
					content.ManifestID.String(),
					content.ContentKey,
					content.ContentType,
					nullableText(content.ContentEncoding),
					content.ContentHash,
					content.ContentHashAlgorithm,
					content.ContentSize,
					content.SerializerName,
					nullableJSON(content.SerializerConfig),
					int16(content.SerializerKind),
					content.StorageName,
					string(content.StorageConfig),
					formatTime(content.CreatedAt),
				); err != nil {
					return wrapConstraint(fmt.Errorf("unable to insert content %q of manifest %s: %w",
						content.ContentKey, manifest.ID, err))
				}
			}
		}
		return nil
	})
}

// GetManifest implements stow.RecordStore. The returned manifest carries its
// contents in unpack order.
func (s *Store) GetManifest(ctx context.Context, id uuid.UUID) (*stow.Manifest, error) {
	row := s.db.QueryRowContext(ctx, selectManifestQuery, id.String())
	manifest, err := scanManifest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errdefs.Newf(errdefs.ErrNotFound, "manifest %s", id)
	}
	if err != nil {
		return nil, err
	}
	contents, err := s.GetContents(ctx, id)
	if err != nil {
		return nil, err
	}
	manifest.Contents = contents
	return manifest, nil
}

// ListManifests implements stow.RecordStore. Manifests come back newest
// first and without their contents. The class filter narrows in SQL; tags
// live in a single JSON column so the tag filter applies while scanning.
func (s *Store) ListManifests(ctx context.Context, opts ...stow.ListOption) ([]*stow.Manifest, error) {
	options := stow.MakeListOptions(opts...)

	query := `SELECT id, tags, class_id, unpacker_name, created_at FROM manifests`
	args := []any{}
	if options.ClassID != uuid.Nil {
		query += ` WHERE class_id = ?`
		args = append(args, options.ClassID.String())
	}
	query += ` ORDER BY created_at DESC, rowid DESC`
	if options.Limit > 0 && len(options.Tags) == 0 {
		query += ` LIMIT ?`
		args = append(args, options.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("unable to list manifests: %w", err)
	}
	defer rows.Close()

	var manifests []*stow.Manifest
	for rows.Next() {
		manifest, err := scanManifest(rows)
		if err != nil {
			return nil, err
		}
		if !matchTags(manifest.Tags, options.Tags) {
			continue
		}
		manifests = append(manifests, manifest)
		if options.Limit > 0 && len(manifests) == options.Limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("unable to list manifests: %w", err)
	}
	return manifests, nil
}

// GetContents implements stow.RecordStore. Rows come back in insertion
// order, which is the unpack order they were committed in.
func (s *Store) GetContents(ctx context.Context, manifestID uuid.UUID) ([]*stow.Content, error) {
	rows, err := s.db.QueryContext(ctx, selectContentsQuery, manifestID.String())
	if err != nil {
		return nil, fmt.Errorf("unable to list contents of manifest %s: %w", manifestID, err)
	}
	defer rows.Close()

	var contents []*stow.Content
	for rows.Next() {
		content, err := scanContent(rows)
		if err != nil {
			return nil, err
		}
		contents = append(contents, content)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("unable to list contents of manifest %s: %w", manifestID, err)
	}
	return contents, nil
}

// validateManifest rejects manifests that would write malformed rows. SQLite
// does not validate JSON columns, so raw documents are checked here before
// anything is bound.
func validateManifest(manifest *stow.Manifest) error {
	if manifest == nil {
		return errdefs.Newf(errdefs.ErrInvalidParameter, "manifest is nil")
	}
	if manifest.ID == uuid.Nil {
		return errdefs.Newf(errdefs.ErrInvalidParameter, "manifest id is empty")
	}
	for _, content := range manifest.Contents {
		if content.ID == uuid.Nil {
			return errdefs.Newf(errdefs.ErrInvalidParameter,
				"content %q of manifest %s: id is empty", content.ContentKey, manifest.ID)
		}
		if content.ManifestID != manifest.ID {
			return errdefs.Newf(errdefs.ErrInvalidParameter,
				"content %q belongs to manifest %s, not %s", content.ContentKey, content.ManifestID, manifest.ID)
		}
		if err := content.SerializerKind.Validate(); err != nil {
			return err
		}
		if len(content.SerializerConfig) > 0 && !json.Valid(content.SerializerConfig) {
			return errdefs.Newf(errdefs.ErrIntegrity,
				"content %q of manifest %s: serializer config is not valid JSON", content.ContentKey, manifest.ID)
		}
		if len(content.StorageConfig) == 0 || !json.Valid(content.StorageConfig) {
			return errdefs.Newf(errdefs.ErrIntegrity,
				"content %q of manifest %s: storage config is not valid JSON", content.ContentKey, manifest.ID)
		}
	}
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanManifest(row rowScanner) (*stow.Manifest, error) {
	var id, tags, classID, unpackerName, createdAt string
	if err := row.Scan(&id, &tags, &classID, &unpackerName, &createdAt); err != nil {
		return nil, err
	}
	manifest := &stow.Manifest{UnpackerName: unpackerName}
	var err error
	if manifest.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("unable to parse manifest id %q: %w", id, err)
	}
	if manifest.ClassID, err = uuid.Parse(classID); err != nil {
		return nil, fmt.Errorf("unable to parse class id %q of manifest %s: %w", classID, id, err)
	}
	if manifest.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("unable to parse created_at of manifest %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(tags), &manifest.Tags); err != nil {
		return nil, fmt.Errorf("unable to parse tags of manifest %s: %w", id, err)
	}
	if len(manifest.Tags) == 0 {
		manifest.Tags = nil
	}
	return manifest, nil
}

func scanContent(row rowScanner) (*stow.Content, error) {
	var (
		id, manifestID   string
		encoding, config sql.NullString
		kind             int16
		storageConfig    string
		createdAt        string
	)
	content := &stow.Content{}
	if err := row.Scan(
		&id, &manifestID, &content.ContentKey, &content.ContentType, &encoding,
		&content.ContentHash, &content.ContentHashAlgorithm, &content.ContentSize,
		&content.SerializerName, &config, &kind,
		&content.StorageName, &storageConfig, &createdAt,
	); err != nil {
		return nil, err
	}
	var err error
	if content.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("unable to parse content id %q: %w", id, err)
	}
	if content.ManifestID, err = uuid.Parse(manifestID); err != nil {
		return nil, fmt.Errorf("unable to parse manifest id %q of content %s: %w", manifestID, id, err)
	}
	if content.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("unable to parse created_at of content %s: %w", id, err)
	}
	content.ContentEncoding = encoding.String
	if config.Valid {
		content.SerializerConfig = json.RawMessage(config.String)
	}
	content.SerializerKind = stow.Kind(kind)
	content.StorageConfig = json.RawMessage(storageConfig)
	return content, nil
}

// matchTags reports whether have carries every pair in want.
func matchTags(have, want map[string]string) bool {
	for key, value := range want {
		if have[key] != value {
			return false
		}
	}
	return true
}

func encodeTags(tags map[string]string) (string, error) {
	if len(tags) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("unable to encode tags: %w", err)
	}
	return string(raw), nil
}

// nullableText binds the empty string as NULL.
func nullableText(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// nullableJSON binds an absent document as NULL.
func nullableJSON(doc json.RawMessage) any {
	if len(doc) == 0 {
		return nil
	}
	return string(doc)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) (time.Time, error) {
	// RFC3339Nano also accepts the fixed-width form written by formatTime.
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
