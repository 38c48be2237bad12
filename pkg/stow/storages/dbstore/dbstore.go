// Package dbstore implements a content-addressed store on a SQLite table.
// Payloads can live in the same database file as the manifest records, so a
// single file carries a complete, self-contained archive. Storage tags are
// ignored, the driver keeps no per-payload metadata beyond digest and size.
package dbstore

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	// register the "sqlite3" driver
	_ "github.com/mattn/go-sqlite3"

	"github.com/wuxler/stowage/pkg/errdefs"
	"github.com/wuxler/stowage/pkg/stow"
)

// Name is the default component name of the driver.
const Name = "sqlite@v1"

// timeFormat is RFC 3339 in UTC with fixed nanosecond width.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// sqliteDSNOptions are appended to every path opened by Open. See
// https://github.com/mattn/go-sqlite3#connection-string.
const sqliteDSNOptions = "_sync=FULL&_txlock=exclusive&_busy_timeout=10000"

const (
	createBlobsCommand = `
CREATE TABLE IF NOT EXISTS storage_blobs (
	digest     TEXT    PRIMARY KEY NOT NULL,
	data       BLOB    NOT NULL,
	size       INTEGER NOT NULL,
	created_at TEXT    NOT NULL
)`

	// Writes are content-addressed: a row per digest, first writer wins and
	// everyone else is a no-op.
	insertBlobCommand = `
INSERT OR IGNORE INTO storage_blobs (digest, data, size, created_at) VALUES (?, ?, ?, ?)`

	selectBlobQuery = `SELECT data FROM storage_blobs WHERE digest = ?`

	countBlobsQuery = `SELECT COUNT(*) FROM storage_blobs`

	dropBlobsCommand = `DROP TABLE IF EXISTS storage_blobs`
)

// Option configures the store.
type Option func(*Storage)

// WithName overrides the component name, allowing several independent blob
// tables in one registry (each behind its own database handle).
func WithName(name string) Option {
	return func(s *Storage) {
		s.name = name
	}
}

// Locator points at a payload held by the store.
type Locator struct {
	Digest string `json:"digest"`
}

// Storage is a content-addressed store backed by one SQLite table.
type Storage struct {
	name  string
	db    *sql.DB
	owned bool
}

// Open opens or creates the SQLite database at path and returns a store
// writing to the storage_blobs table inside it. Call CreateAll before first
// use.
func Open(path string, opts ...Option) (*Storage, error) {
	if path == "" {
		return nil, errdefs.Newf(errdefs.ErrInvalidParameter, "database path is empty")
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	db, err := sql.Open("sqlite3", path+sep+sqliteDSNOptions)
	if err != nil {
		return nil, fmt.Errorf("unable to open database %q: %w", path, err)
	}
	s := New(db, opts...)
	s.owned = true
	return s, nil
}

// New wraps a database handle owned by the caller, typically the same handle
// the manifest records live behind. Close becomes a no-op.
func New(db *sql.DB, opts ...Option) *Storage {
	s := &Storage{name: Name, db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements stow.Component.
func (s *Storage) Name() string {
	return s.name
}

// CreateAll brings the blob table into being. It is idempotent.
func (s *Storage) CreateAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createBlobsCommand); err != nil {
		return fmt.Errorf("unable to create storage_blobs: %w", err)
	}
	return nil
}

// DropAll removes the blob table and every payload in it.
func (s *Storage) DropAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, dropBlobsCommand); err != nil {
		return fmt.Errorf("unable to drop storage_blobs: %w", err)
	}
	return nil
}

// Close closes the database handle when the store owns it, that is, when it
// was created by Open.
func (s *Storage) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

// Count returns the number of payloads held by the store.
func (s *Storage) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, countBlobsQuery).Scan(&n); err != nil {
		return 0, fmt.Errorf("unable to count blobs: %w", err)
	}
	return n, nil
}

// WriteData implements stow.Storage.
func (s *Storage) WriteData(ctx context.Context, data []byte, dgst stow.Digest, _ map[string]string) (stow.Locator, error) {
	if dgst.Digest == "" {
		return nil, errdefs.Newf(errdefs.ErrInvalidParameter, "empty digest")
	}
	key := dgst.Digest.String()
	if err := s.insert(ctx, key, data); err != nil {
		return nil, err
	}
	return Locator{Digest: key}, nil
}

// ReadData implements stow.Storage.
func (s *Storage) ReadData(ctx context.Context, locator stow.Locator) ([]byte, error) {
	key, err := locatorDigest(locator)
	if err != nil {
		return nil, err
	}
	var data []byte
	err = s.db.QueryRowContext(ctx, selectBlobQuery, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errdefs.Newf(errdefs.ErrNoStorageData, "no payload for %s", key)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to read blob %s: %w", key, err)
	}
	return data, nil
}

// WriteDataStream implements stow.Storage. The source is drained to EOF and
// the payload is keyed by the digest computed while draining.
func (s *Storage) WriteDataStream(ctx context.Context, src *stow.StreamDigester, _ map[string]string) (stow.Locator, error) {
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("drain stream: %w", err)
	}
	sd, err := src.Digest(false)
	if err != nil {
		return nil, err
	}
	key := sd.Digest.Digest.String()
	if err := s.insert(ctx, key, data); err != nil {
		return nil, err
	}
	return Locator{Digest: key}, nil
}

// ReadDataStream implements stow.Storage.
func (s *Storage) ReadDataStream(ctx context.Context, locator stow.Locator) (io.ReadCloser, error) {
	data, err := s.ReadData(ctx, locator)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// EncodeLocator implements stow.Storage.
func (s *Storage) EncodeLocator(locator stow.Locator) (string, error) {
	if _, err := locatorDigest(locator); err != nil {
		return "", err
	}
	return stow.EncodeLocatorJSON(locator)
}

// DecodeLocator implements stow.Storage.
func (s *Storage) DecodeLocator(encoded string) (stow.Locator, error) {
	locator, err := stow.DecodeLocatorJSON[Locator](encoded)
	if err != nil {
		return nil, err
	}
	if locator.Digest == "" {
		return nil, errdefs.Newf(errdefs.ErrInvalidParameter, "locator %q has no digest", encoded)
	}
	return locator, nil
}

func (s *Storage) insert(ctx context.Context, digest string, data []byte) error {
	createdAt := time.Now().UTC().Format(timeFormat)
	if _, err := s.db.ExecContext(ctx, insertBlobCommand, digest, data, int64(len(data)), createdAt); err != nil {
		return fmt.Errorf("unable to insert blob %s: %w", digest, err)
	}
	return nil
}

func locatorDigest(locator stow.Locator) (string, error) {
	switch loc := locator.(type) {
	case Locator:
		return loc.Digest, nil
	case *Locator:
		return loc.Digest, nil
	default:
		return "", errdefs.Newf(errdefs.ErrInvalidParameter, "locator %T is not a sqlite locator", locator)
	}
}
