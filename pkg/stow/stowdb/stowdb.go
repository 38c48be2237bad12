// Package stowdb persists manifests and their contents in a SQLite database
// with exactly two tables. It is the reference stow.RecordStore
// implementation; hosts that already hold a *sql.DB can wrap it with New
// instead of opening a file through Open.
package stowdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	// register the "sqlite3" driver and expose its typed errors
	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/wuxler/stowage/pkg/errdefs"
	"github.com/wuxler/stowage/pkg/xlog"
)

const sqliteDriverName = "sqlite3"

// sqliteDSNOptions are appended to every path opened by Open. The "_"
// prefixed options are described in
// https://github.com/mattn/go-sqlite3#connection-string.
const sqliteDSNOptions = "" +
	// Force an fsync after each transaction (https://www.sqlite.org/pragma.html#pragma_synchronous).
	"_sync=FULL" +
	// Enforce the contents -> manifests foreign key (https://www.sqlite.org/pragma.html#pragma_foreign_keys).
	"&_foreign_keys=1" +
	// Take the write lock when a transaction begins instead of failing with
	// SQLITE_BUSY at the first write inside it (https://www.sqlite.org/lang_transaction.html).
	"&_txlock=exclusive" +
	// Let concurrent openers queue on the lock instead of erroring immediately.
	"&_busy_timeout=10000"

// Store implements stow.RecordStore on a SQLite database.
type Store struct {
	db    *sql.DB
	owned bool
}

// Open opens or creates the SQLite database at path. The schema is not
// created implicitly, call CreateAll before first use. CreateAll is
// idempotent so calling it on every open is fine.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errdefs.Newf(errdefs.ErrInvalidParameter, "database path is empty")
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	db, err := sql.Open(sqliteDriverName, path+sep+sqliteDSNOptions)
	if err != nil {
		return nil, fmt.Errorf("unable to open database %q: %w", path, err)
	}
	return &Store{db: db, owned: true}, nil
}

// New wraps a database handle owned by the caller. Close becomes a no-op;
// the caller keeps the responsibility of closing db.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database handle when the Store owns it, that is, when it
// was created by Open.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

// transact runs fn inside a transaction and commits when fn succeeds. Any
// error rolls the whole transaction back.
func (s *Store) transact(ctx context.Context, fn func(tx *sql.Tx) error) (retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("unable to begin transaction: %w", err)
	}
	succeeded := false
	defer func() {
		if succeeded {
			return
		}
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			xlog.C(ctx).Warnf("unable to roll back transaction: %v", err)
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("unable to commit transaction: %w", err)
	}
	succeeded = true
	return nil
}

// wrapConstraint marks SQLite constraint violations as integrity errors so
// callers can match them with errors.Is(err, errdefs.ErrIntegrity).
func wrapConstraint(err error) error {
	var serr sqlite3.Error
	if errors.As(err, &serr) && serr.Code == sqlite3.ErrConstraint {
		return errdefs.NewE(errdefs.ErrIntegrity, err)
	}
	return err
}
