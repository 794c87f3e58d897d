// Package storage is the L0 Storage component (spec §4, §6): the
// encrypted relational store, its migration runner, and the key-value
// tree backing queues, sync cursors, and settings. Grounded in
// an embed.FS+golang-migrate shape adapted from Postgres/Ent to sqlite3,
// for a single-file-per-user on-disk store (spec §6 directory layout:
// "{root}/u_{user_id}/messages.db").
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	ierr "github.com/privchat/privchat-sdk-go/internal/errors"
)

// Store owns the single *sql.DB connection pool for one user's data
// directory (spec §3 ownership rule: "The Storage component exclusively
// owns the database connections").
type Store struct {
	log    *slog.Logger
	db     *sql.DB
	cipher *cipherBox
	dir    string
}

// Config describes where and how to open a user's store.
type Config struct {
	// DataRoot is the root directory under which {DataRoot}/u_{UserID}/
	// is created (spec §6).
	DataRoot string
	UserID   int64
	// MasterSecret seeds the per-user at-rest key derivation (spec §6,
	// §3: "per-user key derived from user id via a stable KDF"). In
	// production this is device-held material threaded from the
	// session; tests may pass any stable byte string.
	MasterSecret []byte
}

// Open creates the user's data directory tree, opens (or creates) the
// encrypted relational store with WAL journaling, applies pragmas, and
// runs pending migrations (spec §6: "pragmas (WAL journaling, NORMAL
// synchronous, foreign keys, memory temp store, mmap) are set, then all
// pending migrations are applied in order, then a version check...").
func Open(ctx context.Context, log *slog.Logger, cfg Config) (*Store, error) {
	userDir := filepath.Join(cfg.DataRoot, fmt.Sprintf("u_%d", cfg.UserID))
	for _, sub := range []string{"media/images", "media/videos", "media/audios", "files", "cache", "queue"} {
		if err := os.MkdirAll(filepath.Join(userDir, sub), 0o700); err != nil {
			return nil, ierr.Wrap(ierr.Database, err, "creating data directory")
		}
	}

	dsn := filepath.Join(userDir, "messages.db") +
		"?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on&_temp_store=MEMORY&_mmap_size=268435456"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, ierr.Wrap(ierr.Database, err, "opening sqlite database")
	}
	db.SetMaxOpenConns(1) // sqlite3 + WAL: one writer connection avoids SQLITE_BUSY churn
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, ierr.Wrap(ierr.Database, err, "pinging sqlite database")
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, ierr.Wrap(ierr.Database, err, "running migrations")
	}

	key, err := deriveUserKey(cfg.UserID, cfg.MasterSecret)
	if err != nil {
		_ = db.Close()
		return nil, ierr.Wrap(ierr.Database, err, "deriving storage key")
	}
	box, err := newCipherBox(key)
	if err != nil {
		_ = db.Close()
		return nil, ierr.Wrap(ierr.Database, err, "constructing cipher")
	}

	return &Store{log: log, db: db, cipher: box, dir: userDir}, nil
}

// Dir returns the user data root this store was opened under.
func (s *Store) Dir() string { return s.dir }

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// withTx runs fn inside a single transaction, matching spec §5:
// "Multi-statement updates spanning tables... execute inside a single
// transaction." The transaction is always committed or rolled back on
// every exit path.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ierr.Wrap(ierr.Database, err, "beginning transaction")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return ierr.Wrap(ierr.Database, err, "committing transaction")
	}
	return nil
}
