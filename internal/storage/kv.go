package storage

import (
	"context"
	"database/sql"
	"sort"
	"strings"

	ierr "github.com/privchat/privchat-sdk-go/internal/errors"
)

// KVEntry is one row returned by ListPrefix.
type KVEntry struct {
	Key   string
	Value []byte
}

// Put writes key under bucket, overwriting any existing value (spec §4.3:
// "Every enqueued task is written to a durable key-value tree... before
// the in-memory signal fires"). Values are stored as-is; callers that need
// at-rest encryption for a bucket should Seal before calling Put.
func (s *Store) Put(ctx context.Context, bucket, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv_store(bucket, key, value) VALUES (?, ?, ?)
		 ON CONFLICT(bucket, key) DO UPDATE SET value = excluded.value`,
		bucket, key, value)
	if err != nil {
		return ierr.Wrap(ierr.Database, err, "kv put")
	}
	return nil
}

// Get reads a single key; ok is false if it does not exist.
func (s *Store) Get(ctx context.Context, bucket, key string) (value []byte, ok bool, err error) {
	row := s.db.QueryRowContext(ctx, `SELECT value FROM kv_store WHERE bucket = ? AND key = ?`, bucket, key)
	if err := row.Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, ierr.Wrap(ierr.Database, err, "kv get")
	}
	return value, true, nil
}

// Delete removes key from bucket; a no-op if absent.
func (s *Store) Delete(ctx context.Context, bucket, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv_store WHERE bucket = ? AND key = ?`, bucket, key)
	if err != nil {
		return ierr.Wrap(ierr.Database, err, "kv delete")
	}
	return nil
}

// ListPrefix returns every entry in bucket whose key begins with prefix,
// ordered by key. Used for queue recovery (SendQueue.Start loads pending
// tasks into its in-memory heap before any worker starts consuming) and
// cursor/continuation scans.
func (s *Store) ListPrefix(ctx context.Context, bucket, prefix string) ([]KVEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM kv_store WHERE bucket = ? AND key LIKE ? ESCAPE '\' ORDER BY key`,
		bucket, escapeLike(prefix)+"%")
	if err != nil {
		return nil, ierr.Wrap(ierr.Database, err, "kv list prefix")
	}
	defer rows.Close()

	var out []KVEntry
	for rows.Next() {
		var e KVEntry
		if err := rows.Scan(&e.Key, &e.Value); err != nil {
			return nil, ierr.Wrap(ierr.Database, err, "kv scan")
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
