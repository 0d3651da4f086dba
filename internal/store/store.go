// ABOUTME: DB is the structured-store entity API surface over the Connection Manager
// ABOUTME: Also hosts metadata access, entity counts, and the quota estimate

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// DB exposes the per-entity storage APIs of the structured store.
// Every operation runs through the connection manager's transaction
// helpers under a bounded retry policy.
type DB struct {
	conn   *Conn
	retry  RetryPolicy
	logger *slog.Logger
}

// Option configures a DB.
type Option func(*DB)

// WithRetryPolicy overrides the per-operation retry tuning.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(d *DB) { d.retry = p }
}

// WithLogger overrides the default component logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *DB) {
		d.logger = logger
		d.conn.logger = logger
	}
}

// New creates a structured store for the database at path. The
// underlying connection opens lazily on first use.
func New(path string, opts ...Option) *DB {
	logger := slog.Default().With("component", "store")
	d := &DB{
		conn:   NewConn(path, logger),
		retry:  DefaultRetryPolicy,
		logger: logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Name identifies this tier in health records and logs.
func (d *DB) Name() string { return "sqlite" }

// Supported reports whether the SQLite backend can be used at all.
func (d *DB) Supported() bool { return d.conn.Supported() }

// Ping forces the connection open and verifies it is alive.
func (d *DB) Ping(ctx context.Context) error {
	db, err := d.conn.Acquire(ctx)
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}

// Close closes the underlying connection.
func (d *DB) Close() error { return d.conn.Close() }

// write runs fn in a write transaction with retries. A blocked or
// aborted transaction is invalidated before the next attempt so the
// retry starts from a fresh connection.
func (d *DB) write(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	return d.retry.run(ctx, d.logger, op, func() error {
		err := d.conn.WithWriteTx(ctx, fn)
		if err != nil && retryable(err) {
			d.conn.Invalidate()
		}
		return err
	})
}

// read runs fn in a read transaction with retries.
func (d *DB) read(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	return d.retry.run(ctx, d.logger, op, func() error {
		return d.conn.WithReadTx(ctx, fn)
	})
}

// PutMetadata upserts an opaque metadata entry. Used for the schema
// version and for migration backup records.
func (d *DB) PutMetadata(ctx context.Context, key, value string) error {
	return d.write(ctx, "put metadata", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO metadata (key, value, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			key, value, time.Now().UnixMilli(),
		)
		if err != nil {
			return fmt.Errorf("upserting metadata %q: %w", key, err)
		}
		return nil
	})
}

// GetMetadata retrieves a metadata entry. Returns ErrNotFound if absent.
func (d *DB) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := d.read(ctx, "get metadata", func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("querying metadata %q: %w", key, err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return value, nil
}

// Counts reports how many entities of each type the store holds.
func (d *DB) Counts(ctx context.Context) (Counts, error) {
	var counts Counts
	err := d.read(ctx, "count entities", func(tx *sql.Tx) error {
		for _, q := range []struct {
			table string
			dest  *int
		}{
			{"chat_rooms", &counts.ChatRooms},
			{"messages", &counts.Messages},
			{"settings", &counts.Settings},
			{"transcriptions", &counts.Transcriptions},
		} {
			if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+q.table).Scan(q.dest); err != nil {
				return fmt.Errorf("counting %s: %w", q.table, err)
			}
		}
		return nil
	})
	if err != nil {
		return Counts{}, err
	}
	return counts, nil
}

// SizeBytes estimates the on-disk size of the database from SQLite's
// page statistics. Serves as the quota estimate in diagnostics.
func (d *DB) SizeBytes(ctx context.Context) (int64, error) {
	db, err := d.conn.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	var pageCount, pageSize int64
	if err := db.QueryRowContext(ctx, `PRAGMA page_count`).Scan(&pageCount); err != nil {
		return 0, fmt.Errorf("reading page count: %w", err)
	}
	if err := db.QueryRowContext(ctx, `PRAGMA page_size`).Scan(&pageSize); err != nil {
		return 0, fmt.Errorf("reading page size: %w", err)
	}
	return pageCount * pageSize, nil
}

// nullString returns nil for empty strings, otherwise the string itself
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// nullStringPtr returns nil for nil or empty pointers
func nullStringPtr(s *string) any {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}

// nullTime returns nil for zero times, otherwise Unix milliseconds
func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().UnixMilli()
}

// nullTimePtr returns nil for nil or zero time pointers
func nullTimePtr(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC().UnixMilli()
}
