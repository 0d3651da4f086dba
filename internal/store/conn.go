// ABOUTME: Connection Manager owning the single shared SQLite handle
// ABOUTME: Lazy open with shared in-flight opens, invalidation, and transaction helpers

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// Conn owns the process-wide SQLite connection. It opens lazily on
// first use; concurrent callers arriving while an open is in flight
// wait for that open instead of starting their own. An invalidated
// connection is reopened transparently on the next acquire.
type Conn struct {
	path   string
	logger *slog.Logger

	mu      sync.Mutex
	db      *sql.DB
	opening chan struct{}

	supportOnce sync.Once
	supported   bool
}

// NewConn creates a connection manager for the database at path.
// Nothing is opened until the first Acquire or transaction helper call.
func NewConn(path string, logger *slog.Logger) *Conn {
	if logger == nil {
		logger = slog.Default()
	}
	return &Conn{path: path, logger: logger}
}

// Supported reports whether the SQLite backend is usable at all.
// The probe runs once and the result is cached.
func (c *Conn) Supported() bool {
	c.supportOnce.Do(func() {
		db, err := sql.Open("sqlite", ":memory:")
		if err != nil {
			return
		}
		defer db.Close()
		c.supported = db.Ping() == nil
	})
	return c.supported
}

// Acquire returns the open database handle, opening it if needed.
// Callers arriving during an in-flight open share its outcome.
func (c *Conn) Acquire(ctx context.Context) (*sql.DB, error) {
	for {
		c.mu.Lock()
		if c.db != nil {
			db := c.db
			c.mu.Unlock()
			return db, nil
		}
		if c.opening != nil {
			ch := c.opening
			c.mu.Unlock()
			select {
			case <-ch:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			continue
		}
		ch := make(chan struct{})
		c.opening = ch
		c.mu.Unlock()

		db, err := c.open()

		c.mu.Lock()
		c.opening = nil
		if err == nil {
			c.db = db
		}
		c.mu.Unlock()
		close(ch)

		if err != nil {
			return nil, err
		}
		return db, nil
	}
}

// open creates the database file, applies pragmas, and runs schema
// upgrades. An upgrade failure aborts the whole open so a broken
// database surfaces the same error on every attempt.
func (c *Conn) open() (*sql.DB, error) {
	if !c.Supported() {
		return nil, ErrBackendUnavailable
	}

	if c.path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
			return nil, fmt.Errorf("%w: creating database directory: %w", ErrConnectionFailed, err)
		}
	}

	db, err := sql.Open("sqlite", c.path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening database: %w", ErrConnectionFailed, err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: enabling WAL mode: %w", ErrConnectionFailed, err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: enabling foreign keys: %w", ErrConnectionFailed, err)
	}

	// Single connection avoids SQLITE_BUSY between our own pool members.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applySchema(db, c.logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: upgrading schema: %w", ErrConnectionFailed, err)
	}

	c.logger.Info("sqlite store opened", "path", c.path)
	return db, nil
}

// Invalidate discards the current connection. The next Acquire reopens.
func (c *Conn) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db != nil {
		c.db.Close()
		c.db = nil
		c.logger.Warn("sqlite connection invalidated")
	}
}

// Close closes the connection if it was ever opened.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

// WithWriteTx runs fn inside a write transaction spanning every table.
// Success is observing the commit, not fn returning nil: a commit
// failure is reported even when the callback succeeded.
func (c *Conn) WithWriteTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return c.withTx(ctx, fn)
}

// WithReadTx runs fn inside a transaction used only for reads. SQLite
// gives the transaction a consistent snapshot; writers are serialized
// behind it by the connection limit.
func (c *Conn) WithReadTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return c.withTx(ctx, fn)
}

func (c *Conn) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	db, err := c.Acquire(ctx)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return classifyTxError("begin", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			c.logger.Warn("rollback failed", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return classifyTxError("commit", err)
	}
	return nil
}
