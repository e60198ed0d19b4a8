package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/matheus3301/chatsync/internal/retry"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Idle polling used before registering observations.
const (
	IdleInterval = 100 * time.Millisecond
	IdleAttempts = 50
)

// Store serializes all writes through one transaction at a time and fans
// committed changes out to observers.
type Store struct {
	db      *DB
	logger  *zap.Logger
	hub     *hub
	mu      sync.Mutex
	writing atomic.Bool
}

// New starts the change dispatcher over an opened, migrated database.
func New(db *DB, logger *zap.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger,
		hub:    newHub(logger.Named("hub")),
	}
}

// DB returns the underlying connection.
func (s *Store) DB() *DB { return s.db }

// Close stops change delivery and closes the database.
func (s *Store) Close() error {
	s.hub.close()
	return s.db.Close()
}

func (s *Store) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}

func (s *Store) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, query, args...)
}

// Writing reports whether a write transaction is open.
func (s *Store) Writing() bool { return s.writing.Load() }

// Write runs fn in a write transaction. Writes are serialized; observers are
// notified after commit, on the dispatcher goroutine.
func (s *Store) Write(ctx context.Context, fn func(tx *Tx) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writing.Store(true)
	defer s.writing.Store(false)

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	tx := &Tx{tx: sqlTx, seen: make(map[string]map[string]bool)}
	defer func() {
		if err != nil {
			err = multierr.Append(err, ignoreDone(sqlTx.Rollback()))
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	s.hub.publish(tx.changes)
	return nil
}

func ignoreDone(err error) error {
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

// Observe registers fn for changes of table committed after the call.
func (s *Store) Observe(table string, fn func(Change)) Token {
	return s.hub.observe(table, fn)
}

// Unobserve removes an observation. Deliveries not yet started skip it.
func (s *Store) Unobserve(t Token) {
	s.hub.unobserve(t)
}

// WaitIdle polls until no write transaction is open. It gives up after
// IdleAttempts polls with retry.ErrExhausted.
func (s *Store) WaitIdle(ctx context.Context) error {
	return retry.Poll(ctx, IdleInterval, IdleAttempts, func() bool {
		return !s.writing.Load()
	})
}

// ObserveWhenIdle registers fn once the store has no open write.
func (s *Store) ObserveWhenIdle(ctx context.Context, table string, fn func(Change)) (Token, error) {
	if err := s.WaitIdle(ctx); err != nil {
		return 0, fmt.Errorf("observe %s: %w", table, err)
	}
	return s.Observe(table, fn), nil
}

// Settle blocks until every committed change has been delivered, including
// changes written by observers themselves.
func (s *Store) Settle() {
	s.hub.settle()
}

// Tx is an open write transaction. It records the rows it writes.
type Tx struct {
	tx      *sql.Tx
	changes []Change
	seen    map[string]map[string]bool
}

func (t *Tx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, query, args...)
}

func (t *Tx) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, query, args...)
}

// ExecContext runs a statement without recording a change.
func (t *Tx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, query, args...)
}

// Touched records that the row id of table was written.
func (t *Tx) Touched(table, id string) {
	ids, ok := t.seen[table]
	if !ok {
		ids = make(map[string]bool)
		t.seen[table] = ids
		t.changes = append(t.changes, Change{Table: table})
	}
	if ids[id] {
		return
	}
	ids[id] = true
	for i := range t.changes {
		if t.changes[i].Table == table {
			t.changes[i].IDs = append(t.changes[i].IDs, id)
			return
		}
	}
}
