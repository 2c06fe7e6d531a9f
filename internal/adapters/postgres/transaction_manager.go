package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type contextKey string

const txKey contextKey = "pgx_tx"

const (
	serializationFailure = "40001"
	deadlockDetected     = "40P01"

	// DefaultTxAttempts bounds how often a transaction that lost a race with
	// another writer is rerun
	DefaultTxAttempts = 3
)

// txStarter is satisfied by pgxpool.Pool and by test pools
type txStarter interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// TransactionManager runs deploy and rollback state changes atomically. The
// prompt lock table only serializes writers inside one process; a second
// process (the CLI next to a running server) can still race on the
// one-deployed-version index, so conflicting transactions are rerun from the
// start and see the other writer's committed state.
type TransactionManager struct {
	db       txStarter
	attempts int
	backoff  time.Duration
}

// TxOption configures a TransactionManager
type TxOption func(*TransactionManager)

// WithTxAttempts sets how many times a conflicting transaction is tried
func WithTxAttempts(n int) TxOption {
	return func(tm *TransactionManager) {
		if n > 0 {
			tm.attempts = n
		}
	}
}

// NewTransactionManager creates a transaction manager over pool
func NewTransactionManager(pool *pgxpool.Pool, opts ...TxOption) *TransactionManager {
	return newTransactionManager(pool, opts...)
}

func newTransactionManager(db txStarter, opts ...TxOption) *TransactionManager {
	tm := &TransactionManager{db: db, attempts: DefaultTxAttempts, backoff: 20 * time.Millisecond}
	for _, opt := range opts {
		opt(tm)
	}
	return tm
}

// WithTransaction executes fn within a read committed transaction. Repositories
// called with the ctx passed to fn join it. fn may run more than once when the
// transaction conflicts with a concurrent writer, so it must not keep state
// across attempts. Nested calls join the outer transaction and are not retried.
func (tm *TransactionManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if GetTx(ctx) != nil {
		return fn(ctx)
	}

	var err error
	for attempt := 1; attempt <= tm.attempts; attempt++ {
		if err = tm.once(ctx, fn); err == nil || !isTxConflict(err) {
			return err
		}
		if attempt == tm.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * tm.backoff):
		}
	}
	return fmt.Errorf("transaction still conflicting after %d attempts: %w", tm.attempts, err)
}

func (tm *TransactionManager) once(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := tm.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	return runInTx(ctx, tx, fn)
}

// runInTx commits tx when fn succeeds and rolls it back on error or panic
func runInTx(ctx context.Context, tx pgx.Tx, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic recovered in transaction: %v", r)
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				err = fmt.Errorf("%w (rollback: %v)", err, rbErr)
			}
		}
	}()

	if err = fn(context.WithValue(ctx, txKey, tx)); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// isTxConflict reports whether err means a concurrent writer won the race
func isTxConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case uniqueViolation, serializationFailure, deadlockDetected:
		return true
	}
	return false
}

// GetTx retrieves the transaction from the context, if any
func GetTx(ctx context.Context) pgx.Tx {
	if tx, ok := ctx.Value(txKey).(pgx.Tx); ok {
		return tx
	}
	return nil
}

// GetConn returns the transaction carried by ctx, or the pool
func GetConn(ctx context.Context, pool *pgxpool.Pool) querier {
	if tx := GetTx(ctx); tx != nil {
		return tx
	}
	return pool
}
