package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultTxTimeout bounds a unit of work when no timeout is configured.
const DefaultTxTimeout = 5 * time.Second

// beginner opens transactions; *pgxpool.Pool satisfies it.
type beginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// Transactor runs units of work against the pool. Each unit holds one
// connection from begin until commit or rollback.
type Transactor struct {
	pool    *pgxpool.Pool
	begin   beginner
	timeout time.Duration
}

// NewTransactor builds a Transactor. timeout <= 0 uses DefaultTxTimeout.
func NewTransactor(pool *pgxpool.Pool, timeout time.Duration) *Transactor {
	t := newTransactor(pool, timeout)
	t.pool = pool
	return t
}

func newTransactor(b beginner, timeout time.Duration) *Transactor {
	if timeout <= 0 {
		timeout = DefaultTxTimeout
	}
	return &Transactor{begin: b, timeout: timeout}
}

// Pool exposes the underlying pool for non-transactional reads.
func (t *Transactor) Pool() *pgxpool.Pool {
	return t.pool
}

// WithTx executes fn inside a read-committed transaction. Rows that are
// read then written are locked by the callers with SELECT ... FOR UPDATE.
// Any error from fn, the commit, or the deadline rolls the transaction back
// and is returned classified (see Classify).
func (t *Transactor) WithTx(ctx context.Context, fn func(context.Context, pgx.Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	tx, err := t.begin.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return Classify(ctx, fmt.Errorf("platform/db: begin tx: %w", err))
	}
	defer func() {
		// Rollback after commit is a no-op; the detached context lets it run
		// even when the deadline already fired.
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}()

	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", t.timeout.Milliseconds())); err != nil {
		return Classify(ctx, fmt.Errorf("platform/db: set lock timeout: %w", err))
	}

	if err := fn(ctx, tx); err != nil {
		return Classify(ctx, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Classify(ctx, fmt.Errorf("platform/db: commit tx: %w", err))
	}
	return nil
}

// WithTx executes fn within a transaction using the default timeout.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	return NewTransactor(pool, 0).WithTx(ctx, func(_ context.Context, tx pgx.Tx) error {
		return fn(tx)
	})
}
