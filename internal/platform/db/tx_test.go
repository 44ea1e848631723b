package db

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-workshop/internal/shared"
)

// fakeTx records the calls WithTx makes. Unused pgx.Tx methods panic.
type fakeTx struct {
	pgx.Tx

	mu          sync.Mutex
	execs       []string
	committed   bool
	rolledBack  bool
	rollbackErr error
	commitErr   error
}

func (f *fakeTx) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execs = append(f.execs, sql)
	return pgconn.NewCommandTag("SET"), nil
}

func (f *fakeTx) Commit(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.commitErr != nil {
		return f.commitErr
	}
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rolledBack = true
	f.rollbackErr = ctx.Err()
	return nil
}

type fakeBeginner struct {
	tx   *fakeTx
	err  error
	opts pgx.TxOptions
}

func (b *fakeBeginner) BeginTx(_ context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	b.opts = opts
	if b.err != nil {
		return nil, b.err
	}
	return b.tx, nil
}

func TestWithTxCommitsAndSetsLockTimeout(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{}}
	tr := newTransactor(b, 250*time.Millisecond)

	err := tr.WithTx(context.Background(), func(ctx context.Context, tx pgx.Tx) error {
		_, hasDeadline := ctx.Deadline()
		require.True(t, hasDeadline)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, pgx.ReadCommitted, b.opts.IsoLevel)
	require.Equal(t, []string{"SET LOCAL lock_timeout = '250ms'"}, b.tx.execs)
	require.True(t, b.tx.committed)
}

func TestWithTxRollsBackAndClassifiesFnError(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{}}
	tr := newTransactor(b, time.Second)

	err := tr.WithTx(context.Background(), func(context.Context, pgx.Tx) error {
		return &pgconn.PgError{Code: codeUniqueViolation, ConstraintName: "ledger_entries_source_key_key"}
	})
	require.ErrorIs(t, err, shared.ErrConflict)
	require.False(t, b.tx.committed)
	require.True(t, b.tx.rolledBack)
}

func TestWithTxDeadlineSurfacesTimeout(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{}}
	tr := newTransactor(b, 20*time.Millisecond)

	err := tr.WithTx(context.Background(), func(ctx context.Context, tx pgx.Tx) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.ErrorIs(t, err, shared.ErrTimeout)
	require.ErrorIs(t, err, shared.ErrTransaction)
	require.False(t, b.tx.committed)
	require.True(t, b.tx.rolledBack)
	require.NoError(t, b.tx.rollbackErr, "rollback must run on a live context after the deadline")
}

func TestWithTxCommitFailureIsReturned(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{commitErr: &pgconn.PgError{Code: codeSerializationFailure}}}
	tr := newTransactor(b, time.Second)

	err := tr.WithTx(context.Background(), func(context.Context, pgx.Tx) error { return nil })
	require.ErrorIs(t, err, shared.ErrTransaction)
	require.True(t, b.tx.rolledBack)
}

func TestWithTxBeginFailure(t *testing.T) {
	boom := errors.New("connection refused")
	tr := newTransactor(&fakeBeginner{err: boom}, time.Second)

	called := false
	err := tr.WithTx(context.Background(), func(context.Context, pgx.Tx) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, boom)
	require.False(t, called)
}

func TestNewTransactorDefaultsTimeout(t *testing.T) {
	require.Equal(t, DefaultTxTimeout, newTransactor(&fakeBeginner{}, 0).timeout)
}
