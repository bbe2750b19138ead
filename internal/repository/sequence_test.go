package repository

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTx struct {
	statements []string
	args       [][]any
	lockErr    error
	setvalEnd  int64
}

func (f *fakeTx) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.statements = append(f.statements, sql)
	f.args = append(f.args, args)
	if f.lockErr != nil {
		return pgconn.CommandTag{}, f.lockErr
	}
	return pgconn.NewCommandTag("SELECT 1"), nil
}

func (f *fakeTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("unexpected Query")
}

func (f *fakeTx) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	f.statements = append(f.statements, sql)
	f.args = append(f.args, args)
	return fakeRow{val: f.setvalEnd}
}

type fakeRow struct {
	val int64
}

func (r fakeRow) Scan(dest ...any) error {
	*dest[0].(*int64) = r.val
	return nil
}

type fakeTxRunner struct {
	tx       *fakeTx
	beginErr error
	runs     int
}

func (f *fakeTxRunner) RunInTx(_ context.Context, fn func(tx DBTX) error) error {
	f.runs++
	if f.beginErr != nil {
		return f.beginErr
	}
	return fn(f.tx)
}

func TestReserveRange_LocksBeforeAdvancing(t *testing.T) {
	tx := &fakeTx{setvalEnd: 300}
	runner := &fakeTxRunner{tx: tx}
	repo := NewSequenceRepository(runner)

	rng, err := repo.ReserveRange(context.Background(), LedgerSequence, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(200), rng.Start)
	assert.Equal(t, int64(300), rng.End)

	// Both statements share one transaction, advisory lock first so a
	// concurrent reservation cannot read last_value until this one commits.
	require.Equal(t, 1, runner.runs)
	require.Len(t, tx.statements, 2)
	assert.Contains(t, tx.statements[0], "pg_advisory_xact_lock")
	assert.Equal(t, []any{LedgerSequence}, tx.args[0])
	assert.Contains(t, tx.statements[1], "setval")
	assert.True(t, strings.Contains(tx.statements[1], LedgerSequence))
	assert.Equal(t, []any{int64(100)}, tx.args[1])
}

func TestReserveRange_LockFailureAborts(t *testing.T) {
	tx := &fakeTx{lockErr: errors.New("lock timeout")}
	repo := NewSequenceRepository(&fakeTxRunner{tx: tx})

	_, err := repo.ReserveRange(context.Background(), AccountSequence, 50)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lock sequence")
	// setval never ran.
	require.Len(t, tx.statements, 1)
}

func TestReserveRange_TransactionErrorPropagates(t *testing.T) {
	repo := NewSequenceRepository(&fakeTxRunner{beginErr: errors.New("pool exhausted")})

	_, err := repo.ReserveRange(context.Background(), LedgerSequence, 100)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reserve 100 ids from "+LedgerSequence)
}
