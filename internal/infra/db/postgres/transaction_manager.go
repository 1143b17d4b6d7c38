package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-channel-paywall/internal/domain/ports/repository"
)

var _ repository.TransactionManager = (*TxManager)(nil)

const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// TxManager implements repository.TransactionManager over a pgx pool. The
// pgx.Tx reaches repositories as repository.Tx through getExecutor.
type TxManager struct {
	pool     *pgxpool.Pool
	attempts int
	backoff  time.Duration
}

func NewTxManager(pool *pgxpool.Pool) *TxManager {
	return &TxManager{pool: pool, attempts: 3, backoff: 20 * time.Millisecond}
}

// WithTx commits when fn returns nil and rolls back otherwise. A transaction
// that Postgres aborts with a serialization failure or deadlock is replayed
// from the start, so fn must not keep side effects outside tx.
func (m *TxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	var err error
	for attempt := 1; attempt <= m.attempts; attempt++ {
		err = m.once(ctx, txOpt, fn)
		if err == nil || !retryable(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * m.backoff):
		}
	}
	return err
}

func (m *TxManager) once(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	tx, err := m.pool.BeginTx(ctx, txOpt)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgSerializationFailure || pgErr.Code == pgDeadlockDetected
}
