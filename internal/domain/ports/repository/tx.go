package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx is an opaque transaction handle (pgx.Tx for Postgres). Repositories
// accept NoTX to run on the pool.
type Tx interface{}

var NoTX interface{}

// TransactionManager runs fn inside one database transaction. fn must pass the
// provided tx to every repository call that belongs to the unit; returning an
// error rolls everything back.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
