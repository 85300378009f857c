package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// Transactor runs fn in one database transaction carried by ctx. Repositories
// called with that ctx pick the transaction up through DB.querier.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type txRunner struct {
	db  *DB
	log *zap.Logger
}

var _ Transactor = (*txRunner)(nil)

func NewTransactor(db *DB, log *zap.Logger) Transactor {
	if log == nil {
		log = zap.NewNop()
	}
	return &txRunner{db: db, log: log.Named("tx")}
}

type txKey struct{}

// WithTx joins a transaction already present in ctx instead of opening a
// savepoint; the outermost call owns commit and rollback.
func (r *txRunner) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFrom(ctx) != nil {
		return fn(ctx)
	}

	ctx, span := tracer.Start(ctx, "db.tx")
	defer span.End()

	err := pgx.BeginTxFunc(ctx, r.db.Pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rolled back")
		r.log.Debug("transaction rolled back", zap.Error(err))
		return fmt.Errorf("tx: %w", err)
	}
	return nil
}

func txFrom(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txKey{}).(pgx.Tx)
	return tx
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// querier returns the transaction in ctx, or the pool outside WithTx.
func (db *DB) querier(ctx context.Context) querier {
	if tx := txFrom(ctx); tx != nil {
		return tx
	}
	return db.Pool
}
