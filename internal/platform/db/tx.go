package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TxOption adjusts the options a transaction is opened with.
type TxOption func(*pgx.TxOptions)

// WithIsolation overrides the default repeatable-read isolation level.
func WithIsolation(level pgx.TxIsoLevel) TxOption {
	return func(o *pgx.TxOptions) {
		o.IsoLevel = level
	}
}

// ReadOnly opens the transaction in read-only mode.
func ReadOnly() TxOption {
	return func(o *pgx.TxOptions) {
		o.AccessMode = pgx.ReadOnly
	}
}

func txOptions(opts []TxOption) pgx.TxOptions {
	o := pgx.TxOptions{IsoLevel: pgx.RepeatableRead}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// WithTx runs fn inside a transaction, repeatable read unless opts say
// otherwise. The transaction rolls back when fn fails or ctx is cancelled.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error, opts ...TxOption) error {
	tx, err := pool.BeginTx(ctx, txOptions(opts))
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}
	return nil
}
