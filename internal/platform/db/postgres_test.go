package db

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

func TestPoolOptions(t *testing.T) {
	cfg, err := pgxpool.ParseConfig("postgres://u:p@localhost:5432/db")
	require.NoError(t, err)
	defaultMax := cfg.MaxConns

	WithMaxConns(0)(cfg)
	require.Equal(t, defaultMax, cfg.MaxConns)
	WithMaxConns(12)(cfg)
	require.Equal(t, int32(12), cfg.MaxConns)
	WithConnLifetime(30 * time.Minute)(cfg)
	require.Equal(t, 30*time.Minute, cfg.MaxConnLifetime)
}

func TestNewRejectsBadDSN(t *testing.T) {
	_, err := New(context.Background(), "::not a dsn::")
	require.Error(t, err)
	require.Contains(t, err.Error(), "platform/db: parse config")
}

func TestTxOptions(t *testing.T) {
	o := txOptions(nil)
	require.Equal(t, pgx.RepeatableRead, o.IsoLevel)
	require.Equal(t, pgx.TxAccessMode(""), o.AccessMode)

	o = txOptions([]TxOption{WithIsolation(pgx.ReadCommitted), nil, ReadOnly()})
	require.Equal(t, pgx.ReadCommitted, o.IsoLevel)
	require.Equal(t, pgx.ReadOnly, o.AccessMode)
}
