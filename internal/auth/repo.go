package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/commerce-intel/internal/shared"
)

// Repository defines persistence operations for API keys.
type Repository interface {
	FindByPrefix(ctx context.Context, prefix string) (*APIKey, error)
	Create(ctx context.Context, key APIKey) error
	TouchLastUsed(ctx context.Context, prefix string, at time.Time) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindByPrefix fetches a key by its public prefix.
func (r *PGRepository) FindByPrefix(ctx context.Context, prefix string) (*APIKey, error) {
	var (
		key       APIKey
		expiresAt pgtype.Timestamptz
		createdAt pgtype.Timestamptz
	)
	err := r.pool.QueryRow(ctx, `
SELECT prefix, secret_hash, tenant_id, user_id, roles, is_active, expires_at, created_at
FROM api_keys WHERE prefix = $1`, prefix).
		Scan(&key.Prefix, &key.SecretHash, &key.TenantID, &key.UserID, &key.Roles, &key.IsActive, &expiresAt, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		key.ExpiresAt = &t
	}
	key.CreatedAt = createdAt.Time
	return &key, nil
}

// Create inserts a new key.
func (r *PGRepository) Create(ctx context.Context, key APIKey) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO api_keys (prefix, secret_hash, tenant_id, user_id, roles, is_active, expires_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		key.Prefix, key.SecretHash, key.TenantID, key.UserID, key.Roles, key.IsActive, key.ExpiresAt, key.CreatedAt)
	return err
}

// TouchLastUsed records the last successful authentication.
func (r *PGRepository) TouchLastUsed(ctx context.Context, prefix string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE api_keys SET last_used_at = $2 WHERE prefix = $1`, prefix, at)
	return err
}

var _ Repository = (*PGRepository)(nil)
