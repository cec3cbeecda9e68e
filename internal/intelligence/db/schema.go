package intelligencedb

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// Schema returns the DDL for the tables this package and its collaborators use.
func Schema() string {
	return schemaSQL
}

// ApplySchema creates missing tables. It is idempotent.
func ApplySchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("intelligencedb: apply schema: %w", err)
	}
	return nil
}
