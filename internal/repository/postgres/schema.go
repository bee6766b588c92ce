package postgres

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// Migrate creates the prefixed tables if they do not exist yet
func Migrate(ctx context.Context, pool *pgxpool.Pool, tables *TableNames) error {
	ddl := strings.ReplaceAll(schemaSQL, "{{prefix}}", tables.Prefix)
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
