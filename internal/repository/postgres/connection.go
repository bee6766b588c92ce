package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"folio/internal/domain/repositories"
)

// RepositoryConfig holds configuration for repository implementations
type RepositoryConfig struct {
	Pool   *pgxpool.Pool
	Tables *TableNames
	Logger *slog.Logger
}

// TableNames holds dynamically prefixed table names
type TableNames struct {
	Prefix           string
	Documents        string
	ContentAddresses string
	TimelineEvents   string
	FlaggedVersions  string
	Threads          string
	Messages         string
}

// NewTableNames creates table names with the given prefix
func NewTableNames(prefix string) *TableNames {
	return &TableNames{
		Prefix:           prefix,
		Documents:        fmt.Sprintf("%sdocuments", prefix),
		ContentAddresses: fmt.Sprintf("%scontent_addresses", prefix),
		TimelineEvents:   fmt.Sprintf("%stimeline_events", prefix),
		FlaggedVersions:  fmt.Sprintf("%sflagged_versions", prefix),
		Threads:          fmt.Sprintf("%sthreads", prefix),
		Messages:         fmt.Sprintf("%smessages", prefix),
	}
}

// CreateConnectionPool creates a pgx pool for databaseURL.
//
// Port 6543 is treated as a PgBouncer transaction pooler, which cannot hold
// prepared statements; those connections switch to QueryExecModeCacheDescribe
// unless default_query_exec_mode was set explicitly in the URL. Table prefixes
// are interpolated before statements reach the server, so each environment
// gets its own cached statements.
func CreateConnectionPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 2

	if config.ConnConfig.Port == 6543 && config.ConnConfig.DefaultQueryExecMode == pgx.QueryExecModeCacheStatement {
		config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheDescribe
		slog.Debug("auto-configured cache_describe mode for PgBouncer compatibility", "port", 6543)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// GetExecutor returns the transaction carried by ctx, falling back to the pool,
// so repositories join an enclosing ExecTx automatically.
func GetExecutor(ctx context.Context, pool *pgxpool.Pool) repositories.DBTX {
	if tx := repositories.GetTx(ctx); tx != nil {
		return tx
	}
	return pool
}
