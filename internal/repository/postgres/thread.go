package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"folio/internal/domain/models/revision"
	revisionRepo "folio/internal/domain/repositories/revision"
)

// PostgresThreadRepository implements ThreadRepository
type PostgresThreadRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewThreadRepository creates a new thread repository
func NewThreadRepository(config *RepositoryConfig) revisionRepo.ThreadRepository {
	return &PostgresThreadRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

const threadColumns = `id, document_id, channel_id, title, created_by, created_at, updated_at`

func scanThread(row pgx.Row) (*revision.Thread, error) {
	var t revision.Thread
	if err := row.Scan(&t.ID, &t.DocumentID, &t.ChannelID, &t.Title, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *PostgresThreadRepository) Create(ctx context.Context, thread *revision.Thread) error {
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES ($1, $2, $3, $4, $5, $6, $7)`, r.tables.Threads, threadColumns)

	executor := GetExecutor(ctx, r.pool)
	_, err := executor.Exec(ctx, query, thread.ID, thread.DocumentID, thread.ChannelID, thread.Title,
		thread.CreatedBy, thread.CreatedAt, thread.UpdatedAt)
	if err != nil {
		return translateError(err, "thread", thread.ID)
	}
	return nil
}

func (r *PostgresThreadRepository) GetByID(ctx context.Context, id string) (*revision.Thread, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, threadColumns, r.tables.Threads)

	executor := GetExecutor(ctx, r.pool)
	t, err := scanThread(executor.QueryRow(ctx, query, id))
	if err != nil {
		return nil, translateError(err, "thread", id)
	}
	return t, nil
}

func (r *PostgresThreadRepository) ListByDocument(ctx context.Context, documentID string) ([]revision.Thread, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s WHERE document_id = $1 ORDER BY updated_at DESC
	`, threadColumns, r.tables.Threads)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	defer rows.Close()

	var out []revision.Thread
	for rows.Next() {
		t, err := scanThread(rows)
		if err != nil {
			return nil, fmt.Errorf("scan thread: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (r *PostgresThreadRepository) Touch(ctx context.Context, id string) (*revision.Thread, error) {
	query := fmt.Sprintf(`
		UPDATE %s SET updated_at = NOW() WHERE id = $1 RETURNING %s
	`, r.tables.Threads, threadColumns)

	executor := GetExecutor(ctx, r.pool)
	t, err := scanThread(executor.QueryRow(ctx, query, id))
	if err != nil {
		return nil, translateError(err, "thread", id)
	}
	return t, nil
}
