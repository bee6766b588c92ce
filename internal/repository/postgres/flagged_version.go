package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"folio/internal/domain"
	"folio/internal/domain/models/timeline"
	timelineRepo "folio/internal/domain/repositories/timeline"
)

// PostgresFlaggedVersionRepository implements FlaggedVersionRepository
type PostgresFlaggedVersionRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewFlaggedVersionRepository creates a new flagged version repository
func NewFlaggedVersionRepository(config *RepositoryConfig) timelineRepo.FlaggedVersionRepository {
	return &PostgresFlaggedVersionRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

const flaggedColumns = `id, document_id, name, update_event_id, content_address_id, created_by, created_at, updated_at`

func scanFlagged(row pgx.Row) (*timeline.FlaggedVersion, error) {
	var fv timeline.FlaggedVersion
	err := row.Scan(&fv.ID, &fv.DocumentID, &fv.Name, &fv.UpdateEventID, &fv.ContentAddressID,
		&fv.CreatedBy, &fv.CreatedAt, &fv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &fv, nil
}

func (r *PostgresFlaggedVersionRepository) queryFlagged(ctx context.Context, query string, args ...interface{}) ([]timeline.FlaggedVersion, error) {
	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query flagged versions: %w", err)
	}
	defer rows.Close()

	var out []timeline.FlaggedVersion
	for rows.Next() {
		fv, err := scanFlagged(rows)
		if err != nil {
			return nil, fmt.Errorf("scan flagged version: %w", err)
		}
		out = append(out, *fv)
	}
	return out, rows.Err()
}

// Create stores a bookmark; the unique update_event_id enforces one per event
func (r *PostgresFlaggedVersionRepository) Create(ctx context.Context, fv *timeline.FlaggedVersion) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (%s) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, r.tables.FlaggedVersions, flaggedColumns)

	executor := GetExecutor(ctx, r.pool)
	_, err := executor.Exec(ctx, query, fv.ID, fv.DocumentID, fv.Name, fv.UpdateEventID,
		fv.ContentAddressID, fv.CreatedBy, fv.CreatedAt, fv.UpdatedAt)
	if err != nil {
		if IsPgDuplicateError(err) {
			return domain.NewConflict("flagged_version", fv.UpdateEventID, "update event is already flagged")
		}
		return translateError(err, "flagged_version", fv.ID)
	}
	return nil
}

// GetByID retrieves a flagged version by ID
func (r *PostgresFlaggedVersionRepository) GetByID(ctx context.Context, id string) (*timeline.FlaggedVersion, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, flaggedColumns, r.tables.FlaggedVersions)

	executor := GetExecutor(ctx, r.pool)
	fv, err := scanFlagged(executor.QueryRow(ctx, query, id))
	if err != nil {
		return nil, translateError(err, "flagged_version", id)
	}
	return fv, nil
}

// GetByEventIDs maps update event IDs to their bookmark
func (r *PostgresFlaggedVersionRepository) GetByEventIDs(ctx context.Context, eventIDs []string) (map[string]*timeline.FlaggedVersion, error) {
	out := make(map[string]*timeline.FlaggedVersion)
	if len(eventIDs) == 0 {
		return out, nil
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE update_event_id = ANY($1)`, flaggedColumns, r.tables.FlaggedVersions)
	list, err := r.queryFlagged(ctx, query, eventIDs)
	if err != nil {
		return nil, err
	}
	for i := range list {
		out[list[i].UpdateEventID] = &list[i]
	}
	return out, nil
}

// Update rewrites name and bound event
func (r *PostgresFlaggedVersionRepository) Update(ctx context.Context, fv *timeline.FlaggedVersion) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET name = $2, update_event_id = $3, content_address_id = $4, updated_at = $5
		WHERE id = $1
	`, r.tables.FlaggedVersions)

	fv.UpdatedAt = time.Now().UTC()

	executor := GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query, fv.ID, fv.Name, fv.UpdateEventID, fv.ContentAddressID, fv.UpdatedAt)
	if err != nil {
		if IsPgDuplicateError(err) {
			return domain.NewConflict("flagged_version", fv.UpdateEventID, "update event is already flagged")
		}
		return translateError(err, "flagged_version", fv.ID)
	}
	if tag.RowsAffected() == 0 {
		return &domain.NotFoundError{Message: "flagged version not found: " + fv.ID}
	}
	return nil
}

// DeleteBound removes the bookmark only while it still points at eventID
func (r *PostgresFlaggedVersionRepository) DeleteBound(ctx context.Context, id, eventID string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1 AND update_event_id = $2`, r.tables.FlaggedVersions)

	executor := GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query, id, eventID)
	if err != nil {
		return translateError(err, "flagged_version", id)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return domain.NewConflict("flagged_version", id, "flagged version no longer references timeline event "+eventID)
}

// DeleteByEventIDs removes bookmarks bound to any of the events
func (r *PostgresFlaggedVersionRepository) DeleteByEventIDs(ctx context.Context, eventIDs []string) ([]timeline.FlaggedVersion, error) {
	if len(eventIDs) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`
		DELETE FROM %s WHERE update_event_id = ANY($1) RETURNING %s
	`, r.tables.FlaggedVersions, flaggedColumns)
	return r.queryFlagged(ctx, query, eventIDs)
}

// ListByDocument lists a document's bookmarks, newest first
func (r *PostgresFlaggedVersionRepository) ListByDocument(ctx context.Context, documentID string) ([]timeline.FlaggedVersion, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s WHERE document_id = $1 ORDER BY created_at DESC, id
	`, flaggedColumns, r.tables.FlaggedVersions)
	return r.queryFlagged(ctx, query, documentID)
}
