package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"folio/internal/domain/models/timeline"
	timelineRepo "folio/internal/domain/repositories/timeline"
)

// PostgresEventRepository implements EventRepository
type PostgresEventRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewEventRepository creates a new timeline event repository
func NewEventRepository(config *RepositoryConfig) timelineRepo.EventRepository {
	return &PostgresEventRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

const eventColumns = `id, document_id, author_id, seq, reply_to, kind, payload, created_at, updated_at`

func scanEvent(row pgx.Row) (*timeline.Event, error) {
	var (
		e    timeline.Event
		kind string
		raw  []byte
	)
	if err := row.Scan(&e.ID, &e.DocumentID, &e.AuthorID, &e.Seq, &e.ReplyTo, &kind, &raw, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	payload, err := timeline.DecodePayload(timeline.PayloadKind(kind), raw)
	if err != nil {
		return nil, err
	}
	e.Payload = payload
	return &e, nil
}

func (r *PostgresEventRepository) queryEvents(ctx context.Context, query string, args ...interface{}) ([]timeline.Event, error) {
	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query timeline events: %w", err)
	}
	defer rows.Close()

	var events []timeline.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan timeline event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

// Append stores a new event. The cursor update locks the document row until
// the transaction ends, which serializes appends per document, and keeps
// created_at strictly increasing within the document.
func (r *PostgresEventRepository) Append(ctx context.Context, event *timeline.Event) error {
	payload, err := timeline.EncodePayload(event.Payload)
	if err != nil {
		return err
	}

	cursor := fmt.Sprintf(`
		UPDATE %s
		SET timeline_seq = timeline_seq + 1,
			timeline_last_at = GREATEST($2::timestamptz, timeline_last_at + INTERVAL '1 microsecond')
		WHERE id = $1
		RETURNING timeline_seq, timeline_last_at
	`, r.tables.Documents)

	executor := GetExecutor(ctx, r.pool)
	var (
		seq    int64
		lastAt time.Time
	)
	if err := executor.QueryRow(ctx, cursor, event.DocumentID, event.CreatedAt).Scan(&seq, &lastAt); err != nil {
		return translateError(err, "document", event.DocumentID)
	}
	event.Seq = seq
	event.CreatedAt = lastAt.UTC()
	event.UpdatedAt = event.CreatedAt

	insert := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, r.tables.TimelineEvents, eventColumns)

	_, err = executor.Exec(ctx, insert,
		event.ID, event.DocumentID, event.AuthorID, event.Seq, event.ReplyTo,
		string(event.Kind()), payload, event.CreatedAt, event.UpdatedAt,
	)
	if err != nil {
		return translateError(err, "timeline_event", event.ID)
	}
	return nil
}

// GetByID retrieves a single event
func (r *PostgresEventRepository) GetByID(ctx context.Context, id string) (*timeline.Event, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, eventColumns, r.tables.TimelineEvents)

	executor := GetExecutor(ctx, r.pool)
	e, err := scanEvent(executor.QueryRow(ctx, query, id))
	if err != nil {
		return nil, translateError(err, "timeline_event", id)
	}
	return e, nil
}

// UpdatePayload rewrites the payload of a mutable event
func (r *PostgresEventRepository) UpdatePayload(ctx context.Context, id string, payload timeline.Payload) (*timeline.Event, error) {
	raw, err := timeline.EncodePayload(payload)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		UPDATE %s SET payload = $2, updated_at = NOW()
		WHERE id = $1 AND kind = $3
		RETURNING %s
	`, r.tables.TimelineEvents, eventColumns)

	executor := GetExecutor(ctx, r.pool)
	e, err := scanEvent(executor.QueryRow(ctx, query, id, raw, string(payload.Kind())))
	if err != nil {
		return nil, translateError(err, "timeline_event", id)
	}
	return e, nil
}

// Delete removes the given events
func (r *PostgresEventRepository) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1)`, r.tables.TimelineEvents)

	executor := GetExecutor(ctx, r.pool)
	if _, err := executor.Exec(ctx, query, ids); err != nil {
		return fmt.Errorf("delete timeline events: %w", err)
	}
	return nil
}

// ListReplies lists the direct replies of an event in canonical order
func (r *PostgresEventRepository) ListReplies(ctx context.Context, parentID string) ([]timeline.Event, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s WHERE reply_to = $1 ORDER BY created_at, id
	`, eventColumns, r.tables.TimelineEvents)
	return r.queryEvents(ctx, query, parentID)
}

// ListByDocument lists every event of a document in canonical order
func (r *PostgresEventRepository) ListByDocument(ctx context.Context, documentID string) ([]timeline.Event, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s WHERE document_id = $1 ORDER BY created_at, id
	`, eventColumns, r.tables.TimelineEvents)
	return r.queryEvents(ctx, query, documentID)
}
