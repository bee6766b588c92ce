package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"folio/internal/domain"
	"folio/internal/domain/models/revision"
	revisionRepo "folio/internal/domain/repositories/revision"
)

// PostgresMessageRepository implements MessageRepository
type PostgresMessageRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(config *RepositoryConfig) revisionRepo.MessageRepository {
	return &PostgresMessageRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

const messageColumns = `id, container_id, document_id, thread_id, content, attachments, lifecycle_stage,
	lifecycle_reason, author_id, hidden, content_address_before, content_address, content_address_after,
	content_address_after_at, revision_status, timeline_event_id, created_at, updated_at`

func scanMessage(row pgx.Row) (*revision.Message, error) {
	var (
		m           revision.Message
		attachments []byte
		stage       string
		status      string
	)
	err := row.Scan(
		&m.ID, &m.ContainerID, &m.DocumentID, &m.ThreadID, &m.Content, &attachments, &stage,
		&m.LifecycleReason, &m.AuthorID, &m.Hidden, &m.Metadata.ContentAddressBefore,
		&m.Metadata.ContentAddress, &m.Metadata.ContentAddressAfter,
		&m.Metadata.ContentAddressAfterTimestamp, &status, &m.TimelineEventID, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.LifecycleStage = revision.LifecycleStage(stage)
	m.Metadata.RevisionStatus = revision.Status(status)
	if err := json.Unmarshal(attachments, &m.Attachments); err != nil {
		return nil, fmt.Errorf("decode attachments: %w", err)
	}
	return &m, nil
}

func (r *PostgresMessageRepository) queryMessages(ctx context.Context, query string, args ...interface{}) ([]revision.Message, error) {
	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []revision.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// Create creates a new message
func (r *PostgresMessageRepository) Create(ctx context.Context, msg *revision.Message) error {
	attachments, err := json.Marshal(msg.Attachments)
	if err != nil {
		return fmt.Errorf("encode attachments: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`, r.tables.Messages, messageColumns)

	executor := GetExecutor(ctx, r.pool)
	_, err = executor.Exec(ctx, query,
		msg.ID, msg.ContainerID, msg.DocumentID, msg.ThreadID, msg.Content, attachments,
		string(msg.LifecycleStage), msg.LifecycleReason, msg.AuthorID, msg.Hidden,
		msg.Metadata.ContentAddressBefore, msg.Metadata.ContentAddress, msg.Metadata.ContentAddressAfter,
		msg.Metadata.ContentAddressAfterTimestamp, string(msg.Metadata.RevisionStatus),
		msg.TimelineEventID, msg.CreatedAt, msg.UpdatedAt,
	)
	if err != nil {
		return translateError(err, "message", msg.ID)
	}
	return nil
}

// GetByID retrieves a message by ID
func (r *PostgresMessageRepository) GetByID(ctx context.Context, id string) (*revision.Message, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, messageColumns, r.tables.Messages)

	executor := GetExecutor(ctx, r.pool)
	m, err := scanMessage(executor.QueryRow(ctx, query, id))
	if err != nil {
		return nil, translateError(err, "message", id)
	}
	return m, nil
}

// GetByIDs retrieves messages keyed by ID
func (r *PostgresMessageRepository) GetByIDs(ctx context.Context, ids []string) (map[string]*revision.Message, error) {
	out := make(map[string]*revision.Message, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = ANY($1::uuid[])`, messageColumns, r.tables.Messages)
	list, err := r.queryMessages(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	for i := range list {
		out[list[i].ID] = &list[i]
	}
	return out, nil
}

// Transition applies a guarded state change. Every guard lives in the WHERE
// clause so two racing transitions cannot both succeed.
func (r *PostgresMessageRepository) Transition(ctx context.Context, t revision.MessageTransition) (*revision.Message, error) {
	var appended []byte
	if t.AppendAttachment != nil {
		raw, err := json.Marshal(revision.Attachments{t.AppendAttachment})
		if err != nil {
			return nil, fmt.Errorf("encode attachment: %w", err)
		}
		appended = raw
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET lifecycle_stage = $3,
			lifecycle_reason = COALESCE($4, lifecycle_reason),
			content_address_before = $5,
			content_address = $6,
			content_address_after = $7,
			content_address_after_at = $8,
			revision_status = $9,
			attachments = CASE WHEN $10::jsonb IS NULL THEN attachments ELSE attachments || $10::jsonb END,
			updated_at = NOW()
		WHERE id = $1
			AND lifecycle_stage = $2
			AND ($11::uuid IS NULL OR content_address = $11::uuid)
			AND (NOT $12::boolean OR revision_status = 'UNSPECIFIED')
		RETURNING %s
	`, r.tables.Messages, messageColumns)

	executor := GetExecutor(ctx, r.pool)
	m, err := scanMessage(executor.QueryRow(ctx, query,
		t.MessageID, string(t.FromStage), string(t.ToStage), t.Reason,
		t.Metadata.ContentAddressBefore, t.Metadata.ContentAddress, t.Metadata.ContentAddressAfter,
		t.Metadata.ContentAddressAfterTimestamp, string(t.Metadata.RevisionStatus),
		appended, t.ExpectedAddress, t.RequireUnspecified,
	))
	if err == nil {
		return m, nil
	}
	if !IsPgNoRowsError(err) {
		return nil, translateError(err, "message", t.MessageID)
	}

	current, getErr := r.GetByID(ctx, t.MessageID)
	if getErr != nil {
		return nil, getErr
	}
	return nil, domain.NewConflict("message", t.MessageID, fmt.Sprintf(
		"message is %s, expected %s with the given content address", current.LifecycleStage, t.FromStage))
}

// UpdateContent rewrites the message body
func (r *PostgresMessageRepository) UpdateContent(ctx context.Context, id, content string) (*revision.Message, error) {
	query := fmt.Sprintf(`
		UPDATE %s SET content = $2, updated_at = NOW() WHERE id = $1 RETURNING %s
	`, r.tables.Messages, messageColumns)

	executor := GetExecutor(ctx, r.pool)
	m, err := scanMessage(executor.QueryRow(ctx, query, id, content))
	if err != nil {
		return nil, translateError(err, "message", id)
	}
	return m, nil
}

// SetHidden toggles visibility
func (r *PostgresMessageRepository) SetHidden(ctx context.Context, id string, hidden bool) (*revision.Message, error) {
	query := fmt.Sprintf(`
		UPDATE %s SET hidden = $2, updated_at = NOW() WHERE id = $1 RETURNING %s
	`, r.tables.Messages, messageColumns)

	executor := GetExecutor(ctx, r.pool)
	m, err := scanMessage(executor.QueryRow(ctx, query, id, hidden))
	if err != nil {
		return nil, translateError(err, "message", id)
	}
	return m, nil
}

// SetTimelineEvent links a document-thread message to its timeline event
func (r *PostgresMessageRepository) SetTimelineEvent(ctx context.Context, id, eventID string) error {
	query := fmt.Sprintf(`UPDATE %s SET timeline_event_id = $2 WHERE id = $1`, r.tables.Messages)

	executor := GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query, id, eventID)
	if err != nil {
		return translateError(err, "message", id)
	}
	if tag.RowsAffected() == 0 {
		return &domain.NotFoundError{Message: "message not found: " + id}
	}
	return nil
}

// Delete removes the given messages
func (r *PostgresMessageRepository) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1::uuid[])`, r.tables.Messages)

	executor := GetExecutor(ctx, r.pool)
	if _, err := executor.Exec(ctx, query, ids); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	return nil
}

// ListByThread lists a thread's messages oldest first
func (r *PostgresMessageRepository) ListByThread(ctx context.Context, threadID string) ([]revision.Message, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s WHERE thread_id = $1 ORDER BY created_at, id
	`, messageColumns, r.tables.Messages)
	return r.queryMessages(ctx, query, threadID)
}

// ListByStage lists messages in the given lifecycle stage
func (r *PostgresMessageRepository) ListByStage(ctx context.Context, stage revision.LifecycleStage) ([]revision.Message, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s WHERE lifecycle_stage = $1 ORDER BY created_at
	`, messageColumns, r.tables.Messages)
	return r.queryMessages(ctx, query, string(stage))
}
