package revision

import (
	"context"

	"folio/internal/domain/models/revision"
)

// MessageRepository defines data access operations for messages
type MessageRepository interface {
	// Create creates a new message
	Create(ctx context.Context, msg *revision.Message) error

	// GetByID retrieves a message by ID
	GetByID(ctx context.Context, id string) (*revision.Message, error)

	// GetByIDs retrieves messages keyed by ID (missing IDs are absent)
	GetByIDs(ctx context.Context, ids []string) (map[string]*revision.Message, error)

	// Transition applies a guarded state change and returns the updated message.
	// Conflict when the guards no longer hold.
	Transition(ctx context.Context, t revision.MessageTransition) (*revision.Message, error)

	// UpdateContent rewrites the message body
	UpdateContent(ctx context.Context, id, content string) (*revision.Message, error)

	// SetHidden toggles visibility
	SetHidden(ctx context.Context, id string, hidden bool) (*revision.Message, error)

	// SetTimelineEvent links a document-thread message to its timeline event
	SetTimelineEvent(ctx context.Context, id, eventID string) error

	// Delete removes the given messages
	Delete(ctx context.Context, ids []string) error

	// ListByThread lists a thread's messages oldest first
	ListByThread(ctx context.Context, threadID string) ([]revision.Message, error)

	// ListByStage lists messages currently in the given lifecycle stage
	ListByStage(ctx context.Context, stage revision.LifecycleStage) ([]revision.Message, error)
}
