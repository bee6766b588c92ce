package timeline

import (
	"context"

	"folio/internal/domain/models/timeline"
)

// EventRepository defines data access operations for timeline events
type EventRepository interface {
	// Append stores a new event. Seq is assigned from the document's cursor and
	// CreatedAt is clamped so it never precedes the previous event.
	Append(ctx context.Context, event *timeline.Event) error

	// GetByID retrieves a single event (replies not populated)
	GetByID(ctx context.Context, id string) (*timeline.Event, error)

	// UpdatePayload rewrites the payload of a mutable event
	UpdatePayload(ctx context.Context, id string, payload timeline.Payload) (*timeline.Event, error)

	// Delete removes the given events
	Delete(ctx context.Context, ids []string) error

	// ListReplies lists the direct replies of an event in canonical order
	ListReplies(ctx context.Context, parentID string) ([]timeline.Event, error)

	// ListByDocument lists every event of a document in canonical order (flat)
	ListByDocument(ctx context.Context, documentID string) ([]timeline.Event, error)
}
