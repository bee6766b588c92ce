package revision

import (
	"context"

	"folio/internal/domain/models/revision"
)

// ThreadRepository defines data access operations for AI threads
type ThreadRepository interface {
	Create(ctx context.Context, thread *revision.Thread) error
	GetByID(ctx context.Context, id string) (*revision.Thread, error)
	ListByDocument(ctx context.Context, documentID string) ([]revision.Thread, error)
	// Touch bumps updated_at after a new message
	Touch(ctx context.Context, id string) (*revision.Thread, error)
}
