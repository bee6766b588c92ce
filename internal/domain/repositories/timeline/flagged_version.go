package timeline

import (
	"context"

	"folio/internal/domain/models/timeline"
)

// FlaggedVersionRepository defines data access operations for flagged versions
type FlaggedVersionRepository interface {
	// Create stores a bookmark. Conflict when the update event is already flagged.
	Create(ctx context.Context, fv *timeline.FlaggedVersion) error

	// GetByID retrieves a flagged version by ID
	GetByID(ctx context.Context, id string) (*timeline.FlaggedVersion, error)

	// GetByEventIDs maps update event IDs to their bookmark (events without one are absent)
	GetByEventIDs(ctx context.Context, eventIDs []string) (map[string]*timeline.FlaggedVersion, error)

	// Update rewrites name and bound event. Conflict when the new event is already flagged.
	Update(ctx context.Context, fv *timeline.FlaggedVersion) error

	// DeleteBound removes the bookmark only if it still points at eventID.
	// NotFound when the bookmark is gone, Conflict when it points elsewhere.
	DeleteBound(ctx context.Context, id, eventID string) error

	// DeleteByEventIDs removes bookmarks bound to any of the events and returns them
	DeleteByEventIDs(ctx context.Context, eventIDs []string) ([]timeline.FlaggedVersion, error)

	// ListByDocument lists a document's bookmarks, newest first
	ListByDocument(ctx context.Context, documentID string) ([]timeline.FlaggedVersion, error)
}
