package timeline

import (
	"context"

	"folio/internal/domain/models/timeline"
)

// FlaggedVersionService manages named bookmarks on Update events
type FlaggedVersionService interface {
	Create(ctx context.Context, userID, name, updateEventID string) (*timeline.FlaggedVersion, error)
	Edit(ctx context.Context, userID, id, name, updateEventID string) (*timeline.FlaggedVersion, error)
	// Delete removes the bookmark only if it is still bound to timelineEventID
	Delete(ctx context.Context, userID, id, timelineEventID string) error
	List(ctx context.Context, userID, documentID string) ([]timeline.FlaggedVersion, error)
}
