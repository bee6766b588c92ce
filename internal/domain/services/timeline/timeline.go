package timeline

import (
	"context"

	"folio/internal/domain/models/timeline"
)

// TimelineService handles the per-document event log
type TimelineService interface {
	// Append adds an event. A reply to a reply is attached to the thread root.
	Append(ctx context.Context, req *AppendRequest) (*timeline.Event, error)

	// AppendMarker adds a user-authored Marker event (comment access required)
	AppendMarker(ctx context.Context, userID, documentID, label string) (*timeline.Event, error)

	// EditUpdateSummary rewrites summary/title of an Update event
	EditUpdateSummary(ctx context.Context, userID, eventID, summary string, title *string) (*timeline.Event, error)

	// EditMessageResolution rewrites a MessageResolution event (its author only)
	EditMessageResolution(ctx context.Context, userID, eventID string, resolved bool, summary string) (*timeline.Event, error)

	// ForceMessageResolutionSummary rewrites a resolution summary regardless of author (document owner only)
	ForceMessageResolutionSummary(ctx context.Context, userID, eventID, summary string) (*timeline.Event, error)

	// ResolveMessage appends a MessageResolution reply to a Message event
	ResolveMessage(ctx context.Context, userID, messageEventID string, resolved bool, summary string) (*timeline.Event, error)

	// Delete removes a Message event (author only); replies require deleteReplies
	Delete(ctx context.Context, userID, eventID string, deleteReplies bool) error

	// List returns the filtered forest in canonical order
	List(ctx context.Context, userID, documentID string, filter timeline.Filter) ([]timeline.Event, error)
}

// AppendRequest represents a timeline append issued by another subsystem.
// Access checks are the caller's responsibility except where noted.
type AppendRequest struct {
	DocumentID string
	AuthorID   string
	Payload    timeline.Payload
	ReplyTo    *string
}

// Recorder writes timeline events inside the caller's transaction without
// publishing them. Callers hold the document's ordering stripe and publish
// timeline.inserted after commit.
type Recorder interface {
	Record(ctx context.Context, req *AppendRequest) (*timeline.Event, error)

	// DetachMessages unlinks Update events from deleted messages and drops
	// their bookmarks, returning the rewritten events
	DetachMessages(ctx context.Context, documentID string, messageIDs []string) ([]timeline.Event, error)
}
