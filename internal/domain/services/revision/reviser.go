package revision

import (
	"context"

	"folio/internal/domain/models/revision"
)

// ReviseInput is what a reviser sees: the base payload and the request
type ReviseInput struct {
	MessageID   string
	DocumentID  string
	Base        []byte // Payload at contentAddressBefore (empty for a new document)
	Content     string // Message body
	Instruction revision.Attachment
}

// Reviser computes a proposed payload for an edit-implying message
type Reviser interface {
	Revise(ctx context.Context, in *ReviseInput) ([]byte, error)
}

// Runner executes revision work in the background
type Runner interface {
	// Submit starts revision work for a REVISING message
	Submit(msg *revision.Message)
	// Cancel stops running work for the message, if any
	Cancel(messageID string) bool
}
