package services

import (
	"context"

	"folio/internal/domain/models/docsystem"
)

// DocumentAuthorizer checks whether a user may act on a document.
//
// Services call the authorizer before touching any document-scoped resource
// and receive the loaded document back so they do not fetch it twice.
type DocumentAuthorizer interface {
	// Authorize returns the document when userID holds at least the required
	// access. NotFound when the document does not exist, Forbidden otherwise.
	Authorize(ctx context.Context, userID, documentID string, required docsystem.Access) (*docsystem.Document, error)
}
