package docsystem

import (
	"context"

	"folio/internal/domain/models/docsystem"
)

// ContentStore is the content address store: immutable, hash-deduplicated payloads
type ContentStore interface {
	// Put stores payload in the document, returning the existing address when
	// an identical payload is already stored
	Put(ctx context.Context, userID, documentID string, payload []byte) (*docsystem.ContentAddress, error)

	// Get returns the address with its payload
	Get(ctx context.Context, userID, documentID, addressID string) (*docsystem.ContentAddress, error)

	// Describe returns address metadata without the payload
	Describe(ctx context.Context, userID, documentID, addressID string) (*docsystem.ContentAddress, error)
}
