package docsystem

import (
	"context"

	"folio/internal/domain/models/docsystem"
)

// DocumentRepository defines data access operations for documents
type DocumentRepository interface {
	// Create creates a new document
	Create(ctx context.Context, doc *docsystem.Document) error

	// GetByID retrieves a document by ID
	GetByID(ctx context.Context, id string) (*docsystem.Document, error)

	// Update persists title, visibility, folder and editor changes
	Update(ctx context.Context, doc *docsystem.Document) error

	// Delete deletes a document together with its addresses, events, messages and flagged versions
	Delete(ctx context.Context, id string) error

	// ListBranches lists documents whose parent address belongs to the given document
	ListBranches(ctx context.Context, id string) ([]docsystem.Document, error)

	// AdvanceHead moves the head from expected to next in one compare-and-swap.
	// Returns a ConflictError when the stored head no longer equals expected.
	AdvanceHead(ctx context.Context, id string, expected *string, next string) (int64, error)
}
