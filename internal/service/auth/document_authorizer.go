package auth

import (
	"context"
	"fmt"

	"folio/internal/domain"
	"folio/internal/domain/models/docsystem"
	docsystemRepo "folio/internal/domain/repositories/docsystem"
)

// DocumentAccessAuthorizer implements DocumentAuthorizer from the document's
// own ownership, editor list and visibility:
//
//	owner         → owner
//	listed editor → edit
//	public doc    → comment (includes view)
//	anyone else   → none
type DocumentAccessAuthorizer struct {
	docRepo docsystemRepo.DocumentRepository
}

// NewDocumentAccessAuthorizer creates a new document authorizer
func NewDocumentAccessAuthorizer(docRepo docsystemRepo.DocumentRepository) *DocumentAccessAuthorizer {
	return &DocumentAccessAuthorizer{docRepo: docRepo}
}

// Authorize loads the document and checks the caller's access level
func (a *DocumentAccessAuthorizer) Authorize(ctx context.Context, userID, documentID string, required docsystem.Access) (*docsystem.Document, error) {
	doc, err := a.docRepo.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}

	access := doc.AccessFor(userID)
	if !access.Allows(required) {
		return nil, &domain.ForbiddenError{
			Message: fmt.Sprintf("%s access to document %s required", required, documentID),
		}
	}
	doc.Access = access
	return doc, nil
}
