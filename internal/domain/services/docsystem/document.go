package docsystem

import (
	"context"

	"folio/internal/domain/models/docsystem"
)

// DocumentService handles document registry business logic
type DocumentService interface {
	// CreateDocument creates a root document; an initial payload becomes the first head
	CreateDocument(ctx context.Context, req *CreateDocumentRequest) (*docsystem.Document, error)

	// GetDocument retrieves a document with the caller's computed access
	GetDocument(ctx context.Context, userID, documentID string) (*docsystem.Document, error)

	// UpdateDocument changes title and visibility, recording each change on the timeline
	UpdateDocument(ctx context.Context, userID, documentID string, req *UpdateDocumentRequest) (*docsystem.Document, error)

	// SetEditorAccess grants or revokes edit access (owner only)
	SetEditorAccess(ctx context.Context, userID, documentID, editorID string, grant bool) (*docsystem.Document, error)

	// BranchDocument copies a content address of the source into a new document
	BranchDocument(ctx context.Context, req *BranchDocumentRequest) (*docsystem.Document, error)

	// DeleteDocument deletes a document; branches must be deleted explicitly via deleteChildren
	DeleteDocument(ctx context.Context, userID, documentID string, deleteChildren bool) error
}

// CreateDocumentRequest represents a document creation request
type CreateDocumentRequest struct {
	UserID         string  `json:"-"` // Set by handler from auth context, not from request body
	Title          string  `json:"title"`
	FolderID       *string `json:"folder_id,omitempty"`
	IsPublic       bool    `json:"is_public"`
	InitialPayload *string `json:"initial_payload,omitempty"`
}

// UpdateDocumentRequest represents a document update request
type UpdateDocumentRequest struct {
	Title    *string `json:"title,omitempty"`
	IsPublic *bool   `json:"is_public,omitempty"`
	FolderID *string `json:"folder_id,omitempty"`
}

// BranchDocumentRequest represents a copy-on-branch request
type BranchDocumentRequest struct {
	UserID           string `json:"-"`
	SourceDocumentID string `json:"-"` // From the URL
	AddressID        string `json:"address_id"`
	Title            string `json:"title"`
}
