package auth

import (
	"context"
	"errors"
	"testing"

	"folio/internal/domain"
	"folio/internal/domain/models/docsystem"
	"folio/internal/repository/memory"
)

func TestDocumentAccessAuthorizer(t *testing.T) {
	store := memory.NewStore()
	docs := memory.NewDocumentRepository(store)
	ctx := context.Background()

	private := &docsystem.Document{ID: "private", OwnedBy: "owner", Editors: []string{"editor"}, RootParentID: "private"}
	public := &docsystem.Document{ID: "public", OwnedBy: "owner", IsPublic: true, RootParentID: "public"}
	for _, d := range []*docsystem.Document{private, public} {
		if err := docs.Create(ctx, d); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	authz := NewDocumentAccessAuthorizer(docs)

	tests := []struct {
		name     string
		userID   string
		docID    string
		required docsystem.Access
		wantErr  error
		want     docsystem.Access
	}{
		{"owner can do anything", "owner", "private", docsystem.AccessOwner, nil, docsystem.AccessOwner},
		{"editor can edit", "editor", "private", docsystem.AccessEdit, nil, docsystem.AccessEdit},
		{"editor is not owner", "editor", "private", docsystem.AccessOwner, domain.ErrForbidden, ""},
		{"stranger cannot view private", "stranger", "private", docsystem.AccessView, domain.ErrForbidden, ""},
		{"stranger can comment on public", "stranger", "public", docsystem.AccessComment, nil, docsystem.AccessComment},
		{"stranger cannot edit public", "stranger", "public", docsystem.AccessEdit, domain.ErrForbidden, ""},
		{"missing document", "owner", "nope", docsystem.AccessView, domain.ErrNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := authz.Authorize(ctx, tt.userID, tt.docID, tt.required)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if doc.Access != tt.want {
				t.Errorf("access = %s, want %s", doc.Access, tt.want)
			}
		})
	}
}
