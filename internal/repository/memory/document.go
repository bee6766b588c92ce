package memory

import (
	"context"
	"slices"
	"sort"
	"time"

	"folio/internal/domain"
	"folio/internal/domain/models/docsystem"
	docsysRepo "folio/internal/domain/repositories/docsystem"
)

// DocumentRepository implements DocumentRepository over a Store
type DocumentRepository struct {
	store *Store
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(store *Store) docsysRepo.DocumentRepository {
	return &DocumentRepository{store: store}
}

func cloneDocument(d docsystem.Document) *docsystem.Document {
	d.Editors = slices.Clone(d.Editors)
	if d.Editors == nil {
		d.Editors = []string{}
	}
	d.Access = ""
	return &d
}

func (r *DocumentRepository) Create(ctx context.Context, doc *docsystem.Document) error {
	defer r.store.lock(ctx)()

	if _, ok := r.store.documents[doc.ID]; ok {
		return domain.NewConflict("document", doc.ID, "document already exists")
	}
	r.store.documents[doc.ID] = *cloneDocument(*doc)
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*docsystem.Document, error) {
	defer r.store.lock(ctx)()

	doc, ok := r.store.documents[id]
	if !ok {
		return nil, &domain.NotFoundError{Message: "document not found: " + id}
	}
	return cloneDocument(doc), nil
}

func (r *DocumentRepository) Update(ctx context.Context, doc *docsystem.Document) error {
	defer r.store.lock(ctx)()

	stored, ok := r.store.documents[doc.ID]
	if !ok {
		return &domain.NotFoundError{Message: "document not found: " + doc.ID}
	}
	doc.UpdatedAt = time.Now().UTC()
	stored.Title = doc.Title
	stored.IsPublic = doc.IsPublic
	stored.FolderID = doc.FolderID
	stored.Editors = slices.Clone(doc.Editors)
	stored.UpdatedAt = doc.UpdatedAt
	r.store.documents[doc.ID] = stored
	return nil
}

// Delete removes the document and everything it owns
func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	defer r.store.lock(ctx)()

	if _, ok := r.store.documents[id]; !ok {
		return &domain.NotFoundError{Message: "document not found: " + id}
	}
	delete(r.store.documents, id)
	delete(r.store.cursors, id)
	for k, v := range r.store.addresses {
		if v.DocumentID == id {
			delete(r.store.addresses, k)
		}
	}
	for k, v := range r.store.events {
		if v.DocumentID == id {
			delete(r.store.events, k)
		}
	}
	for k, v := range r.store.flagged {
		if v.DocumentID == id {
			delete(r.store.flagged, k)
		}
	}
	for k, v := range r.store.messages {
		if v.DocumentID == id {
			delete(r.store.messages, k)
		}
	}
	for k, v := range r.store.threads {
		if v.DocumentID == id {
			delete(r.store.threads, k)
		}
	}
	return nil
}

func (r *DocumentRepository) ListBranches(ctx context.Context, id string) ([]docsystem.Document, error) {
	defer r.store.lock(ctx)()

	var branches []docsystem.Document
	for _, d := range r.store.documents {
		if d.ParentAddress == nil || d.ID == id {
			continue
		}
		if addr, ok := r.store.addresses[*d.ParentAddress]; ok && addr.DocumentID == id {
			branches = append(branches, *cloneDocument(d))
		}
	}
	sort.Slice(branches, func(i, j int) bool {
		return branches[i].CreatedAt.Before(branches[j].CreatedAt)
	})
	return branches, nil
}

func (r *DocumentRepository) AdvanceHead(ctx context.Context, id string, expected *string, next string) (int64, error) {
	defer r.store.lock(ctx)()

	doc, ok := r.store.documents[id]
	if !ok {
		return 0, &domain.NotFoundError{Message: "document not found: " + id}
	}
	if !sameAddress(doc.HeadAddress, expected) {
		return 0, domain.NewConflict("document", id, "document head has moved; re-derive the proposal against the current head")
	}
	doc.HeadAddress = &next
	doc.HeadVersion++
	doc.UpdatedAt = time.Now().UTC()
	r.store.documents[id] = doc
	return doc.HeadVersion, nil
}

func sameAddress(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
