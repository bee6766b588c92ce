package memory

import (
	"context"
	"slices"

	"folio/internal/domain"
	"folio/internal/domain/models/docsystem"
	docsysRepo "folio/internal/domain/repositories/docsystem"
)

// ContentAddressRepository implements ContentAddressRepository over a Store
type ContentAddressRepository struct {
	store *Store
}

// NewContentAddressRepository creates a new content address repository
func NewContentAddressRepository(store *Store) docsysRepo.ContentAddressRepository {
	return &ContentAddressRepository{store: store}
}

func (r *ContentAddressRepository) Put(ctx context.Context, addr *docsystem.ContentAddress) (bool, error) {
	defer r.store.lock(ctx)()

	if _, ok := r.store.documents[addr.DocumentID]; !ok {
		return false, &domain.NotFoundError{Message: "document not found: " + addr.DocumentID}
	}
	for _, existing := range r.store.addresses {
		if existing.DocumentID == addr.DocumentID && existing.Hash == addr.Hash {
			*addr = existing
			addr.Payload = slices.Clone(existing.Payload)
			return false, nil
		}
	}

	stored := *addr
	stored.Payload = slices.Clone(addr.Payload)
	r.store.addresses[addr.ID] = stored
	return true, nil
}

func (r *ContentAddressRepository) Get(ctx context.Context, documentID, id string) (*docsystem.ContentAddress, error) {
	defer r.store.lock(ctx)()

	addr, ok := r.store.addresses[id]
	if !ok || addr.DocumentID != documentID {
		return nil, &domain.NotFoundError{Message: "content address not found: " + id}
	}
	addr.Payload = slices.Clone(addr.Payload)
	return &addr, nil
}

func (r *ContentAddressRepository) Describe(ctx context.Context, documentID, id string) (*docsystem.ContentAddress, error) {
	defer r.store.lock(ctx)()

	addr, ok := r.store.addresses[id]
	if !ok || addr.DocumentID != documentID {
		return nil, &domain.NotFoundError{Message: "content address not found: " + id}
	}
	addr.Payload = nil
	return &addr, nil
}
