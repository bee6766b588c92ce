package memory

import (
	"context"
	"sort"
	"time"

	"folio/internal/domain"
	"folio/internal/domain/models/revision"
	revisionRepo "folio/internal/domain/repositories/revision"
)

// ThreadRepository implements ThreadRepository over a Store
type ThreadRepository struct {
	store *Store
}

// NewThreadRepository creates a new thread repository
func NewThreadRepository(store *Store) revisionRepo.ThreadRepository {
	return &ThreadRepository{store: store}
}

func (r *ThreadRepository) Create(ctx context.Context, thread *revision.Thread) error {
	defer r.store.lock(ctx)()

	if _, ok := r.store.documents[thread.DocumentID]; !ok {
		return &domain.NotFoundError{Message: "document not found: " + thread.DocumentID}
	}
	r.store.threads[thread.ID] = *thread
	return nil
}

func (r *ThreadRepository) GetByID(ctx context.Context, id string) (*revision.Thread, error) {
	defer r.store.lock(ctx)()

	t, ok := r.store.threads[id]
	if !ok {
		return nil, &domain.NotFoundError{Message: "thread not found: " + id}
	}
	return &t, nil
}

func (r *ThreadRepository) ListByDocument(ctx context.Context, documentID string) ([]revision.Thread, error) {
	defer r.store.lock(ctx)()

	var out []revision.Thread
	for _, t := range r.store.threads {
		if t.DocumentID == documentID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (r *ThreadRepository) Touch(ctx context.Context, id string) (*revision.Thread, error) {
	defer r.store.lock(ctx)()

	t, ok := r.store.threads[id]
	if !ok {
		return nil, &domain.NotFoundError{Message: "thread not found: " + id}
	}
	t.UpdatedAt = time.Now().UTC()
	r.store.threads[id] = t
	return &t, nil
}
