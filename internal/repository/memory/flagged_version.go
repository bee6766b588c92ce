package memory

import (
	"context"
	"sort"
	"time"

	"folio/internal/domain"
	"folio/internal/domain/models/timeline"
	timelineRepo "folio/internal/domain/repositories/timeline"
)

// FlaggedVersionRepository implements FlaggedVersionRepository over a Store
type FlaggedVersionRepository struct {
	store *Store
}

// NewFlaggedVersionRepository creates a new flagged version repository
func NewFlaggedVersionRepository(store *Store) timelineRepo.FlaggedVersionRepository {
	return &FlaggedVersionRepository{store: store}
}

// boundTo returns the bookmark on eventID other than exceptID, if any
func (r *FlaggedVersionRepository) boundTo(eventID, exceptID string) (timeline.FlaggedVersion, bool) {
	for _, fv := range r.store.flagged {
		if fv.UpdateEventID == eventID && fv.ID != exceptID {
			return fv, true
		}
	}
	return timeline.FlaggedVersion{}, false
}

func (r *FlaggedVersionRepository) Create(ctx context.Context, fv *timeline.FlaggedVersion) error {
	defer r.store.lock(ctx)()

	if _, ok := r.store.events[fv.UpdateEventID]; !ok {
		return &domain.NotFoundError{Message: "timeline event not found: " + fv.UpdateEventID}
	}
	if _, taken := r.boundTo(fv.UpdateEventID, ""); taken {
		return domain.NewConflict("flagged_version", fv.UpdateEventID, "update event is already flagged")
	}
	r.store.flagged[fv.ID] = *fv
	return nil
}

func (r *FlaggedVersionRepository) GetByID(ctx context.Context, id string) (*timeline.FlaggedVersion, error) {
	defer r.store.lock(ctx)()

	fv, ok := r.store.flagged[id]
	if !ok {
		return nil, &domain.NotFoundError{Message: "flagged version not found: " + id}
	}
	return &fv, nil
}

func (r *FlaggedVersionRepository) GetByEventIDs(ctx context.Context, eventIDs []string) (map[string]*timeline.FlaggedVersion, error) {
	defer r.store.lock(ctx)()

	wanted := make(map[string]struct{}, len(eventIDs))
	for _, id := range eventIDs {
		wanted[id] = struct{}{}
	}
	out := make(map[string]*timeline.FlaggedVersion)
	for _, fv := range r.store.flagged {
		if _, ok := wanted[fv.UpdateEventID]; ok {
			fv := fv
			out[fv.UpdateEventID] = &fv
		}
	}
	return out, nil
}

func (r *FlaggedVersionRepository) Update(ctx context.Context, fv *timeline.FlaggedVersion) error {
	defer r.store.lock(ctx)()

	if _, ok := r.store.flagged[fv.ID]; !ok {
		return &domain.NotFoundError{Message: "flagged version not found: " + fv.ID}
	}
	if _, ok := r.store.events[fv.UpdateEventID]; !ok {
		return &domain.NotFoundError{Message: "timeline event not found: " + fv.UpdateEventID}
	}
	if _, taken := r.boundTo(fv.UpdateEventID, fv.ID); taken {
		return domain.NewConflict("flagged_version", fv.UpdateEventID, "update event is already flagged")
	}
	fv.UpdatedAt = time.Now().UTC()
	r.store.flagged[fv.ID] = *fv
	return nil
}

func (r *FlaggedVersionRepository) DeleteBound(ctx context.Context, id, eventID string) error {
	defer r.store.lock(ctx)()

	fv, ok := r.store.flagged[id]
	if !ok {
		return &domain.NotFoundError{Message: "flagged version not found: " + id}
	}
	if fv.UpdateEventID != eventID {
		return domain.NewConflict("flagged_version", id, "flagged version no longer references timeline event "+eventID)
	}
	delete(r.store.flagged, id)
	return nil
}

func (r *FlaggedVersionRepository) DeleteByEventIDs(ctx context.Context, eventIDs []string) ([]timeline.FlaggedVersion, error) {
	defer r.store.lock(ctx)()

	wanted := make(map[string]struct{}, len(eventIDs))
	for _, id := range eventIDs {
		wanted[id] = struct{}{}
	}
	var removed []timeline.FlaggedVersion
	for id, fv := range r.store.flagged {
		if _, ok := wanted[fv.UpdateEventID]; ok {
			removed = append(removed, fv)
			delete(r.store.flagged, id)
		}
	}
	return removed, nil
}

func (r *FlaggedVersionRepository) ListByDocument(ctx context.Context, documentID string) ([]timeline.FlaggedVersion, error) {
	defer r.store.lock(ctx)()

	var out []timeline.FlaggedVersion
	for _, fv := range r.store.flagged {
		if fv.DocumentID == documentID {
			out = append(out, fv)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
