package memory

import (
	"context"
	"sort"
	"time"

	"folio/internal/domain"
	"folio/internal/domain/models/timeline"
	timelineRepo "folio/internal/domain/repositories/timeline"
)

// EventRepository implements EventRepository over a Store
type EventRepository struct {
	store *Store
}

// NewEventRepository creates a new timeline event repository
func NewEventRepository(store *Store) timelineRepo.EventRepository {
	return &EventRepository{store: store}
}

func sortEvents(events []timeline.Event) {
	sort.Slice(events, func(i, j int) bool {
		return events[i].Before(&events[j])
	})
}

func (r *EventRepository) Append(ctx context.Context, event *timeline.Event) error {
	defer r.store.lock(ctx)()

	if _, ok := r.store.documents[event.DocumentID]; !ok {
		return &domain.NotFoundError{Message: "document not found: " + event.DocumentID}
	}
	if _, ok := r.store.events[event.ID]; ok {
		return domain.NewConflict("timeline_event", event.ID, "timeline event already exists")
	}
	if event.ReplyTo != nil {
		if _, ok := r.store.events[*event.ReplyTo]; !ok {
			return &domain.NotFoundError{Message: "timeline event not found: " + *event.ReplyTo}
		}
	}

	// Microsecond precision matches timestamptz
	at := event.CreatedAt.UTC().Truncate(time.Microsecond)
	c := r.store.cursors[event.DocumentID]
	if !c.lastAt.IsZero() && !at.After(c.lastAt) {
		at = c.lastAt.Add(time.Microsecond)
	}
	c.seq++
	c.lastAt = at
	r.store.cursors[event.DocumentID] = c

	event.Seq = c.seq
	event.CreatedAt = c.lastAt
	event.UpdatedAt = c.lastAt

	stored := *event
	stored.Replies = nil
	r.store.events[event.ID] = stored
	return nil
}

func (r *EventRepository) GetByID(ctx context.Context, id string) (*timeline.Event, error) {
	defer r.store.lock(ctx)()

	e, ok := r.store.events[id]
	if !ok {
		return nil, &domain.NotFoundError{Message: "timeline event not found: " + id}
	}
	return &e, nil
}

func (r *EventRepository) UpdatePayload(ctx context.Context, id string, payload timeline.Payload) (*timeline.Event, error) {
	defer r.store.lock(ctx)()

	e, ok := r.store.events[id]
	if !ok || e.Kind() != payload.Kind() {
		return nil, &domain.NotFoundError{Message: "timeline event not found: " + id}
	}
	// Round-trip through the storage encoding so rendered fields are dropped
	raw, err := timeline.EncodePayload(payload)
	if err != nil {
		return nil, err
	}
	stored, err := timeline.DecodePayload(payload.Kind(), raw)
	if err != nil {
		return nil, err
	}
	e.Payload = stored
	e.UpdatedAt = time.Now().UTC()
	r.store.events[id] = e
	return &e, nil
}

func (r *EventRepository) Delete(ctx context.Context, ids []string) error {
	defer r.store.lock(ctx)()

	for _, id := range ids {
		delete(r.store.events, id)
	}
	return nil
}

func (r *EventRepository) ListReplies(ctx context.Context, parentID string) ([]timeline.Event, error) {
	defer r.store.lock(ctx)()

	var out []timeline.Event
	for _, e := range r.store.events {
		if e.ReplyTo != nil && *e.ReplyTo == parentID {
			out = append(out, e)
		}
	}
	sortEvents(out)
	return out, nil
}

func (r *EventRepository) ListByDocument(ctx context.Context, documentID string) ([]timeline.Event, error) {
	defer r.store.lock(ctx)()

	var out []timeline.Event
	for _, e := range r.store.events {
		if e.DocumentID == documentID {
			out = append(out, e)
		}
	}
	sortEvents(out)
	return out, nil
}
