package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"folio/internal/domain"
	"folio/internal/domain/models/revision"
	revisionRepo "folio/internal/domain/repositories/revision"
)

// MessageRepository implements MessageRepository over a Store
type MessageRepository struct {
	store *Store
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(store *Store) revisionRepo.MessageRepository {
	return &MessageRepository{store: store}
}

func cloneMessage(m revision.Message) *revision.Message {
	m.Attachments = slices.Clone(m.Attachments)
	if m.Attachments == nil {
		m.Attachments = revision.Attachments{}
	}
	return &m
}

func (r *MessageRepository) notFound(id string) error {
	return &domain.NotFoundError{Message: "message not found: " + id}
}

func (r *MessageRepository) Create(ctx context.Context, msg *revision.Message) error {
	defer r.store.lock(ctx)()

	if _, ok := r.store.documents[msg.DocumentID]; !ok {
		return &domain.NotFoundError{Message: "document not found: " + msg.DocumentID}
	}
	if _, ok := r.store.messages[msg.ID]; ok {
		return domain.NewConflict("message", msg.ID, "message already exists")
	}
	r.store.messages[msg.ID] = *cloneMessage(*msg)
	return nil
}

func (r *MessageRepository) GetByID(ctx context.Context, id string) (*revision.Message, error) {
	defer r.store.lock(ctx)()

	m, ok := r.store.messages[id]
	if !ok {
		return nil, r.notFound(id)
	}
	return cloneMessage(m), nil
}

func (r *MessageRepository) GetByIDs(ctx context.Context, ids []string) (map[string]*revision.Message, error) {
	defer r.store.lock(ctx)()

	out := make(map[string]*revision.Message, len(ids))
	for _, id := range ids {
		if m, ok := r.store.messages[id]; ok {
			out[id] = cloneMessage(m)
		}
	}
	return out, nil
}

func (r *MessageRepository) Transition(ctx context.Context, t revision.MessageTransition) (*revision.Message, error) {
	defer r.store.lock(ctx)()

	m, ok := r.store.messages[t.MessageID]
	if !ok {
		return nil, r.notFound(t.MessageID)
	}
	guardsHold := m.LifecycleStage == t.FromStage &&
		(t.ExpectedAddress == nil || sameAddress(m.Metadata.ContentAddress, t.ExpectedAddress)) &&
		(!t.RequireUnspecified || m.Metadata.RevisionStatus == revision.StatusUnspecified)
	if !guardsHold {
		return nil, domain.NewConflict("message", t.MessageID, fmt.Sprintf(
			"message is %s, expected %s with the given content address", m.LifecycleStage, t.FromStage))
	}

	m.LifecycleStage = t.ToStage
	if t.Reason != nil {
		m.LifecycleReason = t.Reason
	}
	m.Metadata = t.Metadata
	if t.AppendAttachment != nil {
		m.Attachments = append(slices.Clone(m.Attachments), t.AppendAttachment)
	}
	m.UpdatedAt = time.Now().UTC()
	r.store.messages[t.MessageID] = m
	return cloneMessage(m), nil
}

func (r *MessageRepository) UpdateContent(ctx context.Context, id, content string) (*revision.Message, error) {
	defer r.store.lock(ctx)()

	m, ok := r.store.messages[id]
	if !ok {
		return nil, r.notFound(id)
	}
	m.Content = content
	m.UpdatedAt = time.Now().UTC()
	r.store.messages[id] = m
	return cloneMessage(m), nil
}

func (r *MessageRepository) SetHidden(ctx context.Context, id string, hidden bool) (*revision.Message, error) {
	defer r.store.lock(ctx)()

	m, ok := r.store.messages[id]
	if !ok {
		return nil, r.notFound(id)
	}
	m.Hidden = hidden
	m.UpdatedAt = time.Now().UTC()
	r.store.messages[id] = m
	return cloneMessage(m), nil
}

func (r *MessageRepository) SetTimelineEvent(ctx context.Context, id, eventID string) error {
	defer r.store.lock(ctx)()

	m, ok := r.store.messages[id]
	if !ok {
		return r.notFound(id)
	}
	m.TimelineEventID = &eventID
	r.store.messages[id] = m
	return nil
}

func (r *MessageRepository) Delete(ctx context.Context, ids []string) error {
	defer r.store.lock(ctx)()

	for _, id := range ids {
		delete(r.store.messages, id)
	}
	return nil
}

func (r *MessageRepository) ListByThread(ctx context.Context, threadID string) ([]revision.Message, error) {
	defer r.store.lock(ctx)()

	var out []revision.Message
	for _, m := range r.store.messages {
		if m.ThreadID != nil && *m.ThreadID == threadID {
			out = append(out, *cloneMessage(m))
		}
	}
	sortMessages(out)
	return out, nil
}

func (r *MessageRepository) ListByStage(ctx context.Context, stage revision.LifecycleStage) ([]revision.Message, error) {
	defer r.store.lock(ctx)()

	var out []revision.Message
	for _, m := range r.store.messages {
		if m.LifecycleStage == stage {
			out = append(out, *cloneMessage(m))
		}
	}
	sortMessages(out)
	return out, nil
}

func sortMessages(msgs []revision.Message) {
	sort.Slice(msgs, func(i, j int) bool {
		if !msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
		}
		return msgs[i].ID < msgs[j].ID
	})
}
