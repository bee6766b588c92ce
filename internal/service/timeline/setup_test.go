package timeline

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"folio/internal/domain/models/docsystem"
	"folio/internal/domain/models/fanout"
	models "folio/internal/domain/models/timeline"
	timelineSvc "folio/internal/domain/services/timeline"
	"folio/internal/repository/memory"
	"folio/internal/service/auth"
	fanoutSvc "folio/internal/service/fanout"
)

type appendRequest = timelineSvc.AppendRequest

// published is one captured Publish call
type published struct {
	topic     fanout.Topic
	eventType fanout.EventType
	data      any
}

// recordingPublisher captures published events in call order
type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *recordingPublisher) Publish(topic fanout.Topic, eventType fanout.EventType, data any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{topic: topic, eventType: eventType, data: data})
}

func (p *recordingPublisher) ofType(eventType fanout.EventType) []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []published
	for _, e := range p.events {
		if e.eventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	store     *memory.Store
	docs      *memory.DocumentRepository
	events    *memory.EventRepository
	messages  *memory.MessageRepository
	flagged   *memory.FlaggedVersionRepository
	publisher *recordingPublisher
	svc       *Service
	fvSvc     *flaggedVersionService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewStore()
	docs := memory.NewDocumentRepository(store)
	events := memory.NewEventRepository(store)
	messages := memory.NewMessageRepository(store)
	flagged := memory.NewFlaggedVersionRepository(store)
	publisher := &recordingPublisher{}

	cfg := Config{
		EventRepo:   events,
		FlaggedRepo: flagged,
		MessageRepo: messages,
		Authorizer:  auth.NewDocumentAccessAuthorizer(docs),
		TxManager:   memory.NewTransactionManager(store),
		Publisher:   publisher,
		Stripes:     fanoutSvc.NewStripes(4),
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	return &fixture{
		store:     store,
		docs:      docs.(*memory.DocumentRepository),
		events:    events.(*memory.EventRepository),
		messages:  messages.(*memory.MessageRepository),
		flagged:   flagged.(*memory.FlaggedVersionRepository),
		publisher: publisher,
		svc:       NewService(cfg),
		fvSvc:     NewFlaggedVersionService(cfg).(*flaggedVersionService),
	}
}

// createDocument stores a document owned by owner with the given editors
func (f *fixture) createDocument(t *testing.T, id, owner string, editors ...string) {
	t.Helper()
	doc := &docsystem.Document{ID: id, Title: id, OwnedBy: owner, Editors: editors, RootParentID: id}
	if err := f.docs.Create(context.Background(), doc); err != nil {
		t.Fatalf("create document: %v", err)
	}
}

func (f *fixture) appendEvent(t *testing.T, docID, author string, payload models.Payload, replyTo *string) *models.Event {
	t.Helper()
	evt, err := f.svc.Append(context.Background(), &appendRequest{DocumentID: docID, AuthorID: author, Payload: payload, ReplyTo: replyTo})
	if err != nil {
		t.Fatalf("append %s: %v", payload.Kind(), err)
	}
	return evt
}
