package revision

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"folio/internal/domain/models/docsystem"
	"folio/internal/domain/models/fanout"
	"folio/internal/domain/models/revision"
	revisionSvc "folio/internal/domain/services/revision"
	timelineSvc "folio/internal/domain/services/timeline"
	"folio/internal/repository/memory"
	"folio/internal/service/auth"
	fanoutSvc "folio/internal/service/fanout"
	timelineService "folio/internal/service/timeline"
)

type published struct {
	topic     fanout.Topic
	eventType fanout.EventType
	data      any
}

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

// fakeRunner records submissions and cancellations without running anything
type fakeRunner struct {
	mu        sync.Mutex
	submitted []string
	cancelled []string
}

func (r *fakeRunner) Submit(msg *revision.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.submitted = append(r.submitted, msg.ID)
}

func (r *fakeRunner) Cancel(messageID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelled = append(r.cancelled, messageID)
	return true
}

func (r *fakeRunner) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.submitted), len(r.cancelled)
}

type fixture struct {
	docs      *memory.DocumentRepository
	contents  *memory.ContentAddressRepository
	messages  *memory.MessageRepository
	events    *memory.EventRepository
	publisher *recordingPublisher
	runner    *fakeRunner
	timeline  *timelineService.Service
	flagged   timelineSvc.FlaggedVersionService
	svc       *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewStore()
	docs := memory.NewDocumentRepository(store)
	contents := memory.NewContentAddressRepository(store)
	events := memory.NewEventRepository(store)
	flagged := memory.NewFlaggedVersionRepository(store)
	messages := memory.NewMessageRepository(store)
	threads := memory.NewThreadRepository(store)
	authorizer := auth.NewDocumentAccessAuthorizer(docs)
	txManager := memory.NewTransactionManager(store)
	stripes := fanoutSvc.NewStripes(4)
	publisher := &recordingPublisher{}
	runner := &fakeRunner{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tlCfg := timelineService.Config{
		EventRepo:   events,
		FlaggedRepo: flagged,
		MessageRepo: messages,
		Authorizer:  authorizer,
		TxManager:   txManager,
		Publisher:   publisher,
		Stripes:     stripes,
		Logger:      logger,
	}
	tl := timelineService.NewService(tlCfg)

	svc := NewService(Config{
		MessageRepo: messages,
		ThreadRepo:  threads,
		DocRepo:     docs,
		ContentRepo: contents,
		Authorizer:  authorizer,
		TxManager:   txManager,
		Recorder:    tl,
		Timeline:    tl,
		Publisher:   publisher,
		Runner:      runner,
		Stripes:     stripes,
		Logger:      logger,
	})

	return &fixture{
		docs:      docs.(*memory.DocumentRepository),
		contents:  contents.(*memory.ContentAddressRepository),
		messages:  messages.(*memory.MessageRepository),
		events:    events.(*memory.EventRepository),
		publisher: publisher,
		runner:    runner,
		timeline:  tl,
		flagged:   timelineService.NewFlaggedVersionService(tlCfg),
		svc:       svc,
	}
}

// createDocument stores a document and, when content is given, installs it as head
func (f *fixture) createDocument(t *testing.T, id, owner, content string, editors ...string) {
	t.Helper()
	doc := &docsystem.Document{ID: id, Title: id, OwnedBy: owner, Editors: editors, RootParentID: id}
	if err := f.docs.Create(context.Background(), doc); err != nil {
		t.Fatalf("create document: %v", err)
	}
	if content != "" {
		addr := f.putContent(t, id, owner, content)
		if _, err := f.docs.AdvanceHead(context.Background(), id, nil, addr); err != nil {
			t.Fatalf("install head: %v", err)
		}
	}
}

func (f *fixture) putContent(t *testing.T, docID, userID, payload string) string {
	t.Helper()
	addr := &docsystem.ContentAddress{
		ID:         uuid.NewString(),
		DocumentID: docID,
		Hash:       docsystem.HashPayload([]byte(payload)),
		Payload:    []byte(payload),
		Size:       len(payload),
		CreatedBy:  userID,
		CreatedAt:  time.Now().UTC(),
	}
	if _, err := f.contents.Put(context.Background(), addr); err != nil {
		t.Fatalf("put content: %v", err)
	}
	return addr.ID
}

func (f *fixture) head(t *testing.T, docID string) *string {
	t.Helper()
	doc, err := f.docs.GetByID(context.Background(), docID)
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	return doc.HeadAddress
}

// proposeEdit submits an edit-implying message into the document thread
func (f *fixture) proposeEdit(t *testing.T, docID, author string) *revision.Message {
	t.Helper()
	msg, err := f.svc.CreateMessage(context.Background(), &revisionSvc.CreateMessageRequest{
		UserID:      author,
		DocumentID:  docID,
		Content:     "Tighten the intro",
		Attachments: revision.Attachments{revision.RevisionAttachment{Instructions: "shorter"}},
	})
	if err != nil {
		t.Fatalf("create edit message: %v", err)
	}
	return msg
}

// revise stores payload as the proposal of msg and completes the revision
func (f *fixture) revise(t *testing.T, msg *revision.Message, payload string) string {
	t.Helper()
	addr := f.putContent(t, msg.DocumentID, msg.AuthorID, payload)
	if _, err := f.svc.ReviseComplete(context.Background(), msg.ID, addr); err != nil {
		t.Fatalf("ReviseComplete: %v", err)
	}
	return addr
}
