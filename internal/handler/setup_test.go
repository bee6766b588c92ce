package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"folio/internal/domain/models/revision"
	"folio/internal/httputil"
	"folio/internal/repository/memory"
	"folio/internal/service/auth"
	serviceDocsys "folio/internal/service/docsystem"
	fanoutSvc "folio/internal/service/fanout"
	serviceRevision "folio/internal/service/revision"
	serviceTimeline "folio/internal/service/timeline"
)

const testUserHeader = "X-Test-User"

// idleRunner accepts revision jobs without running them; tests complete
// revisions through the message service directly
type idleRunner struct {
	mu        sync.Mutex
	submitted []string
}

func (r *idleRunner) Submit(msg *revision.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.submitted = append(r.submitted, msg.ID)
}

func (r *idleRunner) Cancel(string) bool { return false }

type testEnv struct {
	mux      http.Handler
	hub      *fanoutSvc.Hub
	messages *serviceRevision.Service
	runner   *idleRunner
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewStore()
	docs := memory.NewDocumentRepository(store)
	contents := memory.NewContentAddressRepository(store)
	events := memory.NewEventRepository(store)
	flagged := memory.NewFlaggedVersionRepository(store)
	messages := memory.NewMessageRepository(store)
	threads := memory.NewThreadRepository(store)
	txManager := memory.NewTransactionManager(store)
	authorizer := auth.NewDocumentAccessAuthorizer(docs)
	stripes := fanoutSvc.NewStripes(4)

	hub := fanoutSvc.NewHub(fanoutSvc.Config{Shards: 2, BufferSize: 16}, logger)
	t.Cleanup(hub.Close)

	timelineCfg := serviceTimeline.Config{
		EventRepo:   events,
		FlaggedRepo: flagged,
		MessageRepo: messages,
		Authorizer:  authorizer,
		TxManager:   txManager,
		Publisher:   hub,
		Stripes:     stripes,
		Logger:      logger,
	}
	timelineService := serviceTimeline.NewService(timelineCfg)
	flaggedService := serviceTimeline.NewFlaggedVersionService(timelineCfg)
	documentService := serviceDocsys.NewDocumentService(serviceDocsys.DocumentServiceConfig{
		DocRepo:     docs,
		ContentRepo: contents,
		Authorizer:  authorizer,
		TxManager:   txManager,
		Recorder:    timelineService,
		Publisher:   hub,
		Stripes:     stripes,
		Logger:      logger,
	})
	contentStore := serviceDocsys.NewContentStore(contents, authorizer, 1<<20, logger)

	runner := &idleRunner{}
	messageService := serviceRevision.NewService(serviceRevision.Config{
		MessageRepo: messages,
		ThreadRepo:  threads,
		DocRepo:     docs,
		ContentRepo: contents,
		Authorizer:  authorizer,
		TxManager:   txManager,
		Recorder:    timelineService,
		Timeline:    timelineService,
		Publisher:   hub,
		Runner:      runner,
		Stripes:     stripes,
		Logger:      logger,
	})

	mux := http.NewServeMux()
	routes := &Routes{
		Health:    NewHealthHandler(nil),
		Documents: NewDocumentHandler(documentService, contentStore, logger),
		Timeline:  NewTimelineHandler(timelineService, flaggedService, logger),
		Messages:  NewMessageHandler(messageService, logger),
		Events: NewEventsHandler(hub, documentService, messageService, EventsConfig{
			KeepAlive:      time.Hour,
			AllowedOrigins: []string{"*"},
		}, logger),
	}
	routes.Register(mux)

	// Stand-in for the auth middleware
	withUser := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mux.ServeHTTP(w, httputil.WithUserID(r, r.Header.Get(testUserHeader)))
	})

	return &testEnv{mux: withUser, hub: hub, messages: messageService, runner: runner}
}

// do performs a request as user and returns the recorder
func (e *testEnv) do(t *testing.T, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(testUserHeader, user)
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

// decode unmarshals the response body, failing on a status mismatch
func decode[T any](t *testing.T, rec *httptest.ResponseRecorder, wantStatus int) T {
	t.Helper()
	var out T
	if rec.Code != wantStatus {
		t.Fatalf("status = %d, want %d; body: %s", rec.Code, wantStatus, rec.Body.String())
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v; body: %s", err, rec.Body.String())
	}
	return out
}

// createDocument creates a document owned by owner and returns its id
func (e *testEnv) createDocument(t *testing.T, owner, title, content string, public bool) string {
	t.Helper()
	body := map[string]any{"title": title, "is_public": public}
	if content != "" {
		body["initial_payload"] = content
	}
	doc := decode[struct {
		ID string `json:"id"`
	}](t, e.do(t, http.MethodPost, "/api/documents", owner, body), http.StatusCreated)
	return doc.ID
}
