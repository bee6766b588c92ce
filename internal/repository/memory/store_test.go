package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"folio/internal/domain"
	"folio/internal/domain/models/docsystem"
	"folio/internal/domain/models/timeline"
)

func seedDocument(t *testing.T, store *Store, id string) {
	t.Helper()
	now := time.Now().UTC()
	err := NewDocumentRepository(store).Create(context.Background(), &docsystem.Document{
		ID:           id,
		Title:        id,
		OwnedBy:      "owner",
		RootParentID: id,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		t.Fatalf("create document: %v", err)
	}
}

func TestExecTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	seedDocument(t, store, "d1")

	docs := NewDocumentRepository(store)
	events := NewEventRepository(store)
	tm := NewTransactionManager(store)

	boom := errors.New("boom")
	err := tm.ExecTx(ctx, func(txCtx context.Context) error {
		if _, err := docs.AdvanceHead(txCtx, "d1", nil, "a1"); err != nil {
			return err
		}
		if err := events.Append(txCtx, &timeline.Event{ID: "e1", DocumentID: "d1", Payload: timeline.MarkerPayload{Label: "x"}}); err != nil {
			return err
		}
		// Nested calls join the outer transaction
		if err := tm.ExecTx(txCtx, func(context.Context) error { return nil }); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}

	doc, err := docs.GetByID(ctx, "d1")
	if err != nil {
		t.Fatal(err)
	}
	if doc.HeadAddress != nil || doc.HeadVersion != 0 {
		t.Errorf("head survived rollback: %v v%d", doc.HeadAddress, doc.HeadVersion)
	}
	if _, err := events.GetByID(ctx, "e1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("event survived rollback: %v", err)
	}

	// Sequence numbers restart from the restored cursor
	evt := &timeline.Event{ID: "e2", DocumentID: "d1", Payload: timeline.MarkerPayload{Label: "y"}}
	if err := events.Append(ctx, evt); err != nil {
		t.Fatal(err)
	}
	if evt.Seq != 1 {
		t.Errorf("seq = %d, want 1", evt.Seq)
	}
}

func TestAdvanceHead_CompareAndSwap(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	seedDocument(t, store, "d1")
	docs := NewDocumentRepository(store)

	a1, a2 := "a1", "a2"
	tests := []struct {
		name     string
		expected *string
		next     string
		wantVer  int64
		wantErr  error
	}{
		{"empty head", nil, a1, 1, nil},
		{"stale expectation", nil, a2, 0, domain.ErrConflict},
		{"current head", &a1, a2, 2, nil},
		{"old head", &a1, a1, 0, domain.ErrConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ver, err := docs.AdvanceHead(ctx, "d1", tt.expected, tt.next)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if ver != tt.wantVer {
				t.Errorf("version = %d, want %d", ver, tt.wantVer)
			}
		})
	}

	if _, err := docs.AdvanceHead(ctx, "missing", nil, a1); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("missing document err = %v, want NotFound", err)
	}
}

func TestContentAddressPut_Dedupes(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	seedDocument(t, store, "d1")
	seedDocument(t, store, "d2")
	repo := NewContentAddressRepository(store)

	payload := []byte("hello")
	put := func(id, docID string) (*docsystem.ContentAddress, bool) {
		addr := &docsystem.ContentAddress{
			ID:         id,
			DocumentID: docID,
			Hash:       docsystem.HashPayload(payload),
			Payload:    payload,
			Size:       len(payload),
		}
		created, err := repo.Put(ctx, addr)
		if err != nil {
			t.Fatalf("put %s: %v", id, err)
		}
		return addr, created
	}

	first, created := put("x1", "d1")
	if !created {
		t.Fatal("first put not created")
	}
	again, created := put("x2", "d1")
	if created || again.ID != first.ID {
		t.Errorf("duplicate put = %s created=%v, want existing %s", again.ID, created, first.ID)
	}
	// Stores are per document
	other, created := put("x3", "d2")
	if !created || other.ID != "x3" {
		t.Errorf("other document put = %s created=%v", other.ID, created)
	}

	// Callers cannot mutate stored bytes
	payload[0] = 'j'
	got, err := repo.Get(ctx, "d1", "x1")
	if err != nil {
		t.Fatal(err)
	}
	if string(got.Payload) != "hello" {
		t.Errorf("payload = %q, want hello", got.Payload)
	}

	meta, err := repo.Describe(ctx, "d1", "x1")
	if err != nil {
		t.Fatal(err)
	}
	if meta.Payload != nil || meta.Size != 5 {
		t.Errorf("describe = %+v", meta)
	}

	if _, err := repo.Get(ctx, "d2", "x1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("cross-document get err = %v, want NotFound", err)
	}
}

func TestEventAppend_MonotonicTimestamps(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	seedDocument(t, store, "d1")
	events := NewEventRepository(store)

	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var prev *timeline.Event
	for i, id := range []string{"e1", "e2", "e3"} {
		evt := &timeline.Event{ID: id, DocumentID: "d1", CreatedAt: at, Payload: timeline.MarkerPayload{Label: id}}
		if err := events.Append(ctx, evt); err != nil {
			t.Fatal(err)
		}
		if evt.Seq != int64(i+1) {
			t.Errorf("%s seq = %d, want %d", id, evt.Seq, i+1)
		}
		if prev != nil && !evt.CreatedAt.After(prev.CreatedAt) {
			t.Errorf("%s created_at %v not after %v", id, evt.CreatedAt, prev.CreatedAt)
		}
		prev = evt
	}

	if err := events.Append(ctx, &timeline.Event{ID: "e1", DocumentID: "d1", Payload: timeline.MarkerPayload{}}); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("duplicate id err = %v, want Conflict", err)
	}
	missing := "nope"
	if err := events.Append(ctx, &timeline.Event{ID: "e9", DocumentID: "d1", ReplyTo: &missing, Payload: timeline.MarkerPayload{}}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("dangling reply err = %v, want NotFound", err)
	}
}
