package revision

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	mstream "github.com/haowjy/meridian-stream-go"

	"folio/internal/domain/models/docsystem"
	"folio/internal/domain/models/revision"
	revisionSvc "folio/internal/domain/services/revision"
	"folio/internal/repository/memory"
)

type outcome struct {
	messageID string
	addressID string
	reason    string
}

// fakeCompleter reports outcomes on channels
type fakeCompleter struct {
	completed chan outcome
	failed    chan outcome
}

func newFakeCompleter() *fakeCompleter {
	return &fakeCompleter{
		completed: make(chan outcome, 4),
		failed:    make(chan outcome, 4),
	}
}

func (c *fakeCompleter) ReviseComplete(ctx context.Context, messageID, addressID string) (*revision.Message, error) {
	c.completed <- outcome{messageID: messageID, addressID: addressID}
	return &revision.Message{ID: messageID}, nil
}

func (c *fakeCompleter) FailRevision(ctx context.Context, messageID, reason string) (*revision.Message, error) {
	c.failed <- outcome{messageID: messageID, reason: reason}
	return &revision.Message{ID: messageID}, nil
}

// blockingReviser waits for its context to end
type blockingReviser struct {
	started chan struct{}
}

func (r *blockingReviser) Revise(ctx context.Context, in *revisionSvc.ReviseInput) ([]byte, error) {
	close(r.started)
	<-ctx.Done()
	return nil, ctx.Err()
}

func newRunnerEnv(t *testing.T, reviser revisionSvc.Reviser, timeout time.Duration) (*StreamRunner, *fakeCompleter, *memory.ContentAddressRepository) {
	t.Helper()
	store := memory.NewStore()
	docs := memory.NewDocumentRepository(store)
	contents := memory.NewContentAddressRepository(store)
	if err := docs.Create(context.Background(), &docsystem.Document{ID: "doc", OwnedBy: "owner", RootParentID: "doc"}); err != nil {
		t.Fatalf("create document: %v", err)
	}

	runner := NewStreamRunner(mstream.NewRegistry(), contents, reviser, timeout, slog.New(slog.NewTextHandler(io.Discard, nil)))
	completer := newFakeCompleter()
	runner.Attach(completer)
	return runner, completer, contents.(*memory.ContentAddressRepository)
}

func waitFor(t *testing.T, ch <-chan outcome) outcome {
	t.Helper()
	select {
	case o := <-ch:
		return o
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the runner")
		return outcome{}
	}
}

func TestStreamRunner_StoresProposal(t *testing.T) {
	runner, completer, contents := newRunnerEnv(t, NewDirectReviser(nil), time.Minute)

	runner.Submit(&revision.Message{
		ID:          "m1",
		DocumentID:  "doc",
		AuthorID:    "owner",
		Attachments: revision.Attachments{revision.RevisionAttachment{ProposedPayload: []byte("new text")}},
	})

	got := waitFor(t, completer.completed)
	if got.messageID != "m1" {
		t.Fatalf("completed %q, want m1", got.messageID)
	}
	addr, err := contents.Get(context.Background(), "doc", got.addressID)
	if err != nil {
		t.Fatalf("proposal not stored: %v", err)
	}
	if string(addr.Payload) != "new text" {
		t.Errorf("payload = %q", addr.Payload)
	}
	if err := runner.Wait(context.Background()); err != nil {
		t.Errorf("Wait: %v", err)
	}
}

func TestStreamRunner_FailureIsRecorded(t *testing.T) {
	runner, completer, _ := newRunnerEnv(t, NewDirectReviser(nil), time.Minute)

	// Empty base: the suggestion cannot apply
	runner.Submit(&revision.Message{
		ID:          "m1",
		DocumentID:  "doc",
		Attachments: revision.Attachments{revision.SuggestionAttachment{Original: "old", Replacement: "new"}},
	})

	got := waitFor(t, completer.failed)
	if got.reason != ErrSuggestionStale.Error() {
		t.Errorf("reason = %q", got.reason)
	}
}

func TestStreamRunner_Timeout(t *testing.T) {
	reviser := &blockingReviser{started: make(chan struct{})}
	runner, completer, _ := newRunnerEnv(t, reviser, 50*time.Millisecond)

	runner.Submit(&revision.Message{
		ID:          "m1",
		DocumentID:  "doc",
		Attachments: revision.Attachments{revision.RevisionAttachment{Instructions: "rewrite"}},
	})

	got := waitFor(t, completer.failed)
	if !strings.Contains(got.reason, "timed out") {
		t.Errorf("reason = %q, want a timeout", got.reason)
	}
}

func TestStreamRunner_Cancel(t *testing.T) {
	reviser := &blockingReviser{started: make(chan struct{})}
	runner, completer, _ := newRunnerEnv(t, reviser, time.Minute)

	if runner.Cancel("m1") {
		t.Error("Cancel reported a job that was never submitted")
	}

	runner.Submit(&revision.Message{
		ID:          "m1",
		DocumentID:  "doc",
		Attachments: revision.Attachments{revision.RevisionAttachment{Instructions: "rewrite"}},
	})
	<-reviser.started

	if !runner.Cancel("m1") {
		t.Fatal("Cancel did not find the running job")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := runner.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	// The canceller records the failure, not the runner
	select {
	case o := <-completer.failed:
		t.Errorf("cancelled job reported failure: %+v", o)
	case o := <-completer.completed:
		t.Errorf("cancelled job completed: %+v", o)
	default:
	}
	if runner.Cancel("m1") {
		t.Error("Cancel found a finished job")
	}
}

func TestDirectReviser(t *testing.T) {
	llm := reviserFunc(func(ctx context.Context, in *revisionSvc.ReviseInput) ([]byte, error) {
		return []byte("from model"), nil
	})

	tests := []struct {
		name    string
		next    revisionSvc.Reviser
		base    string
		attach  revision.Attachment
		want    string
		wantErr error
	}{
		{
			name:   "human edit passes through",
			attach: revision.RevisionAttachment{ProposedPayload: []byte("typed")},
			want:   "typed",
		},
		{
			name:   "suggestion replaces first occurrence",
			base:   "one two one",
			attach: revision.SuggestionAttachment{Original: "one", Replacement: "1"},
			want:   "1 two one",
		},
		{
			name:    "stale suggestion",
			base:    "one two",
			attach:  revision.SuggestionAttachment{Original: "three", Replacement: "3"},
			wantErr: ErrSuggestionStale,
		},
		{
			name:   "instructions go to the model",
			next:   llm,
			base:   "draft",
			attach: revision.RevisionAttachment{Instructions: "polish"},
			want:   "from model",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewDirectReviser(tt.next)
			got, err := r.Revise(context.Background(), &revisionSvc.ReviseInput{
				Base:        []byte(tt.base),
				Instruction: tt.attach,
			})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Revise: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}

	if _, err := NewDirectReviser(nil).Revise(context.Background(), &revisionSvc.ReviseInput{
		Instruction: revision.RevisionAttachment{Instructions: "polish"},
	}); err == nil {
		t.Error("instruction without a model succeeded")
	}
}

type reviserFunc func(ctx context.Context, in *revisionSvc.ReviseInput) ([]byte, error)

func (f reviserFunc) Revise(ctx context.Context, in *revisionSvc.ReviseInput) ([]byte, error) {
	return f(ctx, in)
}
