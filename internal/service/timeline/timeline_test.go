package timeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"folio/internal/domain"
	"folio/internal/domain/models/fanout"
	"folio/internal/domain/models/revision"
	models "folio/internal/domain/models/timeline"
)

func TestAppend_ReplyToReplyIsReparented(t *testing.T) {
	f := newFixture(t)
	f.createDocument(t, "doc", "owner")

	root := f.appendEvent(t, "doc", "owner", models.MarkerPayload{Label: "root"}, nil)
	reply := f.appendEvent(t, "doc", "owner", models.MarkerPayload{Label: "reply"}, &root.ID)
	nested := f.appendEvent(t, "doc", "owner", models.MarkerPayload{Label: "nested"}, &reply.ID)

	if nested.ReplyTo == nil || *nested.ReplyTo != root.ID {
		t.Fatalf("nested reply_to = %v, want %s", nested.ReplyTo, root.ID)
	}

	forest, err := f.svc.List(context.Background(), "owner", "doc", models.FilterAll)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(forest) != 1 {
		t.Fatalf("top-level events = %d, want 1", len(forest))
	}
	if got := len(forest[0].Replies); got != 2 {
		t.Fatalf("replies = %d, want 2", got)
	}
	if forest[0].Replies[0].ID != reply.ID || forest[0].Replies[1].ID != nested.ID {
		t.Errorf("replies out of order: %s, %s", forest[0].Replies[0].ID, forest[0].Replies[1].ID)
	}
}

func TestAppend_UnknownDocument(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Append(context.Background(), &appendRequest{
		DocumentID: "missing",
		AuthorID:   "owner",
		Payload:    models.JoinPayload{},
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want NotFound", err)
	}
}

func TestAppendMarker_RequiresCommentAccess(t *testing.T) {
	f := newFixture(t)
	f.createDocument(t, "doc", "owner")

	if _, err := f.svc.AppendMarker(context.Background(), "stranger", "doc", "hello"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("stranger err = %v, want Forbidden", err)
	}
	if _, err := f.svc.AppendMarker(context.Background(), "owner", "doc", ""); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("empty label err = %v, want Validation", err)
	}
	if _, err := f.svc.AppendMarker(context.Background(), "owner", "doc", "v1 shipped"); err != nil {
		t.Fatalf("AppendMarker: %v", err)
	}
}

func TestList_CanonicalOrderUnderConcurrentAppends(t *testing.T) {
	f := newFixture(t)
	f.createDocument(t, "doc", "owner")

	const writers, perWriter = 8, 25
	var wg sync.WaitGroup
	errs := make(chan error, writers*perWriter)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_, err := f.svc.Append(context.Background(), &appendRequest{
					DocumentID: "doc",
					AuthorID:   "owner",
					Payload:    models.MarkerPayload{Label: fmt.Sprintf("w%d-%d", w, i)},
				})
				if err != nil {
					errs <- err
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("Append: %v", err)
	}

	forest, err := f.svc.List(context.Background(), "owner", "doc", models.FilterAll)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(forest) != writers*perWriter {
		t.Fatalf("events = %d, want %d", len(forest), writers*perWriter)
	}
	for i := 1; i < len(forest); i++ {
		if !forest[i-1].Before(&forest[i]) {
			t.Fatalf("event %d (%s) does not sort before event %d (%s)", i-1, forest[i-1].ID, i, forest[i].ID)
		}
		if forest[i].Seq != forest[i-1].Seq+1 {
			t.Fatalf("seq gap at %d: %d after %d", i, forest[i].Seq, forest[i-1].Seq)
		}
	}

	// Fan-out order must equal append order
	inserted := f.publisher.ofType(fanout.TimelineInserted)
	if len(inserted) != len(forest) {
		t.Fatalf("published = %d, want %d", len(inserted), len(forest))
	}
	for i, p := range inserted {
		evt := p.data.(*models.Event)
		if evt.ID != forest[i].ID {
			t.Fatalf("published[%d] = %s, want %s", i, evt.ID, forest[i].ID)
		}
	}
}

func TestList_Filters(t *testing.T) {
	f := newFixture(t)
	f.createDocument(t, "doc", "owner")
	ctx := context.Background()

	msg := &revision.Message{
		ID:             "m1",
		ContainerID:    "doc",
		DocumentID:     "doc",
		Content:        "looks good",
		LifecycleStage: revision.StageCompleted,
		AuthorID:       "owner",
		CreatedAt:      time.Now(),
	}
	if err := f.messages.Create(ctx, msg); err != nil {
		t.Fatalf("create message: %v", err)
	}

	f.appendEvent(t, "doc", "owner", models.JoinPayload{}, nil)
	comment := f.appendEvent(t, "doc", "owner", models.MessagePayload{MessageID: "m1"}, nil)
	f.appendEvent(t, "doc", "owner", models.MessageResolutionPayload{MessageEventID: comment.ID, Resolved: true}, &comment.ID)
	f.appendEvent(t, "doc", "owner", models.UpdatePayload{ContentAddress: "a1", Summary: "edit"}, nil)
	f.appendEvent(t, "doc", "owner", models.AttributeChangePayload{Attribute: "title"}, nil)

	tests := []struct {
		filter models.Filter
		want   []models.PayloadKind
	}{
		{models.FilterAll, []models.PayloadKind{models.KindJoin, models.KindMessage, models.KindUpdate, models.KindAttributeChange}},
		{models.FilterComments, []models.PayloadKind{models.KindMessage}},
		{models.FilterEdits, []models.PayloadKind{models.KindUpdate, models.KindAttributeChange}},
	}

	for _, tt := range tests {
		t.Run(string(tt.filter), func(t *testing.T) {
			forest, err := f.svc.List(ctx, "owner", "doc", tt.filter)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(forest) != len(tt.want) {
				t.Fatalf("events = %d, want %d", len(forest), len(tt.want))
			}
			for i, kind := range tt.want {
				if forest[i].Kind() != kind {
					t.Errorf("event %d kind = %s, want %s", i, forest[i].Kind(), kind)
				}
			}
		})
	}

	forest, _ := f.svc.List(ctx, "owner", "doc", models.FilterComments)
	p := forest[0].Payload.(models.MessagePayload)
	if p.Content == nil || *p.Content != "looks good" {
		t.Errorf("message content not rendered: %v", p.Content)
	}
	if len(forest[0].Replies) != 1 || forest[0].Replies[0].Kind() != models.KindMessageResolution {
		t.Errorf("resolution reply not inlined: %+v", forest[0].Replies)
	}
}

func TestEditUpdateSummary(t *testing.T) {
	f := newFixture(t)
	f.createDocument(t, "doc", "owner", "editor")
	ctx := context.Background()

	update := f.appendEvent(t, "doc", "owner", models.UpdatePayload{ContentAddress: "a1", Summary: "old"}, nil)
	marker := f.appendEvent(t, "doc", "owner", models.MarkerPayload{Label: "m"}, nil)

	title := "Rewrite intro"
	got, err := f.svc.EditUpdateSummary(ctx, "editor", update.ID, "new", &title)
	if err != nil {
		t.Fatalf("EditUpdateSummary: %v", err)
	}
	p := got.Payload.(models.UpdatePayload)
	if p.Summary != "new" || p.Title == nil || *p.Title != title || p.ContentAddress != "a1" {
		t.Errorf("payload = %+v", p)
	}
	if n := len(f.publisher.ofType(fanout.TimelineUpdated)); n != 1 {
		t.Errorf("timeline.updated published %d times, want 1", n)
	}

	if _, err := f.svc.EditUpdateSummary(ctx, "owner", marker.ID, "x", nil); !errors.Is(err, domain.ErrInvalidOperation) {
		t.Errorf("marker err = %v, want InvalidOperation", err)
	}
	if _, err := f.svc.EditUpdateSummary(ctx, "stranger", update.ID, "x", nil); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("stranger err = %v, want Forbidden", err)
	}
	if _, err := f.svc.EditUpdateSummary(ctx, "owner", "missing", "x", nil); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("missing err = %v, want NotFound", err)
	}
}

func TestMessageResolution(t *testing.T) {
	f := newFixture(t)
	f.createDocument(t, "doc", "owner", "alice", "bob")
	ctx := context.Background()

	comment := f.appendEvent(t, "doc", "alice", models.MessagePayload{MessageID: "m1"}, nil)
	update := f.appendEvent(t, "doc", "owner", models.UpdatePayload{ContentAddress: "a1"}, nil)

	if _, err := f.svc.ResolveMessage(ctx, "alice", update.ID, true, ""); !errors.Is(err, domain.ErrInvalidOperation) {
		t.Fatalf("resolving an update err = %v, want InvalidOperation", err)
	}

	res, err := f.svc.ResolveMessage(ctx, "alice", comment.ID, true, "fixed")
	if err != nil {
		t.Fatalf("ResolveMessage: %v", err)
	}
	if res.ReplyTo == nil || *res.ReplyTo != comment.ID {
		t.Fatalf("resolution reply_to = %v, want %s", res.ReplyTo, comment.ID)
	}

	if _, err := f.svc.EditMessageResolution(ctx, "bob", res.ID, false, "reopen"); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("non-author edit err = %v, want Forbidden", err)
	}
	if _, err := f.svc.EditMessageResolution(ctx, "alice", update.ID, false, ""); !errors.Is(err, domain.ErrInvalidOperation) {
		t.Errorf("wrong kind err = %v, want InvalidOperation", err)
	}

	edited, err := f.svc.EditMessageResolution(ctx, "alice", res.ID, false, "reopened")
	if err != nil {
		t.Fatalf("EditMessageResolution: %v", err)
	}
	if p := edited.Payload.(models.MessageResolutionPayload); p.Resolved || p.Summary != "reopened" {
		t.Errorf("payload = %+v", p)
	}

	if _, err := f.svc.ForceMessageResolutionSummary(ctx, "bob", res.ID, "forced"); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("editor force err = %v, want Forbidden", err)
	}
	forced, err := f.svc.ForceMessageResolutionSummary(ctx, "owner", res.ID, "forced")
	if err != nil {
		t.Fatalf("ForceMessageResolutionSummary: %v", err)
	}
	if p := forced.Payload.(models.MessageResolutionPayload); p.Summary != "forced" || p.Resolved {
		t.Errorf("payload = %+v", p)
	}
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	f.createDocument(t, "doc", "owner", "alice", "bob")
	ctx := context.Background()

	if err := f.messages.Create(ctx, &revision.Message{ID: "m1", ContainerID: "doc", DocumentID: "doc", AuthorID: "alice"}); err != nil {
		t.Fatalf("create message: %v", err)
	}
	comment := f.appendEvent(t, "doc", "alice", models.MessagePayload{MessageID: "m1"}, nil)
	reply := f.appendEvent(t, "doc", "bob", models.MarkerPayload{Label: "+1"}, &comment.ID)
	marker := f.appendEvent(t, "doc", "alice", models.MarkerPayload{Label: "m"}, nil)

	tests := []struct {
		name          string
		userID        string
		eventID       string
		deleteReplies bool
		wantErr       error
	}{
		{"non-message kind", "alice", marker.ID, false, domain.ErrInvalidOperation},
		{"not the author", "bob", comment.ID, true, domain.ErrForbidden},
		{"replies without cascade", "alice", comment.ID, false, domain.ErrConflict},
		{"missing event", "alice", "missing", false, domain.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.svc.Delete(ctx, tt.userID, tt.eventID, tt.deleteReplies)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}

	// Failed attempts left everything in place
	if _, err := f.events.GetByID(ctx, reply.ID); err != nil {
		t.Fatalf("reply gone after failed delete: %v", err)
	}

	if err := f.svc.Delete(ctx, "alice", comment.ID, true); err != nil {
		t.Fatalf("Delete with cascade: %v", err)
	}
	for _, id := range []string{comment.ID, reply.ID} {
		if _, err := f.events.GetByID(ctx, id); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("event %s still present: %v", id, err)
		}
	}
	if _, err := f.messages.GetByID(ctx, "m1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("message record still present: %v", err)
	}
	if n := len(f.publisher.ofType(fanout.TimelineDeleted)); n != 2 {
		t.Errorf("timeline.deleted published %d times, want 2", n)
	}
}
