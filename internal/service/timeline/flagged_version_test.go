package timeline

import (
	"context"
	"errors"
	"testing"

	"folio/internal/domain"
	"folio/internal/domain/models/fanout"
	"folio/internal/domain/models/revision"
	models "folio/internal/domain/models/timeline"
)

func TestFlaggedVersion_CreateRendersOnUpdateEvent(t *testing.T) {
	f := newFixture(t)
	f.createDocument(t, "doc", "owner")
	ctx := context.Background()

	update := f.appendEvent(t, "doc", "owner", models.UpdatePayload{ContentAddress: "a1", Summary: "draft"}, nil)
	marker := f.appendEvent(t, "doc", "owner", models.MarkerPayload{Label: "m"}, nil)

	fv, err := f.fvSvc.Create(ctx, "owner", "  Release 1 ", update.ID)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if fv.Name != "Release 1" || fv.ContentAddressID != "a1" || fv.DocumentID != "doc" {
		t.Errorf("flagged version = %+v", fv)
	}

	forest, err := f.svc.List(ctx, "owner", "doc", models.FilterEdits)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	p := forest[0].Payload.(models.UpdatePayload)
	if p.FlaggedVersionID == nil || *p.FlaggedVersionID != fv.ID || *p.FlaggedVersionName != "Release 1" || *p.FlaggedByUser != "owner" {
		t.Errorf("rendered metadata = %+v", p)
	}
	if p.Summary != "draft" || p.ContentAddress != "a1" {
		t.Errorf("immutable fields changed: %+v", p)
	}

	updated := f.publisher.ofType(fanout.TimelineUpdated)
	if len(updated) != 1 {
		t.Fatalf("timeline.updated published %d times, want 1", len(updated))
	}
	if got := updated[0].data.(*models.Event).Payload.(models.UpdatePayload); got.FlaggedVersionID == nil {
		t.Errorf("published event is not rendered: %+v", got)
	}

	if _, err := f.fvSvc.Create(ctx, "owner", "again", update.ID); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("second flag err = %v, want Conflict", err)
	}
	if _, err := f.fvSvc.Create(ctx, "owner", "marker", marker.ID); !errors.Is(err, domain.ErrInvalidOperation) {
		t.Errorf("marker flag err = %v, want InvalidOperation", err)
	}
	if _, err := f.fvSvc.Create(ctx, "owner", "", update.ID); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("empty name err = %v, want Validation", err)
	}
	if _, err := f.fvSvc.Create(ctx, "stranger", "x", update.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("stranger err = %v, want Forbidden", err)
	}
}

func TestFlaggedVersion_EditMovesBookmark(t *testing.T) {
	f := newFixture(t)
	f.createDocument(t, "doc", "owner")
	f.createDocument(t, "other", "owner")
	ctx := context.Background()

	first := f.appendEvent(t, "doc", "owner", models.UpdatePayload{ContentAddress: "a1"}, nil)
	second := f.appendEvent(t, "doc", "owner", models.UpdatePayload{ContentAddress: "a2"}, nil)
	foreign := f.appendEvent(t, "other", "owner", models.UpdatePayload{ContentAddress: "b1"}, nil)

	fv, err := f.fvSvc.Create(ctx, "owner", "v1", first.ID)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	edited, err := f.fvSvc.Edit(ctx, "owner", fv.ID, "v2", second.ID)
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if edited.UpdateEventID != second.ID || edited.ContentAddressID != "a2" || edited.Name != "v2" {
		t.Errorf("edited = %+v", edited)
	}

	// Both the old and the new event are re-rendered
	if n := len(f.publisher.ofType(fanout.TimelineUpdated)); n != 3 {
		t.Errorf("timeline.updated published %d times, want 3", n)
	}

	if _, err := f.fvSvc.Edit(ctx, "owner", fv.ID, "v2", foreign.ID); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("cross-document edit err = %v, want Validation", err)
	}
	if _, err := f.fvSvc.Edit(ctx, "owner", "missing", "v2", second.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("missing err = %v, want NotFound", err)
	}
}

func TestFlaggedVersion_Delete(t *testing.T) {
	f := newFixture(t)
	f.createDocument(t, "doc", "owner")
	ctx := context.Background()

	first := f.appendEvent(t, "doc", "owner", models.UpdatePayload{ContentAddress: "a1"}, nil)
	second := f.appendEvent(t, "doc", "owner", models.UpdatePayload{ContentAddress: "a2"}, nil)

	fv, err := f.fvSvc.Create(ctx, "owner", "v1", first.ID)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Stale reference: the bookmark points at first, not second
	if err := f.fvSvc.Delete(ctx, "owner", fv.ID, second.ID); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("stale delete err = %v, want Conflict", err)
	}
	if _, err := f.flagged.GetByID(ctx, fv.ID); err != nil {
		t.Fatalf("registry changed after failed delete: %v", err)
	}

	if err := f.fvSvc.Delete(ctx, "owner", fv.ID, first.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := f.flagged.GetByID(ctx, fv.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("bookmark still present: %v", err)
	}
	if _, err := f.events.GetByID(ctx, first.ID); err != nil {
		t.Fatalf("deleting a bookmark removed its event: %v", err)
	}

	if err := f.fvSvc.Delete(ctx, "owner", fv.ID, first.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("repeat delete err = %v, want NotFound", err)
	}
}

func TestFlaggedVersion_ReleasedWithItsMessage(t *testing.T) {
	f := newFixture(t)
	f.createDocument(t, "doc", "owner")
	ctx := context.Background()

	if err := f.messages.Create(ctx, &revision.Message{ID: "m1", ContainerID: "doc", DocumentID: "doc", AuthorID: "owner"}); err != nil {
		t.Fatalf("create message: %v", err)
	}
	comment := f.appendEvent(t, "doc", "owner", models.MessagePayload{MessageID: "m1"}, nil)
	messageID := "m1"
	update := f.appendEvent(t, "doc", "owner", models.UpdatePayload{ContentAddress: "a1", MessageID: &messageID, Summary: "s"}, nil)
	other := f.appendEvent(t, "doc", "owner", models.UpdatePayload{ContentAddress: "a2", Summary: "manual"}, nil)

	fv, err := f.fvSvc.Create(ctx, "owner", "v1", update.ID)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	kept, err := f.fvSvc.Create(ctx, "owner", "v2", other.ID)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	before := len(f.publisher.ofType(fanout.TimelineUpdated))

	if err := f.svc.Delete(ctx, "owner", comment.ID, false); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	evt, err := f.events.GetByID(ctx, update.ID)
	if err != nil {
		t.Fatalf("update event removed: %v", err)
	}
	if p := evt.Payload.(models.UpdatePayload); p.MessageID != nil {
		t.Errorf("update still references message %s", *p.MessageID)
	}

	list, err := f.fvSvc.List(ctx, "owner", "doc")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].ID != kept.ID {
		t.Errorf("bookmarks = %+v, want only %s", list, kept.ID)
	}
	if err := f.fvSvc.Delete(ctx, "owner", fv.ID, update.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("delete of released bookmark err = %v, want NotFound", err)
	}

	updated := f.publisher.ofType(fanout.TimelineUpdated)[before:]
	if len(updated) != 1 {
		t.Fatalf("timeline.updated published %d times, want 1", len(updated))
	}
	rendered := updated[0].data.(*models.Event)
	if p := rendered.Payload.(models.UpdatePayload); rendered.ID != update.ID || p.FlaggedVersionID != nil || p.MessageID != nil {
		t.Errorf("published %s %+v, want the detached update without a bookmark", rendered.ID, p)
	}
}
