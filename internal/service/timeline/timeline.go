package timeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/oklog/ulid/v2"

	"folio/internal/config"
	"folio/internal/domain"
	"folio/internal/domain/models/docsystem"
	"folio/internal/domain/models/fanout"
	models "folio/internal/domain/models/timeline"
	"folio/internal/domain/repositories"
	revisionRepo "folio/internal/domain/repositories/revision"
	timelineRepo "folio/internal/domain/repositories/timeline"
	"folio/internal/domain/services"
	timelineSvc "folio/internal/domain/services/timeline"
	fanoutSvc "folio/internal/service/fanout"
)

// Service implements TimelineService and Recorder
type Service struct {
	eventRepo   timelineRepo.EventRepository
	flaggedRepo timelineRepo.FlaggedVersionRepository
	messageRepo revisionRepo.MessageRepository
	authorizer  services.DocumentAuthorizer
	txManager   repositories.TransactionManager
	publisher   services.EventPublisher
	stripes     *fanoutSvc.Stripes
	maxSummary  int
	logger      *slog.Logger
}

// Config groups the collaborators of the timeline service
type Config struct {
	EventRepo        timelineRepo.EventRepository
	FlaggedRepo      timelineRepo.FlaggedVersionRepository
	MessageRepo      revisionRepo.MessageRepository
	Authorizer       services.DocumentAuthorizer
	TxManager        repositories.TransactionManager
	Publisher        services.EventPublisher
	Stripes          *fanoutSvc.Stripes
	MaxSummaryLength int
	Logger           *slog.Logger
}

// NewService creates a new timeline service
func NewService(cfg Config) *Service {
	maxSummary := cfg.MaxSummaryLength
	if maxSummary <= 0 {
		maxSummary = config.MaxSummaryLength
	}
	return &Service{
		eventRepo:   cfg.EventRepo,
		flaggedRepo: cfg.FlaggedRepo,
		messageRepo: cfg.MessageRepo,
		authorizer:  cfg.Authorizer,
		txManager:   cfg.TxManager,
		publisher:   cfg.Publisher,
		stripes:     cfg.Stripes,
		maxSummary:  maxSummary,
		logger:      cfg.Logger,
	}
}

var (
	_ timelineSvc.TimelineService = (*Service)(nil)
	_ timelineSvc.Recorder        = (*Service)(nil)
)

// Record writes an event inside the caller's transaction. A reply to a reply
// is attached to the thread root so threads stay two levels deep.
func (s *Service) Record(ctx context.Context, req *timelineSvc.AppendRequest) (*models.Event, error) {
	if req.Payload == nil || !req.Payload.Kind().Valid() {
		return nil, &domain.ValidationError{Message: "timeline event payload is required"}
	}

	replyTo := req.ReplyTo
	if replyTo != nil {
		parent, err := s.eventRepo.GetByID(ctx, *replyTo)
		if err != nil {
			return nil, err
		}
		if parent.DocumentID != req.DocumentID {
			return nil, &domain.ValidationError{Message: "reply_to belongs to another document"}
		}
		if parent.ReplyTo != nil {
			replyTo = parent.ReplyTo
		}
	}

	evt := &models.Event{
		ID:         ulid.Make().String(),
		DocumentID: req.DocumentID,
		AuthorID:   req.AuthorID,
		CreatedAt:  time.Now().UTC(),
		ReplyTo:    replyTo,
		Payload:    req.Payload,
	}
	if err := s.eventRepo.Append(ctx, evt); err != nil {
		return nil, err
	}
	return evt, nil
}

// Append records an event in its own transaction and publishes it
func (s *Service) Append(ctx context.Context, req *timelineSvc.AppendRequest) (*models.Event, error) {
	defer s.stripes.Lock(req.DocumentID)()

	var evt *models.Event
	err := s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		var err error
		evt, err = s.Record(txCtx, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(fanout.DocumentTopic(evt.DocumentID), fanout.TimelineInserted, evt)
	s.logger.Debug("timeline event appended",
		"event_id", evt.ID,
		"document_id", evt.DocumentID,
		"kind", evt.Kind(),
		"seq", evt.Seq,
	)
	return evt, nil
}

// AppendMarker adds a user-authored marker
func (s *Service) AppendMarker(ctx context.Context, userID, documentID, label string) (*models.Event, error) {
	if err := validation.Validate(label,
		validation.Required,
		validation.RuneLength(1, config.MaxMarkerLabelLength),
	); err != nil {
		return nil, fmt.Errorf("%w: label: %v", domain.ErrValidation, err)
	}
	if _, err := s.authorizer.Authorize(ctx, userID, documentID, docsystem.AccessComment); err != nil {
		return nil, err
	}
	return s.Append(ctx, &timelineSvc.AppendRequest{
		DocumentID: documentID,
		AuthorID:   userID,
		Payload:    models.MarkerPayload{Label: label},
	})
}

// EditUpdateSummary rewrites the summary, and optionally the title, of an Update event
func (s *Service) EditUpdateSummary(ctx context.Context, userID, eventID, summary string, title *string) (*models.Event, error) {
	if err := s.validateSummary(summary); err != nil {
		return nil, err
	}
	if title != nil {
		if err := validation.Validate(*title, validation.RuneLength(0, config.MaxTitleLength)); err != nil {
			return nil, fmt.Errorf("%w: title: %v", domain.ErrValidation, err)
		}
	}

	evt, err := s.loadForEdit(ctx, userID, eventID, docsystem.AccessEdit, models.KindUpdate)
	if err != nil {
		return nil, err
	}

	return s.rewrite(ctx, evt, func(p models.Payload) models.Payload {
		update := p.(models.UpdatePayload)
		update.Summary = summary
		if title != nil {
			update.Title = copyString(title)
		}
		return update
	})
}

// EditMessageResolution rewrites a MessageResolution event. Only its author may.
func (s *Service) EditMessageResolution(ctx context.Context, userID, eventID string, resolved bool, summary string) (*models.Event, error) {
	if err := s.validateSummary(summary); err != nil {
		return nil, err
	}

	evt, err := s.loadForEdit(ctx, userID, eventID, docsystem.AccessComment, models.KindMessageResolution)
	if err != nil {
		return nil, err
	}
	if evt.AuthorID != userID {
		return nil, &domain.ForbiddenError{Message: "only the author can edit a resolution"}
	}

	return s.rewrite(ctx, evt, func(p models.Payload) models.Payload {
		res := p.(models.MessageResolutionPayload)
		res.Resolved = resolved
		res.Summary = summary
		return res
	})
}

// ForceMessageResolutionSummary lets the document owner rewrite any resolution summary
func (s *Service) ForceMessageResolutionSummary(ctx context.Context, userID, eventID, summary string) (*models.Event, error) {
	if err := s.validateSummary(summary); err != nil {
		return nil, err
	}

	evt, err := s.loadForEdit(ctx, userID, eventID, docsystem.AccessOwner, models.KindMessageResolution)
	if err != nil {
		return nil, err
	}

	return s.rewrite(ctx, evt, func(p models.Payload) models.Payload {
		res := p.(models.MessageResolutionPayload)
		res.Summary = summary
		return res
	})
}

// ResolveMessage appends a MessageResolution reply to a Message event
func (s *Service) ResolveMessage(ctx context.Context, userID, messageEventID string, resolved bool, summary string) (*models.Event, error) {
	if err := s.validateSummary(summary); err != nil {
		return nil, err
	}

	parent, err := s.eventRepo.GetByID(ctx, messageEventID)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorizer.Authorize(ctx, userID, parent.DocumentID, docsystem.AccessComment); err != nil {
		return nil, err
	}
	if parent.Kind() != models.KindMessage {
		return nil, &domain.InvalidOperationError{
			Message: fmt.Sprintf("only message events can be resolved, event %s is %s", parent.ID, parent.Kind()),
		}
	}

	return s.Append(ctx, &timelineSvc.AppendRequest{
		DocumentID: parent.DocumentID,
		AuthorID:   userID,
		ReplyTo:    &parent.ID,
		Payload: models.MessageResolutionPayload{
			MessageEventID: parent.ID,
			Resolved:       resolved,
			Summary:        summary,
		},
	})
}

// Delete removes a Message event authored by userID. Replies block the delete
// unless deleteReplies is set. Referenced messages and bookmarks bound to the
// removed events go with them.
func (s *Service) Delete(ctx context.Context, userID, eventID string, deleteReplies bool) error {
	evt, err := s.eventRepo.GetByID(ctx, eventID)
	if err != nil {
		return err
	}
	if _, err := s.authorizer.Authorize(ctx, userID, evt.DocumentID, docsystem.AccessComment); err != nil {
		return err
	}
	if evt.Kind() != models.KindMessage {
		return &domain.InvalidOperationError{
			Message: fmt.Sprintf("only message events can be deleted, event %s is %s", evt.ID, evt.Kind()),
		}
	}
	if evt.AuthorID != userID {
		return &domain.ForbiddenError{Message: "only the author can delete a message"}
	}

	defer s.stripes.Lock(evt.DocumentID)()

	var removed, detached []models.Event
	err = s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		var err error
		removed, detached, err = s.deleteThread(txCtx, eventID, deleteReplies)
		return err
	})
	if err != nil {
		return err
	}

	for _, e := range removed {
		s.publisher.Publish(fanout.DocumentTopic(e.DocumentID), fanout.TimelineDeleted, fanout.DeletedRef{
			ID:         e.ID,
			DocumentID: e.DocumentID,
		})
	}
	s.publishDetached(ctx, detached)

	s.logger.Info("timeline message deleted",
		"event_id", eventID,
		"document_id", evt.DocumentID,
		"events_removed", len(removed),
	)
	return nil
}

func (s *Service) deleteThread(ctx context.Context, eventID string, cascade bool) (removed, detached []models.Event, err error) {
	// Re-read inside the transaction: the event may have gone since the checks
	evt, err := s.eventRepo.GetByID(ctx, eventID)
	if err != nil {
		return nil, nil, err
	}
	replies, err := s.eventRepo.ListReplies(ctx, eventID)
	if err != nil {
		return nil, nil, err
	}
	if len(replies) > 0 && !cascade {
		return nil, nil, domain.NewConflict("timeline_event", eventID,
			fmt.Sprintf("event has %d repl(ies); set delete_replies to delete them", len(replies)))
	}

	removed = append(replies, *evt)
	ids := make([]string, 0, len(removed))
	var messageIDs []string
	for _, e := range removed {
		ids = append(ids, e.ID)
		if p, ok := e.Payload.(models.MessagePayload); ok {
			messageIDs = append(messageIDs, p.MessageID)
		}
	}

	if _, err := s.flaggedRepo.DeleteByEventIDs(ctx, ids); err != nil {
		return nil, nil, err
	}
	if len(messageIDs) > 0 {
		if detached, err = s.DetachMessages(ctx, evt.DocumentID, messageIDs); err != nil {
			return nil, nil, err
		}
		if err := s.messageRepo.Delete(ctx, messageIDs); err != nil {
			return nil, nil, err
		}
	}
	if err := s.eventRepo.Delete(ctx, ids); err != nil {
		return nil, nil, err
	}
	return removed, detached, nil
}

// DetachMessages unlinks the document's Update events from messages that are
// being deleted and drops the bookmarks on those events. It runs in the
// caller's transaction; the caller publishes the returned events after commit.
func (s *Service) DetachMessages(ctx context.Context, documentID string, messageIDs []string) ([]models.Event, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}
	gone := make(map[string]bool, len(messageIDs))
	for _, id := range messageIDs {
		gone[id] = true
	}

	events, err := s.eventRepo.ListByDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	var detached []models.Event
	var updateIDs []string
	for _, e := range events {
		p, ok := e.Payload.(models.UpdatePayload)
		if !ok || p.MessageID == nil || !gone[*p.MessageID] {
			continue
		}
		p.MessageID = nil
		updated, err := s.eventRepo.UpdatePayload(ctx, e.ID, p)
		if err != nil {
			return nil, err
		}
		detached = append(detached, *updated)
		updateIDs = append(updateIDs, e.ID)
	}
	if len(updateIDs) > 0 {
		if _, err := s.flaggedRepo.DeleteByEventIDs(ctx, updateIDs); err != nil {
			return nil, err
		}
	}
	return detached, nil
}

func (s *Service) publishDetached(ctx context.Context, events []models.Event) {
	for i := range events {
		if err := s.publishUpdated(ctx, &events[i]); err != nil {
			s.logger.Warn("failed to publish detached update event", "event_id", events[i].ID, "error", err)
		}
	}
}

// List returns the document's timeline as a forest in canonical order.
// The filter selects top-level events; replies always travel with their parent.
func (s *Service) List(ctx context.Context, userID, documentID string, filter models.Filter) ([]models.Event, error) {
	if _, err := s.authorizer.Authorize(ctx, userID, documentID, docsystem.AccessView); err != nil {
		return nil, err
	}

	flat, err := s.eventRepo.ListByDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if err := hydrate(ctx, s.flaggedRepo, s.messageRepo, flat); err != nil {
		return nil, err
	}

	replies := make(map[string][]models.Event)
	for _, e := range flat {
		if e.ReplyTo != nil {
			replies[*e.ReplyTo] = append(replies[*e.ReplyTo], e)
		}
	}

	forest := make([]models.Event, 0, len(flat))
	for _, e := range flat {
		if e.ReplyTo != nil || !filter.Matches(e.Kind()) {
			continue
		}
		e.Replies = replies[e.ID]
		forest = append(forest, e)
	}
	return forest, nil
}

// loadForEdit loads an event for an in-place edit, checking access before kind
func (s *Service) loadForEdit(ctx context.Context, userID, eventID string, required docsystem.Access, kind models.PayloadKind) (*models.Event, error) {
	evt, err := s.eventRepo.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorizer.Authorize(ctx, userID, evt.DocumentID, required); err != nil {
		return nil, err
	}
	if evt.Kind() != kind {
		return nil, &domain.InvalidOperationError{
			Message: fmt.Sprintf("event %s is %s; this edit applies to %s events only", evt.ID, evt.Kind(), kind),
		}
	}
	return evt, nil
}

// rewrite applies edit to the stored payload and publishes timeline.updated
func (s *Service) rewrite(ctx context.Context, evt *models.Event, edit func(models.Payload) models.Payload) (*models.Event, error) {
	defer s.stripes.Lock(evt.DocumentID)()

	var updated *models.Event
	err := s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		current, err := s.eventRepo.GetByID(txCtx, evt.ID)
		if err != nil {
			return err
		}
		updated, err = s.eventRepo.UpdatePayload(txCtx, evt.ID, edit(current.Payload))
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := s.publishUpdated(ctx, updated); err != nil {
		return nil, err
	}
	s.logger.Info("timeline event edited",
		"event_id", updated.ID,
		"document_id", updated.DocumentID,
		"kind", updated.Kind(),
	)
	return updated, nil
}

// publishUpdated renders evt and publishes it as timeline.updated
func (s *Service) publishUpdated(ctx context.Context, evt *models.Event) error {
	rendered := []models.Event{*evt}
	if err := hydrate(ctx, s.flaggedRepo, s.messageRepo, rendered); err != nil {
		return err
	}
	*evt = rendered[0]
	s.publisher.Publish(fanout.DocumentTopic(evt.DocumentID), fanout.TimelineUpdated, evt)
	return nil
}

func (s *Service) validateSummary(summary string) error {
	if err := validation.Validate(summary, validation.RuneLength(0, s.maxSummary)); err != nil {
		return fmt.Errorf("%w: summary: %v", domain.ErrValidation, err)
	}
	return nil
}

func copyString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
