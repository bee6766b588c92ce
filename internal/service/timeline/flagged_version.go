package timeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"folio/internal/config"
	"folio/internal/domain"
	"folio/internal/domain/models/docsystem"
	"folio/internal/domain/models/fanout"
	models "folio/internal/domain/models/timeline"
	revisionRepo "folio/internal/domain/repositories/revision"
	timelineRepo "folio/internal/domain/repositories/timeline"
	"folio/internal/domain/services"
	timelineSvc "folio/internal/domain/services/timeline"
	fanoutSvc "folio/internal/service/fanout"
)

// flaggedVersionService implements FlaggedVersionService
type flaggedVersionService struct {
	flaggedRepo timelineRepo.FlaggedVersionRepository
	eventRepo   timelineRepo.EventRepository
	messageRepo revisionRepo.MessageRepository
	authorizer  services.DocumentAuthorizer
	publisher   services.EventPublisher
	stripes     *fanoutSvc.Stripes
	logger      *slog.Logger
}

// NewFlaggedVersionService creates a new flagged version service.
// It shares the timeline service's collaborators.
func NewFlaggedVersionService(cfg Config) timelineSvc.FlaggedVersionService {
	return &flaggedVersionService{
		flaggedRepo: cfg.FlaggedRepo,
		eventRepo:   cfg.EventRepo,
		messageRepo: cfg.MessageRepo,
		authorizer:  cfg.Authorizer,
		publisher:   cfg.Publisher,
		stripes:     cfg.Stripes,
		logger:      cfg.Logger,
	}
}

// Create bookmarks an Update event
func (s *flaggedVersionService) Create(ctx context.Context, userID, name, updateEventID string) (*models.FlaggedVersion, error) {
	name = strings.TrimSpace(name)
	if err := validateName(name); err != nil {
		return nil, err
	}

	evt, update, err := s.loadUpdate(ctx, userID, updateEventID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	fv := &models.FlaggedVersion{
		ID:               uuid.NewString(),
		DocumentID:       evt.DocumentID,
		Name:             name,
		UpdateEventID:    evt.ID,
		ContentAddressID: update.ContentAddress,
		CreatedBy:        userID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	defer s.stripes.Lock(evt.DocumentID)()

	if err := s.flaggedRepo.Create(ctx, fv); err != nil {
		return nil, err
	}
	s.publishEvents(ctx, evt.ID)

	s.logger.Info("flagged version created",
		"flagged_version_id", fv.ID,
		"event_id", evt.ID,
		"document_id", evt.DocumentID,
	)
	return fv, nil
}

// Edit renames a bookmark and may move it onto another Update event of the same document
func (s *flaggedVersionService) Edit(ctx context.Context, userID, id, name, updateEventID string) (*models.FlaggedVersion, error) {
	name = strings.TrimSpace(name)
	if err := validateName(name); err != nil {
		return nil, err
	}

	fv, err := s.flaggedRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	evt, update, err := s.loadUpdate(ctx, userID, updateEventID)
	if err != nil {
		return nil, err
	}
	if evt.DocumentID != fv.DocumentID {
		return nil, &domain.ValidationError{Message: "a flagged version cannot move to another document"}
	}

	defer s.stripes.Lock(fv.DocumentID)()

	previousEventID := fv.UpdateEventID
	fv.Name = name
	fv.UpdateEventID = evt.ID
	fv.ContentAddressID = update.ContentAddress
	fv.UpdatedAt = time.Now().UTC()
	if err := s.flaggedRepo.Update(ctx, fv); err != nil {
		return nil, err
	}

	if previousEventID != evt.ID {
		s.publishEvents(ctx, previousEventID, evt.ID)
	} else {
		s.publishEvents(ctx, evt.ID)
	}

	s.logger.Info("flagged version edited",
		"flagged_version_id", fv.ID,
		"event_id", evt.ID,
		"previous_event_id", previousEventID,
	)
	return fv, nil
}

// Delete removes the bookmark if it still points at timelineEventID.
// A bookmark whose event is gone is a stale reference and yields Conflict.
func (s *flaggedVersionService) Delete(ctx context.Context, userID, id, timelineEventID string) error {
	if strings.TrimSpace(timelineEventID) == "" {
		return &domain.ValidationError{Message: "timeline_event_id is required"}
	}

	fv, err := s.flaggedRepo.GetByID(ctx, id)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		// The bookmark goes with its event, so a missing event means the
		// caller's reference is stale rather than unknown
		if _, evtErr := s.eventRepo.GetByID(ctx, timelineEventID); errors.Is(evtErr, domain.ErrNotFound) {
			return domain.NewConflict("flagged_version", id,
				fmt.Sprintf("timeline event %s no longer exists", timelineEventID))
		}
		return err
	}

	if _, err := s.authorizer.Authorize(ctx, userID, fv.DocumentID, docsystem.AccessEdit); err != nil {
		return err
	}

	defer s.stripes.Lock(fv.DocumentID)()

	if err := s.flaggedRepo.DeleteBound(ctx, id, timelineEventID); err != nil {
		return err
	}
	s.publishEvents(ctx, timelineEventID)

	s.logger.Info("flagged version deleted",
		"flagged_version_id", id,
		"event_id", timelineEventID,
	)
	return nil
}

// List returns a document's bookmarks, newest first
func (s *flaggedVersionService) List(ctx context.Context, userID, documentID string) ([]models.FlaggedVersion, error) {
	if _, err := s.authorizer.Authorize(ctx, userID, documentID, docsystem.AccessView); err != nil {
		return nil, err
	}
	return s.flaggedRepo.ListByDocument(ctx, documentID)
}

// loadUpdate loads an Update event the caller may bookmark
func (s *flaggedVersionService) loadUpdate(ctx context.Context, userID, eventID string) (*models.Event, models.UpdatePayload, error) {
	evt, err := s.eventRepo.GetByID(ctx, eventID)
	if err != nil {
		return nil, models.UpdatePayload{}, err
	}
	if _, err := s.authorizer.Authorize(ctx, userID, evt.DocumentID, docsystem.AccessEdit); err != nil {
		return nil, models.UpdatePayload{}, err
	}
	update, ok := evt.Payload.(models.UpdatePayload)
	if !ok {
		return nil, models.UpdatePayload{}, &domain.InvalidOperationError{
			Message: fmt.Sprintf("only update events can be flagged, event %s is %s", evt.ID, evt.Kind()),
		}
	}
	return evt, update, nil
}

// publishEvents re-renders the given Update events and publishes timeline.updated.
// The bookmark change is already committed, so failures are only logged.
func (s *flaggedVersionService) publishEvents(ctx context.Context, eventIDs ...string) {
	for _, id := range eventIDs {
		evt, err := s.eventRepo.GetByID(ctx, id)
		if err != nil {
			s.logger.Warn("failed to load flagged event for fan-out", "event_id", id, "error", err)
			continue
		}
		rendered := []models.Event{*evt}
		if err := hydrate(ctx, s.flaggedRepo, s.messageRepo, rendered); err != nil {
			s.logger.Warn("failed to render flagged event", "event_id", id, "error", err)
			continue
		}
		s.publisher.Publish(fanout.DocumentTopic(evt.DocumentID), fanout.TimelineUpdated, &rendered[0])
	}
}

func validateName(name string) error {
	if err := validation.Validate(name,
		validation.Required,
		validation.RuneLength(1, config.MaxFlaggedVersionNameLength),
	); err != nil {
		return fmt.Errorf("%w: name: %v", domain.ErrValidation, err)
	}
	return nil
}
