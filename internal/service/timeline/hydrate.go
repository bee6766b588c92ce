package timeline

import (
	"context"

	models "folio/internal/domain/models/timeline"
	revisionRepo "folio/internal/domain/repositories/revision"
	timelineRepo "folio/internal/domain/repositories/timeline"
)

// hydrate fills the read-time fields of events in place: flagged version
// metadata on Update events and the current content of Message events.
// Hidden messages keep their content out of the timeline.
func hydrate(ctx context.Context, flaggedRepo timelineRepo.FlaggedVersionRepository, messageRepo revisionRepo.MessageRepository, events []models.Event) error {
	var updateIDs, messageIDs []string
	for _, e := range events {
		switch p := e.Payload.(type) {
		case models.UpdatePayload:
			updateIDs = append(updateIDs, e.ID)
		case models.MessagePayload:
			messageIDs = append(messageIDs, p.MessageID)
		}
	}

	flagged := map[string]*models.FlaggedVersion{}
	if len(updateIDs) > 0 {
		var err error
		if flagged, err = flaggedRepo.GetByEventIDs(ctx, updateIDs); err != nil {
			return err
		}
	}
	messages := map[string]string{}
	if len(messageIDs) > 0 {
		found, err := messageRepo.GetByIDs(ctx, messageIDs)
		if err != nil {
			return err
		}
		for id, m := range found {
			if !m.Hidden {
				messages[id] = m.Content
			}
		}
	}

	for i := range events {
		switch p := events[i].Payload.(type) {
		case models.UpdatePayload:
			// Strip anything stale before rendering the current bookmark
			p.FlaggedVersionName, p.FlaggedVersionID, p.FlaggedVersionCreatedAt, p.FlaggedByUser = nil, nil, nil, nil
			if fv, ok := flagged[events[i].ID]; ok {
				p = fv.Render(p)
			}
			events[i].Payload = p
		case models.MessagePayload:
			p.Content = nil
			if content, ok := messages[p.MessageID]; ok {
				p.Content = &content
			}
			events[i].Payload = p
		}
	}
	return nil
}
