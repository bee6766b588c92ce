package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"folio/internal/domain/models/fanout"
	docsysSvc "folio/internal/domain/services/docsystem"
	revisionSvc "folio/internal/domain/services/revision"
	"folio/internal/handler/sse"
	"folio/internal/httputil"
	fanoutSvc "folio/internal/service/fanout"
)

// EventsHandler streams hub events to clients over SSE and WebSocket
type EventsHandler struct {
	hub            *fanoutSvc.Hub
	guard          topicGuard
	sseConfig      *sse.Config
	allowedOrigins []string
	logger         *slog.Logger
}

// EventsConfig configures the subscription transports
type EventsConfig struct {
	KeepAlive      time.Duration
	AllowedOrigins []string // WebSocket origin check; "*" allows any
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(
	hub *fanoutSvc.Hub,
	documentService docsysSvc.DocumentService,
	messageService revisionSvc.MessageService,
	cfg EventsConfig,
	logger *slog.Logger,
) *EventsHandler {
	sseConfig := sse.DefaultConfig()
	if cfg.KeepAlive > 0 {
		sseConfig.KeepAliveInterval = cfg.KeepAlive
	}
	return &EventsHandler{
		hub:            hub,
		guard:          topicGuard{documents: documentService, messages: messageService},
		sseConfig:      sseConfig,
		allowedOrigins: cfg.AllowedOrigins,
		logger:         logger,
	}
}

// topicGuard checks that a user may watch a topic. Document and channel
// topics need view access to the document of the same id; thread topics
// need view access to the thread's document.
type topicGuard struct {
	documents docsysSvc.DocumentService
	messages  revisionSvc.MessageService
}

func (g topicGuard) authorize(ctx context.Context, userID string, topic fanout.Topic) error {
	_, id := topic.Scope()
	if topic == fanout.ThreadTopic(id) {
		_, err := g.messages.GetThread(ctx, userID, id)
		return err
	}
	_, err := g.documents.GetDocument(ctx, userID, id)
	return err
}

// parseTopics validates a list of client topic strings
func parseTopics(raw []string) ([]fanout.Topic, error) {
	topics := make([]fanout.Topic, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		topic, ok := fanout.ParseTopic(s)
		if !ok {
			return nil, errors.New("invalid topic " + s)
		}
		topics = append(topics, topic)
	}
	return topics, nil
}

// StreamDocumentEvents streams a document's events as Server-Sent Events.
// Extra topics (threads, channels) can be added with ?topics=a,b.
// GET /api/documents/{id}/events
func (h *EventsHandler) StreamDocumentEvents(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r)
	documentID := r.PathValue("id")

	topics := []fanout.Topic{fanout.DocumentTopic(documentID)}
	if raw := r.URL.Query().Get("topics"); raw != "" {
		extra, err := parseTopics(strings.Split(raw, ","))
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		topics = append(topics, extra...)
	}
	for _, topic := range topics {
		if err := h.guard.authorize(r.Context(), userID, topic); err != nil {
			handleError(w, err)
			return
		}
	}

	sub, err := h.hub.Subscribe(topics...)
	if err != nil {
		httputil.RespondError(w, http.StatusServiceUnavailable, "event stream unavailable")
		return
	}
	defer h.hub.Unsubscribe(sub)

	writer, err := sse.NewWriter(w)
	if err != nil {
		httputil.RespondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	logger := h.logger.With("subscription_id", sub.ID(), "user_id", userID, "document_id", documentID)
	logger.Debug("sse subscriber connected", "topics", topics)

	heartbeat := sse.StartHeartbeat(h.sseConfig.KeepAliveInterval, writer.WriteKeepAlive, logger)
	defer heartbeat.Stop()

	if err := writer.WriteRetry(h.sseConfig.RetryInterval); err != nil {
		return
	}
	if err := writer.WriteNamed("ready", readyFrame{SubscriptionID: sub.ID(), Topics: sub.Topics()}); err != nil {
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		select {
		case <-heartbeat.Dead():
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		evt, err := sub.Next(ctx)
		var missed *fanoutSvc.MissedEventsError
		switch {
		case errors.As(err, &missed):
			err = writer.WriteNamed("missed", missedFrame{Count: missed.Count})
		case err != nil:
			logger.Debug("sse subscriber disconnected", "reason", err)
			return
		default:
			err = writer.WriteEvent(evt)
		}
		if err != nil {
			logger.Debug("sse write failed", "error", err)
			return
		}
	}
}

type readyFrame struct {
	SubscriptionID string         `json:"subscription_id"`
	Topics         []fanout.Topic `json:"topics"`
}

type missedFrame struct {
	Count uint64 `json:"count"`
}
