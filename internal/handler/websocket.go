package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"folio/internal/domain/models/fanout"
	"folio/internal/handler/sse"
	"folio/internal/httputil"
	fanoutSvc "folio/internal/service/fanout"
)

const (
	wsWriteWait    = 10 * time.Second
	wsMaxFrameSize = 64 << 10
	wsOutboundSize = 64
)

// Client frame types
const (
	wsSubscribe   = "subscribe"
	wsUnsubscribe = "unsubscribe"
	wsPing        = "ping"
)

// Server frame types
const (
	wsReady  = "ready"
	wsAck    = "ack"
	wsEvent  = "event"
	wsMissed = "missed"
	wsError  = "error"
	wsPong   = "pong"
)

// wsClientFrame is a request from the client. ID is echoed in the reply.
type wsClientFrame struct {
	Type   string   `json:"type"`
	ID     string   `json:"id,omitempty"`
	Topics []string `json:"topics,omitempty"`
}

// wsServerFrame is everything the server sends
type wsServerFrame struct {
	Type           string         `json:"type"`
	ID             string         `json:"id,omitempty"`
	SubscriptionID string         `json:"subscription_id,omitempty"`
	Topics         []fanout.Topic `json:"topics,omitempty"`
	Event          *fanout.Event  `json:"event,omitempty"`
	Count          uint64         `json:"count,omitempty"`
	Error          string         `json:"error,omitempty"`
}

var errClientGone = errors.New("websocket client disconnected")

func (h *EventsHandler) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
}

func (h *EventsHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// ServeWebSocket multiplexes subscriptions over one connection. The client
// sends subscribe/unsubscribe frames naming topics; the server answers with
// ack or error frames and streams events for every subscribed topic.
// GET /api/ws
func (h *EventsHandler) ServeWebSocket(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r)

	conn, err := h.upgrader().Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sub, err := h.hub.Subscribe()
	if err != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server shutting down"),
			time.Now().Add(wsWriteWait))
		return
	}
	defer h.hub.Unsubscribe(sub)

	logger := h.logger.With("subscription_id", sub.ID(), "user_id", userID)
	logger.Debug("websocket subscriber connected")

	out := make(chan wsServerFrame, wsOutboundSize)
	out <- wsServerFrame{Type: wsReady, SubscriptionID: sub.ID()}

	g, ctx := errgroup.WithContext(r.Context())

	// Unblocks the reader once any side finishes
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	g.Go(func() error { return h.pumpEvents(ctx, sub, out) })
	g.Go(func() error { return h.writeFrames(ctx, conn, out) })
	g.Go(func() error { return h.readFrames(ctx, conn, sub, userID, out) })

	err = g.Wait()
	switch {
	case errors.Is(err, errClientGone), errors.Is(err, context.Canceled):
		logger.Debug("websocket subscriber disconnected")
	case websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived):
		logger.Warn("websocket closed unexpectedly", "error", err)
	default:
		logger.Debug("websocket subscriber disconnected", "reason", err)
	}
}

// pumpEvents moves events from the subscription queue to the writer. The
// hub never waits on this loop; a slow client loses its oldest events.
func (h *EventsHandler) pumpEvents(ctx context.Context, sub *fanoutSvc.Subscription, out chan<- wsServerFrame) error {
	for {
		evt, err := sub.Next(ctx)
		var missed *fanoutSvc.MissedEventsError
		var frame wsServerFrame
		switch {
		case errors.As(err, &missed):
			frame = wsServerFrame{Type: wsMissed, Count: missed.Count}
		case errors.Is(err, fanoutSvc.ErrSubscriptionClosed):
			return err
		case err != nil:
			return nil
		default:
			frame = wsServerFrame{Type: wsEvent, Event: &evt}
		}

		select {
		case out <- frame:
		case <-ctx.Done():
			return nil
		}
	}
}

// writeFrames is the only goroutine that writes data frames. Pings go
// through WriteControl, which gorilla allows concurrently.
func (h *EventsHandler) writeFrames(ctx context.Context, conn *websocket.Conn, out <-chan wsServerFrame) error {
	heartbeat := sse.StartHeartbeat(h.sseConfig.KeepAliveInterval, func() error {
		return conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
	}, h.logger)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(wsWriteWait))
			return nil
		case <-heartbeat.Dead():
			return errClientGone
		case frame := <-out:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(frame); err != nil {
				return err
			}
		}
	}
}

// readFrames handles client requests until the connection closes
func (h *EventsHandler) readFrames(ctx context.Context, conn *websocket.Conn, sub *fanoutSvc.Subscription, userID string, out chan<- wsServerFrame) error {
	pongWait := 2*h.sseConfig.KeepAliveInterval + wsWriteWait
	conn.SetReadLimit(wsMaxFrameSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	reply := func(frame wsServerFrame) error {
		select {
		case out <- frame:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for {
		var req wsClientFrame
		if err := conn.ReadJSON(&req); err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				return errClientGone
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		if err := reply(h.handleClientFrame(ctx, sub, userID, &req)); err != nil {
			return err
		}
	}
}

func (h *EventsHandler) handleClientFrame(ctx context.Context, sub *fanoutSvc.Subscription, userID string, req *wsClientFrame) wsServerFrame {
	fail := func(msg string) wsServerFrame {
		return wsServerFrame{Type: wsError, ID: req.ID, Error: msg}
	}

	switch req.Type {
	case wsPing:
		return wsServerFrame{Type: wsPong, ID: req.ID}

	case wsSubscribe:
		topics, err := parseTopics(req.Topics)
		if err != nil {
			return fail(err.Error())
		}
		if len(topics) == 0 {
			return fail("topics are required")
		}
		for _, topic := range topics {
			if err := h.guard.authorize(ctx, userID, topic); err != nil {
				return fail(string(topic) + ": " + err.Error())
			}
		}
		if err := h.hub.AddTopics(sub, topics...); err != nil {
			return fail(err.Error())
		}
		return wsServerFrame{Type: wsAck, ID: req.ID, Topics: sub.Topics()}

	case wsUnsubscribe:
		topics, err := parseTopics(req.Topics)
		if err != nil {
			return fail(err.Error())
		}
		h.hub.RemoveTopics(sub, topics...)
		return wsServerFrame{Type: wsAck, ID: req.ID, Topics: sub.Topics()}

	default:
		return fail("unknown frame type " + req.Type)
	}
}
