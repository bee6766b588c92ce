package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"folio/internal/domain/models/fanout"
)

// sseFrame is one parsed Server-Sent Events frame
type sseFrame struct {
	id    string
	event string
	data  string
}

// readFrame reads lines until a blank line ends a frame with an event name
func readFrame(t *testing.T, r *bufio.Reader) sseFrame {
	t.Helper()
	var f sseFrame
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read sse stream: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if f.event != "" {
				return f
			}
		case strings.HasPrefix(line, "id: "):
			f.id = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "event: "):
			f.event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			f.data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestStreamDocumentEvents(t *testing.T) {
	env := newTestEnv(t)
	docID := env.createDocument(t, "alice", "Draft", "", false)

	srv := httptest.NewServer(env.mux)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	t.Run("forbidden", func(t *testing.T) {
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/documents/"+docID+"/events", nil)
		req.Header.Set(testUserHeader, "mallory")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusForbidden {
			t.Errorf("status = %d, want 403", resp.StatusCode)
		}
	})

	t.Run("invalid extra topic", func(t *testing.T) {
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/documents/"+docID+"/events?topics=folder:1", nil)
		req.Header.Set(testUserHeader, "alice")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
	})

	streamCtx, stopStream := context.WithCancel(ctx)
	defer stopStream()

	req, _ := http.NewRequestWithContext(streamCtx, http.MethodGet, srv.URL+"/api/documents/"+docID+"/events", nil)
	req.Header.Set(testUserHeader, "alice")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}

	stream := bufio.NewReader(resp.Body)
	ready := readFrame(t, stream)
	if ready.event != "ready" {
		t.Fatalf("first frame = %q, want ready", ready.event)
	}
	var readyBody readyFrame
	if err := json.Unmarshal([]byte(ready.data), &readyBody); err != nil {
		t.Fatalf("decode ready: %v", err)
	}
	if len(readyBody.Topics) != 1 || readyBody.Topics[0] != fanout.DocumentTopic(docID) {
		t.Errorf("ready topics = %v", readyBody.Topics)
	}

	// A marker appended over HTTP reaches the open stream
	env.do(t, http.MethodPost, "/api/documents/"+docID+"/timeline", "alice", map[string]any{"label": "checkpoint"})

	frame := readFrame(t, stream)
	if frame.event != string(fanout.TimelineInserted) {
		t.Fatalf("event = %q, want %s", frame.event, fanout.TimelineInserted)
	}
	if !strings.HasPrefix(frame.id, string(fanout.DocumentTopic(docID))+"/") {
		t.Errorf("frame id = %q, want topic/seq", frame.id)
	}
	var evt fanout.Event
	if err := json.Unmarshal([]byte(frame.data), &evt); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if !strings.Contains(string(evt.Data), "checkpoint") {
		t.Errorf("event data = %s, want the marker label", evt.Data)
	}
}

func dialWS(t *testing.T, srv *httptest.Server, user string) *websocket.Conn {
	t.Helper()
	header := http.Header{}
	header.Set(testUserHeader, user)
	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/ws", header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	resp.Body.Close()
	return conn
}

func readWS(t *testing.T, conn *websocket.Conn) wsServerFrame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var frame wsServerFrame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return frame
}

func TestServeWebSocket(t *testing.T) {
	env := newTestEnv(t)
	mine := env.createDocument(t, "alice", "Mine", "", false)
	theirs := env.createDocument(t, "bob", "Theirs", "", false)

	srv := httptest.NewServer(env.mux)
	defer srv.Close()

	conn := dialWS(t, srv, "alice")
	defer conn.Close()

	if ready := readWS(t, conn); ready.Type != wsReady || ready.SubscriptionID == "" {
		t.Fatalf("first frame = %+v, want ready", ready)
	}

	steps := []struct {
		name    string
		send    wsClientFrame
		want    string
		wantErr string
	}{
		{"ping", wsClientFrame{Type: wsPing, ID: "1"}, wsPong, ""},
		{"no topics", wsClientFrame{Type: wsSubscribe, ID: "2"}, wsError, "topics are required"},
		{"bad topic", wsClientFrame{Type: wsSubscribe, ID: "3", Topics: []string{"nope"}}, wsError, "invalid topic"},
		{"other user's document", wsClientFrame{Type: wsSubscribe, ID: "4", Topics: []string{"document:" + theirs}}, wsError, "document:" + theirs},
		{"unknown type", wsClientFrame{Type: "shout", ID: "5"}, wsError, "unknown frame type"},
		{"own document", wsClientFrame{Type: wsSubscribe, ID: "6", Topics: []string{"document:" + mine}}, wsAck, ""},
	}
	for _, step := range steps {
		if err := conn.WriteJSON(step.send); err != nil {
			t.Fatalf("%s: write: %v", step.name, err)
		}
		got := readWS(t, conn)
		if got.Type != step.want || got.ID != step.send.ID {
			t.Errorf("%s: reply = %+v, want type %s id %s", step.name, got, step.want, step.send.ID)
		}
		if step.wantErr != "" && !strings.Contains(got.Error, step.wantErr) {
			t.Errorf("%s: error = %q, want it to mention %q", step.name, got.Error, step.wantErr)
		}
	}

	env.hub.Publish(fanout.DocumentTopic(mine), fanout.DocumentUpdated, map[string]string{"id": mine})
	env.hub.Publish(fanout.DocumentTopic(theirs), fanout.DocumentUpdated, map[string]string{"id": theirs})

	got := readWS(t, conn)
	if got.Type != wsEvent || got.Event == nil {
		t.Fatalf("frame = %+v, want an event", got)
	}
	if got.Event.Topic != fanout.DocumentTopic(mine) || got.Event.Type != fanout.DocumentUpdated {
		t.Errorf("event = %s %s, want %s on %s", got.Event.Type, got.Event.Topic, fanout.DocumentUpdated, fanout.DocumentTopic(mine))
	}

	if err := conn.WriteJSON(wsClientFrame{Type: wsUnsubscribe, ID: "7", Topics: []string{"document:" + mine}}); err != nil {
		t.Fatalf("write unsubscribe: %v", err)
	}
	if ack := readWS(t, conn); ack.Type != wsAck || len(ack.Topics) != 0 {
		t.Errorf("unsubscribe reply = %+v, want ack with no topics", ack)
	}
}

func TestServeWebSocket_ThreadTopic(t *testing.T) {
	env := newTestEnv(t)
	docID := env.createDocument(t, "alice", "Draft", "", false)
	thread := decode[struct {
		ID string `json:"id"`
	}](t, env.do(t, http.MethodPost, "/api/threads", "alice", map[string]any{"document_id": docID, "title": "Ideas"}), http.StatusCreated)

	srv := httptest.NewServer(env.mux)
	defer srv.Close()

	conn := dialWS(t, srv, "alice")
	defer conn.Close()
	readWS(t, conn)

	if err := conn.WriteJSON(wsClientFrame{Type: wsSubscribe, ID: "t", Topics: []string{"thread:" + thread.ID}}); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}
	if ack := readWS(t, conn); ack.Type != wsAck {
		t.Fatalf("reply = %+v, want ack", ack)
	}

	env.do(t, http.MethodPost, "/api/threads/"+thread.ID+"/messages", "alice", map[string]any{"content": "hello"})

	frame := readWS(t, conn)
	if frame.Type != wsEvent || frame.Event.Type != fanout.MessageUpserted {
		t.Fatalf("frame = %+v, want a message upsert", frame)
	}
	if frame.Event.Topic != fanout.ThreadTopic(thread.ID) {
		t.Errorf("topic = %s, want %s", frame.Event.Topic, fanout.ThreadTopic(thread.ID))
	}
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"no origin header", []string{"https://app.example"}, "", true},
		{"listed", []string{"https://app.example"}, "https://app.example", true},
		{"wildcard", []string{"*"}, "https://evil.example", true},
		{"unlisted", []string{"https://app.example"}, "https://evil.example", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &EventsHandler{allowedOrigins: tt.allowed}
			req := httptest.NewRequest(http.MethodGet, "/api/ws", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if got := h.checkOrigin(req); got != tt.want {
				t.Errorf("checkOrigin = %v, want %v", got, tt.want)
			}
		})
	}
}
