package fanout

import (
	"encoding/json"
	"strings"
	"time"
)

// EventType names a subscription event
type EventType string

const (
	DocumentUpdated  EventType = "document.updated"
	DocumentInserted EventType = "document.inserted"
	DocumentDeleted  EventType = "document.deleted"
	TimelineInserted EventType = "timeline.inserted"
	TimelineUpdated  EventType = "timeline.updated"
	TimelineDeleted  EventType = "timeline.deleted"
	MessageUpserted  EventType = "message.upserted"
	MessageDeleted   EventType = "message.deleted"
	ThreadUpserted   EventType = "thread.upserted"
)

// Topic is a fan-out scope such as "document:<id>"
type Topic string

const (
	scopeDocument = "document"
	scopeChannel  = "channel"
	scopeThread   = "thread"
)

func DocumentTopic(id string) Topic { return Topic(scopeDocument + ":" + id) }
func ChannelTopic(id string) Topic  { return Topic(scopeChannel + ":" + id) }
func ThreadTopic(id string) Topic   { return Topic(scopeThread + ":" + id) }

// ParseTopic validates a client-supplied topic string
func ParseTopic(s string) (Topic, bool) {
	scope, id, ok := strings.Cut(s, ":")
	if !ok || id == "" {
		return "", false
	}
	switch scope {
	case scopeDocument, scopeChannel, scopeThread:
		return Topic(s), true
	}
	return "", false
}

// Scope returns the scope prefix and the id of the topic
func (t Topic) Scope() (string, string) {
	scope, id, _ := strings.Cut(string(t), ":")
	return scope, id
}

// Event is one delivered change. Seq is assigned per topic by the hub.
type Event struct {
	Topic      Topic           `json:"topic"`
	Type       EventType       `json:"type"`
	Seq        uint64          `json:"seq"`
	Data       json.RawMessage `json:"data"`
	OccurredAt time.Time       `json:"occurred_at"`
	Origin     string          `json:"origin,omitempty"` // Instance that first published the event
}

// DeletedRef is the payload of timeline.deleted, document.deleted and message.deleted
type DeletedRef struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
}
