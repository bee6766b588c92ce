package timeline

import (
	"encoding/json"
	"fmt"
	"time"
)

// Filter selects which top-level events a timeline read returns
type Filter string

const (
	FilterAll      Filter = "ALL"
	FilterComments Filter = "COMMENTS"
	FilterEdits    Filter = "EDITS"
)

// ParseFilter parses a filter, defaulting to ALL for an empty string
func ParseFilter(s string) (Filter, error) {
	switch Filter(s) {
	case "":
		return FilterAll, nil
	case FilterAll, FilterComments, FilterEdits:
		return Filter(s), nil
	}
	return "", fmt.Errorf("unknown timeline filter %q", s)
}

// Matches reports whether a payload kind passes the filter
func (f Filter) Matches(kind PayloadKind) bool {
	switch f {
	case FilterComments:
		return kind.IsComment()
	case FilterEdits:
		return kind.IsEdit()
	default:
		return true
	}
}

// Event is one entry in a document's ordered history.
// Events form a forest: top-level events have ReplyTo == nil and replies
// are inlined one level deep in Replies.
type Event struct {
	ID         string    `json:"id" db:"id"` // ULID
	DocumentID string    `json:"document_id" db:"document_id"`
	AuthorID   string    `json:"author_id" db:"author_id"`
	Seq        int64     `json:"seq" db:"seq"` // Per-document append order
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
	ReplyTo    *string   `json:"reply_to,omitempty" db:"reply_to"`
	Payload    Payload   `json:"-" db:"payload"`

	// Computed fields (not stored in DB)
	Replies []Event `json:"replies,omitempty"`
}

// Kind returns the payload discriminant
func (e *Event) Kind() PayloadKind {
	if e.Payload == nil {
		return KindEmpty
	}
	return e.Payload.Kind()
}

// Before reports whether e sorts before other in canonical order:
// created_at ascending, ties broken by id.
func (e *Event) Before(other *Event) bool {
	if !e.CreatedAt.Equal(other.CreatedAt) {
		return e.CreatedAt.Before(other.CreatedAt)
	}
	return e.ID < other.ID
}

// eventJSON is the wire shape: payload is tagged by kind
type eventJSON struct {
	ID         string          `json:"id"`
	DocumentID string          `json:"document_id"`
	AuthorID   string          `json:"author_id"`
	Seq        int64           `json:"seq"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	ReplyTo    *string         `json:"reply_to,omitempty"`
	Kind       PayloadKind     `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	Replies    []Event         `json:"replies,omitempty"`
}

// MarshalJSON renders the event with a kind-tagged payload
func (e Event) MarshalJSON() ([]byte, error) {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(eventJSON{
		ID:         e.ID,
		DocumentID: e.DocumentID,
		AuthorID:   e.AuthorID,
		Seq:        e.Seq,
		CreatedAt:  e.CreatedAt,
		UpdatedAt:  e.UpdatedAt,
		ReplyTo:    e.ReplyTo,
		Kind:       e.Kind(),
		Payload:    payload,
		Replies:    e.Replies,
	})
}

// UnmarshalJSON decodes the kind-tagged payload back into the closed variant
func (e *Event) UnmarshalJSON(data []byte) error {
	var raw eventJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	payload, err := DecodePayload(raw.Kind, raw.Payload)
	if err != nil {
		return err
	}
	*e = Event{
		ID:         raw.ID,
		DocumentID: raw.DocumentID,
		AuthorID:   raw.AuthorID,
		Seq:        raw.Seq,
		CreatedAt:  raw.CreatedAt,
		UpdatedAt:  raw.UpdatedAt,
		ReplyTo:    raw.ReplyTo,
		Payload:    payload,
		Replies:    raw.Replies,
	}
	return nil
}
