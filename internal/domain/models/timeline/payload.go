package timeline

import (
	"encoding/json"
	"fmt"
	"time"
)

// PayloadKind is the discriminant of the closed Payload variant
type PayloadKind string

const (
	KindJoin              PayloadKind = "join"
	KindMarker            PayloadKind = "marker"
	KindAttributeChange   PayloadKind = "attribute_change"
	KindAccessChange      PayloadKind = "access_change"
	KindPaste             PayloadKind = "paste"
	KindUpdate            PayloadKind = "update"
	KindMessage           PayloadKind = "message"
	KindMessageResolution PayloadKind = "message_resolution"
	KindEmpty             PayloadKind = "empty"
)

// Payload is the closed set of timeline event payloads.
// Implementations live in this package only (sealed by the unexported method).
type Payload interface {
	Kind() PayloadKind
	sealed()
}

// JoinPayload records a user joining the document
type JoinPayload struct{}

// MarkerPayload is a free-form marker placed on the timeline
type MarkerPayload struct {
	Label string `json:"label"`
}

// AttributeChangePayload records a change to a document attribute (title, is_public, ...)
type AttributeChangePayload struct {
	Attribute string  `json:"attribute"`
	OldValue  *string `json:"old_value,omitempty"`
	NewValue  *string `json:"new_value,omitempty"`
}

// AccessChangePayload records an access grant or revocation
type AccessChangePayload struct {
	UserID    string `json:"user_id"`
	OldAccess string `json:"old_access"`
	NewAccess string `json:"new_access"`
}

// PastePayload records content pasted from another document or address
type PastePayload struct {
	ContentAddress   string  `json:"content_address"`
	SourceDocumentID *string `json:"source_document_id,omitempty"`
}

// UpdatePayload records an accepted change of the document head.
// Title and Summary are rewritable after the fact; the address pair is not.
type UpdatePayload struct {
	ContentAddressBefore *string `json:"content_address_before,omitempty"`
	ContentAddress       string  `json:"content_address"`
	MessageID            *string `json:"message_id,omitempty"`
	Title                *string `json:"title,omitempty"`
	Summary              string  `json:"summary"`

	// Rendered flagged version metadata (computed at read time, never stored)
	FlaggedVersionName      *string    `json:"flagged_version_name,omitempty"`
	FlaggedVersionID        *string    `json:"flagged_version_id,omitempty"`
	FlaggedVersionCreatedAt *time.Time `json:"flagged_version_created_at,omitempty"`
	FlaggedByUser           *string    `json:"flagged_by_user,omitempty"`
}

// MessagePayload references a Message in the document thread
type MessagePayload struct {
	MessageID string `json:"message_id"`

	// Rendered message content (computed at read time, never stored)
	Content *string `json:"content,omitempty"`
}

// MessageResolutionPayload records a message thread being resolved or reopened.
// Resolved and Summary are rewritable after the fact.
type MessageResolutionPayload struct {
	MessageEventID string `json:"message_event_id"`
	Resolved       bool   `json:"resolved"`
	Summary        string `json:"summary"`
}

// EmptyPayload carries nothing; used for placeholder events
type EmptyPayload struct{}

func (JoinPayload) Kind() PayloadKind              { return KindJoin }
func (MarkerPayload) Kind() PayloadKind            { return KindMarker }
func (AttributeChangePayload) Kind() PayloadKind   { return KindAttributeChange }
func (AccessChangePayload) Kind() PayloadKind      { return KindAccessChange }
func (PastePayload) Kind() PayloadKind             { return KindPaste }
func (UpdatePayload) Kind() PayloadKind            { return KindUpdate }
func (MessagePayload) Kind() PayloadKind           { return KindMessage }
func (MessageResolutionPayload) Kind() PayloadKind { return KindMessageResolution }
func (EmptyPayload) Kind() PayloadKind             { return KindEmpty }

func (JoinPayload) sealed()              {}
func (MarkerPayload) sealed()            {}
func (AttributeChangePayload) sealed()   {}
func (AccessChangePayload) sealed()      {}
func (PastePayload) sealed()             {}
func (UpdatePayload) sealed()            {}
func (MessagePayload) sealed()           {}
func (MessageResolutionPayload) sealed() {}
func (EmptyPayload) sealed()             {}

// IsMutable reports whether events of this kind may be edited in place
func (k PayloadKind) IsMutable() bool {
	return k == KindUpdate || k == KindMessageResolution
}

// IsComment reports whether the kind belongs to the COMMENTS filter
func (k PayloadKind) IsComment() bool {
	return k == KindMessage || k == KindMessageResolution
}

// IsEdit reports whether the kind belongs to the EDITS filter
func (k PayloadKind) IsEdit() bool {
	return k == KindUpdate || k == KindPaste || k == KindAttributeChange
}

// Valid reports whether k is one of the known kinds
func (k PayloadKind) Valid() bool {
	switch k {
	case KindJoin, KindMarker, KindAttributeChange, KindAccessChange, KindPaste,
		KindUpdate, KindMessage, KindMessageResolution, KindEmpty:
		return true
	}
	return false
}

// EncodePayload serializes a payload for storage (JSONB column).
// Rendered fields are stripped so they never reach the database.
func EncodePayload(p Payload) ([]byte, error) {
	switch v := p.(type) {
	case UpdatePayload:
		v.FlaggedVersionName = nil
		v.FlaggedVersionID = nil
		v.FlaggedVersionCreatedAt = nil
		v.FlaggedByUser = nil
		return json.Marshal(v)
	case MessagePayload:
		v.Content = nil
		return json.Marshal(v)
	case nil:
		return nil, fmt.Errorf("nil payload")
	default:
		return json.Marshal(v)
	}
}

// DecodePayload restores a payload from its kind and stored JSON
func DecodePayload(kind PayloadKind, data []byte) (Payload, error) {
	if len(data) == 0 || string(data) == "null" {
		data = []byte("{}")
	}

	var (
		p   Payload
		err error
	)
	switch kind {
	case KindJoin:
		var v JoinPayload
		err = json.Unmarshal(data, &v)
		p = v
	case KindMarker:
		var v MarkerPayload
		err = json.Unmarshal(data, &v)
		p = v
	case KindAttributeChange:
		var v AttributeChangePayload
		err = json.Unmarshal(data, &v)
		p = v
	case KindAccessChange:
		var v AccessChangePayload
		err = json.Unmarshal(data, &v)
		p = v
	case KindPaste:
		var v PastePayload
		err = json.Unmarshal(data, &v)
		p = v
	case KindUpdate:
		var v UpdatePayload
		err = json.Unmarshal(data, &v)
		p = v
	case KindMessage:
		var v MessagePayload
		err = json.Unmarshal(data, &v)
		p = v
	case KindMessageResolution:
		var v MessageResolutionPayload
		err = json.Unmarshal(data, &v)
		p = v
	case KindEmpty:
		p = EmptyPayload{}
	default:
		return nil, fmt.Errorf("unknown payload kind: %s", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", kind, err)
	}
	return p, nil
}
