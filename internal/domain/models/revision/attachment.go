package revision

import (
	"encoding/json"
	"fmt"
)

// AttachmentKind is the discriminant of the closed Attachment variant
type AttachmentKind string

const (
	AttachSelection         AttachmentKind = "selection"
	AttachRevision          AttachmentKind = "revision"
	AttachSuggestion        AttachmentKind = "suggestion"
	AttachContent           AttachmentKind = "content"
	AttachFile              AttachmentKind = "file"
	AttachError             AttachmentKind = "error"
	AttachDocumentReference AttachmentKind = "document_reference"
)

// ImpliesEdit reports whether an attachment of this kind turns a message into an edit proposal
func (k AttachmentKind) ImpliesEdit() bool {
	return k == AttachRevision || k == AttachSuggestion
}

// Attachment is the closed set of message attachments
type Attachment interface {
	Kind() AttachmentKind
	sealed()
}

// SelectionAttachment references a range of the document the message is about
type SelectionAttachment struct {
	ContentAddress string `json:"content_address"`
	From           int    `json:"from"`
	To             int    `json:"to"`
	Text           string `json:"text,omitempty"`
}

// RevisionAttachment asks for a revision. When ProposedPayload is set the
// proposal is a human edit and is stored as-is; otherwise the reviser computes it.
type RevisionAttachment struct {
	Instructions    string `json:"instructions"`
	ProposedPayload []byte `json:"proposed_payload,omitempty"`
}

// SuggestionAttachment proposes replacement text for a selection
type SuggestionAttachment struct {
	Original    string `json:"original"`
	Replacement string `json:"replacement"`
}

// ContentAttachment is plain inline content
type ContentAttachment struct {
	Text string `json:"text"`
}

// FileAttachment references a blob in the attachment store
type FileAttachment struct {
	BlobKey  string `json:"blob_key"`
	MimeType string `json:"mime_type"`
	Name     string `json:"name"`
	Size     int64  `json:"size,omitempty"`
}

// ErrorAttachment records why revision work failed
type ErrorAttachment struct {
	Message string `json:"message"`
}

// DocumentReferenceAttachment points at another document (and optionally one of its addresses)
type DocumentReferenceAttachment struct {
	DocumentID     string  `json:"document_id"`
	ContentAddress *string `json:"content_address,omitempty"`
}

func (SelectionAttachment) Kind() AttachmentKind         { return AttachSelection }
func (RevisionAttachment) Kind() AttachmentKind          { return AttachRevision }
func (SuggestionAttachment) Kind() AttachmentKind        { return AttachSuggestion }
func (ContentAttachment) Kind() AttachmentKind           { return AttachContent }
func (FileAttachment) Kind() AttachmentKind              { return AttachFile }
func (ErrorAttachment) Kind() AttachmentKind             { return AttachError }
func (DocumentReferenceAttachment) Kind() AttachmentKind { return AttachDocumentReference }

func (SelectionAttachment) sealed()         {}
func (RevisionAttachment) sealed()          {}
func (SuggestionAttachment) sealed()        {}
func (ContentAttachment) sealed()           {}
func (FileAttachment) sealed()              {}
func (ErrorAttachment) sealed()             {}
func (DocumentReferenceAttachment) sealed() {}

// Attachments serializes as a list of {"type": ..., "data": ...} objects
type Attachments []Attachment

type taggedAttachment struct {
	Type AttachmentKind  `json:"type"`
	Data json.RawMessage `json:"data"`
}

func (as Attachments) MarshalJSON() ([]byte, error) {
	out := make([]taggedAttachment, 0, len(as))
	for _, a := range as {
		data, err := json.Marshal(a)
		if err != nil {
			return nil, err
		}
		out = append(out, taggedAttachment{Type: a.Kind(), Data: data})
	}
	return json.Marshal(out)
}

func (as *Attachments) UnmarshalJSON(b []byte) error {
	var raw []taggedAttachment
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	list := make(Attachments, 0, len(raw))
	for _, r := range raw {
		a, err := decodeAttachment(r.Type, r.Data)
		if err != nil {
			return err
		}
		list = append(list, a)
	}
	*as = list
	return nil
}

func decodeAttachment(kind AttachmentKind, data json.RawMessage) (Attachment, error) {
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}

	var (
		a   Attachment
		err error
	)
	switch kind {
	case AttachSelection:
		var v SelectionAttachment
		err = json.Unmarshal(data, &v)
		a = v
	case AttachRevision:
		var v RevisionAttachment
		err = json.Unmarshal(data, &v)
		a = v
	case AttachSuggestion:
		var v SuggestionAttachment
		err = json.Unmarshal(data, &v)
		a = v
	case AttachContent:
		var v ContentAttachment
		err = json.Unmarshal(data, &v)
		a = v
	case AttachFile:
		var v FileAttachment
		err = json.Unmarshal(data, &v)
		a = v
	case AttachError:
		var v ErrorAttachment
		err = json.Unmarshal(data, &v)
		a = v
	case AttachDocumentReference:
		var v DocumentReferenceAttachment
		err = json.Unmarshal(data, &v)
		a = v
	default:
		return nil, fmt.Errorf("unknown attachment type %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s attachment: %w", kind, err)
	}
	return a, nil
}
