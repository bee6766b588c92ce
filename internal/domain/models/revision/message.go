package revision

import (
	"fmt"
	"time"
)

// LifecycleStage is the processing state of a Message
type LifecycleStage string

const (
	StagePending   LifecycleStage = "PENDING"
	StageRevising  LifecycleStage = "REVISING"
	StageRevised   LifecycleStage = "REVISED"
	StageCompleted LifecycleStage = "COMPLETED"
)

// Status is the human decision on a proposed edit, independent of the lifecycle stage
type Status string

const (
	StatusUnspecified Status = "UNSPECIFIED"
	StatusAccepted    Status = "ACCEPTED"
	StatusDeclined    Status = "DECLINED"
)

// ParseDecision accepts only the two decisions a caller may submit
func ParseDecision(s string) (Status, error) {
	switch Status(s) {
	case StatusAccepted, StatusDeclined:
		return Status(s), nil
	}
	return "", fmt.Errorf("revision status must be %s or %s, got %q", StatusAccepted, StatusDeclined, s)
}

// Metadata tracks the content address chain of an edit proposal
type Metadata struct {
	ContentAddressBefore         *string    `json:"content_address_before,omitempty"`
	ContentAddress               *string    `json:"content_address,omitempty"` // Proposed address (set on REVISED)
	ContentAddressAfter          *string    `json:"content_address_after,omitempty"`
	ContentAddressAfterTimestamp *time.Time `json:"content_address_after_timestamp,omitempty"`
	RevisionStatus               Status     `json:"revision_status"`
}

// Message is a comment or edit proposal owned by a container: either the
// document thread (ContainerID == DocumentID) or an AI thread.
type Message struct {
	ID              string         `json:"id" db:"id"`
	ContainerID     string         `json:"container_id" db:"container_id"`
	DocumentID      string         `json:"document_id" db:"document_id"`
	ThreadID        *string        `json:"thread_id,omitempty" db:"thread_id"`
	Content         string         `json:"content" db:"content"`
	Attachments     Attachments    `json:"attachments" db:"attachments"`
	LifecycleStage  LifecycleStage `json:"lifecycle_stage" db:"lifecycle_stage"`
	LifecycleReason *string        `json:"lifecycle_reason,omitempty" db:"lifecycle_reason"`
	AuthorID        string         `json:"author_id" db:"author_id"`
	Hidden          bool           `json:"hidden" db:"hidden"`
	Metadata        Metadata       `json:"metadata" db:"metadata"`
	TimelineEventID *string        `json:"timeline_event_id,omitempty" db:"timeline_event_id"`
	CreatedAt       time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at" db:"updated_at"`
}

// InDocumentThread reports whether the message lives in the document's own thread
func (m *Message) InDocumentThread() bool {
	return m.ContainerID == m.DocumentID
}

// ImpliesEdit reports whether the attachments request a revision
func (m *Message) ImpliesEdit() bool {
	for _, a := range m.Attachments {
		if a.Kind().ImpliesEdit() {
			return true
		}
	}
	return false
}

// RevisionRequest returns the first edit-implying attachment, if any
func (m *Message) RevisionRequest() (Attachment, bool) {
	for _, a := range m.Attachments {
		if a.Kind().ImpliesEdit() {
			return a, true
		}
	}
	return nil, false
}

// MessageTransition describes a guarded state change. The update only applies
// when the stored message still matches the From fields.
type MessageTransition struct {
	MessageID string

	// Guards
	FromStage          LifecycleStage
	ExpectedAddress    *string // When set, metadata.content_address must equal it
	RequireUnspecified bool    // When set, revision_status must still be UNSPECIFIED

	// New values
	ToStage          LifecycleStage
	Reason           *string
	Metadata         Metadata
	AppendAttachment Attachment // Optional
}
