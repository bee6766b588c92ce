package revision

import "time"

// Thread is an AI-assist conversation attached to a document
type Thread struct {
	ID         string    `json:"id" db:"id"`
	DocumentID string    `json:"document_id" db:"document_id"`
	ChannelID  string    `json:"channel_id" db:"channel_id"`
	Title      string    `json:"title" db:"title"`
	CreatedBy  string    `json:"created_by" db:"created_by"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}
