package docsystem

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// ContentAddress is an immutable snapshot of document content.
// Hash is the SHA-256 of Payload and is unique within a document.
type ContentAddress struct {
	ID         string    `json:"id" db:"id"`
	DocumentID string    `json:"document_id" db:"document_id"`
	Hash       string    `json:"hash" db:"hash"`
	Payload    []byte    `json:"payload,omitempty" db:"payload"` // Omitted by Describe
	Size       int       `json:"size" db:"size"`
	CreatedBy  string    `json:"created_by" db:"created_by"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// HashPayload returns the hex SHA-256 used to dedupe payloads
func HashPayload(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
