package revision

import (
	"context"

	"folio/internal/domain/models/revision"
)

// MessageService drives the message lifecycle:
// PENDING → REVISING → REVISED → COMPLETED, or PENDING → COMPLETED for comments.
type MessageService interface {
	CreateMessage(ctx context.Context, req *CreateMessageRequest) (*revision.Message, error)
	GetMessage(ctx context.Context, userID, messageID string) (*revision.Message, error)

	// ReviseComplete records the proposed address: REVISING → REVISED
	ReviseComplete(ctx context.Context, messageID, addressID string) (*revision.Message, error)

	// FailRevision aborts revision work: REVISING → COMPLETED with reason
	FailRevision(ctx context.Context, messageID, reason string) (*revision.Message, error)

	// AbortRevision is FailRevision on behalf of a user (the author or an editor)
	AbortRevision(ctx context.Context, userID, messageID, reason string) (*revision.Message, error)

	// UpdateRevisionStatus accepts or declines a REVISED proposal guarded by expectedAddress
	UpdateRevisionStatus(ctx context.Context, userID, messageID string, status revision.Status, expectedAddress string) (*revision.Message, error)

	EditMessage(ctx context.Context, userID, messageID, content string) (*revision.Message, error)
	HideMessage(ctx context.Context, userID, messageID string, hidden bool) (*revision.Message, error)
	DeleteMessage(ctx context.Context, userID, messageID string, deleteReplies bool) error

	CreateThread(ctx context.Context, req *CreateThreadRequest) (*revision.Thread, error)
	GetThread(ctx context.Context, userID, threadID string) (*revision.Thread, error)
	ListThreads(ctx context.Context, userID, documentID string) ([]revision.Thread, error)
	ListThreadMessages(ctx context.Context, userID, threadID string) ([]revision.Message, error)
}

// CreateMessageRequest represents a message submission.
// With ThreadID unset the message goes to the document thread.
type CreateMessageRequest struct {
	UserID      string               `json:"-"`
	DocumentID  string               `json:"-"`
	ThreadID    *string              `json:"-"`
	Content     string               `json:"content"`
	Attachments revision.Attachments `json:"attachments,omitempty"`
	ReplyTo     *string              `json:"reply_to,omitempty"` // Timeline event to reply to (document thread only)
}

// CreateThreadRequest represents an AI thread creation request
type CreateThreadRequest struct {
	UserID     string `json:"-"`
	DocumentID string `json:"document_id"`
	ChannelID  string `json:"channel_id,omitempty"`
	Title      string `json:"title"`
}
