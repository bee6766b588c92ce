package services

import (
	"context"
	"time"
)

// BlobInfo describes an object in the attachment store
type BlobInfo struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// BlobStore is the attachment payload store. The engine only verifies that
// referenced blobs exist; uploads happen outside it.
type BlobStore interface {
	// Stat returns blob metadata, or NotFound when the key does not exist
	Stat(ctx context.Context, key string) (*BlobInfo, error)
}
