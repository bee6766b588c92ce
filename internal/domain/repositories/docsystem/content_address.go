package docsystem

import (
	"context"

	"folio/internal/domain/models/docsystem"
)

// ContentAddressRepository stores immutable payload snapshots
type ContentAddressRepository interface {
	// Put stores addr unless a payload with the same hash already exists in the
	// document, in which case addr is overwritten with the existing row.
	// Returns true when a new row was created.
	Put(ctx context.Context, addr *docsystem.ContentAddress) (bool, error)

	// Get retrieves an address with its payload
	Get(ctx context.Context, documentID, id string) (*docsystem.ContentAddress, error)

	// Describe retrieves an address without its payload
	Describe(ctx context.Context, documentID, id string) (*docsystem.ContentAddress, error)
}
