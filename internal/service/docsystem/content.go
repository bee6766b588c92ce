package docsystem

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"folio/internal/domain"
	"folio/internal/domain/models/docsystem"
	docsysRepo "folio/internal/domain/repositories/docsystem"
	"folio/internal/domain/services"
	docsysSvc "folio/internal/domain/services/docsystem"
)

// contentStore implements the ContentStore interface
type contentStore struct {
	contentRepo docsysRepo.ContentAddressRepository
	authorizer  services.DocumentAuthorizer
	maxPayload  int
	logger      *slog.Logger
}

// NewContentStore creates a new content address store
func NewContentStore(
	contentRepo docsysRepo.ContentAddressRepository,
	authorizer services.DocumentAuthorizer,
	maxPayload int,
	logger *slog.Logger,
) docsysSvc.ContentStore {
	return &contentStore{
		contentRepo: contentRepo,
		authorizer:  authorizer,
		maxPayload:  maxPayload,
		logger:      logger,
	}
}

// Put stores payload as a new address of the document. Putting the same bytes
// twice returns the first address.
func (s *contentStore) Put(ctx context.Context, userID, documentID string, payload []byte) (*docsystem.ContentAddress, error) {
	if s.maxPayload > 0 && len(payload) > s.maxPayload {
		return nil, &domain.ValidationError{
			Message: fmt.Sprintf("payload is %d bytes, limit is %d", len(payload), s.maxPayload),
		}
	}
	if _, err := s.authorizer.Authorize(ctx, userID, documentID, docsystem.AccessEdit); err != nil {
		return nil, err
	}

	addr := &docsystem.ContentAddress{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		Hash:       docsystem.HashPayload(payload),
		Payload:    payload,
		Size:       len(payload),
		CreatedBy:  userID,
		CreatedAt:  time.Now().UTC(),
	}
	created, err := s.contentRepo.Put(ctx, addr)
	if err != nil {
		return nil, err
	}

	if created {
		s.logger.Debug("content address stored",
			"document_id", documentID,
			"address_id", addr.ID,
			"size", addr.Size,
		)
	}
	return addr, nil
}

// Get returns the address with its payload
func (s *contentStore) Get(ctx context.Context, userID, documentID, addressID string) (*docsystem.ContentAddress, error) {
	if _, err := s.authorizer.Authorize(ctx, userID, documentID, docsystem.AccessView); err != nil {
		return nil, err
	}
	return s.contentRepo.Get(ctx, documentID, addressID)
}

// Describe returns address metadata without the payload
func (s *contentStore) Describe(ctx context.Context, userID, documentID, addressID string) (*docsystem.ContentAddress, error) {
	if _, err := s.authorizer.Authorize(ctx, userID, documentID, docsystem.AccessView); err != nil {
		return nil, err
	}
	return s.contentRepo.Describe(ctx, documentID, addressID)
}
