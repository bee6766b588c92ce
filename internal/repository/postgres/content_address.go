package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"folio/internal/domain/models/docsystem"
	docsysRepo "folio/internal/domain/repositories/docsystem"
)

// PostgresContentAddressRepository implements ContentAddressRepository
type PostgresContentAddressRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewContentAddressRepository creates a new content address repository
func NewContentAddressRepository(config *RepositoryConfig) docsysRepo.ContentAddressRepository {
	return &PostgresContentAddressRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// Put inserts addr, or loads the existing row with the same (document_id, hash)
func (r *PostgresContentAddressRepository) Put(ctx context.Context, addr *docsystem.ContentAddress) (bool, error) {
	insert := fmt.Sprintf(`
		INSERT INTO %s (id, document_id, hash, payload, size, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (document_id, hash) DO NOTHING
	`, r.tables.ContentAddresses)

	executor := GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, insert,
		addr.ID, addr.DocumentID, addr.Hash, addr.Payload, addr.Size, addr.CreatedBy, addr.CreatedAt,
	)
	if err != nil {
		return false, translateError(err, "content_address", addr.ID)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	existing := fmt.Sprintf(`
		SELECT id, document_id, hash, payload, size, created_by, created_at
		FROM %s WHERE document_id = $1 AND hash = $2
	`, r.tables.ContentAddresses)
	err = executor.QueryRow(ctx, existing, addr.DocumentID, addr.Hash).Scan(
		&addr.ID, &addr.DocumentID, &addr.Hash, &addr.Payload, &addr.Size, &addr.CreatedBy, &addr.CreatedAt,
	)
	if err != nil {
		return false, translateError(err, "content_address", addr.Hash)
	}
	return false, nil
}

// Get retrieves an address with its payload
func (r *PostgresContentAddressRepository) Get(ctx context.Context, documentID, id string) (*docsystem.ContentAddress, error) {
	query := fmt.Sprintf(`
		SELECT id, document_id, hash, payload, size, created_by, created_at
		FROM %s WHERE id = $1 AND document_id = $2
	`, r.tables.ContentAddresses)

	var addr docsystem.ContentAddress
	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, id, documentID).Scan(
		&addr.ID, &addr.DocumentID, &addr.Hash, &addr.Payload, &addr.Size, &addr.CreatedBy, &addr.CreatedAt,
	)
	if err != nil {
		return nil, translateError(err, "content_address", id)
	}
	return &addr, nil
}

// Describe retrieves an address without its payload
func (r *PostgresContentAddressRepository) Describe(ctx context.Context, documentID, id string) (*docsystem.ContentAddress, error) {
	query := fmt.Sprintf(`
		SELECT id, document_id, hash, size, created_by, created_at
		FROM %s WHERE id = $1 AND document_id = $2
	`, r.tables.ContentAddresses)

	var addr docsystem.ContentAddress
	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, id, documentID).Scan(
		&addr.ID, &addr.DocumentID, &addr.Hash, &addr.Size, &addr.CreatedBy, &addr.CreatedAt,
	)
	if err != nil {
		return nil, translateError(err, "content_address", id)
	}
	return &addr, nil
}
