package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"folio/internal/domain"
	"folio/internal/domain/models/docsystem"
	docsysRepo "folio/internal/domain/repositories/docsystem"
)

// PostgresDocumentRepository implements DocumentRepository
type PostgresDocumentRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(config *RepositoryConfig) docsysRepo.DocumentRepository {
	return &PostgresDocumentRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

const documentColumns = `id, title, is_public, folder_id, owned_by, editors, root_parent_id,
	parent_address, head_address, head_version, created_at, updated_at`

func scanDocument(row pgx.Row) (*docsystem.Document, error) {
	var doc docsystem.Document
	err := row.Scan(
		&doc.ID, &doc.Title, &doc.IsPublic, &doc.FolderID, &doc.OwnedBy, &doc.Editors,
		&doc.RootParentID, &doc.ParentAddress, &doc.HeadAddress, &doc.HeadVersion,
		&doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if doc.Editors == nil {
		doc.Editors = []string{}
	}
	return &doc, nil
}

// Create creates a new document
func (r *PostgresDocumentRepository) Create(ctx context.Context, doc *docsystem.Document) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, title, is_public, folder_id, owned_by, editors, root_parent_id,
			parent_address, head_address, head_version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, r.tables.Documents)

	editors := doc.Editors
	if editors == nil {
		editors = []string{}
	}

	executor := GetExecutor(ctx, r.pool)
	_, err := executor.Exec(ctx, query,
		doc.ID, doc.Title, doc.IsPublic, doc.FolderID, doc.OwnedBy, editors, doc.RootParentID,
		doc.ParentAddress, doc.HeadAddress, doc.HeadVersion, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return translateError(err, "document", doc.ID)
	}
	return nil
}

// GetByID retrieves a document by ID
func (r *PostgresDocumentRepository) GetByID(ctx context.Context, id string) (*docsystem.Document, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, documentColumns, r.tables.Documents)

	executor := GetExecutor(ctx, r.pool)
	doc, err := scanDocument(executor.QueryRow(ctx, query, id))
	if err != nil {
		return nil, translateError(err, "document", id)
	}
	return doc, nil
}

// Update persists title, visibility, folder and editor changes
func (r *PostgresDocumentRepository) Update(ctx context.Context, doc *docsystem.Document) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET title = $2, is_public = $3, folder_id = $4, editors = $5, updated_at = $6
		WHERE id = $1
	`, r.tables.Documents)

	doc.UpdatedAt = time.Now().UTC()

	executor := GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query, doc.ID, doc.Title, doc.IsPublic, doc.FolderID, doc.Editors, doc.UpdatedAt)
	if err != nil {
		return translateError(err, "document", doc.ID)
	}
	if tag.RowsAffected() == 0 {
		return &domain.NotFoundError{Message: "document not found: " + doc.ID}
	}
	return nil
}

// Delete deletes a document; dependent rows cascade
func (r *PostgresDocumentRepository) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, r.tables.Documents)

	executor := GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query, id)
	if err != nil {
		return translateError(err, "document", id)
	}
	if tag.RowsAffected() == 0 {
		return &domain.NotFoundError{Message: "document not found: " + id}
	}
	return nil
}

// ListBranches lists documents branched from one of this document's addresses
func (r *PostgresDocumentRepository) ListBranches(ctx context.Context, id string) ([]docsystem.Document, error) {
	query := fmt.Sprintf(`
		SELECT d.id, d.title, d.is_public, d.folder_id, d.owned_by, d.editors, d.root_parent_id,
			d.parent_address, d.head_address, d.head_version, d.created_at, d.updated_at
		FROM %s d
		JOIN %s ca ON ca.id = d.parent_address
		WHERE ca.document_id = $1 AND d.id <> $1
		ORDER BY d.created_at
	`, r.tables.Documents, r.tables.ContentAddresses)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	defer rows.Close()

	var branches []docsystem.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan branch: %w", err)
		}
		branches = append(branches, *doc)
	}
	return branches, rows.Err()
}

// AdvanceHead moves head_address from expected to next. The WHERE clause is
// the compare-and-swap: zero rows means someone else moved the head first.
func (r *PostgresDocumentRepository) AdvanceHead(ctx context.Context, id string, expected *string, next string) (int64, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET head_address = $3, head_version = head_version + 1, updated_at = NOW()
		WHERE id = $1 AND head_address IS NOT DISTINCT FROM $2
		RETURNING head_version
	`, r.tables.Documents)

	executor := GetExecutor(ctx, r.pool)
	var version int64
	err := executor.QueryRow(ctx, query, id, expected, next).Scan(&version)
	if err == nil {
		return version, nil
	}
	if !IsPgNoRowsError(err) {
		return 0, fmt.Errorf("advance head: %w", err)
	}

	// Distinguish a missing document from a stale head
	if _, getErr := r.GetByID(ctx, id); getErr != nil {
		return 0, getErr
	}
	r.logger.Debug("head compare-and-swap lost", "document_id", id)
	return 0, domain.NewConflict("document", id, "document head has moved; re-derive the proposal against the current head")
}
