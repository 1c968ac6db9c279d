package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-admission-api/internal/models"
)

// DocumentRepository reads documents attached to applications or accounts.
// Ownership re-pointing on approval happens inside the approval transaction.
type DocumentRepository struct {
	db *sqlx.DB
}

// NewDocumentRepository constructs a DocumentRepository.
func NewDocumentRepository(db *sqlx.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// ListByApplication returns the documents still attached to an application.
func (r *DocumentRepository) ListByApplication(ctx context.Context, applicationID int64) ([]models.Document, error) {
	const query = `SELECT id, application_id, owner_id, file_name, content_type, storage_path, uploaded_at
        FROM documents WHERE application_id = $1 ORDER BY uploaded_at`
	var docs []models.Document
	if err := r.db.SelectContext(ctx, &docs, query, applicationID); err != nil {
		return nil, fmt.Errorf("list application documents: %w", err)
	}
	return docs, nil
}

// ListByOwner returns the documents owned by an account.
func (r *DocumentRepository) ListByOwner(ctx context.Context, ownerID int64) ([]models.Document, error) {
	const query = `SELECT id, application_id, owner_id, file_name, content_type, storage_path, uploaded_at
        FROM documents WHERE owner_id = $1 ORDER BY uploaded_at`
	var docs []models.Document
	if err := r.db.SelectContext(ctx, &docs, query, ownerID); err != nil {
		return nil, fmt.Errorf("list owner documents: %w", err)
	}
	return docs, nil
}
