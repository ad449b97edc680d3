package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/property-doc-engine/internal/core/domain"
)

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO documents (
	id, filename, mime_type, storage_path, document_type_id, confidence, status, error_message, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`,
		doc.ID, doc.Filename, doc.MimeType, doc.StoragePath, nullString(doc.DocumentTypeID),
		doc.Confidence, string(doc.Status), doc.Error, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, filename, mime_type, storage_path, document_type_id, confidence, text_content, text_source, text_sha256, text_length, status, error_message, created_at, updated_at
FROM documents
WHERE id = $1
`, id)

	var doc domain.Document
	var typeID, text, source, sha, errMsg sql.NullString
	var status string
	err := row.Scan(
		&doc.ID, &doc.Filename, &doc.MimeType, &doc.StoragePath, &typeID, &doc.Confidence,
		&text, &source, &sha, &doc.TextLength, &status, &errMsg, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}

	doc.DocumentTypeID = typeID.String
	doc.Text = text.String
	doc.TextSource = domain.TextSource(source.String)
	doc.TextSHA256 = sha.String
	doc.Error = errMsg.String
	doc.Status = domain.DocumentStatus(status)
	return &doc, nil
}

func (r *DocumentRepository) UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, id, string(status), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	return requireRow(result, "update document status", id)
}

func (r *DocumentRepository) SaveText(ctx context.Context, id string, text domain.ExtractedText) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE documents
SET text_content = $2, text_source = $3, text_sha256 = $4, text_length = $5, pages_ocred = $6, updated_at = $7
WHERE id = $1
`, id, text.Text, string(text.Source), text.SHA256, text.Length, text.PagesOCRed, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save extracted text: %w", err)
	}
	return requireRow(result, "save extracted text", id)
}

func (r *DocumentRepository) SaveAssignment(ctx context.Context, id string, assignment domain.Assignment) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE documents
SET document_type_id = $2, confidence = $3, updated_at = $4
WHERE id = $1
`, id, nullString(assignment.DocumentTypeID), assignment.Confidence, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save assignment: %w", err)
	}
	return requireRow(result, "save assignment", id)
}

func requireRow(result sql.Result, operation, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", operation, err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrDocumentNotFound, operation, fmt.Errorf("id=%s", id))
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
