package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/property-doc-engine/internal/core/domain"
)

func newRepoWithMock(t *testing.T) (*DocumentRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &DocumentRepository{db: db}, mock, func() { _ = db.Close() }
}

func TestGetByIDReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, filename, mime_type, storage_path").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetByIDMapsNullableColumns(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"id", "filename", "mime_type", "storage_path", "document_type_id", "confidence",
		"text_content", "text_source", "text_sha256", "text_length", "status", "error_message", "created_at", "updated_at",
	}).AddRow("doc-1", "avis.pdf", "application/pdf", "k/avis.pdf", nil, 0.0,
		"Avis d'échéance", "pdf-parse", "abc", 15, "needs_review", nil, now, now)

	mock.ExpectQuery("FROM documents").
		WithArgs("doc-1").
		WillReturnRows(rows)

	doc, err := repo.GetByID(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if doc.DocumentTypeID != "" || doc.Error != "" {
		t.Fatalf("null columns must map to empty strings, got %+v", doc)
	}
	if doc.Text != "Avis d'échéance" || doc.TextSource != domain.TextSourcePDFParse || doc.Status != domain.StatusNeedsReview {
		t.Fatalf("unexpected document %+v", doc)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdateStatusReturnsDomainNotFoundWhenNoRowsAffected(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE documents").
		WithArgs("missing", string(domain.StatusProcessing), "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), "missing", domain.StatusProcessing, "")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveTextWritesExtractionMetadata(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE documents").
		WithArgs("doc-1", "Loyer", "plain", "sha", 5, 0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SaveText(context.Background(), "doc-1", domain.ExtractedText{
		Text: "Loyer", Source: domain.TextSourcePlain, SHA256: "sha", Length: 5,
	})
	if err != nil {
		t.Fatalf("SaveText() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveAssignmentReturnsDomainNotFoundWhenNoRowsAffected(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE documents").
		WithArgs("missing", "t-facture", 0.9, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SaveAssignment(context.Background(), "missing", domain.Assignment{
		DocumentTypeID: "t-facture",
		Confidence:     0.9,
		AutoAssigned:   true,
	})
	if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
