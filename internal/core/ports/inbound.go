package ports

import (
	"context"
	"io"

	"github.com/kirillkom/property-doc-engine/internal/core/domain"
)

// DocumentIngestor is the inbound contract for document upload orchestration.
type DocumentIngestor interface {
	Upload(ctx context.Context, filename, mimeType string, body io.Reader) (*domain.Document, error)
}

// DocumentReader is the inbound read model for document metadata/state.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
}

// DocumentProcessor is the inbound contract for asynchronous document processing.
type DocumentProcessor interface {
	ProcessByID(ctx context.Context, documentID string) error
}

// Classifier ranks active document types against raw text.
type Classifier interface {
	Classify(ctx context.Context, text string) (*domain.ClassificationResult, error)
}

// FieldExtractor applies one type's extraction rules to raw text.
type FieldExtractor interface {
	Extract(ctx context.Context, text, typeID string) (*domain.ExtractionResult, error)
}

// TestRunner is the admin test harness: classification plus extraction on ad hoc text.
type TestRunner interface {
	Run(ctx context.Context, req domain.TestRunRequest) (*domain.TestRunResult, error)
}

// Suggester builds a business-object suggestion for a stored document.
type Suggester interface {
	Suggest(ctx context.Context, documentID string) (*domain.SuggestionPayload, error)
}
