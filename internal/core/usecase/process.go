package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/property-doc-engine/internal/core/domain"
	"github.com/kirillkom/property-doc-engine/internal/core/ports"
)

// NoTextMessage is stored on documents whose extraction produced no text.
const NoTextMessage = "no text extracted, use manual text entry"

type ProcessDocumentUseCase struct {
	repo       ports.DocumentRepository
	extractor  ports.TextExtractor
	classifier ports.Classifier
}

func NewProcessDocumentUseCase(
	repo ports.DocumentRepository,
	extractor ports.TextExtractor,
	classifier ports.Classifier,
) *ProcessDocumentUseCase {
	return &ProcessDocumentUseCase{
		repo:       repo,
		extractor:  extractor,
		classifier: classifier,
	}
}

// ProcessByID extracts text from a stored upload, classifies it and records
// the assignment. Documents that cannot be auto-assigned end in needs_review.
func (uc *ProcessDocumentUseCase) ProcessByID(ctx context.Context, documentID string) error {
	if err := uc.markStatus(ctx, documentID, domain.StatusProcessing, ""); err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}

	status, message, err := uc.processPipeline(ctx, documentID)
	if err != nil {
		if failErr := uc.markFailed(ctx, documentID, err); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if err := uc.markStatus(ctx, documentID, status, message); err != nil {
		return fmt.Errorf("set status=%s: %w", status, err)
	}
	return nil
}

func (uc *ProcessDocumentUseCase) processPipeline(ctx context.Context, documentID string) (domain.DocumentStatus, string, error) {
	doc, err := uc.loadDocument(ctx, documentID)
	if err != nil {
		return "", "", err
	}

	text, err := uc.extractText(ctx, doc)
	if err != nil {
		return "", "", err
	}
	if strings.TrimSpace(text.Text) == "" {
		return domain.StatusNeedsReview, NoTextMessage, nil
	}

	classification, err := uc.classify(ctx, text.Text)
	if err != nil {
		return "", "", err
	}

	assignment := assignmentFrom(classification)
	if err := uc.persistAssignment(ctx, doc.ID, assignment); err != nil {
		return "", "", err
	}
	if !assignment.AutoAssigned {
		return domain.StatusNeedsReview, "", nil
	}
	return domain.StatusClassified, "", nil
}

func (uc *ProcessDocumentUseCase) loadDocument(ctx context.Context, documentID string) (*domain.Document, error) {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("fetch document by id: %w", err)
	}
	return doc, nil
}

func (uc *ProcessDocumentUseCase) extractText(ctx context.Context, doc *domain.Document) (domain.ExtractedText, error) {
	text, err := uc.extractor.Extract(ctx, doc)
	if err != nil {
		return domain.ExtractedText{}, fmt.Errorf("extract text: %w", err)
	}
	if err := uc.repo.SaveText(ctx, doc.ID, text); err != nil {
		return domain.ExtractedText{}, fmt.Errorf("save extracted text: %w", err)
	}
	return text, nil
}

func (uc *ProcessDocumentUseCase) classify(ctx context.Context, text string) (*domain.ClassificationResult, error) {
	classification, err := uc.classifier.Classify(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("classify document: %w", err)
	}
	return classification, nil
}

func (uc *ProcessDocumentUseCase) persistAssignment(ctx context.Context, documentID string, assignment domain.Assignment) error {
	if err := uc.repo.SaveAssignment(ctx, documentID, assignment); err != nil {
		return fmt.Errorf("save assignment: %w", err)
	}
	return nil
}

func (uc *ProcessDocumentUseCase) markStatus(ctx context.Context, documentID string, status domain.DocumentStatus, errMessage string) error {
	return uc.repo.UpdateStatus(ctx, documentID, status, errMessage)
}

func (uc *ProcessDocumentUseCase) markFailed(ctx context.Context, documentID string, processErr error) error {
	if processErr == nil {
		return nil
	}
	return uc.markStatus(ctx, documentID, domain.StatusFailed, processErr.Error())
}

func assignmentFrom(classification *domain.ClassificationResult) domain.Assignment {
	best, ok := classification.Best()
	if !ok {
		return domain.Assignment{}
	}
	if classification.AutoAssigned {
		return domain.Assignment{DocumentTypeID: classification.AssignedTypeID, Confidence: best.NormalizedScore, AutoAssigned: true}
	}
	return domain.Assignment{Confidence: best.NormalizedScore}
}
