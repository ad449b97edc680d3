package cli

import (
	"context"
	"fmt"
	"sync"

	"github.com/kirillkom/property-doc-engine/internal/core/domain"
)

// scratchDocuments holds the single document a suggest run works on.
type scratchDocuments struct {
	mu   sync.Mutex
	docs map[string]domain.Document
}

func newScratchDocuments(docs ...domain.Document) *scratchDocuments {
	s := &scratchDocuments{docs: make(map[string]domain.Document, len(docs))}
	for _, d := range docs {
		s.docs[d.ID] = d
	}
	return s
}

func (s *scratchDocuments) Create(_ context.Context, doc *domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.ID] = *doc
	return nil
}

func (s *scratchDocuments) GetByID(_ context.Context, id string) (*domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
	}
	return &doc, nil
}

func (s *scratchDocuments) UpdateStatus(_ context.Context, id string, status domain.DocumentStatus, errMessage string) error {
	return s.update(id, func(d *domain.Document) {
		d.Status = status
		d.Error = errMessage
	})
}

func (s *scratchDocuments) SaveText(_ context.Context, id string, text domain.ExtractedText) error {
	return s.update(id, func(d *domain.Document) {
		d.Text = text.Text
		d.TextSource = text.Source
		d.TextSHA256 = text.SHA256
		d.TextLength = text.Length
	})
}

func (s *scratchDocuments) SaveAssignment(_ context.Context, id string, assignment domain.Assignment) error {
	return s.update(id, func(d *domain.Document) {
		d.DocumentTypeID = assignment.DocumentTypeID
		d.Confidence = assignment.Confidence
	})
}

func (s *scratchDocuments) update(id string, fn func(*domain.Document)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return domain.WrapError(domain.ErrDocumentNotFound, "update document", fmt.Errorf("id=%s", id))
	}
	fn(&doc)
	s.docs[id] = doc
	return nil
}
