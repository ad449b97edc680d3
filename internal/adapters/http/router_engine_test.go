package httpadapter

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/kirillkom/property-doc-engine/internal/config"
	"github.com/kirillkom/property-doc-engine/internal/core/domain"
)

type classifierFake struct {
	lastText string
}

func (f *classifierFake) Classify(_ context.Context, text string) (*domain.ClassificationResult, error) {
	f.lastText = text
	top := domain.TypeScore{TypeID: "t-facture", Code: "FACTURE", RawScore: 5, MaxScore: 5, NormalizedScore: 1, Threshold: 0.85}
	return &domain.ClassificationResult{
		Candidates:     []domain.TypeScore{top},
		Top:            []domain.TypeScore{top},
		AutoAssigned:   true,
		AssignedTypeID: "t-facture",
	}, nil
}

type extractorFake struct {
	typeID string
}

func (f *extractorFake) Extract(_ context.Context, _ string, typeID string) (*domain.ExtractionResult, error) {
	f.typeID = typeID
	return &domain.ExtractionResult{Fields: []domain.FieldExtraction{{
		FieldName: "invoiceNumber", Value: "123", Raw: "123", Confidence: 0.85, RuleUsed: "r-1", Start: 10, End: 13,
	}}}, nil
}

type testRunnerFake struct {
	req domain.TestRunRequest
}

func (f *testRunnerFake) Run(_ context.Context, req domain.TestRunRequest) (*domain.TestRunResult, error) {
	f.req = req
	return &domain.TestRunResult{
		ExtractionType: "t-facture",
		Determinism:    &domain.DeterminismReport{Runs: req.DeterminismRuns, Stable: true},
	}, nil
}

type suggesterFake struct{}

func (suggesterFake) Suggest(_ context.Context, documentID string) (*domain.SuggestionPayload, error) {
	return &domain.SuggestionPayload{
		Confidence:  0.9,
		Suggestions: map[string]any{"amount": 558.26, "nature": "LOYER"},
		Meta:        domain.SuggestionMeta{DocumentID: documentID, DocumentTypeCode: "AVIS_ECHEANCE"},
		Locks:       []domain.FieldLock{{Field: "nature", Reason: "Rent notice"}},
		AutoCreate:  true,
	}, nil
}

func newEngineRouter(t *testing.T) (http.Handler, *classifierFake, *extractorFake, *testRunnerFake) {
	t.Helper()
	classifier := &classifierFake{}
	extractor := &extractorFake{}
	runner := &testRunnerFake{}
	handler := NewRouter(config.Config{APIRequestValidation: true}, Services{
		Classifier: classifier,
		Extractor:  extractor,
		TestRunner: runner,
		Suggester:  suggesterFake{},
	}).Handler()
	return handler, classifier, extractor, runner
}

func TestClassifyEndpoint(t *testing.T) {
	handler, classifier, _, _ := newEngineRouter(t)

	res := serve(handler, http.MethodPost, "/v1/classify", []byte(`{"text":"Facture n°123"}`))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if classifier.lastText != "Facture n°123" {
		t.Fatalf("classifier got %q", classifier.lastText)
	}

	var body struct {
		Top            []domain.TypeScore `json:"top3"`
		AutoAssigned   bool               `json:"auto_assigned"`
		AssignedTypeID string             `json:"assigned_type_id"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !body.AutoAssigned || body.AssignedTypeID != "t-facture" || len(body.Top) != 1 {
		t.Fatalf("unexpected classification %+v", body)
	}
}

func TestClassifyAcceptsEmptyText(t *testing.T) {
	handler, _, _, _ := newEngineRouter(t)

	res := serve(handler, http.MethodPost, "/v1/classify", []byte(`{"text":""}`))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
}

func TestClassifyRejectsMissingText(t *testing.T) {
	handler, _, _, _ := newEngineRouter(t)

	res := serve(handler, http.MethodPost, "/v1/classify", []byte(`{"content":"Facture"}`))
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "text") {
		t.Fatalf("expected the missing property in the message, got %s", res.Body.String())
	}
}

func TestClassifyRejectsMalformedJSONWithoutValidation(t *testing.T) {
	handler := NewRouter(config.Config{}, Services{Classifier: &classifierFake{}}).Handler()

	res := serve(handler, http.MethodPost, "/v1/classify", []byte(`{"text":`))
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestExtractEndpoint(t *testing.T) {
	handler, _, extractor, _ := newEngineRouter(t)

	res := serve(handler, http.MethodPost, "/v1/extract", []byte(`{"text":"Facture n°123","document_type_id":"t-facture"}`))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if extractor.typeID != "t-facture" {
		t.Fatalf("extractor got type %q", extractor.typeID)
	}

	var body domain.ExtractionResult
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.Fields) != 1 || body.Fields[0].Start != 10 || body.Fields[0].End != 13 {
		t.Fatalf("unexpected fields %+v", body.Fields)
	}
}

func TestExtractRequiresType(t *testing.T) {
	handler := NewRouter(config.Config{}, Services{Extractor: &extractorFake{}}).Handler()

	res := serve(handler, http.MethodPost, "/v1/extract", []byte(`{"text":"x","document_type_id":"  "}`))
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestTestRunEndpoint(t *testing.T) {
	handler, _, _, runner := newEngineRouter(t)

	res := serve(handler, http.MethodPost, "/v1/test-runs", []byte(`{"text":"Facture","determinism_runs":3,"include_inactive":true}`))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if runner.req.DeterminismRuns != 3 || !runner.req.IncludeInactive {
		t.Fatalf("unexpected request %+v", runner.req)
	}
}

func TestTestRunRejectsTooManyRuns(t *testing.T) {
	handler, _, _, _ := newEngineRouter(t)

	res := serve(handler, http.MethodPost, "/v1/test-runs", []byte(`{"text":"Facture","determinism_runs":500}`))
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestSuggestionEndpoint(t *testing.T) {
	handler, _, _, _ := newEngineRouter(t)

	res := serve(handler, http.MethodGet, "/v1/documents/doc-9/suggestion", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}

	var body domain.SuggestionPayload
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Meta.DocumentID != "doc-9" || !body.AutoCreate || len(body.Locks) != 1 {
		t.Fatalf("unexpected suggestion %+v", body)
	}
}

func TestUnknownRouteReturns404(t *testing.T) {
	handler, _, _, _ := newEngineRouter(t)

	res := serve(handler, http.MethodGet, "/v1/rag/query", nil)
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestOpenAPISpecIsServed(t *testing.T) {
	handler, _, _, _ := newEngineRouter(t)

	res := serve(handler, http.MethodGet, "/openapi.yaml", nil)
	if res.Code != http.StatusOK || !strings.Contains(res.Body.String(), "/v1/test-runs") {
		t.Fatalf("expected embedded OpenAPI document, got %d", res.Code)
	}
}
