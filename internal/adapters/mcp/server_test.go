package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kirillkom/property-doc-engine/internal/core/domain"
)

type classifierFake struct{}

func (classifierFake) Classify(_ context.Context, text string) (*domain.ClassificationResult, error) {
	if text == "" {
		return &domain.ClassificationResult{}, nil
	}
	top := domain.TypeScore{TypeID: "t-facture", Code: "FACTURE", NormalizedScore: 1}
	return &domain.ClassificationResult{Top: []domain.TypeScore{top}, AutoAssigned: true, AssignedTypeID: "t-facture"}, nil
}

type suggesterFake struct {
	err error
}

func (f suggesterFake) Suggest(_ context.Context, documentID string) (*domain.SuggestionPayload, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.SuggestionPayload{Confidence: 0.8, Meta: domain.SuggestionMeta{DocumentID: documentID}}, nil
}

type testRunnerFake struct {
	got domain.TestRunRequest
}

func (f *testRunnerFake) Run(_ context.Context, req domain.TestRunRequest) (*domain.TestRunResult, error) {
	f.got = req
	return &domain.TestRunResult{}, nil
}

func call(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatalf("empty tool result")
	}
	text, ok := mcp.AsTextContent(res.Content[0])
	if !ok {
		t.Fatalf("expected text content, got %T", res.Content[0])
	}
	return text.Text
}

func TestNewServerRegistersConfiguredTools(t *testing.T) {
	s := NewServer("test", Services{Classifier: classifierFake{}, Suggester: suggesterFake{}}, nil)

	tools := s.ListTools()
	if _, ok := tools["classify_text"]; !ok {
		t.Fatalf("classify_text not registered")
	}
	if _, ok := tools["suggest_document"]; !ok {
		t.Fatalf("suggest_document not registered")
	}
	if _, ok := tools["extract_fields"]; ok {
		t.Fatalf("extract_fields registered without an extractor")
	}
}

func TestClassifyTextReturnsJSON(t *testing.T) {
	h := &handlers{svc: Services{Classifier: classifierFake{}}}

	res, err := h.classifyText(context.Background(), call(map[string]any{"text": "Facture n°123"}))
	if err != nil {
		t.Fatalf("classifyText() error = %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error %s", resultText(t, res))
	}

	var decoded domain.ClassificationResult
	if err := json.Unmarshal([]byte(resultText(t, res)), &decoded); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if decoded.AssignedTypeID != "t-facture" {
		t.Fatalf("unexpected result %+v", decoded)
	}
}

func TestClassifyTextRequiresText(t *testing.T) {
	h := &handlers{svc: Services{Classifier: classifierFake{}}}

	res, err := h.classifyText(context.Background(), call(map[string]any{}))
	if err != nil {
		t.Fatalf("classifyText() error = %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected tool error for missing text")
	}
}

func TestSuggestDocumentNotFoundIsToolError(t *testing.T) {
	h := &handlers{svc: Services{Suggester: suggesterFake{
		err: domain.WrapError(domain.ErrDocumentNotFound, "get document", errors.New("id=doc-x")),
	}}}

	res, err := h.suggestDocument(context.Background(), call(map[string]any{"document_id": "doc-x"}))
	if err != nil {
		t.Fatalf("suggestDocument() error = %v", err)
	}
	if !res.IsError || !strings.HasPrefix(resultText(t, res), "not found") {
		t.Fatalf("expected not found tool error, got %+v", res)
	}
}

func TestRunTestPassesOptionalArguments(t *testing.T) {
	runner := &testRunnerFake{}
	h := &handlers{svc: Services{TestRunner: runner}}

	_, err := h.runTest(context.Background(), call(map[string]any{
		"text":             "Avis d'échéance",
		"document_type_id": "t-avis",
		"determinism_runs": float64(4),
		"include_inactive": true,
	}))
	if err != nil {
		t.Fatalf("runTest() error = %v", err)
	}
	if runner.got.TypeID != "t-avis" || runner.got.DeterminismRuns != 4 || !runner.got.IncludeInactive {
		t.Fatalf("unexpected request %+v", runner.got)
	}
}
