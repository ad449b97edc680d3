package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const fixture = "../infrastructure/repository/rulefile/testdata/snapshot.yaml"

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCommand("test", &out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--rules", fixture, "--compact"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestClassifyInlineText(t *testing.T) {
	out, err := run(t, "classify", "--text", "Facture n°123 Total: 1250,50 €")
	if err != nil {
		t.Fatalf("classify error = %v", err)
	}
	var result struct {
		Top []struct {
			Code string `json:"code"`
		} `json:"top3"`
	}
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(result.Top) == 0 || result.Top[0].Code != "FACTURE" {
		t.Fatalf("expected FACTURE first, got %s", out)
	}
}

func TestClassifyReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "facture.txt")
	if err := os.WriteFile(path, []byte("Facture n°7\r\nTotal: 99 €\r\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	out, err := run(t, "classify", path)
	if err != nil {
		t.Fatalf("classify error = %v", err)
	}
	if !strings.Contains(out, `"code":"FACTURE"`) {
		t.Fatalf("unexpected output %s", out)
	}
}

func TestExtractFirstByField(t *testing.T) {
	out, err := run(t, "extract", "--type", "t-facture", "--first", "--text", "Facture n°123 Total: 1250,50")
	if err != nil {
		t.Fatalf("extract error = %v", err)
	}
	var fields map[string]struct {
		Value any `json:"value"`
	}
	if err := json.Unmarshal([]byte(out), &fields); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if fields["invoiceNumber"].Value != "123" {
		t.Fatalf("unexpected invoiceNumber %v", fields["invoiceNumber"].Value)
	}
	if _, ok := fields["amount"]; !ok {
		t.Fatalf("expected amount in %s", out)
	}
}

func TestExtractRequiresType(t *testing.T) {
	if _, err := run(t, "extract", "--text", "Facture"); err == nil {
		t.Fatal("expected missing --type error")
	}
}

func TestInputIsExclusive(t *testing.T) {
	if _, err := run(t, "classify", "--text", "x", "file.txt"); err == nil {
		t.Fatal("expected an error when --text and a file are both given")
	}
	if _, err := run(t, "classify"); err == nil {
		t.Fatal("expected an error without input")
	}
}

func TestTestRunDeterminism(t *testing.T) {
	out, err := run(t, "test-run", "--runs", "3", "--text", "Facture n°123 Total: 1250,50 €")
	if err != nil {
		t.Fatalf("test-run error = %v", err)
	}
	var result struct {
		ExtractionType string `json:"extraction_type_id"`
		Determinism    struct {
			Runs   int  `json:"runs"`
			Stable bool `json:"stable"`
		} `json:"determinism"`
	}
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if result.ExtractionType != "t-facture" || result.Determinism.Runs != 3 || !result.Determinism.Stable {
		t.Fatalf("unexpected result %s", out)
	}
}

func TestSuggestWithExplicitType(t *testing.T) {
	text := "Avis d'échéance 03/2024\nBien : Résidence Les Tilleuls\nLoyer : 558,26\nCharges : 20,00\n"
	out, err := run(t, "suggest", "--type", "t-avis", "--text", text)
	if err != nil {
		t.Fatalf("suggest error = %v", err)
	}
	var payload struct {
		Suggestions map[string]any `json:"suggestions"`
		Meta        struct {
			DocumentTypeCode string `json:"document_type_code"`
		} `json:"meta"`
	}
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if payload.Meta.DocumentTypeCode != "AVIS_ECHEANCE" {
		t.Fatalf("unexpected type %q", payload.Meta.DocumentTypeCode)
	}
	if payload.Suggestions["periodMonth"] != "03" {
		t.Fatalf("unexpected suggestions %v", payload.Suggestions)
	}
}

func TestSuggestUnknownType(t *testing.T) {
	if _, err := run(t, "suggest", "--type", "t-gone", "--text", "x"); err == nil {
		t.Fatal("expected not found error")
	}
}

func TestValidateReportsBrokenTypes(t *testing.T) {
	out, err := run(t, "validate")
	if err != nil {
		t.Fatalf("validate error = %v", err)
	}
	var reports []typeReport
	if err := json.Unmarshal([]byte(out), &reports); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	byID := make(map[string]typeReport, len(reports))
	for _, r := range reports {
		byID[r.ID] = r
	}
	if len(byID) != 3 {
		t.Fatalf("expected inactive types too, got %v", reports)
	}
	if !byID["t-archive"].ConfigError {
		t.Fatalf("expected config error on t-archive: %+v", byID["t-archive"])
	}
	if len(byID["t-facture"].Problems) != 0 {
		t.Fatalf("unexpected problems on t-facture: %v", byID["t-facture"].Problems)
	}

	if _, err := run(t, "validate", "--strict"); err == nil {
		t.Fatal("expected --strict to fail")
	}
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	if err != nil || strings.TrimSpace(out) != "rulectl test" {
		t.Fatalf("version = %q, %v", out, err)
	}
}
