package rulefile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/kirillkom/property-doc-engine/internal/core/domain"
	"github.com/kirillkom/property-doc-engine/internal/core/engine"
)

const fixture = "testdata/snapshot.yaml"

func TestStoreListsActiveTypesInOrder(t *testing.T) {
	store := NewStore(fixture)

	sources, err := store.ListRuleSources(context.Background(), true)
	if err != nil {
		t.Fatalf("ListRuleSources() error = %v", err)
	}
	if len(sources) != 2 || sources[0].Type.Code != "FACTURE" || sources[1].Type.Code != "AVIS_ECHEANCE" {
		t.Fatalf("unexpected order %+v", sources)
	}

	facture := sources[0]
	if len(facture.Rules) != 2 || facture.Rules[0].FieldName != "amount" || *facture.Rules[0].Confidence != 0.95 {
		t.Fatalf("rules must be sorted by priority, got %+v", facture.Rules)
	}

	avis := sources[1]
	if len(avis.TypeSignals) != 2 {
		t.Fatalf("disabled type signals must be dropped, got %+v", avis.TypeSignals)
	}
	if avis.TypeSignals[0].Orphan() || !avis.TypeSignals[1].Orphan() {
		t.Fatalf("expected the deleted signal to be an orphan, got %+v", avis.TypeSignals)
	}
}

func TestStoreIncludesInactiveOnRequest(t *testing.T) {
	sources, err := NewStore(fixture).ListRuleSources(context.Background(), false)
	if err != nil {
		t.Fatalf("ListRuleSources() error = %v", err)
	}
	if len(sources) != 3 {
		t.Fatalf("expected 3 types, got %d", len(sources))
	}
}

func TestStoreConfigBlocksKeepKeyOrder(t *testing.T) {
	src, err := NewStore(fixture).GetRuleSource(context.Background(), "t-avis")
	if err != nil {
		t.Fatalf("GetRuleSource() error = %v", err)
	}

	rs := engine.CompileRuleSet(*src)
	if rs.HasConfigError() {
		t.Fatalf("unexpected config warnings %v", rs.Warnings)
	}
	names := make([]string, 0, len(rs.Suggestions.Regex))
	for _, r := range rs.Suggestions.Regex {
		names = append(names, r.Name)
	}
	want := []string{"periode_bandeau", "bien", "montantLoyer", "chargesRecup"}
	if len(names) != len(want) {
		t.Fatalf("unexpected regex names %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("regex order = %v, want %v", names, want)
		}
	}
}

func TestStoreKeepsMalformedBlockVerbatim(t *testing.T) {
	src, err := NewStore(fixture).GetRuleSource(context.Background(), "t-archive")
	if err != nil {
		t.Fatalf("GetRuleSource() error = %v", err)
	}
	if string(src.Type.FlowLocks) != "{not json" {
		t.Fatalf("expected raw flowLocks text, got %q", src.Type.FlowLocks)
	}
	if !engine.CompileRuleSet(*src).HasConfigError() {
		t.Fatalf("expected a config parse warning")
	}
}

func TestStoreGetMissingType(t *testing.T) {
	_, err := NewStore(fixture).GetRuleSource(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrDocumentTypeNotFound) {
		t.Fatalf("expected ErrDocumentTypeNotFound, got %v", err)
	}
}

func TestStoreReturnsPrivateCopies(t *testing.T) {
	snap, err := Parse(mustRead(t, fixture))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	first, _ := snap.GetRuleSource(context.Background(), "t-facture")
	first.Keywords[0].Weight = 9
	*first.Type.AutoAssignThreshold = 0.1

	second, _ := snap.GetRuleSource(context.Background(), "t-facture")
	if second.Keywords[0].Weight != 2 || second.Type.Threshold() != 0.5 {
		t.Fatalf("snapshot state leaked between calls: %+v", second)
	}
}

func TestStoreDirectory(t *testing.T) {
	store := NewStore(fixture)
	ctx := context.Background()

	properties, err := store.ListProperties(ctx)
	if err != nil || len(properties) != 2 || properties[0].ID != "p-2" {
		t.Fatalf("ListProperties() = %+v, %v", properties, err)
	}
	leases, err := store.ListLeasesByStatus(ctx, domain.LeaseActive, domain.LeasePending)
	if err != nil || len(leases) != 1 || leases[0].Tenant.LastName != "Dupont" {
		t.Fatalf("ListLeasesByStatus() = %+v, %v", leases, err)
	}
	categories, err := store.ListCategories(ctx)
	if err != nil || len(categories) != 2 || categories[0].ID != "c-1" {
		t.Fatalf("ListCategories() = %+v, %v", categories, err)
	}
}

func TestParseRejectsDuplicateTypes(t *testing.T) {
	_, err := Parse([]byte("types:\n  - code: A\n  - code: A\n"))
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestStoreMissingFile(t *testing.T) {
	_, err := NewStore(filepath.Join(t.TempDir(), "absent.yaml")).ListRuleSources(context.Background(), true)
	if err == nil {
		t.Fatalf("expected error")
	}
}

func mustRead(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return data
}
