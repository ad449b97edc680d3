package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/kirillkom/property-doc-engine/internal/core/domain"
)

const rentNoticeText = `AVIS D'ÉCHÉANCE
Période 03/2024
Bien : Résidence Les Tilleuls
Loyer : 558,26
Charges : 20,00`

type suggestDocsFake struct {
	docs map[string]domain.Document
}

func (f *suggestDocsFake) Create(context.Context, *domain.Document) error { return nil }

func (f *suggestDocsFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	doc, ok := f.docs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", errors.New(id))
	}
	return &doc, nil
}

func (f *suggestDocsFake) UpdateStatus(context.Context, string, domain.DocumentStatus, string) error {
	return nil
}
func (f *suggestDocsFake) SaveText(context.Context, string, domain.ExtractedText) error { return nil }
func (f *suggestDocsFake) SaveAssignment(context.Context, string, domain.Assignment) error {
	return nil
}

type directoryFake struct {
	properties    []domain.Property
	leases        []domain.Lease
	categories    []domain.Category
	propertiesErr error
	panicOnLeases bool
	leaseStatuses []domain.LeaseStatus
}

func (f *directoryFake) ListProperties(context.Context) ([]domain.Property, error) {
	if f.propertiesErr != nil {
		return nil, f.propertiesErr
	}
	return f.properties, nil
}

func (f *directoryFake) ListLeasesByStatus(_ context.Context, statuses ...domain.LeaseStatus) ([]domain.Lease, error) {
	if f.panicOnLeases {
		panic("lease index corrupted")
	}
	f.leaseStatuses = statuses
	return f.leases, nil
}

func (f *directoryFake) ListCategories(context.Context) ([]domain.Category, error) {
	return f.categories, nil
}

func rentNoticeSource() domain.RuleSource {
	return domain.RuleSource{
		Type: domain.DocumentType{
			ID: "t-avis", Code: "AVIS_ECHEANCE", Label: "Avis d'échéance", IsActive: true,
			SuggestionsConfig: json.RawMessage(`{
				"regex": {
					"periode_bandeau": "(\\d{2})/(\\d{4})",
					"bien": "bien\\s*:\\s*([^\\n]+)",
					"locataire": "locataire\\s*:\\s*([^\\n]+)",
					"montantLoyer": "loyer\\s*:\\s*([\\d\\s,.]+)",
					"chargesRecup": "charges\\s*:\\s*([\\d\\s,.]+)"
				},
				"mapping": {
					"periodMonth": {"from": "periode_bandeau", "group": 1},
					"periodYear": {"from": "periode_bandeau", "group": 2}
				},
				"postprocess": {"amount": "sum(montantLoyer, chargesRecup)"},
				"labelTemplate": "Loyer {periodMonth}/{periodYear} - {bien}"
			}`),
			DefaultContexts: json.RawMessage(`{"natureCategoryMap": {"LOYER": "Loyers"}, "autoCreateThreshold": 0.5}`),
			FlowLocks:       json.RawMessage(`[{"when": "nature == 'LOYER'", "fields": ["nature", "categoryId"], "reason": "Rent flow"}]`),
			MetaSchema:      json.RawMessage(`{"version": "v2"}`),
		},
		Keywords: []domain.Keyword{{ID: "kw-1", Keyword: "échéance", Weight: 5}},
	}
}

func newSuggestFixture(doc domain.Document, src domain.RuleSource) (*SuggestUseCase, *directoryFake) {
	dir := &directoryFake{
		properties: []domain.Property{
			{ID: "p-1", Name: "Appartement Centre", Address: "1 rue de Paris"},
			{ID: "p-2", Name: "Résidence Les Tilleuls", Address: "12 avenue Foch"},
		},
		categories: []domain.Category{
			{ID: "c-1", Label: "Charges locatives"},
			{ID: "c-2", Label: "Loyers perçus"},
		},
	}
	docs := &suggestDocsFake{docs: map[string]domain.Document{doc.ID: doc}}
	return NewSuggestUseCase(docs, &rulesFake{sources: []domain.RuleSource{src}}, dir, dir, nil), dir
}

func TestSuggestRentNotice(t *testing.T) {
	uc, _ := newSuggestFixture(domain.Document{ID: "doc-1", DocumentTypeID: "t-avis", Text: rentNoticeText}, rentNoticeSource())

	payload, err := uc.Suggest(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("Suggest() error = %v", err)
	}

	s := payload.Suggestions
	if s["periodMonth"] != "03" || s["periodYear"] != 2024 || s["period"] != "2024-03" {
		t.Fatalf("unexpected period fields: %v", s)
	}
	if amount, _ := s["amount"].(float64); math.Abs(amount-578.26) > 0.01 {
		t.Fatalf("expected amount 578.26, got %v", s["amount"])
	}
	if s["propertyId"] != "p-2" || s["nature"] != "LOYER" || s["categoryId"] != "c-2" {
		t.Fatalf("unexpected resolution: %v", s)
	}
	if s["label"] != "Loyer 03/2024 - Résidence Les Tilleuls" {
		t.Fatalf("unexpected label %q", s["label"])
	}
	if _, ok := s["montantLoyer"]; ok {
		t.Fatalf("raw regex fields must not be suggested")
	}
	if payload.Meta.RawExtractedData["montantLoyer"] != "558,26" {
		t.Fatalf("expected raw regex capture in meta, got %v", payload.Meta.RawExtractedData)
	}
	if payload.Meta.ExtractionVersion != "v2" || payload.Meta.DocumentTypeCode != "AVIS_ECHEANCE" {
		t.Fatalf("unexpected meta %+v", payload.Meta)
	}
	if len(payload.Meta.SkippedPhases) != 0 {
		t.Fatalf("unexpected skipped phases %v", payload.Meta.SkippedPhases)
	}
	if math.Abs(payload.Confidence-0.795) > 1e-9 {
		t.Fatalf("expected confidence 0.795, got %v", payload.Confidence)
	}
	if !payload.AutoCreate {
		t.Fatalf("expected auto create above 0.5")
	}
	wantLocks := []domain.FieldLock{{Field: "nature", Reason: "Rent flow"}, {Field: "categoryId", Reason: "Rent flow"}}
	if !reflect.DeepEqual(payload.Locks, wantLocks) {
		t.Fatalf("unexpected locks %+v", payload.Locks)
	}
	for i := 1; i < len(payload.Meta.Highlights); i++ {
		if payload.Meta.Highlights[i-1].Start > payload.Meta.Highlights[i].Start {
			t.Fatalf("highlights must be ordered by offset: %+v", payload.Meta.Highlights)
		}
	}
}

func TestSuggestIsDeterministic(t *testing.T) {
	uc, _ := newSuggestFixture(domain.Document{ID: "doc-1", DocumentTypeID: "t-avis", Text: rentNoticeText}, rentNoticeSource())

	first, err := uc.Suggest(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("Suggest() error = %v", err)
	}
	want, _ := json.Marshal(first)
	for i := 0; i < 10; i++ {
		next, _ := uc.Suggest(context.Background(), "doc-1")
		got, _ := json.Marshal(next)
		if string(got) != string(want) {
			t.Fatalf("run %d differs:\n%s\n%s", i, got, want)
		}
	}
}

func TestSuggestClassifiesUnassignedDocument(t *testing.T) {
	uc, _ := newSuggestFixture(domain.Document{ID: "doc-1", Text: rentNoticeText}, rentNoticeSource())

	payload, err := uc.Suggest(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("Suggest() error = %v", err)
	}
	if payload.Meta.DocumentTypeCode != "AVIS_ECHEANCE" {
		t.Fatalf("expected the auto assigned type, got %q", payload.Meta.DocumentTypeCode)
	}
}

func TestSuggestNotFound(t *testing.T) {
	uc, _ := newSuggestFixture(domain.Document{ID: "doc-1", DocumentTypeID: "t-gone", Text: rentNoticeText}, rentNoticeSource())

	cases := map[string]string{"missing document": "doc-404", "missing type": "doc-1"}
	for name, id := range cases {
		t.Run(name, func(t *testing.T) {
			payload, err := uc.Suggest(context.Background(), id)
			if payload != nil {
				t.Fatalf("expected nil payload")
			}
			if !domain.IsKind(err, domain.ErrNotFound) {
				t.Fatalf("expected not found, got %v", err)
			}
		})
	}

	unclassified, _ := newSuggestFixture(domain.Document{ID: "doc-2", Text: "sans rapport"}, rentNoticeSource())
	if _, err := unclassified.Suggest(context.Background(), "doc-2"); !domain.IsKind(err, domain.ErrDocumentTypeNotFound) {
		t.Fatalf("expected type not found for an unclassifiable document, got %v", err)
	}
}

func TestSuggestTenantFallback(t *testing.T) {
	text := "AVIS D'ÉCHÉANCE\nLocataire : Dupont Marie\nLoyer : 600,00"
	uc, dir := newSuggestFixture(domain.Document{ID: "doc-1", DocumentTypeID: "t-avis", Text: text}, rentNoticeSource())
	day := func(y int) time.Time { return time.Date(y, 1, 1, 0, 0, 0, 0, time.UTC) }
	dir.leases = []domain.Lease{
		{ID: "l-1", PropertyID: "p-1", Status: domain.LeaseActive, StartDate: day(2022), Tenant: domain.Tenant{ID: "t-1", FirstName: "Marie", LastName: "Dupont"}},
		{ID: "l-2", PropertyID: "p-3", Status: domain.LeasePending, StartDate: day(2024), Tenant: domain.Tenant{ID: "t-2", FirstName: "marie", LastName: "DUPONT"}},
		{ID: "l-3", PropertyID: "p-4", Status: domain.LeaseActive, StartDate: day(2025), Tenant: domain.Tenant{ID: "t-3", FirstName: "Jean", LastName: "Dupont"}},
	}

	payload, err := uc.Suggest(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("Suggest() error = %v", err)
	}
	s := payload.Suggestions
	if s["propertyId"] != "p-3" || s["leaseId"] != "l-2" || s["tenantId"] != "t-2" {
		t.Fatalf("expected the most recent matching lease, got %v", s)
	}
	if !reflect.DeepEqual(dir.leaseStatuses, []domain.LeaseStatus{domain.LeaseActive, domain.LeasePending}) {
		t.Fatalf("unexpected lease statuses %v", dir.leaseStatuses)
	}
	if s["label"] != "Loyer / -" {
		t.Fatalf("expected unresolved placeholders stripped, got %q", s["label"])
	}
}

func TestSuggestSkipsFailingPhases(t *testing.T) {
	text := "AVIS D'ÉCHÉANCE\nBien : Inconnu\nLocataire : Jean Martin\nLoyer : 600,00"
	uc, dir := newSuggestFixture(domain.Document{ID: "doc-1", DocumentTypeID: "t-avis", Text: text}, rentNoticeSource())

	dir.propertiesErr = errors.New("directory unavailable")
	payload, err := uc.Suggest(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("Suggest() error = %v", err)
	}
	if !reflect.DeepEqual(payload.Meta.SkippedPhases, []string{PhasePropertyResolution}) {
		t.Fatalf("expected property resolution skipped, got %v", payload.Meta.SkippedPhases)
	}
	if payload.Suggestions["categoryId"] != "c-2" {
		t.Fatalf("later phases must still run, got %v", payload.Suggestions)
	}

	dir.propertiesErr = nil
	dir.panicOnLeases = true
	payload, err = uc.Suggest(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("Suggest() error = %v", err)
	}
	if !reflect.DeepEqual(payload.Meta.SkippedPhases, []string{PhasePropertyResolution}) {
		t.Fatalf("expected panic to skip property resolution, got %v", payload.Meta.SkippedPhases)
	}
}

func TestSuggestConfidenceThresholdWithholdsFields(t *testing.T) {
	src := rentNoticeSource()
	src.Type.MetaSchema = json.RawMessage(`{"version": "v3", "confidenceThreshold": 0.7}`)
	uc, _ := newSuggestFixture(domain.Document{ID: "doc-1", DocumentTypeID: "t-avis", Text: rentNoticeText}, src)

	payload, err := uc.Suggest(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("Suggest() error = %v", err)
	}
	if _, ok := payload.Suggestions["nature"]; ok {
		t.Fatalf("guessed nature below threshold must be withheld")
	}
	if payload.Meta.RawExtractedData["nature"] != "LOYER" {
		t.Fatalf("withheld field must stay in raw data")
	}
	if len(payload.Locks) != 0 {
		t.Fatalf("locks only evaluate suggested fields, got %+v", payload.Locks)
	}
}

func TestSuggestHonorsCancellation(t *testing.T) {
	uc, _ := newSuggestFixture(domain.Document{ID: "doc-1", DocumentTypeID: "t-avis", Text: rentNoticeText}, rentNoticeSource())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := uc.Suggest(ctx, "doc-1"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSuggestDeclaredNatureDrivesLocks(t *testing.T) {
	src := rentNoticeSource()
	src.Type.SuggestionsConfig = json.RawMessage(`{
		"regex": {"montantLoyer": "loyer\\s*:\\s*([\\d\\s,.]+)"},
		"postprocess": {"amount": "parseAmount(montantLoyer)", "nature": "'Loyer'"}
	}`)
	src.Type.FlowLocks = json.RawMessage(`[{"when": "nature == 'Loyer'", "fields": ["nature"], "reason": "Declared rent"}]`)
	uc, _ := newSuggestFixture(domain.Document{ID: "doc-1", DocumentTypeID: "t-avis", Text: rentNoticeText}, src)

	payload, err := uc.Suggest(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("Suggest() error = %v", err)
	}
	if payload.Suggestions["nature"] != "Loyer" {
		t.Fatalf("declared nature must be kept as written, got %v", payload.Suggestions["nature"])
	}
	if payload.Suggestions["categoryId"] != "c-2" {
		t.Fatalf("category map lookup must ignore case, got %v", payload.Suggestions)
	}
	wantLocks := []domain.FieldLock{{Field: "nature", Reason: "Declared rent"}}
	if !reflect.DeepEqual(payload.Locks, wantLocks) {
		t.Fatalf("unexpected locks %+v", payload.Locks)
	}
}

func TestSuggestPrefersPropertyContainingHint(t *testing.T) {
	uc, dir := newSuggestFixture(domain.Document{ID: "doc-1", DocumentTypeID: "t-avis", Text: rentNoticeText}, rentNoticeSource())
	dir.properties = []domain.Property{
		{ID: "p-0", Name: "Les"},
		{ID: "p-2", Name: "Résidence Les Tilleuls", Address: "12 avenue Foch"},
	}

	payload, err := uc.Suggest(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("Suggest() error = %v", err)
	}
	if payload.Suggestions["propertyId"] != "p-2" {
		t.Fatalf("expected p-2, got %v", payload.Suggestions["propertyId"])
	}
}

func TestMatchProperty(t *testing.T) {
	properties := []domain.Property{
		{ID: "p-0", Name: "Les"},
		{ID: "p-1", Name: "Appartement Centre", Address: "1 rue de Paris"},
		{ID: "p-2", Name: "Résidence Les Tilleuls", Address: "12 avenue Foch"},
	}
	cases := []struct {
		hint string
		want string
	}{
		{"Résidence Les Tilleuls", "p-2"},
		{"avenue foch", "p-2"},
		{"rue de paris", "p-1"},
		{"Appartement Centre, 3e étage", "p-1"},
		{"Villa Mimosa", ""},
		{"  ", ""},
	}
	for _, tc := range cases {
		got, ok := matchProperty(properties, tc.hint)
		if tc.want == "" {
			if ok {
				t.Fatalf("matchProperty(%q) = %s, want no match", tc.hint, got.ID)
			}
			continue
		}
		if !ok || got.ID != tc.want {
			t.Fatalf("matchProperty(%q) = %s, %v; want %s", tc.hint, got.ID, ok, tc.want)
		}
	}
}
