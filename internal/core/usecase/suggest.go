package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/kirillkom/property-doc-engine/internal/core/domain"
	"github.com/kirillkom/property-doc-engine/internal/core/engine"
	"github.com/kirillkom/property-doc-engine/internal/core/ports"
)

// Confidence given to fields that do not come from an extraction rule.
const (
	confidenceMapped         = 0.8
	confidenceDerived        = 0.8
	confidencePropertyMatch  = 0.9
	confidenceTenantMatch    = 0.7
	confidenceNatureDeclared = 0.9
	confidenceNatureGuessed  = 0.6
	confidenceCategory       = 0.8
	confidenceLabelComplete  = 0.9
	confidenceLabelPartial   = 0.5
)

const (
	PhaseRuleExtraction     = "rule_extraction"
	PhaseRegex              = "regex"
	PhaseMapping            = "mapping"
	PhasePostProcess        = "postprocess"
	PhasePropertyResolution = "property_resolution"
	PhaseNatureResolution   = "nature_resolution"
	PhaseCategoryResolution = "category_resolution"
	PhaseLabel              = "label"
	PhaseConfidence         = "confidence"
	PhaseLocks              = "locks"
)

// Extracted fields that may name a property or a tenant, in lookup order.
var (
	propertyHintFields = []string{"propertyName", "property", "bien", "address", "adresse"}
	tenantHintFields   = []string{"tenantName", "tenant", "locataire"}
)

// businessFields always appear in suggestions when resolved.
var businessFields = []string{
	engine.FieldAmount,
	engine.FieldDate,
	engine.FieldPropertyID,
	engine.FieldLeaseID,
	engine.FieldTenantID,
	engine.FieldNature,
	engine.FieldCategoryID,
	engine.FieldCategory,
	engine.FieldPeriod,
	engine.FieldPeriodMonth,
	engine.FieldPeriodYear,
	engine.FieldLabel,
}

type SuggestUseCase struct {
	docs       ports.DocumentRepository
	rules      ports.RuleStore
	properties ports.PropertyDirectory
	categories ports.CategoryDirectory
	logger     *slog.Logger
}

func NewSuggestUseCase(
	docs ports.DocumentRepository,
	rules ports.RuleStore,
	properties ports.PropertyDirectory,
	categories ports.CategoryDirectory,
	logger *slog.Logger,
) *SuggestUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &SuggestUseCase{
		docs:       docs,
		rules:      rules,
		properties: properties,
		categories: categories,
		logger:     logger,
	}
}

// suggestion is the per-request working state. Nothing in it is shared.
type suggestion struct {
	doc        *domain.Document
	set        *engine.RuleSet
	values     map[string]any
	confidence map[string]float64
	highlights []domain.Highlight
	captures   map[string]engine.Capture
	declared   map[string]bool
	payload    domain.SuggestionPayload
}

func (s *suggestion) put(field string, value any, confidence float64) {
	s.values[field] = value
	s.confidence[field] = confidence
}

func (s *suggestion) warn(warnings ...string) {
	s.payload.Meta.Warnings = append(s.payload.Meta.Warnings, warnings...)
}

// Suggest builds a suggestion payload for a stored document. Only a missing
// document or document type fails the call; every later phase that errors is
// skipped and listed in meta.skipped_phases.
func (uc *SuggestUseCase) Suggest(ctx context.Context, documentID string) (*domain.SuggestionPayload, error) {
	s, err := uc.load(ctx, documentID)
	if err != nil {
		return nil, err
	}

	phases := []struct {
		name string
		run  func(context.Context, *suggestion) error
	}{
		{PhaseRuleExtraction, uc.extractRules},
		{PhaseRegex, uc.runRegexes},
		{PhaseMapping, uc.applyMapping},
		{PhasePostProcess, uc.postProcess},
		{PhasePropertyResolution, uc.resolveProperty},
		{PhaseNatureResolution, uc.resolveNature},
		{PhaseCategoryResolution, uc.resolveCategory},
		{PhaseLabel, uc.generateLabel},
		{PhaseConfidence, uc.computeConfidence},
		{PhaseLocks, uc.applyLocks},
	}
	for _, phase := range phases {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		uc.runPhase(ctx, s, phase.name, phase.run)
	}
	return &s.payload, nil
}

func (uc *SuggestUseCase) runPhase(ctx context.Context, s *suggestion, name string, fn func(context.Context, *suggestion) error) {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return fn(ctx, s)
	}()
	if err == nil {
		return
	}
	s.payload.Meta.SkippedPhases = append(s.payload.Meta.SkippedPhases, name)
	uc.logger.Warn("suggestion_phase_skipped",
		"document_id", s.doc.ID,
		"document_type", s.set.Type.Code,
		"phase", name,
		"error", err.Error(),
	)
}

func (uc *SuggestUseCase) load(ctx context.Context, documentID string) (*suggestion, error) {
	doc, err := uc.docs.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}

	typeID := doc.DocumentTypeID
	var warnings []string
	if typeID == "" {
		sets, configWarns, err := loadRuleSets(ctx, uc.rules, true)
		if err != nil {
			return nil, err
		}
		result := engine.Classify(doc.Text, sets, engine.ClassifyOptions{})
		if !result.AutoAssigned {
			return nil, domain.WrapError(domain.ErrDocumentTypeNotFound, "resolve document type", errors.New("document is unclassified"))
		}
		typeID = result.AssignedTypeID
		warnings = append(configWarns, result.Warnings...)
	}

	set, err := loadRuleSet(ctx, uc.rules, typeID)
	if err != nil {
		return nil, err
	}

	s := &suggestion{
		doc:        doc,
		set:        set,
		values:     make(map[string]any),
		confidence: make(map[string]float64),
		captures:   map[string]engine.Capture{},
		declared:   make(map[string]bool),
		payload: domain.SuggestionPayload{
			Suggestions: map[string]any{},
			Locks:       []domain.FieldLock{},
			Meta: domain.SuggestionMeta{
				DocumentID:        doc.ID,
				DocumentTypeCode:  set.Type.Code,
				ExtractionVersion: set.Meta.Version,
				FieldsConfidence:  map[string]float64{},
				Highlights:        []domain.Highlight{},
				RawExtractedData:  map[string]any{},
			},
		},
	}
	s.warn(warnings...)
	s.warn(configWarnings(set)...)
	if cfg := set.Suggestions; cfg != nil {
		for _, m := range cfg.Mapping {
			s.declared[m.Target] = true
		}
		for _, a := range cfg.PostProcess {
			s.declared[a.Field] = true
		}
	}
	for _, f := range set.Meta.Fields {
		s.declared[f] = true
	}
	return s, nil
}

func (uc *SuggestUseCase) extractRules(_ context.Context, s *suggestion) error {
	result := engine.ExtractFields(s.doc.Text, s.set.Rules)
	s.warn(result.Warnings...)
	first := engine.FirstByField(result.Fields)
	for _, f := range result.Fields {
		if first[f.FieldName].RuleUsed != f.RuleUsed {
			continue
		}
		s.put(f.FieldName, f.Value, f.Confidence)
		s.highlights = append(s.highlights, domain.Highlight{Field: f.FieldName, Text: f.Raw, Start: f.Start, End: f.End})
	}
	return nil
}

func (uc *SuggestUseCase) runRegexes(_ context.Context, s *suggestion) error {
	cfg := s.set.Suggestions
	if cfg == nil || len(cfg.Regex) == 0 {
		return nil
	}
	captures, warnings := engine.RunNamedRegexes(s.doc.Text, cfg.Regex)
	s.warn(warnings...)
	s.captures = captures

	fields := engine.CaptureFields(captures)
	for _, nr := range cfg.Regex {
		v, ok := fields[nr.Name]
		if !ok {
			continue
		}
		if _, exists := s.values[nr.Name]; !exists {
			s.put(nr.Name, v, confidenceMapped)
		}
		c := captures[nr.Name]
		s.highlights = append(s.highlights, domain.Highlight{Field: nr.Name, Text: s.doc.Text[c.Start:c.End], Start: c.Start, End: c.End})
	}
	return nil
}

func (uc *SuggestUseCase) applyMapping(_ context.Context, s *suggestion) error {
	cfg := s.set.Suggestions
	if cfg == nil || len(cfg.Mapping) == 0 {
		return nil
	}
	mapped, warnings := engine.ApplyMapping(s.captures, cfg.Mapping, s.set.Contexts.MonthMap)
	s.warn(warnings...)
	for _, rule := range cfg.Mapping {
		if v, ok := mapped[rule.Target]; ok {
			s.put(rule.Target, v, confidenceMapped)
		}
	}

	month, hasMonth := s.values[engine.FieldPeriodMonth].(string)
	year, hasYear := s.values[engine.FieldPeriodYear].(int)
	if _, exists := s.values[engine.FieldPeriod]; !exists && hasMonth && hasYear {
		c := min(s.confidence[engine.FieldPeriodMonth], s.confidence[engine.FieldPeriodYear])
		s.put(engine.FieldPeriod, fmt.Sprintf("%04d-%s", year, month), c)
	}
	return nil
}

func (uc *SuggestUseCase) postProcess(_ context.Context, s *suggestion) error {
	cfg := s.set.Suggestions
	if cfg == nil || len(cfg.PostProcess) == 0 {
		return nil
	}
	produced, warnings := engine.RunPostProcess(cfg.PostProcess, s.values)
	s.warn(warnings...)
	for _, field := range produced {
		s.confidence[field] = confidenceDerived
	}
	return nil
}

func (uc *SuggestUseCase) resolveProperty(ctx context.Context, s *suggestion) error {
	if _, ok := s.values[engine.FieldPropertyID]; ok {
		return nil
	}

	if hint := s.firstString(propertyHintFields); hint != "" {
		properties, err := uc.properties.ListProperties(ctx)
		if err != nil {
			return fmt.Errorf("list properties: %w", err)
		}
		if p, ok := matchProperty(properties, hint); ok {
			s.put(engine.FieldPropertyID, p.ID, confidencePropertyMatch)
			return nil
		}
	}

	if hint := s.firstString(tenantHintFields); hint != "" {
		leases, err := uc.properties.ListLeasesByStatus(ctx, domain.LeaseActive, domain.LeasePending)
		if err != nil {
			return fmt.Errorf("list leases: %w", err)
		}
		if lease, ok := matchTenant(leases, hint); ok {
			s.put(engine.FieldPropertyID, lease.PropertyID, confidenceTenantMatch)
			s.put(engine.FieldLeaseID, lease.ID, confidenceTenantMatch)
			s.put(engine.FieldTenantID, lease.Tenant.ID, confidenceTenantMatch)
			return nil
		}
	}

	uc.logger.Debug("suggestion_resolution_miss",
		"document_id", s.doc.ID,
		"error", domain.ErrDomainResolutionMiss.Error(),
		"field", engine.FieldPropertyID,
	)
	return nil
}

// resolveNature keeps a declared nature verbatim so flow locks compare against
// what the type configuration wrote. Only a guessed nature is upper case.
func (uc *SuggestUseCase) resolveNature(_ context.Context, s *suggestion) error {
	if declared, ok := s.values[engine.FieldNature].(string); ok && strings.TrimSpace(declared) != "" {
		c, known := s.confidence[engine.FieldNature]
		if !known {
			c = confidenceNatureDeclared
		}
		s.put(engine.FieldNature, strings.TrimSpace(declared), c)
		return nil
	}
	if nature, ok := engine.DetectNature(s.doc.Text); ok {
		s.put(engine.FieldNature, nature, confidenceNatureGuessed)
	}
	return nil
}

func (uc *SuggestUseCase) resolveCategory(ctx context.Context, s *suggestion) error {
	if _, ok := s.values[engine.FieldCategoryID]; ok {
		return nil
	}
	nature, _ := s.values[engine.FieldNature].(string)
	declared, _ := s.values[engine.FieldCategory].(string)
	hint := strings.TrimSpace(s.set.Contexts.CategoryHint(nature, strings.TrimSpace(declared)))
	if hint == "" {
		return nil
	}

	categories, err := uc.categories.ListCategories(ctx)
	if err != nil {
		return fmt.Errorf("list categories: %w", err)
	}
	needle := strings.ToLower(hint)
	for _, c := range categories {
		if strings.Contains(strings.ToLower(c.Label), needle) {
			s.put(engine.FieldCategoryID, c.ID, confidenceCategory)
			s.put(engine.FieldCategory, c.Label, confidenceCategory)
			return nil
		}
	}
	return nil
}

func (uc *SuggestUseCase) generateLabel(_ context.Context, s *suggestion) error {
	cfg := s.set.Suggestions
	if cfg == nil || cfg.LabelTemplate == "" {
		return nil
	}
	if _, ok := s.values[engine.FieldLabel]; ok {
		return nil
	}
	label := engine.RenderLabel(cfg.LabelTemplate, s.values)
	if label == "" {
		return nil
	}
	c := confidenceLabelComplete
	if !engine.LabelComplete(cfg.LabelTemplate, s.values) {
		c = confidenceLabelPartial
	}
	s.put(engine.FieldLabel, label, c)
	return nil
}

func (uc *SuggestUseCase) computeConfidence(_ context.Context, s *suggestion) error {
	meta := &s.payload.Meta
	for field, v := range s.values {
		meta.RawExtractedData[field] = v
	}

	threshold := s.set.Meta.ConfidenceThreshold
	for field, v := range s.values {
		if !s.suggestable(field) {
			continue
		}
		c := s.confidence[field]
		if c < threshold {
			continue
		}
		s.payload.Suggestions[field] = v
		meta.FieldsConfidence[field] = c
	}

	sort.SliceStable(s.highlights, func(i, j int) bool {
		if s.highlights[i].Start != s.highlights[j].Start {
			return s.highlights[i].Start < s.highlights[j].Start
		}
		return s.highlights[i].Field < s.highlights[j].Field
	})
	meta.Highlights = append(meta.Highlights, s.highlights...)

	s.payload.Confidence = engine.AggregateConfidence(meta.FieldsConfidence)
	if t := s.set.Contexts.AutoCreateThreshold; t != nil && len(s.payload.Suggestions) > 0 {
		s.payload.AutoCreate = s.payload.Confidence >= *t
	}
	return nil
}

func (uc *SuggestUseCase) applyLocks(_ context.Context, s *suggestion) error {
	s.payload.Locks = engine.ApplyFlowLocks(s.set.FlowLocks, s.payload.Suggestions)
	return nil
}

func (s *suggestion) suggestable(field string) bool {
	if s.declared[field] {
		return true
	}
	for _, f := range businessFields {
		if f == field {
			return true
		}
	}
	return false
}

func (s *suggestion) firstString(fields []string) string {
	for _, f := range fields {
		if v, ok := s.values[f].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// matchProperty returns the first property whose name or address contains the
// hint, ignoring case. Only when none does, it falls back to the first
// property whose name or address appears inside the hint.
func matchProperty(properties []domain.Property, hint string) (domain.Property, bool) {
	h := strings.ToLower(strings.TrimSpace(hint))
	if h == "" {
		return domain.Property{}, false
	}
	forward := func(c string) bool { return strings.Contains(c, h) }
	reverse := func(c string) bool { return strings.Contains(h, c) }
	for _, matches := range []func(string) bool{forward, reverse} {
		for _, p := range properties {
			for _, candidate := range []string{p.Name, p.Address} {
				c := strings.ToLower(strings.TrimSpace(candidate))
				if c != "" && matches(c) {
					return p, true
				}
			}
		}
	}
	return domain.Property{}, false
}

// matchTenant splits name into two parts at every word boundary and matches
// them as first/last or last/first name. The most recently started lease wins.
func matchTenant(leases []domain.Lease, name string) (domain.Lease, bool) {
	parts := strings.Fields(name)
	if len(parts) < 2 {
		return domain.Lease{}, false
	}

	var best domain.Lease
	found := false
	for _, lease := range leases {
		if !tenantMatches(lease.Tenant, parts) {
			continue
		}
		if !found || lease.StartDate.After(best.StartDate) ||
			(lease.StartDate.Equal(best.StartDate) && lease.ID < best.ID) {
			best = lease
			found = true
		}
	}
	return best, found
}

func tenantMatches(t domain.Tenant, parts []string) bool {
	for i := 1; i < len(parts); i++ {
		a := strings.Join(parts[:i], " ")
		b := strings.Join(parts[i:], " ")
		if (strings.EqualFold(a, t.FirstName) && strings.EqualFold(b, t.LastName)) ||
			(strings.EqualFold(a, t.LastName) && strings.EqualFold(b, t.FirstName)) {
			return true
		}
	}
	return false
}
