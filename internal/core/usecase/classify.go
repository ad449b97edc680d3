package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/property-doc-engine/internal/core/domain"
	"github.com/kirillkom/property-doc-engine/internal/core/engine"
	"github.com/kirillkom/property-doc-engine/internal/core/ports"
)

type ClassifyUseCase struct {
	rules ports.RuleStore
	topN  int
}

func NewClassifyUseCase(rules ports.RuleStore, topN int) *ClassifyUseCase {
	return &ClassifyUseCase{rules: rules, topN: topN}
}

// Classify scores text against every active document type.
func (uc *ClassifyUseCase) Classify(ctx context.Context, text string) (*domain.ClassificationResult, error) {
	sets, warnings, err := loadRuleSets(ctx, uc.rules, true)
	if err != nil {
		return nil, err
	}
	result := engine.Classify(text, sets, engine.ClassifyOptions{TopN: uc.topN})
	result.Warnings = append(warnings, result.Warnings...)
	return &result, nil
}

type ExtractUseCase struct {
	rules ports.RuleStore
}

func NewExtractUseCase(rules ports.RuleStore) *ExtractUseCase {
	return &ExtractUseCase{rules: rules}
}

func (uc *ExtractUseCase) Extract(ctx context.Context, text, typeID string) (*domain.ExtractionResult, error) {
	if strings.TrimSpace(typeID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "extract fields", fmt.Errorf("document type id is required"))
	}
	set, err := loadRuleSet(ctx, uc.rules, typeID)
	if err != nil {
		return nil, err
	}
	result := engine.ExtractFields(text, set.Rules)
	return &result, nil
}

func loadRuleSets(ctx context.Context, store ports.RuleStore, activeOnly bool) ([]*engine.RuleSet, []string, error) {
	sources, err := store.ListRuleSources(ctx, activeOnly)
	if err != nil {
		return nil, nil, fmt.Errorf("list rule sources: %w", err)
	}
	sets := engine.CompileRuleSets(sources)
	return sets, configWarnings(sets...), nil
}

func loadRuleSet(ctx context.Context, store ports.RuleStore, typeID string) (*engine.RuleSet, error) {
	src, err := store.GetRuleSource(ctx, typeID)
	if err != nil {
		return nil, fmt.Errorf("get rule source %s: %w", typeID, err)
	}
	return engine.CompileRuleSet(*src), nil
}

func configWarnings(sets ...*engine.RuleSet) []string {
	var out []string
	for _, rs := range sets {
		for _, w := range rs.Warnings {
			out = append(out, w.Error())
		}
	}
	return out
}
