package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/kirillkom/property-doc-engine/internal/core/domain"
	"github.com/kirillkom/property-doc-engine/internal/core/engine"
	"github.com/kirillkom/property-doc-engine/internal/core/ports"
)

const MaxDeterminismRuns = 50

// TestRunUseCase classifies ad hoc text and extracts fields with the chosen
// (or top ranked) type. Optional determinism runs repeat the whole evaluation
// sequentially and compare result hashes.
type TestRunUseCase struct {
	rules ports.RuleStore
	topN  int
}

func NewTestRunUseCase(rules ports.RuleStore, topN int) *TestRunUseCase {
	return &TestRunUseCase{rules: rules, topN: topN}
}

func (uc *TestRunUseCase) Run(ctx context.Context, req domain.TestRunRequest) (*domain.TestRunResult, error) {
	if req.DeterminismRuns < 0 || req.DeterminismRuns > MaxDeterminismRuns {
		return nil, domain.WrapError(
			domain.ErrInvalidInput,
			"test run",
			fmt.Errorf("determinism runs must be between 0 and %d", MaxDeterminismRuns),
		)
	}

	sets, warnings, err := loadRuleSets(ctx, uc.rules, !req.IncludeInactive)
	if err != nil {
		return nil, err
	}

	var pinned *engine.RuleSet
	if req.TypeID != "" {
		pinned = findRuleSet(sets, req.TypeID)
		if pinned == nil {
			if pinned, err = loadRuleSet(ctx, uc.rules, req.TypeID); err != nil {
				return nil, err
			}
		}
	}

	result := uc.evaluate(req.Text, sets, pinned)
	result.Classification.Warnings = append(warnings, result.Classification.Warnings...)

	if req.DeterminismRuns > 1 {
		report, err := uc.checkDeterminism(ctx, req, sets, pinned)
		if err != nil {
			return nil, err
		}
		result.Determinism = report
	}
	return &result, nil
}

func (uc *TestRunUseCase) evaluate(text string, sets []*engine.RuleSet, pinned *engine.RuleSet) domain.TestRunResult {
	result := domain.TestRunResult{
		Classification: engine.Classify(text, sets, engine.ClassifyOptions{TopN: uc.topN}),
		Extraction:     domain.ExtractionResult{Fields: []domain.FieldExtraction{}},
	}

	target := pinned
	if target == nil {
		if best, ok := result.Classification.Best(); ok && best.RawScore > 0 {
			target = findRuleSet(sets, best.TypeID)
		}
	}
	if target != nil {
		result.ExtractionType = target.Type.ID
		result.Extraction = engine.ExtractFields(text, target.Rules)
	}
	return result
}

func (uc *TestRunUseCase) checkDeterminism(ctx context.Context, req domain.TestRunRequest, sets []*engine.RuleSet, pinned *engine.RuleSet) (*domain.DeterminismReport, error) {
	report := &domain.DeterminismReport{Runs: req.DeterminismRuns, Stable: true}
	for i := 0; i < req.DeterminismRuns; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hash, err := resultHash(uc.evaluate(req.Text, sets, pinned))
		if err != nil {
			return nil, fmt.Errorf("hash test run %d: %w", i, err)
		}
		if len(report.Hashes) > 0 && report.Hashes[0] != hash {
			report.Stable = false
		}
		report.Hashes = append(report.Hashes, hash)
	}
	return report, nil
}

func resultHash(result domain.TestRunResult) (string, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

func findRuleSet(sets []*engine.RuleSet, typeID string) *engine.RuleSet {
	for _, rs := range sets {
		if rs.Type.ID == typeID {
			return rs
		}
	}
	return nil
}
