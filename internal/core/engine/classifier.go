// Package engine is the rule evaluation core: it scores text against
// document types, extracts fields and evaluates the suggestion sub-languages.
// Everything here is pure; I/O belongs to the use cases.
package engine

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/property-doc-engine/internal/core/domain"
)

const (
	DefaultTopN         = 3
	maxSignalDetailsLen = 80
)

type ClassifyOptions struct {
	TopN int
}

// Classify ranks rule sets against text. Identical text and configuration
// always produce identical scores and ordering.
func Classify(text string, sets []*RuleSet, opts ClassifyOptions) domain.ClassificationResult {
	topN := opts.TopN
	if topN <= 0 {
		topN = DefaultTopN
	}

	empty := strings.TrimSpace(text) == ""
	lowered := strings.ToLower(text)

	result := domain.ClassificationResult{
		Candidates: make([]domain.TypeScore, 0, len(sets)),
	}
	ranked := make([]rankedScore, 0, len(sets))
	for _, rs := range sets {
		if rs == nil {
			continue
		}
		score, warnings := scoreType(text, lowered, empty, rs)
		result.Warnings = append(result.Warnings, warnings...)
		ranked = append(ranked, rankedScore{score: score, set: rs})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.score.NormalizedScore != b.score.NormalizedScore {
			return a.score.NormalizedScore > b.score.NormalizedScore
		}
		if a.set.Type.Order != b.set.Type.Order {
			return a.set.Type.Order < b.set.Type.Order
		}
		if !a.set.Type.CreatedAt.Equal(b.set.Type.CreatedAt) {
			return a.set.Type.CreatedAt.Before(b.set.Type.CreatedAt)
		}
		if a.set.Type.Code != b.set.Type.Code {
			return a.set.Type.Code < b.set.Type.Code
		}
		return a.set.Type.ID < b.set.Type.ID
	})

	for _, r := range ranked {
		result.Candidates = append(result.Candidates, r.score)
	}
	if len(result.Candidates) > topN {
		result.Top = append([]domain.TypeScore(nil), result.Candidates[:topN]...)
	} else {
		result.Top = append([]domain.TypeScore(nil), result.Candidates...)
	}

	if best, ok := result.Best(); ok && !empty && best.RawScore > 0 && best.NormalizedScore >= best.Threshold {
		result.AutoAssigned = true
		result.AssignedTypeID = best.TypeID
	}
	return result
}

type rankedScore struct {
	score domain.TypeScore
	set   *RuleSet
}

func scoreType(text, lowered string, empty bool, rs *RuleSet) (domain.TypeScore, []string) {
	score := domain.TypeScore{
		TypeID:          rs.Type.ID,
		Code:            rs.Type.Code,
		Label:           rs.Type.Label,
		Threshold:       rs.Threshold(),
		MatchedKeywords: []domain.KeywordMatch{},
		MatchedSignals:  []domain.SignalMatch{},
	}
	var warnings []string

	for _, kw := range rs.Keywords {
		needle := strings.ToLower(strings.TrimSpace(kw.Keyword))
		if needle == "" {
			continue
		}
		score.Breakdown.KeywordMax += kw.Weight
		if empty || !strings.Contains(lowered, needle) {
			continue
		}
		score.Breakdown.KeywordScore += kw.Weight
		score.MatchedKeywords = append(score.MatchedKeywords, domain.KeywordMatch{
			KeywordID: kw.ID,
			Keyword:   kw.Keyword,
			Weight:    kw.Weight,
		})
	}

	for _, ts := range rs.Signals {
		if ts.Orphan() {
			score.OrphanSignals = append(score.OrphanSignals, ts.ID)
			continue
		}
		re, err := CompilePattern(ts.Signal.Pattern, ts.Signal.Flags, false)
		if err != nil {
			regexErr := &domain.RegexError{Source: fmt.Sprintf("%s signal %s", rs.Type.Code, ts.Signal.Code), Pattern: ts.Signal.Pattern, Err: err}
			warnings = append(warnings, regexErr.Error())
			continue
		}
		score.Breakdown.SignalMax += ts.Weight
		if empty {
			continue
		}
		matches := re.FindAllStringIndex(text, -1)
		if len(matches) == 0 {
			continue
		}
		score.Breakdown.SignalScore += ts.Weight
		score.MatchedSignals = append(score.MatchedSignals, domain.SignalMatch{
			TypeSignalID: ts.ID,
			SignalCode:   ts.Signal.Code,
			Weight:       ts.Weight,
			Occurrences:  len(matches),
			Details:      truncate(text[matches[0][0]:matches[0][1]], maxSignalDetailsLen),
		})
	}

	score.RawScore = score.Breakdown.KeywordScore + score.Breakdown.SignalScore
	score.MaxScore = score.Breakdown.KeywordMax + score.Breakdown.SignalMax
	if score.MaxScore > 0 {
		score.NormalizedScore = score.RawScore / score.MaxScore
	}
	return score, warnings
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}
