package engine

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/kirillkom/property-doc-engine/internal/core/domain"
)

const (
	ConfidenceCaptureGroup = 0.85
	ConfidenceWholeMatch   = 0.75
)

var datePattern = regexp.MustCompile(`^(\d{1,2})[/.\-](\d{1,2})[/.\-](\d{2,4})$`)

// ExtractFields applies rules in ascending priority order, then by rule ID. Every matching rule
// yields one FieldExtraction; duplicates for a field are kept (see FirstByField).
// A rule whose pattern does not compile is skipped and reported.
func ExtractFields(text string, rules []domain.ExtractionRule) domain.ExtractionResult {
	ordered := append([]domain.ExtractionRule(nil), rules...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority < ordered[j].Priority
		}
		return ordered[i].ID < ordered[j].ID
	})

	result := domain.ExtractionResult{Fields: []domain.FieldExtraction{}}
	for _, rule := range ordered {
		field, ok, warnings := applyRule(text, rule)
		result.Warnings = append(result.Warnings, warnings...)
		if ok {
			result.Fields = append(result.Fields, field)
		}
	}
	return result
}

func applyRule(text string, rule domain.ExtractionRule) (domain.FieldExtraction, bool, []string) {
	re, err := CompilePattern(rule.Pattern, "", true)
	if err != nil {
		regexErr := &domain.RegexError{Source: "rule " + rule.ID, Pattern: rule.Pattern, Err: err}
		return domain.FieldExtraction{}, false, []string{regexErr.Error()}
	}

	steps, group, warnings := parseSteps(rule.PostProcess)
	if group < 0 {
		group = 0
		if re.NumSubexp() > 0 {
			group = 1
		}
	}
	if group > re.NumSubexp() {
		warnings = append(warnings, fmt.Sprintf("rule %s: capture group %d not in pattern", rule.ID, group))
		return domain.FieldExtraction{}, false, warnings
	}

	loc := re.FindStringSubmatchIndex(text)
	if loc == nil || loc[2*group] < 0 {
		return domain.FieldExtraction{}, false, warnings
	}
	start, end := loc[2*group], loc[2*group+1]
	raw := text[start:end]

	var value any = strings.TrimSpace(raw)
	for _, step := range steps {
		next, err := applyTransform(step, value)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("rule %s: %s: %v", rule.ID, step, err))
			return domain.FieldExtraction{}, false, warnings
		}
		value = next
	}

	confidence := ConfidenceWholeMatch
	if group > 0 {
		confidence = ConfidenceCaptureGroup
	}
	if rule.Confidence != nil {
		confidence = clamp(*rule.Confidence, 0, 1)
	}

	return domain.FieldExtraction{
		FieldName:  rule.FieldName,
		Value:      value,
		Raw:        raw,
		Confidence: confidence,
		RuleUsed:   rule.ID,
		Start:      start,
		End:        end,
	}, true, warnings
}

// parseSteps splits "group:2|parseAmount" into transforms and a capture
// group; group is -1 when the rule does not choose one.
func parseSteps(pipeline string) (steps []string, group int, warnings []string) {
	group = -1
	for _, part := range strings.Split(pipeline, "|") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if n, ok := strings.CutPrefix(part, "group:"); ok {
			g, err := strconv.Atoi(strings.TrimSpace(n))
			if err != nil || g < 0 {
				warnings = append(warnings, fmt.Sprintf("invalid capture group %q ignored", part))
				continue
			}
			group = g
			continue
		}
		if _, known := transforms[part]; !known {
			warnings = append(warnings, fmt.Sprintf("unknown post-process %q ignored", part))
			continue
		}
		steps = append(steps, part)
	}
	return steps, group, warnings
}

var transforms = map[string]func(string) (any, error){
	"parseAmount": func(s string) (any, error) {
		d, err := ParseAmount(s)
		if err != nil {
			return nil, err
		}
		return amountFloat(d), nil
	},
	"trim":  func(s string) (any, error) { return strings.TrimSpace(s), nil },
	"upper": func(s string) (any, error) { return strings.ToUpper(s), nil },
	"lower": func(s string) (any, error) { return strings.ToLower(s), nil },
	"digits": func(s string) (any, error) {
		return strings.Map(func(r rune) rune {
			if unicode.IsDigit(r) {
				return r
			}
			return -1
		}, s), nil
	},
	"date": normalizeDate,
}

func applyTransform(name string, value any) (any, error) {
	fn := transforms[name]
	s, ok := value.(string)
	if !ok {
		s = formatValue(value)
	}
	return fn(s)
}

// normalizeDate turns dd/mm/yyyy (or dd.mm.yy) into an ISO yyyy-mm-dd date.
func normalizeDate(s string) (any, error) {
	m := datePattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return nil, fmt.Errorf("unrecognized date %q", s)
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	if year < 100 {
		year += 2000
	}
	if day < 1 || day > 31 || month < 1 || month > 12 {
		return nil, fmt.Errorf("out of range date %q", s)
	}
	return fmt.Sprintf("%04d-%02d-%02d", year, month, day), nil
}

// FirstByField keeps the first extraction per field. Extractions are expected
// in priority order, so this is the "first by priority wins" policy.
func FirstByField(fields []domain.FieldExtraction) map[string]domain.FieldExtraction {
	out := make(map[string]domain.FieldExtraction, len(fields))
	for _, f := range fields {
		if _, seen := out[f.FieldName]; !seen {
			out[f.FieldName] = f
		}
	}
	return out
}
