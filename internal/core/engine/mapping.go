package engine

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/kirillkom/property-doc-engine/internal/core/domain"
)

// Capture holds every group of the first match of a named regex.
type Capture struct {
	Groups []string
	Start  int
	End    int
}

// Value returns group i, or false when the group is absent or empty.
func (c Capture) Value(i int) (string, bool) {
	if i < 0 || i >= len(c.Groups) {
		return "", false
	}
	v := strings.TrimSpace(c.Groups[i])
	return v, v != ""
}

// RunNamedRegexes evaluates every configured regex against text, keyed by name.
// Patterns that fail to compile are skipped and reported.
func RunNamedRegexes(text string, regexes []NamedRegex) (map[string]Capture, []string) {
	captures := make(map[string]Capture, len(regexes))
	var warnings []string
	for _, nr := range regexes {
		re, err := CompilePattern(nr.Pattern, "", true)
		if err != nil {
			regexErr := &domain.RegexError{Source: "suggestion regex " + nr.Name, Pattern: nr.Pattern, Err: err}
			warnings = append(warnings, regexErr.Error())
			continue
		}
		m := re.FindStringSubmatchIndex(text)
		if m == nil {
			continue
		}
		groups := make([]string, len(m)/2)
		for i := range groups {
			if m[2*i] >= 0 {
				groups[i] = text[m[2*i]:m[2*i+1]]
			}
		}
		captures[nr.Name] = Capture{Groups: groups, Start: m[0], End: m[1]}
	}
	return captures, warnings
}

// CaptureFields exposes each capture as a raw field: group 1 when the regex
// has groups, the whole match otherwise.
func CaptureFields(captures map[string]Capture) map[string]any {
	out := make(map[string]any, len(captures))
	for name, c := range captures {
		idx := 0
		if len(c.Groups) > 1 {
			idx = 1
		}
		if v, ok := c.Value(idx); ok {
			out[name] = v
		}
	}
	return out
}

// ApplyMapping copies capture groups into target fields. A missing regex
// result or empty group leaves the target unset.
func ApplyMapping(captures map[string]Capture, rules []MappingRule, monthMap map[string]string) (map[string]any, []string) {
	out := make(map[string]any, len(rules))
	var warnings []string
	for _, rule := range rules {
		c, ok := captures[rule.From]
		if !ok {
			continue
		}
		raw, ok := c.Value(rule.Group)
		if !ok {
			continue
		}
		v, err := coerce(rule.Target, rule.Type, raw, monthMap)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("mapping %s: %v", rule.Target, err))
			continue
		}
		out[rule.Target] = v
	}
	return out, warnings
}

func coerce(target string, typ ValueType, raw string, monthMap map[string]string) (any, error) {
	if typ == ValueAuto {
		switch target {
		case FieldPeriodYear:
			typ = ValueInteger
		case FieldAmount:
			typ = ValueNumber
		case FieldPeriodMonth:
			return normalizeMonth(raw, monthMap)
		default:
			typ = ValueString
		}
	}

	switch typ {
	case ValueNumber:
		d, err := ParseAmount(raw)
		if err != nil {
			return nil, err
		}
		return amountFloat(d), nil
	case ValueInteger:
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("not an integer: %q", raw)
		}
		if target == FieldPeriodYear && n < 100 {
			n += 2000
		}
		return n, nil
	default:
		return raw, nil
	}
}

// normalizeMonth returns a two-digit month from "3", "03" or a month name.
func normalizeMonth(raw string, monthMap map[string]string) (string, error) {
	if n, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
		if n < 1 || n > 12 {
			return "", fmt.Errorf("month %d out of range", n)
		}
		return fmt.Sprintf("%02d", n), nil
	}
	if v, ok := monthMap[normalizeMonthKey(raw)]; ok {
		return v, nil
	}
	return "", fmt.Errorf("unknown month %q", raw)
}

func normalizeMonthKey(s string) string {
	decomposed := norm.NFD.String(strings.ToLower(strings.TrimSpace(s)))
	return strings.Map(func(r rune) rune {
		if unicode.Is(unicode.Mn, r) || r == '.' {
			return -1
		}
		return r
	}, decomposed)
}

func defaultMonthMap() map[string]string {
	names := [][]string{
		{"janvier", "janv"}, {"fevrier", "fevr", "fev"}, {"mars"}, {"avril", "avr"},
		{"mai"}, {"juin"}, {"juillet", "juil"}, {"aout"}, {"septembre", "sept"},
		{"octobre", "oct"}, {"novembre", "nov"}, {"decembre", "dec"},
	}
	out := make(map[string]string, 32)
	for i, aliases := range names {
		for _, a := range aliases {
			out[a] = fmt.Sprintf("%02d", i+1)
		}
	}
	return out
}
