package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	placeholderPattern = regexp.MustCompile(`\{([^{}]*)\}`)
	whitespacePattern  = regexp.MustCompile(`\s+`)
)

// RenderLabel fills {field} placeholders from fields. Unresolved placeholders
// are removed, runs of whitespace collapse to one space and the result is
// trimmed, so "Loyer {periode} - {bien}" with only periode set renders as
// "Loyer Mars 2024 -".
func RenderLabel(template string, fields map[string]any) string {
	filled := placeholderPattern.ReplaceAllStringFunc(template, func(token string) string {
		name := strings.TrimSpace(token[1 : len(token)-1])
		v, ok := fields[name]
		if !ok || v == nil {
			return ""
		}
		return formatValue(v)
	})
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(filled, " "))
}

// LabelComplete reports whether every placeholder of template has a value.
func LabelComplete(template string, fields map[string]any) bool {
	for _, m := range placeholderPattern.FindAllStringSubmatch(template, -1) {
		if v, ok := fields[strings.TrimSpace(m[1])]; !ok || v == nil {
			return false
		}
	}
	return true
}

func formatValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}
