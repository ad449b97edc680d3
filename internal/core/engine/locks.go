package engine

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/kirillkom/property-doc-engine/internal/core/domain"
)

var ErrUnsupportedCondition = errors.New("unsupported condition")

var equalsPattern = regexp.MustCompile(`^\s*([A-Za-z_][\w.]*)\s*==\s*(?:'([^']*)'|"([^"]*)")\s*$`)

// Condition is a flow-lock predicate. Only string equality exists.
type Condition interface {
	Holds(fields map[string]any) bool
}

type Equals struct {
	Field string
	Value string
}

func (e Equals) Holds(fields map[string]any) bool {
	v, ok := fields[e.Field]
	if !ok || v == nil {
		return false
	}
	return formatValue(v) == e.Value
}

// ParseCondition accepts `field == 'value'` (or double quotes). Other
// operators return ErrUnsupportedCondition.
func ParseCondition(src string) (Condition, error) {
	m := equalsPattern.FindStringSubmatch(src)
	if m == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCondition, src)
	}
	value := m[2]
	if value == "" {
		value = m[3]
	}
	return Equals{Field: m[1], Value: value}, nil
}

// ApplyFlowLocks returns the locked fields for every lock whose condition
// holds. A field locked twice keeps its first reason.
func ApplyFlowLocks(locks []FlowLock, fields map[string]any) []domain.FieldLock {
	out := []domain.FieldLock{}
	seen := make(map[string]bool)
	for _, lock := range locks {
		if lock.Condition == nil || !lock.Condition.Holds(fields) {
			continue
		}
		for _, f := range lock.Fields {
			if seen[f] {
				continue
			}
			seen[f] = true
			out = append(out, domain.FieldLock{Field: f, Reason: lock.Reason})
		}
	}
	return out
}
