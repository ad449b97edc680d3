package engine

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/kirillkom/property-doc-engine/internal/core/domain"
)

type ValueType string

const (
	ValueAuto    ValueType = ""
	ValueString  ValueType = "string"
	ValueNumber  ValueType = "number"
	ValueInteger ValueType = "integer"
)

type NamedRegex struct {
	Name    string
	Pattern string
}

// MappingRule copies capture group Group of regex From into Target.
type MappingRule struct {
	Target string
	From   string
	Group  int
	Type   ValueType
}

type SuggestionsConfig struct {
	Regex         []NamedRegex
	Mapping       []MappingRule
	PostProcess   []Assignment
	LabelTemplate string
}

type DefaultContexts struct {
	NatureCategoryMap   map[string]string
	MonthMap            map[string]string
	AutoCreateThreshold *float64
}

type FlowLock struct {
	Condition Condition
	Raw       string
	Fields    []string
	Reason    string
}

type MetaSchema struct {
	Version             string
	Fields              []string
	ConfidenceThreshold float64
}

// RuleSet is the validated, typed form of a domain.RuleSource. Features whose
// configuration failed to parse are nil/empty and listed in Warnings.
type RuleSet struct {
	Type        domain.DocumentType
	Keywords    []domain.Keyword
	Signals     []domain.TypeSignal
	Rules       []domain.ExtractionRule
	Suggestions *SuggestionsConfig
	Contexts    DefaultContexts
	FlowLocks   []FlowLock
	Meta        MetaSchema
	Warnings    []error
}

// Threshold is the effective auto-assignment threshold, clamped to [0,1].
func (rs *RuleSet) Threshold() float64 {
	return clamp(rs.Type.Threshold(), 0, 1)
}

// CompileRuleSet validates a raw rule source. It never fails: each malformed
// JSON block degrades to "feature absent" with a ConfigParseError warning.
func CompileRuleSet(src domain.RuleSource) *RuleSet {
	rs := &RuleSet{
		Type:     src.Type,
		Contexts: DefaultContexts{MonthMap: defaultMonthMap()},
	}

	if t := src.Type.Threshold(); t < 0 || t > 1 {
		rs.warn("autoAssignThreshold", fmt.Errorf("threshold %v outside [0,1], clamped", t))
	}

	rs.Keywords = make([]domain.Keyword, 0, len(src.Keywords))
	for _, kw := range src.Keywords {
		kw.Weight = clamp(kw.Weight, domain.MinKeywordWeight, domain.MaxKeywordWeight)
		rs.Keywords = append(rs.Keywords, kw)
	}

	for _, ts := range src.TypeSignals {
		if !ts.Enabled {
			continue
		}
		if ts.Weight < 0 {
			ts.Weight = 0
		}
		rs.Signals = append(rs.Signals, ts)
	}
	sort.SliceStable(rs.Signals, func(i, j int) bool { return rs.Signals[i].Order < rs.Signals[j].Order })

	rs.Rules = append([]domain.ExtractionRule(nil), src.Rules...)
	sort.SliceStable(rs.Rules, func(i, j int) bool {
		if rs.Rules[i].Priority != rs.Rules[j].Priority {
			return rs.Rules[i].Priority < rs.Rules[j].Priority
		}
		return rs.Rules[i].ID < rs.Rules[j].ID
	})

	if present(src.Type.SuggestionsConfig) {
		cfg, err := parseSuggestionsConfig(src.Type.SuggestionsConfig, rs)
		if err != nil {
			rs.warn("suggestionsConfig", err)
		} else {
			rs.Suggestions = cfg
		}
	}
	if present(src.Type.DefaultContexts) {
		if err := parseDefaultContexts(src.Type.DefaultContexts, &rs.Contexts); err != nil {
			rs.warn("defaultContexts", err)
		}
	}
	if present(src.Type.FlowLocks) {
		locks, err := parseFlowLocks(src.Type.FlowLocks, rs)
		if err != nil {
			rs.warn("flowLocks", err)
		} else {
			rs.FlowLocks = locks
		}
	}
	if present(src.Type.MetaSchema) {
		meta, err := parseMetaSchema(src.Type.MetaSchema)
		if err != nil {
			rs.warn("metaSchema", err)
		} else {
			rs.Meta = meta
		}
	}
	return rs
}

// CompileRuleSets compiles sources preserving their order.
func CompileRuleSets(sources []domain.RuleSource) []*RuleSet {
	out := make([]*RuleSet, 0, len(sources))
	for _, src := range sources {
		out = append(out, CompileRuleSet(src))
	}
	return out
}

func (rs *RuleSet) warn(block string, err error) {
	rs.Warnings = append(rs.Warnings, &domain.ConfigParseError{TypeCode: rs.Type.Code, Block: block, Err: err})
}

// HasConfigError reports whether any advanced block of the type was dropped.
func (rs *RuleSet) HasConfigError() bool {
	for _, w := range rs.Warnings {
		if errors.Is(w, domain.ErrConfigParse) {
			return true
		}
	}
	return false
}

func present(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

type objectEntry struct {
	Key   string
	Value json.RawMessage
}

// orderedObject decodes a JSON object keeping its declaration order.
func orderedObject(raw json.RawMessage) ([]objectEntry, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected JSON object, got %v", tok)
	}

	var entries []objectEntry
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key, got %v", tok)
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("decode %q: %w", key, err)
		}
		entries = append(entries, objectEntry{Key: key, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return entries, nil
}

func parseSuggestionsConfig(raw json.RawMessage, rs *RuleSet) (*SuggestionsConfig, error) {
	var top struct {
		Regex         json.RawMessage `json:"regex"`
		Mapping       json.RawMessage `json:"mapping"`
		PostProcess   json.RawMessage `json:"postprocess"`
		LabelTemplate string          `json:"labelTemplate"`
	}
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, err
	}

	cfg := &SuggestionsConfig{LabelTemplate: top.LabelTemplate}

	if present(top.Regex) {
		entries, err := orderedObject(top.Regex)
		if err != nil {
			return nil, fmt.Errorf("regex: %w", err)
		}
		for _, e := range entries {
			var pattern string
			if err := json.Unmarshal(e.Value, &pattern); err != nil {
				rs.warn("suggestionsConfig.regex."+e.Key, err)
				continue
			}
			cfg.Regex = append(cfg.Regex, NamedRegex{Name: e.Key, Pattern: pattern})
		}
	}

	if present(top.Mapping) {
		entries, err := orderedObject(top.Mapping)
		if err != nil {
			return nil, fmt.Errorf("mapping: %w", err)
		}
		for _, e := range entries {
			rule, err := parseMappingRule(e.Key, e.Value)
			if err != nil {
				rs.warn("suggestionsConfig.mapping."+e.Key, err)
				continue
			}
			cfg.Mapping = append(cfg.Mapping, rule)
		}
	}

	if present(top.PostProcess) {
		assignments, err := parsePostProcess(top.PostProcess, rs)
		if err != nil {
			return nil, fmt.Errorf("postprocess: %w", err)
		}
		cfg.PostProcess = assignments
	}
	return cfg, nil
}

func parseMappingRule(target string, raw json.RawMessage) (MappingRule, error) {
	var from string
	if err := json.Unmarshal(raw, &from); err == nil {
		return MappingRule{Target: target, From: from, Group: 1}, nil
	}

	var obj struct {
		From  string    `json:"from"`
		Group *int      `json:"group"`
		Type  ValueType `json:"type"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return MappingRule{}, err
	}
	if obj.From == "" {
		return MappingRule{}, errors.New("mapping rule needs a source regex")
	}
	group := 1
	if obj.Group != nil {
		group = *obj.Group
	}
	if group < 0 {
		return MappingRule{}, fmt.Errorf("negative capture group %d", group)
	}
	switch obj.Type {
	case ValueAuto, ValueString, ValueNumber, ValueInteger:
	default:
		return MappingRule{}, fmt.Errorf("unknown value type %q", obj.Type)
	}
	return MappingRule{Target: target, From: obj.From, Group: group, Type: obj.Type}, nil
}

func parsePostProcess(raw json.RawMessage, rs *RuleSet) ([]Assignment, error) {
	type pair struct{ field, source string }
	var pairs []pair

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []struct {
			Field string `json:"field"`
			Expr  string `json:"expr"`
		}
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, err
		}
		for _, it := range items {
			pairs = append(pairs, pair{it.Field, it.Expr})
		}
	} else {
		entries, err := orderedObject(trimmed)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			var source string
			if err := json.Unmarshal(e.Value, &source); err != nil {
				rs.warn("suggestionsConfig.postprocess."+e.Key, err)
				continue
			}
			pairs = append(pairs, pair{e.Key, source})
		}
	}

	assignments := make([]Assignment, 0, len(pairs))
	for _, p := range pairs {
		if p.field == "" {
			continue
		}
		expr, err := ParseExpr(p.source)
		if err != nil {
			// Unknown expression forms are a no-op, not a config failure.
			rs.Warnings = append(rs.Warnings, fmt.Errorf("postprocess %s: %w", p.field, err))
			continue
		}
		assignments = append(assignments, Assignment{Field: p.field, Expr: expr, Source: p.source})
	}
	return assignments, nil
}

func parseDefaultContexts(raw json.RawMessage, dst *DefaultContexts) error {
	var obj struct {
		NatureCategoryMap   map[string]string `json:"natureCategoryMap"`
		MonthMap            map[string]string `json:"monthMap"`
		AutoCreateThreshold *float64          `json:"autoCreateThreshold"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return err
	}
	if len(obj.NatureCategoryMap) > 0 {
		dst.NatureCategoryMap = make(map[string]string, len(obj.NatureCategoryMap))
		for k, v := range obj.NatureCategoryMap {
			dst.NatureCategoryMap[strings.ToUpper(strings.TrimSpace(k))] = v
		}
	}
	for k, v := range obj.MonthMap {
		dst.MonthMap[normalizeMonthKey(k)] = v
	}
	if obj.AutoCreateThreshold != nil {
		t := clamp(*obj.AutoCreateThreshold, 0, 1)
		dst.AutoCreateThreshold = &t
	}
	return nil
}

func parseFlowLocks(raw json.RawMessage, rs *RuleSet) ([]FlowLock, error) {
	var items []struct {
		When      string   `json:"when"`
		Condition string   `json:"condition"`
		Fields    []string `json:"fields"`
		Reason    string   `json:"reason"`
	}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}

	locks := make([]FlowLock, 0, len(items))
	for _, it := range items {
		src := it.When
		if src == "" {
			src = it.Condition
		}
		cond, err := ParseCondition(src)
		if err != nil {
			rs.Warnings = append(rs.Warnings, fmt.Errorf("flow lock %q: %w", src, err))
			continue
		}
		if len(it.Fields) == 0 {
			continue
		}
		reason := it.Reason
		if reason == "" {
			reason = "locked because " + src
		}
		locks = append(locks, FlowLock{Condition: cond, Raw: src, Fields: it.Fields, Reason: reason})
	}
	return locks, nil
}

func parseMetaSchema(raw json.RawMessage) (MetaSchema, error) {
	var obj struct {
		Version             json.RawMessage `json:"version"`
		Fields              []string        `json:"fields"`
		ConfidenceThreshold float64         `json:"confidenceThreshold"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return MetaSchema{}, err
	}
	meta := MetaSchema{Fields: obj.Fields, ConfidenceThreshold: clamp(obj.ConfidenceThreshold, 0, 1)}
	if present(obj.Version) {
		var s string
		if err := json.Unmarshal(obj.Version, &s); err == nil {
			meta.Version = s
		} else {
			meta.Version = string(bytes.TrimSpace(obj.Version))
		}
	}
	return meta, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
