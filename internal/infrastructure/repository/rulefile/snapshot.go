// Package rulefile serves rule sets and directory data from a YAML snapshot.
// It backs the offline CLI and test fixtures; the API uses Postgres.
package rulefile

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/property-doc-engine/internal/core/domain"
)

type snapshotFile struct {
	Signals    []signalEntry   `yaml:"signals"`
	Types      []typeEntry     `yaml:"types"`
	Properties []propertyEntry `yaml:"properties"`
	Leases     []leaseEntry    `yaml:"leases"`
	Categories []categoryEntry `yaml:"categories"`
}

type signalEntry struct {
	ID          string `yaml:"id"`
	Code        string `yaml:"code"`
	Label       string `yaml:"label"`
	Pattern     string `yaml:"pattern"`
	Flags       string `yaml:"flags"`
	Description string `yaml:"description"`
	Protected   bool   `yaml:"protected"`
}

type typeEntry struct {
	ID                  string            `yaml:"id"`
	Code                string            `yaml:"code"`
	Label               string            `yaml:"label"`
	Active              *bool             `yaml:"active"`
	Order               int               `yaml:"order"`
	AutoAssignThreshold *float64          `yaml:"autoAssignThreshold"`
	CreatedAt           time.Time         `yaml:"createdAt"`
	Keywords            []keywordEntry    `yaml:"keywords"`
	Signals             []typeSignalEntry `yaml:"signals"`
	Rules               []ruleEntry       `yaml:"rules"`
	DefaultContexts     yaml.Node         `yaml:"defaultContexts"`
	SuggestionsConfig   yaml.Node         `yaml:"suggestionsConfig"`
	FlowLocks           yaml.Node         `yaml:"flowLocks"`
	MetaSchema          yaml.Node         `yaml:"metaSchema"`
}

type keywordEntry struct {
	ID      string  `yaml:"id"`
	Keyword string  `yaml:"keyword"`
	Weight  float64 `yaml:"weight"`
}

type typeSignalEntry struct {
	ID      string  `yaml:"id"`
	Signal  string  `yaml:"signal"`
	Weight  float64 `yaml:"weight"`
	Enabled *bool   `yaml:"enabled"`
}

type ruleEntry struct {
	ID          string   `yaml:"id"`
	Field       string   `yaml:"field"`
	Pattern     string   `yaml:"pattern"`
	PostProcess string   `yaml:"postProcess"`
	Priority    int      `yaml:"priority"`
	Confidence  *float64 `yaml:"confidence"`
}

type propertyEntry struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
}

type leaseEntry struct {
	ID         string      `yaml:"id"`
	PropertyID string      `yaml:"property"`
	Status     string      `yaml:"status"`
	StartDate  string      `yaml:"startDate"`
	Tenant     tenantEntry `yaml:"tenant"`
}

type tenantEntry struct {
	ID        string `yaml:"id"`
	FirstName string `yaml:"firstName"`
	LastName  string `yaml:"lastName"`
}

type categoryEntry struct {
	ID    string `yaml:"id"`
	Label string `yaml:"label"`
}

// Snapshot is a parsed rule file. Accessors return fresh copies.
type Snapshot struct {
	sources    []domain.RuleSource
	properties []domain.Property
	leases     []domain.Lease
	categories []domain.Category
}

// Parse decodes a YAML snapshot. Configuration blocks are re-encoded as JSON
// with their key order preserved.
func Parse(data []byte) (*Snapshot, error) {
	var file snapshotFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "parse rule snapshot", err)
	}

	catalog := make(map[string]domain.Signal, len(file.Signals))
	for _, s := range file.Signals {
		catalog[s.ID] = domain.Signal{
			ID:          s.ID,
			Code:        s.Code,
			Label:       s.Label,
			Pattern:     s.Pattern,
			Flags:       s.Flags,
			Description: s.Description,
			Protected:   s.Protected,
		}
	}

	snap := &Snapshot{}
	seen := make(map[string]struct{}, len(file.Types))
	for i, t := range file.Types {
		if t.ID == "" {
			t.ID = t.Code
		}
		if t.ID == "" {
			return nil, domain.WrapError(domain.ErrInvalidInput, "parse rule snapshot", fmt.Errorf("type #%d has no id or code", i))
		}
		if _, dup := seen[t.ID]; dup {
			return nil, domain.WrapError(domain.ErrInvalidInput, "parse rule snapshot", fmt.Errorf("duplicate type id %q", t.ID))
		}
		seen[t.ID] = struct{}{}

		src, err := t.toSource(catalog)
		if err != nil {
			return nil, err
		}
		snap.sources = append(snap.sources, src)
	}

	for _, p := range file.Properties {
		snap.properties = append(snap.properties, domain.Property{ID: p.ID, Name: p.Name, Address: p.Address})
	}
	for _, l := range file.Leases {
		start, err := time.Parse(time.DateOnly, l.StartDate)
		if err != nil {
			return nil, domain.WrapError(domain.ErrInvalidInput, "parse rule snapshot", fmt.Errorf("lease %s start date: %w", l.ID, err))
		}
		snap.leases = append(snap.leases, domain.Lease{
			ID:         l.ID,
			PropertyID: l.PropertyID,
			Status:     domain.LeaseStatus(l.Status),
			StartDate:  start,
			Tenant: domain.Tenant{
				ID:        l.Tenant.ID,
				FirstName: l.Tenant.FirstName,
				LastName:  l.Tenant.LastName,
			},
		})
	}
	for _, c := range file.Categories {
		snap.categories = append(snap.categories, domain.Category{ID: c.ID, Label: c.Label})
	}
	return snap, nil
}

func (t typeEntry) toSource(catalog map[string]domain.Signal) (domain.RuleSource, error) {
	active := true
	if t.Active != nil {
		active = *t.Active
	}
	src := domain.RuleSource{
		Type: domain.DocumentType{
			ID:                  t.ID,
			Code:                t.Code,
			Label:               t.Label,
			IsActive:            active,
			Order:               t.Order,
			AutoAssignThreshold: t.AutoAssignThreshold,
			CreatedAt:           t.CreatedAt,
		},
	}

	blocks := []struct {
		name string
		node *yaml.Node
		dst  *json.RawMessage
	}{
		{"defaultContexts", &t.DefaultContexts, &src.Type.DefaultContexts},
		{"suggestionsConfig", &t.SuggestionsConfig, &src.Type.SuggestionsConfig},
		{"flowLocks", &t.FlowLocks, &src.Type.FlowLocks},
		{"metaSchema", &t.MetaSchema, &src.Type.MetaSchema},
	}
	for _, b := range blocks {
		raw, err := nodeJSON(b.node)
		if err != nil {
			return domain.RuleSource{}, domain.WrapError(domain.ErrInvalidInput, "parse rule snapshot", fmt.Errorf("type %s %s: %w", t.ID, b.name, err))
		}
		*b.dst = raw
	}

	for i, kw := range t.Keywords {
		id := kw.ID
		if id == "" {
			id = t.ID + "-kw-" + strconv.Itoa(i)
		}
		src.Keywords = append(src.Keywords, domain.Keyword{
			ID:             id,
			DocumentTypeID: t.ID,
			Keyword:        kw.Keyword,
			Weight:         kw.Weight,
		})
	}

	for i, ts := range t.Signals {
		enabled := true
		if ts.Enabled != nil {
			enabled = *ts.Enabled
		}
		id := ts.ID
		if id == "" {
			id = t.ID + "-ts-" + strconv.Itoa(i)
		}
		entry := domain.TypeSignal{
			ID:             id,
			DocumentTypeID: t.ID,
			SignalID:       ts.Signal,
			Weight:         ts.Weight,
			Enabled:        enabled,
			Order:          i,
		}
		if sig, ok := catalog[ts.Signal]; ok {
			entry.Signal = &sig
		}
		src.TypeSignals = append(src.TypeSignals, entry)
	}

	for i, r := range t.Rules {
		id := r.ID
		if id == "" {
			id = t.ID + "-rule-" + strconv.Itoa(i)
		}
		src.Rules = append(src.Rules, domain.ExtractionRule{
			ID:             id,
			DocumentTypeID: t.ID,
			FieldName:      r.Field,
			Pattern:        r.Pattern,
			PostProcess:    r.PostProcess,
			Priority:       r.Priority,
			Confidence:     r.Confidence,
		})
	}
	return src, nil
}
