package rulefile

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sort"

	"github.com/kirillkom/property-doc-engine/internal/core/domain"
)

// Store re-reads its file on every call, so edits are picked up without a
// restart and no parsed state is shared between requests.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) snapshot(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read rule snapshot: %w", err)
	}
	return Parse(data)
}

func (s *Store) ListRuleSources(ctx context.Context, activeOnly bool) ([]domain.RuleSource, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.ListRuleSources(ctx, activeOnly)
}

func (s *Store) GetRuleSource(ctx context.Context, typeID string) (*domain.RuleSource, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.GetRuleSource(ctx, typeID)
}

func (s *Store) ListProperties(ctx context.Context) ([]domain.Property, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.ListProperties(ctx)
}

func (s *Store) ListLeasesByStatus(ctx context.Context, statuses ...domain.LeaseStatus) ([]domain.Lease, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.ListLeasesByStatus(ctx, statuses...)
}

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.ListCategories(ctx)
}

// ListRuleSources mirrors the Postgres ordering: types by order, creation
// time, code and id; rules by priority. Disabled type signals are dropped.
func (s *Snapshot) ListRuleSources(_ context.Context, activeOnly bool) ([]domain.RuleSource, error) {
	out := make([]domain.RuleSource, 0, len(s.sources))
	for _, src := range s.sources {
		if activeOnly && !src.Type.IsActive {
			continue
		}
		out = append(out, cloneSource(src))
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Type, out[j].Type
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		if a.Code != b.Code {
			return a.Code < b.Code
		}
		return a.ID < b.ID
	})
	return out, nil
}

func (s *Snapshot) GetRuleSource(_ context.Context, typeID string) (*domain.RuleSource, error) {
	for _, src := range s.sources {
		if src.Type.ID == typeID {
			out := cloneSource(src)
			return &out, nil
		}
	}
	return nil, domain.WrapError(domain.ErrDocumentTypeNotFound, "get rule source", fmt.Errorf("id=%s", typeID))
}

func (s *Snapshot) ListProperties(context.Context) ([]domain.Property, error) {
	out := slices.Clone(s.properties)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Snapshot) ListLeasesByStatus(_ context.Context, statuses ...domain.LeaseStatus) ([]domain.Lease, error) {
	var out []domain.Lease
	for _, l := range s.leases {
		if len(statuses) > 0 && !slices.Contains(statuses, l.Status) {
			continue
		}
		out = append(out, l)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].StartDate.After(out[j].StartDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Snapshot) ListCategories(context.Context) ([]domain.Category, error) {
	out := slices.Clone(s.categories)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Label != out[j].Label {
			return out[i].Label < out[j].Label
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func cloneSource(src domain.RuleSource) domain.RuleSource {
	out := domain.RuleSource{Type: src.Type}
	if src.Type.AutoAssignThreshold != nil {
		v := *src.Type.AutoAssignThreshold
		out.Type.AutoAssignThreshold = &v
	}
	out.Type.DefaultContexts = slices.Clone(src.Type.DefaultContexts)
	out.Type.SuggestionsConfig = slices.Clone(src.Type.SuggestionsConfig)
	out.Type.FlowLocks = slices.Clone(src.Type.FlowLocks)
	out.Type.MetaSchema = slices.Clone(src.Type.MetaSchema)
	out.Keywords = slices.Clone(src.Keywords)

	for _, ts := range src.TypeSignals {
		if !ts.Enabled {
			continue
		}
		if ts.Signal != nil {
			sig := *ts.Signal
			ts.Signal = &sig
		}
		out.TypeSignals = append(out.TypeSignals, ts)
	}

	for _, r := range src.Rules {
		if r.Confidence != nil {
			v := *r.Confidence
			r.Confidence = &v
		}
		out.Rules = append(out.Rules, r)
	}
	sort.SliceStable(out.Rules, func(i, j int) bool {
		return out.Rules[i].Priority < out.Rules[j].Priority
	})
	return out
}
