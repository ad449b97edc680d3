package ports

import (
	"context"

	"github.com/kirillkom/property-doc-engine/internal/core/domain"
)

// RuleStore serves per-request snapshots of document type configuration.
// Implementations must not hand out shared mutable state.
type RuleStore interface {
	// ListRuleSources returns every document type with its rules, ordered by
	// type order then creation time. Disabled type signals are excluded.
	ListRuleSources(ctx context.Context, activeOnly bool) ([]domain.RuleSource, error)
	// GetRuleSource returns one type; a missing type is domain.ErrDocumentTypeNotFound.
	GetRuleSource(ctx context.Context, typeID string) (*domain.RuleSource, error)
}

// PropertyDirectory resolves extracted hints to stored properties and leases.
type PropertyDirectory interface {
	ListProperties(ctx context.Context) ([]domain.Property, error)
	ListLeasesByStatus(ctx context.Context, statuses ...domain.LeaseStatus) ([]domain.Lease, error)
}

// CategoryDirectory lists bookkeeping categories.
type CategoryDirectory interface {
	ListCategories(ctx context.Context) ([]domain.Category, error)
}
