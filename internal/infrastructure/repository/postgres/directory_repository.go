package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/kirillkom/property-doc-engine/internal/core/domain"
	"github.com/kirillkom/property-doc-engine/internal/infrastructure/resilience"
)

// DirectoryRepository serves the property, lease and category lookups used
// when resolving suggestions.
type DirectoryRepository struct {
	db       *sql.DB
	executor *resilience.Executor
}

func NewDirectoryRepository(db *sql.DB, executor *resilience.Executor) *DirectoryRepository {
	return &DirectoryRepository{db: db, executor: executor}
}

func (r *DirectoryRepository) ListProperties(ctx context.Context) ([]domain.Property, error) {
	return guarded(ctx, r.executor, "postgres.list_properties", func(ctx context.Context) ([]domain.Property, error) {
		rows, err := r.db.QueryContext(ctx, `
SELECT id, name, address
FROM properties
ORDER BY name ASC, id ASC
`)
		if err != nil {
			return nil, fmt.Errorf("query properties: %w", err)
		}
		defer rows.Close()

		var out []domain.Property
		for rows.Next() {
			var p domain.Property
			if err := rows.Scan(&p.ID, &p.Name, &p.Address); err != nil {
				return nil, fmt.Errorf("scan property: %w", err)
			}
			out = append(out, p)
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate properties: %w", err)
		}
		return out, nil
	})
}

// ListLeasesByStatus returns leases joined with their tenant, most recent
// start first. No statuses means every lease.
func (r *DirectoryRepository) ListLeasesByStatus(ctx context.Context, statuses ...domain.LeaseStatus) ([]domain.Lease, error) {
	query := `
SELECT l.id, l.property_id, l.status, l.start_date, t.id, t.first_name, t.last_name
FROM leases l
JOIN tenants t ON t.id = l.tenant_id`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		placeholders := make([]string, 0, len(statuses))
		for i, status := range statuses {
			placeholders = append(placeholders, fmt.Sprintf("$%d", i+1))
			args = append(args, string(status))
		}
		query += ` WHERE l.status IN (` + strings.Join(placeholders, ",") + `)`
	}
	query += ` ORDER BY l.start_date DESC, l.id ASC`

	return guarded(ctx, r.executor, "postgres.list_leases", func(ctx context.Context) ([]domain.Lease, error) {
		rows, err := r.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("query leases: %w", err)
		}
		defer rows.Close()

		var out []domain.Lease
		for rows.Next() {
			var (
				lease  domain.Lease
				status string
			)
			if err := rows.Scan(
				&lease.ID, &lease.PropertyID, &status, &lease.StartDate,
				&lease.Tenant.ID, &lease.Tenant.FirstName, &lease.Tenant.LastName,
			); err != nil {
				return nil, fmt.Errorf("scan lease: %w", err)
			}
			lease.Status = domain.LeaseStatus(status)
			out = append(out, lease)
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate leases: %w", err)
		}
		return out, nil
	})
}

func (r *DirectoryRepository) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return guarded(ctx, r.executor, "postgres.list_categories", func(ctx context.Context) ([]domain.Category, error) {
		rows, err := r.db.QueryContext(ctx, `
SELECT id, label
FROM categories
ORDER BY label ASC, id ASC
`)
		if err != nil {
			return nil, fmt.Errorf("query categories: %w", err)
		}
		defer rows.Close()

		var out []domain.Category
		for rows.Next() {
			var c domain.Category
			if err := rows.Scan(&c.ID, &c.Label); err != nil {
				return nil, fmt.Errorf("scan category: %w", err)
			}
			out = append(out, c)
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate categories: %w", err)
		}
		return out, nil
	})
}
