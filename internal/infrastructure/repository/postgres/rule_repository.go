package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/kirillkom/property-doc-engine/internal/core/domain"
	"github.com/kirillkom/property-doc-engine/internal/infrastructure/resilience"
)

// RuleRepository reads document types with their keywords, signals and
// extraction rules. Every call builds fresh values, so callers get a
// private snapshot.
type RuleRepository struct {
	db       *sql.DB
	executor *resilience.Executor
}

func NewRuleRepository(db *sql.DB, executor *resilience.Executor) *RuleRepository {
	return &RuleRepository{db: db, executor: executor}
}

func (r *RuleRepository) ListRuleSources(ctx context.Context, activeOnly bool) ([]domain.RuleSource, error) {
	return guarded(ctx, r.executor, "postgres.list_rule_sources", func(ctx context.Context) ([]domain.RuleSource, error) {
		return r.load(ctx, "", activeOnly)
	})
}

func (r *RuleRepository) GetRuleSource(ctx context.Context, typeID string) (*domain.RuleSource, error) {
	sources, err := guarded(ctx, r.executor, "postgres.get_rule_source", func(ctx context.Context) ([]domain.RuleSource, error) {
		return r.load(ctx, typeID, false)
	})
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, domain.WrapError(domain.ErrDocumentTypeNotFound, "get rule source", fmt.Errorf("id=%s", typeID))
	}
	return &sources[0], nil
}

func (r *RuleRepository) load(ctx context.Context, typeID string, activeOnly bool) ([]domain.RuleSource, error) {
	types, err := r.listTypes(ctx, typeID, activeOnly)
	if err != nil {
		return nil, err
	}
	if len(types) == 0 {
		return nil, nil
	}

	index := make(map[string]int, len(types))
	sources := make([]domain.RuleSource, len(types))
	for i, t := range types {
		index[t.ID] = i
		sources[i].Type = t
	}

	keywords, err := r.listKeywords(ctx, typeID)
	if err != nil {
		return nil, err
	}
	for _, kw := range keywords {
		if i, ok := index[kw.DocumentTypeID]; ok {
			sources[i].Keywords = append(sources[i].Keywords, kw)
		}
	}

	signals, err := r.listTypeSignals(ctx, typeID)
	if err != nil {
		return nil, err
	}
	for _, ts := range signals {
		if i, ok := index[ts.DocumentTypeID]; ok {
			sources[i].TypeSignals = append(sources[i].TypeSignals, ts)
		}
	}

	rules, err := r.listRules(ctx, typeID)
	if err != nil {
		return nil, err
	}
	for _, rule := range rules {
		if i, ok := index[rule.DocumentTypeID]; ok {
			sources[i].Rules = append(sources[i].Rules, rule)
		}
	}
	return sources, nil
}

func (r *RuleRepository) listTypes(ctx context.Context, typeID string, activeOnly bool) ([]domain.DocumentType, error) {
	query := `
SELECT id, code, label, is_active, sort_order, auto_assign_threshold,
	default_contexts, suggestions_config, flow_locks, meta_schema, created_at
FROM document_types`
	var args []any
	switch {
	case typeID != "":
		query += ` WHERE id = $1`
		args = append(args, typeID)
	case activeOnly:
		query += ` WHERE is_active = TRUE`
	}
	query += ` ORDER BY sort_order ASC, created_at ASC, code ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query document types: %w", err)
	}
	defer rows.Close()

	var out []domain.DocumentType
	for rows.Next() {
		var (
			t         domain.DocumentType
			threshold sql.NullFloat64
			contexts  []byte
			suggest   []byte
			locks     []byte
			meta      []byte
		)
		if err := rows.Scan(
			&t.ID, &t.Code, &t.Label, &t.IsActive, &t.Order, &threshold,
			&contexts, &suggest, &locks, &meta, &t.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan document type: %w", err)
		}
		if threshold.Valid {
			v := threshold.Float64
			t.AutoAssignThreshold = &v
		}
		t.DefaultContexts = rawJSON(contexts)
		t.SuggestionsConfig = rawJSON(suggest)
		t.FlowLocks = rawJSON(locks)
		t.MetaSchema = rawJSON(meta)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate document types: %w", err)
	}
	return out, nil
}

func (r *RuleRepository) listKeywords(ctx context.Context, typeID string) ([]domain.Keyword, error) {
	query := `SELECT id, document_type_id, keyword, weight FROM keywords`
	var args []any
	if typeID != "" {
		query += ` WHERE document_type_id = $1`
		args = append(args, typeID)
	}
	query += ` ORDER BY document_type_id ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query keywords: %w", err)
	}
	defer rows.Close()

	var out []domain.Keyword
	for rows.Next() {
		var kw domain.Keyword
		if err := rows.Scan(&kw.ID, &kw.DocumentTypeID, &kw.Keyword, &kw.Weight); err != nil {
			return nil, fmt.Errorf("scan keyword: %w", err)
		}
		out = append(out, kw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate keywords: %w", err)
	}
	return out, nil
}

// listTypeSignals returns enabled associations only. A missing catalog row
// yields a TypeSignal without Signal.
func (r *RuleRepository) listTypeSignals(ctx context.Context, typeID string) ([]domain.TypeSignal, error) {
	query := `
SELECT ts.id, ts.document_type_id, ts.signal_id, ts.weight, ts.enabled, ts.sort_order,
	s.id, s.code, s.label, s.pattern, s.flags, s.description, s.protected
FROM type_signals ts
LEFT JOIN signals s ON s.id = ts.signal_id
WHERE ts.enabled = TRUE`
	var args []any
	if typeID != "" {
		query += ` AND ts.document_type_id = $1`
		args = append(args, typeID)
	}
	query += ` ORDER BY ts.document_type_id ASC, ts.sort_order ASC, ts.id ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query type signals: %w", err)
	}
	defer rows.Close()

	var out []domain.TypeSignal
	for rows.Next() {
		var ts domain.TypeSignal
		var sigID, code, label, pattern, flags, desc sql.NullString
		var protected sql.NullBool
		if err := rows.Scan(
			&ts.ID, &ts.DocumentTypeID, &ts.SignalID, &ts.Weight, &ts.Enabled, &ts.Order,
			&sigID, &code, &label, &pattern, &flags, &desc, &protected,
		); err != nil {
			return nil, fmt.Errorf("scan type signal: %w", err)
		}
		if sigID.Valid {
			ts.Signal = &domain.Signal{
				ID:          sigID.String,
				Code:        code.String,
				Label:       label.String,
				Pattern:     pattern.String,
				Flags:       flags.String,
				Description: desc.String,
				Protected:   protected.Bool,
			}
		}
		out = append(out, ts)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate type signals: %w", err)
	}
	return out, nil
}

func (r *RuleRepository) listRules(ctx context.Context, typeID string) ([]domain.ExtractionRule, error) {
	query := `
SELECT id, document_type_id, field_name, pattern, post_process, priority, confidence
FROM extraction_rules`
	var args []any
	if typeID != "" {
		query += ` WHERE document_type_id = $1`
		args = append(args, typeID)
	}
	query += ` ORDER BY document_type_id ASC, priority ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query extraction rules: %w", err)
	}
	defer rows.Close()

	var out []domain.ExtractionRule
	for rows.Next() {
		var (
			rule       domain.ExtractionRule
			confidence sql.NullFloat64
		)
		if err := rows.Scan(
			&rule.ID, &rule.DocumentTypeID, &rule.FieldName, &rule.Pattern,
			&rule.PostProcess, &rule.Priority, &confidence,
		); err != nil {
			return nil, fmt.Errorf("scan extraction rule: %w", err)
		}
		if confidence.Valid {
			v := confidence.Float64
			rule.Confidence = &v
		}
		out = append(out, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate extraction rules: %w", err)
	}
	return out, nil
}

func rawJSON(b []byte) json.RawMessage {
	if len(b) == 0 {
		return nil
	}
	return json.RawMessage(b)
}
