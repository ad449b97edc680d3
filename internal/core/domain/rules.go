package domain

import (
	"encoding/json"
	"time"
)

// DefaultAutoAssignThreshold applies when a document type has no threshold configured.
const DefaultAutoAssignThreshold = 0.85

const (
	MinKeywordWeight = 0
	MaxKeywordWeight = 10
)

type DocumentType struct {
	ID                  string          `json:"id"`
	Code                string          `json:"code"`
	Label               string          `json:"label"`
	IsActive            bool            `json:"is_active"`
	Order               int             `json:"order"`
	AutoAssignThreshold *float64        `json:"auto_assign_threshold,omitempty"`
	DefaultContexts     json.RawMessage `json:"default_contexts,omitempty"`
	SuggestionsConfig   json.RawMessage `json:"suggestions_config,omitempty"`
	FlowLocks           json.RawMessage `json:"flow_locks,omitempty"`
	MetaSchema          json.RawMessage `json:"meta_schema,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
}

// Threshold returns the effective auto-assignment threshold.
func (t DocumentType) Threshold() float64 {
	if t.AutoAssignThreshold == nil {
		return DefaultAutoAssignThreshold
	}
	return *t.AutoAssignThreshold
}

type Keyword struct {
	ID             string  `json:"id"`
	DocumentTypeID string  `json:"document_type_id"`
	Keyword        string  `json:"keyword"`
	Weight         float64 `json:"weight"`
}

// Signal is a globally cataloged regex, attached to types through TypeSignal.
type Signal struct {
	ID          string `json:"id"`
	Code        string `json:"code"`
	Label       string `json:"label"`
	Pattern     string `json:"pattern"`
	Flags       string `json:"flags,omitempty"`
	Description string `json:"description,omitempty"`
	Protected   bool   `json:"protected"`
}

type TypeSignal struct {
	ID             string  `json:"id"`
	DocumentTypeID string  `json:"document_type_id"`
	SignalID       string  `json:"signal_id"`
	Weight         float64 `json:"weight"`
	Enabled        bool    `json:"enabled"`
	Order          int     `json:"order"`
	// Signal is nil when the referenced catalog entry was deleted.
	Signal *Signal `json:"signal,omitempty"`
}

func (ts TypeSignal) Orphan() bool { return ts.Signal == nil }

type ExtractionRule struct {
	ID             string   `json:"id"`
	DocumentTypeID string   `json:"document_type_id"`
	FieldName      string   `json:"field_name"`
	Pattern        string   `json:"pattern"`
	PostProcess    string   `json:"post_process,omitempty"`
	Priority       int      `json:"priority"`
	Confidence     *float64 `json:"confidence,omitempty"`
}

// RuleSource is everything the Rule Store knows about one document type,
// with JSON configuration blocks still raw.
type RuleSource struct {
	Type        DocumentType     `json:"type"`
	Keywords    []Keyword        `json:"keywords"`
	TypeSignals []TypeSignal     `json:"type_signals"`
	Rules       []ExtractionRule `json:"rules"`
}
