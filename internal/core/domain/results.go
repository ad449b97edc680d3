package domain

type KeywordMatch struct {
	KeywordID string  `json:"keyword_id"`
	Keyword   string  `json:"keyword"`
	Weight    float64 `json:"weight"`
}

type SignalMatch struct {
	TypeSignalID string  `json:"type_signal_id"`
	SignalCode   string  `json:"signal_code"`
	Weight       float64 `json:"weight"`
	Occurrences  int     `json:"occurrences"`
	Details      string  `json:"details,omitempty"`
}

type ScoreBreakdown struct {
	KeywordScore float64 `json:"keyword_score"`
	SignalScore  float64 `json:"signal_score"`
	KeywordMax   float64 `json:"keyword_max"`
	SignalMax    float64 `json:"signal_max"`
}

type TypeScore struct {
	TypeID          string         `json:"type_id"`
	Code            string         `json:"code"`
	Label           string         `json:"label"`
	RawScore        float64        `json:"raw_score"`
	MaxScore        float64        `json:"max_score"`
	NormalizedScore float64        `json:"normalized_score"`
	Threshold       float64        `json:"threshold"`
	MatchedKeywords []KeywordMatch `json:"matched_keywords"`
	MatchedSignals  []SignalMatch  `json:"matched_signals"`
	OrphanSignals   []string       `json:"orphan_signals,omitempty"`
	Breakdown       ScoreBreakdown `json:"score_breakdown"`
}

type ClassificationResult struct {
	Candidates     []TypeScore `json:"candidates"`
	Top            []TypeScore `json:"top3"`
	AutoAssigned   bool        `json:"auto_assigned"`
	AssignedTypeID string      `json:"assigned_type_id,omitempty"`
	Warnings       []string    `json:"warnings,omitempty"`
}

// Best returns the top-ranked candidate, if any.
func (r ClassificationResult) Best() (TypeScore, bool) {
	if len(r.Top) == 0 {
		return TypeScore{}, false
	}
	return r.Top[0], true
}

type FieldExtraction struct {
	FieldName  string  `json:"field_name"`
	Value      any     `json:"value"`
	Raw        string  `json:"raw"`
	Confidence float64 `json:"confidence"`
	RuleUsed   string  `json:"rule_used"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
}

type ExtractionResult struct {
	Fields   []FieldExtraction `json:"fields"`
	Warnings []string          `json:"warnings,omitempty"`
}

type Highlight struct {
	Field string `json:"field"`
	Text  string `json:"text"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

type FieldLock struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

type SuggestionMeta struct {
	DocumentID        string             `json:"document_id"`
	DocumentTypeCode  string             `json:"document_type_code"`
	ExtractionVersion string             `json:"extraction_version,omitempty"`
	FieldsConfidence  map[string]float64 `json:"fields_confidence"`
	Highlights        []Highlight        `json:"highlights"`
	RawExtractedData  map[string]any     `json:"raw_extracted_data"`
	SkippedPhases     []string           `json:"skipped_phases,omitempty"`
	Warnings          []string           `json:"warnings,omitempty"`
}

type SuggestionPayload struct {
	Confidence  float64        `json:"confidence"`
	Suggestions map[string]any `json:"suggestions"`
	Meta        SuggestionMeta `json:"meta"`
	Locks       []FieldLock    `json:"locks"`
	AutoCreate  bool           `json:"auto_create"`
}

type DeterminismReport struct {
	Runs   int      `json:"runs"`
	Stable bool     `json:"stable"`
	Hashes []string `json:"hashes"`
}

type TestRunResult struct {
	Classification ClassificationResult `json:"classification"`
	ExtractionType string               `json:"extraction_type_id,omitempty"`
	Extraction     ExtractionResult     `json:"extraction"`
	Determinism    *DeterminismReport   `json:"determinism,omitempty"`
}

// TestRunRequest drives the admin test harness. An empty TypeID extracts
// with the top-ranked type.
type TestRunRequest struct {
	Text            string `json:"text"`
	TypeID          string `json:"document_type_id,omitempty"`
	DeterminismRuns int    `json:"determinism_runs,omitempty"`
	IncludeInactive bool   `json:"include_inactive,omitempty"`
}
