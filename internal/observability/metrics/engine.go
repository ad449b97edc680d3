package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/property-doc-engine/internal/core/domain"
	"github.com/kirillkom/property-doc-engine/internal/core/ports"
)

const (
	OutcomeAutoAssigned   = "auto_assigned"
	OutcomeBelowThreshold = "below_threshold"
	OutcomeNoMatch        = "no_match"
	OutcomeError          = "error"
)

// EngineMetrics counts rule engine outcomes. It is shared by the API and the
// worker, each registering it on its own registry.
type EngineMetrics struct {
	service string

	classificationsTotal *prometheus.CounterVec
	configWarningsTotal  *prometheus.CounterVec
	suggestionsTotal     *prometheus.CounterVec
	suggestionConfidence *prometheus.HistogramVec
	skippedPhasesTotal   *prometheus.CounterVec
	retriesTotal         *prometheus.CounterVec
	breakerState         *prometheus.CounterVec
}

func NewEngineMetrics(service string, registerer prometheus.Registerer) *EngineMetrics {
	classificationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pde",
			Subsystem: "engine",
			Name:      "classifications_total",
			Help:      "Total classifications by outcome.",
		},
		[]string{"service", "outcome"},
	)
	configWarningsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pde",
			Subsystem: "engine",
			Name:      "warnings_total",
			Help:      "Total non-fatal configuration and pattern warnings surfaced by evaluations.",
		},
		[]string{"service", "operation"},
	)
	suggestionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pde",
			Subsystem: "engine",
			Name:      "suggestions_total",
			Help:      "Total suggestion payloads by document type and auto-create decision.",
		},
		[]string{"service", "type_code", "auto_create"},
	)
	suggestionConfidence := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pde",
			Subsystem: "engine",
			Name:      "suggestion_confidence",
			Help:      "Distribution of aggregated suggestion confidence.",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
		},
		[]string{"service", "type_code"},
	)
	skippedPhasesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pde",
			Subsystem: "engine",
			Name:      "suggestion_skipped_phases_total",
			Help:      "Total suggestion phases skipped after an internal failure.",
		},
		[]string{"service", "phase"},
	)
	retriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pde",
			Subsystem: "resilience",
			Name:      "retries_total",
			Help:      "Total retried dependency calls by operation.",
		},
		[]string{"service", "operation"},
	)
	breakerState := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pde",
			Subsystem: "resilience",
			Name:      "breaker_transitions_total",
			Help:      "Total circuit breaker transitions by target state.",
		},
		[]string{"service", "operation", "state"},
	)

	registerer.MustRegister(
		classificationsTotal,
		configWarningsTotal,
		suggestionsTotal,
		suggestionConfidence,
		skippedPhasesTotal,
		retriesTotal,
		breakerState,
	)

	return &EngineMetrics{
		service:              service,
		classificationsTotal: classificationsTotal,
		configWarningsTotal:  configWarningsTotal,
		suggestionsTotal:     suggestionsTotal,
		suggestionConfidence: suggestionConfidence,
		skippedPhasesTotal:   skippedPhasesTotal,
		retriesTotal:         retriesTotal,
		breakerState:         breakerState,
	}
}

func ClassificationOutcome(result *domain.ClassificationResult, err error) string {
	if err != nil {
		return OutcomeError
	}
	if result == nil {
		return OutcomeNoMatch
	}
	if result.AutoAssigned {
		return OutcomeAutoAssigned
	}
	if best, ok := result.Best(); ok && best.RawScore > 0 {
		return OutcomeBelowThreshold
	}
	return OutcomeNoMatch
}

func (m *EngineMetrics) RecordClassification(result *domain.ClassificationResult, err error) {
	m.classificationsTotal.WithLabelValues(m.service, ClassificationOutcome(result, err)).Inc()
	if result != nil && len(result.Warnings) > 0 {
		m.configWarningsTotal.WithLabelValues(m.service, "classify").Add(float64(len(result.Warnings)))
	}
}

func (m *EngineMetrics) RecordSuggestion(payload *domain.SuggestionPayload) {
	if payload == nil {
		return
	}
	typeCode := payload.Meta.DocumentTypeCode
	if typeCode == "" {
		typeCode = "unknown"
	}
	autoCreate := "false"
	if payload.AutoCreate {
		autoCreate = "true"
	}
	m.suggestionsTotal.WithLabelValues(m.service, typeCode, autoCreate).Inc()
	m.suggestionConfidence.WithLabelValues(m.service, typeCode).Observe(payload.Confidence)
	for _, phase := range payload.Meta.SkippedPhases {
		m.skippedPhasesTotal.WithLabelValues(m.service, phase).Inc()
	}
	if len(payload.Meta.Warnings) > 0 {
		m.configWarningsTotal.WithLabelValues(m.service, "suggest").Add(float64(len(payload.Meta.Warnings)))
	}
}

func (m *EngineMetrics) ObserveRetry(operation string) {
	m.retriesTotal.WithLabelValues(m.service, operation).Inc()
}

func (m *EngineMetrics) ObserveBreakerState(operation, state string) {
	m.breakerState.WithLabelValues(m.service, operation, state).Inc()
}

// InstrumentClassifier records the outcome of every classification.
func InstrumentClassifier(next ports.Classifier, m *EngineMetrics) ports.Classifier {
	if m == nil {
		return next
	}
	return &instrumentedClassifier{next: next, metrics: m}
}

type instrumentedClassifier struct {
	next    ports.Classifier
	metrics *EngineMetrics
}

func (c *instrumentedClassifier) Classify(ctx context.Context, text string) (*domain.ClassificationResult, error) {
	result, err := c.next.Classify(ctx, text)
	c.metrics.RecordClassification(result, err)
	return result, err
}

// InstrumentSuggester records confidence and skipped phases of every payload.
func InstrumentSuggester(next ports.Suggester, m *EngineMetrics) ports.Suggester {
	if m == nil {
		return next
	}
	return &instrumentedSuggester{next: next, metrics: m}
}

type instrumentedSuggester struct {
	next    ports.Suggester
	metrics *EngineMetrics
}

func (s *instrumentedSuggester) Suggest(ctx context.Context, documentID string) (*domain.SuggestionPayload, error) {
	payload, err := s.next.Suggest(ctx, documentID)
	if err == nil {
		s.metrics.RecordSuggestion(payload)
	}
	return payload, err
}
