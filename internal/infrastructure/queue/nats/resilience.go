package nats

import (
	"context"
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/property-doc-engine/internal/core/domain"
	"github.com/kirillkom/property-doc-engine/internal/infrastructure/resilience"
)

// Connection-level failures; the event is worth publishing again.
var transientNATSErrors = []error{
	nats.ErrNoServers,
	nats.ErrTimeout,
	nats.ErrConnectionClosed,
	nats.ErrConnectionReconnecting,
	nats.ErrDisconnected,
	nats.ErrSlowConsumer,
}

func classifyNATSError(err error) resilience.ErrorClassification {
	switch {
	case err == nil:
		return resilience.ErrorClassification{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resilience.ErrorClassification{}
	case resilience.IsCircuitOpen(err), isTransient(err):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	default:
		// Bad subject or oversized payload: retrying would fail the same way.
		return resilience.ErrorClassification{RecordFailure: true}
	}
}

func isTransient(err error) bool {
	for _, target := range transientNATSErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// wrapTemporaryIfNeeded marks publish failures the client may retry so the
// API answers 503 instead of 500.
func wrapTemporaryIfNeeded(err error) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if classifyNATSError(err).Retryable {
		return domain.WrapError(domain.ErrTemporary, "nats publish", err)
	}
	return err
}
