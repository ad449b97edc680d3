package nats

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/property-doc-engine/internal/core/domain"
)

func TestEventRoundTrip(t *testing.T) {
	payload, err := encodeEvent("doc-1", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("encodeEvent() error = %v", err)
	}
	id, err := decodeEvent(payload)
	if err != nil || id != "doc-1" {
		t.Fatalf("decodeEvent() = %q, %v", id, err)
	}
}

func TestDecodeEventAcceptsBareID(t *testing.T) {
	id, err := decodeEvent([]byte(" doc-legacy \n"))
	if err != nil || id != "doc-legacy" {
		t.Fatalf("decodeEvent() = %q, %v", id, err)
	}
}

func TestDecodeEventRejectsMalformedPayloads(t *testing.T) {
	for _, payload := range []string{"", "{", `{"occurred_at":"2024-03-01T00:00:00Z"}`} {
		if _, err := decodeEvent([]byte(payload)); !domain.IsKind(err, domain.ErrInvalidInput) {
			t.Fatalf("decodeEvent(%q) expected invalid input, got %v", payload, err)
		}
	}
}

func TestWrapTemporaryIfNeeded(t *testing.T) {
	if err := wrapTemporaryIfNeeded(nats.ErrNoServers); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
	plain := errors.New("bad subject")
	if err := wrapTemporaryIfNeeded(plain); domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("non-retryable errors must stay as is, got %v", err)
	}
	if err := wrapTemporaryIfNeeded(fmt.Errorf("flush: %w", nats.ErrConnectionReconnecting)); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("wrapped reconnect error must be temporary, got %v", err)
	}
	if class := classifyNATSError(context.Canceled); class.Retryable || class.RecordFailure {
		t.Fatalf("cancellation must not count as failure: %+v", class)
	}
}
