package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/property-doc-engine/internal/core/domain"
	"github.com/kirillkom/property-doc-engine/internal/infrastructure/resilience"
)

const defaultQueueGroup = "classifiers"

type Queue struct {
	conn       *nats.Conn
	subject    string
	queueGroup string
	executor   *resilience.Executor
	logger     *slog.Logger
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	QueueGroup           string
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

// documentIngested is the event body. Bare document ids from older
// publishers are still accepted.
type documentIngested struct {
	DocumentID string    `json:"document_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	queueGroup := strings.TrimSpace(options.QueueGroup)
	if queueGroup == "" {
		queueGroup = defaultQueueGroup
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(
		url,
		nats.Name("property-doc-engine"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:       conn,
		subject:    subject,
		queueGroup: queueGroup,
		executor:   options.ResilienceExecutor,
		logger:     logger,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishDocumentIngested(ctx context.Context, documentID string) error {
	payload, err := encodeEvent(documentID, time.Now().UTC())
	if err != nil {
		return err
	}
	call := func(_ context.Context) error {
		if err := q.conn.Publish(q.subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

func (q *Queue) SubscribeDocumentIngested(ctx context.Context, handler func(context.Context, string) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, q.queueGroup, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		documentID, err := decodeEvent(msg.Data)
		if err != nil {
			q.logger.Error("nats_event_rejected", "subject", msg.Subject, "error", err)
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, documentID); err != nil {
			q.logger.Error("worker_handler_failed", "document_id", documentID, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func encodeEvent(documentID string, at time.Time) ([]byte, error) {
	if strings.TrimSpace(documentID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "encode ingest event", errors.New("empty document id"))
	}
	payload, err := json.Marshal(documentIngested{DocumentID: documentID, OccurredAt: at})
	if err != nil {
		return nil, fmt.Errorf("encode ingest event: %w", err)
	}
	return payload, nil
}

func decodeEvent(data []byte) (string, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "decode ingest event", errors.New("empty payload"))
	}
	if !strings.HasPrefix(trimmed, "{") {
		return trimmed, nil
	}
	var event documentIngested
	if err := json.Unmarshal([]byte(trimmed), &event); err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "decode ingest event", err)
	}
	if event.DocumentID == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "decode ingest event", errors.New("missing document_id"))
	}
	return event.DocumentID, nil
}
