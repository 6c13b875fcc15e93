package nats

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sony/gobreaker/v2"

	"github.com/alikoudar/irobot-sub000/internal/core/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEncodeDecodeDocumentEvent(t *testing.T) {
	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	data, err := encodeEvent(domain.DocumentEvent{Type: domain.DocumentUpdated, DocumentID: "doc-1", OccurredAt: at})
	if err != nil {
		t.Fatalf("encodeEvent() error = %v", err)
	}

	event, err := decodeEvent(data)
	if err != nil {
		t.Fatalf("decodeEvent() error = %v", err)
	}
	if event.Type != domain.DocumentUpdated || event.DocumentID != "doc-1" || !event.OccurredAt.Equal(at) {
		t.Fatalf("unexpected event: %+v", event)
	}
	if !event.InvalidatesCache() {
		t.Fatalf("document.updated must invalidate the cache")
	}
}

func TestDecodeBareDocumentIDIsIngestion(t *testing.T) {
	event, err := decodeEvent([]byte(" doc-7\n"))
	if err != nil {
		t.Fatalf("decodeEvent() error = %v", err)
	}
	if event.Type != domain.DocumentIngested || event.DocumentID != "doc-7" {
		t.Fatalf("unexpected event: %+v", event)
	}
}

func TestDecodeRejectsMalformedEvents(t *testing.T) {
	cases := map[string]string{
		"empty":        "  ",
		"bad json":     "{not json",
		"unknown type": `{"type":"document.renamed","document_id":"d"}`,
		"missing id":   `{"type":"document.deleted"}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := decodeEvent([]byte(payload)); err == nil {
				t.Fatalf("expected error for %q", payload)
			}
		})
	}
}

func TestEncodeRequiresDocumentID(t *testing.T) {
	_, err := encodeEvent(domain.DocumentEvent{Type: domain.DocumentIngested})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestDispatchCallsHandlerWithDecodedEvent(t *testing.T) {
	q := &Queue{logger: discardLogger()}
	var got domain.DocumentEvent
	q.dispatch(context.Background(), []byte(`{"type":"document.deleted","document_id":"doc-3"}`),
		func(_ context.Context, event domain.DocumentEvent) error {
			got = event
			return errors.New("handler failure is logged")
		})
	if got.Type != domain.DocumentDeleted || got.DocumentID != "doc-3" {
		t.Fatalf("unexpected dispatched event: %+v", got)
	}
}

func TestDispatchSkipsAfterCancel(t *testing.T) {
	q := &Queue{logger: discardLogger()}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	q.dispatch(ctx, []byte("doc-1"), func(context.Context, domain.DocumentEvent) error {
		called = true
		return nil
	})
	if called {
		t.Fatalf("handler must not run after cancellation")
	}
}

func TestClassifyNATSError(t *testing.T) {
	if class := classifyNATSError(nats.ErrTimeout); !class.Retryable {
		t.Fatalf("timeout must be retryable")
	}
	if class := classifyNATSError(context.Canceled); class.Retryable || class.RecordFailure {
		t.Fatalf("cancellation must neither retry nor trip the breaker")
	}
	if class := classifyNATSError(nats.ErrBadSubject); class.Retryable {
		t.Fatalf("bad subject must not be retryable")
	}
	if err := wrapTemporaryIfNeeded(nats.ErrNoServers); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("no servers must be temporary, got %v", err)
	}
	if err := wrapTemporaryIfNeeded(gobreaker.ErrOpenState); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("open circuit must be temporary, got %v", err)
	}
}
