package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/alikoudar/irobot-sub000/internal/core/domain"
)

func TestNormalizeFillsDefaults(t *testing.T) {
	cfg := Config{RetryInitialBackoff: time.Second, RetryMaxBackoff: time.Millisecond}.normalize()
	def := DefaultConfig()

	if cfg.RetryMaxAttempts != def.RetryMaxAttempts {
		t.Fatalf("expected default attempts, got %d", cfg.RetryMaxAttempts)
	}
	if cfg.RetryMaxBackoff != time.Second {
		t.Fatalf("max backoff must not be below initial backoff, got %v", cfg.RetryMaxBackoff)
	}
	if cfg.BreakerFailureRatio != def.BreakerFailureRatio {
		t.Fatalf("expected default failure ratio, got %v", cfg.BreakerFailureRatio)
	}
}

func TestClassifyCommon(t *testing.T) {
	dnsErr := &net.DNSError{Err: "no such host", Name: "ollama", IsTemporary: true}
	cases := []struct {
		name   string
		err    error
		class  ErrorClassification
		handle bool
	}{
		{"nil", nil, Ignored, true},
		{"canceled", fmt.Errorf("call: %w", context.Canceled), Ignored, true},
		{"deadline", context.DeadlineExceeded, Ignored, true},
		{"breaker open", gobreaker.ErrOpenState, Transient, true},
		{"network", dnsErr, Transient, true},
		{"other", errors.New("bad payload"), ErrorClassification{}, false},
	}
	for _, tc := range cases {
		class, ok := ClassifyCommon(tc.err)
		if ok != tc.handle || class != tc.class {
			t.Fatalf("%s: got (%+v, %v), want (%+v, %v)", tc.name, class, ok, tc.class, tc.handle)
		}
	}
}

func TestClassifyHTTPStatus(t *testing.T) {
	for _, code := range []int{http.StatusTooManyRequests, http.StatusBadGateway, http.StatusGatewayTimeout} {
		if ClassifyHTTPStatus(code) != Transient {
			t.Fatalf("status %d should be transient", code)
		}
	}
	for _, code := range []int{http.StatusBadRequest, http.StatusNotFound, http.StatusUnauthorized} {
		if ClassifyHTTPStatus(code) != Ignored {
			t.Fatalf("status %d should be ignored", code)
		}
	}
}

func TestWrapTemporary(t *testing.T) {
	retryable := func(error) ErrorClassification { return Transient }
	permanent := func(error) ErrorClassification { return Permanent }
	boom := errors.New("boom")

	if err := WrapTemporary("op", nil, retryable); err != nil {
		t.Fatalf("nil must stay nil, got %v", err)
	}
	if err := WrapTemporary("op", boom, retryable); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("retryable failure must be temporary, got %v", err)
	}
	if err := WrapTemporary("op", boom, permanent); domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("permanent failure must not be temporary, got %v", err)
	}
	if err := WrapTemporary("op", gobreaker.ErrOpenState, permanent); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("open breaker must be temporary, got %v", err)
	}
	already := domain.WrapError(domain.ErrTemporary, "inner", boom)
	if err := WrapTemporary("op", already, retryable); err != already {
		t.Fatalf("already temporary errors must pass through unchanged")
	}
}
