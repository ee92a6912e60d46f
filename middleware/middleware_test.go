package middleware_test

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/uniyakcom/dbus/core"
	"github.com/uniyakcom/dbus/dispatch"
	"github.com/uniyakcom/dbus/middleware/logging"
	"github.com/uniyakcom/dbus/middleware/recoverer"
	"github.com/uniyakcom/dbus/middleware/retry"
	"github.com/uniyakcom/dbus/middleware/timeout"
)

type testEvent struct {
	core.SignalBase
	Name string
}

func TestRetryMiddleware(t *testing.T) {
	var attempts int

	mw := retry.New(retry.Config{
		MaxRetries:      2,
		InitialInterval: 10 * time.Millisecond,
	})

	handler := mw(func(ev core.Event) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient error")
		}
		return nil
	})

	if err := handler(&testEvent{Name: "x"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetryExhausted(t *testing.T) {
	mw := retry.New(retry.Config{
		MaxRetries:      2,
		InitialInterval: 10 * time.Millisecond,
	})

	var attempts int
	handler := mw(func(ev core.Event) error {
		attempts++
		return errors.New("persistent error")
	})

	if err := handler(&testEvent{}); err == nil {
		t.Error("expected error after retry exhaustion")
	}
	if attempts != 3 { // 1 initial + 2 retries
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetryShouldRetry(t *testing.T) {
	var errNoRetry = errors.New("no retry")

	mw := retry.New(retry.Config{
		MaxRetries:      3,
		InitialInterval: 10 * time.Millisecond,
		ShouldRetry: func(err error) bool {
			return !errors.Is(err, errNoRetry)
		},
	})

	var attempts int
	handler := mw(func(ev core.Event) error {
		attempts++
		return errNoRetry
	})

	if err := handler(&testEvent{}); !errors.Is(err, errNoRetry) {
		t.Errorf("expected errNoRetry, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (should not retry)", attempts)
	}
}

func TestTimeoutMiddleware(t *testing.T) {
	mw := timeout.New(50 * time.Millisecond)

	handler := mw(func(ev core.Event) error {
		time.Sleep(200 * time.Millisecond)
		return nil
	})

	err := handler(&testEvent{})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	var te *timeout.TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("expected *TimeoutError, got %T", err)
	}
}

func TestTimeoutFastHandler(t *testing.T) {
	mw := timeout.New(time.Second)

	handler := mw(func(ev core.Event) error {
		return nil
	})

	if err := handler(&testEvent{}); err != nil {
		t.Errorf("fast handler should pass through, got %v", err)
	}
}

func TestRecovererMiddleware(t *testing.T) {
	mw := recoverer.New()

	handler := mw(func(ev core.Event) error {
		panic("test panic")
	})

	err := handler(&testEvent{})
	if err == nil {
		t.Fatal("expected error from panic recovery")
	}

	var pe *recoverer.PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *PanicError, got %T", err)
	}
	if pe.Value != "test panic" {
		t.Errorf("panic value = %v, want 'test panic'", pe.Value)
	}
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	mw := logging.New(logger)

	handler := mw(func(ev core.Event) error {
		return nil
	})
	if err := handler(&testEvent{Name: "quiet"}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "event handled") {
		t.Errorf("success log missing: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "testEvent") {
		t.Errorf("event type missing from log: %q", buf.String())
	}

	buf.Reset()
	failing := mw(func(ev core.Event) error {
		return errors.New("boom")
	})
	if err := failing(&testEvent{}); err == nil {
		t.Error("error must pass through the middleware")
	}
	if !strings.Contains(buf.String(), "event handler failed") || !strings.Contains(buf.String(), "boom") {
		t.Errorf("failure log missing: %q", buf.String())
	}
}

func TestMiddlewareChaining(t *testing.T) {
	var order []string

	mw1 := func(h dispatch.Handler) dispatch.Handler {
		return func(ev core.Event) error {
			order = append(order, "mw1-before")
			err := h(ev)
			order = append(order, "mw1-after")
			return err
		}
	}

	mw2 := func(h dispatch.Handler) dispatch.Handler {
		return func(ev core.Event) error {
			order = append(order, "mw2-before")
			err := h(ev)
			order = append(order, "mw2-after")
			return err
		}
	}

	handler := dispatch.Handler(func(ev core.Event) error {
		order = append(order, "handler")
		return nil
	})

	// 洋葱模型: mw1 wraps mw2 wraps handler
	wrapped := mw1(mw2(handler))
	_ = wrapped(&testEvent{})

	expected := []string{"mw1-before", "mw2-before", "handler", "mw2-after", "mw1-after"}
	if len(order) != len(expected) {
		t.Fatalf("order length = %d, want %d: %v", len(order), len(expected), order)
	}
	for i, v := range expected {
		if order[i] != v {
			t.Errorf("order[%d] = %q, want %q", i, order[i], v)
		}
	}
}
