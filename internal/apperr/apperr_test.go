package apperr

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/wb-go/wbf/retry"
)

func TestFromStatus(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantKind  Kind
		retryable bool
	}{
		{"unauthorized", 401, KindAuth, false},
		{"forbidden", 403, KindPermission, false},
		{"not found", 404, KindNotFound, false},
		{"bad request", 400, KindValidation, false},
		{"conflict", 409, KindValidation, false},
		{"internal", 500, KindServer, true},
		{"bad gateway", 502, KindServer, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := FromStatus(tt.status, "CODE", "desc")
			if err.Kind != tt.wantKind {
				t.Fatalf("status %d: expected kind %s, got %s", tt.status, tt.wantKind, err.Kind)
			}
			if err.Retryable != tt.retryable {
				t.Fatalf("status %d: expected retryable=%v", tt.status, tt.retryable)
			}
		})
	}
}

func TestClassifyKeepsTaggedErrors(t *testing.T) {
	tagged := New(KindAuth, "Invalid email or password. Please check your credentials and try again.")
	wrapped := fmt.Errorf("outer: %w", tagged)

	got := Classify(wrapped)
	if got != tagged {
		t.Fatal("tagged error must pass through Classify unchanged")
	}
}

func TestClassifyFallback(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantKind  Kind
		retryable bool
	}{
		{"email not confirmed", errors.New("Email not confirmed"), KindAuth, false},
		{"invalid credentials", errors.New("Invalid login credentials"), KindAuth, false},
		{"already registered", errors.New("User already registered"), KindAuth, false},
		{"permission", errors.New("permission denied for table events"), KindPermission, false},
		{"not found", errors.New("row not found"), KindNotFound, false},
		{"no rows", errors.New("sql: no rows in result set"), KindNotFound, false},
		{"network", errors.New("network is unreachable"), KindNetwork, true},
		{"timeout", errors.New("dial tcp: i/o timeout"), KindNetwork, true},
		{"server", errors.New("internal server error"), KindServer, true},
		{"duplicate", errors.New(`duplicate key value violates unique constraint "idx_friend_requests_pending"`), KindValidation, false},
		{"foreign key", errors.New("insert violates foreign key constraint"), KindValidation, false},
		{"check constraint", errors.New("new row violates check constraint"), KindValidation, false},
		{"unknown", errors.New("something odd"), KindUnknown, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			if got.Kind != tt.wantKind {
				t.Fatalf("expected kind %s, got %s (%s)", tt.wantKind, got.Kind, got.Message)
			}
			if got.Retryable != tt.retryable {
				t.Fatalf("expected retryable=%v", tt.retryable)
			}
			if !errors.Is(got, tt.err) {
				t.Fatal("classified error must wrap the original")
			}
		})
	}
}

func TestMessageNeverEmptyForErrors(t *testing.T) {
	if msg := Message(errors.New("whatever")); msg == "" {
		t.Fatal("every classified error needs a user-facing message")
	}
	if msg := Message(nil); msg != "" {
		t.Fatal("nil error has no message")
	}
}

func fastStrategy() retry.Strategy {
	return retry.Strategy{Attempts: 3, Delay: time.Millisecond, Backoff: 1}
}

func TestWithRetryStopsOnPermanent(t *testing.T) {
	calls := 0
	permanent := New(KindValidation, "bad input")

	err := WithRetry(func() error {
		calls++
		return permanent
	}, fastStrategy())

	if calls != 1 {
		t.Fatalf("non-retryable error must stop after first attempt, got %d calls", calls)
	}
	var appErr *Error
	if !errors.As(err, &appErr) || appErr.Kind != KindValidation {
		t.Fatalf("expected the permanent error back, got %v", err)
	}
}

func TestWithRetryRetriesTransient(t *testing.T) {
	calls := 0
	err := WithRetry(func() error {
		calls++
		if calls < 3 {
			return &Error{Kind: KindNetwork, Message: "flaky", Retryable: true}
		}
		return nil
	}, fastStrategy())

	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestWithRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	transient := &Error{Kind: KindServer, Message: "still down", Retryable: true}

	err := WithRetry(func() error {
		calls++
		return transient
	}, fastStrategy())

	if err == nil {
		t.Fatal("expected failure after exhausting attempts")
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}
