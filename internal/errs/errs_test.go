package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindPredicates(t *testing.T) {
	notFound := NewNotFound("incident", "42")
	conflict := NewConflict("queue full")
	validation := NewValidation("bad title", map[string]string{"title": "required"})
	forbidden := &ForbiddenError{Msg: "restricted"}

	tests := []struct {
		name string
		err  error
		pred func(error) bool
		want bool
	}{
		{"not found direct", notFound, IsNotFound, true},
		{"not found wrapped", fmt.Errorf("loading: %w", notFound), IsNotFound, true},
		{"not found other", conflict, IsNotFound, false},
		{"conflict direct", conflict, IsConflict, true},
		{"conflict wrapped", fmt.Errorf("enqueue: %w", conflict), IsConflict, true},
		{"validation direct", validation, IsValidation, true},
		{"forbidden direct", forbidden, IsForbidden, true},
		{"plain error", errors.New("boom"), IsNotFound, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.pred(tt.err); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	transient := NewPluginError("slack", "rate limited", true, errors.New("429"))
	permanent := NewPluginError("slack", "channel taken", false, nil)

	if !IsRetryable(transient) {
		t.Error("retryable plugin error should be retryable")
	}
	if IsRetryable(permanent) {
		t.Error("permanent plugin error should not be retryable")
	}
	if !IsRetryable(&TimeoutError{Op: "chat.create"}) {
		t.Error("timeouts should be retryable")
	}
	if !IsRetryable(fmt.Errorf("call: %w", transient)) {
		t.Error("wrapped retryable error should be retryable")
	}
	if IsRetryable(errors.New("boom")) {
		t.Error("plain error should not be retryable")
	}
}

func TestNotFoundMessage(t *testing.T) {
	if got := NewNotFound("plugin", "chat").Error(); got != `plugin "chat" not found` {
		t.Errorf("unexpected message: %s", got)
	}
	if got := NewNotFound("assignee", "").Error(); got != "assignee not found" {
		t.Errorf("unexpected message: %s", got)
	}
}

func TestPluginErrorUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewPluginError("jira", "create failed", true, cause)
	if !errors.Is(err, cause) {
		t.Error("expected PluginError to unwrap to its cause")
	}
}
