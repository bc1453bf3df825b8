package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/example/interview-scheduler/internal/ledger"
	"github.com/example/interview-scheduler/internal/negotiation"
)

func TestDefaultLogger(t *testing.T) {
	t.Parallel()

	custom := slog.New(slog.NewTextHandler(io.Discard, nil))
	if got := defaultLogger(custom); got != custom {
		t.Fatalf("expected custom logger to be returned")
	}

	if got := defaultLogger(nil); got != slog.Default() {
		t.Fatalf("expected default logger when none provided")
	}
}

func TestErrorKind(t *testing.T) {
	t.Parallel()

	cases := map[string]error{
		"":                     nil,
		"unauthorized":         ErrUnauthorized,
		"not_found":            fmt.Errorf("load: %w", ErrNotFound),
		"already_exists":       ErrAlreadyExists,
		"conflict":             ErrConflict,
		"external_service":     fmt.Errorf("%w: send", ErrExternalService),
		"max_retries_exceeded": ErrMaxRetriesExceeded,
		"invalid_transition":   &negotiation.TransitionError{From: negotiation.Scheduled, Event: negotiation.EventCandidateRejected},
		"no_availability":      ledger.ErrNoAvailability,
		"slot_conflict":        ledger.ErrNotHeld,
		"timeout":              context.DeadlineExceeded,
		"validation":           &ValidationError{FieldErrors: map[string]string{"name": "required"}},
		"unexpected":           errors.New("boom"),
	}
	for want, err := range cases {
		if got := ErrorKind(err); got != want {
			t.Fatalf("ErrorKind(%v) = %q, want %q", err, got, want)
		}
	}
}
