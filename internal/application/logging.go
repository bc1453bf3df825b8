package application

import (
	"context"
	"errors"
	"log/slog"

	"github.com/example/interview-scheduler/internal/ledger"
	"github.com/example/interview-scheduler/internal/logging"
	"github.com/example/interview-scheduler/internal/negotiation"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

func serviceLogger(ctx context.Context, base *slog.Logger, serviceName, operation string, attrs ...any) *slog.Logger {
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = base
	}
	if logger == nil {
		logger = slog.Default()
	}

	pairs := []any{"service", serviceName}
	if operation != "" {
		pairs = append(pairs, "operation", operation)
	}
	if len(attrs) > 0 {
		pairs = append(pairs, attrs...)
	}
	return logger.With(pairs...)
}

// ErrorKind maps sentinel and validation errors to a stable logging label.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrExternalService):
		return "external_service"
	case errors.Is(err, ErrMaxRetriesExceeded):
		return "max_retries_exceeded"
	case errors.Is(err, negotiation.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ledger.ErrNoAvailability):
		return "no_availability"
	case errors.Is(err, ledger.ErrSlotConflict), errors.Is(err, ledger.ErrNotHeld):
		return "slot_conflict"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	}

	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return "validation"
	}

	return "unexpected"
}
