package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/interview-scheduler/internal/application"
)

var (
	errBadRequestBody  = errors.New("the request body is not valid")
	errMissingAPIKey   = errors.New("an API key is required")
	errInvalidAPIKey   = errors.New("the API key is not valid")
	errTooManyRequests = errors.New("too many requests, slow down")
	errInvalidDuration = errors.New("started_ago must be a duration such as 2h")
)

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	if logger == nil {
		logger = slog.Default()
	}
	return responder{logger: logger}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	message := statusMessage(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
		r.loggerFor(ctx).WarnContext(ctx, "request failed", "status", status, "error", err)
	}

	r.writeJSON(ctx, w, status, errorResponse{Message: message})
}

// handleServiceError maps application errors to a status and a stable
// error code. Internal error text is never echoed to the caller.
func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		r.writeError(ctx, w, http.StatusInternalServerError, errors.New("unknown error"))
		return
	}

	var vErr *application.ValidationError
	if errors.As(err, &vErr) {
		r.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{
			ErrorCode: "VALIDATION",
			Message:   statusMessage(http.StatusUnprocessableEntity),
			Errors:    vErr.FieldErrors,
		})
		return
	}

	kind := application.ErrorKind(err)
	status := statusForKind(kind)
	r.writeJSON(ctx, w, status, errorResponse{
		ErrorCode: strings.ToUpper(kind),
		Message:   kindMessage(kind, status),
	})
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

func statusForKind(kind string) int {
	switch kind {
	case "unauthorized":
		return http.StatusUnauthorized
	case "not_found":
		return http.StatusNotFound
	case "already_exists", "conflict", "invalid_transition", "slot_conflict", "max_retries_exceeded":
		return http.StatusConflict
	case "no_availability":
		return http.StatusUnprocessableEntity
	case "external_service":
		return http.StatusBadGateway
	case "timeout":
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func kindMessage(kind string, status int) string {
	switch kind {
	case "already_exists":
		return "a record with the same key already exists"
	case "conflict":
		return "the interview was changed concurrently, retry the request"
	case "invalid_transition":
		return "the interview is not in a state that allows this action"
	case "slot_conflict":
		return "the slot was taken by another interview"
	case "no_availability":
		return "no free slot is available for this interviewer"
	case "max_retries_exceeded":
		return "the interview expired after repeated failures"
	case "external_service":
		return "an external service failed, the change was rolled back"
	default:
		return statusMessage(status)
	}
}

func statusMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "the request is not valid"
	case http.StatusUnauthorized:
		return "authentication is required"
	case http.StatusNotFound:
		return "the requested resource was not found"
	case http.StatusConflict:
		return "the request conflicts with the current state of the resource"
	case http.StatusUnprocessableEntity:
		return "the input contains errors"
	case http.StatusTooManyRequests:
		return "too many requests"
	case http.StatusGatewayTimeout:
		return "the request timed out"
	default:
		return "an internal error occurred"
	}
}

type errorResponse struct {
	ErrorCode string            `json:"error_code,omitempty"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors,omitempty"`
}
