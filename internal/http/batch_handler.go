package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/example/interview-scheduler/internal/application"
	"github.com/example/interview-scheduler/internal/persistence"
)

type batchService interface {
	Shortlist(ctx context.Context, params application.ShortlistParams) (application.BatchResult, error)
	GetBatch(ctx context.Context, id string) (persistence.Batch, error)
}

type BatchHandler struct {
	service   batchService
	responder responder
	logger    *slog.Logger
}

func NewBatchHandler(service batchService, logger *slog.Logger) *BatchHandler {
	base := defaultLogger(logger)
	return &BatchHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *BatchHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "BatchHandler", operation, attrs...)
}

// Create shortlists candidates and opens a negotiation for each. An empty
// body uses the configured score threshold and batch size.
func (h *BatchHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.log(r.Context(), "Create", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode batch request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Create", "requested_by", req.RequestedBy)
	result, err := h.service.Shortlist(r.Context(), application.ShortlistParams{
		RequestedBy:  req.RequestedBy,
		MinScore:     req.MinScore,
		TopN:         req.TopN,
		CandidateIDs: req.CandidateIDs,
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "batch creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("batch_id", result.Batch.ID, "interviews", len(result.Interviews)).InfoContext(r.Context(), "batch created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, batchResponse{
		Batch:      toBatchDTO(result.Batch),
		Interviews: toInterviewDTOs(result.Interviews),
		Failed:     result.Failed,
	})
}

func (h *BatchHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id := chi.URLParam(r, "id")
	logger := h.log(r.Context(), "Get", "batch_id", id)
	batch, err := h.service.GetBatch(r.Context(), id)
	if err != nil {
		logger.WarnContext(r.Context(), "batch lookup failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, batchResponse{Batch: toBatchDTO(batch)})
}

type batchRequest struct {
	RequestedBy  string   `json:"requested_by"`
	MinScore     int      `json:"min_score"`
	TopN         int      `json:"top_n"`
	CandidateIDs []string `json:"candidate_ids"`
}

type batchDTO struct {
	ID           string    `json:"id"`
	RequestedBy  string    `json:"requested_by,omitempty"`
	MinScore     int       `json:"min_score"`
	TopN         int       `json:"top_n"`
	InterviewIDs []string  `json:"interview_ids"`
	Skipped      []string  `json:"skipped,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type batchResponse struct {
	Batch      batchDTO       `json:"batch"`
	Interviews []interviewDTO `json:"interviews,omitempty"`
	Failed     []string       `json:"failed,omitempty"`
}

func toBatchDTO(b persistence.Batch) batchDTO {
	ids := b.InterviewIDs
	if ids == nil {
		ids = []string{}
	}
	return batchDTO{
		ID:           b.ID,
		RequestedBy:  b.RequestedBy,
		MinScore:     b.MinScore,
		TopN:         b.TopN,
		InterviewIDs: ids,
		Skipped:      b.Skipped,
		CreatedAt:    b.CreatedAt,
	}
}
