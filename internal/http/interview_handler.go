package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/example/interview-scheduler/internal/application"
	"github.com/example/interview-scheduler/internal/persistence"
)

type interviewService interface {
	Get(ctx context.Context, interviewID string) (application.InterviewDetails, error)
	List(ctx context.Context, params application.ListInterviewsParams) ([]persistence.Interview, error)
	Cancel(ctx context.Context, interviewID, reason string) (persistence.Interview, error)
	CreatePastInterview(ctx context.Context, params application.PastInterviewParams) (persistence.Interview, error)
}

type InterviewHandler struct {
	service   interviewService
	responder responder
	logger    *slog.Logger
}

func NewInterviewHandler(service interviewService, logger *slog.Logger) *InterviewHandler {
	base := defaultLogger(logger)
	return &InterviewHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *InterviewHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "InterviewHandler", operation, attrs...)
}

func (h *InterviewHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id := chi.URLParam(r, "id")
	logger := h.log(r.Context(), "Get", "interview_id", id)
	details, err := h.service.Get(r.Context(), id)
	if err != nil {
		logger.WarnContext(r.Context(), "interview lookup failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toInterviewDetailsDTO(details))
}

func (h *InterviewHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	query := r.URL.Query()
	params := application.ListInterviewsParams{
		State:       strings.TrimSpace(query.Get("state")),
		BatchID:     strings.TrimSpace(query.Get("batch_id")),
		CandidateID: strings.TrimSpace(query.Get("candidate_id")),
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			h.responder.handleServiceError(r.Context(), w, &application.ValidationError{
				FieldErrors: map[string]string{"limit": "must be a non-negative integer"},
			})
			return
		}
		params.Limit = limit
	}

	logger := h.log(r.Context(), "List", "state", params.State, "batch_id", params.BatchID)
	interviews, err := h.service.List(r.Context(), params)
	if err != nil {
		logger.ErrorContext(r.Context(), "interview list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("result_count", len(interviews)).InfoContext(r.Context(), "interviews listed")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listInterviewsResponse{Interviews: toInterviewDTOs(interviews)})
}

func (h *InterviewHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id := chi.URLParam(r, "id")
	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.log(r.Context(), "Cancel", "interview_id", id, "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode cancel request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Cancel", "interview_id", id)
	iv, err := h.service.Cancel(r.Context(), id, strings.TrimSpace(req.Reason))
	if err != nil {
		logger.WarnContext(r.Context(), "interview cancel failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "interview cancelled")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, interviewResponse{Interview: toInterviewDTO(iv)})
}

// CreatePast creates an interview whose slot already ended so the feedback
// path can be exercised by hand.
func (h *InterviewHandler) CreatePast(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req pastInterviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "CreatePast", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode past interview request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	params := application.PastInterviewParams{CandidateID: req.CandidateID, InterviewerID: req.InterviewerID}
	if strings.TrimSpace(req.StartedAgo) != "" {
		d, err := time.ParseDuration(strings.TrimSpace(req.StartedAgo))
		if err != nil {
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidDuration)
			return
		}
		params.StartedAgo = d
	}

	logger := h.log(r.Context(), "CreatePast", "candidate_id", req.CandidateID, "interviewer_id", req.InterviewerID)
	iv, err := h.service.CreatePastInterview(r.Context(), params)
	if err != nil {
		logger.WarnContext(r.Context(), "past interview creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("interview_id", iv.ID).InfoContext(r.Context(), "past interview created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, interviewResponse{Interview: toInterviewDTO(iv)})
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type pastInterviewRequest struct {
	CandidateID   string `json:"candidate_id"`
	InterviewerID string `json:"interviewer_id"`
	StartedAgo    string `json:"started_ago"`
}

type interviewDTO struct {
	ID                    string     `json:"id"`
	BatchID               string     `json:"batch_id,omitempty"`
	CandidateID           string     `json:"candidate_id"`
	InterviewerID         string     `json:"interviewer_id"`
	State                 string     `json:"state"`
	SlotID                string     `json:"slot_id,omitempty"`
	SlotStart             *time.Time `json:"slot_start,omitempty"`
	SlotEnd               *time.Time `json:"slot_end,omitempty"`
	CandidateConfirmed    bool       `json:"candidate_confirmed"`
	InterviewerConfirmed  bool       `json:"interviewer_confirmed"`
	Attempts              int        `json:"attempts"`
	Retries               int        `json:"retries"`
	InterviewerRejections int        `json:"interviewer_rejections"`
	ReminderCount         int        `json:"reminder_count"`
	PendingEvent          string     `json:"pending_event,omitempty"`
	ResponseDeadline      *time.Time `json:"response_deadline,omitempty"`
	NextRetryAt           *time.Time `json:"next_retry_at,omitempty"`
	MeetingLink           string     `json:"meeting_link,omitempty"`
	FeedbackOutcome       string     `json:"feedback_outcome,omitempty"`
	FeedbackText          string     `json:"feedback_text,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	LastTransitionAt      time.Time  `json:"last_transition_at"`
	ArchivedAt            *time.Time `json:"archived_at,omitempty"`
}

type slotDTO struct {
	ID            string     `json:"id"`
	Start         time.Time  `json:"start"`
	End           time.Time  `json:"end"`
	Status        string     `json:"status"`
	HolderID      string     `json:"holder_id,omitempty"`
	HoldExpiresAt *time.Time `json:"hold_expires_at,omitempty"`
}

type noteDTO struct {
	Outcome      string    `json:"outcome"`
	Summary      string    `json:"summary,omitempty"`
	Text         string    `json:"text"`
	Supplemental bool      `json:"supplemental"`
	ReceivedAt   time.Time `json:"received_at"`
}

type interviewDetailsDTO struct {
	Interview   interviewDTO   `json:"interview"`
	Candidate   candidateDTO   `json:"candidate"`
	Interviewer interviewerDTO `json:"interviewer"`
	Slot        *slotDTO       `json:"slot,omitempty"`
	Notes       []noteDTO      `json:"notes"`
}

type interviewResponse struct {
	Interview interviewDTO `json:"interview"`
}

type listInterviewsResponse struct {
	Interviews []interviewDTO `json:"interviews"`
}

func toInterviewDTO(iv persistence.Interview) interviewDTO {
	return interviewDTO{
		ID:                    iv.ID,
		BatchID:               iv.BatchID,
		CandidateID:           iv.CandidateID,
		InterviewerID:         iv.InterviewerID,
		State:                 iv.State,
		SlotID:                iv.SlotID,
		SlotStart:             iv.SlotStart,
		SlotEnd:               iv.SlotEnd,
		CandidateConfirmed:    iv.CandidateConfirmed,
		InterviewerConfirmed:  iv.InterviewerConfirmed,
		Attempts:              iv.Attempts,
		Retries:               iv.Retries,
		InterviewerRejections: iv.InterviewerRejections,
		ReminderCount:         iv.ReminderCount,
		PendingEvent:          iv.PendingEvent,
		ResponseDeadline:      iv.ResponseDeadline,
		NextRetryAt:           iv.NextRetryAt,
		MeetingLink:           iv.MeetingLink,
		FeedbackOutcome:       iv.FeedbackOutcome,
		FeedbackText:          iv.FeedbackText,
		CreatedAt:             iv.CreatedAt,
		LastTransitionAt:      iv.LastTransitionAt,
		ArchivedAt:            iv.ArchivedAt,
	}
}

func toInterviewDTOs(interviews []persistence.Interview) []interviewDTO {
	out := make([]interviewDTO, 0, len(interviews))
	for _, iv := range interviews {
		out = append(out, toInterviewDTO(iv))
	}
	return out
}

func toInterviewDetailsDTO(details application.InterviewDetails) interviewDetailsDTO {
	dto := interviewDetailsDTO{
		Interview:   toInterviewDTO(details.Interview),
		Candidate:   toCandidateDTO(details.Candidate),
		Interviewer: toInterviewerDTO(details.Interviewer),
		Notes:       make([]noteDTO, 0, len(details.Notes)),
	}
	if s := details.Slot; s != nil {
		dto.Slot = &slotDTO{
			ID:            s.ID,
			Start:         s.Start,
			End:           s.End,
			Status:        string(s.Status),
			HolderID:      s.HolderID,
			HoldExpiresAt: s.HoldExpiresAt,
		}
	}
	for _, n := range details.Notes {
		dto.Notes = append(dto.Notes, noteDTO{
			Outcome:      n.Outcome,
			Summary:      n.Summary,
			Text:         n.Text,
			Supplemental: n.Supplemental,
			ReceivedAt:   n.ReceivedAt,
		})
	}
	return dto
}
