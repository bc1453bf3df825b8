package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/example/interview-scheduler/internal/application"
	"github.com/example/interview-scheduler/internal/persistence"
	"github.com/example/interview-scheduler/internal/roster"
)

type rosterService interface {
	CreateCandidate(ctx context.Context, input application.CandidateInput) (persistence.Candidate, error)
	ListCandidates(ctx context.Context, status string, minScore int) ([]persistence.Candidate, error)
	CreateInterviewer(ctx context.Context, input application.InterviewerInput) (persistence.Interviewer, error)
	UpdateAvailability(ctx context.Context, interviewerID string, windows []persistence.AvailabilityWindow, active *bool) (persistence.Interviewer, error)
	ListInterviewers(ctx context.Context, activeOnly bool) ([]persistence.Interviewer, error)
}

type RosterHandler struct {
	service   rosterService
	responder responder
	logger    *slog.Logger
}

func NewRosterHandler(service rosterService, logger *slog.Logger) *RosterHandler {
	base := defaultLogger(logger)
	return &RosterHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *RosterHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "RosterHandler", operation, attrs...)
}

func (h *RosterHandler) CreateCandidate(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req candidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "CreateCandidate", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode candidate request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "CreateCandidate")
	candidate, err := h.service.CreateCandidate(r.Context(), application.CandidateInput{
		Name:  req.Name,
		Email: req.Email,
		Phone: req.Phone,
		Score: req.Score,
		Rank:  req.Rank,
	})
	if err != nil {
		logger.WarnContext(r.Context(), "candidate creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("candidate_id", candidate.ID).InfoContext(r.Context(), "candidate created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, candidateResponse{Candidate: toCandidateDTO(candidate)})
}

func (h *RosterHandler) ListCandidates(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	query := r.URL.Query()
	minScore := 0
	if raw := query.Get("min_score"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			h.responder.handleServiceError(r.Context(), w, &application.ValidationError{
				FieldErrors: map[string]string{"min_score": "must be an integer"},
			})
			return
		}
		minScore = n
	}

	logger := h.log(r.Context(), "ListCandidates")
	candidates, err := h.service.ListCandidates(r.Context(), strings.TrimSpace(query.Get("status")), minScore)
	if err != nil {
		logger.ErrorContext(r.Context(), "candidate list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]candidateDTO, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, toCandidateDTO(c))
	}
	logger.With("result_count", len(out)).InfoContext(r.Context(), "candidates listed")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listCandidatesResponse{Candidates: out})
}

func (h *RosterHandler) CreateInterviewer(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req interviewerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "CreateInterviewer", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode interviewer request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	windows, err := roster.Availability(req.Availability)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, availabilityError(err))
		return
	}

	logger := h.log(r.Context(), "CreateInterviewer")
	interviewer, err := h.service.CreateInterviewer(r.Context(), application.InterviewerInput{
		Name:         req.Name,
		Email:        req.Email,
		Phone:        req.Phone,
		TimeZone:     req.TimeZone,
		Active:       req.Active,
		Availability: windows,
	})
	if err != nil {
		logger.WarnContext(r.Context(), "interviewer creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("interviewer_id", interviewer.ID).InfoContext(r.Context(), "interviewer created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, interviewerResponse{Interviewer: toInterviewerDTO(interviewer)})
}

func (h *RosterHandler) ListInterviewers(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	activeOnly, _ := strconv.ParseBool(r.URL.Query().Get("active"))
	logger := h.log(r.Context(), "ListInterviewers", "active_only", activeOnly)
	interviewers, err := h.service.ListInterviewers(r.Context(), activeOnly)
	if err != nil {
		logger.ErrorContext(r.Context(), "interviewer list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]interviewerDTO, 0, len(interviewers))
	for _, iv := range interviewers {
		out = append(out, toInterviewerDTO(iv))
	}
	logger.With("result_count", len(out)).InfoContext(r.Context(), "interviewers listed")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listInterviewersResponse{Interviewers: out})
}

func (h *RosterHandler) UpdateAvailability(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id := chi.URLParam(r, "id")
	var req availabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "UpdateAvailability", "interviewer_id", id, "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode availability", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	windows, err := roster.Availability(req.Availability)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, availabilityError(err))
		return
	}

	logger := h.log(r.Context(), "UpdateAvailability", "interviewer_id", id)
	interviewer, err := h.service.UpdateAvailability(r.Context(), id, windows, req.Active)
	if err != nil {
		logger.WarnContext(r.Context(), "availability update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "availability updated")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, interviewerResponse{Interviewer: toInterviewerDTO(interviewer)})
}

func availabilityError(err error) error {
	return &application.ValidationError{FieldErrors: map[string]string{"availability": err.Error()}}
}

type candidateRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
	Score int    `json:"score"`
	Rank  int    `json:"rank"`
}

type interviewerRequest struct {
	Name         string          `json:"name"`
	Email        string          `json:"email"`
	Phone        string          `json:"phone"`
	TimeZone     string          `json:"time_zone"`
	Active       *bool           `json:"active"`
	Availability []roster.Window `json:"availability"`
}

type availabilityRequest struct {
	Active       *bool           `json:"active"`
	Availability []roster.Window `json:"availability"`
}

type candidateDTO struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone"`
	Score     int       `json:"score"`
	Rank      int       `json:"rank"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

type interviewerDTO struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Email        string          `json:"email"`
	Phone        string          `json:"phone,omitempty"`
	TimeZone     string          `json:"time_zone"`
	Active       bool            `json:"active"`
	Availability []roster.Window `json:"availability"`
}

type candidateResponse struct {
	Candidate candidateDTO `json:"candidate"`
}

type listCandidatesResponse struct {
	Candidates []candidateDTO `json:"candidates"`
}

type interviewerResponse struct {
	Interviewer interviewerDTO `json:"interviewer"`
}

type listInterviewersResponse struct {
	Interviewers []interviewerDTO `json:"interviewers"`
}

func toCandidateDTO(c persistence.Candidate) candidateDTO {
	return candidateDTO{
		ID:        c.ID,
		Name:      c.Name,
		Email:     c.Email,
		Phone:     c.Phone,
		Score:     c.Score,
		Rank:      c.Rank,
		Status:    c.Status,
		CreatedAt: c.CreatedAt,
	}
}

func toInterviewerDTO(iv persistence.Interviewer) interviewerDTO {
	return interviewerDTO{
		ID:           iv.ID,
		Name:         iv.Name,
		Email:        iv.Email,
		Phone:        iv.Phone,
		TimeZone:     iv.TimeZone,
		Active:       iv.Active,
		Availability: roster.FromAvailability(iv.Availability),
	}
}
