package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/interview-scheduler/internal/application"
	"github.com/example/interview-scheduler/internal/persistence"
)

const maxWebhookBody = 64 << 10

type inboundService interface {
	Handle(ctx context.Context, msg application.InboundMessage) (application.InboundResult, error)
}

type feedbackInbox interface {
	EnqueueInboxItem(ctx context.Context, item persistence.InboxItem) error
}

// WebhookHandler receives inbound chat messages and relayed feedback mail.
type WebhookHandler struct {
	inbound   inboundService
	inbox     feedbackInbox
	now       func() time.Time
	responder responder
	logger    *slog.Logger
}

func NewWebhookHandler(inbound inboundService, inbox feedbackInbox, now func() time.Time, logger *slog.Logger) *WebhookHandler {
	base := defaultLogger(logger)
	if now == nil {
		now = time.Now
	}
	return &WebhookHandler{inbound: inbound, inbox: inbox, now: now, responder: newResponder(base), logger: base}
}

func (h *WebhookHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "WebhookHandler", operation, attrs...)
}

// Messages accepts the chat provider's form post or an equivalent JSON body.
// Form posts are answered with an empty TwiML document; replies go out
// through the outbound sender.
func (h *WebhookHandler) Messages(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.inbound == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	msg, isForm, err := decodeInboundMessage(w, r)
	if err != nil {
		h.log(r.Context(), "Messages", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode inbound message", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Messages", "delivery_id", msg.DeliveryID)
	result, err := h.inbound.Handle(r.Context(), msg)
	if err != nil {
		logger.ErrorContext(r.Context(), "inbound message failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("party", result.Party, "interview_id", result.InterviewID, "duplicate", result.Duplicate, "deferred", result.Deferred).InfoContext(r.Context(), "inbound message handled")
	if isForm {
		w.Header().Set("Content-Type", "text/xml; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Response></Response>`))
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toInboundDTO(result))
}

func decodeInboundMessage(w http.ResponseWriter, r *http.Request) (application.InboundMessage, bool, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBody)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if mediaType == "application/json" {
		var req inboundMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return application.InboundMessage{}, false, err
		}
		return application.InboundMessage{DeliveryID: req.MessageID, From: req.From, Body: req.Body}, false, nil
	}

	if err := r.ParseForm(); err != nil {
		return application.InboundMessage{}, true, err
	}
	return application.InboundMessage{
		DeliveryID: r.PostForm.Get("MessageSid"),
		From:       r.PostForm.Get("From"),
		Body:       r.PostForm.Get("Body"),
	}, true, nil
}

// Feedback stores relayed feedback mail in the inbox for the reconciler.
// Redelivered items are acknowledged without being stored twice.
func (h *WebhookHandler) Feedback(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.inbox == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBody)
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Feedback", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode feedback", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	if strings.TrimSpace(req.From) == "" {
		h.responder.handleServiceError(r.Context(), w, &application.ValidationError{
			FieldErrors: map[string]string{"from": "sender is required"},
		})
		return
	}

	now := h.now().UTC()
	item := persistence.InboxItem{
		ID:         strings.TrimSpace(req.ID),
		Channel:    "email",
		Sender:     strings.TrimSpace(req.From),
		Subject:    req.Subject,
		Body:       req.Text,
		ReceivedAt: now,
		CreatedAt:  now,
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if req.ReceivedAt != nil {
		item.ReceivedAt = req.ReceivedAt.UTC()
	}

	logger := h.log(r.Context(), "Feedback", "inbox_item", item.ID)
	err := h.inbox.EnqueueInboxItem(r.Context(), item)
	switch {
	case errors.Is(err, persistence.ErrDuplicate):
		logger.InfoContext(r.Context(), "duplicate feedback item ignored")
		h.responder.writeJSON(r.Context(), w, http.StatusOK, feedbackResponse{ID: item.ID, Duplicate: true})
	case err != nil:
		logger.ErrorContext(r.Context(), "feedback enqueue failed", "error", err)
		h.responder.handleServiceError(r.Context(), w, err)
	default:
		logger.InfoContext(r.Context(), "feedback queued")
		h.responder.writeJSON(r.Context(), w, http.StatusAccepted, feedbackResponse{ID: item.ID})
	}
}

type inboundMessageRequest struct {
	MessageID string `json:"message_id"`
	From      string `json:"from"`
	Body      string `json:"body"`
}

type inboundDTO struct {
	Duplicate   bool   `json:"duplicate"`
	Deferred    bool   `json:"deferred,omitempty"`
	Party       string `json:"party,omitempty"`
	InterviewID string `json:"interview_id,omitempty"`
	Intent      string `json:"intent,omitempty"`
	State       string `json:"state,omitempty"`
}

func toInboundDTO(result application.InboundResult) inboundDTO {
	return inboundDTO{
		Duplicate:   result.Duplicate,
		Deferred:    result.Deferred,
		Party:       result.Party,
		InterviewID: result.InterviewID,
		Intent:      result.Intent,
		State:       result.State,
	}
}

type feedbackRequest struct {
	ID         string     `json:"id"`
	From       string     `json:"from"`
	Subject    string     `json:"subject"`
	Text       string     `json:"text"`
	ReceivedAt *time.Time `json:"received_at"`
}

type feedbackResponse struct {
	ID        string `json:"id"`
	Duplicate bool   `json:"duplicate,omitempty"`
}
