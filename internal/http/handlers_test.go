package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/example/interview-scheduler/internal/application"
	"github.com/example/interview-scheduler/internal/intent"
	"github.com/example/interview-scheduler/internal/ledger"
	"github.com/example/interview-scheduler/internal/lock"
	"github.com/example/interview-scheduler/internal/logging"
	"github.com/example/interview-scheduler/internal/negotiation"
	"github.com/example/interview-scheduler/internal/persistence"
	"github.com/example/interview-scheduler/internal/persistence/memory"
	"github.com/example/interview-scheduler/internal/testfixtures"
)

const testAPIKey = "s3cret-admin-key"

type apiHarness struct {
	store   *memory.Store
	clock   *testfixtures.Clock
	sender  *testfixtures.RecordingSender
	handler http.Handler
}

type harnessOption func(*RouterConfig)

func withDebugRoutes() harnessOption {
	return func(cfg *RouterConfig) { cfg.DebugRoutes = true }
}

func withWebhookLimit(perSecond float64, burst int) harnessOption {
	return func(cfg *RouterConfig) { cfg.WebhookLimiter = NewClientRateLimiter(perSecond, burst, logging.Discard()) }
}

func newAPIHarness(t *testing.T, candidates []persistence.Candidate, interviewers []persistence.Interviewer, opts ...harnessOption) *apiHarness {
	t.Helper()
	store := memory.New()
	testfixtures.Seed(t, store, candidates, interviewers)

	clock := testfixtures.NewClock(time.Time{})
	ids := testfixtures.NewSequence("id")
	sender := testfixtures.NewRecordingSender()
	locks := lock.NewKeyed()
	led := ledger.New(store, locks, ledger.Options{
		SlotDuration: 30 * time.Minute,
		HoldTTL:      36 * time.Hour,
		Lookahead:    3 * 24 * time.Hour,
	}, clock.NowFunc(), logging.Discard())

	engine := application.NewNegotiationService(application.NegotiationDeps{
		Store:       store,
		Ledger:      led,
		Locks:       locks,
		Sender:      sender,
		Calendar:    &testfixtures.StubProvisioner{},
		Policy:      application.DefaultPolicy(),
		IDGenerator: ids.Func(),
		Now:         clock.NowFunc(),
		Logger:      logging.Discard(),
	})
	shortlist := application.NewShortlistServiceWithLogger(store, engine, 0, 10, ids.Func(), clock.NowFunc(), logging.Discard())
	rosterSvc := application.NewRosterServiceWithLogger(store, "91", ids.Func(), clock.NowFunc(), logging.Discard())
	resolver := intent.NewResolver(intent.KeywordClassifier{}, 0.5, time.Second, logging.Discard())
	inbound := application.NewInboundRouter(store, resolver, engine, sender, application.InboundOptions{
		DefaultCountryCode: "91",
		HRContact:          "hr@example.com",
		Now:                clock.NowFunc(),
	}, logging.Discard())

	cfg := RouterConfig{
		Webhooks:   NewWebhookHandler(inbound, store, clock.NowFunc(), logging.Discard()),
		Batches:    NewBatchHandler(shortlist, logging.Discard()),
		Interviews: NewInterviewHandler(engine, logging.Discard()),
		Roster:     NewRosterHandler(rosterSvc, logging.Discard()),
		Auth:       application.NewAPIKeyAuthenticator(testAPIKey, ""),
		Logger:     logging.Discard(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &apiHarness{store: store, clock: clock, sender: sender, handler: NewRouter(cfg)}
}

func (h *apiHarness) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.HasPrefix(path, "/api/") {
		req.Header.Set("X-API-Key", testAPIKey)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func (h *apiHarness) form(t *testing.T, path string, values url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %T: %v (body: %s)", out, err, rec.Body.String())
	}
	return out
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d (body: %s)", rec.Code, want, rec.Body.String())
	}
}

func TestAPIKeyRequired(t *testing.T) {
	h := newAPIHarness(t, nil, nil)
	tests := []struct {
		name   string
		header string
		value  string
		status int
	}{
		{"missing", "", "", http.StatusUnauthorized},
		{"wrong key", "X-API-Key", "nope", http.StatusUnauthorized},
		{"header key", "X-API-Key", testAPIKey, http.StatusOK},
		{"bearer token", "Authorization", "Bearer " + testAPIKey, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/interviews", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			h.handler.ServeHTTP(rec, req)
			expectStatus(t, rec, tt.status)
			if rec.Header().Get("X-Request-ID") == "" {
				t.Fatalf("expected X-Request-ID header")
			}
		})
	}
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthz(t *testing.T) {
	ok := NewRouter(RouterConfig{Health: pingFunc(func(context.Context) error { return nil }), Logger: logging.Discard()})
	rec := httptest.NewRecorder()
	ok.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	expectStatus(t, rec, http.StatusOK)
	if got := decode[healthResponse](t, rec).Store; got != "ok" {
		t.Fatalf("store = %q, want ok", got)
	}

	down := NewRouter(RouterConfig{Health: pingFunc(func(context.Context) error { return errors.New("db gone") }), Logger: logging.Discard()})
	rec = httptest.NewRecorder()
	down.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	expectStatus(t, rec, http.StatusServiceUnavailable)
}

func TestBatchAndNegotiationFlow(t *testing.T) {
	cand := testfixtures.NewCandidate()
	ivr := testfixtures.NewInterviewer()
	h := newAPIHarness(t, []persistence.Candidate{cand}, []persistence.Interviewer{ivr})

	rec := h.do(t, http.MethodPost, "/api/v1/batches", `{"requested_by":"hr@example.com","top_n":1}`)
	expectStatus(t, rec, http.StatusCreated)
	batch := decode[batchResponse](t, rec)
	if len(batch.Interviews) != 1 {
		t.Fatalf("expected one interview, got %d", len(batch.Interviews))
	}
	interviewID := batch.Interviews[0].ID
	if batch.Interviews[0].State != string(negotiation.SlotProposed) {
		t.Fatalf("state = %q, want slot_proposed", batch.Interviews[0].State)
	}
	if len(batch.Batch.InterviewIDs) != 1 || batch.Batch.InterviewIDs[0] != interviewID {
		t.Fatalf("batch interview ids = %v, want [%s]", batch.Batch.InterviewIDs, interviewID)
	}

	expectStatus(t, h.do(t, http.MethodGet, "/api/v1/batches/"+batch.Batch.ID, ""), http.StatusOK)

	t.Run("candidate confirms through the chat webhook", func(t *testing.T) {
		rec := h.form(t, "/webhooks/messages", url.Values{
			"MessageSid": {"SM100"},
			"From":       {"whatsapp:" + cand.Phone},
			"Body":       {"Yes, that works"},
		})
		expectStatus(t, rec, http.StatusOK)
		if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "text/xml") {
			t.Fatalf("content type = %q, want text/xml", ct)
		}
		if !strings.Contains(rec.Body.String(), "<Response>") {
			t.Fatalf("expected TwiML body, got %s", rec.Body.String())
		}
	})

	t.Run("interviewer confirms through JSON", func(t *testing.T) {
		payload := `{"message_id":"SM101","from":"` + ivr.Phone + `","body":"confirmed"}`
		rec := h.do(t, http.MethodPost, "/webhooks/messages", payload)
		expectStatus(t, rec, http.StatusOK)
		result := decode[inboundDTO](t, rec)
		if result.InterviewID != interviewID || result.State != string(negotiation.Scheduled) {
			t.Fatalf("unexpected result %+v", result)
		}

		rec = h.do(t, http.MethodPost, "/webhooks/messages", payload)
		expectStatus(t, rec, http.StatusOK)
		if !decode[inboundDTO](t, rec).Duplicate {
			t.Fatalf("expected redelivery to be reported as duplicate")
		}
	})

	t.Run("inspect", func(t *testing.T) {
		rec := h.do(t, http.MethodGet, "/api/v1/interviews/"+interviewID, "")
		expectStatus(t, rec, http.StatusOK)
		details := decode[interviewDetailsDTO](t, rec)
		if details.Interview.State != string(negotiation.Scheduled) {
			t.Fatalf("state = %q, want scheduled", details.Interview.State)
		}
		if details.Candidate.ID != cand.ID {
			t.Fatalf("candidate = %q, want %q", details.Candidate.ID, cand.ID)
		}
		if details.Slot == nil || details.Slot.Status != string(persistence.SlotBooked) {
			t.Fatalf("expected a booked slot, got %+v", details.Slot)
		}
		if details.Interview.MeetingLink == "" {
			t.Fatalf("expected a meeting link")
		}

		rec = h.do(t, http.MethodGet, "/api/v1/interviews?state=scheduled", "")
		expectStatus(t, rec, http.StatusOK)
		if n := len(decode[listInterviewsResponse](t, rec).Interviews); n != 1 {
			t.Fatalf("listed %d scheduled interviews, want 1", n)
		}

		expectStatus(t, h.do(t, http.MethodGet, "/api/v1/interviews?limit=-1", ""), http.StatusUnprocessableEntity)
	})

	t.Run("cancel", func(t *testing.T) {
		rec := h.do(t, http.MethodPost, "/api/v1/interviews/"+interviewID+"/cancel", `{"reason":"position filled"}`)
		expectStatus(t, rec, http.StatusOK)
		if got := decode[interviewResponse](t, rec).Interview.State; got != string(negotiation.Cancelled) {
			t.Fatalf("state = %q, want cancelled", got)
		}

		rec = h.do(t, http.MethodPost, "/api/v1/interviews/"+interviewID+"/cancel", "")
		expectStatus(t, rec, http.StatusOK)
		if got := decode[interviewResponse](t, rec).Interview.State; got != string(negotiation.Cancelled) {
			t.Fatalf("repeated cancel state = %q, want cancelled", got)
		}
	})
}

func TestMessageWebhookDefersFailedSends(t *testing.T) {
	cand := testfixtures.NewCandidate()
	ivr := testfixtures.NewInterviewer()
	h := newAPIHarness(t, []persistence.Candidate{cand}, []persistence.Interviewer{ivr})

	rec := h.do(t, http.MethodPost, "/api/v1/batches", `{"top_n":1}`)
	expectStatus(t, rec, http.StatusCreated)
	interviewID := decode[batchResponse](t, rec).Interviews[0].ID

	h.sender.FailFor(ivr.Phone, errors.New("gateway down"))
	payload := `{"message_id":"SM200","from":"` + cand.Phone + `","body":"yes"}`

	rec = h.do(t, http.MethodPost, "/webhooks/messages", payload)
	expectStatus(t, rec, http.StatusOK)
	result := decode[inboundDTO](t, rec)
	if !result.Deferred || result.Duplicate {
		t.Fatalf("expected a deferred first delivery, got %+v", result)
	}

	rec = h.do(t, http.MethodPost, "/webhooks/messages", payload)
	expectStatus(t, rec, http.StatusOK)
	if !decode[inboundDTO](t, rec).Duplicate {
		t.Fatalf("expected redelivery to be absorbed")
	}

	iv, err := h.store.GetInterview(context.Background(), interviewID)
	if err != nil {
		t.Fatalf("get interview: %v", err)
	}
	if iv.Retries != 1 {
		t.Fatalf("retries = %d, want 1", iv.Retries)
	}
}

func TestServiceErrorMapping(t *testing.T) {
	h := newAPIHarness(t, []persistence.Candidate{testfixtures.NewCandidate()}, nil)

	rec := h.do(t, http.MethodGet, "/api/v1/interviews/missing", "")
	expectStatus(t, rec, http.StatusNotFound)
	if code := decode[errorResponse](t, rec).ErrorCode; code != "NOT_FOUND" {
		t.Fatalf("error_code = %q, want NOT_FOUND", code)
	}

	expectStatus(t, h.do(t, http.MethodGet, "/api/v1/batches/missing", ""), http.StatusNotFound)

	rec = h.do(t, http.MethodPost, "/api/v1/batches", `{}`)
	expectStatus(t, rec, http.StatusUnprocessableEntity)
	if _, ok := decode[errorResponse](t, rec).Errors["interviewers"]; !ok {
		t.Fatalf("expected an interviewers field error, got %s", rec.Body.String())
	}

	expectStatus(t, h.do(t, http.MethodPost, "/api/v1/batches", `{"top_n":`), http.StatusBadRequest)
}

func TestHandleServiceErrorStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("get: %w", application.ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{application.ErrConflict, http.StatusConflict, "CONFLICT"},
		{&negotiation.TransitionError{From: negotiation.Completed, Event: negotiation.EventCancelled}, http.StatusConflict, "INVALID_TRANSITION"},
		{fmt.Errorf("propose: %w", ledger.ErrNoAvailability), http.StatusUnprocessableEntity, "NO_AVAILABILITY"},
		{fmt.Errorf("send: %w", application.ErrExternalService), http.StatusBadGateway, "EXTERNAL_SERVICE"},
		{context.DeadlineExceeded, http.StatusGatewayTimeout, "TIMEOUT"},
		{errors.New("boom"), http.StatusInternalServerError, "UNEXPECTED"},
	}
	r := newResponder(logging.Discard())
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r.handleServiceError(context.Background(), rec, tt.err)
			expectStatus(t, rec, tt.status)
			body := decode[errorResponse](t, rec)
			if body.ErrorCode != tt.code {
				t.Fatalf("error_code = %q, want %q", body.ErrorCode, tt.code)
			}
			if strings.Contains(body.Message, "boom") {
				t.Fatalf("internal error leaked: %q", body.Message)
			}
		})
	}
}

func TestRosterEndpoints(t *testing.T) {
	h := newAPIHarness(t, nil, nil)

	rec := h.do(t, http.MethodPost, "/api/v1/interviewers", `{
		"name": "Ravi",
		"email": "ravi@example.com",
		"time_zone": "UTC",
		"availability": [{"day": "tue", "start": "09:00", "end": "12:30"}]
	}`)
	expectStatus(t, rec, http.StatusCreated)
	created := decode[interviewerResponse](t, rec).Interviewer
	if len(created.Availability) != 1 {
		t.Fatalf("expected one window, got %+v", created.Availability)
	}
	if w := created.Availability[0]; w.Day != "tuesday" || w.End != "12:30" {
		t.Fatalf("unexpected window %+v", w)
	}

	rec = h.do(t, http.MethodPost, "/api/v1/interviewers", `{"name":"X","email":"x@example.com","availability":[{"day":"funday","start":"09:00","end":"10:00"}]}`)
	expectStatus(t, rec, http.StatusUnprocessableEntity)
	if _, ok := decode[errorResponse](t, rec).Errors["availability"]; !ok {
		t.Fatalf("expected an availability field error, got %s", rec.Body.String())
	}

	rec = h.do(t, http.MethodPut, "/api/v1/interviewers/"+created.ID+"/availability", `{"active":false,"availability":[{"day":"friday","start":"13:00","end":"15:00"}]}`)
	expectStatus(t, rec, http.StatusOK)
	updated := decode[interviewerResponse](t, rec).Interviewer
	if updated.Active || len(updated.Availability) != 1 || updated.Availability[0].Day != "friday" {
		t.Fatalf("unexpected update %+v", updated)
	}

	rec = h.do(t, http.MethodGet, "/api/v1/interviewers?active=true", "")
	expectStatus(t, rec, http.StatusOK)
	if n := len(decode[listInterviewersResponse](t, rec).Interviewers); n != 0 {
		t.Fatalf("listed %d active interviewers, want 0", n)
	}

	rec = h.do(t, http.MethodPost, "/api/v1/candidates", `{"name":"Asha","phone":"9876543210","score":88,"rank":1}`)
	expectStatus(t, rec, http.StatusCreated)
	if phone := decode[candidateResponse](t, rec).Candidate.Phone; phone != "+919876543210" {
		t.Fatalf("phone = %q, want +919876543210", phone)
	}

	rec = h.do(t, http.MethodPost, "/api/v1/candidates", `{"name":"Dup","phone":"+91 98765 43210","score":50}`)
	expectStatus(t, rec, http.StatusConflict)
	if code := decode[errorResponse](t, rec).ErrorCode; code != "ALREADY_EXISTS" {
		t.Fatalf("error_code = %q, want ALREADY_EXISTS", code)
	}

	rec = h.do(t, http.MethodGet, "/api/v1/candidates?min_score=80", "")
	expectStatus(t, rec, http.StatusOK)
	if n := len(decode[listCandidatesResponse](t, rec).Candidates); n != 1 {
		t.Fatalf("listed %d candidates, want 1", n)
	}

	expectStatus(t, h.do(t, http.MethodGet, "/api/v1/candidates?min_score=high", ""), http.StatusUnprocessableEntity)
}

func TestFeedbackWebhookQueuesItems(t *testing.T) {
	h := newAPIHarness(t, nil, nil)

	rec := h.do(t, http.MethodPost, "/webhooks/feedback", `{"id":"mail-1","from":"Ravi <ravi@example.com>","subject":"Feedback","text":"Selected"}`)
	expectStatus(t, rec, http.StatusAccepted)
	if id := decode[feedbackResponse](t, rec).ID; id != "mail-1" {
		t.Fatalf("id = %q, want mail-1", id)
	}

	rec = h.do(t, http.MethodPost, "/webhooks/feedback", `{"id":"mail-1","from":"ravi@example.com","subject":"Feedback","text":"Selected"}`)
	expectStatus(t, rec, http.StatusOK)
	if !decode[feedbackResponse](t, rec).Duplicate {
		t.Fatalf("expected duplicate flag on redelivery")
	}

	expectStatus(t, h.do(t, http.MethodPost, "/webhooks/feedback", `{"subject":"Feedback"}`), http.StatusUnprocessableEntity)

	items, err := h.store.ListPendingInboxItems(context.Background(), 0)
	if err != nil {
		t.Fatalf("list inbox: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected one stored item, got %d", len(items))
	}
	if items[0].Sender != "Ravi <ravi@example.com>" {
		t.Fatalf("sender = %q", items[0].Sender)
	}
	if !items[0].ReceivedAt.Equal(h.clock.Now()) {
		t.Fatalf("received_at = %v, want %v", items[0].ReceivedAt, h.clock.Now())
	}
}

func TestDebugRoutes(t *testing.T) {
	cand := testfixtures.NewCandidate()
	ivr := testfixtures.NewInterviewer()
	body := `{"candidate_id":"` + cand.ID + `","interviewer_id":"` + ivr.ID + `","started_ago":"2h"}`

	h := newAPIHarness(t, []persistence.Candidate{cand}, []persistence.Interviewer{ivr})
	expectStatus(t, h.do(t, http.MethodPost, "/api/v1/debug/past-interview", body), http.StatusNotFound)

	h = newAPIHarness(t, []persistence.Candidate{cand}, []persistence.Interviewer{ivr}, withDebugRoutes())
	rec := h.do(t, http.MethodPost, "/api/v1/debug/past-interview", body)
	expectStatus(t, rec, http.StatusCreated)
	iv := decode[interviewResponse](t, rec).Interview
	if iv.SlotStart == nil || !iv.SlotStart.Before(h.clock.Now()) {
		t.Fatalf("expected a slot in the past, got %v", iv.SlotStart)
	}

	expectStatus(t, h.do(t, http.MethodPost, "/api/v1/debug/past-interview", `{"candidate_id":"x","started_ago":"yesterday"}`), http.StatusBadRequest)
}

func TestWebhookRateLimit(t *testing.T) {
	h := newAPIHarness(t, nil, nil, withWebhookLimit(0.001, 1))

	expectStatus(t, h.do(t, http.MethodPost, "/webhooks/feedback", `{"id":"a","from":"x@example.com"}`), http.StatusAccepted)

	second := h.do(t, http.MethodPost, "/webhooks/feedback", `{"id":"b","from":"x@example.com"}`)
	expectStatus(t, second, http.StatusTooManyRequests)
	if got := second.Header().Get("Retry-After"); got != "5" {
		t.Fatalf("Retry-After = %q, want 5", got)
	}
}

func TestClientRateLimiterForgetsIdleClients(t *testing.T) {
	limiter := NewClientRateLimiter(0.001, 1, logging.Discard())
	now := time.Date(2025, 5, 30, 9, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	if !limiter.Allow("10.0.0.1") {
		t.Fatalf("first request should pass")
	}
	if limiter.Allow("10.0.0.1") {
		t.Fatalf("second request should be limited")
	}

	now = now.Add(10 * time.Minute)
	if !limiter.Allow("10.0.0.2") {
		t.Fatalf("new client should pass")
	}
	limiter.mu.Lock()
	_, kept := limiter.visitors["10.0.0.1"]
	limiter.mu.Unlock()
	if kept {
		t.Fatalf("idle visitor should be dropped")
	}
}
