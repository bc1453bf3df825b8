package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/interview-scheduler/internal/intent"
	"github.com/example/interview-scheduler/internal/messaging"
	"github.com/example/interview-scheduler/internal/negotiation"
	"github.com/example/interview-scheduler/internal/persistence"
)

// IntentResolver turns free text into intents. intent.Resolver satisfies it.
type IntentResolver interface {
	Resolve(ctx context.Context, raw string, c intent.Context) negotiation.Intent
	ResolveFeedback(ctx context.Context, raw string, c intent.Context) negotiation.Intent
}

// InboundRouter resolves the sender of a chat message to a party and an open
// interview, classifies the text and hands the intent to the engine.
type InboundRouter struct {
	store       NegotiationStore
	resolver    IntentResolver
	engine      *NegotiationService
	sender      messaging.Sender
	deliveries  *deliveryCache
	countryCode string
	hrContact   string
	timeout     time.Duration
	logger      *slog.Logger
}

// InboundOptions tunes handle normalization and duplicate detection.
type InboundOptions struct {
	DefaultCountryCode string
	HRContact          string
	DeliveryTTL        time.Duration
	// ExternalTimeout bounds each reply send. Zero uses the default policy.
	ExternalTimeout    time.Duration
	Now                func() time.Time
}

// NewInboundRouter constructs a router.
func NewInboundRouter(store NegotiationStore, resolver IntentResolver, engine *NegotiationService, sender messaging.Sender, opts InboundOptions, logger *slog.Logger) *InboundRouter {
	logger = defaultLogger(logger)
	if sender == nil {
		sender = messaging.LogSender{Logger: logger}
	}
	if opts.ExternalTimeout <= 0 {
		opts.ExternalTimeout = DefaultPolicy().ExternalTimeout
	}
	return &InboundRouter{
		store:       store,
		resolver:    resolver,
		engine:      engine,
		sender:      sender,
		deliveries:  newDeliveryCache(opts.DeliveryTTL, 0, opts.Now),
		countryCode: opts.DefaultCountryCode,
		hrContact:   opts.HRContact,
		timeout:     opts.ExternalTimeout,
		logger:      logger,
	}
}

func (r *InboundRouter) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, r.logger, "InboundRouter", operation, attrs...)
}

// Handle processes one inbound chat message. Redelivered messages are
// reported as duplicates without side effects. Messages that do not fit the
// negotiation are answered and not treated as errors. A failed outbound step
// that the sweep will retry marks the result Deferred and keeps the claim.
func (r *InboundRouter) Handle(ctx context.Context, msg InboundMessage) (result InboundResult, err error) {
	if r == nil {
		err = fmt.Errorf("InboundRouter is nil")
		return
	}

	logger := r.loggerWith(ctx, "Handle", "delivery_id", msg.DeliveryID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "inbound message failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With(
			"party", result.Party,
			"interview_id", result.InterviewID,
			"intent", result.Intent,
			"duplicate", result.Duplicate,
			"deferred", result.Deferred,
		).InfoContext(ctx, "inbound message handled")
	}()

	handle, ok := messaging.NormalizeHandle(msg.From, r.countryCode)
	if !ok {
		err = &ValidationError{FieldErrors: map[string]string{"from": "unrecognized sender handle"}}
		return
	}
	if !r.deliveries.Claim(msg.DeliveryID) {
		result.Duplicate = true
		return
	}

	result, err = r.route(ctx, handle, msg.Body)
	if err != nil {
		// Nothing was applied; a redelivery may try again.
		r.deliveries.Forget(msg.DeliveryID)
	}
	return
}

func (r *InboundRouter) route(ctx context.Context, handle, body string) (InboundResult, error) {
	party, iv, name, err := r.identify(ctx, handle)
	if err != nil {
		return InboundResult{}, err
	}
	result := InboundResult{Party: string(party)}
	if party == "" {
		r.reply(ctx, handle, messaging.UnknownSender(r.hrContact))
		return result, nil
	}
	if iv == nil {
		r.reply(ctx, handle, messaging.NothingPending(name))
		return result, nil
	}
	result.InterviewID = iv.ID

	in := r.resolver.Resolve(ctx, body, intent.Context{
		Party:       party,
		InterviewID: iv.ID,
		State:       negotiation.State(iv.State),
		SlotStart:   iv.SlotStart,
	})
	result.Intent = in.Kind.String()

	updated, err := r.engine.HandleIntent(ctx, in)
	if updated.ID != "" {
		result.State = updated.State
	}
	switch {
	case errors.Is(err, negotiation.ErrInvalidTransition):
		return result, nil
	case errors.Is(err, ErrExternalService):
		// The engine rolled the step back and the sweep owns the retry, so
		// the message counts as handled.
		r.loggerWith(ctx, "route", "interview_id", iv.ID).WarnContext(ctx, "outbound effect deferred to sweep",
			"error", err, "error_kind", ErrorKind(err))
		result.Deferred = true
		if current, gerr := r.store.GetInterview(ctx, iv.ID); gerr == nil {
			result.State = current.State
		}
		return result, nil
	}
	return result, err
}

// identify finds the party behind handle and the interview the message most
// likely refers to. Both results are empty for unknown senders; the
// interview is nil when the party has nothing open.
func (r *InboundRouter) identify(ctx context.Context, handle string) (negotiation.Party, *persistence.Interview, string, error) {
	candidate, err := r.store.GetCandidateByPhone(ctx, handle)
	switch {
	case err == nil:
		open, err := r.store.ListInterviews(ctx, persistence.InterviewFilter{
			States:      negotiation.NonTerminal(),
			CandidateID: candidate.ID,
		})
		if err != nil {
			return "", nil, "", err
		}
		if len(open) == 0 {
			return negotiation.PartyCandidate, nil, candidate.Name, nil
		}
		latest := open[len(open)-1]
		return negotiation.PartyCandidate, &latest, candidate.Name, nil
	case !errors.Is(err, persistence.ErrNotFound):
		return "", nil, "", err
	}

	interviewer, err := r.store.GetInterviewerByContact(ctx, handle)
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		return "", nil, "", nil
	case err != nil:
		return "", nil, "", err
	}

	open, err := r.store.ListInterviews(ctx, persistence.InterviewFilter{
		States:        []string{string(negotiation.AwaitingInterviewer)},
		InterviewerID: interviewer.ID,
	})
	if err != nil {
		return "", nil, "", err
	}
	if len(open) == 0 {
		return negotiation.PartyInterviewer, nil, interviewer.Name, nil
	}
	return negotiation.PartyInterviewer, earliestDeadline(open), interviewer.Name, nil
}

// earliestDeadline picks the request the interviewer is most likely
// answering: the one closest to timing out.
func earliestDeadline(interviews []persistence.Interview) *persistence.Interview {
	best := interviews[0]
	for _, iv := range interviews[1:] {
		if iv.ResponseDeadline == nil {
			continue
		}
		if best.ResponseDeadline == nil || iv.ResponseDeadline.Before(*best.ResponseDeadline) {
			best = iv
		}
	}
	return &best
}

func (r *InboundRouter) reply(ctx context.Context, handle, text string) {
	sendCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.sender.Send(sendCtx, handle, text); err != nil {
		r.loggerWith(ctx, "reply", "handle", handle).WarnContext(ctx, "reply not delivered", "error", err, "error_kind", "external_service")
	}
}
