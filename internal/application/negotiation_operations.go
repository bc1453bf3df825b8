package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/interview-scheduler/internal/calendar"
	"github.com/example/interview-scheduler/internal/messaging"
	"github.com/example/interview-scheduler/internal/negotiation"
	"github.com/example/interview-scheduler/internal/persistence"
)

// Propose offers the next free slot to a Shortlisted or Stalled interview.
func (s *NegotiationService) Propose(ctx context.Context, interviewID string) (iv persistence.Interview, err error) {
	if s == nil {
		err = fmt.Errorf("NegotiationService is nil")
		return
	}

	logger := s.loggerWith(ctx, "Propose", "interview_id", interviewID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to propose slot", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("state", iv.State).InfoContext(ctx, "proposal handled")
	}()

	c, err := s.mutate(ctx, interviewID, func(ctx context.Context, c *change) error {
		state := negotiation.State(c.iv.State)
		if state != negotiation.Shortlisted && state != negotiation.Stalled {
			return &negotiation.TransitionError{From: state, Event: negotiation.EventProposed}
		}
		c.iv.NextRetryAt = nil
		return s.proposeNext(ctx, c, nil)
	})
	if c != nil {
		iv = c.iv
		if err == nil && c.expired {
			err = fmt.Errorf("interview %s: %w", interviewID, ErrMaxRetriesExceeded)
		}
	}
	return
}

// HandleIntent applies one resolved inbound message. Redelivered intents are
// absorbed; intents that do not fit the current state get a polite reply and
// an ErrInvalidTransition.
func (s *NegotiationService) HandleIntent(ctx context.Context, in negotiation.Intent) (iv persistence.Interview, err error) {
	if s == nil {
		err = fmt.Errorf("NegotiationService is nil")
		return
	}

	logger := s.loggerWith(ctx, "HandleIntent",
		"interview_id", in.InterviewID,
		"party", in.Party,
		"intent", in.Kind.String(),
	)
	defer func() {
		if err != nil {
			level := logger.ErrorContext
			if errors.Is(err, negotiation.ErrInvalidTransition) {
				level = logger.WarnContext
			}
			level(ctx, "intent not applied", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("state", iv.State).InfoContext(ctx, "intent applied")
	}()

	event, ok := in.Event()
	if !ok {
		iv, err = s.replyTo(ctx, in, messaging.Clarify)
		return
	}

	switch event {
	case negotiation.EventInterviewerConfirmed:
		iv, err = s.confirmInterviewer(ctx, in.InterviewID)
	case negotiation.EventFeedbackReceived:
		iv, err = s.receiveFeedback(ctx, in.InterviewID, in.Feedback)
	default:
		var c *change
		c, err = s.mutate(ctx, in.InterviewID, func(ctx context.Context, c *change) error {
			return s.fire(ctx, c, event)
		})
		if c != nil {
			iv = c.iv
		}
	}

	if errors.Is(err, negotiation.ErrInvalidTransition) && event != negotiation.EventFeedbackReceived {
		if current, rerr := s.replyTo(ctx, in, messaging.NothingPending); rerr == nil {
			iv = current
		}
	}
	return
}

// confirmInterviewer provisions the meeting outside the lock and then books
// the slot. A provisioning failure leaves the interview waiting and records
// the confirmation for the sweep to replay.
func (s *NegotiationService) confirmInterviewer(ctx context.Context, interviewID string) (persistence.Interview, error) {
	current, err := s.store.GetInterview(ctx, interviewID)
	if err != nil {
		return persistence.Interview{}, mapRepoError(err)
	}
	if current.State != string(negotiation.AwaitingInterviewer) || current.SlotStart == nil {
		c, err := s.mutate(ctx, interviewID, func(ctx context.Context, c *change) error {
			return s.fire(ctx, c, negotiation.EventInterviewerConfirmed)
		})
		if c != nil {
			return c.iv, err
		}
		return current, err
	}

	link, perr := s.provision(ctx, current)
	if perr != nil {
		s.metrics.ExternalFailure(ctx, "calendar")
		c, err := s.mutate(ctx, interviewID, func(ctx context.Context, c *change) error {
			if c.iv.State != string(negotiation.AwaitingInterviewer) || c.iv.SlotID != current.SlotID {
				return nil
			}
			c.iv.PendingEvent = string(negotiation.EventInterviewerConfirmed)
			return s.scheduleRetry(ctx, c, s.now().UTC())
		})
		out := current
		if c != nil {
			out = c.iv
		}
		return out, errors.Join(fmt.Errorf("%w: provision meeting: %v", ErrExternalService, perr), err)
	}

	c, err := s.mutate(ctx, interviewID, func(ctx context.Context, c *change) error {
		if c.iv.State == string(negotiation.AwaitingInterviewer) && c.iv.SlotID != current.SlotID {
			return fmt.Errorf("%w: slot changed while provisioning", ErrConflict)
		}
		c.link = link
		return s.fire(ctx, c, negotiation.EventInterviewerConfirmed)
	})
	if c != nil {
		return c.iv, err
	}
	return current, err
}

func (s *NegotiationService) provision(ctx context.Context, iv persistence.Interview) (string, error) {
	if s.calendar == nil {
		return "", calendar.ErrNotConfigured
	}
	candidate, err := s.store.GetCandidate(ctx, iv.CandidateID)
	if err != nil {
		return "", mapRepoError(err)
	}
	interviewer, err := s.store.GetInterviewer(ctx, iv.InterviewerID)
	if err != nil {
		return "", mapRepoError(err)
	}

	req := calendar.Request{
		InterviewID:      iv.ID,
		InterviewerEmail: interviewer.Email,
		CandidateEmail:   candidate.Email,
		Start:            *iv.SlotStart,
	}
	if iv.SlotEnd != nil {
		req.End = *iv.SlotEnd
	}
	ctx, cancel := context.WithTimeout(ctx, s.policy.ExternalTimeout)
	defer cancel()
	return s.calendar.Provision(ctx, req)
}

// receiveFeedback records interviewer feedback. A clear outcome completes the
// interview; an unclear one is stored as a note and the interview keeps
// waiting. Feedback for a finished interview becomes a supplementary note.
func (s *NegotiationService) receiveFeedback(ctx context.Context, interviewID string, fb *negotiation.Feedback) (persistence.Interview, error) {
	if fb == nil {
		return persistence.Interview{}, &ValidationError{FieldErrors: map[string]string{"feedback": "required"}}
	}
	c, err := s.mutate(ctx, interviewID, func(ctx context.Context, c *change) error {
		now := s.now().UTC()
		state := negotiation.State(c.iv.State)
		if state == negotiation.Scheduled && c.iv.SlotEnd != nil && !c.iv.SlotEnd.After(now) {
			c.quiet = true
			if err := s.fire(ctx, c, negotiation.EventInterviewElapsed); err != nil {
				return err
			}
			state = negotiation.State(c.iv.State)
		}

		switch {
		case state == negotiation.Completed || state == negotiation.CompletedUnresolved:
			return s.addNote(ctx, c, fb, true, now)
		case state != negotiation.AwaitingFeedback:
			return &negotiation.TransitionError{From: state, Event: negotiation.EventFeedbackReceived}
		case fb.Outcome == negotiation.OutcomeUnclear || fb.Outcome == "":
			return s.addNote(ctx, c, fb, false, now)
		}
		c.feedback = fb
		return s.fire(ctx, c, negotiation.EventFeedbackReceived)
	})
	if err != nil {
		return persistence.Interview{}, err
	}
	return c.iv, nil
}

// replyTo answers the sender of an intent with a message built from their name.
func (s *NegotiationService) replyTo(ctx context.Context, in negotiation.Intent, text func(string) string) (persistence.Interview, error) {
	iv, err := s.store.GetInterview(ctx, in.InterviewID)
	if err != nil {
		return persistence.Interview{}, mapRepoError(err)
	}

	var name, handle string
	switch in.Party {
	case negotiation.PartyInterviewer:
		interviewer, err := s.store.GetInterviewer(ctx, iv.InterviewerID)
		if err != nil {
			return iv, mapRepoError(err)
		}
		name, handle = interviewer.Name, interviewerHandle(interviewer)
	default:
		candidate, err := s.store.GetCandidate(ctx, iv.CandidateID)
		if err != nil {
			return iv, mapRepoError(err)
		}
		name, handle = candidate.Name, candidateHandle(candidate)
	}

	if err := s.sendOne(ctx, handle, text(name)); err != nil {
		s.metrics.ExternalFailure(ctx, "messaging")
		s.loggerWith(ctx, "replyTo", "interview_id", iv.ID).WarnContext(ctx, "reply not delivered",
			"handle", handle, "error", err, "error_kind", "external_service")
	}
	return iv, nil
}

// Cancel stops the negotiation and releases its slot. Cancelling a cancelled
// interview succeeds without change.
func (s *NegotiationService) Cancel(ctx context.Context, interviewID, reason string) (iv persistence.Interview, err error) {
	if s == nil {
		err = fmt.Errorf("NegotiationService is nil")
		return
	}

	logger := s.loggerWith(ctx, "Cancel", "interview_id", interviewID, "reason", strings.TrimSpace(reason))
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to cancel interview", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "interview cancelled")
	}()

	c, err := s.mutate(ctx, interviewID, func(ctx context.Context, c *change) error {
		return s.fire(ctx, c, negotiation.EventCancelled)
	})
	if c != nil {
		iv = c.iv
	}
	return
}

// Get returns the interview together with its participants, slot and notes.
func (s *NegotiationService) Get(ctx context.Context, interviewID string) (details InterviewDetails, err error) {
	if s == nil {
		err = fmt.Errorf("NegotiationService is nil")
		return
	}

	iv, err := s.store.GetInterview(ctx, interviewID)
	if err != nil {
		err = mapRepoError(err)
		return
	}
	details.Interview = iv

	if details.Candidate, err = s.store.GetCandidate(ctx, iv.CandidateID); err != nil {
		err = mapRepoError(err)
		return
	}
	if details.Interviewer, err = s.store.GetInterviewer(ctx, iv.InterviewerID); err != nil {
		err = mapRepoError(err)
		return
	}
	if iv.SlotID != "" {
		slot, serr := s.ledger.Get(ctx, iv.SlotID)
		switch {
		case serr == nil:
			details.Slot = &slot
		case !errors.Is(serr, persistence.ErrNotFound):
			err = serr
			return
		}
	}
	details.Notes, err = s.store.ListFeedbackNotes(ctx, iv.ID)
	return
}

// List returns interviews filtered by state, batch or candidate.
func (s *NegotiationService) List(ctx context.Context, params ListInterviewsParams) ([]persistence.Interview, error) {
	if s == nil {
		return nil, fmt.Errorf("NegotiationService is nil")
	}

	filter := persistence.InterviewFilter{
		BatchID:     strings.TrimSpace(params.BatchID),
		CandidateID: strings.TrimSpace(params.CandidateID),
		Limit:       params.Limit,
	}
	if state := strings.TrimSpace(params.State); state != "" {
		if !negotiation.State(state).Valid() {
			return nil, &ValidationError{FieldErrors: map[string]string{"state": "unknown state"}}
		}
		filter.States = []string{state}
	}
	if filter.Limit < 0 {
		return nil, &ValidationError{FieldErrors: map[string]string{"limit": "must not be negative"}}
	}

	interviews, err := s.store.ListInterviews(ctx, filter)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return interviews, nil
}

// CreatePastInterview inserts an interview that is already Scheduled and
// whose slot ended, so the feedback path can be exercised without waiting.
func (s *NegotiationService) CreatePastInterview(ctx context.Context, params PastInterviewParams) (iv persistence.Interview, err error) {
	if s == nil {
		err = fmt.Errorf("NegotiationService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CreatePastInterview",
		"candidate_id", params.CandidateID,
		"interviewer_id", params.InterviewerID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create past interview", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("interview_id", iv.ID).InfoContext(ctx, "past interview created")
	}()

	vErr := &ValidationError{}
	if strings.TrimSpace(params.CandidateID) == "" {
		vErr.add("candidate_id", "required")
	}
	if strings.TrimSpace(params.InterviewerID) == "" {
		vErr.add("interviewer_id", "required")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}
	if _, err = s.store.GetCandidate(ctx, params.CandidateID); err != nil {
		err = mapRepoError(err)
		return
	}
	if _, err = s.store.GetInterviewer(ctx, params.InterviewerID); err != nil {
		err = mapRepoError(err)
		return
	}

	ago := params.StartedAgo
	if ago <= 0 {
		ago = time.Hour
	}
	now := s.now().UTC()
	start := now.Add(-ago)
	end := start.Add(30 * time.Minute)
	if end.After(now) {
		end = now
	}
	iv = persistence.Interview{
		ID:                   s.idGenerator(),
		CandidateID:          params.CandidateID,
		InterviewerID:        params.InterviewerID,
		State:                string(negotiation.Scheduled),
		SlotStart:            &start,
		SlotEnd:              &end,
		CandidateConfirmed:   true,
		InterviewerConfirmed: true,
		Attempts:             1,
		CreatedAt:            now,
		LastTransitionAt:     now,
		UpdatedAt:            now,
	}
	if err = s.store.CreateInterview(ctx, iv); err != nil {
		err = mapRepoError(err)
	}
	return
}
