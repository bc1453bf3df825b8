package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/interview-scheduler/internal/calendar"
	"github.com/example/interview-scheduler/internal/ledger"
	"github.com/example/interview-scheduler/internal/lock"
	"github.com/example/interview-scheduler/internal/messaging"
	"github.com/example/interview-scheduler/internal/negotiation"
	"github.com/example/interview-scheduler/internal/persistence"
	"github.com/example/interview-scheduler/internal/telemetry"
)

// NegotiationStore captures the persistence operations needed by the engine.
type NegotiationStore interface {
	persistence.CandidateRepository
	persistence.InterviewerRepository
	persistence.InterviewRepository
	persistence.FeedbackRepository
}

// NegotiationDeps wires the engine to its collaborators.
type NegotiationDeps struct {
	Store       NegotiationStore
	Ledger      *ledger.Ledger
	Locks       lock.Locker
	Sender      messaging.Sender
	Calendar    calendar.Provisioner
	Metrics     *telemetry.Metrics
	Policy      Policy
	IDGenerator func() string
	Now         func() time.Time
	Logger      *slog.Logger
}

// NegotiationService applies events to interviews. Every mutation runs under
// the interview lock as one read-modify-write; outbound messages and meeting
// provisioning happen outside it.
type NegotiationService struct {
	store       NegotiationStore
	ledger      *ledger.Ledger
	locks       lock.Locker
	sender      messaging.Sender
	calendar    calendar.Provisioner
	metrics     *telemetry.Metrics
	policy      Policy
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewNegotiationService constructs the engine. A nil sender discards
// messages through a LogSender.
func NewNegotiationService(deps NegotiationDeps) *NegotiationService {
	logger := defaultLogger(deps.Logger)
	if deps.Locks == nil {
		deps.Locks = lock.NewKeyed()
	}
	if deps.Sender == nil {
		deps.Sender = messaging.LogSender{Logger: logger}
	}
	if deps.IDGenerator == nil {
		deps.IDGenerator = func() string { return "" }
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &NegotiationService{
		store:       deps.Store,
		ledger:      deps.Ledger,
		locks:       deps.Locks,
		sender:      deps.Sender,
		calendar:    deps.Calendar,
		metrics:     deps.Metrics,
		policy:      deps.Policy.withDefaults(),
		idGenerator: deps.IDGenerator,
		now:         deps.Now,
		logger:      logger,
	}
}

func (s *NegotiationService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "NegotiationService", operation, attrs...)
}

type undo uint8

const (
	undoNone undo = iota
	undoProposal
	undoInterviewerRequest
)

// outbound is a message queued under the lock and sent after it is released.
// Messages with an undo action roll the interview back when delivery fails.
type outbound struct {
	to     string
	text   string
	undo   undo
	slotID string
}

// change is the working copy of one interview inside its lock.
type change struct {
	iv   persistence.Interview
	from negotiation.State

	dirty       bool
	transitions []negotiation.Transition
	claimed     []string
	releases    []string
	outbox      []outbound

	link            string
	feedback        *negotiation.Feedback
	quiet           bool
	expired         bool
	candidateStatus string
	releasedStart   *time.Time

	candidate   *persistence.Candidate
	interviewer *persistence.Interviewer
}

func (c *change) send(to, text string) {
	c.outbox = append(c.outbox, outbound{to: to, text: text})
}

func (c *change) sendCritical(to, text string, u undo, slotID string) {
	c.outbox = append(c.outbox, outbound{to: to, text: text, undo: u, slotID: slotID})
}

// releaseSlot detaches the current slot; the ledger release runs once the
// record is saved.
func (c *change) releaseSlot() {
	if c.iv.SlotID != "" {
		c.releases = append(c.releases, c.iv.SlotID)
	}
	if c.iv.SlotStart != nil {
		c.releasedStart = c.iv.SlotStart
	}
	c.iv.SlotID = ""
	c.iv.SlotStart = nil
	c.iv.SlotEnd = nil
	c.dirty = true
}

// mutate runs fn against the locked interview, saves the result and then
// delivers the queued messages.
func (s *NegotiationService) mutate(ctx context.Context, id string, fn func(context.Context, *change) error) (*change, error) {
	c, err := s.mutateLocked(ctx, id, fn)
	if err != nil {
		return nil, err
	}
	if derr := s.deliver(ctx, c); derr != nil {
		return c, derr
	}
	return c, nil
}

func (s *NegotiationService) mutateLocked(ctx context.Context, id string, fn func(context.Context, *change) error) (*change, error) {
	if s.store == nil || s.ledger == nil {
		return nil, fmt.Errorf("negotiation service not configured")
	}
	unlock, err := s.locks.Lock(ctx, lock.InterviewKey(id))
	if err != nil {
		return nil, fmt.Errorf("lock interview %s: %w", id, err)
	}
	defer unlock()

	iv, err := s.store.GetInterview(ctx, id)
	if err != nil {
		return nil, mapRepoError(err)
	}
	c := &change{iv: iv, from: negotiation.State(iv.State)}
	if err := fn(ctx, c); err != nil {
		s.abandon(ctx, c)
		return nil, err
	}
	if err := s.commit(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *NegotiationService) commit(ctx context.Context, c *change) error {
	if !c.dirty {
		return nil
	}
	c.iv.UpdatedAt = s.now().UTC()
	saved, err := s.store.UpdateInterview(ctx, c.iv)
	if err != nil {
		s.abandon(ctx, c)
		return mapRepoError(err)
	}
	c.iv = saved

	logger := s.loggerWith(ctx, "commit", "interview_id", c.iv.ID)
	for _, slotID := range c.releases {
		if err := s.ledger.Relinquish(ctx, slotID, c.iv.ID); err != nil {
			logger.ErrorContext(ctx, "slot release failed", "slot_id", slotID, "error", err, "error_kind", ErrorKind(err))
		}
	}
	for _, t := range c.transitions {
		s.metrics.Transition(ctx, string(t.From), string(t.To), string(t.Event))
		logger.InfoContext(ctx, "interview transitioned", "from", t.From, "to", t.To, "event", t.Event)
	}
	if c.candidateStatus != "" {
		s.updateCandidateStatus(ctx, c.iv.CandidateID, c.candidateStatus)
	}
	return nil
}

// abandon returns slots claimed by a change that will not be saved.
func (s *NegotiationService) abandon(ctx context.Context, c *change) {
	for _, slotID := range c.claimed {
		if err := s.ledger.Relinquish(ctx, slotID, c.iv.ID); err != nil {
			s.loggerWith(ctx, "abandon", "interview_id", c.iv.ID).ErrorContext(ctx, "failed to return claimed slot",
				"slot_id", slotID, "error", err, "error_kind", ErrorKind(err))
		}
	}
}

func (s *NegotiationService) updateCandidateStatus(ctx context.Context, candidateID, status string) {
	candidate, err := s.store.GetCandidate(ctx, candidateID)
	if err == nil {
		candidate.Status = status
		candidate.UpdatedAt = s.now().UTC()
		err = s.store.UpdateCandidate(ctx, candidate)
	}
	if err != nil {
		s.loggerWith(ctx, "updateCandidateStatus", "candidate_id", candidateID).WarnContext(ctx, "candidate status not updated",
			"status", status, "error", err, "error_kind", ErrorKind(mapRepoError(err)))
	}
}

// deliver sends queued messages. A failed critical message rolls its step
// back so the sweep can retry it.
func (s *NegotiationService) deliver(ctx context.Context, c *change) error {
	if c == nil || len(c.outbox) == 0 {
		return nil
	}
	logger := s.loggerWith(ctx, "deliver", "interview_id", c.iv.ID)

	var errs []error
	for _, msg := range c.outbox {
		err := s.sendOne(ctx, msg.to, msg.text)
		if err == nil {
			continue
		}
		s.metrics.ExternalFailure(ctx, "messaging")
		logger.WarnContext(ctx, "message delivery failed", "handle", msg.to, "critical", msg.undo != undoNone,
			"error", err, "error_kind", "external_service")
		if msg.undo == undoNone {
			continue
		}
		errs = append(errs, fmt.Errorf("%w: %v", ErrExternalService, err))
		if cerr := s.compensate(ctx, c.iv.ID, msg); cerr != nil {
			errs = append(errs, cerr)
		}
	}
	return errors.Join(errs...)
}

func (s *NegotiationService) sendOne(ctx context.Context, to, text string) error {
	if to == "" {
		return messaging.ErrUnsupportedHandle
	}
	ctx, cancel := context.WithTimeout(ctx, s.policy.ExternalTimeout)
	defer cancel()
	return s.sender.Send(ctx, to, text)
}

// compensate rolls back the step whose critical message could not be sent.
func (s *NegotiationService) compensate(ctx context.Context, id string, msg outbound) error {
	logger := s.loggerWith(ctx, "compensate", "interview_id", id, "slot_id", msg.slotID)
	_, err := s.mutate(ctx, id, func(ctx context.Context, c *change) error {
		now := s.now().UTC()
		switch msg.undo {
		case undoProposal:
			if c.iv.State != string(negotiation.SlotProposed) || c.iv.SlotID != msg.slotID || c.iv.CandidateConfirmed {
				return nil
			}
			c.releaseSlot()
			c.iv.State = string(negotiation.Shortlisted)
			c.iv.ResponseDeadline = nil
			if c.iv.Attempts > 0 {
				c.iv.Attempts--
			}
		case undoInterviewerRequest:
			if c.iv.State != string(negotiation.AwaitingInterviewer) || c.iv.SlotID != msg.slotID {
				return nil
			}
			c.iv.State = string(negotiation.SlotProposed)
			c.iv.CandidateConfirmed = false
			c.iv.PendingEvent = string(negotiation.EventCandidateConfirmed)
		default:
			return nil
		}
		c.iv.LastTransitionAt = now
		c.dirty = true
		logger.WarnContext(ctx, "transition rolled back", "state", c.iv.State)
		return s.scheduleRetry(ctx, c, now)
	})
	return err
}

// scheduleRetry counts an external failure and expires the interview once
// the retry budget is spent.
func (s *NegotiationService) scheduleRetry(ctx context.Context, c *change, now time.Time) error {
	c.iv.Retries++
	retryAt := now.Add(s.policy.RetryBackoff)
	c.iv.NextRetryAt = &retryAt
	c.dirty = true
	if c.iv.Retries > s.policy.MaxRetries {
		return s.fire(ctx, c, negotiation.EventRetriesExceeded)
	}
	return nil
}

// fire applies event to the working copy. Events that were already applied
// succeed without change.
func (s *NegotiationService) fire(ctx context.Context, c *change, event negotiation.Event) error {
	state := negotiation.State(c.iv.State)
	if negotiation.Absorbs(state, event) {
		s.loggerWith(ctx, "fire", "interview_id", c.iv.ID).DebugContext(ctx, "event already applied", "state", state, "event", event)
		return nil
	}
	t, err := negotiation.Next(state, event)
	if err != nil {
		return err
	}
	return s.apply(ctx, c, t)
}

func (s *NegotiationService) apply(ctx context.Context, c *change, t negotiation.Transition) error {
	now := s.now().UTC()

	switch {
	case t.Has(negotiation.EffectExtendHold):
		until := now.Add(s.policy.ResponseWindow + s.policy.RetryBackoff)
		if err := s.ledger.Extend(ctx, c.iv.SlotID, c.iv.ID, until); err != nil {
			if errors.Is(err, ledger.ErrNotHeld) {
				return s.holdLost(ctx, c, err)
			}
			return fmt.Errorf("extend hold: %w", err)
		}
	case t.Has(negotiation.EffectBookSlot):
		if err := s.ledger.Confirm(ctx, c.iv.SlotID, c.iv.ID); err != nil {
			if errors.Is(err, ledger.ErrNotHeld) {
				return s.holdLost(ctx, c, err)
			}
			return fmt.Errorf("book slot: %w", err)
		}
	}

	if t.Event == negotiation.EventInterviewerRejected ||
		(t.Event == negotiation.EventResponseTimeout && t.From == negotiation.AwaitingInterviewer) {
		c.iv.InterviewerRejections++
	}

	var skip []time.Time
	if c.iv.SlotStart != nil {
		skip = append(skip, *c.iv.SlotStart)
	}
	if t.Has(negotiation.EffectReleaseSlot) {
		c.releaseSlot()
	}
	s.record(c, t, now)

	if t.Has(negotiation.EffectProposeSlot) {
		return s.proposeNext(ctx, c, skip)
	}
	return s.enter(ctx, c, t, now)
}

func (s *NegotiationService) record(c *change, t negotiation.Transition, now time.Time) {
	c.iv.State = string(t.To)
	c.iv.LastTransitionAt = now
	c.dirty = true
	c.transitions = append(c.transitions, t)
}

// holdLost handles a slot that was reclaimed by the ledger before the
// interview could extend or book it. The interview moves on to a new slot.
func (s *NegotiationService) holdLost(ctx context.Context, c *change, cause error) error {
	s.loggerWith(ctx, "holdLost", "interview_id", c.iv.ID, "slot_id", c.iv.SlotID).WarnContext(ctx, "slot hold lost",
		"error", cause, "error_kind", ErrorKind(cause))
	var skip []time.Time
	if c.iv.SlotStart != nil {
		skip = append(skip, *c.iv.SlotStart)
	}
	if err := s.fire(ctx, c, negotiation.EventHoldExpired); err != nil {
		return err
	}
	if c.iv.State == string(negotiation.Shortlisted) {
		return s.proposeNext(ctx, c, skip)
	}
	return nil
}

// proposeNext asks the ledger for the next slot and resolves the outcome
// through EventProposed or EventNoAvailability.
func (s *NegotiationService) proposeNext(ctx context.Context, c *change, skip []time.Time) error {
	if c.iv.Attempts >= s.policy.MaxAttempts {
		return s.fire(ctx, c, negotiation.EventRetriesExceeded)
	}
	if err := s.maybeReassign(ctx, c); err != nil {
		return err
	}
	if c.iv.State != string(negotiation.Stalled) {
		c.iv.State = string(negotiation.Shortlisted)
	}
	state := negotiation.State(c.iv.State)
	now := s.now().UTC()

	slot, err := s.ledger.Propose(ctx, c.iv.InterviewerID, c.iv.ID, ledger.Window{Skip: skip})
	if errors.Is(err, ledger.ErrNoAvailability) {
		t, terr := negotiation.Next(state, negotiation.EventNoAvailability)
		if terr != nil {
			return terr
		}
		s.record(c, t, now)
		retryAt := now.Add(s.policy.RetryBackoff)
		c.iv.NextRetryAt = &retryAt
		c.iv.ResponseDeadline = nil
		c.iv.CandidateConfirmed = false
		c.iv.PendingEvent = ""
		if c.from != negotiation.Stalled {
			candidate, lerr := s.candidateOf(ctx, c)
			if lerr != nil {
				return lerr
			}
			c.send(candidateHandle(candidate), messaging.NoAvailability(candidate.Name))
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("propose slot: %w", err)
	}
	c.claimed = append(c.claimed, slot.ID)

	t, err := negotiation.Next(state, negotiation.EventProposed)
	if err != nil {
		return err
	}
	s.record(c, t, now)
	start, end := slot.Start, slot.End
	deadline := now.Add(s.policy.ResponseWindow)
	c.iv.SlotID = slot.ID
	c.iv.SlotStart = &start
	c.iv.SlotEnd = &end
	c.iv.Attempts++
	c.iv.ResponseDeadline = &deadline
	c.iv.CandidateConfirmed = false
	c.iv.InterviewerConfirmed = false
	c.iv.PendingEvent = ""
	c.iv.NextRetryAt = nil
	c.iv.ReminderCount = 0
	c.iv.LastReminderAt = nil

	candidate, err := s.candidateOf(ctx, c)
	if err != nil {
		return err
	}
	c.sendCritical(candidateHandle(candidate), messaging.Proposal(candidate.Name, start), undoProposal, slot.ID)
	return nil
}

// maybeReassign moves the interview to the least loaded other interviewer
// once the current one has declined too often.
func (s *NegotiationService) maybeReassign(ctx context.Context, c *change) error {
	limit := s.policy.MaxInterviewerRejections
	if limit <= 0 || c.iv.InterviewerRejections < limit {
		return nil
	}
	logger := s.loggerWith(ctx, "reassign", "interview_id", c.iv.ID, "interviewer_id", c.iv.InterviewerID)
	next, ok, err := leastLoadedInterviewer(ctx, s.store, c.iv.InterviewerID)
	if err != nil {
		return err
	}
	c.iv.InterviewerRejections = 0
	c.dirty = true
	if !ok {
		logger.InfoContext(ctx, "no other interviewer available, keeping assignment")
		return nil
	}
	logger.InfoContext(ctx, "interview reassigned", "new_interviewer_id", next.ID)
	c.iv.InterviewerID = next.ID
	c.interviewer = &next
	return nil
}

// enter runs the entry actions of the state a transition reached.
func (s *NegotiationService) enter(ctx context.Context, c *change, t negotiation.Transition, now time.Time) error {
	logger := s.loggerWith(ctx, "enter", "interview_id", c.iv.ID, "state", t.To)

	switch t.To {
	case negotiation.Shortlisted:
		c.iv.CandidateConfirmed = false
		c.iv.ResponseDeadline = nil
		c.iv.PendingEvent = ""
		c.iv.NextRetryAt = &now

	case negotiation.AwaitingInterviewer:
		deadline := now.Add(s.policy.ResponseWindow)
		c.iv.CandidateConfirmed = true
		c.iv.ResponseDeadline = &deadline
		c.iv.PendingEvent = ""
		c.iv.NextRetryAt = nil
		c.iv.ReminderCount = 0
		c.iv.LastReminderAt = nil

		candidate, interviewer, err := s.participants(ctx, c)
		if err != nil {
			return err
		}
		if !c.quiet {
			c.send(candidateHandle(candidate), messaging.CandidateAcknowledged(candidate.Name, *c.iv.SlotStart))
		}
		c.sendCritical(interviewerHandle(interviewer),
			messaging.InterviewerRequest(interviewer.Name, candidate.Name, *c.iv.SlotStart, interviewerLocation(interviewer)),
			undoInterviewerRequest, c.iv.SlotID)

	case negotiation.Scheduled:
		c.iv.InterviewerConfirmed = true
		c.iv.MeetingLink = c.link
		c.iv.ResponseDeadline = nil
		c.iv.PendingEvent = ""
		c.iv.NextRetryAt = nil

		candidate, interviewer, err := s.participants(ctx, c)
		if err != nil {
			return err
		}
		c.send(candidateHandle(candidate), messaging.ScheduledCandidate(candidate.Name, *c.iv.SlotStart, c.link))
		c.send(interviewerHandle(interviewer),
			messaging.ScheduledInterviewer(interviewer.Name, candidate.Name, *c.iv.SlotStart, interviewerLocation(interviewer), c.link))

	case negotiation.AwaitingFeedback:
		deadline := now.Add(s.policy.FeedbackWindow)
		c.iv.ResponseDeadline = &deadline
		c.iv.ReminderCount = 0
		c.iv.LastReminderAt = nil
		if c.quiet {
			return nil
		}
		candidate, interviewer, err := s.participants(ctx, c)
		if err != nil {
			return err
		}
		c.send(feedbackHandle(interviewer),
			messaging.FeedbackRequest(interviewer.Name, candidate.Name, slotStartOr(c.iv, now), interviewerLocation(interviewer)))

	case negotiation.Completed:
		return s.recordFeedback(ctx, c, now)

	case negotiation.CompletedUnresolved:
		c.iv.ResponseDeadline = nil
		logger.WarnContext(ctx, "feedback never arrived", "needs_human", true)

	case negotiation.Expired:
		c.expired = true
		c.iv.ResponseDeadline = nil
		c.iv.NextRetryAt = nil
		c.iv.PendingEvent = ""
		logger.ErrorContext(ctx, "interview expired", "needs_human", true, "attempts", c.iv.Attempts,
			"retries", c.iv.Retries, "error_kind", ErrorKind(ErrMaxRetriesExceeded))
		candidate, err := s.candidateOf(ctx, c)
		if err != nil {
			return err
		}
		c.send(candidateHandle(candidate), messaging.Expired(candidate.Name))

	case negotiation.Cancelled:
		c.iv.ResponseDeadline = nil
		c.iv.NextRetryAt = nil
		c.iv.PendingEvent = ""
		candidate, interviewer, err := s.participants(ctx, c)
		if err != nil {
			return err
		}
		var start *time.Time
		if t.From == negotiation.AwaitingInterviewer || t.From == negotiation.Scheduled || t.From == negotiation.SlotProposed {
			start = c.releasedStart
		}
		c.send(candidateHandle(candidate), messaging.Cancelled(candidate.Name, start))
		if t.From == negotiation.AwaitingInterviewer || t.From == negotiation.Scheduled {
			c.send(interviewerHandle(interviewer), messaging.Cancelled(interviewer.Name, start))
		}
	}
	return nil
}

func (s *NegotiationService) recordFeedback(ctx context.Context, c *change, now time.Time) error {
	fb := c.feedback
	if fb == nil {
		return fmt.Errorf("feedback payload missing")
	}
	if err := s.addNote(ctx, c, fb, false, now); err != nil {
		return err
	}
	c.iv.FeedbackText = fb.Text
	c.iv.FeedbackOutcome = string(fb.Outcome)
	c.iv.ResponseDeadline = nil

	switch fb.Outcome {
	case negotiation.OutcomeSelected:
		c.candidateStatus = persistence.CandidateSelected
	case negotiation.OutcomeRejected:
		c.candidateStatus = persistence.CandidateRejected
	case negotiation.OutcomeHold:
		c.candidateStatus = persistence.CandidateOnHold
	}
	if fb.Outcome == negotiation.OutcomeSelected || fb.Outcome == negotiation.OutcomeRejected {
		candidate, err := s.candidateOf(ctx, c)
		if err != nil {
			return err
		}
		c.send(candidateHandle(candidate), messaging.Outcome(candidate.Name, string(fb.Outcome)))
	}
	return nil
}

// addNote stores a feedback note. A note already stored for the same source
// is not an error.
func (s *NegotiationService) addNote(ctx context.Context, c *change, fb *negotiation.Feedback, supplemental bool, now time.Time) error {
	note := persistence.FeedbackNote{
		ID:           s.idGenerator(),
		InterviewID:  c.iv.ID,
		SourceID:     fb.SourceID,
		Outcome:      string(fb.Outcome),
		Summary:      fb.Summary,
		Text:         fb.Text,
		Supplemental: supplemental,
		ReceivedAt:   now,
		CreatedAt:    now,
	}
	err := s.store.AddFeedbackNote(ctx, note)
	if errors.Is(err, persistence.ErrDuplicate) {
		return nil
	}
	return err
}

func (s *NegotiationService) candidateOf(ctx context.Context, c *change) (persistence.Candidate, error) {
	if c.candidate != nil && c.candidate.ID == c.iv.CandidateID {
		return *c.candidate, nil
	}
	candidate, err := s.store.GetCandidate(ctx, c.iv.CandidateID)
	if err != nil {
		return persistence.Candidate{}, fmt.Errorf("load candidate %s: %w", c.iv.CandidateID, mapRepoError(err))
	}
	c.candidate = &candidate
	return candidate, nil
}

func (s *NegotiationService) interviewerOf(ctx context.Context, c *change) (persistence.Interviewer, error) {
	if c.interviewer != nil && c.interviewer.ID == c.iv.InterviewerID {
		return *c.interviewer, nil
	}
	interviewer, err := s.store.GetInterviewer(ctx, c.iv.InterviewerID)
	if err != nil {
		return persistence.Interviewer{}, fmt.Errorf("load interviewer %s: %w", c.iv.InterviewerID, mapRepoError(err))
	}
	c.interviewer = &interviewer
	return interviewer, nil
}

func (s *NegotiationService) participants(ctx context.Context, c *change) (persistence.Candidate, persistence.Interviewer, error) {
	candidate, err := s.candidateOf(ctx, c)
	if err != nil {
		return persistence.Candidate{}, persistence.Interviewer{}, err
	}
	interviewer, err := s.interviewerOf(ctx, c)
	if err != nil {
		return persistence.Candidate{}, persistence.Interviewer{}, err
	}
	return candidate, interviewer, nil
}

func candidateHandle(c persistence.Candidate) string {
	if c.Phone != "" {
		return c.Phone
	}
	return c.Email
}

func interviewerHandle(iv persistence.Interviewer) string {
	if iv.Phone != "" {
		return iv.Phone
	}
	return iv.Email
}

func feedbackHandle(iv persistence.Interviewer) string {
	if iv.Email != "" {
		return iv.Email
	}
	return iv.Phone
}

func interviewerLocation(iv persistence.Interviewer) *time.Location {
	if iv.TimeZone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(iv.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func slotStartOr(iv persistence.Interview, fallback time.Time) time.Time {
	if iv.SlotStart != nil {
		return *iv.SlotStart
	}
	return fallback
}

// leastLoadedInterviewer picks the active interviewer with the fewest open
// interviews, ties broken by id. exclude is never picked.
func leastLoadedInterviewer(ctx context.Context, store NegotiationStore, exclude string) (persistence.Interviewer, bool, error) {
	interviewers, err := store.ListInterviewers(ctx, true)
	if err != nil {
		return persistence.Interviewer{}, false, err
	}
	var (
		best     persistence.Interviewer
		bestLoad = -1
	)
	for _, interviewer := range interviewers {
		if interviewer.ID == exclude || len(interviewer.Availability) == 0 {
			continue
		}
		open, err := store.ListInterviews(ctx, persistence.InterviewFilter{
			States:        negotiation.NonTerminal(),
			InterviewerID: interviewer.ID,
		})
		if err != nil {
			return persistence.Interviewer{}, false, err
		}
		load := len(open)
		if bestLoad < 0 || load < bestLoad || (load == bestLoad && interviewer.ID < best.ID) {
			best, bestLoad = interviewer, load
		}
	}
	return best, bestLoad >= 0, nil
}
