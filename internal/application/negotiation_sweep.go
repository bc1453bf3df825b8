package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/interview-scheduler/internal/messaging"
	"github.com/example/interview-scheduler/internal/negotiation"
	"github.com/example/interview-scheduler/internal/persistence"
)

// The methods below are the sweep's actions. Each selects its interviews with
// a cheap query, then re-checks the condition under the interview lock, so a
// concurrent handler that got there first turns the action into a no-op.
// They return the number of interviews changed.

// ExpireHolds reopens slots whose hold lapsed and moves their holders on.
func (s *NegotiationService) ExpireHolds(ctx context.Context) (int, error) {
	now := s.now().UTC()
	released, err := s.ledger.ExpireStaleHolds(ctx, now)
	var errs []error
	if err != nil {
		errs = append(errs, err)
	}

	n := 0
	for _, slot := range released {
		if ctx.Err() != nil {
			break
		}
		c, err := s.mutate(ctx, slot.HolderID, func(ctx context.Context, c *change) error {
			if c.iv.SlotID != slot.ID {
				return nil
			}
			return s.fire(ctx, c, negotiation.EventHoldExpired)
		})
		n += s.tally(ctx, "ExpireHolds", slot.HolderID, c, err, &errs)
	}
	s.metrics.SweepAction(ctx, "expire_holds", n)
	return n, errors.Join(errs...)
}

// ResponseTimeouts moves interviews whose party did not answer in time.
// Silence from an interviewer counts as a rejection.
func (s *NegotiationService) ResponseTimeouts(ctx context.Context) (int, error) {
	now := s.now().UTC()
	due, err := s.store.ListInterviews(ctx, persistence.InterviewFilter{
		States:         []string{string(negotiation.SlotProposed), string(negotiation.AwaitingInterviewer)},
		DeadlineBefore: &now,
	})
	if err != nil {
		return 0, err
	}
	return s.each(ctx, "response_timeouts", due, func(ctx context.Context, c *change) error {
		state := negotiation.State(c.iv.State)
		if (state != negotiation.SlotProposed && state != negotiation.AwaitingInterviewer) ||
			c.iv.ResponseDeadline == nil || c.iv.ResponseDeadline.After(now) || c.iv.PendingEvent != "" {
			return nil
		}
		return s.fire(ctx, c, negotiation.EventResponseTimeout)
	})
}

// ElapsedInterviews moves Scheduled interviews whose slot ended to
// AwaitingFeedback and asks the interviewer for feedback.
func (s *NegotiationService) ElapsedInterviews(ctx context.Context) (int, error) {
	now := s.now().UTC()
	due, err := s.store.ListInterviews(ctx, persistence.InterviewFilter{
		States:      []string{string(negotiation.Scheduled)},
		SlotStartTo: &now,
	})
	if err != nil {
		return 0, err
	}
	return s.each(ctx, "elapsed_interviews", due, func(ctx context.Context, c *change) error {
		if c.iv.State != string(negotiation.Scheduled) || c.iv.SlotEnd == nil || c.iv.SlotEnd.After(now) {
			return nil
		}
		return s.fire(ctx, c, negotiation.EventInterviewElapsed)
	})
}

// FeedbackTimeouts closes interviews whose feedback never arrived.
func (s *NegotiationService) FeedbackTimeouts(ctx context.Context) (int, error) {
	now := s.now().UTC()
	due, err := s.store.ListInterviews(ctx, persistence.InterviewFilter{
		States:         []string{string(negotiation.AwaitingFeedback)},
		DeadlineBefore: &now,
	})
	if err != nil {
		return 0, err
	}
	return s.each(ctx, "feedback_timeouts", due, func(ctx context.Context, c *change) error {
		if c.iv.State != string(negotiation.AwaitingFeedback) || c.iv.ResponseDeadline == nil || c.iv.ResponseDeadline.After(now) {
			return nil
		}
		return s.fire(ctx, c, negotiation.EventFeedbackTimeout)
	})
}

// Reminders nudges parties whose deadline is near. Proposals and interviewer
// requests are reminded within ReminderLead of their deadline; feedback is
// reminded throughout its window. Each interview gets at most MaxReminders,
// spaced by ReminderInterval.
func (s *NegotiationService) Reminders(ctx context.Context) (int, error) {
	now := s.now().UTC()
	lead := now.Add(s.policy.ReminderLead)
	pending, err := s.store.ListInterviews(ctx, persistence.InterviewFilter{
		States:         []string{string(negotiation.SlotProposed), string(negotiation.AwaitingInterviewer)},
		DeadlineAfter:  &now,
		DeadlineBefore: &lead,
	})
	if err != nil {
		return 0, err
	}
	feedback, err := s.store.ListInterviews(ctx, persistence.InterviewFilter{
		States:        []string{string(negotiation.AwaitingFeedback)},
		DeadlineAfter: &now,
	})
	if err != nil {
		return 0, err
	}

	return s.each(ctx, "reminders", append(pending, feedback...), func(ctx context.Context, c *change) error {
		if !s.reminderDue(c.iv, now) {
			return nil
		}
		candidate, interviewer, err := s.participants(ctx, c)
		if err != nil {
			return err
		}
		loc := interviewerLocation(interviewer)
		switch negotiation.State(c.iv.State) {
		case negotiation.SlotProposed:
			if c.iv.SlotStart == nil || c.iv.PendingEvent != "" {
				return nil
			}
			c.send(candidateHandle(candidate), messaging.CandidateReminder(candidate.Name, *c.iv.SlotStart, *c.iv.ResponseDeadline))
		case negotiation.AwaitingInterviewer:
			if c.iv.SlotStart == nil {
				return nil
			}
			c.send(interviewerHandle(interviewer), messaging.InterviewerReminder(interviewer.Name, candidate.Name, *c.iv.SlotStart, loc))
		case negotiation.AwaitingFeedback:
			c.send(feedbackHandle(interviewer), messaging.FeedbackRequest(interviewer.Name, candidate.Name, slotStartOr(c.iv, now), loc))
		default:
			return nil
		}
		c.iv.ReminderCount++
		c.iv.LastReminderAt = &now
		c.dirty = true
		return nil
	})
}

func (s *NegotiationService) reminderDue(iv persistence.Interview, now time.Time) bool {
	if iv.ResponseDeadline == nil || !iv.ResponseDeadline.After(now) {
		return false
	}
	if iv.ReminderCount >= s.policy.MaxReminders {
		return false
	}
	if iv.LastReminderAt != nil && now.Sub(*iv.LastReminderAt) < s.policy.ReminderInterval {
		return false
	}
	if iv.State == string(negotiation.AwaitingFeedback) {
		return true
	}
	return iv.ResponseDeadline.Sub(now) <= s.policy.ReminderLead
}

// RetryDue re-proposes Shortlisted and Stalled interviews whose retry time
// arrived and replays confirmations whose follow-up call failed.
func (s *NegotiationService) RetryDue(ctx context.Context) (int, error) {
	now := s.now().UTC()
	due, err := s.store.ListInterviews(ctx, persistence.InterviewFilter{
		States: []string{
			string(negotiation.Shortlisted),
			string(negotiation.Stalled),
			string(negotiation.SlotProposed),
			string(negotiation.AwaitingInterviewer),
		},
		RetryDueBy: &now,
	})
	if err != nil {
		return 0, err
	}

	var errs []error
	n := 0
	for _, iv := range due {
		if ctx.Err() != nil {
			break
		}
		if iv.PendingEvent == string(negotiation.EventInterviewerConfirmed) {
			replayed, err := s.confirmInterviewer(ctx, iv.ID)
			if err != nil {
				errs = append(errs, fmt.Errorf("interview %s: %w", iv.ID, err))
				continue
			}
			if replayed.State != iv.State {
				n++
			}
			continue
		}

		c, err := s.mutate(ctx, iv.ID, func(ctx context.Context, c *change) error {
			if c.iv.NextRetryAt == nil || c.iv.NextRetryAt.After(now) {
				return nil
			}
			switch negotiation.State(c.iv.State) {
			case negotiation.Shortlisted, negotiation.Stalled:
				c.iv.NextRetryAt = nil
				return s.proposeNext(ctx, c, nil)
			case negotiation.SlotProposed:
				if c.iv.PendingEvent == string(negotiation.EventCandidateConfirmed) {
					c.quiet = true
					return s.fire(ctx, c, negotiation.EventCandidateConfirmed)
				}
			}
			c.iv.NextRetryAt = nil
			c.dirty = true
			return nil
		})
		n += s.tally(ctx, "RetryDue", iv.ID, c, err, &errs)
	}
	s.metrics.SweepAction(ctx, "retry_due", n)
	return n, errors.Join(errs...)
}

// each runs fn for every listed interview under its lock. A failure is
// collected and the scan moves on.
func (s *NegotiationService) each(ctx context.Context, phase string, interviews []persistence.Interview, fn func(context.Context, *change) error) (int, error) {
	var errs []error
	n := 0
	for _, iv := range interviews {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		c, err := s.mutate(ctx, iv.ID, fn)
		n += s.tally(ctx, phase, iv.ID, c, err, &errs)
	}
	s.metrics.SweepAction(ctx, phase, n)
	return n, errors.Join(errs...)
}

func (s *NegotiationService) tally(ctx context.Context, phase, id string, c *change, err error, errs *[]error) int {
	if errors.Is(err, ErrNotFound) {
		return 0
	}
	if err != nil {
		s.loggerWith(ctx, phase, "interview_id", id).WarnContext(ctx, "sweep action failed", "error", err, "error_kind", ErrorKind(err))
		*errs = append(*errs, fmt.Errorf("interview %s: %w", id, err))
	}
	if c != nil && c.dirty {
		return 1
	}
	return 0
}
