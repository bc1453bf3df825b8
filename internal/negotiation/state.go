// Package negotiation defines the interview lifecycle: its states, the events
// that move it, and the pure transition table. It performs no I/O.
package negotiation

import (
	"errors"
	"fmt"
)

// State is the lifecycle position of an interview.
type State string

const (
	Shortlisted         State = "shortlisted"
	Stalled             State = "stalled"
	SlotProposed        State = "slot_proposed"
	AwaitingInterviewer State = "awaiting_interviewer"
	Scheduled           State = "scheduled"
	AwaitingFeedback    State = "awaiting_feedback"
	Completed           State = "completed"
	CompletedUnresolved State = "completed_unresolved"
	Expired             State = "expired"
	Cancelled           State = "cancelled"
)

// States lists every state in lifecycle order.
var States = []State{
	Shortlisted, Stalled, SlotProposed, AwaitingInterviewer, Scheduled,
	AwaitingFeedback, Completed, CompletedUnresolved, Expired, Cancelled,
}

// Terminal reports whether no further transitions are accepted.
func (s State) Terminal() bool {
	switch s {
	case Completed, CompletedUnresolved, Expired, Cancelled:
		return true
	}
	return false
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	for _, known := range States {
		if s == known {
			return true
		}
	}
	return false
}

// NonTerminal returns the states still under negotiation, as strings for
// repository filters.
func NonTerminal() []string {
	out := make([]string, 0, len(States))
	for _, s := range States {
		if !s.Terminal() {
			out = append(out, string(s))
		}
	}
	return out
}

// Event is a transition trigger.
type Event string

const (
	EventProposed             Event = "slot_proposed"
	EventNoAvailability       Event = "no_availability"
	EventCandidateConfirmed   Event = "candidate_confirmed"
	EventCandidateRejected    Event = "candidate_rejected"
	EventHoldExpired          Event = "hold_expired"
	EventInterviewerConfirmed Event = "interviewer_confirmed"
	EventInterviewerRejected  Event = "interviewer_rejected"
	EventResponseTimeout      Event = "response_timeout"
	EventInterviewElapsed     Event = "interview_elapsed"
	EventFeedbackReceived     Event = "feedback_received"
	EventFeedbackTimeout      Event = "feedback_timeout"
	EventRetriesExceeded      Event = "retries_exceeded"
	EventCancelled            Event = "cancelled"
)

var (
	// ErrInvalidTransition is returned when an event is not accepted in the current state.
	ErrInvalidTransition = errors.New("negotiation: invalid transition")
	// ErrUnknownState is returned for states outside the lifecycle.
	ErrUnknownState = errors.New("negotiation: unknown state")
)

// TransitionError carries the rejected pair.
type TransitionError struct {
	From  State
	Event Event
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("negotiation: %s not accepted in state %s", e.Event, e.From)
}

// Unwrap lets errors.Is match ErrInvalidTransition.
func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }
