package negotiation

import "strings"

// Party identifies who sent a message.
type Party string

const (
	PartyCandidate   Party = "candidate"
	PartyInterviewer Party = "interviewer"
)

// IntentKind is the closed set of things a message can mean.
type IntentKind int

const (
	IntentUnrecognized IntentKind = iota
	IntentConfirm
	IntentReject
	IntentRequestReschedule
	IntentProvideFeedback
)

func (k IntentKind) String() string {
	switch k {
	case IntentConfirm:
		return "confirm"
	case IntentReject:
		return "reject"
	case IntentRequestReschedule:
		return "request_reschedule"
	case IntentProvideFeedback:
		return "provide_feedback"
	default:
		return "unrecognized"
	}
}

// Outcome is the interviewer's recommendation.
type Outcome string

const (
	OutcomeSelected Outcome = "selected"
	OutcomeRejected Outcome = "rejected"
	OutcomeHold     Outcome = "hold"
	OutcomeUnclear  Outcome = "unclear"
)

// ParseOutcome normalizes free text labels. Unknown labels are unclear.
func ParseOutcome(s string) Outcome {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "selected", "select", "hire", "strong_hire", "pass":
		return OutcomeSelected
	case "rejected", "reject", "no_hire", "fail":
		return OutcomeRejected
	case "hold", "on_hold", "maybe":
		return OutcomeHold
	default:
		return OutcomeUnclear
	}
}

// Feedback is the payload of IntentProvideFeedback.
type Feedback struct {
	Outcome Outcome
	Summary string
	Text    string
	// SourceID identifies the delivering item so redeliveries are recognized.
	SourceID string
}

// Intent is one normalized inbound message. It is consumed once.
type Intent struct {
	Party       Party
	InterviewID string
	Kind        IntentKind
	Feedback    *Feedback
	Confidence  float64
	Raw         string
}

// Event maps the intent to the transition it requests. The second result is
// false when the intent requests no transition and needs clarification.
func (i Intent) Event() (Event, bool) {
	switch i.Kind {
	case IntentConfirm:
		switch i.Party {
		case PartyCandidate:
			return EventCandidateConfirmed, true
		case PartyInterviewer:
			return EventInterviewerConfirmed, true
		}
	case IntentReject, IntentRequestReschedule:
		switch i.Party {
		case PartyCandidate:
			return EventCandidateRejected, true
		case PartyInterviewer:
			return EventInterviewerRejected, true
		}
	case IntentProvideFeedback:
		if i.Party == PartyInterviewer && i.Feedback != nil {
			return EventFeedbackReceived, true
		}
	case IntentUnrecognized:
	}
	return "", false
}
