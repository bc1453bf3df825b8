package application

import (
	"time"

	"github.com/example/interview-scheduler/internal/persistence"
)

// Policy bounds every negotiation. Zero values fall back to DefaultPolicy.
type Policy struct {
	// ResponseWindow is how long a party has to answer a proposal or request.
	ResponseWindow time.Duration
	// FeedbackWindow is how long an interviewer has to send feedback.
	FeedbackWindow   time.Duration
	ReminderLead     time.Duration
	ReminderInterval time.Duration
	// RetryBackoff delays the next attempt after an external failure or a
	// lookahead with no free slot.
	RetryBackoff    time.Duration
	ExternalTimeout time.Duration

	MaxAttempts int
	MaxRetries  int
	// MaxInterviewerRejections moves the interview to another interviewer
	// once reached. Zero disables reassignment.
	MaxInterviewerRejections int
	MaxReminders             int
}

// DefaultPolicy returns the limits used when none are configured.
func DefaultPolicy() Policy {
	return Policy{
		ResponseWindow:           24 * time.Hour,
		FeedbackWindow:           72 * time.Hour,
		ReminderLead:             6 * time.Hour,
		ReminderInterval:         2 * time.Hour,
		RetryBackoff:             30 * time.Minute,
		ExternalTimeout:          10 * time.Second,
		MaxAttempts:              5,
		MaxRetries:               10,
		MaxInterviewerRejections: 2,
		MaxReminders:             3,
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.ResponseWindow <= 0 {
		p.ResponseWindow = d.ResponseWindow
	}
	if p.FeedbackWindow <= 0 {
		p.FeedbackWindow = d.FeedbackWindow
	}
	if p.ReminderLead <= 0 {
		p.ReminderLead = d.ReminderLead
	}
	if p.ReminderInterval <= 0 {
		p.ReminderInterval = d.ReminderInterval
	}
	if p.RetryBackoff <= 0 {
		p.RetryBackoff = d.RetryBackoff
	}
	if p.ExternalTimeout <= 0 {
		p.ExternalTimeout = d.ExternalTimeout
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.MaxInterviewerRejections < 0 {
		p.MaxInterviewerRejections = 0
	}
	if p.MaxReminders < 0 {
		p.MaxReminders = 0
	}
	return p
}

// InterviewDetails is the inspection view of one negotiation.
type InterviewDetails struct {
	Interview   persistence.Interview
	Candidate   persistence.Candidate
	Interviewer persistence.Interviewer
	Slot        *persistence.Slot
	Notes       []persistence.FeedbackNote
}

// ListInterviewsParams filters the interview listing.
type ListInterviewsParams struct {
	State       string
	BatchID     string
	CandidateID string
	Limit       int
}

// ShortlistParams selects candidates for a new batch. Zero MinScore and TopN
// fall back to the service defaults. CandidateIDs, when set, bypasses the
// score query and uses the given ranking as is.
type ShortlistParams struct {
	RequestedBy  string
	MinScore     int
	TopN         int
	CandidateIDs []string
}

// BatchResult reports the interviews a batch created.
type BatchResult struct {
	Batch      persistence.Batch
	Interviews []persistence.Interview
	// Failed lists interviews created but whose first proposal failed; the
	// sweep retries them.
	Failed []string
}

// CandidateInput captures caller provided candidate fields.
type CandidateInput struct {
	Name  string
	Email string
	Phone string
	Score int
	Rank  int
}

// InterviewerInput captures caller provided interviewer fields.
type InterviewerInput struct {
	Name         string
	Email        string
	Phone        string
	TimeZone     string
	Active       *bool
	Availability []persistence.AvailabilityWindow
}

// InboundMessage is one conversational message delivered by the chat webhook.
type InboundMessage struct {
	DeliveryID string
	From       string
	Body       string
}

// InboundResult reports how an inbound message was handled.
type InboundResult struct {
	Duplicate   bool
	// Deferred is set when an outbound step failed and was left to the sweep.
	Deferred    bool
	Party       string
	InterviewID string
	Intent      string
	State       string
}

// PastInterviewParams creates an interview whose slot already ended, for
// exercising the feedback path by hand.
type PastInterviewParams struct {
	CandidateID   string
	InterviewerID string
	StartedAgo    time.Duration
}
