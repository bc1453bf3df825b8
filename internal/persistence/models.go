package persistence

import "time"

// Candidate represents an applicant that may be invited to interview.
type Candidate struct {
	ID        string
	Name      string
	Email     string
	Phone     string
	Score     int
	Rank      int
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Candidate statuses.
const (
	CandidateNew          = "new"
	CandidateInterviewing = "interviewing"
	CandidateSelected     = "selected"
	CandidateRejected     = "rejected"
	CandidateOnHold       = "on_hold"
)

// AvailabilityWindow is a recurring weekly range in the interviewer's time zone.
// Minutes are counted from local midnight.
type AvailabilityWindow struct {
	Weekday     time.Weekday
	StartMinute int
	EndMinute   int
}

// Interviewer represents a staff member that conducts interviews.
type Interviewer struct {
	ID           string
	Name         string
	Email        string
	Phone        string
	TimeZone     string
	Active       bool
	Availability []AvailabilityWindow
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SlotStatus is the ledger state of a time slot.
type SlotStatus string

const (
	SlotOpen   SlotStatus = "open"
	SlotHeld   SlotStatus = "held"
	SlotBooked SlotStatus = "booked"
)

// Slot is a concrete interval on an interviewer's calendar. Open slots are
// implicit; only claimed or previously claimed intervals are stored.
type Slot struct {
	ID            string
	InterviewerID string
	Start         time.Time
	End           time.Time
	Status        SlotStatus
	HolderID      string
	HoldExpiresAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Interview is the negotiation record linking one candidate to one interviewer.
type Interview struct {
	ID            string
	BatchID       string
	CandidateID   string
	InterviewerID string
	State         string

	SlotID    string
	SlotStart *time.Time
	SlotEnd   *time.Time

	CandidateConfirmed   bool
	InterviewerConfirmed bool

	Attempts              int
	Retries               int
	InterviewerRejections int
	ReminderCount         int

	PendingEvent     string
	ResponseDeadline *time.Time
	NextRetryAt      *time.Time
	LastReminderAt   *time.Time

	MeetingLink     string
	FeedbackText    string
	FeedbackOutcome string

	CreatedAt        time.Time
	LastTransitionAt time.Time
	UpdatedAt        time.Time
	ArchivedAt       *time.Time

	// Version increments on every successful update and guards concurrent writers.
	Version int
}

// FeedbackNote is an interviewer remark attached to an interview. The first
// parsed note determines the outcome; later ones are supplementary.
type FeedbackNote struct {
	ID           string
	InterviewID  string
	SourceID     string
	Outcome      string
	Summary      string
	Text         string
	Supplemental bool
	ReceivedAt   time.Time
	CreatedAt    time.Time
}

// Batch groups the interviews created by a single shortlisting request.
type Batch struct {
	ID           string
	RequestedBy  string
	MinScore     int
	TopN         int
	InterviewIDs []string
	Skipped      []string
	CreatedAt    time.Time
}

// InboxItem is an inbound asynchronous message awaiting reconciliation.
type InboxItem struct {
	ID         string
	Channel    string
	Sender     string
	Subject    string
	Body       string
	ReceivedAt time.Time
	ConsumedAt *time.Time
	CreatedAt  time.Time
}
