package persistence

import (
	"context"
	"time"
)

// CandidateFilter narrows candidate queries.
type CandidateFilter struct {
	Status   string
	MinScore int
	Limit    int
}

// CandidateRepository stores applicants.
type CandidateRepository interface {
	CreateCandidate(ctx context.Context, candidate Candidate) error
	UpdateCandidate(ctx context.Context, candidate Candidate) error
	GetCandidate(ctx context.Context, id string) (Candidate, error)
	GetCandidateByPhone(ctx context.Context, phone string) (Candidate, error)
	// ListCandidates orders by rank ascending then score descending.
	ListCandidates(ctx context.Context, filter CandidateFilter) ([]Candidate, error)
}

// InterviewerRepository stores interviewers and their weekly availability.
type InterviewerRepository interface {
	CreateInterviewer(ctx context.Context, interviewer Interviewer) error
	UpdateInterviewer(ctx context.Context, interviewer Interviewer) error
	GetInterviewer(ctx context.Context, id string) (Interviewer, error)
	// GetInterviewerByContact matches either the phone number or the email address.
	GetInterviewerByContact(ctx context.Context, handle string) (Interviewer, error)
	ListInterviewers(ctx context.Context, activeOnly bool) ([]Interviewer, error)
}

// SlotFilter narrows slot queries. Zero values are ignored.
type SlotFilter struct {
	InterviewerID string
	Statuses      []SlotStatus
	// StartsBefore and EndsAfter select slots intersecting a range.
	StartsBefore *time.Time
	EndsAfter    *time.Time
	// HoldExpiredAt selects held slots whose hold expired at or before the instant.
	HoldExpiredAt *time.Time
}

// SlotRepository persists ledger slots. Every mutating call is a conditional
// write so that concurrent claimants cannot both succeed.
type SlotRepository interface {
	GetSlot(ctx context.Context, id string) (Slot, error)
	ListSlots(ctx context.Context, filter SlotFilter) ([]Slot, error)
	// ClaimSlot inserts the slot as held, or re-holds an existing open row.
	// It returns ErrConflict when the slot is already held or booked.
	ClaimSlot(ctx context.Context, slot Slot) error
	// BookSlot moves a slot held by holderID to booked.
	BookSlot(ctx context.Context, id, holderID string, at time.Time) error
	// RenewHold moves the hold expiry of a slot held by holderID.
	RenewHold(ctx context.Context, id, holderID string, until, at time.Time) error
	// ReleaseSlot returns a slot to open regardless of its current state.
	ReleaseSlot(ctx context.Context, id string, at time.Time) error
}

// InterviewFilter narrows interview queries. Zero values are ignored.
type InterviewFilter struct {
	States          []string
	CandidateID     string
	InterviewerID   string
	BatchID         string
	DeadlineAfter   *time.Time
	DeadlineBefore  *time.Time
	RetryDueBy      *time.Time
	SlotStartFrom   *time.Time
	SlotStartTo     *time.Time
	TransitionBy    *time.Time
	IncludeArchived bool
	Limit           int
}

// InterviewRepository stores negotiation records.
type InterviewRepository interface {
	CreateInterview(ctx context.Context, interview Interview) error
	GetInterview(ctx context.Context, id string) (Interview, error)
	// UpdateInterview writes the record only when the stored version equals
	// interview.Version and increments it; otherwise it returns ErrConflict.
	UpdateInterview(ctx context.Context, interview Interview) (Interview, error)
	ListInterviews(ctx context.Context, filter InterviewFilter) ([]Interview, error)
	MarkArchived(ctx context.Context, id string, at time.Time) error
}

// FeedbackRepository stores feedback notes. AddFeedbackNote returns
// ErrDuplicate when a note with the same SourceID exists for the interview.
type FeedbackRepository interface {
	AddFeedbackNote(ctx context.Context, note FeedbackNote) error
	ListFeedbackNotes(ctx context.Context, interviewID string) ([]FeedbackNote, error)
}

// BatchRepository stores shortlisting batches.
type BatchRepository interface {
	CreateBatch(ctx context.Context, batch Batch) error
	GetBatch(ctx context.Context, id string) (Batch, error)
}

// InboxRepository stores inbound asynchronous items until reconciled.
type InboxRepository interface {
	// EnqueueInboxItem returns ErrDuplicate when the item id was seen before.
	EnqueueInboxItem(ctx context.Context, item InboxItem) error
	ListPendingInboxItems(ctx context.Context, limit int) ([]InboxItem, error)
	MarkInboxItemConsumed(ctx context.Context, id string, at time.Time) error
}

// Store aggregates every repository offered by a backend.
type Store interface {
	CandidateRepository
	InterviewerRepository
	SlotRepository
	InterviewRepository
	FeedbackRepository
	BatchRepository
	InboxRepository
}
