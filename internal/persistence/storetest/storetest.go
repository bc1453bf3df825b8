// Package storetest holds behaviour tests shared by every persistence.Store
// implementation.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/interview-scheduler/internal/persistence"
)

// Factory returns an empty, ready to use store.
type Factory func(t *testing.T) persistence.Store

var base = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func at(h int) time.Time { return base.Add(time.Duration(h) * time.Hour) }

func ptr(t time.Time) *time.Time { return &t }

// Run executes the shared suite.
func Run(t *testing.T, open Factory) {
	t.Run("Candidates", func(t *testing.T) { testCandidates(t, open(t)) })
	t.Run("Interviewers", func(t *testing.T) { testInterviewers(t, open(t)) })
	t.Run("Slots", func(t *testing.T) { testSlots(t, open(t)) })
	t.Run("Interviews", func(t *testing.T) { testInterviews(t, open(t)) })
	t.Run("FeedbackNotes", func(t *testing.T) { testFeedback(t, open(t)) })
	t.Run("Batches", func(t *testing.T) { testBatches(t, open(t)) })
	t.Run("Inbox", func(t *testing.T) { testInbox(t, open(t)) })
}

func candidate(id, phone string, score, rank int) persistence.Candidate {
	return persistence.Candidate{ID: id, Name: "Name " + id, Email: id + "@example.com", Phone: phone, Score: score, Rank: rank,
		Status: persistence.CandidateNew, CreatedAt: base, UpdatedAt: base}
}

func interviewer(id string, active bool) persistence.Interviewer {
	return persistence.Interviewer{ID: id, Name: "Interviewer " + id, Email: id + "@example.com", Phone: "+9100000" + id,
		TimeZone: "UTC", Active: active, CreatedAt: base, UpdatedAt: base,
		Availability: []persistence.AvailabilityWindow{{Weekday: time.Monday, StartMinute: 600, EndMinute: 1020}}}
}

func seedPeople(t *testing.T, s persistence.Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.CreateCandidate(ctx, candidate("c1", "+919800000001", 90, 1)))
	require.NoError(t, s.CreateCandidate(ctx, candidate("c2", "+919800000002", 80, 2)))
	require.NoError(t, s.CreateInterviewer(ctx, interviewer("i1", true)))
}

func testCandidates(t *testing.T, s persistence.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateCandidate(ctx, candidate("c1", "+919800000001", 90, 2)))
	require.NoError(t, s.CreateCandidate(ctx, candidate("c2", "+919800000002", 70, 3)))
	require.NoError(t, s.CreateCandidate(ctx, candidate("c3", "+919800000003", 85, 1)))

	assert.ErrorIs(t, s.CreateCandidate(ctx, candidate("c1", "+919800000009", 1, 1)), persistence.ErrDuplicate)
	assert.ErrorIs(t, s.CreateCandidate(ctx, candidate("c9", "+919800000001", 1, 1)), persistence.ErrDuplicate)

	got, err := s.GetCandidateByPhone(ctx, "+919800000002")
	require.NoError(t, err)
	assert.Equal(t, "c2", got.ID)
	assert.True(t, got.CreatedAt.Equal(base))

	_, err = s.GetCandidate(ctx, "missing")
	assert.ErrorIs(t, err, persistence.ErrNotFound)

	list, err := s.ListCandidates(ctx, persistence.CandidateFilter{MinScore: 75, Status: persistence.CandidateNew})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "c3", list[0].ID)
	assert.Equal(t, "c1", list[1].ID)

	list, err = s.ListCandidates(ctx, persistence.CandidateFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, list, 1)

	got.Status = persistence.CandidateInterviewing
	require.NoError(t, s.UpdateCandidate(ctx, got))
	list, err = s.ListCandidates(ctx, persistence.CandidateFilter{Status: persistence.CandidateInterviewing})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "c2", list[0].ID)

	assert.ErrorIs(t, s.UpdateCandidate(ctx, candidate("nope", "", 0, 0)), persistence.ErrNotFound)
}

func testInterviewers(t *testing.T, s persistence.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateInterviewer(ctx, interviewer("i1", true)))
	require.NoError(t, s.CreateInterviewer(ctx, interviewer("i2", false)))
	assert.ErrorIs(t, s.CreateInterviewer(ctx, interviewer("i1", true)), persistence.ErrDuplicate)

	byEmail, err := s.GetInterviewerByContact(ctx, "I1@EXAMPLE.COM")
	require.NoError(t, err)
	assert.Equal(t, "i1", byEmail.ID)
	require.Len(t, byEmail.Availability, 1)
	assert.Equal(t, time.Monday, byEmail.Availability[0].Weekday)
	assert.Equal(t, 1020, byEmail.Availability[0].EndMinute)

	byPhone, err := s.GetInterviewerByContact(ctx, "+9100000i2")
	require.NoError(t, err)
	assert.Equal(t, "i2", byPhone.ID)

	_, err = s.GetInterviewerByContact(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, persistence.ErrNotFound)

	active, err := s.ListInterviewers(ctx, true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "i1", active[0].ID)

	all, err := s.ListInterviewers(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	byPhone.Active = true
	byPhone.Availability = nil
	require.NoError(t, s.UpdateInterviewer(ctx, byPhone))
	reloaded, err := s.GetInterviewer(ctx, "i2")
	require.NoError(t, err)
	assert.True(t, reloaded.Active)
	assert.Empty(t, reloaded.Availability)
}

func testSlots(t *testing.T, s persistence.Store) {
	ctx := context.Background()
	seedPeople(t, s)

	slot := persistence.Slot{ID: "s1", InterviewerID: "i1", Start: at(25), End: at(25).Add(30 * time.Minute),
		HolderID: "iv-a", HoldExpiresAt: ptr(at(2)), CreatedAt: base, UpdatedAt: base}
	require.NoError(t, s.ClaimSlot(ctx, slot))

	rival := slot
	rival.HolderID = "iv-b"
	assert.ErrorIs(t, s.ClaimSlot(ctx, rival), persistence.ErrConflict)

	got, err := s.GetSlot(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, persistence.SlotHeld, got.Status)
	assert.Equal(t, "iv-a", got.HolderID)
	require.NotNil(t, got.HoldExpiresAt)
	assert.True(t, got.HoldExpiresAt.Equal(at(2)))

	expired, err := s.ListSlots(ctx, persistence.SlotFilter{HoldExpiredAt: ptr(at(3))})
	require.NoError(t, err)
	require.Len(t, expired, 1)
	expired, err = s.ListSlots(ctx, persistence.SlotFilter{HoldExpiredAt: ptr(at(1))})
	require.NoError(t, err)
	assert.Empty(t, expired)

	assert.ErrorIs(t, s.RenewHold(ctx, "s1", "iv-b", at(5), at(1)), persistence.ErrConflict)
	require.NoError(t, s.RenewHold(ctx, "s1", "iv-a", at(5), at(1)))

	assert.ErrorIs(t, s.BookSlot(ctx, "s1", "iv-b", at(1)), persistence.ErrConflict)
	assert.ErrorIs(t, s.BookSlot(ctx, "missing", "iv-a", at(1)), persistence.ErrNotFound)
	require.NoError(t, s.BookSlot(ctx, "s1", "iv-a", at(1)))

	got, err = s.GetSlot(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, persistence.SlotBooked, got.Status)
	assert.Nil(t, got.HoldExpiresAt)

	busy, err := s.ListSlots(ctx, persistence.SlotFilter{
		InterviewerID: "i1",
		Statuses:      []persistence.SlotStatus{persistence.SlotHeld, persistence.SlotBooked},
		StartsBefore:  ptr(at(26)),
		EndsAfter:     ptr(at(25)),
	})
	require.NoError(t, err)
	require.Len(t, busy, 1)

	require.NoError(t, s.ReleaseSlot(ctx, "s1", at(2)))
	assert.ErrorIs(t, s.ReleaseSlot(ctx, "missing", at(2)), persistence.ErrNotFound)
	got, err = s.GetSlot(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, persistence.SlotOpen, got.Status)
	assert.Empty(t, got.HolderID)

	require.NoError(t, s.ClaimSlot(ctx, rival))
	got, err = s.GetSlot(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "iv-b", got.HolderID)
}

func testInterviews(t *testing.T, s persistence.Store) {
	ctx := context.Background()
	seedPeople(t, s)

	a := persistence.Interview{ID: "iv-a", BatchID: "b1", CandidateID: "c1", InterviewerID: "i1", State: "slot_proposed",
		SlotID: "s1", SlotStart: ptr(at(25)), SlotEnd: ptr(at(25).Add(30 * time.Minute)),
		ResponseDeadline: ptr(at(24)), CreatedAt: base, LastTransitionAt: base, UpdatedAt: base}
	b := persistence.Interview{ID: "iv-b", BatchID: "b1", CandidateID: "c2", InterviewerID: "i1", State: "stalled",
		NextRetryAt: ptr(at(1)), CreatedAt: base.Add(time.Minute), LastTransitionAt: base, UpdatedAt: base}
	require.NoError(t, s.CreateInterview(ctx, a))
	require.NoError(t, s.CreateInterview(ctx, b))
	assert.ErrorIs(t, s.CreateInterview(ctx, a), persistence.ErrDuplicate)

	loaded, err := s.GetInterview(ctx, "iv-a")
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.Version)
	require.NotNil(t, loaded.SlotStart)
	assert.True(t, loaded.SlotStart.Equal(at(25)))
	assert.Nil(t, loaded.NextRetryAt)

	loaded.State = "awaiting_interviewer"
	loaded.CandidateConfirmed = true
	loaded.Attempts = 2
	updated, err := s.UpdateInterview(ctx, loaded)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.Version)

	_, err = s.UpdateInterview(ctx, loaded)
	assert.ErrorIs(t, err, persistence.ErrConflict)
	_, err = s.UpdateInterview(ctx, persistence.Interview{ID: "missing"})
	assert.ErrorIs(t, err, persistence.ErrNotFound)

	reloaded, err := s.GetInterview(ctx, "iv-a")
	require.NoError(t, err)
	assert.Equal(t, "awaiting_interviewer", reloaded.State)
	assert.True(t, reloaded.CandidateConfirmed)
	assert.Equal(t, 2, reloaded.Attempts)
	assert.Equal(t, 1, reloaded.Version)

	list, err := s.ListInterviews(ctx, persistence.InterviewFilter{BatchID: "b1"})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "iv-a", list[0].ID)

	list, err = s.ListInterviews(ctx, persistence.InterviewFilter{States: []string{"awaiting_interviewer"}, DeadlineBefore: ptr(at(24))})
	require.NoError(t, err)
	require.Len(t, list, 1)
	list, err = s.ListInterviews(ctx, persistence.InterviewFilter{DeadlineBefore: ptr(at(23))})
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = s.ListInterviews(ctx, persistence.InterviewFilter{RetryDueBy: ptr(at(1))})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "iv-b", list[0].ID)

	list, err = s.ListInterviews(ctx, persistence.InterviewFilter{InterviewerID: "i1", SlotStartFrom: ptr(at(24)), SlotStartTo: ptr(at(25))})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "iv-a", list[0].ID)

	require.NoError(t, s.MarkArchived(ctx, "iv-b", at(2)))
	list, err = s.ListInterviews(ctx, persistence.InterviewFilter{CandidateID: "c2"})
	require.NoError(t, err)
	assert.Empty(t, list)
	list, err = s.ListInterviews(ctx, persistence.InterviewFilter{CandidateID: "c2", IncludeArchived: true, TransitionBy: ptr(base)})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.NotNil(t, list[0].ArchivedAt)
}

func testFeedback(t *testing.T, s persistence.Store) {
	ctx := context.Background()
	seedPeople(t, s)
	require.NoError(t, s.CreateInterview(ctx, persistence.Interview{ID: "iv-a", CandidateID: "c1", InterviewerID: "i1", State: "awaiting_feedback",
		CreatedAt: base, LastTransitionAt: base, UpdatedAt: base}))

	first := persistence.FeedbackNote{ID: "n1", InterviewID: "iv-a", SourceID: "mail-1", Outcome: "selected", Summary: "good",
		Text: "Good candidate", ReceivedAt: at(1), CreatedAt: at(1)}
	require.NoError(t, s.AddFeedbackNote(ctx, first))

	dup := first
	dup.ID = "n2"
	assert.ErrorIs(t, s.AddFeedbackNote(ctx, dup), persistence.ErrDuplicate)

	extra := persistence.FeedbackNote{ID: "n3", InterviewID: "iv-a", SourceID: "mail-2", Outcome: "hold", Supplemental: true,
		ReceivedAt: at(2), CreatedAt: at(2)}
	require.NoError(t, s.AddFeedbackNote(ctx, extra))

	notes, err := s.ListFeedbackNotes(ctx, "iv-a")
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, "n1", notes[0].ID)
	assert.True(t, notes[1].Supplemental)
}

func testBatches(t *testing.T, s persistence.Store) {
	ctx := context.Background()
	b := persistence.Batch{ID: "b1", RequestedBy: "admin", MinScore: 75, TopN: 3, InterviewIDs: []string{"iv-a", "iv-b"},
		Skipped: []string{"c9"}, CreatedAt: base}
	require.NoError(t, s.CreateBatch(ctx, b))
	assert.ErrorIs(t, s.CreateBatch(ctx, b), persistence.ErrDuplicate)

	got, err := s.GetBatch(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, []string{"iv-a", "iv-b"}, got.InterviewIDs)
	assert.Equal(t, []string{"c9"}, got.Skipped)
	assert.Equal(t, 75, got.MinScore)

	_, err = s.GetBatch(ctx, "missing")
	assert.ErrorIs(t, err, persistence.ErrNotFound)
}

func testInbox(t *testing.T, s persistence.Store) {
	ctx := context.Background()
	later := persistence.InboxItem{ID: "m2", Channel: "email", Sender: "i1@example.com", Subject: "Feedback", Body: "b", ReceivedAt: at(2), CreatedAt: at(2)}
	earlier := persistence.InboxItem{ID: "m1", Channel: "email", Sender: "i1@example.com", Subject: "Feedback", Body: "a", ReceivedAt: at(1), CreatedAt: at(2)}
	require.NoError(t, s.EnqueueInboxItem(ctx, later))
	require.NoError(t, s.EnqueueInboxItem(ctx, earlier))
	assert.ErrorIs(t, s.EnqueueInboxItem(ctx, earlier), persistence.ErrDuplicate)

	pending, err := s.ListPendingInboxItems(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "m1", pending[0].ID)

	require.NoError(t, s.MarkInboxItemConsumed(ctx, "m1", at(3)))
	assert.ErrorIs(t, s.MarkInboxItemConsumed(ctx, "missing", at(3)), persistence.ErrNotFound)

	pending, err = s.ListPendingInboxItems(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "m2", pending[0].ID)
}
