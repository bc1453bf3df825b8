package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/interview-scheduler/internal/ledger"
	"github.com/example/interview-scheduler/internal/lock"
	"github.com/example/interview-scheduler/internal/logging"
	"github.com/example/interview-scheduler/internal/negotiation"
	"github.com/example/interview-scheduler/internal/persistence"
	"github.com/example/interview-scheduler/internal/persistence/memory"
	"github.com/example/interview-scheduler/internal/testfixtures"
)

// juneFirst is a Sunday; fixtures start on the Friday before.
var juneFirst = time.Date(2025, time.June, 1, 10, 0, 0, 0, time.UTC)

const (
	proposalText     = "you have been shortlisted"
	ackText          = "We are confirming"
	requestText      = "has accepted an interview"
	scheduledText    = "your interview is confirmed"
	noSlotText       = "could not find a free interview slot"
	feedbackAskText  = "please send your feedback"
	nothingText      = "nothing waiting for your reply"
	expiredText      = "unable to schedule your interview"
	cancelledText    = "has been cancelled"
	reminderText     = "a reminder"
	selectedText     = "congratulations"
	notSelectedText  = "not be moving forward"
	didNotUnderstand = "did not understand"
)

type engineHarness struct {
	store     *memory.Store
	clock     *testfixtures.Clock
	ledger    *ledger.Ledger
	sender    *testfixtures.RecordingSender
	calendar  *testfixtures.StubProvisioner
	ids       *testfixtures.Sequence
	engine    *NegotiationService
	shortlist *ShortlistService
}

func testPolicy() Policy {
	return DefaultPolicy()
}

func newEngineHarness(t *testing.T, policy Policy, candidates []persistence.Candidate, interviewers ...persistence.Interviewer) *engineHarness {
	t.Helper()
	store := memory.New()
	testfixtures.Seed(t, store, candidates, interviewers)

	clock := testfixtures.NewClock(time.Time{})
	locks := lock.NewKeyed()
	led := ledger.New(store, locks, ledger.Options{
		SlotDuration: 30 * time.Minute,
		HoldTTL:      36 * time.Hour,
		Lookahead:    3 * 24 * time.Hour,
	}, clock.NowFunc(), logging.Discard())

	h := &engineHarness{
		store:    store,
		clock:    clock,
		ledger:   led,
		sender:   testfixtures.NewRecordingSender(),
		calendar: &testfixtures.StubProvisioner{},
		ids:      testfixtures.NewSequence("id"),
	}
	h.engine = NewNegotiationService(NegotiationDeps{
		Store:       store,
		Ledger:      led,
		Locks:       locks,
		Sender:      h.sender,
		Calendar:    h.calendar,
		Policy:      policy,
		IDGenerator: h.ids.Func(),
		Now:         clock.NowFunc(),
		Logger:      logging.Discard(),
	})
	h.shortlist = NewShortlistServiceWithLogger(store, h.engine, 0, 10, h.ids.Func(), clock.NowFunc(), logging.Discard())
	return h
}

// open inserts a Shortlisted interview without proposing.
func (h *engineHarness) open(t *testing.T, candidateID, interviewerID string) string {
	t.Helper()
	now := h.clock.Now()
	iv := persistence.Interview{
		ID:               h.ids.Next(),
		CandidateID:      candidateID,
		InterviewerID:    interviewerID,
		State:            string(negotiation.Shortlisted),
		CreatedAt:        now,
		LastTransitionAt: now,
		UpdatedAt:        now,
	}
	require.NoError(t, h.store.CreateInterview(context.Background(), iv))
	return iv.ID
}

// proposed opens an interview and proposes its first slot.
func (h *engineHarness) proposed(t *testing.T, candidateID, interviewerID string) persistence.Interview {
	t.Helper()
	iv, err := h.engine.Propose(context.Background(), h.open(t, candidateID, interviewerID))
	require.NoError(t, err)
	require.Equal(t, string(negotiation.SlotProposed), iv.State)
	return iv
}

func (h *engineHarness) reply(t *testing.T, party negotiation.Party, id string, kind negotiation.IntentKind) (persistence.Interview, error) {
	t.Helper()
	return h.engine.HandleIntent(context.Background(), negotiation.Intent{Party: party, InterviewID: id, Kind: kind})
}

// scheduled drives a fresh interview to Scheduled.
func (h *engineHarness) scheduled(t *testing.T, candidateID, interviewerID string) persistence.Interview {
	t.Helper()
	iv := h.proposed(t, candidateID, interviewerID)
	_, err := h.reply(t, negotiation.PartyCandidate, iv.ID, negotiation.IntentConfirm)
	require.NoError(t, err)
	iv, err = h.reply(t, negotiation.PartyInterviewer, iv.ID, negotiation.IntentConfirm)
	require.NoError(t, err)
	require.Equal(t, string(negotiation.Scheduled), iv.State)
	return iv
}

func (h *engineHarness) interview(t *testing.T, id string) persistence.Interview {
	t.Helper()
	iv, err := h.store.GetInterview(context.Background(), id)
	require.NoError(t, err)
	return iv
}

func (h *engineHarness) slot(t *testing.T, id string) persistence.Slot {
	t.Helper()
	slot, err := h.ledger.Get(context.Background(), id)
	require.NoError(t, err)
	return slot
}

func (h *engineHarness) claimedSlots(t *testing.T) []persistence.Slot {
	t.Helper()
	slots, err := h.store.ListSlots(context.Background(), persistence.SlotFilter{
		Statuses: []persistence.SlotStatus{persistence.SlotHeld, persistence.SlotBooked},
	})
	require.NoError(t, err)
	return slots
}

func TestContestedSlot(t *testing.T) {
	ctx := context.Background()

	t.Run("first candidate gets the slot and the second stalls", func(t *testing.T) {
		first := testfixtures.NewCandidate(testfixtures.WithScore(90, 1))
		second := testfixtures.NewCandidate(testfixtures.WithScore(85, 2))
		ivr := testfixtures.NewInterviewer(testfixtures.SingleSlot(juneFirst, 30*time.Minute))
		h := newEngineHarness(t, testPolicy(), []persistence.Candidate{first, second}, ivr)

		result, err := h.shortlist.Shortlist(ctx, ShortlistParams{RequestedBy: "hr@example.com", TopN: 2})
		require.NoError(t, err)
		require.Len(t, result.Interviews, 2)
		assert.Empty(t, result.Failed)

		winner, loser := result.Interviews[0], result.Interviews[1]
		assert.Equal(t, first.ID, winner.CandidateID)
		assert.Equal(t, string(negotiation.SlotProposed), winner.State)
		require.NotNil(t, winner.SlotStart)
		assert.True(t, winner.SlotStart.Equal(juneFirst))
		assert.Equal(t, string(negotiation.Stalled), loser.State)
		assert.Empty(t, loser.SlotID)

		assert.Equal(t, 1, h.sender.Count(first.Phone, proposalText))
		assert.Equal(t, 1, h.sender.Count(second.Phone, noSlotText))

		_, err = h.reply(t, negotiation.PartyCandidate, winner.ID, negotiation.IntentConfirm)
		require.NoError(t, err)
		iv, err := h.reply(t, negotiation.PartyInterviewer, winner.ID, negotiation.IntentConfirm)
		require.NoError(t, err)
		assert.Equal(t, string(negotiation.Scheduled), iv.State)
		assert.Equal(t, "https://meet.example.com/"+winner.ID, iv.MeetingLink)

		slot := h.slot(t, iv.SlotID)
		assert.Equal(t, persistence.SlotBooked, slot.Status)
		assert.Equal(t, winner.ID, slot.HolderID)

		h.clock.Advance(testPolicy().RetryBackoff)
		_, err = h.engine.RetryDue(ctx)
		require.NoError(t, err)
		assert.Equal(t, string(negotiation.Stalled), h.interview(t, loser.ID).State)
		assert.Equal(t, 1, h.sender.Count(second.Phone, noSlotText), "a stalled retry does not repeat the notice")
	})

	t.Run("concurrent proposals never share a slot", func(t *testing.T) {
		first := testfixtures.NewCandidate()
		second := testfixtures.NewCandidate()
		ivr := testfixtures.NewInterviewer(testfixtures.SingleSlot(juneFirst, 30*time.Minute))
		h := newEngineHarness(t, testPolicy(), []persistence.Candidate{first, second}, ivr)

		ids := []string{h.open(t, first.ID, ivr.ID), h.open(t, second.ID, ivr.ID)}
		var wg sync.WaitGroup
		errs := make([]error, len(ids))
		for i, id := range ids {
			wg.Add(1)
			go func(i int, id string) {
				defer wg.Done()
				_, errs[i] = h.engine.Propose(ctx, id)
			}(i, id)
		}
		wg.Wait()

		states := map[string]int{}
		for i, id := range ids {
			require.NoError(t, errs[i])
			states[h.interview(t, id).State]++
		}
		assert.Equal(t, map[string]int{
			string(negotiation.SlotProposed): 1,
			string(negotiation.Stalled):      1,
		}, states)
		assert.Len(t, h.claimedSlots(t), 1)
	})

	t.Run("late confirmation after losing the hold moves on", func(t *testing.T) {
		first := testfixtures.NewCandidate()
		second := testfixtures.NewCandidate()
		ivr := testfixtures.NewInterviewer(testfixtures.SingleSlot(juneFirst, 30*time.Minute))
		h := newEngineHarness(t, testPolicy(), []persistence.Candidate{first, second}, ivr)

		a := h.proposed(t, first.ID, ivr.ID)
		bID := h.open(t, second.ID, ivr.ID)
		b, err := h.engine.Propose(ctx, bID)
		require.NoError(t, err)
		require.Equal(t, string(negotiation.Stalled), b.State)

		now := h.clock.Advance(37 * time.Hour)
		released, err := h.ledger.ExpireStaleHolds(ctx, now)
		require.NoError(t, err)
		require.Len(t, released, 1)

		b, err = h.engine.Propose(ctx, bID)
		require.NoError(t, err)
		require.Equal(t, string(negotiation.SlotProposed), b.State)
		require.Equal(t, a.SlotID, b.SlotID)

		got, err := h.reply(t, negotiation.PartyCandidate, a.ID, negotiation.IntentConfirm)
		require.NoError(t, err)
		assert.Equal(t, string(negotiation.Stalled), got.State)
		assert.Equal(t, 1, h.sender.Count(first.Phone, noSlotText))

		slot := h.slot(t, b.SlotID)
		assert.Equal(t, persistence.SlotHeld, slot.Status)
		assert.Equal(t, bID, slot.HolderID, "the losing holder must not release the new hold")
	})
}

func TestSilentInterviewerGetsNextSlotOffered(t *testing.T) {
	ctx := context.Background()
	cand := testfixtures.NewCandidate()
	ivr := testfixtures.NewInterviewer(testfixtures.SingleSlot(juneFirst, time.Hour))
	h := newEngineHarness(t, testPolicy(), []persistence.Candidate{cand}, ivr)

	iv := h.proposed(t, cand.ID, ivr.ID)
	oldSlot := iv.SlotID
	iv, err := h.reply(t, negotiation.PartyCandidate, iv.ID, negotiation.IntentConfirm)
	require.NoError(t, err)
	require.Equal(t, string(negotiation.AwaitingInterviewer), iv.State)
	assert.Equal(t, 1, h.sender.Count(ivr.Phone, requestText))

	h.clock.Advance(25 * time.Hour)
	n, err := h.engine.ResponseTimeouts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	iv = h.interview(t, iv.ID)
	assert.Equal(t, string(negotiation.SlotProposed), iv.State)
	require.NotNil(t, iv.SlotStart)
	assert.True(t, iv.SlotStart.Equal(juneFirst.Add(30*time.Minute)))
	assert.Equal(t, 1, iv.InterviewerRejections)
	assert.Equal(t, 2, iv.Attempts)
	assert.False(t, iv.CandidateConfirmed)
	assert.Equal(t, persistence.SlotOpen, h.slot(t, oldSlot).Status)
	assert.Equal(t, 2, h.sender.Count(cand.Phone, proposalText))
}

func TestRepeatedMessagesAreAbsorbed(t *testing.T) {
	cand := testfixtures.NewCandidate()
	ivr := testfixtures.NewInterviewer(testfixtures.SingleSlot(juneFirst, 30*time.Minute))
	h := newEngineHarness(t, testPolicy(), []persistence.Candidate{cand}, ivr)

	iv := h.proposed(t, cand.ID, ivr.ID)
	for i := 0; i < 2; i++ {
		got, err := h.reply(t, negotiation.PartyCandidate, iv.ID, negotiation.IntentConfirm)
		require.NoError(t, err)
		assert.Equal(t, string(negotiation.AwaitingInterviewer), got.State)
	}
	assert.Equal(t, 1, h.sender.Count(cand.Phone, ackText))
	assert.Equal(t, 1, h.sender.Count(ivr.Phone, requestText))

	for i := 0; i < 2; i++ {
		got, err := h.reply(t, negotiation.PartyInterviewer, iv.ID, negotiation.IntentConfirm)
		require.NoError(t, err)
		assert.Equal(t, string(negotiation.Scheduled), got.State)
	}
	assert.Equal(t, 1, h.sender.Count(cand.Phone, scheduledText))
	assert.Len(t, h.calendar.Calls(), 1)

	got, err := h.reply(t, negotiation.PartyCandidate, iv.ID, negotiation.IntentConfirm)
	require.NoError(t, err, "a late candidate confirmation is a redelivery")
	assert.Equal(t, string(negotiation.Scheduled), got.State)
}

func TestRejectionsAreBounded(t *testing.T) {
	cand := testfixtures.NewCandidate()
	ivr := testfixtures.NewInterviewer()
	policy := testPolicy()
	policy.MaxAttempts = 3
	h := newEngineHarness(t, policy, []persistence.Candidate{cand}, ivr)

	iv := h.proposed(t, cand.ID, ivr.ID)
	seen := map[string]bool{iv.SlotID: true}
	for i := 0; i < 2; i++ {
		got, err := h.reply(t, negotiation.PartyCandidate, iv.ID, negotiation.IntentReject)
		require.NoError(t, err)
		require.Equal(t, string(negotiation.SlotProposed), got.State)
		assert.False(t, seen[got.SlotID], "a declined slot is not offered again")
		seen[got.SlotID] = true
	}

	got, err := h.reply(t, negotiation.PartyCandidate, iv.ID, negotiation.IntentReject)
	require.NoError(t, err)
	assert.Equal(t, string(negotiation.Expired), got.State)
	assert.Equal(t, 3, got.Attempts)
	assert.Empty(t, got.SlotID)
	assert.Empty(t, h.claimedSlots(t))
	assert.Equal(t, 1, h.sender.Count(cand.Phone, expiredText))

	_, err = h.reply(t, negotiation.PartyCandidate, iv.ID, negotiation.IntentConfirm)
	assert.ErrorIs(t, err, negotiation.ErrInvalidTransition)
	assert.Equal(t, 1, h.sender.Count(cand.Phone, nothingText))
}

func TestInterviewerReassignment(t *testing.T) {
	ctx := context.Background()

	t.Run("moves to another interviewer after repeated declines", func(t *testing.T) {
		cand := testfixtures.NewCandidate()
		first := testfixtures.NewInterviewer(testfixtures.WithInterviewerID("ivr-a"))
		second := testfixtures.NewInterviewer(testfixtures.WithInterviewerID("ivr-b"))
		policy := testPolicy()
		policy.MaxInterviewerRejections = 1
		h := newEngineHarness(t, policy, []persistence.Candidate{cand}, first, second)

		result, err := h.shortlist.Shortlist(ctx, ShortlistParams{CandidateIDs: []string{cand.ID}})
		require.NoError(t, err)
		require.Len(t, result.Interviews, 1)
		iv := result.Interviews[0]
		require.Equal(t, "ivr-a", iv.InterviewerID)
		oldSlot := iv.SlotID

		_, err = h.reply(t, negotiation.PartyCandidate, iv.ID, negotiation.IntentConfirm)
		require.NoError(t, err)
		got, err := h.reply(t, negotiation.PartyInterviewer, iv.ID, negotiation.IntentReject)
		require.NoError(t, err)

		assert.Equal(t, string(negotiation.SlotProposed), got.State)
		assert.Equal(t, "ivr-b", got.InterviewerID)
		assert.Zero(t, got.InterviewerRejections)
		assert.Equal(t, 2, got.Attempts)
		assert.Equal(t, "ivr-b", h.slot(t, got.SlotID).InterviewerID)
		assert.Equal(t, persistence.SlotOpen, h.slot(t, oldSlot).Status)
	})

	t.Run("keeps the interviewer when nobody else is free", func(t *testing.T) {
		cand := testfixtures.NewCandidate()
		ivr := testfixtures.NewInterviewer()
		policy := testPolicy()
		policy.MaxInterviewerRejections = 1
		h := newEngineHarness(t, policy, []persistence.Candidate{cand}, ivr)

		iv := h.proposed(t, cand.ID, ivr.ID)
		_, err := h.reply(t, negotiation.PartyCandidate, iv.ID, negotiation.IntentConfirm)
		require.NoError(t, err)
		got, err := h.reply(t, negotiation.PartyInterviewer, iv.ID, negotiation.IntentReject)
		require.NoError(t, err)

		assert.Equal(t, string(negotiation.SlotProposed), got.State)
		assert.Equal(t, ivr.ID, got.InterviewerID)
		assert.Zero(t, got.InterviewerRejections)
	})
}

func TestFailedProposalIsRolledBack(t *testing.T) {
	ctx := context.Background()
	cand := testfixtures.NewCandidate()
	ivr := testfixtures.NewInterviewer()
	h := newEngineHarness(t, testPolicy(), []persistence.Candidate{cand}, ivr)

	h.sender.FailFor(cand.Phone, errors.New("gateway down"))
	id := h.open(t, cand.ID, ivr.ID)
	attempted, err := h.engine.Propose(ctx, id)
	require.ErrorIs(t, err, ErrExternalService)
	require.NotEmpty(t, attempted.SlotID)

	iv := h.interview(t, id)
	assert.Equal(t, string(negotiation.Shortlisted), iv.State)
	assert.Zero(t, iv.Attempts)
	assert.Equal(t, 1, iv.Retries)
	require.NotNil(t, iv.NextRetryAt)
	assert.True(t, iv.NextRetryAt.Equal(h.clock.Now().Add(testPolicy().RetryBackoff)))
	assert.Equal(t, persistence.SlotOpen, h.slot(t, attempted.SlotID).Status)

	n, err := h.engine.RetryDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "nothing is due before the backoff")

	h.sender.FailFor(cand.Phone, nil)
	h.clock.Advance(testPolicy().RetryBackoff)
	n, err = h.engine.RetryDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	iv = h.interview(t, id)
	assert.Equal(t, string(negotiation.SlotProposed), iv.State)
	assert.Equal(t, 1, iv.Attempts)
	assert.Equal(t, 1, h.sender.Count(cand.Phone, proposalText))
}

func TestRetryBudgetExpiresInterview(t *testing.T) {
	ctx := context.Background()
	cand := testfixtures.NewCandidate()
	ivr := testfixtures.NewInterviewer()
	policy := testPolicy()
	policy.MaxRetries = 1
	h := newEngineHarness(t, policy, []persistence.Candidate{cand}, ivr)

	h.sender.FailFor(cand.Phone, errors.New("gateway down"))
	id := h.open(t, cand.ID, ivr.ID)
	_, err := h.engine.Propose(ctx, id)
	require.ErrorIs(t, err, ErrExternalService)
	require.Equal(t, string(negotiation.Shortlisted), h.interview(t, id).State)

	h.clock.Advance(policy.RetryBackoff)
	_, err = h.engine.RetryDue(ctx)
	assert.ErrorIs(t, err, ErrExternalService)

	iv := h.interview(t, id)
	assert.Equal(t, string(negotiation.Expired), iv.State)
	assert.Equal(t, 2, iv.Retries)
	assert.Empty(t, h.claimedSlots(t))
}

func TestFailedInterviewerRequestIsReplayed(t *testing.T) {
	ctx := context.Background()
	cand := testfixtures.NewCandidate()
	ivr := testfixtures.NewInterviewer()
	h := newEngineHarness(t, testPolicy(), []persistence.Candidate{cand}, ivr)

	iv := h.proposed(t, cand.ID, ivr.ID)
	h.sender.FailFor(ivr.Phone, errors.New("gateway down"))
	_, err := h.reply(t, negotiation.PartyCandidate, iv.ID, negotiation.IntentConfirm)
	require.ErrorIs(t, err, ErrExternalService)

	got := h.interview(t, iv.ID)
	assert.Equal(t, string(negotiation.SlotProposed), got.State)
	assert.False(t, got.CandidateConfirmed)
	assert.Equal(t, string(negotiation.EventCandidateConfirmed), got.PendingEvent)
	assert.Equal(t, 1, got.Retries)
	assert.Equal(t, persistence.SlotHeld, h.slot(t, iv.SlotID).Status)

	h.sender.FailFor(ivr.Phone, nil)
	h.clock.Advance(testPolicy().RetryBackoff)
	n, err := h.engine.RetryDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got = h.interview(t, iv.ID)
	assert.Equal(t, string(negotiation.AwaitingInterviewer), got.State)
	assert.Empty(t, got.PendingEvent)
	assert.Equal(t, 1, h.sender.Count(cand.Phone, ackText), "the candidate is not acknowledged twice")
	assert.Equal(t, 1, h.sender.Count(ivr.Phone, requestText))
}

func TestFailedMeetingProvisioningIsReplayed(t *testing.T) {
	ctx := context.Background()
	cand := testfixtures.NewCandidate()
	ivr := testfixtures.NewInterviewer()
	h := newEngineHarness(t, testPolicy(), []persistence.Candidate{cand}, ivr)

	iv := h.proposed(t, cand.ID, ivr.ID)
	_, err := h.reply(t, negotiation.PartyCandidate, iv.ID, negotiation.IntentConfirm)
	require.NoError(t, err)

	h.calendar.SetErr(errors.New("calendar down"))
	_, err = h.reply(t, negotiation.PartyInterviewer, iv.ID, negotiation.IntentConfirm)
	require.ErrorIs(t, err, ErrExternalService)

	got := h.interview(t, iv.ID)
	assert.Equal(t, string(negotiation.AwaitingInterviewer), got.State)
	assert.Equal(t, string(negotiation.EventInterviewerConfirmed), got.PendingEvent)
	assert.Equal(t, 1, got.Retries)

	h.clock.Advance(testPolicy().ResponseWindow)
	n, err := h.engine.ResponseTimeouts(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "a pending confirmation is not timed out")

	h.calendar.SetErr(nil)
	n, err = h.engine.RetryDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got = h.interview(t, iv.ID)
	assert.Equal(t, string(negotiation.Scheduled), got.State)
	assert.Equal(t, "https://meet.example.com/"+iv.ID, got.MeetingLink)
	assert.Equal(t, persistence.SlotBooked, h.slot(t, iv.SlotID).Status)
}

func TestHoldExpiry(t *testing.T) {
	ctx := context.Background()
	cand := testfixtures.NewCandidate()
	ivr := testfixtures.NewInterviewer()
	h := newEngineHarness(t, testPolicy(), []persistence.Candidate{cand}, ivr)

	iv := h.proposed(t, cand.ID, ivr.ID)
	h.clock.Advance(37 * time.Hour)

	n, err := h.engine.ExpireHolds(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got := h.interview(t, iv.ID)
	assert.Equal(t, string(negotiation.Shortlisted), got.State)
	assert.Empty(t, got.SlotID)
	assert.Equal(t, persistence.SlotOpen, h.slot(t, iv.SlotID).Status)

	n, err = h.engine.RetryDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got = h.interview(t, iv.ID)
	assert.Equal(t, string(negotiation.SlotProposed), got.State)
	assert.Equal(t, 2, got.Attempts)
}

func TestReminders(t *testing.T) {
	ctx := context.Background()
	cand := testfixtures.NewCandidate()
	ivr := testfixtures.NewInterviewer()
	policy := testPolicy()
	policy.MaxReminders = 2
	h := newEngineHarness(t, policy, []persistence.Candidate{cand}, ivr)

	iv := h.proposed(t, cand.ID, ivr.ID)

	n, err := h.engine.Reminders(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "deadline not near yet")

	h.clock.Advance(18*time.Hour + 30*time.Minute)
	n, err = h.engine.Reminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = h.engine.Reminders(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "spaced by the reminder interval")

	h.clock.Advance(policy.ReminderInterval)
	n, err = h.engine.Reminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	h.clock.Advance(policy.ReminderInterval)
	n, err = h.engine.Reminders(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "capped")

	assert.Equal(t, 2, h.sender.Count(cand.Phone, reminderText))
	assert.Equal(t, 2, h.interview(t, iv.ID).ReminderCount)
}

func TestFeedbackLifecycle(t *testing.T) {
	ctx := context.Background()

	feedback := func(id, source string, outcome negotiation.Outcome) negotiation.Intent {
		return negotiation.Intent{
			Party:       negotiation.PartyInterviewer,
			InterviewID: id,
			Kind:        negotiation.IntentProvideFeedback,
			Feedback:    &negotiation.Feedback{Outcome: outcome, Text: "notes for " + source, SourceID: source},
		}
	}

	t.Run("clear outcome completes and later notes are supplementary", func(t *testing.T) {
		cand := testfixtures.NewCandidate()
		ivr := testfixtures.NewInterviewer(testfixtures.SingleSlot(juneFirst, 30*time.Minute))
		h := newEngineHarness(t, testPolicy(), []persistence.Candidate{cand}, ivr)
		iv := h.scheduled(t, cand.ID, ivr.ID)

		_, err := h.engine.HandleIntent(ctx, feedback(iv.ID, "mail-0", negotiation.OutcomeSelected))
		assert.ErrorIs(t, err, negotiation.ErrInvalidTransition, "feedback before the interview ends")

		h.clock.Set(juneFirst.Add(31 * time.Minute))
		n, err := h.engine.ElapsedInterviews(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Equal(t, string(negotiation.AwaitingFeedback), h.interview(t, iv.ID).State)
		assert.Equal(t, 1, h.sender.Count(ivr.Email, feedbackAskText))

		got, err := h.engine.HandleIntent(ctx, feedback(iv.ID, "mail-1", negotiation.OutcomeUnclear))
		require.NoError(t, err)
		assert.Equal(t, string(negotiation.AwaitingFeedback), got.State)

		got, err = h.engine.HandleIntent(ctx, feedback(iv.ID, "mail-2", negotiation.OutcomeSelected))
		require.NoError(t, err)
		assert.Equal(t, string(negotiation.Completed), got.State)
		assert.Equal(t, string(negotiation.OutcomeSelected), got.FeedbackOutcome)
		assert.Equal(t, 1, h.sender.Count(cand.Phone, selectedText))

		stored, err := h.store.GetCandidate(ctx, cand.ID)
		require.NoError(t, err)
		assert.Equal(t, persistence.CandidateSelected, stored.Status)

		_, err = h.engine.HandleIntent(ctx, feedback(iv.ID, "mail-2", negotiation.OutcomeSelected))
		require.NoError(t, err)
		got, err = h.engine.HandleIntent(ctx, feedback(iv.ID, "mail-3", negotiation.OutcomeRejected))
		require.NoError(t, err)
		assert.Equal(t, string(negotiation.OutcomeSelected), got.FeedbackOutcome, "the first clear outcome stands")

		details, err := h.engine.Get(ctx, iv.ID)
		require.NoError(t, err)
		require.Len(t, details.Notes, 3)
		supplemental := 0
		for _, note := range details.Notes {
			if note.Supplemental {
				supplemental++
			}
		}
		assert.Equal(t, 1, supplemental)
		assert.Equal(t, 1, h.sender.Count(cand.Phone, selectedText))
	})

	t.Run("missing feedback closes unresolved", func(t *testing.T) {
		cand := testfixtures.NewCandidate()
		ivr := testfixtures.NewInterviewer(testfixtures.SingleSlot(juneFirst, 30*time.Minute))
		h := newEngineHarness(t, testPolicy(), []persistence.Candidate{cand}, ivr)
		iv := h.scheduled(t, cand.ID, ivr.ID)

		h.clock.Set(juneFirst.Add(31 * time.Minute))
		_, err := h.engine.ElapsedInterviews(ctx)
		require.NoError(t, err)

		h.clock.Advance(testPolicy().FeedbackWindow)
		n, err := h.engine.FeedbackTimeouts(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Equal(t, string(negotiation.CompletedUnresolved), h.interview(t, iv.ID).State)

		got, err := h.engine.HandleIntent(ctx, feedback(iv.ID, "late", negotiation.OutcomeHold))
		require.NoError(t, err)
		assert.Equal(t, string(negotiation.CompletedUnresolved), got.State)
	})

	t.Run("feedback for an ended interview skips the request", func(t *testing.T) {
		cand := testfixtures.NewCandidate()
		ivr := testfixtures.NewInterviewer()
		h := newEngineHarness(t, testPolicy(), []persistence.Candidate{cand}, ivr)

		past, err := h.engine.CreatePastInterview(ctx, PastInterviewParams{CandidateID: cand.ID, InterviewerID: ivr.ID, StartedAgo: 2 * time.Hour})
		require.NoError(t, err)
		assert.Equal(t, string(negotiation.Scheduled), past.State)

		got, err := h.engine.HandleIntent(ctx, feedback(past.ID, "mail-9", negotiation.OutcomeRejected))
		require.NoError(t, err)
		assert.Equal(t, string(negotiation.Completed), got.State)
		assert.Zero(t, h.sender.Count(ivr.Email, feedbackAskText))
		assert.Equal(t, 1, h.sender.Count(cand.Phone, notSelectedText))

		stored, err := h.store.GetCandidate(ctx, cand.ID)
		require.NoError(t, err)
		assert.Equal(t, persistence.CandidateRejected, stored.Status)
	})

	t.Run("past interview requires both parties", func(t *testing.T) {
		h := newEngineHarness(t, testPolicy(), nil)
		_, err := h.engine.CreatePastInterview(ctx, PastInterviewParams{})
		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Contains(t, vErr.FieldErrors, "candidate_id")
		assert.Contains(t, vErr.FieldErrors, "interviewer_id")
	})
}

func TestCancel(t *testing.T) {
	ctx := context.Background()

	t.Run("scheduled interview notifies both parties", func(t *testing.T) {
		cand := testfixtures.NewCandidate()
		ivr := testfixtures.NewInterviewer()
		h := newEngineHarness(t, testPolicy(), []persistence.Candidate{cand}, ivr)
		iv := h.scheduled(t, cand.ID, ivr.ID)

		got, err := h.engine.Cancel(ctx, iv.ID, "position filled")
		require.NoError(t, err)
		assert.Equal(t, string(negotiation.Cancelled), got.State)
		assert.Equal(t, persistence.SlotOpen, h.slot(t, iv.SlotID).Status)
		assert.Equal(t, 1, h.sender.Count(cand.Phone, cancelledText))
		assert.Equal(t, 1, h.sender.Count(ivr.Phone, cancelledText))

		got, err = h.engine.Cancel(ctx, iv.ID, "again")
		require.NoError(t, err)
		assert.Equal(t, string(negotiation.Cancelled), got.State)
		assert.Equal(t, 1, h.sender.Count(cand.Phone, cancelledText))
	})

	t.Run("proposal only notifies the candidate", func(t *testing.T) {
		cand := testfixtures.NewCandidate()
		ivr := testfixtures.NewInterviewer()
		h := newEngineHarness(t, testPolicy(), []persistence.Candidate{cand}, ivr)
		iv := h.proposed(t, cand.ID, ivr.ID)

		_, err := h.engine.Cancel(ctx, iv.ID, "")
		require.NoError(t, err)
		assert.Equal(t, 1, h.sender.Count(cand.Phone, cancelledText))
		assert.Zero(t, h.sender.Count(ivr.Phone, cancelledText))
		assert.Empty(t, h.claimedSlots(t))
	})

	t.Run("finished interview cannot be cancelled", func(t *testing.T) {
		cand := testfixtures.NewCandidate()
		ivr := testfixtures.NewInterviewer()
		h := newEngineHarness(t, testPolicy(), []persistence.Candidate{cand}, ivr)
		past, err := h.engine.CreatePastInterview(ctx, PastInterviewParams{CandidateID: cand.ID, InterviewerID: ivr.ID})
		require.NoError(t, err)
		_, err = h.engine.HandleIntent(ctx, negotiation.Intent{
			Party: negotiation.PartyInterviewer, InterviewID: past.ID, Kind: negotiation.IntentProvideFeedback,
			Feedback: &negotiation.Feedback{Outcome: negotiation.OutcomeHold, SourceID: "m"},
		})
		require.NoError(t, err)

		_, err = h.engine.Cancel(ctx, past.ID, "")
		assert.ErrorIs(t, err, negotiation.ErrInvalidTransition)
	})

	t.Run("unknown interview", func(t *testing.T) {
		h := newEngineHarness(t, testPolicy(), nil)
		_, err := h.engine.Cancel(ctx, "missing", "")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestHandleIntentReplies(t *testing.T) {
	cand := testfixtures.NewCandidate()
	ivr := testfixtures.NewInterviewer()
	h := newEngineHarness(t, testPolicy(), []persistence.Candidate{cand}, ivr)
	iv := h.proposed(t, cand.ID, ivr.ID)

	got, err := h.reply(t, negotiation.PartyCandidate, iv.ID, negotiation.IntentUnrecognized)
	require.NoError(t, err)
	assert.Equal(t, string(negotiation.SlotProposed), got.State)
	assert.Equal(t, 1, h.sender.Count(cand.Phone, didNotUnderstand))

	_, err = h.reply(t, negotiation.PartyInterviewer, iv.ID, negotiation.IntentConfirm)
	assert.ErrorIs(t, err, negotiation.ErrInvalidTransition, "the candidate has not confirmed yet")
	assert.Equal(t, 1, h.sender.Count(ivr.Phone, nothingText))
	assert.Equal(t, string(negotiation.SlotProposed), h.interview(t, iv.ID).State)
}

func TestGetAndList(t *testing.T) {
	ctx := context.Background()
	cand := testfixtures.NewCandidate()
	ivr := testfixtures.NewInterviewer()
	h := newEngineHarness(t, testPolicy(), []persistence.Candidate{cand}, ivr)
	iv := h.proposed(t, cand.ID, ivr.ID)

	details, err := h.engine.Get(ctx, iv.ID)
	require.NoError(t, err)
	assert.Equal(t, cand.ID, details.Candidate.ID)
	assert.Equal(t, ivr.ID, details.Interviewer.ID)
	require.NotNil(t, details.Slot)
	assert.Equal(t, persistence.SlotHeld, details.Slot.Status)

	_, err = h.engine.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	listed, err := h.engine.List(ctx, ListInterviewsParams{State: string(negotiation.SlotProposed)})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, iv.ID, listed[0].ID)

	listed, err = h.engine.List(ctx, ListInterviewsParams{State: string(negotiation.Scheduled)})
	require.NoError(t, err)
	assert.Empty(t, listed)

	_, err = h.engine.List(ctx, ListInterviewsParams{State: "bogus"})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.FieldErrors, "state")

	_, err = h.engine.List(ctx, ListInterviewsParams{Limit: -1})
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.FieldErrors, "limit")
}

func TestProposeRejectsActiveInterview(t *testing.T) {
	cand := testfixtures.NewCandidate()
	ivr := testfixtures.NewInterviewer()
	h := newEngineHarness(t, testPolicy(), []persistence.Candidate{cand}, ivr)
	iv := h.proposed(t, cand.ID, ivr.ID)

	_, err := h.engine.Propose(context.Background(), iv.ID)
	assert.ErrorIs(t, err, negotiation.ErrInvalidTransition)
	assert.Equal(t, 1, h.sender.Count(cand.Phone, proposalText))
}
