package ledger_test

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
	"github.com/example/interview-scheduler/internal/persistence"
	"github.com/example/interview-scheduler/internal/persistence/memory"
	"github.com/example/interview-scheduler/internal/testfixtures"
)

var juneFirst = time.Date(2025, time.June, 1, 10, 0, 0, 0, time.UTC)

type harness struct {
	store  *memory.Store
	clock  *testfixtures.Clock
	ledger *ledger.Ledger
}

func newHarness(t *testing.T, opts ledger.Options, interviewers ...persistence.Interviewer) harness {
	t.Helper()
	store := memory.New()
	testfixtures.Seed(t, store, nil, interviewers)
	clock := testfixtures.NewClock(time.Time{})
	if opts.SlotDuration == 0 {
		opts.SlotDuration = 30 * time.Minute
	}
	if opts.HoldTTL == 0 {
		opts.HoldTTL = 24 * time.Hour
	}
	if opts.Lookahead == 0 {
		opts.Lookahead = 3 * 24 * time.Hour
	}
	return harness{
		store:  store,
		clock:  clock,
		ledger: ledger.New(store, lock.NewKeyed(), opts, clock.NowFunc(), logging.Discard()),
	}
}

func TestPropose(t *testing.T) {
	ctx := context.Background()

	t.Run("holds the earliest fitting slot", func(t *testing.T) {
		ivr := testfixtures.NewInterviewer(testfixtures.SingleSlot(juneFirst, time.Hour))
		h := newHarness(t, ledger.Options{}, ivr)

		slot, err := h.ledger.Propose(ctx, ivr.ID, "iv-1", ledger.Window{})
		require.NoError(t, err)
		assert.True(t, slot.Start.Equal(juneFirst))
		assert.Equal(t, persistence.SlotHeld, slot.Status)
		assert.Equal(t, "iv-1", slot.HolderID)
		require.NotNil(t, slot.HoldExpiresAt)
		assert.True(t, slot.HoldExpiresAt.Equal(h.clock.Now().Add(24*time.Hour)))

		next, err := h.ledger.Propose(ctx, ivr.ID, "iv-2", ledger.Window{})
		require.NoError(t, err)
		assert.True(t, next.Start.Equal(juneFirst.Add(30*time.Minute)), "second claimant gets the next interval")

		_, err = h.ledger.Propose(ctx, ivr.ID, "iv-3", ledger.Window{})
		assert.ErrorIs(t, err, ledger.ErrNoAvailability)
	})

	t.Run("skips declined starts and honours min lead", func(t *testing.T) {
		ivr := testfixtures.NewInterviewer(testfixtures.SingleSlot(juneFirst, time.Hour))
		h := newHarness(t, ledger.Options{MinLead: 48 * time.Hour}, ivr)

		slot, err := h.ledger.Propose(ctx, ivr.ID, "iv-1", ledger.Window{Skip: []time.Time{juneFirst}})
		require.NoError(t, err)
		assert.True(t, slot.Start.Equal(juneFirst.Add(30*time.Minute)))

		h2 := newHarness(t, ledger.Options{MinLead: 72 * time.Hour}, testfixtures.NewInterviewer(testfixtures.WithInterviewerID("late"), testfixtures.SingleSlot(juneFirst, time.Hour)))
		_, err = h2.ledger.Propose(ctx, "late", "iv-1", ledger.Window{})
		assert.ErrorIs(t, err, ledger.ErrNoAvailability)
	})

	t.Run("inactive interviewers have no availability", func(t *testing.T) {
		ivr := testfixtures.NewInterviewer(func(iv *persistence.Interviewer) { iv.Active = false })
		h := newHarness(t, ledger.Options{}, ivr)
		_, err := h.ledger.Propose(ctx, ivr.ID, "iv-1", ledger.Window{})
		assert.ErrorIs(t, err, ledger.ErrNoAvailability)
	})

	t.Run("unknown interviewer surfaces not found", func(t *testing.T) {
		h := newHarness(t, ledger.Options{})
		_, err := h.ledger.Propose(ctx, "ghost", "iv-1", ledger.Window{})
		assert.ErrorIs(t, err, persistence.ErrNotFound)
	})
}

func TestProposeRace(t *testing.T) {
	ctx := context.Background()
	ivr := testfixtures.NewInterviewer(testfixtures.SingleSlot(juneFirst, 30*time.Minute))
	h := newHarness(t, ledger.Options{}, ivr)

	const claimants = 8
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		won    []string
		missed int
	)
	for i := 0; i < claimants; i++ {
		holder := "iv-" + string(rune('a'+i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			slot, err := h.ledger.Propose(ctx, ivr.ID, holder, ledger.Window{})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				assert.True(t, slot.Start.Equal(juneFirst))
				won = append(won, holder)
			case errors.Is(err, ledger.ErrNoAvailability):
				missed++
			default:
				t.Errorf("unexpected error %v", err)
			}
		}()
	}
	wg.Wait()

	require.Len(t, won, 1)
	assert.Equal(t, claimants-1, missed)

	stored, err := h.store.GetSlot(ctx, ledger.SlotID(ivr.ID, juneFirst))
	require.NoError(t, err)
	assert.Equal(t, won[0], stored.HolderID)
}

func TestConfirm(t *testing.T) {
	ctx := context.Background()
	ivr := testfixtures.NewInterviewer(testfixtures.SingleSlot(juneFirst, time.Hour))
	h := newHarness(t, ledger.Options{HoldTTL: time.Hour}, ivr)

	slot, err := h.ledger.Propose(ctx, ivr.ID, "iv-1", ledger.Window{})
	require.NoError(t, err)

	assert.ErrorIs(t, h.ledger.Confirm(ctx, slot.ID, "iv-2"), ledger.ErrNotHeld, "only the holder may book")
	require.NoError(t, h.ledger.Confirm(ctx, slot.ID, "iv-1"))
	require.NoError(t, h.ledger.Confirm(ctx, slot.ID, "iv-1"), "re-confirming is a no-op")

	stored, err := h.ledger.Get(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, persistence.SlotBooked, stored.Status)

	assert.ErrorIs(t, h.ledger.Confirm(ctx, "missing", "iv-1"), ledger.ErrNotHeld)

	t.Run("expired holds cannot be booked", func(t *testing.T) {
		other, err := h.ledger.Propose(ctx, ivr.ID, "iv-3", ledger.Window{})
		require.NoError(t, err)
		h.clock.Advance(2 * time.Hour)
		assert.ErrorIs(t, h.ledger.Confirm(ctx, other.ID, "iv-3"), ledger.ErrNotHeld)
	})
}

func TestReleaseAndExtend(t *testing.T) {
	ctx := context.Background()
	ivr := testfixtures.NewInterviewer(testfixtures.SingleSlot(juneFirst, 30*time.Minute))
	h := newHarness(t, ledger.Options{}, ivr)

	slot, err := h.ledger.Propose(ctx, ivr.ID, "iv-1", ledger.Window{})
	require.NoError(t, err)

	until := h.clock.Now().Add(72 * time.Hour)
	require.NoError(t, h.ledger.Extend(ctx, slot.ID, "iv-1", until))
	assert.ErrorIs(t, h.ledger.Extend(ctx, slot.ID, "iv-2", until), ledger.ErrNotHeld)

	require.NoError(t, h.ledger.Release(ctx, slot.ID))
	require.NoError(t, h.ledger.Release(ctx, slot.ID), "release is idempotent")
	require.NoError(t, h.ledger.Release(ctx, "never-existed"))

	again, err := h.ledger.Propose(ctx, ivr.ID, "iv-2", ledger.Window{})
	require.NoError(t, err)
	assert.Equal(t, slot.ID, again.ID, "released slot is offered again")

	require.NoError(t, h.ledger.Confirm(ctx, again.ID, "iv-2"))
	require.NoError(t, h.ledger.Release(ctx, again.ID), "booked slots can be cancelled")
	stored, err := h.ledger.Get(ctx, again.ID)
	require.NoError(t, err)
	assert.Equal(t, persistence.SlotOpen, stored.Status)
	assert.Empty(t, stored.HolderID)
}

func TestExpireStaleHolds(t *testing.T) {
	ctx := context.Background()
	ivr := testfixtures.NewInterviewer(testfixtures.SingleSlot(juneFirst, time.Hour))
	h := newHarness(t, ledger.Options{HoldTTL: time.Hour}, ivr)

	short, err := h.ledger.Propose(ctx, ivr.ID, "iv-1", ledger.Window{})
	require.NoError(t, err)
	long, err := h.ledger.Propose(ctx, ivr.ID, "iv-2", ledger.Window{HoldUntil: h.clock.Now().Add(10 * time.Hour)})
	require.NoError(t, err)

	released, err := h.ledger.ExpireStaleHolds(ctx, h.clock.Advance(time.Hour))
	require.NoError(t, err)
	require.Len(t, released, 1)
	assert.Equal(t, short.ID, released[0].ID)
	assert.Equal(t, "iv-1", released[0].HolderID, "released record keeps the former holder")

	stored, err := h.ledger.Get(ctx, long.ID)
	require.NoError(t, err)
	assert.Equal(t, persistence.SlotHeld, stored.Status)

	released, err = h.ledger.ExpireStaleHolds(ctx, h.clock.Now())
	require.NoError(t, err)
	assert.Empty(t, released, "second pass finds nothing")
}

func TestRelinquish(t *testing.T) {
	ctx := context.Background()
	ivr := testfixtures.NewInterviewer(testfixtures.SingleSlot(juneFirst, 30*time.Minute))
	h := newHarness(t, ledger.Options{HoldTTL: time.Hour}, ivr)

	slot, err := h.ledger.Propose(ctx, ivr.ID, "iv-1", ledger.Window{})
	require.NoError(t, err)

	_, err = h.ledger.ExpireStaleHolds(ctx, h.clock.Advance(time.Hour))
	require.NoError(t, err)
	taken, err := h.ledger.Propose(ctx, ivr.ID, "iv-2", ledger.Window{})
	require.NoError(t, err)
	require.Equal(t, slot.ID, taken.ID)

	require.NoError(t, h.ledger.Relinquish(ctx, slot.ID, "iv-1"), "former holder releases nothing")
	stored, err := h.ledger.Get(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, persistence.SlotHeld, stored.Status)
	assert.Equal(t, "iv-2", stored.HolderID)

	require.NoError(t, h.ledger.Relinquish(ctx, slot.ID, "iv-2"))
	stored, err = h.ledger.Get(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, persistence.SlotOpen, stored.Status)
	require.NoError(t, h.ledger.Relinquish(ctx, "never-existed", "iv-2"))
}
