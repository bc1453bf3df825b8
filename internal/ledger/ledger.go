// Package ledger is the single authority over interviewer slot reservations.
//
// Slots move Open -> Held -> Booked and back to Open on release or hold
// expiry. Every mutation runs under the interviewer's lock and is written as a
// conditional update, so two claimants can never both hold or book the same
// interval even across server instances.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/interview-scheduler/internal/availability"
	"github.com/example/interview-scheduler/internal/lock"
	"github.com/example/interview-scheduler/internal/persistence"
)

var (
	// ErrNoAvailability is returned when no slot fits the lookahead window.
	ErrNoAvailability = errors.New("ledger: no availability")
	// ErrNotHeld is returned when confirming or extending a slot that is not
	// currently held by the caller.
	ErrNotHeld = errors.New("ledger: slot not held")
	// ErrSlotConflict marks a lost race for a slot. Propose absorbs it by
	// moving on to the next candidate interval.
	ErrSlotConflict = errors.New("ledger: slot conflict")
)

// Store is the persistence the ledger needs.
type Store interface {
	GetInterviewer(ctx context.Context, id string) (persistence.Interviewer, error)
	persistence.SlotRepository
}

// Options tunes slot generation.
type Options struct {
	SlotDuration time.Duration
	HoldTTL      time.Duration
	// MinLead is the minimum distance between now and a proposed start.
	MinLead   time.Duration
	Lookahead time.Duration
	// ExcludeDates are whole days never offered (holidays).
	ExcludeDates []time.Time
}

// Window narrows a single proposal.
type Window struct {
	NotBefore time.Time
	NotAfter  time.Time
	// Skip lists starts that must not be offered again, typically the slot the
	// counterpart just declined.
	Skip []time.Time
	// HoldUntil overrides the default hold expiry.
	HoldUntil time.Time
}

// Ledger reserves interviewer time.
type Ledger struct {
	store  Store
	locks  lock.Locker
	opts   Options
	now    func() time.Time
	logger *slog.Logger
}

// New constructs a ledger. Zero options fall back to 30 minute slots, a one
// day hold and a thirty day lookahead.
func New(store Store, locks lock.Locker, opts Options, now func() time.Time, logger *slog.Logger) *Ledger {
	if opts.SlotDuration <= 0 {
		opts.SlotDuration = 30 * time.Minute
	}
	if opts.HoldTTL <= 0 {
		opts.HoldTTL = 24 * time.Hour
	}
	if opts.Lookahead <= 0 {
		opts.Lookahead = 30 * 24 * time.Hour
	}
	if locks == nil {
		locks = lock.NewKeyed()
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{store: store, locks: locks, opts: opts, now: now, logger: logger.With("component", "ledger")}
}

// SlotID derives the stable identifier of an interviewer interval.
func SlotID(interviewerID string, start time.Time) string {
	return fmt.Sprintf("%s@%s", interviewerID, start.UTC().Format("20060102T1504Z"))
}

// Get returns the current slot record.
func (l *Ledger) Get(ctx context.Context, slotID string) (persistence.Slot, error) {
	return l.store.GetSlot(ctx, slotID)
}

// Propose holds the earliest open interval for holderID.
func (l *Ledger) Propose(ctx context.Context, interviewerID, holderID string, w Window) (persistence.Slot, error) {
	unlock, err := l.locks.Lock(ctx, lock.InterviewerKey(interviewerID))
	if err != nil {
		return persistence.Slot{}, err
	}
	defer unlock()

	interviewer, err := l.store.GetInterviewer(ctx, interviewerID)
	if err != nil {
		return persistence.Slot{}, fmt.Errorf("load interviewer %s: %w", interviewerID, err)
	}
	if !interviewer.Active {
		return persistence.Slot{}, ErrNoAvailability
	}

	now := l.now().UTC()
	from := now.Add(l.opts.MinLead)
	if w.NotBefore.After(from) {
		from = w.NotBefore
	}
	to := now.Add(l.opts.Lookahead)
	if !w.NotAfter.IsZero() && w.NotAfter.Before(to) {
		to = w.NotAfter
	}
	if to.Before(from) {
		return persistence.Slot{}, ErrNoAvailability
	}

	engine, err := availability.ForTimeZone(interviewer.TimeZone)
	if err != nil {
		return persistence.Slot{}, fmt.Errorf("interviewer %s time zone: %w", interviewerID, err)
	}
	candidates, err := engine.Expand(interviewer.Availability, availability.Options{
		RangeStart:   from,
		RangeEnd:     to,
		Duration:     l.opts.SlotDuration,
		ExcludeDates: l.opts.ExcludeDates,
	})
	if err != nil {
		return persistence.Slot{}, err
	}

	upper := to.Add(l.opts.SlotDuration)
	taken, err := l.store.ListSlots(ctx, persistence.SlotFilter{
		InterviewerID: interviewerID,
		Statuses:      []persistence.SlotStatus{persistence.SlotHeld, persistence.SlotBooked},
		StartsBefore:  &upper,
		EndsAfter:     &from,
	})
	if err != nil {
		return persistence.Slot{}, err
	}

	holdUntil := now.Add(l.opts.HoldTTL)
	if !w.HoldUntil.IsZero() {
		holdUntil = w.HoldUntil
	}

	for _, c := range candidates {
		if skipped(c.Start, w.Skip) || overlapsAny(c, taken) {
			continue
		}
		until := holdUntil
		slot := persistence.Slot{
			ID:            SlotID(interviewerID, c.Start),
			InterviewerID: interviewerID,
			Start:         c.Start,
			End:           c.End,
			Status:        persistence.SlotHeld,
			HolderID:      holderID,
			HoldExpiresAt: &until,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		err := l.store.ClaimSlot(ctx, slot)
		if errors.Is(err, persistence.ErrConflict) {
			l.logger.DebugContext(ctx, "slot claimed elsewhere, trying next", "slot_id", slot.ID, "error", ErrSlotConflict)
			continue
		}
		if err != nil {
			return persistence.Slot{}, err
		}
		return slot, nil
	}
	return persistence.Slot{}, ErrNoAvailability
}

// Confirm books a slot held by holderID. Confirming a slot the holder already
// booked succeeds without change.
func (l *Ledger) Confirm(ctx context.Context, slotID, holderID string) error {
	return l.withSlot(ctx, slotID, func(slot persistence.Slot, now time.Time) error {
		if slot.Status == persistence.SlotBooked && slot.HolderID == holderID {
			return nil
		}
		if slot.Status != persistence.SlotHeld || slot.HolderID != holderID {
			return ErrNotHeld
		}
		if slot.HoldExpiresAt != nil && !now.Before(*slot.HoldExpiresAt) {
			return ErrNotHeld
		}
		if err := l.store.BookSlot(ctx, slot.ID, holderID, now); err != nil {
			if errors.Is(err, persistence.ErrConflict) {
				return ErrNotHeld
			}
			return err
		}
		return nil
	})
}

// Extend moves the hold expiry of a slot held by holderID.
func (l *Ledger) Extend(ctx context.Context, slotID, holderID string, until time.Time) error {
	return l.withSlot(ctx, slotID, func(slot persistence.Slot, now time.Time) error {
		if slot.Status != persistence.SlotHeld || slot.HolderID != holderID {
			return ErrNotHeld
		}
		if err := l.store.RenewHold(ctx, slot.ID, holderID, until, now); err != nil {
			if errors.Is(err, persistence.ErrConflict) {
				return ErrNotHeld
			}
			return err
		}
		return nil
	})
}

// Release returns a slot to open. Releasing an unknown or open slot is a no-op.
func (l *Ledger) Release(ctx context.Context, slotID string) error {
	err := l.withSlot(ctx, slotID, func(slot persistence.Slot, now time.Time) error {
		if slot.Status == persistence.SlotOpen {
			return nil
		}
		return l.store.ReleaseSlot(ctx, slot.ID, now)
	})
	if errors.Is(err, ErrNotHeld) {
		return nil
	}
	return err
}

// Relinquish releases a slot only while holderID still holds or books it, so
// a holder that lost its slot to expiry cannot free another claimant's hold.
func (l *Ledger) Relinquish(ctx context.Context, slotID, holderID string) error {
	err := l.withSlot(ctx, slotID, func(slot persistence.Slot, now time.Time) error {
		if slot.Status == persistence.SlotOpen || slot.HolderID != holderID {
			return nil
		}
		return l.store.ReleaseSlot(ctx, slot.ID, now)
	})
	if errors.Is(err, ErrNotHeld) {
		return nil
	}
	return err
}

// ExpireStaleHolds reopens every held slot whose hold expired at or before
// now and returns them as they were before release, holder included.
func (l *Ledger) ExpireStaleHolds(ctx context.Context, now time.Time) ([]persistence.Slot, error) {
	stale, err := l.store.ListSlots(ctx, persistence.SlotFilter{HoldExpiredAt: &now})
	if err != nil {
		return nil, err
	}

	released := make([]persistence.Slot, 0, len(stale))
	var errs []error
	for _, candidate := range stale {
		slot, ok, err := l.expireOne(ctx, candidate, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("expire %s: %w", candidate.ID, err))
			continue
		}
		if ok {
			released = append(released, slot)
		}
	}
	return released, errors.Join(errs...)
}

func (l *Ledger) expireOne(ctx context.Context, candidate persistence.Slot, now time.Time) (persistence.Slot, bool, error) {
	unlock, err := l.locks.Lock(ctx, lock.InterviewerKey(candidate.InterviewerID))
	if err != nil {
		return persistence.Slot{}, false, err
	}
	defer unlock()

	current, err := l.store.GetSlot(ctx, candidate.ID)
	if err != nil {
		return persistence.Slot{}, false, err
	}
	if current.Status != persistence.SlotHeld || current.HoldExpiresAt == nil || current.HoldExpiresAt.After(now) {
		return persistence.Slot{}, false, nil
	}
	if err := l.store.ReleaseSlot(ctx, current.ID, now); err != nil {
		return persistence.Slot{}, false, err
	}
	l.logger.InfoContext(ctx, "hold expired", "slot_id", current.ID, "holder_id", current.HolderID)
	return current, true, nil
}

// withSlot runs fn under the owning interviewer's lock with a fresh read.
// A missing slot is reported as ErrNotHeld.
func (l *Ledger) withSlot(ctx context.Context, slotID string, fn func(persistence.Slot, time.Time) error) error {
	slot, err := l.store.GetSlot(ctx, slotID)
	if errors.Is(err, persistence.ErrNotFound) {
		return ErrNotHeld
	}
	if err != nil {
		return err
	}

	unlock, err := l.locks.Lock(ctx, lock.InterviewerKey(slot.InterviewerID))
	if err != nil {
		return err
	}
	defer unlock()

	slot, err = l.store.GetSlot(ctx, slotID)
	if err != nil {
		return err
	}
	return fn(slot, l.now().UTC())
}

func skipped(start time.Time, skip []time.Time) bool {
	for _, s := range skip {
		if s.Equal(start) {
			return true
		}
	}
	return false
}

func overlapsAny(c availability.Occurrence, taken []persistence.Slot) bool {
	for _, slot := range taken {
		if availability.Overlaps(c.Start, c.End, slot.Start, slot.End) {
			return true
		}
	}
	return false
}
