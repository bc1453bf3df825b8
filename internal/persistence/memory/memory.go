// Package memory provides an in-process Store used by tests and by the
// single-node development server.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/example/interview-scheduler/internal/persistence"
)

// Store keeps every record in maps guarded by a single RWMutex.
type Store struct {
	mu           sync.RWMutex
	candidates   map[string]persistence.Candidate
	interviewers map[string]persistence.Interviewer
	slots        map[string]persistence.Slot
	interviews   map[string]persistence.Interview
	notes        map[string][]persistence.FeedbackNote
	batches      map[string]persistence.Batch
	inbox        map[string]persistence.InboxItem
}

var _ persistence.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		candidates:   make(map[string]persistence.Candidate),
		interviewers: make(map[string]persistence.Interviewer),
		slots:        make(map[string]persistence.Slot),
		interviews:   make(map[string]persistence.Interview),
		notes:        make(map[string][]persistence.FeedbackNote),
		batches:      make(map[string]persistence.Batch),
		inbox:        make(map[string]persistence.InboxItem),
	}
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

// --- CandidateRepository ---

func (s *Store) CreateCandidate(ctx context.Context, c persistence.Candidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.candidates[c.ID]; ok {
		return persistence.ErrDuplicate
	}
	if c.Phone != "" {
		for _, existing := range s.candidates {
			if existing.Phone == c.Phone {
				return persistence.ErrDuplicate
			}
		}
	}
	s.candidates[c.ID] = c
	return nil
}

func (s *Store) UpdateCandidate(ctx context.Context, c persistence.Candidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.candidates[c.ID]; !ok {
		return persistence.ErrNotFound
	}
	s.candidates[c.ID] = c
	return nil
}

func (s *Store) GetCandidate(ctx context.Context, id string) (persistence.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.candidates[id]
	if !ok {
		return persistence.Candidate{}, persistence.ErrNotFound
	}
	return c, nil
}

func (s *Store) GetCandidateByPhone(ctx context.Context, phone string) (persistence.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.candidates {
		if c.Phone != "" && c.Phone == phone {
			return c, nil
		}
	}
	return persistence.Candidate{}, persistence.ErrNotFound
}

func (s *Store) ListCandidates(ctx context.Context, filter persistence.CandidateFilter) ([]persistence.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]persistence.Candidate, 0, len(s.candidates))
	for _, c := range s.candidates {
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		if c.Score < filter.MinScore {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rank != out[j].Rank {
			return out[i].Rank < out[j].Rank
		}
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// --- InterviewerRepository ---

func (s *Store) CreateInterviewer(ctx context.Context, iv persistence.Interviewer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.interviewers[iv.ID]; ok {
		return persistence.ErrDuplicate
	}
	for _, existing := range s.interviewers {
		if iv.Email != "" && strings.EqualFold(existing.Email, iv.Email) {
			return persistence.ErrDuplicate
		}
	}
	s.interviewers[iv.ID] = cloneInterviewer(iv)
	return nil
}

func (s *Store) UpdateInterviewer(ctx context.Context, iv persistence.Interviewer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.interviewers[iv.ID]; !ok {
		return persistence.ErrNotFound
	}
	s.interviewers[iv.ID] = cloneInterviewer(iv)
	return nil
}

func (s *Store) GetInterviewer(ctx context.Context, id string) (persistence.Interviewer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	iv, ok := s.interviewers[id]
	if !ok {
		return persistence.Interviewer{}, persistence.ErrNotFound
	}
	return cloneInterviewer(iv), nil
}

func (s *Store) GetInterviewerByContact(ctx context.Context, handle string) (persistence.Interviewer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, iv := range s.interviewers {
		if (iv.Phone != "" && iv.Phone == handle) || (iv.Email != "" && strings.EqualFold(iv.Email, handle)) {
			return cloneInterviewer(iv), nil
		}
	}
	return persistence.Interviewer{}, persistence.ErrNotFound
}

func (s *Store) ListInterviewers(ctx context.Context, activeOnly bool) ([]persistence.Interviewer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]persistence.Interviewer, 0, len(s.interviewers))
	for _, iv := range s.interviewers {
		if activeOnly && !iv.Active {
			continue
		}
		out = append(out, cloneInterviewer(iv))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- SlotRepository ---

func (s *Store) GetSlot(ctx context.Context, id string) (persistence.Slot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	slot, ok := s.slots[id]
	if !ok {
		return persistence.Slot{}, persistence.ErrNotFound
	}
	return cloneSlot(slot), nil
}

func (s *Store) ListSlots(ctx context.Context, filter persistence.SlotFilter) ([]persistence.Slot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]persistence.Slot, 0)
	for _, slot := range s.slots {
		if filter.InterviewerID != "" && slot.InterviewerID != filter.InterviewerID {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, slot.Status) {
			continue
		}
		if filter.StartsBefore != nil && !slot.Start.Before(*filter.StartsBefore) {
			continue
		}
		if filter.EndsAfter != nil && !slot.End.After(*filter.EndsAfter) {
			continue
		}
		if filter.HoldExpiredAt != nil {
			if slot.Status != persistence.SlotHeld || slot.HoldExpiresAt == nil || slot.HoldExpiresAt.After(*filter.HoldExpiredAt) {
				continue
			}
		}
		out = append(out, cloneSlot(slot))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start.Equal(out[j].Start) {
			return out[i].ID < out[j].ID
		}
		return out[i].Start.Before(out[j].Start)
	})
	return out, nil
}

func (s *Store) ClaimSlot(ctx context.Context, slot persistence.Slot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.slots[slot.ID]; ok {
		if existing.Status != persistence.SlotOpen {
			return persistence.ErrConflict
		}
		slot.CreatedAt = existing.CreatedAt
	}
	slot.Status = persistence.SlotHeld
	s.slots[slot.ID] = cloneSlot(slot)
	return nil
}

func (s *Store) BookSlot(ctx context.Context, id, holderID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[id]
	if !ok {
		return persistence.ErrNotFound
	}
	if slot.Status != persistence.SlotHeld || slot.HolderID != holderID {
		return persistence.ErrConflict
	}
	slot.Status = persistence.SlotBooked
	slot.HoldExpiresAt = nil
	slot.UpdatedAt = at
	s.slots[id] = slot
	return nil
}

func (s *Store) RenewHold(ctx context.Context, id, holderID string, until, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[id]
	if !ok {
		return persistence.ErrNotFound
	}
	if slot.Status != persistence.SlotHeld || slot.HolderID != holderID {
		return persistence.ErrConflict
	}
	slot.HoldExpiresAt = &until
	slot.UpdatedAt = at
	s.slots[id] = slot
	return nil
}

func (s *Store) ReleaseSlot(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[id]
	if !ok {
		return persistence.ErrNotFound
	}
	slot.Status = persistence.SlotOpen
	slot.HolderID = ""
	slot.HoldExpiresAt = nil
	slot.UpdatedAt = at
	s.slots[id] = slot
	return nil
}

// --- InterviewRepository ---

func (s *Store) CreateInterview(ctx context.Context, iv persistence.Interview) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.interviews[iv.ID]; ok {
		return persistence.ErrDuplicate
	}
	s.interviews[iv.ID] = cloneInterview(iv)
	return nil
}

func (s *Store) GetInterview(ctx context.Context, id string) (persistence.Interview, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	iv, ok := s.interviews[id]
	if !ok {
		return persistence.Interview{}, persistence.ErrNotFound
	}
	return cloneInterview(iv), nil
}

func (s *Store) UpdateInterview(ctx context.Context, iv persistence.Interview) (persistence.Interview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.interviews[iv.ID]
	if !ok {
		return persistence.Interview{}, persistence.ErrNotFound
	}
	if existing.Version != iv.Version {
		return persistence.Interview{}, persistence.ErrConflict
	}
	iv.Version++
	s.interviews[iv.ID] = cloneInterview(iv)
	return cloneInterview(iv), nil
}

func (s *Store) ListInterviews(ctx context.Context, f persistence.InterviewFilter) ([]persistence.Interview, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]persistence.Interview, 0)
	for _, iv := range s.interviews {
		if matchInterview(iv, f) {
			out = append(out, cloneInterview(iv))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) MarkArchived(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	iv, ok := s.interviews[id]
	if !ok {
		return persistence.ErrNotFound
	}
	iv.ArchivedAt = &at
	s.interviews[id] = iv
	return nil
}

func matchInterview(iv persistence.Interview, f persistence.InterviewFilter) bool {
	if !f.IncludeArchived && iv.ArchivedAt != nil {
		return false
	}
	if len(f.States) > 0 && !containsString(f.States, iv.State) {
		return false
	}
	if f.CandidateID != "" && iv.CandidateID != f.CandidateID {
		return false
	}
	if f.InterviewerID != "" && iv.InterviewerID != f.InterviewerID {
		return false
	}
	if f.BatchID != "" && iv.BatchID != f.BatchID {
		return false
	}
	if f.DeadlineAfter != nil && (iv.ResponseDeadline == nil || !iv.ResponseDeadline.After(*f.DeadlineAfter)) {
		return false
	}
	if f.DeadlineBefore != nil && (iv.ResponseDeadline == nil || iv.ResponseDeadline.After(*f.DeadlineBefore)) {
		return false
	}
	if f.RetryDueBy != nil && (iv.NextRetryAt == nil || iv.NextRetryAt.After(*f.RetryDueBy)) {
		return false
	}
	if f.SlotStartFrom != nil && (iv.SlotStart == nil || iv.SlotStart.Before(*f.SlotStartFrom)) {
		return false
	}
	if f.SlotStartTo != nil && (iv.SlotStart == nil || iv.SlotStart.After(*f.SlotStartTo)) {
		return false
	}
	if f.TransitionBy != nil && iv.LastTransitionAt.After(*f.TransitionBy) {
		return false
	}
	return true
}

// --- FeedbackRepository ---

func (s *Store) AddFeedbackNote(ctx context.Context, note persistence.FeedbackNote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.notes[note.InterviewID] {
		if note.SourceID != "" && existing.SourceID == note.SourceID {
			return persistence.ErrDuplicate
		}
	}
	s.notes[note.InterviewID] = append(s.notes[note.InterviewID], note)
	return nil
}

func (s *Store) ListFeedbackNotes(ctx context.Context, interviewID string) ([]persistence.FeedbackNote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	notes := s.notes[interviewID]
	out := make([]persistence.FeedbackNote, len(notes))
	copy(out, notes)
	return out, nil
}

// --- BatchRepository ---

func (s *Store) CreateBatch(ctx context.Context, b persistence.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.batches[b.ID]; ok {
		return persistence.ErrDuplicate
	}
	b.InterviewIDs = append([]string(nil), b.InterviewIDs...)
	b.Skipped = append([]string(nil), b.Skipped...)
	s.batches[b.ID] = b
	return nil
}

func (s *Store) GetBatch(ctx context.Context, id string) (persistence.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.batches[id]
	if !ok {
		return persistence.Batch{}, persistence.ErrNotFound
	}
	b.InterviewIDs = append([]string(nil), b.InterviewIDs...)
	b.Skipped = append([]string(nil), b.Skipped...)
	return b, nil
}

// --- InboxRepository ---

func (s *Store) EnqueueInboxItem(ctx context.Context, item persistence.InboxItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inbox[item.ID]; ok {
		return persistence.ErrDuplicate
	}
	s.inbox[item.ID] = item
	return nil
}

func (s *Store) ListPendingInboxItems(ctx context.Context, limit int) ([]persistence.InboxItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]persistence.InboxItem, 0)
	for _, item := range s.inbox {
		if item.ConsumedAt == nil {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ReceivedAt.Equal(out[j].ReceivedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ReceivedAt.Before(out[j].ReceivedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) MarkInboxItemConsumed(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.inbox[id]
	if !ok {
		return persistence.ErrNotFound
	}
	item.ConsumedAt = &at
	s.inbox[id] = item
	return nil
}

// --- helpers ---

func cloneInterviewer(iv persistence.Interviewer) persistence.Interviewer {
	iv.Availability = append([]persistence.AvailabilityWindow(nil), iv.Availability...)
	return iv
}

func cloneSlot(slot persistence.Slot) persistence.Slot {
	slot.HoldExpiresAt = cloneTime(slot.HoldExpiresAt)
	return slot
}

func cloneInterview(iv persistence.Interview) persistence.Interview {
	iv.SlotStart = cloneTime(iv.SlotStart)
	iv.SlotEnd = cloneTime(iv.SlotEnd)
	iv.ResponseDeadline = cloneTime(iv.ResponseDeadline)
	iv.NextRetryAt = cloneTime(iv.NextRetryAt)
	iv.LastReminderAt = cloneTime(iv.LastReminderAt)
	iv.ArchivedAt = cloneTime(iv.ArchivedAt)
	return iv
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

func containsStatus(values []persistence.SlotStatus, target persistence.SlotStatus) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
