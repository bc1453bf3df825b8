package testfixtures

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/example/interview-scheduler/internal/persistence"
)

var (
	candidateCounter   uint64
	interviewerCounter uint64
)

// CandidateOption configures a generated candidate.
type CandidateOption func(*persistence.Candidate)

// NewCandidate returns a unique candidate with a distinct phone number.
func NewCandidate(opts ...CandidateOption) persistence.Candidate {
	idx := atomic.AddUint64(&candidateCounter, 1)
	c := persistence.Candidate{
		ID:        fmt.Sprintf("cand-%03d", idx),
		Name:      fmt.Sprintf("Candidate %03d", idx),
		Email:     fmt.Sprintf("cand-%03d@example.com", idx),
		Phone:     fmt.Sprintf("+9198765%05d", idx),
		Score:     80,
		Rank:      int(idx),
		Status:    persistence.CandidateNew,
		CreatedAt: referenceTime,
		UpdatedAt: referenceTime,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithCandidateID overrides the candidate identifier.
func WithCandidateID(id string) CandidateOption {
	return func(c *persistence.Candidate) { c.ID = id }
}

// WithScore sets score and rank.
func WithScore(score, rank int) CandidateOption {
	return func(c *persistence.Candidate) {
		c.Score = score
		c.Rank = rank
	}
}

// InterviewerOption configures a generated interviewer.
type InterviewerOption func(*persistence.Interviewer)

// NewInterviewer returns an active UTC interviewer available on weekdays
// between 10:00 and 17:00.
func NewInterviewer(opts ...InterviewerOption) persistence.Interviewer {
	idx := atomic.AddUint64(&interviewerCounter, 1)
	iv := persistence.Interviewer{
		ID:        fmt.Sprintf("ivr-%03d", idx),
		Name:      fmt.Sprintf("Interviewer %03d", idx),
		Email:     fmt.Sprintf("ivr-%03d@example.com", idx),
		Phone:     fmt.Sprintf("+9199999%05d", idx),
		TimeZone:  "UTC",
		Active:    true,
		CreatedAt: referenceTime,
		UpdatedAt: referenceTime,
	}
	for day := time.Monday; day <= time.Friday; day++ {
		iv.Availability = append(iv.Availability, persistence.AvailabilityWindow{Weekday: day, StartMinute: 10 * 60, EndMinute: 17 * 60})
	}
	for _, opt := range opts {
		opt(&iv)
	}
	return iv
}

// WithInterviewerID overrides the interviewer identifier.
func WithInterviewerID(id string) InterviewerOption {
	return func(iv *persistence.Interviewer) { iv.ID = id }
}

// WithWindows replaces the weekly availability.
func WithWindows(windows ...persistence.AvailabilityWindow) InterviewerOption {
	return func(iv *persistence.Interviewer) {
		iv.Availability = append([]persistence.AvailabilityWindow(nil), windows...)
	}
}

// SingleSlot limits availability to one interval of length d starting at start.
func SingleSlot(start time.Time, d time.Duration) InterviewerOption {
	start = start.UTC()
	minute := start.Hour()*60 + start.Minute()
	return WithWindows(persistence.AvailabilityWindow{
		Weekday:     start.Weekday(),
		StartMinute: minute,
		EndMinute:   minute + int(d/time.Minute),
	})
}

// Seeder is the subset of a store needed to insert fixtures.
type Seeder interface {
	CreateCandidate(ctx context.Context, c persistence.Candidate) error
	CreateInterviewer(ctx context.Context, iv persistence.Interviewer) error
}

// Seed inserts the given records or fails the test.
func Seed(tb testing.TB, store Seeder, candidates []persistence.Candidate, interviewers []persistence.Interviewer) {
	tb.Helper()
	ctx := context.Background()
	for _, c := range candidates {
		if err := store.CreateCandidate(ctx, c); err != nil {
			tb.Fatalf("seed candidate %s: %v", c.ID, err)
		}
	}
	for _, iv := range interviewers {
		if err := store.CreateInterviewer(ctx, iv); err != nil {
			tb.Fatalf("seed interviewer %s: %v", iv.ID, err)
		}
	}
}
