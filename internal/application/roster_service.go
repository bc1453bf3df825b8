package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"sort"
	"strings"
	"time"

	"github.com/example/interview-scheduler/internal/messaging"
	"github.com/example/interview-scheduler/internal/persistence"
)

// RosterStore captures the persistence operations needed for people.
type RosterStore interface {
	persistence.CandidateRepository
	persistence.InterviewerRepository
}

// RosterService maintains candidates and interviewers.
type RosterService struct {
	store       RosterStore
	countryCode string
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewRosterService constructs a roster service with the provided dependencies.
func NewRosterService(store RosterStore, countryCode string, idGenerator func() string, now func() time.Time) *RosterService {
	return NewRosterServiceWithLogger(store, countryCode, idGenerator, now, nil)
}

// NewRosterServiceWithLogger constructs a roster service with a specified logger.
func NewRosterServiceWithLogger(store RosterStore, countryCode string, idGenerator func() string, now func() time.Time, logger *slog.Logger) *RosterService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &RosterService{store: store, countryCode: countryCode, idGenerator: idGenerator, now: now, logger: defaultLogger(logger)}
}

func (s *RosterService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "RosterService", operation, attrs...)
}

// CreateCandidate validates input and stores a new candidate.
func (s *RosterService) CreateCandidate(ctx context.Context, input CandidateInput) (candidate persistence.Candidate, err error) {
	if s == nil {
		err = fmt.Errorf("RosterService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CreateCandidate")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create candidate", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("candidate_id", candidate.ID).InfoContext(ctx, "candidate created")
	}()

	phone, vErr := s.validateCandidateInput(input)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	now := s.now().UTC()
	candidate = persistence.Candidate{
		ID:        s.idGenerator(),
		Name:      strings.TrimSpace(input.Name),
		Email:     strings.ToLower(strings.TrimSpace(input.Email)),
		Phone:     phone,
		Score:     input.Score,
		Rank:      input.Rank,
		Status:    persistence.CandidateNew,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err = s.store.CreateCandidate(ctx, candidate); err != nil {
		err = mapRepoError(err)
	}
	return
}

// ListCandidates returns candidates ranked for shortlisting.
func (s *RosterService) ListCandidates(ctx context.Context, status string, minScore int) ([]persistence.Candidate, error) {
	if s == nil {
		return nil, fmt.Errorf("RosterService is nil")
	}
	candidates, err := s.store.ListCandidates(ctx, persistence.CandidateFilter{Status: strings.TrimSpace(status), MinScore: minScore})
	if err != nil {
		return nil, mapRepoError(err)
	}
	return candidates, nil
}

// CreateInterviewer validates input and stores a new interviewer.
func (s *RosterService) CreateInterviewer(ctx context.Context, input InterviewerInput) (interviewer persistence.Interviewer, err error) {
	if s == nil {
		err = fmt.Errorf("RosterService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CreateInterviewer")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create interviewer", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("interviewer_id", interviewer.ID).InfoContext(ctx, "interviewer created")
	}()

	phone, vErr := s.validateInterviewerInput(input)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	now := s.now().UTC()
	interviewer = persistence.Interviewer{
		ID:           s.idGenerator(),
		Name:         strings.TrimSpace(input.Name),
		Email:        strings.ToLower(strings.TrimSpace(input.Email)),
		Phone:        phone,
		TimeZone:     timeZoneOrUTC(input.TimeZone),
		Active:       input.Active == nil || *input.Active,
		Availability: normalizeWindows(input.Availability),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err = s.store.CreateInterviewer(ctx, interviewer); err != nil {
		err = mapRepoError(err)
	}
	return
}

// UpdateAvailability replaces an interviewer's weekly windows. Existing
// holds and bookings are unaffected; only future proposals see the change.
func (s *RosterService) UpdateAvailability(ctx context.Context, interviewerID string, windows []persistence.AvailabilityWindow, active *bool) (interviewer persistence.Interviewer, err error) {
	if s == nil {
		err = fmt.Errorf("RosterService is nil")
		return
	}

	logger := s.loggerWith(ctx, "UpdateAvailability", "interviewer_id", interviewerID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update availability", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("windows", len(interviewer.Availability), "active", interviewer.Active).InfoContext(ctx, "availability updated")
	}()

	vErr := &ValidationError{}
	validateWindows(vErr, windows)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	interviewer, err = s.store.GetInterviewer(ctx, interviewerID)
	if err != nil {
		err = mapRepoError(err)
		return
	}
	interviewer.Availability = normalizeWindows(windows)
	if active != nil {
		interviewer.Active = *active
	}
	interviewer.UpdatedAt = s.now().UTC()
	if err = s.store.UpdateInterviewer(ctx, interviewer); err != nil {
		err = mapRepoError(err)
	}
	return
}

// ListInterviewers returns interviewers ordered by name.
func (s *RosterService) ListInterviewers(ctx context.Context, activeOnly bool) ([]persistence.Interviewer, error) {
	if s == nil {
		return nil, fmt.Errorf("RosterService is nil")
	}
	interviewers, err := s.store.ListInterviewers(ctx, activeOnly)
	if err != nil {
		return nil, mapRepoError(err)
	}
	sort.SliceStable(interviewers, func(i, j int) bool {
		if strings.EqualFold(interviewers[i].Name, interviewers[j].Name) {
			return interviewers[i].ID < interviewers[j].ID
		}
		return strings.ToLower(interviewers[i].Name) < strings.ToLower(interviewers[j].Name)
	})
	return interviewers, nil
}

// ImportResult counts what an import created and skipped.
type ImportResult struct {
	Candidates   int
	Interviewers int
	Skipped      int
}

// Import creates every listed person, skipping those that already exist.
func (s *RosterService) Import(ctx context.Context, candidates []CandidateInput, interviewers []InterviewerInput) (ImportResult, error) {
	var result ImportResult
	for _, input := range interviewers {
		_, err := s.CreateInterviewer(ctx, input)
		switch {
		case errors.Is(err, ErrAlreadyExists):
			result.Skipped++
		case err != nil:
			return result, fmt.Errorf("interviewer %q: %w", input.Name, err)
		default:
			result.Interviewers++
		}
	}
	for _, input := range candidates {
		_, err := s.CreateCandidate(ctx, input)
		switch {
		case errors.Is(err, ErrAlreadyExists):
			result.Skipped++
		case err != nil:
			return result, fmt.Errorf("candidate %q: %w", input.Name, err)
		default:
			result.Candidates++
		}
	}
	return result, nil
}

func (s *RosterService) validateCandidateInput(input CandidateInput) (string, *ValidationError) {
	vErr := &ValidationError{}
	if strings.TrimSpace(input.Name) == "" {
		vErr.add("name", "name is required")
	}
	if email := strings.TrimSpace(input.Email); email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			vErr.add("email", "email is invalid")
		}
	}
	phone, ok := messaging.NormalizeHandle(input.Phone, s.countryCode)
	if !ok || messaging.IsEmail(phone) {
		vErr.add("phone", "phone number is invalid")
	}
	if input.Score < 0 || input.Score > 100 {
		vErr.add("score", "score must be between 0 and 100")
	}
	if input.Rank < 0 {
		vErr.add("rank", "rank must not be negative")
	}
	return phone, vErr
}

func (s *RosterService) validateInterviewerInput(input InterviewerInput) (string, *ValidationError) {
	vErr := &ValidationError{}
	if strings.TrimSpace(input.Name) == "" {
		vErr.add("name", "name is required")
	}
	if input.Email == "" {
		vErr.add("email", "email is required")
	} else if _, err := mail.ParseAddress(input.Email); err != nil {
		vErr.add("email", "email is invalid")
	}

	var phone string
	if strings.TrimSpace(input.Phone) != "" {
		normalized, ok := messaging.NormalizeHandle(input.Phone, s.countryCode)
		if !ok || messaging.IsEmail(normalized) {
			vErr.add("phone", "phone number is invalid")
		}
		phone = normalized
	}
	if tz := strings.TrimSpace(input.TimeZone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			vErr.add("time_zone", "unknown time zone")
		}
	}
	validateWindows(vErr, input.Availability)
	return phone, vErr
}

func validateWindows(vErr *ValidationError, windows []persistence.AvailabilityWindow) {
	for _, w := range windows {
		if w.Weekday < time.Sunday || w.Weekday > time.Saturday {
			vErr.add("availability", "weekday out of range")
			return
		}
		if w.StartMinute < 0 || w.EndMinute > 24*60 || w.StartMinute >= w.EndMinute {
			vErr.add("availability", "window must start before it ends within one day")
			return
		}
	}
}

func normalizeWindows(windows []persistence.AvailabilityWindow) []persistence.AvailabilityWindow {
	out := append([]persistence.AvailabilityWindow(nil), windows...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weekday == out[j].Weekday {
			return out[i].StartMinute < out[j].StartMinute
		}
		return out[i].Weekday < out[j].Weekday
	})
	return out
}

func timeZoneOrUTC(tz string) string {
	if tz = strings.TrimSpace(tz); tz == "" {
		return "UTC"
	}
	return tz
}
