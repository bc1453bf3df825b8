package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/interview-scheduler/internal/archive"
	"github.com/example/interview-scheduler/internal/negotiation"
	"github.com/example/interview-scheduler/internal/persistence"
)

// ArchiveService copies finished interviews to cold storage and flags them
// archived. Records are never deleted in place.
type ArchiveService struct {
	store    NegotiationStore
	archiver archive.Archiver
	now      func() time.Time
	logger   *slog.Logger
}

// NewArchiveService constructs an archive service.
func NewArchiveService(store NegotiationStore, archiver archive.Archiver, now func() time.Time, logger *slog.Logger) *ArchiveService {
	if now == nil {
		now = time.Now
	}
	return &ArchiveService{store: store, archiver: archiver, now: now, logger: defaultLogger(logger)}
}

// ArchiveResult lists the object keys written.
type ArchiveResult struct {
	Keys []string
}

// ArchiveTerminal archives every terminal interview whose last transition is
// older than olderThan. Failures are collected per interview.
func (s *ArchiveService) ArchiveTerminal(ctx context.Context, olderThan time.Duration) (result ArchiveResult, err error) {
	if s == nil {
		err = fmt.Errorf("ArchiveService is nil")
		return
	}
	if s.archiver == nil {
		err = archive.ErrNotConfigured
		return
	}

	logger := serviceLogger(ctx, s.logger, "ArchiveService", "ArchiveTerminal", "older_than", olderThan.String())
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "archive run incomplete", "archived", len(result.Keys), "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("archived", len(result.Keys)).InfoContext(ctx, "archive run finished")
	}()

	now := s.now().UTC()
	cutoff := now.Add(-olderThan)
	terminal := make([]string, 0, 4)
	for _, state := range negotiation.States {
		if state.Terminal() {
			terminal = append(terminal, string(state))
		}
	}
	interviews, err := s.store.ListInterviews(ctx, persistence.InterviewFilter{States: terminal, TransitionBy: &cutoff})
	if err != nil {
		return
	}

	var errs []error
	for _, iv := range interviews {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		key, aerr := s.archiveOne(ctx, iv, now)
		if aerr != nil {
			errs = append(errs, fmt.Errorf("interview %s: %w", iv.ID, aerr))
			continue
		}
		result.Keys = append(result.Keys, key)
	}
	err = errors.Join(errs...)
	return
}

func (s *ArchiveService) archiveOne(ctx context.Context, iv persistence.Interview, now time.Time) (string, error) {
	rec := archive.Record{Interview: iv, ArchivedAt: now}
	var err error
	if rec.Candidate, err = s.store.GetCandidate(ctx, iv.CandidateID); err != nil && !errors.Is(err, persistence.ErrNotFound) {
		return "", err
	}
	if rec.Interviewer, err = s.store.GetInterviewer(ctx, iv.InterviewerID); err != nil && !errors.Is(err, persistence.ErrNotFound) {
		return "", err
	}
	if rec.Notes, err = s.store.ListFeedbackNotes(ctx, iv.ID); err != nil {
		return "", err
	}

	key, err := s.archiver.Archive(ctx, rec)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExternalService, err)
	}
	if err := s.store.MarkArchived(ctx, iv.ID, now); err != nil {
		return "", mapRepoError(err)
	}
	return key, nil
}
