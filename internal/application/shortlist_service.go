package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/interview-scheduler/internal/negotiation"
	"github.com/example/interview-scheduler/internal/persistence"
)

// ShortlistStore captures the persistence operations needed for batches.
type ShortlistStore interface {
	NegotiationStore
	persistence.BatchRepository
}

// ShortlistService turns a ranked candidate list into interviews. Each
// request becomes one batch record instead of a shared queue.
type ShortlistService struct {
	store       ShortlistStore
	negotiation *NegotiationService
	minScore    int
	topN        int
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewShortlistService constructs a shortlist service with the provided dependencies.
func NewShortlistService(store ShortlistStore, engine *NegotiationService, minScore, topN int, idGenerator func() string, now func() time.Time) *ShortlistService {
	return NewShortlistServiceWithLogger(store, engine, minScore, topN, idGenerator, now, nil)
}

// NewShortlistServiceWithLogger constructs a shortlist service with a specified logger.
func NewShortlistServiceWithLogger(store ShortlistStore, engine *NegotiationService, minScore, topN int, idGenerator func() string, now func() time.Time, logger *slog.Logger) *ShortlistService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	if topN <= 0 {
		topN = 3
	}
	return &ShortlistService{
		store:       store,
		negotiation: engine,
		minScore:    minScore,
		topN:        topN,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *ShortlistService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "ShortlistService", operation, attrs...)
}

// Shortlist selects the top candidates, assigns each to the least loaded
// interviewer and proposes a first slot. Candidates that already have an
// open interview are skipped. A failed first proposal does not fail the
// batch; the sweep retries it.
func (s *ShortlistService) Shortlist(ctx context.Context, params ShortlistParams) (result BatchResult, err error) {
	if s == nil {
		err = fmt.Errorf("ShortlistService is nil")
		return
	}

	minScore, topN := params.MinScore, params.TopN
	if minScore <= 0 {
		minScore = s.minScore
	}
	if topN <= 0 {
		topN = s.topN
	}

	logger := s.loggerWith(ctx, "Shortlist",
		"requested_by", params.RequestedBy,
		"min_score", minScore,
		"top_n", topN,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to shortlist", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With(
			"batch_id", result.Batch.ID,
			"created", len(result.Interviews),
			"skipped", len(result.Batch.Skipped),
			"failed", len(result.Failed),
		).InfoContext(ctx, "batch created")
	}()

	if minScore < 0 || minScore > 100 {
		err = &ValidationError{FieldErrors: map[string]string{"min_score": "must be between 0 and 100"}}
		return
	}

	candidates, err := s.selectCandidates(ctx, params.CandidateIDs, minScore, topN)
	if err != nil {
		return
	}

	now := s.now().UTC()
	batch := persistence.Batch{
		ID:          s.idGenerator(),
		RequestedBy: strings.TrimSpace(params.RequestedBy),
		MinScore:    minScore,
		TopN:        topN,
		CreatedAt:   now,
	}

	created := make([]persistence.Interview, 0, len(candidates))
	for _, candidate := range candidates {
		open, lerr := s.store.ListInterviews(ctx, persistence.InterviewFilter{
			States:      negotiation.NonTerminal(),
			CandidateID: candidate.ID,
		})
		if lerr != nil {
			err = lerr
			return
		}
		if len(open) > 0 {
			batch.Skipped = append(batch.Skipped, candidate.ID)
			continue
		}

		interviewer, ok, perr := leastLoadedInterviewer(ctx, s.store, "")
		if perr != nil {
			err = perr
			return
		}
		if !ok {
			err = &ValidationError{FieldErrors: map[string]string{"interviewers": "no active interviewer with availability"}}
			return
		}

		iv := persistence.Interview{
			ID:               s.idGenerator(),
			BatchID:          batch.ID,
			CandidateID:      candidate.ID,
			InterviewerID:    interviewer.ID,
			State:            string(negotiation.Shortlisted),
			CreatedAt:        now,
			LastTransitionAt: now,
			UpdatedAt:        now,
		}
		if err = s.store.CreateInterview(ctx, iv); err != nil {
			err = mapRepoError(err)
			return
		}
		candidate.Status = persistence.CandidateInterviewing
		candidate.UpdatedAt = now
		if uerr := s.store.UpdateCandidate(ctx, candidate); uerr != nil {
			logger.WarnContext(ctx, "candidate status not updated", "candidate_id", candidate.ID, "error", uerr)
		}
		batch.InterviewIDs = append(batch.InterviewIDs, iv.ID)
		created = append(created, iv)
	}

	if err = s.store.CreateBatch(ctx, batch); err != nil {
		err = mapRepoError(err)
		return
	}
	result.Batch = batch

	for _, iv := range created {
		proposed, perr := s.negotiation.Propose(ctx, iv.ID)
		if perr != nil && !errors.Is(perr, ErrMaxRetriesExceeded) {
			logger.WarnContext(ctx, "first proposal failed", "interview_id", iv.ID, "error", perr, "error_kind", ErrorKind(perr))
			result.Failed = append(result.Failed, iv.ID)
		}
		if proposed.ID == "" {
			if reloaded, gerr := s.store.GetInterview(ctx, iv.ID); gerr == nil {
				proposed = reloaded
			} else {
				proposed = iv
			}
		}
		result.Interviews = append(result.Interviews, proposed)
	}
	return
}

func (s *ShortlistService) selectCandidates(ctx context.Context, ids []string, minScore, topN int) ([]persistence.Candidate, error) {
	if len(ids) == 0 {
		candidates, err := s.store.ListCandidates(ctx, persistence.CandidateFilter{
			Status:   persistence.CandidateNew,
			MinScore: minScore,
			Limit:    topN,
		})
		return candidates, mapRepoError(err)
	}

	seen := make(map[string]struct{}, len(ids))
	candidates := make([]persistence.Candidate, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		candidate, err := s.store.GetCandidate(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("candidate %s: %w", id, mapRepoError(err))
		}
		candidates = append(candidates, candidate)
	}
	return candidates, nil
}

// GetBatch returns a batch record.
func (s *ShortlistService) GetBatch(ctx context.Context, id string) (persistence.Batch, error) {
	if s == nil {
		return persistence.Batch{}, fmt.Errorf("ShortlistService is nil")
	}
	batch, err := s.store.GetBatch(ctx, id)
	if err != nil {
		return persistence.Batch{}, mapRepoError(err)
	}
	return batch, nil
}
