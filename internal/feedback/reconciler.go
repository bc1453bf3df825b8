// Package feedback matches interviewer feedback that arrives out of band
// (mail relayed into the inbox) to the interview it is about and hands it to
// the negotiation engine.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/example/interview-scheduler/internal/intent"
	"github.com/example/interview-scheduler/internal/messaging"
	"github.com/example/interview-scheduler/internal/negotiation"
	"github.com/example/interview-scheduler/internal/persistence"
	"github.com/example/interview-scheduler/internal/telemetry"
)

// Store is the persistence the reconciler reads and marks.
type Store interface {
	persistence.InboxRepository
	GetInterviewerByContact(ctx context.Context, handle string) (persistence.Interviewer, error)
	GetCandidate(ctx context.Context, id string) (persistence.Candidate, error)
	ListInterviews(ctx context.Context, filter persistence.InterviewFilter) ([]persistence.Interview, error)
}

// Resolver parses feedback text. intent.Resolver satisfies it.
type Resolver interface {
	ResolveFeedback(ctx context.Context, raw string, c intent.Context) negotiation.Intent
}

// Applier applies a resolved intent. application.NegotiationService satisfies it.
type Applier interface {
	HandleIntent(ctx context.Context, in negotiation.Intent) (persistence.Interview, error)
}

// Config tunes polling and matching.
type Config struct {
	PollInterval time.Duration
	// SubjectKeyword must appear in the subject, case-insensitively. Empty
	// accepts every item.
	SubjectKeyword string
	// Lookback bounds how far before receipt the interview may have started.
	Lookback  time.Duration
	BatchSize int
	// MaxAttempts is how many polls a failing item survives before it is
	// dropped for manual handling.
	MaxAttempts int
	Metrics     *telemetry.Metrics
}

// DefaultConfig returns the settings used when none are configured.
func DefaultConfig() Config {
	return Config{
		PollInterval:   time.Minute,
		SubjectKeyword: "Feedback",
		Lookback:       7 * 24 * time.Hour,
		BatchSize:      50,
		MaxAttempts:    5,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.Lookback <= 0 {
		c.Lookback = d.Lookback
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	return c
}

// Result counts what one poll did with the pending items.
type Result struct {
	Applied int
	Ignored int
	Failed  int
}

// Reconciler drains the inbox on an interval.
type Reconciler struct {
	store    Store
	resolver Resolver
	applier  Applier
	config   Config
	now      func() time.Time
	logger   *slog.Logger

	mu       sync.Mutex
	attempts map[string]int
	started  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewReconciler constructs a reconciler.
func NewReconciler(store Store, resolver Resolver, applier Applier, cfg Config, now func() time.Time, logger *slog.Logger) *Reconciler {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		store:    store,
		resolver: resolver,
		applier:  applier,
		config:   cfg.withDefaults(),
		now:      now,
		logger:   logger.With("component", "feedback"),
		attempts: make(map[string]int),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start polls until ctx is cancelled or Stop is called. It blocks.
func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return errors.New("feedback: reconciler already started")
	}
	r.started = true
	r.mu.Unlock()
	defer close(r.doneCh)

	r.logger.Info("feedback reconciler started", "interval", r.config.PollInterval)

	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.stopCh:
			return nil
		case <-ticker.C:
			if _, err := r.Poll(ctx); err != nil {
				r.logger.Error("poll error", "error", err)
			}
		}
	}
}

// Stop signals the reconciler to exit and waits for it.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	started := r.started
	select {
	case <-r.stopCh:
	default:
		close(r.stopCh)
	}
	r.mu.Unlock()
	if started {
		<-r.doneCh
	}
}

// Poll processes one batch of pending inbox items. Items that cannot be
// matched are consumed and ignored; items whose application failed stay
// pending until they exhaust MaxAttempts.
func (r *Reconciler) Poll(ctx context.Context) (Result, error) {
	var result Result
	items, err := r.store.ListPendingInboxItems(ctx, r.config.BatchSize)
	if err != nil {
		return result, fmt.Errorf("list inbox: %w", err)
	}

	var errs []error
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		applied, err := r.reconcile(ctx, item)
		switch {
		case err != nil:
			result.Failed++
			r.config.Metrics.FeedbackItem(ctx, "failed")
			errs = append(errs, fmt.Errorf("inbox item %s: %w", item.ID, err))
			continue
		case applied:
			result.Applied++
			r.config.Metrics.FeedbackItem(ctx, "applied")
		default:
			result.Ignored++
			r.config.Metrics.FeedbackItem(ctx, "ignored")
		}
		if err := r.store.MarkInboxItemConsumed(ctx, item.ID, r.now().UTC()); err != nil {
			errs = append(errs, fmt.Errorf("consume inbox item %s: %w", item.ID, err))
		}
		r.forget(item.ID)
	}
	return result, errors.Join(errs...)
}

// reconcile reports whether the item was applied. A nil error with false
// means the item should be consumed without effect.
func (r *Reconciler) reconcile(ctx context.Context, item persistence.InboxItem) (bool, error) {
	logger := r.logger.With("inbox_item", item.ID, "sender", item.Sender)

	if !r.subjectMatches(item.Subject) {
		logger.Debug("inbox item ignored", "reason", "subject")
		return false, nil
	}

	sender := item.Sender
	if addr, err := mail.ParseAddress(sender); err == nil {
		sender = addr.Address
	}
	handle, ok := messaging.NormalizeHandle(sender, "")
	if !ok {
		logger.Warn("inbox item ignored", "reason", "invalid sender")
		return false, nil
	}
	interviewer, err := r.store.GetInterviewerByContact(ctx, handle)
	if errors.Is(err, persistence.ErrNotFound) {
		logger.Warn("inbox item ignored", "reason", "unknown interviewer")
		return false, nil
	}
	if err != nil {
		return false, r.failed(logger, item.ID, err)
	}

	received := item.ReceivedAt
	if received.IsZero() {
		received = r.now()
	}
	iv, ok, err := r.match(ctx, interviewer.ID, received.UTC(), item.Subject+"\n"+item.Body)
	if err != nil {
		return false, r.failed(logger, item.ID, err)
	}
	if !ok {
		logger.Warn("inbox item ignored", "reason", "no matching interview", "interviewer_id", interviewer.ID)
		return false, nil
	}
	logger = logger.With("interview_id", iv.ID)

	in := r.resolver.ResolveFeedback(ctx, item.Body, intent.Context{
		Party:       negotiation.PartyInterviewer,
		InterviewID: iv.ID,
		State:       negotiation.State(iv.State),
		SlotStart:   iv.SlotStart,
		SourceID:    item.ID,
	})
	if in.Kind != negotiation.IntentProvideFeedback {
		logger.Warn("inbox item ignored", "reason", "empty feedback")
		return false, nil
	}

	if _, err := r.applier.HandleIntent(ctx, in); err != nil {
		if errors.Is(err, negotiation.ErrInvalidTransition) {
			logger.Warn("inbox item ignored", "reason", "interview not awaiting feedback", "error", err)
			return false, nil
		}
		return false, r.failed(logger, item.ID, err)
	}
	logger.Info("feedback reconciled", "outcome", in.Feedback.Outcome)
	return true, nil
}

// failed counts an attempt for the item. Once the budget is spent the error
// is logged and swallowed so the item gets consumed.
func (r *Reconciler) failed(logger *slog.Logger, id string, err error) error {
	r.mu.Lock()
	r.attempts[id]++
	n := r.attempts[id]
	r.mu.Unlock()
	if n >= r.config.MaxAttempts {
		logger.Error("inbox item dropped after repeated failures", "attempts", n, "error", err)
		return nil
	}
	return err
}

func (r *Reconciler) forget(id string) {
	r.mu.Lock()
	delete(r.attempts, id)
	r.mu.Unlock()
}

func (r *Reconciler) subjectMatches(subject string) bool {
	keyword := strings.TrimSpace(r.config.SubjectKeyword)
	if keyword == "" {
		return true
	}
	return strings.Contains(strings.ToLower(subject), strings.ToLower(keyword))
}

var matchableStates = []string{
	string(negotiation.AwaitingFeedback),
	string(negotiation.Scheduled),
	string(negotiation.Completed),
	string(negotiation.CompletedUnresolved),
}

func statePriority(state string) int {
	switch negotiation.State(state) {
	case negotiation.AwaitingFeedback:
		return 0
	case negotiation.Scheduled:
		return 1
	default:
		return 2
	}
}

// match picks the interview the feedback is about: one of the interviewer's
// interviews that started within the lookback before receipt. Interviews
// whose candidate is named in the text win, even when already finished, then
// interviews still waiting for feedback, then the most recent.
func (r *Reconciler) match(ctx context.Context, interviewerID string, received time.Time, text string) (persistence.Interview, bool, error) {
	from := received.Add(-r.config.Lookback)
	interviews, err := r.store.ListInterviews(ctx, persistence.InterviewFilter{
		InterviewerID: interviewerID,
		States:        matchableStates,
		SlotStartFrom: &from,
		SlotStartTo:   &received,
	})
	if err != nil {
		return persistence.Interview{}, false, err
	}
	if len(interviews) == 0 {
		return persistence.Interview{}, false, nil
	}

	lowered := strings.ToLower(text)
	named := make(map[string]bool, len(interviews))
	for _, iv := range interviews {
		candidate, err := r.store.GetCandidate(ctx, iv.CandidateID)
		if err != nil {
			if errors.Is(err, persistence.ErrNotFound) {
				continue
			}
			return persistence.Interview{}, false, err
		}
		name := strings.ToLower(strings.TrimSpace(candidate.Name))
		named[iv.ID] = name != "" && strings.Contains(lowered, name)
	}

	sort.SliceStable(interviews, func(i, j int) bool {
		a, b := interviews[i], interviews[j]
		if named[a.ID] != named[b.ID] {
			return named[a.ID]
		}
		if pa, pb := statePriority(a.State), statePriority(b.State); pa != pb {
			return pa < pb
		}
		return a.SlotStart.After(*b.SlotStart)
	})
	return interviews[0], true, nil
}
