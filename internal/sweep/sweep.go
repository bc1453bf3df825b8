// Package sweep drives the periodic maintenance of open negotiations: hold
// expiry, response and feedback timeouts, reminders and retries.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Actions are the sweep phases. application.NegotiationService satisfies it.
// Each phase returns how many interviews it acted on.
type Actions interface {
	ExpireHolds(ctx context.Context) (int, error)
	ResponseTimeouts(ctx context.Context) (int, error)
	ElapsedInterviews(ctx context.Context) (int, error)
	FeedbackTimeouts(ctx context.Context) (int, error)
	Reminders(ctx context.Context) (int, error)
	RetryDue(ctx context.Context) (int, error)
}

// Config holds the loop settings.
type Config struct {
	Interval time.Duration
}

// DefaultConfig returns the interval used when none is configured.
func DefaultConfig() Config {
	return Config{Interval: 2 * time.Minute}
}

// Result counts the interviews each phase touched, keyed by phase name.
type Result map[string]int

// Total sums every phase.
func (r Result) Total() int {
	n := 0
	for _, v := range r {
		n += v
	}
	return n
}

type phase struct {
	name string
	run  func(context.Context) (int, error)
}

// Loop runs the sweep phases on a fixed interval.
type Loop struct {
	actions Actions
	config  Config
	logger  *slog.Logger

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewLoop creates a sweep loop. A non-positive interval falls back to the default.
func NewLoop(actions Actions, cfg Config, logger *slog.Logger) *Loop {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		actions: actions,
		config:  cfg,
		logger:  logger.With("component", "sweep"),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start runs the loop until ctx is cancelled or Stop is called. It blocks.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return errors.New("sweep: loop already started")
	}
	l.started = true
	l.mu.Unlock()
	defer close(l.doneCh)

	l.logger.Info("sweep started", "interval", l.config.Interval)

	ticker := time.NewTicker(l.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("sweep stopped", "reason", "context cancelled")
			return ctx.Err()
		case <-l.stopCh:
			l.logger.Info("sweep stopped", "reason", "stop requested")
			return nil
		case <-ticker.C:
			if _, err := l.Tick(ctx); err != nil {
				l.logger.Error("tick error", "error", err)
			}
		}
	}
}

// Stop signals the loop to exit and waits for it. Calling Stop on a loop that
// never started returns immediately.
func (l *Loop) Stop() {
	l.mu.Lock()
	started := l.started
	select {
	case <-l.stopCh:
	default:
		close(l.stopCh)
	}
	l.mu.Unlock()
	if started {
		<-l.doneCh
	}
}

// Tick runs one pass over every phase in order. A failing phase does not stop
// the ones after it; all failures are joined into the returned error.
func (l *Loop) Tick(ctx context.Context) (Result, error) {
	phases := []phase{
		{"expire_holds", l.actions.ExpireHolds},
		{"response_timeouts", l.actions.ResponseTimeouts},
		{"elapsed_interviews", l.actions.ElapsedInterviews},
		{"feedback_timeouts", l.actions.FeedbackTimeouts},
		{"reminders", l.actions.Reminders},
		{"retry_due", l.actions.RetryDue},
	}

	result := make(Result, len(phases))
	var errs []error
	for _, p := range phases {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		n, err := p.run(ctx)
		result[p.name] = n
		if err != nil {
			l.logger.Warn("sweep phase failed", "phase", p.name, "acted", n, "error", err)
			errs = append(errs, fmt.Errorf("phase %s: %w", p.name, err))
			continue
		}
		if n > 0 {
			l.logger.Info("sweep phase acted", "phase", p.name, "acted", n)
		}
	}
	return result, errors.Join(errs...)
}
