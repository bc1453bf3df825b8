package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/example/interview-scheduler/internal/application"
	"github.com/example/interview-scheduler/internal/archive"
	"github.com/example/interview-scheduler/internal/calendar"
	"github.com/example/interview-scheduler/internal/config"
	"github.com/example/interview-scheduler/internal/feedback"
	httptransport "github.com/example/interview-scheduler/internal/http"
	"github.com/example/interview-scheduler/internal/intent"
	"github.com/example/interview-scheduler/internal/ledger"
	"github.com/example/interview-scheduler/internal/lock"
	"github.com/example/interview-scheduler/internal/messaging"
	"github.com/example/interview-scheduler/internal/persistence/sqlstore"
	"github.com/example/interview-scheduler/internal/sweep"
	"github.com/example/interview-scheduler/internal/telemetry"
)

// app holds the wired services for one process.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	now    func() time.Time

	store    *sqlstore.Store
	redis    *redis.Client
	metrics  *telemetry.Metrics
	resolver *intent.Resolver

	engine    *application.NegotiationService
	inbound   *application.InboundRouter
	shortlist *application.ShortlistService
	roster    *application.RosterService
	archive   *application.ArchiveService
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (a *app, err error) {
	a = &app{cfg: cfg, logger: logger, now: time.Now}
	defer func() {
		if err != nil {
			a.Close()
			a = nil
		}
	}()

	a.store, err = sqlstore.Open(ctx, cfg.DBDriver, cfg.DSN)
	if err != nil {
		return a, fmt.Errorf("open storage: %w", err)
	}

	a.metrics, err = telemetry.New(nil)
	if err != nil {
		return a, err
	}

	locks, err := a.locker(ctx)
	if err != nil {
		return a, err
	}

	holidays, err := cfg.Holidays()
	if err != nil {
		return a, err
	}
	slots := ledger.New(a.store, locks, ledger.Options{
		SlotDuration: cfg.SlotDuration,
		HoldTTL:      cfg.HoldTTL,
		MinLead:      cfg.MinLead,
		Lookahead:    cfg.Lookahead,
		ExcludeDates: holidays,
	}, a.now, logger)

	meetings, err := calendar.NewLinkProvisioner(cfg.MeetingBaseURL)
	if err != nil {
		return a, fmt.Errorf("meeting links: %w", err)
	}

	sender := newSender(cfg, logger)
	a.resolver = intent.NewResolver(newClassifier(cfg), cfg.ClassifierMinConfidence, cfg.ExternalTimeout, logger)

	a.engine = application.NewNegotiationService(application.NegotiationDeps{
		Store:    a.store,
		Ledger:   slots,
		Locks:    locks,
		Sender:   sender,
		Calendar: meetings,
		Metrics:  a.metrics,
		Policy: application.Policy{
			ResponseWindow:           cfg.ResponseWindow,
			FeedbackWindow:           cfg.FeedbackWindow,
			ReminderLead:             cfg.ReminderLead,
			ReminderInterval:         cfg.ReminderInterval,
			RetryBackoff:             cfg.RetryBackoff,
			ExternalTimeout:          cfg.ExternalTimeout,
			MaxAttempts:              cfg.MaxAttempts,
			MaxRetries:               cfg.MaxRetries,
			MaxInterviewerRejections: cfg.MaxInterviewerRejections,
			MaxReminders:             cfg.MaxReminders,
		},
		IDGenerator: uuid.NewString,
		Now:         a.now,
		Logger:      logger,
	})
	a.inbound = application.NewInboundRouter(a.store, a.resolver, a.engine, sender, application.InboundOptions{
		DefaultCountryCode: cfg.DefaultCountryCode,
		HRContact:          cfg.HRContact,
		ExternalTimeout:    cfg.ExternalTimeout,
		Now:                a.now,
	}, logger)
	a.shortlist = application.NewShortlistServiceWithLogger(a.store, a.engine, cfg.MinScore, cfg.TopN, uuid.NewString, a.now, logger)
	a.roster = application.NewRosterServiceWithLogger(a.store, cfg.DefaultCountryCode, uuid.NewString, a.now, logger)

	var archiver archive.Archiver
	if cfg.ArchiveBucket != "" {
		s3Archiver, aerr := archive.NewS3Archiver(ctx, archive.S3Config{
			Bucket:   cfg.ArchiveBucket,
			Region:   cfg.ArchiveRegion,
			Endpoint: cfg.ArchiveEndpoint,
			Prefix:   cfg.ArchivePrefix,
		})
		if aerr != nil {
			return a, fmt.Errorf("archive: %w", aerr)
		}
		archiver = s3Archiver
	}
	a.archive = application.NewArchiveService(a.store, archiver, a.now, logger)

	return a, nil
}

// locker returns a Redis lease locker when an address is configured, so that
// several replicas serialize on the same interview, and an in-process locker
// otherwise.
func (a *app) locker(ctx context.Context) (lock.Locker, error) {
	if a.cfg.RedisAddr == "" {
		return lock.NewKeyed(), nil
	}
	a.redis = lock.DialRedis(a.cfg.RedisAddr, a.cfg.RedisPassword, a.cfg.RedisDB)
	if err := a.redis.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis %s: %w", a.cfg.RedisAddr, err)
	}
	a.logger.Info("using redis locks", "addr", a.cfg.RedisAddr)
	return lock.NewRedisLocker(a.redis, lock.RedisOptions{
		TTL: a.cfg.LockTTL,
		OnLost: func(key string, err error) {
			a.logger.Warn("lock lease lost before release", "key", key, "error", err)
		},
	}), nil
}

func newSender(cfg config.Config, logger *slog.Logger) messaging.Sender {
	var router messaging.Router
	if cfg.TwilioEnabled() {
		router.Chat = messaging.NewTwilioSender(messaging.TwilioConfig{
			AccountSID: cfg.TwilioAccountSID,
			AuthToken:  cfg.TwilioAuthToken,
			From:       cfg.TwilioFrom,
			Timeout:    cfg.ExternalTimeout,
		})
	} else {
		logger.Warn("chat provider not configured, outbound chat messages are only logged")
		router.Chat = messaging.LogSender{Logger: logger.With("transport", "chat")}
	}
	if cfg.SMTPEnabled() {
		router.Email = messaging.NewSMTPSender(messaging.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
	} else {
		router.Email = messaging.LogSender{Logger: logger.With("transport", "email")}
	}
	return messaging.NewRateLimited(router, cfg.OutboundRate, cfg.OutboundBurst)
}

// newClassifier puts the remote model first and the keyword rules last so an
// unreachable model still yields an answer.
func newClassifier(cfg config.Config) intent.Classifier {
	chain := intent.Chain{}
	if cfg.ClassifierEnabled() {
		chain = append(chain, intent.NewChatClassifier(intent.ChatConfig{
			APIKey:  cfg.ClassifierAPIKey,
			BaseURL: cfg.ClassifierBaseURL,
			Model:   cfg.ClassifierModel,
			Timeout: cfg.ExternalTimeout,
		}))
	}
	return append(chain, intent.KeywordClassifier{})
}

func (a *app) sweeper() *sweep.Loop {
	return sweep.NewLoop(a.engine, sweep.Config{Interval: a.cfg.SweepInterval}, a.logger)
}

func (a *app) reconciler() *feedback.Reconciler {
	return feedback.NewReconciler(a.store, a.resolver, a.engine, feedback.Config{
		PollInterval:   a.cfg.FeedbackPollInterval,
		SubjectKeyword: a.cfg.FeedbackSubjectKeyword,
		Lookback:       a.cfg.FeedbackLookback,
		Metrics:        a.metrics,
	}, a.now, a.logger)
}

func (a *app) handler() http.Handler {
	return httptransport.NewRouter(httptransport.RouterConfig{
		Webhooks:       httptransport.NewWebhookHandler(a.inbound, a.store, a.now, a.logger),
		Batches:        httptransport.NewBatchHandler(a.shortlist, a.logger),
		Interviews:     httptransport.NewInterviewHandler(a.engine, a.logger),
		Roster:         httptransport.NewRosterHandler(a.roster, a.logger),
		Health:         a.store,
		Auth:           application.NewAPIKeyAuthenticator(a.cfg.AdminKey, a.cfg.AdminKeyHash),
		WebhookLimiter: httptransport.NewClientRateLimiter(a.cfg.WebhookRate, a.cfg.WebhookBurst, a.logger),
		DebugRoutes:    a.cfg.DebugRoutes,
		Logger:         a.logger,
	})
}

// Close releases the store and the Redis client.
func (a *app) Close() error {
	if a == nil {
		return nil
	}
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}
