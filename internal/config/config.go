package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config captures environment driven configuration values for the interview service.
type Config struct {
	HTTPPort    int    `env:"INTERVIEW_HTTP_PORT" envDefault:"5001"`
	DBDriver    string `env:"INTERVIEW_DB_DRIVER" envDefault:"sqlite"`
	DSN         string `env:"INTERVIEW_DB_DSN" envDefault:"file:interviews.db?_pragma=busy_timeout(5000)"`
	LogLevel    string `env:"INTERVIEW_LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"INTERVIEW_LOG_FORMAT" envDefault:"json"`
	DebugRoutes bool   `env:"INTERVIEW_DEBUG_ROUTES" envDefault:"false"`

	AdminKey     string `env:"INTERVIEW_ADMIN_KEY"`
	AdminKeyHash string `env:"INTERVIEW_ADMIN_KEY_HASH"`

	SweepInterval        time.Duration `env:"INTERVIEW_SWEEP_INTERVAL" envDefault:"2m"`
	FeedbackPollInterval time.Duration `env:"INTERVIEW_FEEDBACK_POLL_INTERVAL" envDefault:"1m"`
	ResponseWindow       time.Duration `env:"INTERVIEW_RESPONSE_WINDOW" envDefault:"24h"`
	FeedbackWindow       time.Duration `env:"INTERVIEW_FEEDBACK_WINDOW" envDefault:"72h"`
	ReminderLead         time.Duration `env:"INTERVIEW_REMINDER_LEAD" envDefault:"6h"`
	ReminderInterval     time.Duration `env:"INTERVIEW_REMINDER_INTERVAL" envDefault:"2h"`
	RetryBackoff         time.Duration `env:"INTERVIEW_RETRY_BACKOFF" envDefault:"30m"`
	ExternalTimeout      time.Duration `env:"INTERVIEW_EXTERNAL_TIMEOUT" envDefault:"10s"`

	SlotDuration time.Duration `env:"INTERVIEW_SLOT_DURATION" envDefault:"30m"`
	HoldTTL      time.Duration `env:"INTERVIEW_HOLD_TTL" envDefault:"36h"`
	MinLead      time.Duration `env:"INTERVIEW_MIN_LEAD" envDefault:"24h"`
	Lookahead    time.Duration `env:"INTERVIEW_LOOKAHEAD" envDefault:"720h"`
	// ExcludeDates lists days (YYYY-MM-DD) on which no slot is offered.
	ExcludeDates []string `env:"INTERVIEW_EXCLUDE_DATES" envSeparator:","`

	MaxAttempts              int `env:"INTERVIEW_MAX_ATTEMPTS" envDefault:"5"`
	MaxRetries               int `env:"INTERVIEW_MAX_RETRIES" envDefault:"10"`
	MaxInterviewerRejections int `env:"INTERVIEW_MAX_INTERVIEWER_REJECTIONS" envDefault:"2"`
	MaxReminders             int `env:"INTERVIEW_MAX_REMINDERS" envDefault:"3"`

	MinScore               int    `env:"INTERVIEW_MIN_SCORE" envDefault:"75"`
	TopN                   int    `env:"INTERVIEW_TOP_N" envDefault:"3"`
	DefaultCountryCode     string `env:"INTERVIEW_DEFAULT_COUNTRY_CODE" envDefault:"91"`
	FeedbackSubjectKeyword string `env:"INTERVIEW_FEEDBACK_SUBJECT_KEYWORD" envDefault:"Feedback"`
	HRContact              string `env:"INTERVIEW_HR_CONTACT" envDefault:"the recruiting team"`

	FeedbackLookback time.Duration `env:"INTERVIEW_FEEDBACK_LOOKBACK" envDefault:"168h"`

	ClassifierBaseURL       string  `env:"INTERVIEW_CLASSIFIER_BASE_URL"`
	ClassifierAPIKey        string  `env:"INTERVIEW_CLASSIFIER_API_KEY"`
	ClassifierModel         string  `env:"INTERVIEW_CLASSIFIER_MODEL" envDefault:"llama-3.3-70b-versatile"`
	ClassifierMinConfidence float64 `env:"INTERVIEW_CLASSIFIER_MIN_CONFIDENCE" envDefault:"0.6"`

	TwilioAccountSID string `env:"INTERVIEW_TWILIO_ACCOUNT_SID"`
	TwilioAuthToken  string `env:"INTERVIEW_TWILIO_AUTH_TOKEN"`
	TwilioFrom       string `env:"INTERVIEW_TWILIO_FROM"`

	SMTPHost     string `env:"INTERVIEW_SMTP_HOST"`
	SMTPPort     int    `env:"INTERVIEW_SMTP_PORT" envDefault:"587"`
	SMTPUser     string `env:"INTERVIEW_SMTP_USER"`
	SMTPPassword string `env:"INTERVIEW_SMTP_PASSWORD"`
	SMTPFrom     string `env:"INTERVIEW_SMTP_FROM"`

	OutboundRate  float64 `env:"INTERVIEW_OUTBOUND_RATE" envDefault:"5"`
	OutboundBurst int     `env:"INTERVIEW_OUTBOUND_BURST" envDefault:"10"`
	WebhookRate   float64 `env:"INTERVIEW_WEBHOOK_RATE" envDefault:"2"`
	WebhookBurst  int     `env:"INTERVIEW_WEBHOOK_BURST" envDefault:"10"`

	MeetingBaseURL string `env:"INTERVIEW_MEETING_BASE_URL" envDefault:"https://meet.example.com"`

	RedisAddr     string        `env:"INTERVIEW_REDIS_ADDR"`
	RedisPassword string        `env:"INTERVIEW_REDIS_PASSWORD"`
	RedisDB       int           `env:"INTERVIEW_REDIS_DB" envDefault:"0"`
	LockTTL       time.Duration `env:"INTERVIEW_LOCK_TTL" envDefault:"30s"`

	ArchiveBucket   string        `env:"INTERVIEW_ARCHIVE_BUCKET"`
	ArchiveRegion   string        `env:"INTERVIEW_ARCHIVE_REGION" envDefault:"us-east-1"`
	ArchiveEndpoint string        `env:"INTERVIEW_ARCHIVE_ENDPOINT"`
	ArchivePrefix   string        `env:"INTERVIEW_ARCHIVE_PREFIX" envDefault:"interviews/"`
	ArchiveAfter    time.Duration `env:"INTERVIEW_ARCHIVE_AFTER" envDefault:"720h"`
}

// Load parses configuration values from the current process environment.
//
// Parse failures and out of range values are collected and reported together
// so operators see every offending variable at once.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("invalid environment: %w", err)
	}

	cfg.DBDriver = strings.ToLower(strings.TrimSpace(cfg.DBDriver))

	invalid := make([]string, 0, 4)
	if cfg.HTTPPort <= 0 {
		invalid = append(invalid, "INTERVIEW_HTTP_PORT")
	}
	if cfg.DBDriver != "sqlite" && cfg.DBDriver != "postgres" {
		invalid = append(invalid, "INTERVIEW_DB_DRIVER")
	}
	positive := []struct {
		name  string
		value time.Duration
	}{
		{"INTERVIEW_SWEEP_INTERVAL", cfg.SweepInterval},
		{"INTERVIEW_FEEDBACK_POLL_INTERVAL", cfg.FeedbackPollInterval},
		{"INTERVIEW_RESPONSE_WINDOW", cfg.ResponseWindow},
		{"INTERVIEW_FEEDBACK_WINDOW", cfg.FeedbackWindow},
		{"INTERVIEW_REMINDER_INTERVAL", cfg.ReminderInterval},
		{"INTERVIEW_SLOT_DURATION", cfg.SlotDuration},
		{"INTERVIEW_HOLD_TTL", cfg.HoldTTL},
		{"INTERVIEW_LOOKAHEAD", cfg.Lookahead},
		{"INTERVIEW_EXTERNAL_TIMEOUT", cfg.ExternalTimeout},
		{"INTERVIEW_LOCK_TTL", cfg.LockTTL},
	}
	for _, p := range positive {
		if p.value <= 0 {
			invalid = append(invalid, p.name)
		}
	}
	if cfg.MinLead < 0 {
		invalid = append(invalid, "INTERVIEW_MIN_LEAD")
	}
	if cfg.MaxAttempts <= 0 {
		invalid = append(invalid, "INTERVIEW_MAX_ATTEMPTS")
	}
	if cfg.MaxRetries < 0 {
		invalid = append(invalid, "INTERVIEW_MAX_RETRIES")
	}
	if cfg.ClassifierMinConfidence < 0 || cfg.ClassifierMinConfidence > 1 {
		invalid = append(invalid, "INTERVIEW_CLASSIFIER_MIN_CONFIDENCE")
	}
	if cfg.TopN <= 0 {
		invalid = append(invalid, "INTERVIEW_TOP_N")
	}
	if _, err := cfg.Holidays(); err != nil {
		invalid = append(invalid, "INTERVIEW_EXCLUDE_DATES")
	}

	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("invalid environment values: %s", strings.Join(invalid, ", "))
	}
	return cfg, nil
}

// ErrMissingAdminKey reports that neither the admin key nor its hash is configured.
var ErrMissingAdminKey = errors.New("required environment variables are not set: INTERVIEW_ADMIN_KEY or INTERVIEW_ADMIN_KEY_HASH")

// ValidateServe checks the values that only the HTTP server needs.
func (c Config) ValidateServe() error {
	if strings.TrimSpace(c.AdminKey) == "" && strings.TrimSpace(c.AdminKeyHash) == "" {
		return ErrMissingAdminKey
	}
	return nil
}

// ClassifierEnabled reports whether a remote classifier endpoint is configured.
func (c Config) ClassifierEnabled() bool {
	return strings.TrimSpace(c.ClassifierAPIKey) != ""
}

// TwilioEnabled reports whether outbound chat messages go to the provider.
func (c Config) TwilioEnabled() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioFrom != ""
}

// SMTPEnabled reports whether outbound mail is configured.
func (c Config) SMTPEnabled() bool {
	return c.SMTPHost != "" && c.SMTPFrom != ""
}

// Holidays parses ExcludeDates as UTC days.
func (c Config) Holidays() ([]time.Time, error) {
	days := make([]time.Time, 0, len(c.ExcludeDates))
	for _, raw := range c.ExcludeDates {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		day, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return nil, fmt.Errorf("exclude date %q: %w", raw, err)
		}
		days = append(days, day)
	}
	return days, nil
}
