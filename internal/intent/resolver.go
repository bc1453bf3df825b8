package intent

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/example/interview-scheduler/internal/negotiation"
)

// Context is supplied by the caller after resolving the sender.
type Context struct {
	Party       negotiation.Party
	InterviewID string
	State       negotiation.State
	SlotStart   *time.Time
	// SourceID identifies the delivering message for feedback deduplication.
	SourceID string
}

// Resolver is stateless apart from its configuration.
type Resolver struct {
	classifier    Classifier
	minConfidence float64
	timeout       time.Duration
	logger        *slog.Logger
}

// NewResolver wraps a classifier. Results below minConfidence are treated
// as unrecognized. A zero timeout means 10 seconds.
func NewResolver(classifier Classifier, minConfidence float64, timeout time.Duration, logger *slog.Logger) *Resolver {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{classifier: classifier, minConfidence: minConfidence, timeout: timeout, logger: logger.With("component", "intent")}
}

var labels = map[string]negotiation.IntentKind{
	"confirm":             negotiation.IntentConfirm,
	"yes":                 negotiation.IntentConfirm,
	"accept":              negotiation.IntentConfirm,
	"select_slot":         negotiation.IntentConfirm,
	"confirm_interviewer": negotiation.IntentConfirm,
	"reject":              negotiation.IntentReject,
	"no":                  negotiation.IntentReject,
	"decline":             negotiation.IntentReject,
	"reject_interviewer":  negotiation.IntentReject,
	"request_reschedule":  negotiation.IntentRequestReschedule,
	"reschedule":          negotiation.IntentRequestReschedule,
	"feedback":            negotiation.IntentProvideFeedback,
	"provide_feedback":    negotiation.IntentProvideFeedback,
}

// LabelKind maps a classifier label to an intent kind.
func LabelKind(label string) negotiation.IntentKind {
	normalized := strings.ToLower(strings.TrimSpace(label))
	normalized = strings.ReplaceAll(normalized, " ", "_")
	normalized = strings.ReplaceAll(normalized, "-", "_")
	if kind, ok := labels[normalized]; ok {
		return kind
	}
	return negotiation.IntentUnrecognized
}

// Resolve classifies a conversational reply.
func (r *Resolver) Resolve(ctx context.Context, raw string, c Context) negotiation.Intent {
	out := negotiation.Intent{Party: c.Party, InterviewID: c.InterviewID, Kind: negotiation.IntentUnrecognized, Raw: raw}
	text := strings.TrimSpace(raw)
	if text == "" || r == nil || r.classifier == nil {
		return out
	}

	result, ok := r.classify(ctx, text, Hints{Purpose: PurposeConversation, Party: c.Party, State: c.State, SlotStart: c.SlotStart})
	if !ok {
		return out
	}
	kind := LabelKind(result.Label)
	if kind == negotiation.IntentProvideFeedback {
		// Feedback only arrives through the reconciler path.
		kind = negotiation.IntentUnrecognized
	}
	if result.Confidence < r.minConfidence {
		kind = negotiation.IntentUnrecognized
	}
	out.Kind = kind
	out.Confidence = result.Confidence
	return out
}

// ResolveFeedback classifies an interviewer's feedback message. The result is
// always IntentProvideFeedback unless the text is empty; an unparseable
// recommendation becomes OutcomeUnclear.
func (r *Resolver) ResolveFeedback(ctx context.Context, raw string, c Context) negotiation.Intent {
	out := negotiation.Intent{Party: negotiation.PartyInterviewer, InterviewID: c.InterviewID, Kind: negotiation.IntentUnrecognized, Raw: raw}
	text := strings.TrimSpace(raw)
	if text == "" {
		return out
	}

	feedback := &negotiation.Feedback{Outcome: negotiation.OutcomeUnclear, Text: text, SourceID: c.SourceID}
	if r != nil && r.classifier != nil {
		if result, ok := r.classify(ctx, text, Hints{Purpose: PurposeFeedback, Party: negotiation.PartyInterviewer, State: c.State}); ok {
			feedback.Outcome = negotiation.ParseOutcome(result.Outcome)
			feedback.Summary = strings.TrimSpace(result.Summary)
			out.Confidence = result.Confidence
			if result.Confidence < r.minConfidence {
				feedback.Outcome = negotiation.OutcomeUnclear
			}
		}
	}
	out.Kind = negotiation.IntentProvideFeedback
	out.Feedback = feedback
	return out
}

func (r *Resolver) classify(ctx context.Context, text string, hints Hints) (result Classification, ok bool) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	defer func() {
		if p := recover(); p != nil {
			r.logger.ErrorContext(ctx, "classifier panicked", "panic", p, "purpose", hints.Purpose)
			result, ok = Classification{}, false
		}
	}()

	result, err := r.classifier.Classify(ctx, text, hints)
	if err != nil {
		r.logger.WarnContext(ctx, "classification failed", "error", err, "error_kind", "external_service", "purpose", hints.Purpose)
		return Classification{}, false
	}
	return result, true
}
