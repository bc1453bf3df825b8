// Package telemetry holds the OpenTelemetry instruments of the engine.
// Without a configured MeterProvider the global no-op provider is used.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/example/interview-scheduler"

// Metrics groups the counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	transitions      metric.Int64Counter
	sweepActions     metric.Int64Counter
	externalFailures metric.Int64Counter
	feedbackItems    metric.Int64Counter
}

// New creates the instruments on meter, or on the global provider when meter is nil.
func New(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}
	m := &Metrics{}
	var err error
	if m.transitions, err = meter.Int64Counter("interview.transitions",
		metric.WithDescription("Applied negotiation transitions"),
		metric.WithUnit("{transition}"),
	); err != nil {
		return nil, fmt.Errorf("create transitions counter: %w", err)
	}
	if m.sweepActions, err = meter.Int64Counter("interview.sweep.actions",
		metric.WithDescription("Actions taken by the timeout sweep"),
		metric.WithUnit("{action}"),
	); err != nil {
		return nil, fmt.Errorf("create sweep counter: %w", err)
	}
	if m.externalFailures, err = meter.Int64Counter("interview.external.failures",
		metric.WithDescription("Failed calls to messaging, calendar or classifier"),
		metric.WithUnit("{error}"),
	); err != nil {
		return nil, fmt.Errorf("create external failure counter: %w", err)
	}
	if m.feedbackItems, err = meter.Int64Counter("interview.feedback.items",
		metric.WithDescription("Feedback inbox items processed"),
		metric.WithUnit("{item}"),
	); err != nil {
		return nil, fmt.Errorf("create feedback counter: %w", err)
	}
	return m, nil
}

// Transition counts a state change.
func (m *Metrics) Transition(ctx context.Context, from, to, event string) {
	if m == nil {
		return
	}
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
		attribute.String("event", event),
	))
}

// SweepAction counts one sweep phase action.
func (m *Metrics) SweepAction(ctx context.Context, phase string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.sweepActions.Add(ctx, int64(n), metric.WithAttributes(attribute.String("phase", phase)))
}

// ExternalFailure counts a failed external call.
func (m *Metrics) ExternalFailure(ctx context.Context, service string) {
	if m == nil {
		return
	}
	m.externalFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("service", service)))
}

// FeedbackItem counts a processed feedback item by result.
func (m *Metrics) FeedbackItem(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.feedbackItems.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}
