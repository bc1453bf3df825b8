package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/metric/noop"
)

func TestMetrics(t *testing.T) {
	ctx := context.Background()

	m, err := New(noop.NewMeterProvider().Meter("test"))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	m.Transition(ctx, "shortlisted", "slot_proposed", "proposed")
	m.SweepAction(ctx, "holds", 2)
	m.ExternalFailure(ctx, "messaging")
	m.FeedbackItem(ctx, "applied")

	global, err := New(nil)
	if err != nil {
		t.Fatalf("New(nil) returned error: %v", err)
	}
	global.SweepAction(ctx, "reminders", 0)

	var none *Metrics
	none.Transition(ctx, "a", "b", "c")
	none.SweepAction(ctx, "x", 1)
	none.ExternalFailure(ctx, "calendar")
	none.FeedbackItem(ctx, "skipped")
}
