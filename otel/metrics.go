package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/petal-labs/multitool/runtime"
)

// MetricsHandler translates runtime events into OpenTelemetry metrics.
// It records counters for runs and failures and histograms for run and
// stage durations.
type MetricsHandler struct {
	runs          metric.Int64Counter
	runFailures   metric.Int64Counter
	runDuration   metric.Float64Histogram
	stageDuration metric.Float64Histogram
}

// NewMetricsHandler creates a MetricsHandler that uses the given meter to
// create its instruments.
func NewMetricsHandler(meter metric.Meter) (*MetricsHandler, error) {
	runs, err := meter.Int64Counter("multitool.runs",
		metric.WithDescription("Number of tool runs"),
	)
	if err != nil {
		return nil, err
	}

	runFailures, err := meter.Int64Counter("multitool.run.failures",
		metric.WithDescription("Number of failed tool runs"),
	)
	if err != nil {
		return nil, err
	}

	runDuration, err := meter.Float64Histogram("multitool.run.duration",
		metric.WithDescription("Duration of a tool run in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	stageDuration, err := meter.Float64Histogram("multitool.stage.duration",
		metric.WithDescription("Duration of a run stage in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &MetricsHandler{
		runs:          runs,
		runFailures:   runFailures,
		runDuration:   runDuration,
		stageDuration: stageDuration,
	}, nil
}

// Handle processes a runtime event and records the appropriate metrics.
// It implements runtime.EventHandler semantics.
func (h *MetricsHandler) Handle(e runtime.Event) {
	switch e.Kind {
	case runtime.EventStageFinished, runtime.EventStageFailed:
		h.handleStageEnded(e)
	case runtime.EventRunFinished:
		h.handleRunFinished(e)
	}
}

func (h *MetricsHandler) handleStageEnded(e runtime.Event) {
	outcome := "ok"
	if e.Kind == runtime.EventStageFailed {
		outcome = "error"
	}
	h.stageDuration.Record(context.Background(), e.Elapsed.Seconds(), metric.WithAttributes(
		attribute.String("tool", e.Tool),
		attribute.String("stage", string(e.Stage)),
		attribute.String("outcome", outcome),
	))
}

func (h *MetricsHandler) handleRunFinished(e runtime.Event) {
	ctx := context.Background()
	status := e.PayloadString("status")
	attrs := metric.WithAttributes(
		attribute.String("tool", e.Tool),
		attribute.String("status", status),
	)
	h.runs.Add(ctx, 1, attrs)
	h.runDuration.Record(ctx, e.Elapsed.Seconds(), attrs)
	if status == runtime.StatusFailed {
		h.runFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("tool", e.Tool)))
	}
}
