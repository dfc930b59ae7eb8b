// Package otel provides OpenTelemetry integration for multitool runtime events.
package otel

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/petal-labs/multitool/runtime"
)

// TracingHandler translates runtime events into OpenTelemetry spans: one
// root span per run and one child span per stage.
type TracingHandler struct {
	tracer trace.Tracer

	mu         sync.RWMutex
	runSpans   map[string]trace.Span      // runID -> span
	runCtxs    map[string]context.Context // runID -> context (for child spans)
	stageSpans map[string]trace.Span      // runID:stage -> span
}

// NewTracingHandler creates a new TracingHandler that uses the given tracer
// to create spans from runtime events.
func NewTracingHandler(tracer trace.Tracer) *TracingHandler {
	return &TracingHandler{
		tracer:     tracer,
		runSpans:   make(map[string]trace.Span),
		runCtxs:    make(map[string]context.Context),
		stageSpans: make(map[string]trace.Span),
	}
}

// Handle processes a runtime event and creates or ends spans accordingly.
// It implements runtime.EventHandler semantics.
func (h *TracingHandler) Handle(e runtime.Event) {
	switch e.Kind {
	case runtime.EventRunStarted:
		h.handleRunStarted(e)
	case runtime.EventStageStarted:
		h.handleStageStarted(e)
	case runtime.EventStageFinished:
		h.endStage(e, nil)
	case runtime.EventStageFailed:
		h.endStage(e, errors.New(errorMessage(e, "stage failed")))
	case runtime.EventRunFinished:
		h.handleRunFinished(e)
	}
}

func (h *TracingHandler) handleRunStarted(e runtime.Event) {
	spanName := "run:" + e.RunID
	if e.Tool != "" {
		spanName = "run:" + e.Tool
	}

	ctx, span := h.tracer.Start(context.Background(), spanName,
		trace.WithAttributes(
			attribute.String("multitool.run_id", e.RunID),
			attribute.String("multitool.tool", e.Tool),
		),
		trace.WithTimestamp(e.Time),
	)
	if v, ok := e.Payload["simulated"].(bool); ok {
		span.SetAttributes(attribute.Bool("multitool.simulated", v))
	}
	if v, ok := e.Payload["device_count"].(uint); ok {
		span.SetAttributes(attribute.Int64("multitool.device_count", int64(v)))
	}

	h.mu.Lock()
	h.runSpans[e.RunID] = span
	h.runCtxs[e.RunID] = ctx
	h.mu.Unlock()
}

func (h *TracingHandler) handleStageStarted(e runtime.Event) {
	h.mu.RLock()
	parentCtx, ok := h.runCtxs[e.RunID]
	h.mu.RUnlock()
	if !ok {
		parentCtx = context.Background()
	}

	_, span := h.tracer.Start(parentCtx, "stage:"+string(e.Stage),
		trace.WithAttributes(
			attribute.String("multitool.run_id", e.RunID),
			attribute.String("multitool.stage", string(e.Stage)),
		),
		trace.WithTimestamp(e.Time),
	)

	h.mu.Lock()
	h.stageSpans[stageKey(e)] = span
	h.mu.Unlock()
}

func (h *TracingHandler) endStage(e runtime.Event, err error) {
	key := stageKey(e)
	h.mu.Lock()
	span, ok := h.stageSpans[key]
	if ok {
		delete(h.stageSpans, key)
	}
	h.mu.Unlock()
	if !ok {
		return
	}

	span.SetAttributes(attribute.String("multitool.duration", e.Elapsed.String()))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err, trace.WithTimestamp(e.Time))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End(trace.WithTimestamp(e.Time))
}

func (h *TracingHandler) handleRunFinished(e runtime.Event) {
	h.mu.Lock()
	span, ok := h.runSpans[e.RunID]
	if ok {
		delete(h.runSpans, e.RunID)
		delete(h.runCtxs, e.RunID)
	}
	h.mu.Unlock()
	if !ok {
		return
	}

	status := e.PayloadString("status")
	span.SetAttributes(
		attribute.String("multitool.duration", e.Elapsed.String()),
		attribute.String("multitool.status", status),
	)
	if status == runtime.StatusFailed {
		span.SetStatus(codes.Error, errorMessage(e, "run failed"))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End(trace.WithTimestamp(e.Time))
}

// ActiveSpanContext returns the SpanContext of the active stage span, or of
// the run span when no stage is open. Returns an empty SpanContext if neither
// exists.
func (h *TracingHandler) ActiveSpanContext(runID string, stage runtime.Stage) trace.SpanContext {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if stage != "" {
		if span, ok := h.stageSpans[runID+":"+string(stage)]; ok {
			return span.SpanContext()
		}
	}
	if span, ok := h.runSpans[runID]; ok {
		return span.SpanContext()
	}
	return trace.SpanContext{}
}

// EnrichEmitter returns a decorator that stamps each event with the trace
// and span IDs of the span it belongs to. The tracing handler must see the
// event, so the decorator calls it directly: started spans must exist when a
// start event is stamped, and ending events carry the span they closed.
func EnrichEmitter(tracing *TracingHandler) runtime.EventEmitterDecorator {
	return func(next runtime.EventHandler) runtime.EventHandler {
		return func(e runtime.Event) {
			before := tracing.ActiveSpanContext(e.RunID, e.Stage)
			tracing.Handle(e)
			sc := tracing.ActiveSpanContext(e.RunID, e.Stage)
			switch e.Kind {
			case runtime.EventStageFinished, runtime.EventStageFailed, runtime.EventRunFinished:
				sc = before
			}
			if sc.IsValid() {
				e.TraceID = sc.TraceID().String()
				e.SpanID = sc.SpanID().String()
			}
			next(e)
		}
	}
}

func stageKey(e runtime.Event) string {
	return e.RunID + ":" + string(e.Stage)
}

func errorMessage(e runtime.Event, fallback string) string {
	if msg := e.PayloadString("error"); msg != "" {
		return msg
	}
	return fallback
}
