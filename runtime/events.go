// Package runtime provides the execution backend for multitool: it attaches
// devices, builds or loads executable images, optionally persists them, and
// runs them, emitting events for every stage.
package runtime

import (
	"time"
)

// EventKind identifies the type of event emitted by the runtime.
type EventKind string

const (
	// EventRunStarted is emitted when a run begins.
	EventRunStarted EventKind = "run.started"

	// EventStageStarted is emitted when a stage begins.
	EventStageStarted EventKind = "stage.started"

	// EventStageFinished is emitted when a stage completes successfully.
	EventStageFinished EventKind = "stage.finished"

	// EventStageFailed is emitted when a stage returns an error.
	EventStageFailed EventKind = "stage.failed"

	// EventRunFinished is emitted when a run completes, successfully or not.
	EventRunFinished EventKind = "run.finished"
)

// String returns the string representation of the EventKind.
func (k EventKind) String() string {
	return string(k)
}

// Stage names one step of a run.
type Stage string

const (
	StageAttach  Stage = "attach"
	StageBuild   Stage = "build"
	StageSave    Stage = "save"
	StageLoad    Stage = "load"
	StageExecute Stage = "execute"
	StageDetach  Stage = "detach"
)

// Run statuses carried in the run.finished payload.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Event is a structured record of what happened during a run.
type Event struct {
	// Kind identifies the event type.
	Kind EventKind

	// RunID is the unique identifier for this run.
	RunID string

	// Tool is the name of the tool being run.
	Tool string

	// Stage is set for stage-level events.
	Stage Stage

	// Time is when the event occurred.
	Time time.Time

	// Elapsed is the duration since the run or stage started.
	Elapsed time.Duration

	// Payload contains event-specific data.
	Payload map[string]any

	// Seq is a monotonic sequence number per run (1-indexed).
	Seq uint64

	// TraceID is the OpenTelemetry trace ID (hex-encoded, empty when OTel inactive).
	TraceID string

	// SpanID is the OpenTelemetry span ID (hex-encoded, empty when OTel inactive).
	SpanID string
}

// NewEvent creates a new event with the current timestamp.
func NewEvent(kind EventKind, runID, tool string) Event {
	return Event{
		Kind:    kind,
		RunID:   runID,
		Tool:    tool,
		Time:    time.Now(),
		Payload: make(map[string]any),
	}
}

// WithStage sets the stage on the event.
func (e Event) WithStage(stage Stage) Event {
	e.Stage = stage
	return e
}

// WithElapsed sets the elapsed duration on the event.
func (e Event) WithElapsed(elapsed time.Duration) Event {
	e.Elapsed = elapsed
	return e
}

// WithPayload adds a key-value pair to the event payload.
func (e Event) WithPayload(key string, value any) Event {
	if e.Payload == nil {
		e.Payload = make(map[string]any)
	}
	e.Payload[key] = value
	return e
}

// PayloadString returns a string payload value, or "" when absent.
func (e Event) PayloadString(key string) string {
	if v, ok := e.Payload[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// EventHandler is a function type for handling events.
// Implementations can log, store, or forward events as needed.
type EventHandler func(Event)

// EventEmitterDecorator wraps a handler to add cross-cutting behavior, for
// example enriching events with trace metadata.
type EventEmitterDecorator func(EventHandler) EventHandler

// MultiEventHandler combines multiple handlers into one.
func MultiEventHandler(handlers ...EventHandler) EventHandler {
	return func(e Event) {
		for _, h := range handlers {
			if h != nil {
				h(e)
			}
		}
	}
}
