// Package journal records runtime events so past runs can be inspected after
// the process exits.
package journal

import (
	"context"
	"time"

	"github.com/petal-labs/multitool/runtime"
)

// Store persists runtime events.
type Store interface {
	// Append stores an event.
	Append(ctx context.Context, event runtime.Event) error

	// List returns the events of one run in sequence order.
	List(ctx context.Context, runID string) ([]runtime.Event, error)

	// Runs returns the most recent runs, newest first (limit 0 means no limit).
	Runs(ctx context.Context, limit int) ([]RunSummary, error)
}

// RunSummary describes one recorded run.
type RunSummary struct {
	RunID   string
	Tool    string
	Started time.Time
	Status  string // empty while the run has not finished
	Elapsed time.Duration
}
