package journal

import (
	"context"
	"sync"

	"github.com/petal-labs/multitool/runtime"
)

// MemStore is a thread-safe in-memory event store.
type MemStore struct {
	mu     sync.RWMutex
	order  []string                   // runIDs in first-seen order
	events map[string][]runtime.Event // runID -> events
}

// NewMemStore creates a new in-memory event store.
func NewMemStore() *MemStore {
	return &MemStore{
		events: make(map[string][]runtime.Event),
	}
}

func (s *MemStore) Append(_ context.Context, event runtime.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.events[event.RunID]; !seen {
		s.order = append(s.order, event.RunID)
	}
	s.events[event.RunID] = append(s.events[event.RunID], event)
	return nil
}

func (s *MemStore) List(_ context.Context, runID string) ([]runtime.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]runtime.Event(nil), s.events[runID]...), nil
}

func (s *MemStore) Runs(_ context.Context, limit int) ([]RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []RunSummary
	for i := len(s.order) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, summarize(s.order[i], s.events[s.order[i]]))
	}
	return out, nil
}

func summarize(runID string, events []runtime.Event) RunSummary {
	sum := RunSummary{RunID: runID}
	for _, e := range events {
		switch e.Kind {
		case runtime.EventRunStarted:
			sum.Tool = e.Tool
			sum.Started = e.Time
		case runtime.EventRunFinished:
			sum.Status = e.PayloadString("status")
			sum.Elapsed = e.Elapsed
		}
	}
	return sum
}

// Compile-time interface check.
var _ Store = (*MemStore)(nil)
