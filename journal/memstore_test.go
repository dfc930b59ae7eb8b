package journal

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/petal-labs/multitool/runtime"
)

func TestMemStore_AppendList(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	for i := uint64(1); i <= 3; i++ {
		if err := s.Append(ctx, makeEvent("run-1", i, runtime.EventStageStarted)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := s.Append(ctx, makeEvent("run-2", 1, runtime.EventRunStarted)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	events, err := s.List(ctx, "run-1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	for i, e := range events {
		if e.Seq != uint64(i+1) {
			t.Errorf("event %d: Seq = %d", i, e.Seq)
		}
	}

	// The returned slice is a copy.
	events[0].RunID = "mutated"
	again, _ := s.List(ctx, "run-1")
	if again[0].RunID != "run-1" {
		t.Error("List should return a copy of the stored events")
	}
}

func TestMemStore_Runs(t *testing.T) {
	s := NewMemStore()
	base := time.Now()

	appendRun(t, s, "run-a", runtime.StatusCompleted, base)
	appendRun(t, s, "run-b", runtime.StatusFailed, base.Add(time.Minute))

	runs, err := s.Runs(context.Background(), 0)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].RunID != "run-b" || runs[0].Status != runtime.StatusFailed {
		t.Errorf("runs[0] = %+v", runs[0])
	}
	if runs[1].RunID != "run-a" || !runs[1].Started.Equal(base) || runs[1].Tool != "fft" {
		t.Errorf("runs[1] = %+v", runs[1])
	}

	limited, _ := s.Runs(context.Background(), 1)
	if len(limited) != 1 || limited[0].RunID != "run-b" {
		t.Errorf("Runs(1) = %+v", limited)
	}
}

func TestMemStore_ConcurrentAppend(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(seq uint64) {
			defer wg.Done()
			_ = s.Append(ctx, makeEvent("run-1", seq, runtime.EventStageStarted))
		}(uint64(i + 1))
	}
	wg.Wait()

	events, _ := s.List(ctx, "run-1")
	if len(events) != 50 {
		t.Errorf("expected 50 events, got %d", len(events))
	}
}
