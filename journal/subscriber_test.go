package journal

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/petal-labs/multitool/runtime"
)

type failingStore struct{}

func (failingStore) Append(context.Context, runtime.Event) error {
	return errors.New("disk full")
}

func (failingStore) List(context.Context, string) ([]runtime.Event, error) { return nil, nil }

func (failingStore) Runs(context.Context, int) ([]RunSummary, error) { return nil, nil }

func TestSubscriber_PersistsEvents(t *testing.T) {
	store := NewMemStore()
	sub := NewSubscriber(store, nil)

	sub.Handle(makeEvent("run-1", 1, runtime.EventRunStarted))
	sub.Handle(makeEvent("run-1", 2, runtime.EventRunFinished))

	events, err := store.List(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("expected 2 persisted events, got %d", len(events))
	}
}

func TestSubscriber_LogsStoreErrors(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	sub := NewSubscriber(failingStore{}, logger)

	sub.Handle(makeEvent("run-1", 1, runtime.EventRunStarted))

	out := buf.String()
	if !strings.Contains(out, "failed to persist event") || !strings.Contains(out, "disk full") {
		t.Errorf("expected logged store error, got %q", out)
	}
}
