package journal

import (
	"context"
	"log/slog"

	"github.com/petal-labs/multitool/runtime"
)

// Subscriber writes events to a Store. A failing store never fails the run;
// errors are logged.
type Subscriber struct {
	store  Store
	logger *slog.Logger
}

// NewSubscriber creates a new Subscriber.
func NewSubscriber(store Store, logger *slog.Logger) *Subscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{
		store:  store,
		logger: logger,
	}
}

// Handle persists a single event to the store.
// It implements runtime.EventHandler semantics.
func (s *Subscriber) Handle(event runtime.Event) {
	if err := s.store.Append(context.Background(), event); err != nil {
		s.logger.Error("failed to persist event",
			"run_id", event.RunID,
			"kind", event.Kind,
			"seq", event.Seq,
			"error", err,
		)
	}
}
