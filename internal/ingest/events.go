package ingest

import (
	"context"
	"time"
)

// Event reports progress of one run. Stage is the state just entered; for
// POLLING events Attempt counts readiness rounds starting at 1. Kind and
// Message are set on failure stages and on the final CLEANED_UP event of a
// failed run. Text is set on the final event of a successful run.
type Event struct {
	Job     int
	Assets  []string
	Stage   Stage
	Attempt int
	Kind    Kind
	Message string
	Text    string
	At      time.Time
}

// Final reports whether e is the last event of its run.
func (e Event) Final() bool {
	return e.Stage == StageCleanedUp
}

// Observer consumes pipeline events. Implementations must be safe for
// concurrent use when the pipeline runs in a batch.
type Observer interface {
	Observe(ctx context.Context, e Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, e Event)

func (f ObserverFunc) Observe(ctx context.Context, e Event) {
	f(ctx, e)
}

// Observers fans an event out to several observers in order.
type Observers []Observer

func (o Observers) Observe(ctx context.Context, e Event) {
	for _, obs := range o {
		if obs != nil {
			obs.Observe(ctx, e)
		}
	}
}
