package web

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/fpang/creative-review/internal/ingest"
	"github.com/fpang/creative-review/internal/progress"
	"github.com/fpang/creative-review/internal/review"
	"github.com/fpang/creative-review/internal/store"
)

var (
	// ErrNotCancelable is returned by dispatchers that cannot stop a job
	// once it has been handed off.
	ErrNotCancelable = errors.New("review cannot be canceled")
	// ErrNotRunning is returned when canceling a job that is not in flight.
	ErrNotRunning = errors.New("review is not running")
)

// Dispatcher persists a validated job and starts it.
type Dispatcher interface {
	// Submit stores job and starts reviewing req. It returns once the job
	// is recorded; the review continues in the background.
	Submit(ctx context.Context, job *store.Job, req review.Request) error
	// Cancel stops an in-flight job.
	Cancel(ctx context.Context, id string) error
}

// LocalDispatcher runs reviews in goroutines of the current process.
type LocalDispatcher struct {
	// Notify, when set, returns the notifier announcing the progress and
	// completion of a job.
	Notify func(jobID string) progress.Notifier

	service *review.Service
	store   store.JobStore
	base    context.Context

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

var _ Dispatcher = (*LocalDispatcher)(nil)

// NewLocalDispatcher returns a dispatcher whose runs stop when base is done.
func NewLocalDispatcher(base context.Context, svc *review.Service, st store.JobStore) *LocalDispatcher {
	return &LocalDispatcher{
		service: svc,
		store:   st,
		base:    base,
		cancels: make(map[string]context.CancelFunc),
	}
}

func (d *LocalDispatcher) Submit(ctx context.Context, job *store.Job, req review.Request) error {
	if err := d.store.PutJob(ctx, job); err != nil {
		return fmt.Errorf("store job: %w", err)
	}

	runCtx, cancel := context.WithCancel(d.base)
	d.mu.Lock()
	d.cancels[job.ID] = cancel
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.finish(job.ID)
		d.run(runCtx, job.ID, req)
	}()
	return nil
}

func (d *LocalDispatcher) run(ctx context.Context, id string, req review.Request) {
	if err := d.store.UpdateStatus(ctx, id, store.StatusProcessing, ""); err != nil {
		log.Warn().Err(err).Str("jobId", id).Msg("Failed to mark review processing")
	}

	var notifier progress.Notifier
	observers := ingest.Observers{progress.NewStoreObserver(d.store, id)}
	if d.Notify != nil {
		if notifier = d.Notify(id); notifier != nil {
			observers = append(observers, notifier)
		}
	}
	req.Observer = observers
	rv, err := d.service.Review(ctx, req)

	// The status must be recorded even when the run was canceled.
	saveCtx := context.WithoutCancel(ctx)
	status, msg := store.StatusComplete, ""
	switch {
	case ctx.Err() != nil:
		status = store.StatusCanceled
	case err != nil:
		status, msg = store.StatusError, err.Error()
	}
	if err := d.store.UpdateStatus(saveCtx, id, status, msg); err != nil {
		log.Error().Err(err).Str("jobId", id).Msg("Failed to record review status")
	}

	summary := progress.JobComplete{Status: status}
	if rv != nil {
		summary.Runs, summary.Failed = len(rv.Items), rv.Failed()
	}
	log.Info().
		Str("jobId", id).
		Str("status", status).
		Int("runs", summary.Runs).
		Int("failed", summary.Failed).
		Msg("Review finished")

	if notifier != nil {
		if err := notifier.PublishComplete(saveCtx, summary); err != nil {
			log.Warn().Err(err).Str("jobId", id).Msg("Failed to publish job completion")
		}
	}
}

func (d *LocalDispatcher) finish(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cancel, ok := d.cancels[id]; ok {
		cancel()
		delete(d.cancels, id)
	}
}

func (d *LocalDispatcher) Cancel(_ context.Context, id string) error {
	d.mu.Lock()
	cancel, ok := d.cancels[id]
	d.mu.Unlock()
	if !ok {
		return ErrNotRunning
	}
	log.Info().Str("jobId", id).Msg("Canceling review")
	cancel()
	return nil
}

// Wait blocks until every submitted review has finished.
func (d *LocalDispatcher) Wait() {
	d.wg.Wait()
}
