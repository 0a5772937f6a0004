// Package progress turns pipeline events into log lines, job-store updates,
// terminal output and EventBridge notifications.
package progress

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/fpang/creative-review/internal/ingest"
	"github.com/fpang/creative-review/internal/store"
)

// Log writes every event to the global zerolog logger.
var Log = ingest.ObserverFunc(func(_ context.Context, e ingest.Event) {
	ev := log.Debug()
	if e.Kind != "" {
		ev = log.Warn().Str("kind", string(e.Kind)).Str("message", e.Message)
	} else if e.Attempt == 0 {
		ev = log.Info()
	}
	ev.
		Int("run", e.Job).
		Strs("assets", e.Assets).
		Str("stage", string(e.Stage)).
		Int("attempt", e.Attempt).
		Msg("Pipeline progress")
})

// StoreObserver records each run's latest state in a JobStore.
type StoreObserver struct {
	Store store.JobStore
	JobID string
}

// NewStoreObserver returns an observer writing runs of jobID to s.
func NewStoreObserver(s store.JobStore, jobID string) *StoreObserver {
	return &StoreObserver{Store: s, JobID: jobID}
}

func (o *StoreObserver) Observe(ctx context.Context, e ingest.Event) {
	run := RunFromEvent(e)
	if err := o.Store.PutRun(ctx, o.JobID, &run); err != nil {
		log.Warn().Err(err).Str("jobId", o.JobID).Int("run", e.Job).Msg("Failed to persist run progress")
	}
}

// RunFromEvent converts an event to the persisted run record. The event
// message is an error only when the event carries a Kind.
func RunFromEvent(e ingest.Event) store.Run {
	run := store.Run{
		Index:     e.Job,
		Assets:    e.Assets,
		Stage:     string(e.Stage),
		Attempt:   e.Attempt,
		Text:      e.Text,
		ErrorKind: string(e.Kind),
		Done:      e.Final(),
		UpdatedAt: e.At.Unix(),
	}
	if e.Kind != "" {
		run.Error = e.Message
	} else {
		run.Status = e.Message
	}
	return run
}

// Printer writes one human-readable line per transition, for terminals.
// Poll attempts are shown every Every attempts (default 6).
type Printer struct {
	W     io.Writer
	Total int
	Every int

	mu sync.Mutex
}

func (p *Printer) Observe(_ context.Context, e ingest.Event) {
	every := p.Every
	if every <= 0 {
		every = 6
	}
	if e.Attempt > 0 && e.Attempt%every != 0 {
		return
	}

	label := strings.Join(e.Assets, ", ")
	if p.Total > 1 {
		label = fmt.Sprintf("[%d/%d] %s", e.Job+1, p.Total, label)
	}

	var line string
	switch {
	case e.Attempt > 0:
		line = fmt.Sprintf("%s: still processing (check %d)", label, e.Attempt)
	case e.Kind != "" && e.Final():
		line = fmt.Sprintf("%s: %s", label, e.Message)
	case e.Final():
		line = fmt.Sprintf("%s: done", label)
	default:
		line = fmt.Sprintf("%s: %s", label, describe(e.Stage))
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.W, line)
}

func describe(s ingest.Stage) string {
	switch s {
	case ingest.StageStaged:
		return "staged, uploading"
	case ingest.StageUploaded:
		return "uploaded"
	case ingest.StagePolling:
		return "waiting for processing"
	case ingest.StageReady:
		return "ready, analyzing"
	case ingest.StageFailed:
		return "processing failed"
	case ingest.StageAnalyzed:
		return "analysis received"
	case ingest.StageAnalysisFailed:
		return "analysis failed"
	}
	return strings.ToLower(string(s))
}
