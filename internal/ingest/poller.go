package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Polling defaults.
const (
	DefaultPollInterval    = 10 * time.Second
	DefaultPollMaxAttempts = 60
	DefaultPollTimeout     = 10 * time.Minute
)

// Poller waits for uploaded files to leave the PROCESSING state.
type Poller struct {
	// Interval is the delay before every readiness query.
	Interval time.Duration
	// MaxAttempts bounds the number of polling rounds. Each round queries
	// every handle that is still processing.
	MaxAttempts int
	// Timeout bounds the whole wait.
	Timeout time.Duration
}

// DefaultPoller returns a Poller with the default interval and bounds.
func DefaultPoller() Poller {
	return Poller{
		Interval:    DefaultPollInterval,
		MaxAttempts: DefaultPollMaxAttempts,
		Timeout:     DefaultPollTimeout,
	}
}

// Wait blocks until every handle is ACTIVE. Handle states are updated in
// place. The first handle found FAILED (or in any state other than
// PROCESSING and ACTIVE) ends the wait with KindProcessingFailed; other
// handles are left as they are. A query error is logged and the handle is
// queried again in the next round.
//
// onAttempt, when non-nil, is called after every readiness query.
func (p Poller) Wait(ctx context.Context, files FileService, handles []*RemoteHandle, onAttempt func(attempt int, h *RemoteHandle)) error {
	if err := checkStates(handles); err != nil {
		return err
	}

	pollCtx := ctx
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	start := time.Now()
	for attempt := 1; pending(handles) > 0; attempt++ {
		if p.MaxAttempts > 0 && attempt > p.MaxAttempts {
			h := firstPending(handles)
			return &Error{
				Kind:   KindTimeout,
				Asset:  h.DisplayName,
				Handle: h.ID,
				Err:    fmt.Errorf("%d file(s) still processing after %d attempts", pending(handles), p.MaxAttempts),
			}
		}

		timer := time.NewTimer(p.Interval)
		select {
		case <-pollCtx.Done():
			timer.Stop()
			return p.stopped(ctx, pollCtx, handles, start)
		case <-timer.C:
		}

		for _, h := range handles {
			if h.State.Terminal() {
				continue
			}
			state, err := files.State(pollCtx, h.ID)
			if err != nil {
				if pollCtx.Err() != nil {
					return p.stopped(ctx, pollCtx, handles, start)
				}
				log.Warn().
					Err(err).
					Str("file", h.ID).
					Int("attempt", attempt).
					Msg("Readiness query failed, will retry")
				if onAttempt != nil {
					onAttempt(attempt, h)
				}
				continue
			}
			h.State = state
			log.Debug().
				Str("file", h.ID).
				Str("state", string(state)).
				Int("attempt", attempt).
				Msg("Polled file state")
			if onAttempt != nil {
				onAttempt(attempt, h)
			}
			if state.Terminal() && state != StateActive {
				return failedError(h)
			}
		}
	}

	log.Info().
		Int("files", len(handles)).
		Dur("waited", time.Since(start)).
		Msg("All files active")
	return nil
}

// stopped builds the error for a wait interrupted by its context: the
// caller's cancellation is KindCanceled, the poller's own timeout KindTimeout.
func (p Poller) stopped(parent, pollCtx context.Context, handles []*RemoteHandle, start time.Time) error {
	h := firstPending(handles)
	e := &Error{Asset: h.DisplayName, Handle: h.ID}
	if parent.Err() != nil {
		e.Kind = contextKind(parent)
		e.Err = parent.Err()
		return e
	}
	e.Kind = KindTimeout
	e.Err = fmt.Errorf("still processing after %s: %w", time.Since(start).Round(time.Second), pollCtx.Err())
	return e
}

func checkStates(handles []*RemoteHandle) error {
	for _, h := range handles {
		if h.State.Terminal() && h.State != StateActive {
			return failedError(h)
		}
	}
	return nil
}

func failedError(h *RemoteHandle) *Error {
	return &Error{
		Kind:   KindProcessingFailed,
		Asset:  h.DisplayName,
		Handle: h.ID,
		Err:    fmt.Errorf("remote processing ended in state %s", h.State),
	}
}

func pending(handles []*RemoteHandle) int {
	n := 0
	for _, h := range handles {
		if !h.State.Terminal() {
			n++
		}
	}
	return n
}

func firstPending(handles []*RemoteHandle) *RemoteHandle {
	for _, h := range handles {
		if !h.State.Terminal() {
			return h
		}
	}
	if len(handles) > 0 {
		return handles[0]
	}
	return &RemoteHandle{}
}
