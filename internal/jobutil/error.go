// Package jobutil provides helpers for the review job lifecycle shared by
// the dispatchers and the worker Lambda.
package jobutil

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/fpang/creative-review/internal/store"
)

// StatusWriter persists a job status. store.JobStore's UpdateStatus method
// value satisfies it.
type StatusWriter func(ctx context.Context, jobID, status, errMsg string) error

// Fail logs the failure and records StatusError with msg. The write is not
// canceled with ctx so a failed or timed-out job still ends in a terminal
// state.
func Fail(ctx context.Context, jobID, msg string, write StatusWriter) error {
	log.Error().
		Str("jobId", jobID).
		Str("error", msg).
		Msg("Review job failed")
	return write(context.WithoutCancel(ctx), jobID, store.StatusError, msg)
}
