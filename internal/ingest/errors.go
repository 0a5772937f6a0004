package ingest

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies why a pipeline run failed.
type Kind string

const (
	KindValidation       Kind = "validation"
	KindIO               Kind = "io"
	KindUpload           Kind = "upload"
	KindProcessingFailed Kind = "processing_failed"
	KindTimeout          Kind = "timeout"
	KindCanceled         Kind = "canceled"
	KindAnalysis         Kind = "analysis"
	KindContentBlocked   Kind = "content_blocked"
)

// ErrContentBlocked is matched (via errors.Is) by generator errors reporting
// that the remote service withheld its output because of a safety filter.
var ErrContentBlocked = errors.New("response withheld by safety filter")

// BlockedError carries the reason the service gave for withholding output.
// It matches ErrContentBlocked.
type BlockedError struct {
	Reason string
}

func (e *BlockedError) Error() string {
	if e.Reason == "" {
		return ErrContentBlocked.Error()
	}
	return fmt.Sprintf("%s (reason: %s)", ErrContentBlocked.Error(), e.Reason)
}

// Is reports whether target is ErrContentBlocked.
func (e *BlockedError) Is(target error) bool {
	return target == ErrContentBlocked
}

// Error is the failure of a single pipeline run. Asset names the file the
// failure applies to, Handle the remote identifier when one was involved.
type Error struct {
	Kind   Kind
	Asset  string
	Handle string
	Err    error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Asset != "" {
		msg += " " + e.Asset
	}
	if e.Handle != "" {
		msg += " (" + e.Handle + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// UserMessage returns a sentence suitable for showing next to the asset in a
// UI or CLI.
func (e *Error) UserMessage() string {
	subject := "this creative"
	if e.Asset != "" {
		subject = e.Asset
	}
	switch e.Kind {
	case KindValidation:
		var detail string
		if e.Err != nil {
			detail = e.Err.Error()
		}
		return "Submission rejected: " + detail
	case KindIO:
		return fmt.Sprintf("Could not save %s for upload. Check free disk space and try again.", subject)
	case KindUpload:
		return fmt.Sprintf("Could not upload %s to the analysis service. Try again in a moment.", subject)
	case KindProcessingFailed:
		return fmt.Sprintf("The analysis service could not process %s. The file may be corrupt or in an unsupported encoding.", subject)
	case KindTimeout:
		return fmt.Sprintf("Timed out waiting for %s to finish processing. Large videos can take several minutes; try again later.", subject)
	case KindCanceled:
		return "Review canceled."
	case KindContentBlocked:
		reason := ""
		var be *BlockedError
		if errors.As(e.Err, &be) && be.Reason != "" {
			reason = fmt.Sprintf(" (%s)", be.Reason)
		}
		return fmt.Sprintf("The model withheld its critique of %s because of safety filters%s. Review the creative or relax the safety thresholds.", subject, reason)
	case KindAnalysis:
		return fmt.Sprintf("The analysis request for %s failed. Try again in a moment.", subject)
	}
	return fmt.Sprintf("Reviewing %s failed.", subject)
}

// KindOf returns the Kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// newError wraps err unless it already is an *Error, in which case it is
// returned as is.
func newError(kind Kind, asset, handle string, err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: kind, Asset: asset, Handle: handle, Err: err}
}

// contextKind maps a finished context to the kind of failure it implies.
func contextKind(ctx context.Context) Kind {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindCanceled
}
