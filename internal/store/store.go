// Package store persists review jobs and the progress of each pipeline run
// so that any surface (CLI, web server, Lambda) can report where a review
// stands.
//
// The DynamoDB implementation uses a single-table design: all records of a
// job share the partition key REVIEW#{jobId}. The META sort key holds the
// job itself and RUN#{nn} holds one record per pipeline run, so concurrent
// runs never overwrite each other. A TTL attribute (expiresAt) removes
// records after JobTTL, matching the S3 upload lifecycle.
package store

import (
	"context"
	"time"

	"github.com/fpang/creative-review/internal/creative"
)

// JobTTL is the lifetime of persisted review records.
const JobTTL = 24 * time.Hour

// Job statuses.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusComplete   = "complete"
	StatusError      = "error"
	StatusCanceled   = "canceled"
)

// JobStore persists review jobs. Implementations are safe for concurrent
// use. GetJob returns (nil, nil) when the job does not exist.
type JobStore interface {
	// PutJob creates or replaces the job record, including its runs.
	PutJob(ctx context.Context, job *Job) error

	// GetJob returns the job and all of its runs ordered by index.
	GetJob(ctx context.Context, id string) (*Job, error)

	// PutRun creates or replaces the record of one run.
	PutRun(ctx context.Context, jobID string, run *Run) error

	// UpdateStatus sets the job status and error message without touching
	// other fields.
	UpdateStatus(ctx context.Context, jobID, status, errMsg string) error

	// DeleteJob removes the job and its runs.
	DeleteJob(ctx context.Context, id string) error
}

// Job is one submission: its assets, campaign and the runs reviewing them.
type Job struct {
	ID       string            `json:"id" dynamodbav:"-"`
	Status   string            `json:"status" dynamodbav:"status"`
	Campaign creative.Campaign `json:"campaign" dynamodbav:"campaign"`
	Combined bool              `json:"combined" dynamodbav:"combined"`
	Assets   []AssetRef        `json:"assets" dynamodbav:"assets"`
	Runs     []Run             `json:"runs" dynamodbav:"-"`

	// Error is set when the whole job failed before any run started.
	Error string `json:"error,omitempty" dynamodbav:"error,omitempty"`
	// ReportKey is the object key of the rendered report, when stored
	// remotely.
	ReportKey string `json:"reportKey,omitempty" dynamodbav:"reportKey,omitempty"`

	CreatedAt int64 `json:"createdAt" dynamodbav:"createdAt"`
	UpdatedAt int64 `json:"updatedAt" dynamodbav:"updatedAt"`
}

// AssetRef describes an uploaded asset without its bytes. Key is the
// object key when the bytes live in S3.
type AssetRef struct {
	Filename string `json:"filename" dynamodbav:"filename"`
	MIMEType string `json:"mimeType" dynamodbav:"mimeType"`
	Size     int64  `json:"size" dynamodbav:"size"`
	Key      string `json:"key,omitempty" dynamodbav:"key,omitempty"`
}

// Run is the persisted state of one pipeline run.
type Run struct {
	Index     int      `json:"index" dynamodbav:"index"`
	Assets    []string `json:"assets" dynamodbav:"assets"`
	Stage     string   `json:"stage" dynamodbav:"stage"`
	Attempt   int      `json:"attempt,omitempty" dynamodbav:"attempt,omitempty"`
	Text      string   `json:"text,omitempty" dynamodbav:"text,omitempty"`
	// Status is the latest progress note, e.g. "a.png is PROCESSING".
	Status    string   `json:"status,omitempty" dynamodbav:"status,omitempty"`
	ErrorKind string   `json:"errorKind,omitempty" dynamodbav:"errorKind,omitempty"`
	// Error is the user message of a failed run; empty while it is healthy.
	Error     string   `json:"error,omitempty" dynamodbav:"error,omitempty"`
	Done      bool     `json:"done" dynamodbav:"done"`
	UpdatedAt int64    `json:"updatedAt" dynamodbav:"updatedAt"`
}

// Failed reports whether the run ended with an error.
func (r Run) Failed() bool {
	return r.ErrorKind != ""
}

// Finished reports whether every run of the job is done.
func (j *Job) Finished() bool {
	if len(j.Runs) == 0 {
		return false
	}
	for _, r := range j.Runs {
		if !r.Done {
			return false
		}
	}
	return true
}

// Terminal reports whether the job status will not change again.
func Terminal(status string) bool {
	switch status {
	case StatusComplete, StatusError, StatusCanceled:
		return true
	}
	return false
}
