package ingest

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/fpang/creative-review/internal/creative"
)

// Batch limits.
const (
	DefaultMaxAssets = 5
	DefaultWorkers   = 3
)

// Batch runs independent jobs on a bounded worker pool. A failing job never
// affects its siblings.
type Batch struct {
	Pipeline *Pipeline
	// MaxAssets bounds the total number of assets across all jobs.
	MaxAssets int
	// Workers bounds the number of concurrent runs. 1 runs jobs in order.
	Workers int
}

// Validate checks a submission before anything is created.
func (b *Batch) Validate(jobs []Job) error {
	maxAssets := b.MaxAssets
	if maxAssets <= 0 {
		maxAssets = DefaultMaxAssets
	}
	total := 0
	for _, j := range jobs {
		total += len(j.Assets)
	}
	if err := creative.ValidateAssetCount(total, maxAssets); err != nil {
		return &Error{Kind: KindValidation, Err: err}
	}
	for _, j := range jobs {
		if len(j.Assets) == 0 {
			return &Error{Kind: KindValidation, Err: &creative.ValidationError{Field: "assets", Message: fmt.Sprintf("run %d has no assets", j.Index)}}
		}
		for _, a := range j.Assets {
			if err := creative.ValidateAsset(a); err != nil {
				return &Error{Kind: KindValidation, Asset: a.Filename, Err: err}
			}
		}
	}
	return nil
}

// Run validates the jobs and then runs each one. A validation failure is
// returned as a KindValidation *Error and no run is started. Otherwise the
// results are returned in job order.
func (b *Batch) Run(ctx context.Context, jobs []Job) ([]Result, error) {
	if err := b.Validate(jobs); err != nil {
		return nil, err
	}

	workers := b.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	log.Info().
		Int("runs", len(jobs)).
		Int("workers", workers).
		Msg("Starting batch")

	results := make([]Result, len(jobs))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, job := range jobs {
		g.Go(func() error {
			results[i] = b.Pipeline.Run(ctx, job)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if !r.OK() {
			failed++
		}
	}
	log.Info().
		Int("runs", len(results)).
		Int("failed", failed).
		Msg("Batch complete")
	return results, nil
}

// SingleJobs builds one job per asset, all sharing the same prompt.
func SingleJobs(assets []creative.Asset, prompt, systemInstruction string) []Job {
	jobs := make([]Job, len(assets))
	for i, a := range assets {
		jobs[i] = Job{
			Index:             i,
			Assets:            []creative.Asset{a},
			Prompt:            prompt,
			SystemInstruction: systemInstruction,
		}
	}
	return jobs
}
