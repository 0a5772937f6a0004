// Package ingest stages creative assets, uploads them to the remote analysis
// service, waits for them to become usable, runs one analysis request and
// releases every local and remote resource it created.
//
// A run moves through
//
//	STAGED -> UPLOADED -> POLLING -> READY | FAILED -> ANALYZED | ANALYSIS_FAILED -> CLEANED_UP
//
// and always ends in CLEANED_UP, whichever step fails.
package ingest

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/creative-review/internal/creative"
	"github.com/fpang/creative-review/internal/metrics"
)

// Stage is a pipeline state.
type Stage string

const (
	StageStaged         Stage = "STAGED"
	StageUploaded       Stage = "UPLOADED"
	StagePolling        Stage = "POLLING"
	StageReady          Stage = "READY"
	StageFailed         Stage = "FAILED"
	StageAnalyzed       Stage = "ANALYZED"
	StageAnalysisFailed Stage = "ANALYSIS_FAILED"
	StageCleanedUp      Stage = "CLEANED_UP"
)

// DefaultCleanupTimeout bounds the remote deletes issued after a run.
const DefaultCleanupTimeout = 30 * time.Second

// Job is the input of one run: the assets analyzed together by one request.
type Job struct {
	// Index identifies the run within a batch.
	Index             int
	Assets            []creative.Asset
	Prompt            string
	SystemInstruction string
}

// Result is the outcome of one run. Err is nil on success.
type Result struct {
	Index       int
	Assets      []string
	Text        string
	Transitions []Stage
	Err         *Error
	Duration    time.Duration
}

// OK reports whether the run produced an analysis.
func (r Result) OK() bool {
	return r.Err == nil
}

// Final returns the last recorded stage.
func (r Result) Final() Stage {
	if len(r.Transitions) == 0 {
		return ""
	}
	return r.Transitions[len(r.Transitions)-1]
}

// Pipeline runs jobs. The zero value is not usable; Files and Generator are
// required.
type Pipeline struct {
	Stager    *Stager
	Files     FileService
	Generator Generator
	Poller    Poller
	Options   GenerationOptions

	// Observer receives every transition and poll attempt. It may be
	// called from several runs at once.
	Observer Observer

	// Metrics, when set, receives one EMF document per run.
	Metrics *metrics.Emitter

	// CleanupTimeout bounds remote deletes. Zero means DefaultCleanupTimeout.
	CleanupTimeout time.Duration
}

type runTimings struct {
	upload   time.Duration
	poll     time.Duration
	analysis time.Duration
	attempts int
}

// Run executes one job. It never panics on remote failures and never
// returns without releasing what it created; the failure, if any, is
// reported in Result.Err.
func (p *Pipeline) Run(ctx context.Context, job Job) (res Result) {
	start := time.Now()
	res = Result{Index: job.Index, Assets: assetNames(job.Assets)}

	if len(job.Assets) == 0 {
		res.Err = &Error{Kind: KindValidation, Err: errors.New("job has no assets")}
		return res
	}

	var (
		staged  []*StagedFile
		handles []*RemoteHandle
		timings runTimings
	)

	defer func() {
		p.cleanup(ctx, staged, handles)
		res.Duration = time.Since(start)
		p.advance(ctx, job, &res, StageCleanedUp)
		p.record(res, timings)
	}()

	stager := p.Stager
	if stager == nil {
		stager = &Stager{}
	}
	for _, a := range job.Assets {
		sf, err := stager.Stage(ctx, a)
		if err != nil {
			res.Err = newError(KindIO, a.Filename, "", err)
			return res
		}
		staged = append(staged, sf)
	}
	p.advance(ctx, job, &res, StageStaged)

	uploadStart := time.Now()
	for i, sf := range staged {
		a := job.Assets[i]
		h, err := p.Files.Upload(ctx, sf.Path, creative.UploadMIMEType(a.MIMEType), a.Filename)
		if err != nil {
			kind := KindUpload
			if ctx.Err() != nil {
				kind = contextKind(ctx)
			}
			res.Err = newError(kind, a.Filename, "", err)
			return res
		}
		if h.DisplayName == "" {
			h.DisplayName = a.Filename
		}
		handles = append(handles, h)
		log.Info().
			Str("asset", a.Filename).
			Str("file", h.ID).
			Str("state", string(h.State)).
			Msg("Asset uploaded")
	}
	timings.upload = time.Since(uploadStart)
	p.advance(ctx, job, &res, StageUploaded)
	p.advance(ctx, job, &res, StagePolling)

	pollStart := time.Now()
	err := p.Poller.Wait(ctx, p.Files, handles, func(attempt int, h *RemoteHandle) {
		timings.attempts = attempt
		p.emit(ctx, Event{
			Job:     job.Index,
			Assets:  res.Assets,
			Stage:   StagePolling,
			Attempt: attempt,
			Message: h.DisplayName + " is " + string(h.State),
		})
	})
	timings.poll = time.Since(pollStart)
	if err != nil {
		res.Err = newError(KindProcessingFailed, "", "", err)
		if res.Err.Kind != KindCanceled {
			p.advance(ctx, job, &res, StageFailed)
		}
		return res
	}
	p.advance(ctx, job, &res, StageReady)

	analysisStart := time.Now()
	text, err := p.Generator.Generate(ctx, AnalysisRequest{
		Prompt:            job.Prompt,
		SystemInstruction: job.SystemInstruction,
		Handles:           handles,
		Options:           p.Options,
	})
	timings.analysis = time.Since(analysisStart)
	if err != nil {
		kind := KindAnalysis
		switch {
		case errors.Is(err, ErrContentBlocked):
			kind = KindContentBlocked
		case ctx.Err() != nil:
			kind = contextKind(ctx)
		}
		res.Err = newError(kind, strings.Join(res.Assets, ", "), "", err)
		p.advance(ctx, job, &res, StageAnalysisFailed)
		return res
	}
	res.Text = text
	p.advance(ctx, job, &res, StageAnalyzed)
	return res
}

// cleanup releases remote handles and staged files. Failures are logged only.
func (p *Pipeline) cleanup(ctx context.Context, staged []*StagedFile, handles []*RemoteHandle) {
	if len(handles) > 0 {
		timeout := p.CleanupTimeout
		if timeout <= 0 {
			timeout = DefaultCleanupTimeout
		}
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		for _, h := range handles {
			if err := p.Files.Delete(cctx, h.ID); err != nil {
				log.Warn().Err(err).Str("file", h.ID).Msg("Failed to delete remote file")
				continue
			}
			log.Debug().Str("file", h.ID).Msg("Remote file deleted")
		}
	}
	for _, sf := range staged {
		if err := sf.Remove(); err != nil {
			log.Warn().Err(err).Str("path", sf.Path).Msg("Failed to remove staged file")
		}
	}
}

func (p *Pipeline) advance(ctx context.Context, job Job, res *Result, stage Stage) {
	res.Transitions = append(res.Transitions, stage)
	e := Event{Job: job.Index, Assets: res.Assets, Stage: stage}
	if stage == StageCleanedUp {
		e.Text = res.Text
		// Observers persist the final state even after cancellation.
		ctx = context.WithoutCancel(ctx)
	}
	if res.Err != nil && (stage == StageFailed || stage == StageAnalysisFailed || stage == StageCleanedUp) {
		e.Kind = res.Err.Kind
		e.Message = res.Err.UserMessage()
	}
	p.emit(ctx, e)
}

func (p *Pipeline) emit(ctx context.Context, e Event) {
	if p.Observer == nil {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	p.Observer.Observe(ctx, e)
}

func (p *Pipeline) record(res Result, t runTimings) {
	outcome := "analyzed"
	if res.Err != nil {
		outcome = string(res.Err.Kind)
		log.Warn().
			Err(res.Err).
			Strs("assets", res.Assets).
			Str("kind", outcome).
			Dur("duration", res.Duration).
			Msg("Pipeline run failed")
	} else {
		log.Info().
			Strs("assets", res.Assets).
			Int("chars", len(res.Text)).
			Dur("duration", res.Duration).
			Msg("Pipeline run complete")
	}

	if p.Metrics == nil {
		return
	}
	p.Metrics.New().
		Dimension("Outcome", outcome).
		Duration("RunMs", res.Duration).
		Duration("UploadMs", t.upload).
		Duration("PollMs", t.poll).
		Duration("AnalysisMs", t.analysis).
		Metric("PollAttempts", float64(t.attempts), metrics.UnitCount).
		Metric("Assets", float64(len(res.Assets)), metrics.UnitCount).
		Count("Runs").
		Flush()
}

func assetNames(assets []creative.Asset) []string {
	names := make([]string, len(assets))
	for i, a := range assets {
		names[i] = a.Filename
	}
	return names
}
