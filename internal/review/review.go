// Package review is the single entry point used by every surface: it
// validates a submission, measures the assets, renders prompts and runs
// the ingestion batch.
package review

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/fpang/creative-review/internal/assets"
	"github.com/fpang/creative-review/internal/creative"
	"github.com/fpang/creative-review/internal/ingest"
	"github.com/fpang/creative-review/internal/jsonutil"
)

// Service reviews creatives.
type Service struct {
	// Pipeline is the template for every run. Its Observer, when set, sees
	// the events of every request.
	Pipeline *ingest.Pipeline

	MaxAssets       int
	Workers         int
	RequireCampaign bool
}

// Request is one submission.
type Request struct {
	Assets   []creative.Asset
	Campaign creative.Campaign
	// Combined sends all assets in a single analysis request instead of
	// one request per asset.
	Combined bool
	// Observer receives the events of this request only.
	Observer ingest.Observer
}

// Item is the outcome of one run together with what was measured about its
// assets.
type Item struct {
	ingest.Result
	Details  []*creative.Details
	Critique *Critique
}

// Review is the outcome of a submission. Items are in submission order.
type Review struct {
	Campaign creative.Campaign
	Combined bool
	Assets   []creative.Asset
	Items    []Item
}

// Failed returns the number of runs that ended in error.
func (r *Review) Failed() int {
	n := 0
	for _, it := range r.Items {
		if !it.OK() {
			n++
		}
	}
	return n
}

// Critique is the structured answer requested when the response MIME type is
// application/json.
type Critique struct {
	Score     int      `json:"score"`
	Summary   string   `json:"summary"`
	Strengths []string `json:"strengths"`
	Issues    []Issue  `json:"issues"`
}

// Issue is one best-practice finding.
type Issue struct {
	Area           string `json:"area"`
	Severity       string `json:"severity"`
	Detail         string `json:"detail"`
	Recommendation string `json:"recommendation"`
}

// Validate normalizes the campaign and checks the submission without
// creating anything. Failures are KindValidation *ingest.Error values.
func (s *Service) Validate(req *Request) error {
	req.Campaign = req.Campaign.Normalize()
	if err := creative.ValidateSubmission(req.Assets, req.Campaign, s.maxAssets(), s.RequireCampaign); err != nil {
		return &ingest.Error{Kind: ingest.KindValidation, Err: err}
	}
	return nil
}

// Review validates the request and runs it. A validation failure is
// returned as an error and nothing is staged or uploaded; run failures are
// reported per item.
func (s *Service) Review(ctx context.Context, req Request) (*Review, error) {
	if err := s.Validate(&req); err != nil {
		return nil, err
	}

	details := make([]*creative.Details, len(req.Assets))
	for i, a := range req.Assets {
		d, err := creative.Inspect(ctx, a)
		if err != nil {
			log.Warn().Err(err).Str("asset", a.Filename).Msg("Failed to inspect asset, continuing without details")
			d = &creative.Details{Kind: a.Kind(), SizeBytes: a.Size}
		}
		details[i] = d
	}

	jobs, jobDetails := s.buildJobs(req, details)

	p := *s.Pipeline
	p.Observer = ingest.Observers{s.Pipeline.Observer, req.Observer}
	batch := &ingest.Batch{Pipeline: &p, MaxAssets: s.maxAssets(), Workers: s.Workers}

	log.Info().
		Int("assets", len(req.Assets)).
		Bool("combined", req.Combined).
		Str("channel", req.Campaign.Channel).
		Str("objective", req.Campaign.Objective).
		Str("device", req.Campaign.Device).
		Msg("Starting creative review")

	results, err := batch.Run(ctx, jobs)
	if err != nil {
		return nil, err
	}

	structured := s.structured()
	rv := &Review{Campaign: req.Campaign, Combined: req.Combined, Assets: req.Assets}
	for i, res := range results {
		item := Item{Result: res, Details: jobDetails[i]}
		if structured && res.OK() {
			c, err := jsonutil.ParseJSON[Critique](res.Text)
			if err != nil {
				log.Warn().Err(err).Int("run", res.Index).Msg("Failed to parse structured critique, keeping raw text")
			} else {
				item.Critique = &c
			}
		}
		rv.Items = append(rv.Items, item)
	}

	log.Info().
		Int("runs", len(rv.Items)).
		Int("failed", rv.Failed()).
		Msg("Creative review complete")
	return rv, nil
}

func (s *Service) buildJobs(req Request, details []*creative.Details) ([]ingest.Job, [][]*creative.Details) {
	structured := s.structured()
	if req.Combined {
		var ctxBlocks []string
		for i, a := range req.Assets {
			ctxBlocks = append(ctxBlocks, details[i].FormatContext(a.Filename))
		}
		prompt := assets.RenderCombinedPrompt(assets.PromptData{
			Campaign:        req.Campaign,
			MetadataContext: strings.Join(ctxBlocks, "\n"),
			Count:           len(req.Assets),
			Structured:      structured,
		})
		return []ingest.Job{{
			Index:             0,
			Assets:            req.Assets,
			Prompt:            prompt,
			SystemInstruction: assets.SystemInstructionPrompt,
		}}, [][]*creative.Details{details}
	}

	jobs := make([]ingest.Job, len(req.Assets))
	jobDetails := make([][]*creative.Details, len(req.Assets))
	for i, a := range req.Assets {
		jobs[i] = ingest.Job{
			Index:  i,
			Assets: []creative.Asset{a},
			Prompt: assets.RenderReviewPrompt(a.Kind(), assets.PromptData{
				Campaign:        req.Campaign,
				MetadataContext: details[i].FormatContext(a.Filename),
				Count:           1,
				Structured:      structured,
			}),
			SystemInstruction: assets.SystemInstructionPrompt,
		}
		jobDetails[i] = []*creative.Details{details[i]}
	}
	return jobs, jobDetails
}

func (s *Service) structured() bool {
	return strings.EqualFold(s.Pipeline.Options.ResponseMIMEType, "application/json")
}

func (s *Service) maxAssets() int {
	if s.MaxAssets <= 0 {
		return ingest.DefaultMaxAssets
	}
	return s.MaxAssets
}
