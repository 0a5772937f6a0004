package review

import (
	"github.com/fpang/creative-review/internal/config"
	"github.com/fpang/creative-review/internal/ingest"
	"github.com/fpang/creative-review/internal/metrics"
)

// GenerationOptions converts the configured Gemini settings into the
// options applied to every analysis request.
func GenerationOptions(g config.GeminiConfig) ingest.GenerationOptions {
	return ingest.GenerationOptions{
		Model:            g.Model,
		Temperature:      g.Temperature,
		TopP:             g.TopP,
		TopK:             g.TopK,
		MaxOutputTokens:  g.MaxOutputTokens,
		ResponseMIMEType: g.ResponseMIMEType,
		Safety: ingest.SafetyThresholds{
			HateSpeech:       g.SafetyHateSpeech,
			Harassment:       g.SafetyHarassment,
			SexuallyExplicit: g.SafetySexuallyExplicit,
			DangerousContent: g.SafetyDangerousContent,
		},
	}
}

// Poller converts the configured polling bounds.
func Poller(p config.PollConfig) ingest.Poller {
	return ingest.Poller{Interval: p.Interval, MaxAttempts: p.MaxAttempts, Timeout: p.Timeout}
}

// New wires a Service from configuration. obs and m may be nil.
func New(cfg *config.Config, files ingest.FileService, gen ingest.Generator, obs ingest.Observer, m *metrics.Emitter) *Service {
	return &Service{
		Pipeline: &ingest.Pipeline{
			Stager:    &ingest.Stager{Dir: cfg.Staging.Dir},
			Files:     files,
			Generator: gen,
			Poller:    Poller(cfg.Poll),
			Options:   GenerationOptions(cfg.Gemini),
			Observer:  obs,
			Metrics:   m,
		},
		MaxAssets:       cfg.Batch.MaxAssets,
		Workers:         cfg.Batch.Workers,
		RequireCampaign: cfg.Batch.RequireCampaign,
	}
}
