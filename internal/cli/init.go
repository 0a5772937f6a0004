// Package cli holds bootstrap and interaction helpers shared by the local
// binaries (creative-review, creative-web, creative-mcp).
package cli

import (
	"context"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/fpang/creative-review/internal/auth"
	"github.com/fpang/creative-review/internal/config"
	"github.com/fpang/creative-review/internal/gemini"
	"github.com/fpang/creative-review/internal/ingest"
	"github.com/fpang/creative-review/internal/metrics"
	"github.com/fpang/creative-review/internal/review"
)

// LoadConfig loads configuration or exits fatally.
func LoadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	return cfg
}

// InitGeminiClient creates and validates a Gemini client.
// Exits fatally on failure.
func InitGeminiClient(ctx context.Context, cfg *config.Config) *genai.Client {
	apiKey, err := auth.Source{EnvKey: cfg.Gemini.APIKey}.GetAPIKey(ctx)
	if err != nil {
		HandleValidationError(&auth.ValidationError{Type: auth.ErrTypeNoKey, Message: err.Error()})
	}

	client, err := gemini.NewClient(ctx, apiKey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create Gemini client")
	}
	log.Info().Msg("connection successful - Gemini client initialized")

	if err := auth.ValidateAPIKey(ctx, client.Models, nil); err != nil {
		HandleValidationError(err)
	}
	log.Info().Msg("API key validation complete - ready for operations")
	return client
}

// NewService builds a review service backed by the Gemini API. obs receives
// the events of every run; m may be nil.
func NewService(cfg *config.Config, client *genai.Client, obs ingest.Observer, m *metrics.Emitter) *review.Service {
	return review.New(cfg, gemini.NewFiles(client), gemini.NewGenerator(client), obs, m)
}
