// Package gemini adapts the Gemini API (google.golang.org/genai) to the
// ingest pipeline: the Files API backs ingest.FileService and
// Models.GenerateContent backs ingest.Generator.
package gemini

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// NewClient creates a Gemini API client for the given key.
func NewClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: API key is empty")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	log.Debug().Msg("Gemini client created")
	return client, nil
}

// apiError extracts the API error from err. The SDK returns APIError by
// value; pointers are accepted too.
func apiError(err error) (genai.APIError, bool) {
	var v genai.APIError
	if errors.As(err, &v) {
		return v, true
	}
	var p *genai.APIError
	if errors.As(err, &p) && p != nil {
		return *p, true
	}
	return genai.APIError{}, false
}

// isNotFound reports whether err is a 404 from the API.
func isNotFound(err error) bool {
	apiErr, ok := apiError(err)
	return ok && apiErr.Code == 404
}
