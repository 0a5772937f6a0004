package cli

import (
	"errors"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/fpang/creative-review/internal/auth"
	"github.com/fpang/creative-review/internal/creative"
)

// LoadAssets opens every path as an asset. Exits fatally on the first path
// that is missing, a directory or of an unsupported type.
func LoadAssets(paths []string) []creative.Asset {
	assets := make([]creative.Asset, 0, len(paths))
	for _, p := range paths {
		a, err := creative.FromFile(p)
		if err != nil {
			log.Fatal().Err(err).Str("path", p).Msg("Cannot use file")
		}
		assets = append(assets, a)
	}
	return assets
}

// HandleValidationError processes auth.ValidationError and exits with appropriate messaging.
func HandleValidationError(err error) {
	var validationErr *auth.ValidationError
	if errors.As(err, &validationErr) {
		switch validationErr.Type {
		case auth.ErrTypeNoKey:
			log.Fatal().Msg("No API key configured. Set GEMINI_API_KEY or add it to .env")
		case auth.ErrTypeInvalidKey:
			log.Fatal().Err(err).Msg("Invalid API key. Please check your API key and try again")
		case auth.ErrTypeNetworkError:
			log.Fatal().Err(err).Msg("Network error. Please check your internet connection")
		case auth.ErrTypeQuotaExceeded:
			log.Fatal().Err(err).Msg("API quota exceeded. Please try again later or check your usage limits")
		default:
			log.Fatal().Err(err).Msg("API key validation failed")
		}
	} else {
		log.Fatal().Err(err).Msg("unexpected error during API key validation")
	}
	os.Exit(1)
}
