// Package jobs generates and checks review job identifiers.
package jobs

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/rs/zerolog/log"
)

// ReviewPrefix starts every review job ID.
const ReviewPrefix = "review-"

// NewReviewID returns a random review job ID such as "review-3f2a...".
func NewReviewID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		log.Fatal().Err(err).Msg("Failed to generate random review job ID")
	}
	return ReviewPrefix + hex.EncodeToString(b)
}

// Normalize accepts an ID with or without the prefix and returns the
// prefixed form, or "" when the remainder is not 32 hex characters.
func Normalize(id string) string {
	rest := strings.TrimPrefix(id, ReviewPrefix)
	if len(rest) != 32 {
		return ""
	}
	if _, err := hex.DecodeString(rest); err != nil {
		return ""
	}
	return ReviewPrefix + strings.ToLower(rest)
}
