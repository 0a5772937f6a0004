// Package auth resolves and validates the Gemini API key.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"
)

// ErrNoAPIKey is returned when no source provides a key.
var ErrNoAPIKey = errors.New("API key not found. Set GEMINI_API_KEY (or add it to .env)")

// ParameterGetter is the subset of the SSM client used to read the key.
type ParameterGetter interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Source resolves the API key.
// Priority order:
//  1. EnvKey (GEMINI_API_KEY from the environment or .env)
//  2. SSM Parameter Store, when SSM is set
type Source struct {
	EnvKey string
	SSM    ParameterGetter
	Param  string
}

// GetAPIKey returns the first key found.
func (s Source) GetAPIKey(ctx context.Context) (string, error) {
	if s.EnvKey != "" {
		log.Debug().Msg("Using API key from environment variable")
		return s.EnvKey, nil
	}
	if s.SSM == nil || s.Param == "" {
		return "", ErrNoAPIKey
	}

	start := time.Now()
	out, err := s.SSM.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(s.Param),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("read API key from SSM parameter %s: %w", s.Param, err)
	}
	if out.Parameter == nil || aws.ToString(out.Parameter.Value) == "" {
		return "", fmt.Errorf("SSM parameter %s is empty: %w", s.Param, ErrNoAPIKey)
	}
	log.Debug().Str("param", s.Param).Dur("elapsed", time.Since(start)).Msg("Gemini API key loaded from SSM")
	return aws.ToString(out.Parameter.Value), nil
}
