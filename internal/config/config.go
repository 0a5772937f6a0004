// Package config loads the runtime configuration shared by every creative
// review binary. Values come from the environment (optionally seeded from a
// .env file) and are passed explicitly to the components that need them.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config captures the full runtime configuration.
type Config struct {
	Gemini  GeminiConfig
	Poll    PollConfig
	Batch   BatchConfig
	Staging StagingConfig
	AWS     AWSConfig
	HTTP    HTTPConfig
	Kafka   KafkaConfig
}

// GeminiConfig holds credentials, model choice and the generation options
// applied to every analysis call.
type GeminiConfig struct {
	APIKey           string  `env:"GEMINI_API_KEY"`
	Model            string  `env:"GEMINI_MODEL" envDefault:"gemini-2.5-pro"`
	Temperature      float32 `env:"GEMINI_TEMPERATURE" envDefault:"1"`
	TopP             float32 `env:"GEMINI_TOP_P" envDefault:"0.95"`
	TopK             float32 `env:"GEMINI_TOP_K" envDefault:"64"`
	MaxOutputTokens  int32   `env:"GEMINI_MAX_OUTPUT_TOKENS" envDefault:"8192"`
	ResponseMIMEType string  `env:"GEMINI_RESPONSE_MIME_TYPE" envDefault:"text/plain"`

	SafetyHateSpeech       string `env:"GEMINI_SAFETY_HATE_SPEECH" envDefault:"BLOCK_MEDIUM_AND_ABOVE"`
	SafetyHarassment       string `env:"GEMINI_SAFETY_HARASSMENT" envDefault:"BLOCK_MEDIUM_AND_ABOVE"`
	SafetySexuallyExplicit string `env:"GEMINI_SAFETY_SEXUALLY_EXPLICIT" envDefault:"BLOCK_MEDIUM_AND_ABOVE"`
	SafetyDangerousContent string `env:"GEMINI_SAFETY_DANGEROUS_CONTENT" envDefault:"BLOCK_MEDIUM_AND_ABOVE"`
}

// PollConfig bounds the readiness polling loop.
type PollConfig struct {
	Interval    time.Duration `env:"POLL_INTERVAL" envDefault:"10s"`
	MaxAttempts int           `env:"POLL_MAX_ATTEMPTS" envDefault:"60"`
	Timeout     time.Duration `env:"POLL_TIMEOUT" envDefault:"10m"`
}

// BatchConfig limits how many assets a submission may carry and how many
// pipelines run at once.
type BatchConfig struct {
	MaxAssets       int  `env:"BATCH_MAX_ASSETS" envDefault:"5"`
	Workers         int  `env:"BATCH_WORKERS" envDefault:"3"`
	RequireCampaign bool `env:"BATCH_REQUIRE_CAMPAIGN" envDefault:"false"`
}

// StagingConfig selects where uploaded bytes are written before upload.
// An empty Dir means the OS temp directory.
type StagingConfig struct {
	Dir string `env:"STAGING_DIR"`
}

// AWSConfig names the cloud resources used by the Lambda deployment.
type AWSConfig struct {
	MediaBucket     string `env:"MEDIA_BUCKET_NAME"`
	JobTable        string `env:"DYNAMO_TABLE_NAME"`
	EventBus        string `env:"EVENT_BUS_NAME"`
	WorkerLambdaARN string `env:"WORKER_LAMBDA_ARN"`
	APIKeyParam     string `env:"SSM_API_KEY_PARAM" envDefault:"/creative-review/prod/gemini-api-key"`
}

// HTTPConfig configures the web server.
type HTTPConfig struct {
	Addr            string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"120s"`
	IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
	MaxUploadBytes  int64         `env:"HTTP_MAX_UPLOAD_BYTES" envDefault:"524288000"`
	MultipartMemory int64         `env:"HTTP_MULTIPART_MEMORY" envDefault:"33554432"`
	AllowedOrigins  []string      `env:"HTTP_ALLOWED_ORIGINS" envSeparator:","`
}

// KafkaConfig configures progress publication for the self-hosted server.
// Publication is off when Brokers is empty.
type KafkaConfig struct {
	Brokers          []string      `env:"KAFKA_BROKERS" envSeparator:","`
	Topic            string        `env:"KAFKA_PROGRESS_TOPIC" envDefault:"creative-review.progress"`
	Retries          int           `env:"KAFKA_RETRIES" envDefault:"3"`
	BatchTimeout     time.Duration `env:"KAFKA_BATCH_TIMEOUT" envDefault:"1s"`
	CompressionCodec string        `env:"KAFKA_COMPRESSION_CODEC" envDefault:"snappy"`
}

// Load reads an optional .env file from the working directory and then
// parses environment variables into Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Msg("Failed to read .env file, continuing with process environment")
	}
	return Parse()
}

// Parse builds a Config from the process environment only.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values that would make the pipeline misbehave.
func (c *Config) Validate() error {
	if c.Poll.Interval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive, got %s", c.Poll.Interval)
	}
	if c.Poll.MaxAttempts <= 0 {
		return fmt.Errorf("POLL_MAX_ATTEMPTS must be positive, got %d", c.Poll.MaxAttempts)
	}
	if c.Poll.Timeout <= 0 {
		return fmt.Errorf("POLL_TIMEOUT must be positive, got %s", c.Poll.Timeout)
	}
	if c.Batch.MaxAssets <= 0 {
		return fmt.Errorf("BATCH_MAX_ASSETS must be positive, got %d", c.Batch.MaxAssets)
	}
	if c.Batch.Workers <= 0 {
		return fmt.Errorf("BATCH_WORKERS must be positive, got %d", c.Batch.Workers)
	}
	return nil
}
