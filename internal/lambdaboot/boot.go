// Package lambdaboot provides shared Lambda cold-start bootstrap logic.
//
// Both Lambdas need some subset of: AWS config, S3, DynamoDB, EventBridge,
// Lambda invoke, the Gemini API key from SSM, and startup logging. Each
// Lambda's init() is a short composition of these helpers.
package lambdaboot

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"

	"github.com/fpang/creative-review/internal/auth"
	"github.com/fpang/creative-review/internal/config"
	"github.com/fpang/creative-review/internal/logging"
	"github.com/fpang/creative-review/internal/progress"
	"github.com/fpang/creative-review/internal/s3util"
	"github.com/fpang/creative-review/internal/store"
)

// AWSClients holds the core AWS SDK config and the SSM client.
type AWSClients struct {
	Config aws.Config
	SSM    *ssm.Client
}

// InitAWS loads the default AWS config. Fatals on error.
func InitAWS() AWSClients {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load AWS config")
	}
	log.Debug().Str("region", cfg.Region).Msg("AWS config loaded")
	return AWSClients{
		Config: cfg,
		SSM:    ssm.NewFromConfig(cfg),
	}
}

// InitBucket creates the media bucket client and presigner. Fatals if the
// bucket is not configured.
func InitBucket(cfg aws.Config, bucket string) *s3util.Bucket {
	if bucket == "" {
		log.Fatal().Str("envVar", "MEDIA_BUCKET_NAME").Msg("Bucket environment variable is required")
	}
	client := s3.NewFromConfig(cfg)
	return &s3util.Bucket{
		Client:    client,
		Presigner: s3.NewPresignClient(client),
		Name:      bucket,
	}
}

// InitDynamo creates the job store. Fatals if the table is not configured.
func InitDynamo(cfg aws.Config, table string) *store.DynamoStore {
	if table == "" {
		log.Fatal().Str("envVar", "DYNAMO_TABLE_NAME").Msg("DynamoDB table environment variable is required")
	}
	return store.NewDynamoStore(dynamodb.NewFromConfig(cfg), table)
}

// InitEventBridge returns a progress publisher for the bus, or nil (with a
// warning) when no bus is configured.
func InitEventBridge(cfg aws.Config, bus, jobID string) *progress.Publisher {
	if bus == "" {
		log.Warn().Str("envVar", "EVENT_BUS_NAME").Msg("Event bus not set, progress events disabled")
		return nil
	}
	return &progress.Publisher{Client: eventbridge.NewFromConfig(cfg), Bus: bus, JobID: jobID}
}

// InitLambda creates a Lambda client for async worker invocation.
func InitLambda(cfg aws.Config) *lambda.Client {
	return lambda.NewFromConfig(cfg)
}

// LoadGeminiKey resolves the Gemini API key from the environment or SSM
// Parameter Store and stores it in cfg. Fatals on error.
func LoadGeminiKey(ctx context.Context, ssmClient auth.ParameterGetter, cfg *config.Config) {
	src := auth.Source{EnvKey: cfg.Gemini.APIKey, SSM: ssmClient, Param: cfg.AWS.APIKeyParam}
	key, err := src.GetAPIKey(ctx)
	if err != nil {
		log.Fatal().Err(err).Str("param", cfg.AWS.APIKeyParam).Msg("Failed to load Gemini API key")
	}
	cfg.Gemini.APIKey = key
}

// StartupLog is a convenience wrapper for the startup logger.
func StartupLog(name string, initStart time.Time) *logging.StartupLogger {
	return logging.NewStartupLogger(name).InitDuration(time.Since(initStart))
}
