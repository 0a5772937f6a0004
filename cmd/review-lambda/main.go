// Package main is the API Lambda for creative reviews.
//
// It serves the same routes as creative-web behind API Gateway. Uploads are
// staged in S3, the job is recorded in DynamoDB and the worker Lambda is
// invoked asynchronously (InvocationType=Event) to run the review. Clients
// poll GET /api/reviews/{id}; finished reports are served as presigned S3
// links.
package main

import (
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/rs/zerolog/log"

	"github.com/fpang/creative-review/internal/config"
	"github.com/fpang/creative-review/internal/lambdaboot"
	"github.com/fpang/creative-review/internal/logging"
	"github.com/fpang/creative-review/internal/metrics"
	"github.com/fpang/creative-review/internal/review"
	"github.com/fpang/creative-review/internal/web"
)

var server *web.Server

func init() {
	initStart := time.Now()
	logging.InitJSON()

	cfg, err := config.Parse()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	clients := lambdaboot.InitAWS()
	bucket := lambdaboot.InitBucket(clients.Config, cfg.AWS.MediaBucket)
	jobStore := lambdaboot.InitDynamo(clients.Config, cfg.AWS.JobTable)
	if cfg.AWS.WorkerLambdaARN == "" {
		log.Fatal().Str("envVar", "WORKER_LAMBDA_ARN").Msg("Worker Lambda ARN is required")
	}

	// The API Lambda only validates submissions; the worker runs them.
	svc := &review.Service{
		MaxAssets:       cfg.Batch.MaxAssets,
		RequireCampaign: cfg.Batch.RequireCampaign,
	}

	server = &web.Server{
		Service: svc,
		Store:   jobStore,
		Dispatcher: &web.LambdaDispatcher{
			Bucket:    bucket,
			Store:     jobStore,
			Invoker:   lambdaboot.InitLambda(clients.Config),
			WorkerARN: cfg.AWS.WorkerLambdaARN,
		},
		Bucket:          bucket,
		Metrics:         metrics.Stdout(),
		MaxUploadBytes:  cfg.HTTP.MaxUploadBytes,
		MultipartMemory: cfg.HTTP.MultipartMemory,
		AllowedOrigins:  cfg.HTTP.AllowedOrigins,
	}

	lambdaboot.StartupLog("review-lambda", initStart).
		Resource("bucket", cfg.AWS.MediaBucket).
		Resource("table", cfg.AWS.JobTable).
		Resource("workerLambda", cfg.AWS.WorkerLambdaARN).
		Config("region", clients.Config.Region).
		Config("maxAssets", strconv.Itoa(cfg.Batch.MaxAssets)).
		Feature("requireCampaign", cfg.Batch.RequireCampaign).
		Log()
}

func main() {
	adapter := httpadapter.NewV2(server.Router())
	lambda.Start(adapter.ProxyWithContext)
}
