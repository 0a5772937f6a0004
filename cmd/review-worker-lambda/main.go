// Package main is the worker Lambda that runs creative reviews.
//
// The API Lambda stages uploads in S3, records the job in DynamoDB and
// invokes this function asynchronously with a WorkerEvent:
//
//	{"type": "review", "jobId": "review-..."}
//
// The worker downloads the assets, runs the review pipeline against Gemini,
// records per-run progress in DynamoDB (and on EventBridge when a bus is
// configured), stores the PDF report and zip bundle in S3 and finally
// deletes the staged uploads.
package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/rs/zerolog/log"

	"github.com/fpang/creative-review/internal/config"
	"github.com/fpang/creative-review/internal/creative"
	"github.com/fpang/creative-review/internal/gemini"
	"github.com/fpang/creative-review/internal/ingest"
	"github.com/fpang/creative-review/internal/jobs"
	"github.com/fpang/creative-review/internal/jobutil"
	"github.com/fpang/creative-review/internal/lambdaboot"
	"github.com/fpang/creative-review/internal/logging"
	"github.com/fpang/creative-review/internal/metrics"
	"github.com/fpang/creative-review/internal/progress"
	"github.com/fpang/creative-review/internal/report"
	"github.com/fpang/creative-review/internal/review"
	"github.com/fpang/creative-review/internal/s3util"
	"github.com/fpang/creative-review/internal/store"
	"github.com/fpang/creative-review/internal/web"
)

var coldStart = true

// Initialized at cold start.
var (
	cfg       *config.Config
	awsConfig aws.Config
	bucket    *s3util.Bucket
	jobStore  *store.DynamoStore
	files     *gemini.Files
	generator *gemini.Generator
	emitter   *metrics.Emitter
)

func init() {
	initStart := time.Now()
	logging.InitJSON()

	var err error
	cfg, err = config.Parse()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	clients := lambdaboot.InitAWS()
	awsConfig = clients.Config
	bucket = lambdaboot.InitBucket(clients.Config, cfg.AWS.MediaBucket)
	jobStore = lambdaboot.InitDynamo(clients.Config, cfg.AWS.JobTable)
	lambdaboot.LoadGeminiKey(context.Background(), clients.SSM, cfg)

	client, err := gemini.NewClient(context.Background(), cfg.Gemini.APIKey)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Gemini client")
	}
	files = gemini.NewFiles(client)
	generator = gemini.NewGenerator(client)
	emitter = metrics.Stdout()

	lambdaboot.StartupLog("review-worker-lambda", initStart).
		Resource("bucket", cfg.AWS.MediaBucket).
		Resource("table", cfg.AWS.JobTable).
		Resource("eventBus", cfg.AWS.EventBus).
		Resource("apiKeyParam", cfg.AWS.APIKeyParam).
		Config("region", clients.Config.Region).
		Config("model", cfg.Gemini.Model).
		Config("workers", strconv.Itoa(cfg.Batch.Workers)).
		Feature("structuredCritique", cfg.Gemini.ResponseMIMEType == "application/json").
		Log()
}

func main() {
	lambda.Start(handler)
}

func handler(ctx context.Context, event web.WorkerEvent) error {
	if coldStart {
		coldStart = false
		log.Info().Str("function", "review-worker-lambda").Msg("Cold start, first invocation")
	}
	log.Info().Str("type", event.Type).Str("jobId", event.JobID).Msg("Worker Lambda invoked")

	if event.Type != web.WorkerEventReview {
		return fmt.Errorf("unknown event type %q", event.Type)
	}
	id := jobs.Normalize(event.JobID)
	if id == "" {
		return fmt.Errorf("invalid job id %q", event.JobID)
	}

	job, err := jobStore.GetJob(ctx, id)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}
	if job == nil {
		// Expired or deleted before the worker started; nothing to retry.
		log.Warn().Str("jobId", id).Msg("Job not found, skipping")
		return nil
	}
	if store.Terminal(job.Status) {
		log.Warn().Str("jobId", id).Str("status", job.Status).Msg("Job already finished, skipping")
		return nil
	}

	processJob(ctx, job)
	return nil
}

// processJob runs the review and records the outcome. Failures are written
// to the job rather than returned so that the async invocation is not
// retried against half-cleaned state.
func processJob(ctx context.Context, job *store.Job) {
	start := time.Now()
	saveCtx := context.WithoutCancel(ctx)

	if err := jobStore.UpdateStatus(ctx, job.ID, store.StatusProcessing, ""); err != nil {
		log.Warn().Err(err).Str("jobId", job.ID).Msg("Failed to mark job processing")
	}

	keys := make([]string, 0, len(job.Assets))
	for _, a := range job.Assets {
		if a.Key != "" {
			keys = append(keys, a.Key)
		}
	}
	defer func() {
		if err := bucket.Delete(saveCtx, keys...); err != nil {
			log.Warn().Err(err).Str("jobId", job.ID).Msg("Failed to delete staged uploads")
		}
	}()

	assets, cleanup, err := downloadAssets(ctx, job.Assets)
	defer cleanup()
	if err != nil {
		log.Error().Err(err).Str("jobId", job.ID).Msg("Failed to download assets")
		if err := jobutil.Fail(ctx, job.ID, "failed to read uploaded assets", jobStore.UpdateStatus); err != nil {
			log.Error().Err(err).Str("jobId", job.ID).Msg("Failed to record job status")
		}
		return
	}

	publisher := lambdaboot.InitEventBridge(awsConfig, cfg.AWS.EventBus, job.ID)
	observers := ingest.Observers{progress.NewStoreObserver(jobStore, job.ID)}
	if publisher != nil {
		observers = append(observers, publisher)
	}
	svc := review.New(cfg, files, generator, observers, emitter)

	rv, err := svc.Review(ctx, review.Request{
		Assets:   assets,
		Campaign: job.Campaign,
		Combined: job.Combined,
	})

	status, msg := store.StatusComplete, ""
	switch {
	case ctx.Err() != nil:
		status, msg = store.StatusError, "review timed out"
	case err != nil:
		status, msg = store.StatusError, userMessage(err)
	}

	reportKey := ""
	if rv != nil {
		reportKey = storeReport(saveCtx, job.ID, rv)
	}
	finish(saveCtx, job.ID, status, msg, reportKey, rv)

	m := emitter.New().
		Dimension("Status", status).
		Duration("ReviewJobMs", time.Since(start)).
		Metric("ReviewAssets", float64(len(assets)), "Count")
	if rv != nil {
		m.Metric("ReviewRunsFailed", float64(rv.Failed()), "Count")
	}
	m.Flush()

	if publisher != nil {
		summary := progress.JobComplete{Status: status, ReportKey: reportKey}
		if rv != nil {
			summary.Runs = len(rv.Items)
			summary.Failed = rv.Failed()
		}
		if err := publisher.PublishComplete(saveCtx, summary); err != nil {
			log.Warn().Err(err).Str("jobId", job.ID).Msg("Failed to publish job completion")
		}
	}
}

// downloadAssets fetches every staged upload to a temporary file. The
// returned cleanup removes whatever was downloaded, even on error.
func downloadAssets(ctx context.Context, refs []store.AssetRef) ([]creative.Asset, func(), error) {
	var cleanups []func()
	cleanup := func() {
		for _, c := range cleanups {
			c()
		}
	}
	assets := make([]creative.Asset, 0, len(refs))
	for _, ref := range refs {
		a, c, err := bucket.DownloadAsset(ctx, ref.Key, ref.Filename, ref.MIMEType)
		if err != nil {
			return nil, cleanup, err
		}
		cleanups = append(cleanups, c)
		assets = append(assets, a)
	}
	return assets, cleanup, nil
}

// storeReport renders the PDF report and the zip bundle to S3 and returns
// the PDF key, or "" when the PDF could not be stored.
func storeReport(ctx context.Context, id string, rv *review.Review) string {
	doc := report.FromReview(id, rv)

	var pdf bytes.Buffer
	if err := report.WritePDF(&pdf, doc); err != nil {
		log.Error().Err(err).Str("jobId", id).Msg("Failed to render report")
		return ""
	}
	key := s3util.ReportKey(id, s3util.ReportPDF)
	if err := bucket.Put(ctx, key, "application/pdf", &pdf); err != nil {
		log.Error().Err(err).Str("jobId", id).Msg("Failed to store report")
		return ""
	}

	var bundle bytes.Buffer
	if err := report.WriteBundle(&bundle, doc); err != nil {
		log.Warn().Err(err).Str("jobId", id).Msg("Failed to build report bundle")
	} else if err := bucket.Put(ctx, s3util.ReportKey(id, s3util.ReportBundle), "application/zip", &bundle); err != nil {
		log.Warn().Err(err).Str("jobId", id).Msg("Failed to store report bundle")
	}
	return key
}

// finish records the final status and report key. Runs are rewritten from
// the store so progress recorded by observers is preserved.
func finish(ctx context.Context, id, status, msg, reportKey string, rv *review.Review) {
	job, err := jobStore.GetJob(ctx, id)
	if err != nil || job == nil {
		log.Error().Err(err).Str("jobId", id).Msg("Failed to reload job")
		if err := jobStore.UpdateStatus(ctx, id, status, msg); err != nil {
			log.Error().Err(err).Str("jobId", id).Msg("Failed to record job status")
		}
		return
	}
	job.Status = status
	job.Error = msg
	job.ReportKey = reportKey
	if err := jobStore.PutJob(ctx, job); err != nil {
		log.Error().Err(err).Str("jobId", id).Msg("Failed to record job status")
		return
	}

	ev := log.Info().Str("jobId", id).Str("status", status)
	if rv != nil {
		ev = ev.Int("runs", len(rv.Items)).Int("failed", rv.Failed())
	}
	ev.Msg("Review finished")
}

func userMessage(err error) string {
	var ie *ingest.Error
	if errors.As(err, &ie) {
		return ie.UserMessage()
	}
	return err.Error()
}
