package web

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	lambdasvc "github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/rs/zerolog/log"

	"github.com/fpang/creative-review/internal/jobutil"
	"github.com/fpang/creative-review/internal/review"
	"github.com/fpang/creative-review/internal/s3util"
	"github.com/fpang/creative-review/internal/store"
)

// WorkerEvent is the payload sent to the worker Lambda.
type WorkerEvent struct {
	Type  string `json:"type"`
	JobID string `json:"jobId"`
}

// WorkerEventReview is the only WorkerEvent type.
const WorkerEventReview = "review"

// Invoker is the subset of the Lambda client used to start the worker.
type Invoker interface {
	Invoke(ctx context.Context, in *lambdasvc.InvokeInput, optFns ...func(*lambdasvc.Options)) (*lambdasvc.InvokeOutput, error)
}

// LambdaDispatcher stages uploads in S3, records the job in the store and
// invokes the worker Lambda asynchronously.
type LambdaDispatcher struct {
	Bucket    *s3util.Bucket
	Store     store.JobStore
	Invoker   Invoker
	WorkerARN string
}

var _ Dispatcher = (*LambdaDispatcher)(nil)

func (d *LambdaDispatcher) Submit(ctx context.Context, job *store.Job, req review.Request) error {
	if d.Invoker == nil || d.WorkerARN == "" {
		return fmt.Errorf("worker lambda not configured")
	}

	var uploaded []string
	for i, a := range req.Assets {
		key := s3util.AssetKey(job.ID, i, a.Filename)
		if err := d.Bucket.PutAsset(ctx, key, a); err != nil {
			d.discard(ctx, uploaded)
			return err
		}
		uploaded = append(uploaded, key)
		job.Assets[i].Key = key
	}

	if err := d.Store.PutJob(ctx, job); err != nil {
		d.discard(ctx, uploaded)
		return fmt.Errorf("store job: %w", err)
	}

	payload, err := json.Marshal(WorkerEvent{Type: WorkerEventReview, JobID: job.ID})
	if err != nil {
		return fmt.Errorf("marshal worker event: %w", err)
	}
	log.Debug().Int("payloadSize", len(payload)).Msg("Invoking worker Lambda asynchronously")

	_, err = d.Invoker.Invoke(ctx, &lambdasvc.InvokeInput{
		FunctionName:   aws.String(d.WorkerARN),
		InvocationType: lambdatypes.InvocationTypeEvent,
		Payload:        payload,
	})
	if err != nil {
		if uerr := jobutil.Fail(ctx, job.ID, "failed to start worker", d.Store.UpdateStatus); uerr != nil {
			log.Warn().Err(uerr).Str("jobId", job.ID).Msg("Failed to record dispatch failure")
		}
		d.discard(ctx, uploaded)
		return fmt.Errorf("invoke worker lambda: %w", err)
	}

	log.Debug().Str("jobId", job.ID).Msg("Worker Lambda invoked asynchronously")
	return nil
}

// Cancel is not supported once the worker has been invoked.
func (d *LambdaDispatcher) Cancel(context.Context, string) error {
	return ErrNotCancelable
}

func (d *LambdaDispatcher) discard(ctx context.Context, keys []string) {
	if err := d.Bucket.Delete(context.WithoutCancel(ctx), keys...); err != nil {
		log.Warn().Err(err).Strs("keys", keys).Msg("Failed to delete staged uploads")
	}
}
