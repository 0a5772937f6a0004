package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	eventbridgetypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/rs/zerolog/log"

	"github.com/fpang/creative-review/internal/ingest"
)

// EventSource is the EventBridge source of review events.
const EventSource = "creative-review"

// Detail types.
const (
	DetailTypeRunProgress = "ReviewRunProgress"
	DetailTypeJobComplete = "ReviewJobComplete"
)

// EventBridgeAPI is the subset of the EventBridge client used here.
type EventBridgeAPI interface {
	PutEvents(ctx context.Context, in *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// RunProgress is the detail of a ReviewRunProgress event.
type RunProgress struct {
	JobID     string   `json:"jobId"`
	Run       int      `json:"run"`
	Assets    []string `json:"assets"`
	Stage     string   `json:"stage"`
	ErrorKind string   `json:"errorKind,omitempty"`
	Message   string   `json:"message,omitempty"`
	Timestamp string   `json:"timestamp"`
}

// JobComplete is the detail of a ReviewJobComplete event.
type JobComplete struct {
	JobID     string `json:"jobId"`
	Status    string `json:"status"`
	Runs      int    `json:"runs"`
	Failed    int    `json:"failed"`
	ReportKey string `json:"reportKey,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Notifier announces a job's stage transitions and its completion on a
// message bus.
type Notifier interface {
	ingest.Observer
	PublishComplete(ctx context.Context, summary JobComplete) error
}

var (
	_ Notifier = (*Publisher)(nil)
	_ Notifier = (*KafkaPublisher)(nil)
)

func runProgress(jobID string, e ingest.Event) RunProgress {
	return RunProgress{
		JobID:     jobID,
		Run:       e.Job,
		Assets:    e.Assets,
		Stage:     string(e.Stage),
		ErrorKind: string(e.Kind),
		Message:   e.Message,
		Timestamp: e.At.UTC().Format(time.RFC3339),
	}
}

// Publisher sends stage transitions to an EventBridge bus. Poll attempts
// are not published.
type Publisher struct {
	Client EventBridgeAPI
	Bus    string
	JobID  string
}

func (p *Publisher) Observe(ctx context.Context, e ingest.Event) {
	if e.Attempt > 0 {
		return
	}
	detail := runProgress(p.JobID, e)
	if err := p.put(ctx, DetailTypeRunProgress, detail); err != nil {
		log.Warn().Err(err).Str("jobId", p.JobID).Str("stage", detail.Stage).Msg("Failed to publish run progress")
	}
}

// PublishComplete sends the job summary event.
func (p *Publisher) PublishComplete(ctx context.Context, summary JobComplete) error {
	summary.JobID = p.JobID
	if summary.Timestamp == "" {
		summary.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	return p.put(ctx, DetailTypeJobComplete, summary)
}

func (p *Publisher) put(ctx context.Context, detailType string, v any) error {
	detail, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", detailType, err)
	}

	entry := eventbridgetypes.PutEventsRequestEntry{
		Source:     aws.String(EventSource),
		DetailType: aws.String(detailType),
		Detail:     aws.String(string(detail)),
	}
	if p.Bus != "" {
		entry.EventBusName = aws.String(p.Bus)
	}

	result, err := p.Client.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []eventbridgetypes.PutEventsRequestEntry{entry},
	})
	if err != nil {
		return fmt.Errorf("PutEvents: %w", err)
	}
	if result.FailedEntryCount > 0 {
		for i, e := range result.Entries {
			if e.ErrorCode != nil || e.ErrorMessage != nil {
				return fmt.Errorf("PutEvents entry %d failed: %s - %s", i, aws.ToString(e.ErrorCode), aws.ToString(e.ErrorMessage))
			}
		}
	}

	log.Debug().Str("jobId", p.JobID).Str("detailType", detailType).Msg("Event published to EventBridge")
	return nil
}
