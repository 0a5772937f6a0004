package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/fpang/creative-review/internal/config"
	"github.com/fpang/creative-review/internal/ingest"
)

// MessageWriter is the subset of *kafka.Writer used here.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
}

// NewKafkaWriter builds a writer for the progress topic, or returns nil
// when no brokers are configured. Messages are keyed by job ID so each
// job's events stay ordered within a partition. BatchSize is 1: Observe
// runs on the pipeline goroutine and each write must not wait for
// BatchTimeout.
func NewKafkaWriter(cfg config.KafkaConfig) *kafkago.Writer {
	if len(cfg.Brokers) == 0 {
		return nil
	}
	return &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafkago.Hash{},
		BatchSize:    1,
		BatchTimeout: cfg.BatchTimeout,
		RequiredAcks: kafkago.RequireAll,
		Compression:  compressionFromString(cfg.CompressionCodec),
		MaxAttempts:  cfg.Retries,
	}
}

func compressionFromString(name string) kafkago.Compression {
	switch strings.ToLower(name) {
	case "gzip":
		return kafkago.Gzip
	case "lz4":
		return kafkago.Lz4
	case "zstd":
		return kafkago.Zstd
	default:
		return kafkago.Snappy
	}
}

// KafkaPublisher writes the same progress and completion records as
// Publisher to a Kafka topic. The detail type travels in the "type" header.
type KafkaPublisher struct {
	Writer MessageWriter
	JobID  string
}

func (p *KafkaPublisher) Observe(ctx context.Context, e ingest.Event) {
	if e.Attempt > 0 {
		return
	}
	detail := runProgress(p.JobID, e)
	if err := p.write(ctx, DetailTypeRunProgress, detail); err != nil {
		log.Warn().Err(err).Str("jobId", p.JobID).Str("stage", detail.Stage).Msg("Failed to publish run progress to Kafka")
	}
}

// PublishComplete sends the job summary record.
func (p *KafkaPublisher) PublishComplete(ctx context.Context, summary JobComplete) error {
	summary.JobID = p.JobID
	if summary.Timestamp == "" {
		summary.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	return p.write(ctx, DetailTypeJobComplete, summary)
}

func (p *KafkaPublisher) write(ctx context.Context, detailType string, v any) error {
	value, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", detailType, err)
	}
	msg := kafkago.Message{
		Key:   []byte(p.JobID),
		Value: value,
		Time:  time.Now().UTC(),
		Headers: []kafkago.Header{
			{Key: "type", Value: []byte(detailType)},
			{Key: "source", Value: []byte(EventSource)},
		},
	}
	if err := p.Writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write %s: %w", detailType, err)
	}
	log.Debug().Str("jobId", p.JobID).Str("type", detailType).Msg("Event published to Kafka")
	return nil
}
