package progress

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/fpang/creative-review/internal/config"
	"github.com/fpang/creative-review/internal/ingest"
)

type fakeKafka struct {
	msgs []kafkago.Message
	err  error
}

func (f *fakeKafka) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func header(m kafkago.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestKafkaPublisher_Observe(t *testing.T) {
	fake := &fakeKafka{}
	p := &KafkaPublisher{Writer: fake, JobID: "review-1"}
	ctx := context.Background()

	p.Observe(ctx, ingest.Event{Job: 1, Assets: []string{"b.mp4"}, Stage: ingest.StagePolling, Attempt: 2})
	p.Observe(ctx, ingest.Event{Job: 1, Assets: []string{"b.mp4"}, Stage: ingest.StageFailed, Kind: ingest.KindProcessingFailed, Message: "bad", At: time.Now()})

	if len(fake.msgs) != 1 {
		t.Fatalf("expected 1 message (poll attempts skipped), got %d", len(fake.msgs))
	}
	m := fake.msgs[0]
	if string(m.Key) != "review-1" || header(m, "type") != DetailTypeRunProgress || header(m, "source") != EventSource {
		t.Errorf("unexpected message key=%s headers=%v", m.Key, m.Headers)
	}
	var detail RunProgress
	if err := json.Unmarshal(m.Value, &detail); err != nil {
		t.Fatal(err)
	}
	if detail.Run != 1 || detail.Stage != "FAILED" || detail.ErrorKind != string(ingest.KindProcessingFailed) {
		t.Errorf("unexpected detail %+v", detail)
	}
}

func TestKafkaPublisher_PublishComplete(t *testing.T) {
	fake := &fakeKafka{}
	p := &KafkaPublisher{Writer: fake, JobID: "review-1"}
	if err := p.PublishComplete(context.Background(), JobComplete{Status: "complete", Runs: 3, Failed: 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var summary JobComplete
	if err := json.Unmarshal(fake.msgs[0].Value, &summary); err != nil {
		t.Fatal(err)
	}
	if summary.JobID != "review-1" || summary.Failed != 1 || summary.Timestamp == "" {
		t.Errorf("unexpected summary %+v", summary)
	}

	fake.err = errors.New("leader not available")
	if err := p.PublishComplete(context.Background(), JobComplete{}); err == nil {
		t.Error("expected write error")
	}
}

func TestNewKafkaWriter(t *testing.T) {
	if w := NewKafkaWriter(config.KafkaConfig{}); w != nil {
		t.Error("expected nil writer without brokers")
	}
	w := NewKafkaWriter(config.KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "progress", CompressionCodec: "zstd"})
	if w == nil || w.Topic != "progress" || w.Compression != kafkago.Zstd {
		t.Errorf("unexpected writer %+v", w)
	}
	if w.BatchSize != 1 {
		t.Errorf("BatchSize = %d, want 1 so each progress event is sent without waiting for a batch", w.BatchSize)
	}
}
