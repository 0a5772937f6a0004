package metrics

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestNewEmitter_FunctionDimension(t *testing.T) {
	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "review-worker")

	var buf bytes.Buffer
	NewEmitter("TestNamespace", &buf).New().Count("Runs").Flush()

	var doc map[string]any
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("failed to parse EMF output: %v\nOutput: %s", err, buf.String())
	}
	if doc["FunctionName"] != "review-worker" {
		t.Errorf("expected FunctionName dimension review-worker, got %v", doc["FunctionName"])
	}
}

func TestRecorder_FlushOutput(t *testing.T) {
	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "")

	var buf bytes.Buffer
	NewEmitter(Namespace, &buf).New().
		Dimension("Outcome", "analyzed").
		Duration("UploadMs", 1500*time.Millisecond).
		Metric("PollAttempts", 3, UnitCount).
		Property("asset", "banner.png").
		Flush()

	output := buf.String()
	if strings.Count(output, "\n") != 1 || !strings.HasSuffix(output, "\n") {
		t.Fatalf("expected exactly one JSON line, got %q", output)
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(output), &doc); err != nil {
		t.Fatalf("failed to parse EMF output: %v\nOutput: %s", err, output)
	}

	awsMap, ok := doc["_aws"].(map[string]any)
	if !ok {
		t.Fatal("missing _aws directive")
	}
	if _, ok := awsMap["Timestamp"]; !ok {
		t.Error("missing Timestamp in _aws directive")
	}
	cwArr, ok := awsMap["CloudWatchMetrics"].([]any)
	if !ok || len(cwArr) == 0 {
		t.Fatal("CloudWatchMetrics should be a non-empty array")
	}
	cw := cwArr[0].(map[string]any)
	if cw["Namespace"] != Namespace {
		t.Errorf("expected namespace %s, got %v", Namespace, cw["Namespace"])
	}

	if doc["Outcome"] != "analyzed" {
		t.Errorf("expected Outcome dimension, got %v", doc["Outcome"])
	}
	if doc["UploadMs"] != float64(1500) {
		t.Errorf("expected UploadMs 1500, got %v", doc["UploadMs"])
	}
	if doc["PollAttempts"] != float64(3) {
		t.Errorf("expected PollAttempts 3, got %v", doc["PollAttempts"])
	}
	if doc["asset"] != "banner.png" {
		t.Errorf("expected asset property, got %v", doc["asset"])
	}
}

func TestRecorder_NoMetricsNoOutput(t *testing.T) {
	var buf bytes.Buffer
	NewEmitter(Namespace, &buf).New().Dimension("Outcome", "x").Flush()
	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}
}

func TestNilEmitter(t *testing.T) {
	var e *Emitter
	// Must not panic.
	e.New().Count("Runs").Flush()
}
