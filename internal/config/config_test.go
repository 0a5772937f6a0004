package config

import (
	"testing"
	"time"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Poll.Interval != 10*time.Second {
		t.Errorf("expected 10s poll interval, got %s", cfg.Poll.Interval)
	}
	if cfg.Batch.MaxAssets != 5 {
		t.Errorf("expected max assets 5, got %d", cfg.Batch.MaxAssets)
	}
	if cfg.Batch.Workers != 3 {
		t.Errorf("expected 3 workers, got %d", cfg.Batch.Workers)
	}
	if cfg.Gemini.ResponseMIMEType != "text/plain" {
		t.Errorf("expected text/plain, got %s", cfg.Gemini.ResponseMIMEType)
	}
	if cfg.Gemini.SafetyHarassment != "BLOCK_MEDIUM_AND_ABOVE" {
		t.Errorf("unexpected harassment threshold: %s", cfg.Gemini.SafetyHarassment)
	}
}

func TestParse_Overrides(t *testing.T) {
	t.Setenv("POLL_INTERVAL", "250ms")
	t.Setenv("POLL_MAX_ATTEMPTS", "4")
	t.Setenv("BATCH_WORKERS", "1")
	t.Setenv("GEMINI_TEMPERATURE", "0.2")
	t.Setenv("GEMINI_MODEL", "gemini-2.5-flash")

	cfg, err := Parse()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Poll.Interval != 250*time.Millisecond {
		t.Errorf("expected 250ms, got %s", cfg.Poll.Interval)
	}
	if cfg.Poll.MaxAttempts != 4 {
		t.Errorf("expected 4 attempts, got %d", cfg.Poll.MaxAttempts)
	}
	if cfg.Batch.Workers != 1 {
		t.Errorf("expected 1 worker, got %d", cfg.Batch.Workers)
	}
	if cfg.Gemini.Temperature != 0.2 {
		t.Errorf("expected temperature 0.2, got %v", cfg.Gemini.Temperature)
	}
	if cfg.Gemini.Model != "gemini-2.5-flash" {
		t.Errorf("unexpected model %s", cfg.Gemini.Model)
	}
}

func TestParse_RejectsNonPositive(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"zero interval", "POLL_INTERVAL", "0s"},
		{"zero attempts", "POLL_MAX_ATTEMPTS", "0"},
		{"negative workers", "BATCH_WORKERS", "-1"},
		{"zero max assets", "BATCH_MAX_ASSETS", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Parse(); err == nil {
				t.Errorf("expected error for %s=%s", tt.key, tt.value)
			}
		})
	}
}
