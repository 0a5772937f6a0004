package jobutil

import (
	"context"
	"errors"
	"testing"

	"github.com/fpang/creative-review/internal/store"
)

func TestFail(t *testing.T) {
	st := store.NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := Fail(ctx, "rv-1", "failed to start worker", st.UpdateStatus); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	job, err := st.GetJob(context.Background(), "rv-1")
	if err != nil || job == nil {
		t.Fatalf("GetJob = %v, %v", job, err)
	}
	if job.Status != store.StatusError || job.Error != "failed to start worker" {
		t.Errorf("job = %s %q", job.Status, job.Error)
	}
}

func TestFail_WriterError(t *testing.T) {
	want := errors.New("table unavailable")
	got := Fail(context.Background(), "rv-1", "boom", func(context.Context, string, string, string) error {
		return want
	})
	if !errors.Is(got, want) {
		t.Errorf("Fail = %v, want %v", got, want)
	}
}
