package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/fpang/creative-review/internal/creative"
)

// fakeFiles is an in-memory FileService. Each uploaded file replays the
// configured state sequence on successive State calls; the last state repeats.
type fakeFiles struct {
	mu sync.Mutex

	initial   State
	sequence  []State
	queryErrs int // number of State calls that fail before the sequence starts

	uploadErr    error
	uploadErrFor string // only fail uploads of this display name when set
	deleteErr    error

	uploads    []string
	queries    map[string]int
	deletes    []string
	deleteCtxs []error
	stagedSeen []bool
	next       int
}

func newFakeFiles(initial State, sequence ...State) *fakeFiles {
	return &fakeFiles{initial: initial, sequence: sequence, queries: map[string]int{}}
}

func (f *fakeFiles) Upload(ctx context.Context, path, mimeType, displayName string) (*RemoteHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, statErr := os.Stat(path)
	f.stagedSeen = append(f.stagedSeen, statErr == nil)
	if f.uploadErr != nil && (f.uploadErrFor == "" || f.uploadErrFor == displayName) {
		return nil, f.uploadErr
	}
	f.next++
	id := fmt.Sprintf("files/%d", f.next)
	f.uploads = append(f.uploads, id)
	return &RemoteHandle{
		ID:          id,
		URI:         "https://example.test/" + id,
		DisplayName: displayName,
		MIMEType:    mimeType,
		State:       f.initial,
	}, nil
}

func (f *fakeFiles) State(ctx context.Context, id string) (State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.queries[id]
	f.queries[id] = n + 1
	if n < f.queryErrs {
		return "", errors.New("transient query failure")
	}
	n -= f.queryErrs
	if len(f.sequence) == 0 {
		return StateProcessing, nil
	}
	if n >= len(f.sequence) {
		n = len(f.sequence) - 1
	}
	return f.sequence[n], nil
}

func (f *fakeFiles) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, id)
	f.deleteCtxs = append(f.deleteCtxs, ctx.Err())
	return f.deleteErr
}

func (f *fakeFiles) totalQueries() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.queries {
		total += n
	}
	return total
}

type fakeGenerator struct {
	mu    sync.Mutex
	calls int
	reqs  []AnalysisRequest
	text  string
	err   error
}

func (g *fakeGenerator) Generate(ctx context.Context, req AnalysisRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.reqs = append(g.reqs, req)
	if g.err != nil {
		return "", g.err
	}
	return g.text, nil
}

// eventLog records observed events.
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) Observe(_ context.Context, e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) stages() []Stage {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Stage
	for _, e := range l.events {
		if e.Stage == StagePolling && e.Attempt > 0 {
			continue
		}
		out = append(out, e.Stage)
	}
	return out
}

func fastPoller() Poller {
	return Poller{Interval: time.Millisecond, MaxAttempts: 10, Timeout: 5 * time.Second}
}

func testAsset(name string) creative.Asset {
	return creative.FromBytes(name, "image/png", []byte("creative bytes for "+name))
}

func newTestPipeline(t *testing.T, files *fakeFiles, gen *fakeGenerator) (*Pipeline, string) {
	t.Helper()
	dir := t.TempDir()
	return &Pipeline{
		Stager:    &Stager{Dir: dir},
		Files:     files,
		Generator: gen,
		Poller:    fastPoller(),
		Options:   GenerationOptions{Model: "test-model"},
	}, dir
}

func assertDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read staging dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected staging dir to be empty, found %d entries", len(entries))
	}
}
