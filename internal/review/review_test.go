package review

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fpang/creative-review/internal/creative"
	"github.com/fpang/creative-review/internal/ingest"
)

type stubFiles struct {
	mu      sync.Mutex
	n       int
	deleted []string
}

func (f *stubFiles) Upload(ctx context.Context, path, mimeType, displayName string) (*ingest.RemoteHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	return &ingest.RemoteHandle{
		ID:          fmt.Sprintf("files/%d", f.n),
		DisplayName: displayName,
		MIMEType:    mimeType,
		State:       ingest.StateActive,
	}, nil
}

func (f *stubFiles) State(ctx context.Context, id string) (ingest.State, error) {
	return ingest.StateActive, nil
}

func (f *stubFiles) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

type stubGenerator struct {
	mu      sync.Mutex
	reply   func(req ingest.AnalysisRequest) (string, error)
	prompts []string
}

func (g *stubGenerator) Generate(ctx context.Context, req ingest.AnalysisRequest) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, req.Prompt)
	g.mu.Unlock()
	return g.reply(req)
}

func newTestService(t *testing.T, gen *stubGenerator, mimeType string) (*Service, *stubFiles) {
	t.Helper()
	files := &stubFiles{}
	return &Service{
		Pipeline: &ingest.Pipeline{
			Stager:    &ingest.Stager{Dir: t.TempDir()},
			Files:     files,
			Generator: gen,
			Poller:    ingest.Poller{Interval: time.Millisecond, MaxAttempts: 5, Timeout: time.Second},
			Options:   ingest.GenerationOptions{Model: "test-model", ResponseMIMEType: mimeType},
		},
	}, files
}

func pngAsset(name string) creative.Asset {
	return creative.FromBytes(name, "image/png", []byte("not really a png"))
}

func TestReview_PerAsset(t *testing.T) {
	gen := &stubGenerator{reply: func(req ingest.AnalysisRequest) (string, error) {
		return "Verdict: solid. Score: 8/10", nil
	}}
	svc, files := newTestService(t, gen, "text/plain")

	rv, err := svc.Review(context.Background(), Request{
		Assets:   []creative.Asset{pngAsset("a.png"), pngAsset("b.png")},
		Campaign: creative.Campaign{Channel: "instagram", Device: "mobile"},
	})
	if err != nil {
		t.Fatalf("Review() error = %v", err)
	}
	if len(rv.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(rv.Items))
	}
	if rv.Failed() != 0 {
		t.Errorf("Failed() = %d, want 0", rv.Failed())
	}
	if rv.Campaign.Channel != "Instagram" || rv.Campaign.Device != "Mobile" {
		t.Errorf("campaign not normalized: %+v", rv.Campaign)
	}
	for i, it := range rv.Items {
		if it.Index != i {
			t.Errorf("item %d has index %d", i, it.Index)
		}
		if it.Critique != nil {
			t.Errorf("item %d: critique parsed in prose mode", i)
		}
		if it.Final() != ingest.StageCleanedUp {
			t.Errorf("item %d final = %s", i, it.Final())
		}
		if len(it.Details) != 1 {
			t.Errorf("item %d details = %d, want 1", i, len(it.Details))
		}
	}
	if len(files.deleted) != 2 {
		t.Errorf("deleted = %v, want 2 remote deletes", files.deleted)
	}
	for _, p := range gen.prompts {
		if !strings.Contains(p, "Channel: Instagram") {
			t.Errorf("prompt missing campaign:\n%s", p)
		}
	}
}

func TestReview_Combined(t *testing.T) {
	gen := &stubGenerator{reply: func(req ingest.AnalysisRequest) (string, error) {
		if len(req.Handles) != 3 {
			return "", fmt.Errorf("got %d handles", len(req.Handles))
		}
		return "ranked", nil
	}}
	svc, _ := newTestService(t, gen, "")

	rv, err := svc.Review(context.Background(), Request{
		Assets:   []creative.Asset{pngAsset("a.png"), pngAsset("b.png"), pngAsset("c.png")},
		Combined: true,
	})
	if err != nil {
		t.Fatalf("Review() error = %v", err)
	}
	if len(rv.Items) != 1 {
		t.Fatalf("items = %d, want 1", len(rv.Items))
	}
	it := rv.Items[0]
	if !it.OK() {
		t.Fatalf("combined run failed: %v", it.Err)
	}
	if len(it.Assets) != 3 || len(it.Details) != 3 {
		t.Errorf("assets = %v, details = %d", it.Assets, len(it.Details))
	}
	if !strings.Contains(gen.prompts[0], "The 3 ad creatives") {
		t.Errorf("expected combined prompt:\n%s", gen.prompts[0])
	}
}

func TestReview_StructuredCritique(t *testing.T) {
	gen := &stubGenerator{reply: func(req ingest.AnalysisRequest) (string, error) {
		return "```json\n{\"score\": 6, \"summary\": \"busy layout\", \"issues\": [{\"area\": \"text\", \"severity\": \"high\"}]}\n```", nil
	}}
	svc, _ := newTestService(t, gen, "application/json")

	rv, err := svc.Review(context.Background(), Request{Assets: []creative.Asset{pngAsset("a.png")}})
	if err != nil {
		t.Fatalf("Review() error = %v", err)
	}
	c := rv.Items[0].Critique
	if c == nil {
		t.Fatal("expected parsed critique")
	}
	if c.Score != 6 || c.Summary != "busy layout" || len(c.Issues) != 1 || c.Issues[0].Severity != "high" {
		t.Errorf("critique = %+v", c)
	}
	if !strings.Contains(gen.prompts[0], `"score"`) {
		t.Errorf("structured prompt should ask for JSON:\n%s", gen.prompts[0])
	}
}

func TestReview_UnparseableCritiqueKeepsText(t *testing.T) {
	gen := &stubGenerator{reply: func(req ingest.AnalysisRequest) (string, error) {
		return "I cannot produce JSON today.", nil
	}}
	svc, _ := newTestService(t, gen, "application/json")

	rv, err := svc.Review(context.Background(), Request{Assets: []creative.Asset{pngAsset("a.png")}})
	if err != nil {
		t.Fatalf("Review() error = %v", err)
	}
	it := rv.Items[0]
	if it.Critique != nil || it.Text != "I cannot produce JSON today." {
		t.Errorf("item = %+v", it)
	}
}

func TestReview_Validation(t *testing.T) {
	tests := []struct {
		name string
		svc  func(*Service)
		req  Request
	}{
		{"no assets", nil, Request{}},
		{"too many assets", nil, Request{Assets: []creative.Asset{
			pngAsset("1.png"), pngAsset("2.png"), pngAsset("3.png"), pngAsset("4.png"), pngAsset("5.png"), pngAsset("6.png"),
		}}},
		{"unsupported type", nil, Request{Assets: []creative.Asset{creative.FromBytes("doc.pdf", "application/pdf", []byte("x"))}}},
		{"empty asset", nil, Request{Assets: []creative.Asset{creative.FromBytes("a.png", "image/png", nil)}}},
		{"unknown channel", nil, Request{
			Assets:   []creative.Asset{pngAsset("a.png")},
			Campaign: creative.Campaign{Channel: "Carrier Pigeon"},
		}},
		{"campaign required", func(s *Service) { s.RequireCampaign = true }, Request{
			Assets: []creative.Asset{pngAsset("a.png")},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &stubGenerator{reply: func(ingest.AnalysisRequest) (string, error) { return "x", nil }}
			svc, files := newTestService(t, gen, "")
			if tt.svc != nil {
				tt.svc(svc)
			}
			rv, err := svc.Review(context.Background(), tt.req)
			if rv != nil {
				t.Errorf("expected nil review, got %+v", rv)
			}
			if ingest.KindOf(err) != ingest.KindValidation {
				t.Fatalf("kind = %q, want validation (err=%v)", ingest.KindOf(err), err)
			}
			var ve *creative.ValidationError
			if !errors.As(err, &ve) {
				t.Errorf("expected *creative.ValidationError in chain, got %T", err)
			}
			if files.n != 0 || len(gen.prompts) != 0 {
				t.Errorf("nothing should be uploaded or analyzed: uploads=%d prompts=%d", files.n, len(gen.prompts))
			}
		})
	}
}

func TestReview_RequestObserver(t *testing.T) {
	gen := &stubGenerator{reply: func(ingest.AnalysisRequest) (string, error) { return "ok", nil }}
	svc, _ := newTestService(t, gen, "")

	var mu sync.Mutex
	var shared, own []ingest.Stage
	svc.Pipeline.Observer = ingest.ObserverFunc(func(ctx context.Context, e ingest.Event) {
		mu.Lock()
		shared = append(shared, e.Stage)
		mu.Unlock()
	})
	_, err := svc.Review(context.Background(), Request{
		Assets: []creative.Asset{pngAsset("a.png")},
		Observer: ingest.ObserverFunc(func(ctx context.Context, e ingest.Event) {
			mu.Lock()
			own = append(own, e.Stage)
			mu.Unlock()
		}),
	})
	if err != nil {
		t.Fatalf("Review() error = %v", err)
	}
	if len(own) == 0 || len(own) != len(shared) {
		t.Errorf("own = %v, shared = %v", own, shared)
	}
	if own[len(own)-1] != ingest.StageCleanedUp {
		t.Errorf("last event = %s, want CLEANED_UP", own[len(own)-1])
	}
	if _, ok := svc.Pipeline.Observer.(ingest.ObserverFunc); !ok {
		t.Error("shared pipeline observer was replaced")
	}
}

func TestReview_FailureIsPerItem(t *testing.T) {
	gen := &stubGenerator{reply: func(req ingest.AnalysisRequest) (string, error) {
		if strings.Contains(req.Handles[0].DisplayName, "bad") {
			return "", errors.New("model overloaded")
		}
		return "fine", nil
	}}
	svc, _ := newTestService(t, gen, "")

	rv, err := svc.Review(context.Background(), Request{Assets: []creative.Asset{pngAsset("good.png"), pngAsset("bad.png")}})
	if err != nil {
		t.Fatalf("Review() error = %v", err)
	}
	if rv.Failed() != 1 {
		t.Fatalf("Failed() = %d, want 1", rv.Failed())
	}
	if !rv.Items[0].OK() || rv.Items[1].Err.Kind != ingest.KindAnalysis {
		t.Errorf("items = %+v", rv.Items)
	}
}
