package report

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"slices"
	"testing"
	"time"

	"github.com/fpang/creative-review/internal/creative"
	"github.com/fpang/creative-review/internal/ingest"
	"github.com/fpang/creative-review/internal/review"
	"github.com/fpang/creative-review/internal/store"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := range w {
		for y := range h {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func sampleReview(t *testing.T) *review.Review {
	t.Helper()
	a := creative.FromBytes("banner.png", "image/png", pngBytes(t, 120, 60))
	b := creative.FromBytes("story.png", "image/png", pngBytes(t, 40, 80))
	return &review.Review{
		Campaign: creative.Campaign{Channel: "Instagram", Objective: "Awareness"},
		Assets:   []creative.Asset{a, b},
		Items: []review.Item{
			{
				Result: ingest.Result{Index: 0, Assets: []string{"banner.png"}, Text: "## Verdict\n**Strong** hook. Score: 8/10"},
				Details: []*creative.Details{{Kind: creative.KindImage, Width: 120, Height: 60, AspectRatio: "2.00:1"}},
			},
			{
				Result: ingest.Result{Index: 1, Assets: []string{"story.png"}, Err: &ingest.Error{Kind: ingest.KindTimeout, Asset: "story.png"}},
			},
		},
	}
}

func TestFromReview(t *testing.T) {
	doc := FromReview("review-1", sampleReview(t))
	if doc.ID != "review-1" || doc.Campaign.Channel != "Instagram" {
		t.Errorf("doc = %+v", doc)
	}
	if len(doc.Sections) != 2 {
		t.Fatalf("sections = %d, want 2", len(doc.Sections))
	}
	ok, failed := doc.Sections[0], doc.Sections[1]
	if !ok.OK || len(ok.Images) != 1 || ok.Images[0].Name != "banner.png" {
		t.Errorf("ok section = %+v", ok)
	}
	if !slices.Contains(ok.Details, "Dimensions: 120x60 (aspect ratio 2.00:1)") {
		t.Errorf("details = %v", ok.Details)
	}
	if failed.OK || failed.Error == "" {
		t.Errorf("failed section = %+v", failed)
	}
}

func TestFromJob(t *testing.T) {
	job := &store.Job{
		ID:        "review-2",
		Status:    store.StatusComplete,
		UpdatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).Unix(),
		Runs: []store.Run{
			{Index: 0, Assets: []string{"a.png"}, Stage: "CLEANED_UP", Text: "good", Done: true},
			{Index: 1, Assets: []string{"b.png"}, Stage: "CLEANED_UP", ErrorKind: "upload", Error: "upload failed", Done: true},
		},
	}
	doc := FromJob(job)
	if len(doc.Sections) != 2 || !doc.Sections[0].OK || doc.Sections[1].OK {
		t.Errorf("sections = %+v", doc.Sections)
	}
	if doc.Generated.Year() != 2026 {
		t.Errorf("generated = %v", doc.Generated)
	}
}

func TestRenderPDF(t *testing.T) {
	doc := FromReview("review-1", sampleReview(t))
	doc.Sections = append(doc.Sections, Section{
		Assets: []string{"structured.png"},
		OK:     true,
		Critique: &review.Critique{
			Score:     6,
			Summary:   "Busy layout – too much copy.",
			Strengths: []string{"Brand visible"},
			Issues:    []review.Issue{{Area: "Text", Severity: "high", Detail: "Over 20% text", Recommendation: "Trim copy"}},
		},
	})
	data, err := RenderPDF(doc)
	if err != nil {
		t.Fatalf("RenderPDF() error = %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Errorf("output is not a PDF: %q", data[:min(len(data), 16)])
	}
}

func TestRenderPDF_BadImageIsSkipped(t *testing.T) {
	doc := Document{
		Title: "t",
		Sections: []Section{{
			Assets: []string{"x.png"},
			OK:     true,
			Text:   "ok",
			Images: []Image{{Name: "x.png", MIMEType: "image/png", Data: []byte("garbage")}},
		}},
	}
	if _, err := RenderPDF(doc); err != nil {
		t.Fatalf("RenderPDF() error = %v", err)
	}
}

func TestThumbnail(t *testing.T) {
	tests := []struct {
		name         string
		w, h         int
		wantW, wantH int
	}{
		{"landscape", 1000, 500, 480, 240},
		{"portrait", 300, 600, 240, 480},
		{"small", 100, 50, 100, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w, h := thumbnailDimensions(tt.w, tt.h, 480); w != tt.wantW || h != tt.wantH {
				t.Errorf("thumbnailDimensions() = %dx%d, want %dx%d", w, h, tt.wantW, tt.wantH)
			}
		})
	}

	data, w, h, err := Thumbnail(pngBytes(t, 200, 100), 50)
	if err != nil {
		t.Fatalf("Thumbnail() error = %v", err)
	}
	if w != 50 || h != 25 {
		t.Errorf("size = %dx%d, want 50x25", w, h)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil || format != "jpeg" || cfg.Width != 50 {
		t.Errorf("decoded = %+v %s %v", cfg, format, err)
	}

	if _, _, _, err := Thumbnail([]byte("nope"), 50); err == nil {
		t.Error("expected decode error")
	}
}

func TestPlainText(t *testing.T) {
	got := plainText("## Verdict\n**Strong** hook\n  - keep `CTA`\n#\n")
	want := "Verdict\nStrong hook\n  - keep CTA"
	if got != want {
		t.Errorf("plainText() = %q, want %q", got, want)
	}
}

func TestWriteBundle(t *testing.T) {
	doc := FromReview("review-1", sampleReview(t))
	var buf bytes.Buffer
	if err := WriteBundle(&buf, doc); err != nil {
		t.Fatalf("WriteBundle() error = %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("open ZIP: %v", err)
	}
	files := map[string]*zip.File{}
	for _, f := range zr.File {
		files[f.Name] = f
	}
	if files[BundlePDF] == nil || files[BundleResults] == nil {
		t.Fatalf("entries = %v", files)
	}
	if files[BundleResults].Method != zipMethodZstd {
		t.Errorf("results method = %d, want zstd", files[BundleResults].Method)
	}

	rc, err := files[BundleResults].Open()
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	var got Document
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("results.json: %v", err)
	}
	if got.ID != "review-1" || len(got.Sections) != 2 || len(got.Sections[0].Images) != 0 {
		t.Errorf("results = %+v", got)
	}
}
