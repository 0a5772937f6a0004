package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fpang/creative-review/internal/creative"
)

func TestStager_Stage(t *testing.T) {
	dir := t.TempDir()
	s := &Stager{Dir: dir}
	a := creative.FromBytes("hero.jpg", "image/jpg", []byte("jpeg bytes"))

	sf, err := s.Stage(context.Background(), a)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if filepath.Dir(sf.Path) != dir {
		t.Errorf("staged outside dir: %s", sf.Path)
	}
	if !strings.HasSuffix(sf.Path, ".jpg") {
		t.Errorf("expected .jpg extension, got %s", sf.Path)
	}
	data, err := os.ReadFile(sf.Path)
	if err != nil {
		t.Fatalf("read staged file: %v", err)
	}
	if string(data) != "jpeg bytes" {
		t.Errorf("unexpected staged content %q", data)
	}
}

func TestStager_UniquePaths(t *testing.T) {
	s := &Stager{Dir: t.TempDir()}
	a := testAsset("same.png")

	first, err := s.Stage(context.Background(), a)
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.Stage(context.Background(), a)
	if err != nil {
		t.Fatal(err)
	}
	if first.Path == second.Path {
		t.Fatalf("staging the same asset twice reused %s", first.Path)
	}
}

func TestStagedFile_RemoveIsIdempotent(t *testing.T) {
	s := &Stager{Dir: t.TempDir()}
	sf, err := s.Stage(context.Background(), testAsset("a.png"))
	if err != nil {
		t.Fatal(err)
	}

	if err := sf.Remove(); err != nil {
		t.Fatalf("first remove: %v", err)
	}
	if _, err := os.Stat(sf.Path); !os.IsNotExist(err) {
		t.Errorf("expected file to be gone, stat err = %v", err)
	}
	if err := sf.Remove(); err != nil {
		t.Errorf("second remove should be a no-op, got %v", err)
	}
	if !sf.Removed() {
		t.Error("expected Removed() to be true")
	}
}

func TestStagedFile_RemoveMissingFile(t *testing.T) {
	sf := &StagedFile{Path: filepath.Join(t.TempDir(), "never-created.png")}
	if err := sf.Remove(); err != nil {
		t.Errorf("removing a missing file should not error, got %v", err)
	}
}

func TestStager_DefaultDir(t *testing.T) {
	t.Setenv("TMPDIR", t.TempDir())
	sf, err := (&Stager{}).Stage(context.Background(), testAsset("a.png"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer sf.Remove()
	if filepath.Dir(sf.Path) != filepath.Clean(os.TempDir()) {
		t.Errorf("expected staging in %s, got %s", os.TempDir(), sf.Path)
	}
}
