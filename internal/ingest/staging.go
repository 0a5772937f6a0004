package ingest

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fpang/creative-review/internal/creative"
)

// Stager writes assets to a local directory so the upload client can read
// them from a stable path.
type Stager struct {
	// Dir is the staging directory. Empty means os.TempDir().
	Dir string
}

// StagedFile is a staged copy of one asset. It is owned by the run that
// created it.
type StagedFile struct {
	Path  string
	Asset string

	mu      sync.Mutex
	removed bool
}

// Stage copies the asset's bytes to a newly created file. An existing path is
// never reused or overwritten. On failure nothing is left on disk.
func (s *Stager) Stage(ctx context.Context, a creative.Asset) (*StagedFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, &Error{Kind: contextKind(ctx), Asset: a.Filename, Err: err}
	}

	dir := s.Dir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &Error{Kind: KindIO, Asset: a.Filename, Err: fmt.Errorf("failed to create staging directory: %w", err)}
	}

	ext := creative.ExtensionFor(a.MIMEType)
	if ext == "" {
		ext = filepath.Ext(a.Filename)
	}
	path := filepath.Join(dir, uuid.NewString()+ext)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, &Error{Kind: KindIO, Asset: a.Filename, Err: fmt.Errorf("failed to create staged file: %w", err)}
	}

	src, err := a.Open()
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, &Error{Kind: KindIO, Asset: a.Filename, Err: fmt.Errorf("failed to open asset: %w", err)}
	}
	defer src.Close()

	n, err := io.Copy(f, src)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return nil, &Error{Kind: KindIO, Asset: a.Filename, Err: fmt.Errorf("failed to write staged file: %w", err)}
	}

	log.Debug().
		Str("asset", a.Filename).
		Str("path", path).
		Int64("bytes", n).
		Msg("Asset staged")

	return &StagedFile{Path: path, Asset: a.Filename}, nil
}

// Remove deletes the staged file. Calling it more than once, or after the
// file is already gone, returns nil.
func (f *StagedFile) Remove() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.removed {
		return nil
	}
	f.removed = true
	if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove staged file %s: %w", f.Path, err)
	}
	return nil
}

// Removed reports whether Remove has been called.
func (f *StagedFile) Removed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.removed
}
