package gemini

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/fpang/creative-review/internal/ingest"
)

// Files implements ingest.FileService on the Gemini Files API.
type Files struct {
	client *genai.Client
}

// NewFiles returns a FileService backed by client.
func NewFiles(client *genai.Client) *Files {
	return &Files{client: client}
}

// Upload sends a staged file to the Files API.
func (f *Files) Upload(ctx context.Context, path, mimeType, displayName string) (*ingest.RemoteHandle, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open staged file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat staged file: %w", err)
	}

	log.Debug().
		Str("path", path).
		Int64("size_bytes", info.Size()).
		Str("mime_type", mimeType).
		Msg("Starting Gemini Files API upload")

	start := time.Now()
	uploaded, err := f.client.Files.Upload(ctx, file, &genai.UploadFileConfig{
		MIMEType:    mimeType,
		DisplayName: displayName,
	})
	if err != nil {
		return nil, fmt.Errorf("upload file: %w", err)
	}

	log.Debug().
		Str("name", uploaded.Name).
		Str("uri", uploaded.URI).
		Str("state", string(uploaded.State)).
		Dur("upload_duration", time.Since(start)).
		Msg("File uploaded to Gemini")

	return toHandle(uploaded, mimeType, displayName), nil
}

// State returns the current processing state of a file.
func (f *Files) State(ctx context.Context, id string) (ingest.State, error) {
	file, err := f.client.Files.Get(ctx, id, nil)
	if err != nil {
		return "", fmt.Errorf("get file state: %w", err)
	}
	return mapState(file.State), nil
}

// Delete removes a file. A file that no longer exists is not an error.
func (f *Files) Delete(ctx context.Context, id string) error {
	if _, err := f.client.Files.Delete(ctx, id, nil); err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("delete file %s: %w", id, err)
	}
	return nil
}

func toHandle(file *genai.File, mimeType, displayName string) *ingest.RemoteHandle {
	h := &ingest.RemoteHandle{
		ID:          file.Name,
		URI:         file.URI,
		DisplayName: file.DisplayName,
		MIMEType:    file.MIMEType,
		State:       mapState(file.State),
	}
	if h.DisplayName == "" {
		h.DisplayName = displayName
	}
	if h.MIMEType == "" {
		h.MIMEType = mimeType
	}
	return h
}

// mapState converts a Files API state. An unspecified state is reported
// while a fresh upload is still being registered, so it counts as
// processing. Anything unrecognized is passed through and treated by the
// poller as a terminal failure.
func mapState(s genai.FileState) ingest.State {
	switch string(s) {
	case "", "STATE_UNSPECIFIED", "PROCESSING":
		return ingest.StateProcessing
	case "ACTIVE":
		return ingest.StateActive
	case "FAILED":
		return ingest.StateFailed
	}
	return ingest.State(s)
}
