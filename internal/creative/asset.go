package creative

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Asset is a user-supplied creative: a byte source with a declared media type
// and the original filename. Assets are immutable; Open may be called any
// number of times and each call yields an independent reader.
type Asset struct {
	Filename string
	MIMEType string
	Size     int64

	// Path is set when the bytes already live on the local filesystem.
	Path string

	open func() (io.ReadCloser, error)
}

// NewAsset builds an Asset around an arbitrary byte source.
func NewAsset(filename, mimeType string, size int64, open func() (io.ReadCloser, error)) Asset {
	return Asset{
		Filename: filename,
		MIMEType: mimeType,
		Size:     size,
		open:     open,
	}
}

// FromBytes builds an Asset backed by an in-memory buffer.
func FromBytes(filename, mimeType string, data []byte) Asset {
	return NewAsset(filename, mimeType, int64(len(data)), func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	})
}

// FromFile builds an Asset for a local file, inferring the MIME type from
// the extension.
func FromFile(path string) (Asset, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Asset{}, fmt.Errorf("file not found: %s", path)
		}
		return Asset{}, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		return Asset{}, fmt.Errorf("path is a directory, not a file: %s", path)
	}

	mimeType, err := MIMETypeForPath(path)
	if err != nil {
		return Asset{}, err
	}

	a := NewAsset(filepath.Base(path), mimeType, info.Size(), func() (io.ReadCloser, error) {
		return os.Open(path)
	})
	a.Path = path
	return a, nil
}

// Open returns a fresh reader over the asset's bytes.
func (a Asset) Open() (io.ReadCloser, error) {
	if a.open == nil {
		return nil, fmt.Errorf("asset %q has no byte source", a.Filename)
	}
	return a.open()
}

// Kind returns the media kind of the asset.
func (a Asset) Kind() MediaKind {
	return KindOf(a.MIMEType)
}

// ReadAll loads the whole asset into memory.
func (a Asset) ReadAll() ([]byte, error) {
	rc, err := a.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
