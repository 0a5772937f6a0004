package report

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zstd"
)

// zipMethodZstd is the ZIP method ID for Zstandard (APPNOTE 6.3.7).
const zipMethodZstd uint16 = 93

// Bundle entry names.
const (
	BundlePDF     = "report.pdf"
	BundleResults = "results.json"
)

func init() {
	zip.RegisterCompressor(zipMethodZstd, func(w io.Writer) (io.WriteCloser, error) {
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	})
	zip.RegisterDecompressor(zipMethodZstd, func(r io.Reader) io.ReadCloser {
		dec, err := zstd.NewReader(r)
		if err != nil {
			return io.NopCloser(errReader{err})
		}
		return dec.IOReadCloser()
	})
}

type errReader struct{ err error }

func (e errReader) Read([]byte) (int, error) { return 0, e.err }

// WriteBundle writes a ZIP holding the rendered PDF and the results as JSON.
// The PDF is stored uncompressed; PDF streams are already deflated.
func WriteBundle(w io.Writer, doc Document) error {
	pdfData, err := RenderPDF(doc)
	if err != nil {
		return err
	}
	results, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}

	zw := zip.NewWriter(w)
	entries := []struct {
		name   string
		method uint16
		data   []byte
	}{
		{BundlePDF, zip.Store, pdfData},
		{BundleResults, zipMethodZstd, results},
	}
	for _, e := range entries {
		header := &zip.FileHeader{Name: e.name, Method: e.method}
		header.SetModTime(doc.Generated)
		if doc.Generated.IsZero() {
			header.SetModTime(time.Now())
		}
		fw, err := zw.CreateHeader(header)
		if err != nil {
			return fmt.Errorf("create ZIP entry %s: %w", e.name, err)
		}
		if _, err := fw.Write(e.data); err != nil {
			return fmt.Errorf("write ZIP entry %s: %w", e.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close ZIP writer: %w", err)
	}
	return nil
}
