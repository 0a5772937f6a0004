package creative

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg" // register JPEG decoder for image.DecodeConfig
	_ "image/png"  // register PNG decoder for image.DecodeConfig
	"io"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/evanoberholster/imagemeta"
	"github.com/rs/zerolog/log"
)

// Details are the measurable properties of an asset that best-practice
// guidelines care about (format, aspect ratio, duration). They are added to
// the review prompt so the model does not have to guess them.
type Details struct {
	Kind        MediaKind
	SizeBytes   int64
	Width       int
	Height      int
	AspectRatio string

	Duration time.Duration
	HasAudio bool

	CameraMake  string
	CameraModel string
	Captured    time.Time
}

// commonRatios are the aspect ratios ad placements ask for.
var commonRatios = []struct {
	label string
	value float64
}{
	{"1:1", 1},
	{"4:5", 0.8},
	{"2:3", 2.0 / 3.0},
	{"9:16", 9.0 / 16.0},
	{"16:9", 16.0 / 9.0},
	{"1.91:1", 1.91},
	{"3:2", 1.5},
	{"4:3", 4.0 / 3.0},
}

// Inspect extracts Details from an asset. Images are decoded in memory;
// videos are probed with ffprobe when it is installed, through a temporary
// copy when the asset is not on disk. ctx bounds the probe. Missing
// metadata is not an error.
func Inspect(ctx context.Context, a Asset) (*Details, error) {
	d := &Details{Kind: a.Kind(), SizeBytes: a.Size}

	switch d.Kind {
	case KindImage:
		data, err := a.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", a.Filename, err)
		}
		inspectImage(data, d)
	case KindVideo:
		if !IsFFprobeAvailable() {
			log.Debug().Str("file", a.Filename).Msg("ffprobe not installed, skipping video details")
			break
		}
		err := withLocalPath(a, func(path string) error {
			return probeVideo(ctx, path, d)
		})
		if err != nil {
			log.Warn().Err(err).Str("file", a.Filename).Msg("Failed to probe video, continuing without details")
		}
	}

	if d.Width > 0 && d.Height > 0 {
		d.AspectRatio = nearestRatio(d.Width, d.Height)
	}
	return d, nil
}

func inspectImage(data []byte, d *Details) {
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		d.Width = cfg.Width
		d.Height = cfg.Height
	} else {
		log.Debug().Err(err).Msg("Failed to decode image dimensions")
	}

	exifData, err := imagemeta.Decode(bytes.NewReader(data))
	if err != nil {
		// PNG exports from design tools rarely carry EXIF.
		log.Debug().Err(err).Msg("No EXIF metadata in image")
		return
	}
	d.CameraMake = strings.TrimSpace(exifData.Make)
	d.CameraModel = strings.TrimSpace(exifData.Model)
	if t := exifData.DateTimeOriginal(); !t.IsZero() {
		d.Captured = t
	} else if t := exifData.CreateDate(); !t.IsZero() {
		d.Captured = t
	}
}

// nearestRatio labels width:height with the closest common ad ratio, or the
// raw ratio when nothing is within 3%.
func nearestRatio(w, h int) string {
	r := float64(w) / float64(h)
	best := ""
	bestDiff := math.MaxFloat64
	for _, c := range commonRatios {
		diff := math.Abs(r-c.value) / c.value
		if diff < bestDiff {
			best, bestDiff = c.label, diff
		}
	}
	if bestDiff <= 0.03 {
		return best
	}
	return fmt.Sprintf("%.2f:1", r)
}

// FormatContext renders the details as a block for inclusion in prompts.
func (d *Details) FormatContext(filename string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("### %s\n", filename))
	sb.WriteString(fmt.Sprintf("- Type: %s\n", d.Kind))
	if d.SizeBytes > 0 {
		sb.WriteString(fmt.Sprintf("- File size: %.2f MB\n", float64(d.SizeBytes)/(1024*1024)))
	}
	if d.Width > 0 && d.Height > 0 {
		sb.WriteString(fmt.Sprintf("- Dimensions: %dx%d (aspect ratio %s)\n", d.Width, d.Height, d.AspectRatio))
	}
	if d.Duration > 0 {
		sb.WriteString(fmt.Sprintf("- Duration: %.1f seconds\n", d.Duration.Seconds()))
		if d.HasAudio {
			sb.WriteString("- Audio track: yes\n")
		} else {
			sb.WriteString("- Audio track: no\n")
		}
	}
	if d.CameraMake != "" || d.CameraModel != "" {
		sb.WriteString(fmt.Sprintf("- Camera: %s %s\n", d.CameraMake, d.CameraModel))
	}
	if !d.Captured.IsZero() {
		sb.WriteString(fmt.Sprintf("- Captured: %s\n", d.Captured.Format("January 2, 2006")))
	}
	return sb.String()
}

// IsFFprobeAvailable returns true if ffprobe is available in the system PATH.
func IsFFprobeAvailable() bool {
	_, err := exec.LookPath("ffprobe")
	return err == nil
}

type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
}

// withLocalPath calls fn with a path holding the asset's bytes. Assets
// without a Path are copied to a temporary file that is removed afterwards.
func withLocalPath(a Asset, fn func(path string) error) error {
	if a.Path != "" {
		return fn(a.Path)
	}

	tmp, err := os.CreateTemp("", "inspect-*"+filepath.Ext(a.Filename))
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	rc, err := a.Open()
	if err != nil {
		tmp.Close()
		return err
	}
	_, err = io.Copy(tmp, rc)
	rc.Close()
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("copy %s: %w", a.Filename, err)
	}
	return fn(tmp.Name())
}

func probeVideo(ctx context.Context, path string, d *Details) error {
	out, err := exec.CommandContext(ctx, "ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	).Output()
	if err != nil {
		return fmt.Errorf("ffprobe failed: %w", err)
	}
	return parseProbe(out, d)
}

func parseProbe(out []byte, d *Details) error {
	var probe ffprobeOutput
	if err := json.Unmarshal(out, &probe); err != nil {
		return fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	if probe.Format.Duration != "" {
		if secs, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
			d.Duration = time.Duration(secs * float64(time.Second))
		}
	}
	for _, s := range probe.Streams {
		switch s.CodecType {
		case "video":
			if d.Width == 0 {
				d.Width, d.Height = s.Width, s.Height
			}
		case "audio":
			d.HasAudio = true
		}
	}
	return nil
}
