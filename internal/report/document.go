// Package report renders review results as a PDF and packages them, with a
// machine-readable copy, into a zstd-compressed ZIP bundle.
package report

import (
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/creative-review/internal/creative"
	"github.com/fpang/creative-review/internal/review"
	"github.com/fpang/creative-review/internal/store"
)

// Document is the renderer-neutral form of a review.
type Document struct {
	ID        string            `json:"id,omitempty"`
	Title     string            `json:"title"`
	Campaign  creative.Campaign `json:"campaign"`
	Combined  bool              `json:"combined"`
	Generated time.Time         `json:"generated"`
	Sections  []Section         `json:"sections"`
}

// Section is one run of the review.
type Section struct {
	Assets   []string         `json:"assets"`
	OK       bool             `json:"ok"`
	Error    string           `json:"error,omitempty"`
	Text     string           `json:"text,omitempty"`
	Critique *review.Critique `json:"critique,omitempty"`
	Details  []string         `json:"details,omitempty"`

	// Images are the raw bytes of the image assets, used for thumbnails.
	Images []Image `json:"-"`
}

// Image is an encoded still image.
type Image struct {
	Name     string
	MIMEType string
	Data     []byte
}

const defaultTitle = "Ad Creative Review"

// FromReview builds a Document from a finished review. Image assets are read
// for thumbnails, so the assets must still be readable.
func FromReview(id string, rv *review.Review) Document {
	byName := make(map[string]creative.Asset, len(rv.Assets))
	for _, a := range rv.Assets {
		byName[a.Filename] = a
	}

	doc := Document{
		ID:        id,
		Title:     defaultTitle,
		Campaign:  rv.Campaign,
		Combined:  rv.Combined,
		Generated: time.Now(),
	}
	for _, it := range rv.Items {
		sec := Section{
			Assets:   it.Assets,
			OK:       it.OK(),
			Text:     it.Text,
			Critique: it.Critique,
		}
		if it.Err != nil {
			sec.Error = it.Err.UserMessage()
		}
		for i, d := range it.Details {
			if d == nil || i >= len(it.Assets) {
				continue
			}
			sec.Details = append(sec.Details, detailLines(d.FormatContext(it.Assets[i]))...)
		}
		for _, name := range it.Assets {
			a, ok := byName[name]
			if !ok || a.Kind() != creative.KindImage {
				continue
			}
			data, err := a.ReadAll()
			if err != nil {
				log.Warn().Err(err).Str("asset", name).Msg("Failed to read asset for thumbnail")
				continue
			}
			sec.Images = append(sec.Images, Image{Name: name, MIMEType: a.MIMEType, Data: data})
		}
		doc.Sections = append(doc.Sections, sec)
	}
	return doc
}

// FromJob builds a Document from a persisted job. Persisted jobs carry no
// asset bytes, so the document has no thumbnails.
func FromJob(job *store.Job) Document {
	doc := Document{
		ID:        job.ID,
		Title:     defaultTitle,
		Campaign:  job.Campaign,
		Combined:  job.Combined,
		Generated: time.Unix(job.UpdatedAt, 0),
	}
	for _, r := range job.Runs {
		doc.Sections = append(doc.Sections, Section{
			Assets: r.Assets,
			OK:     r.Done && !r.Failed(),
			Error:  r.Error,
			Text:   r.Text,
		})
	}
	return doc
}

// detailLines keeps the "- key: value" lines of a formatted details block.
func detailLines(block string) []string {
	var out []string
	for _, line := range strings.Split(block, "\n") {
		if rest, ok := strings.CutPrefix(line, "- "); ok {
			out = append(out, rest)
		}
	}
	return out
}
