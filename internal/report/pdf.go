package report

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // register PNG decoder for thumbnails
	"io"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"
)

const (
	pageMargin     = 15.0
	thumbWidthMM   = 45.0
	thumbMaxPixels = 480
	lineHeight     = 5.0
)

// WritePDF renders doc as an A4 PDF.
func WritePDF(w io.Writer, doc Document) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, pageMargin)
	pdf.SetTitle(doc.Title, true)
	pdf.SetCreator("creative-review", true)
	pdf.AliasNbPages("{nb}")

	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-pageMargin + 5)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.SetTextColor(128, 128, 128)
		pdf.CellFormat(0, 5, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	pdf.AddPage()
	writeHeader(pdf, tr, doc)

	for i, sec := range doc.Sections {
		writeSection(pdf, tr, i, len(doc.Sections), sec)
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render PDF: %w", err)
	}
	return nil
}

// RenderPDF renders doc into memory.
func RenderPDF(doc Document) ([]byte, error) {
	var buf bytes.Buffer
	if err := WritePDF(&buf, doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeHeader(pdf *fpdf.Fpdf, tr func(string) string, doc Document) {
	pdf.SetFont("Helvetica", "B", 18)
	pdf.SetTextColor(20, 20, 20)
	pdf.CellFormat(0, 10, tr(doc.Title), "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(100, 100, 100)
	meta := "Generated " + doc.Generated.Format("January 2, 2006 15:04 MST")
	if doc.ID != "" {
		meta += "  |  " + doc.ID
	}
	pdf.CellFormat(0, 5, tr(meta), "", 1, "L", false, 0, "")

	var campaign []string
	if doc.Campaign.Channel != "" {
		campaign = append(campaign, "Channel: "+doc.Campaign.Channel)
	}
	if doc.Campaign.Objective != "" {
		campaign = append(campaign, "Objective: "+doc.Campaign.Objective)
	}
	if doc.Campaign.Device != "" {
		campaign = append(campaign, "Device: "+doc.Campaign.Device)
	}
	if doc.Combined {
		campaign = append(campaign, "Combined review")
	}
	if len(campaign) > 0 {
		pdf.CellFormat(0, 5, tr(strings.Join(campaign, "  |  ")), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)
}

func writeSection(pdf *fpdf.Fpdf, tr func(string) string, i, total int, sec Section) {
	pdf.SetFont("Helvetica", "B", 13)
	pdf.SetTextColor(20, 20, 20)
	heading := strings.Join(sec.Assets, ", ")
	if total > 1 {
		heading = fmt.Sprintf("%d. %s", i+1, heading)
	}
	pdf.MultiCell(0, 7, tr(heading), "", "L", false)

	writeThumbnails(pdf, sec.Images)

	if len(sec.Details) > 0 {
		pdf.SetFont("Helvetica", "", 9)
		pdf.SetTextColor(90, 90, 90)
		for _, d := range sec.Details {
			pdf.MultiCell(0, 4.5, tr(d), "", "L", false)
		}
		pdf.Ln(2)
	}

	pdf.SetTextColor(20, 20, 20)
	switch {
	case !sec.OK:
		pdf.SetFont("Helvetica", "B", 10)
		pdf.SetTextColor(170, 30, 30)
		msg := sec.Error
		if msg == "" {
			msg = "Review did not complete."
		}
		pdf.MultiCell(0, lineHeight, tr(msg), "", "L", false)
	case sec.Critique != nil:
		writeCritique(pdf, tr, sec)
	default:
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(0, lineHeight, tr(plainText(sec.Text)), "", "L", false)
	}
	pdf.Ln(6)
}

func writeCritique(pdf *fpdf.Fpdf, tr func(string) string, sec Section) {
	c := sec.Critique
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(0, 6, fmt.Sprintf("Score: %d/10", c.Score), "", 1, "L", false, 0, "")
	if c.Summary != "" {
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(0, lineHeight, tr(c.Summary), "", "L", false)
	}
	if len(c.Strengths) > 0 {
		pdf.Ln(2)
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(0, 6, "Strengths", "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		for _, s := range c.Strengths {
			pdf.MultiCell(0, lineHeight, tr("- "+s), "", "L", false)
		}
	}
	if len(c.Issues) > 0 {
		pdf.Ln(2)
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(0, 6, "Issues", "", 1, "L", false, 0, "")
		for _, is := range c.Issues {
			pdf.SetFont("Helvetica", "B", 10)
			label := is.Area
			if is.Severity != "" {
				label += " (" + is.Severity + ")"
			}
			pdf.MultiCell(0, lineHeight, tr(label), "", "L", false)
			pdf.SetFont("Helvetica", "", 10)
			if is.Detail != "" {
				pdf.MultiCell(0, lineHeight, tr(is.Detail), "", "L", false)
			}
			if is.Recommendation != "" {
				pdf.MultiCell(0, lineHeight, tr("Recommendation: "+is.Recommendation), "", "L", false)
			}
		}
	}
}

func writeThumbnails(pdf *fpdf.Fpdf, images []Image) {
	if len(images) == 0 {
		return
	}
	pageW, pageH := pdf.GetPageSize()

	type placed struct {
		name string
		h    float64
	}
	var row []placed
	maxH := 0.0
	for _, img := range images {
		data, w, h, err := Thumbnail(img.Data, thumbMaxPixels)
		if err != nil {
			log.Warn().Err(err).Str("asset", img.Name).Msg("Failed to build thumbnail, skipping")
			continue
		}
		name := "thumb-" + img.Name
		pdf.RegisterImageOptionsReader(name, fpdf.ImageOptions{ImageType: "JPG"}, bytes.NewReader(data))
		hmm := thumbWidthMM * float64(h) / float64(w)
		row = append(row, placed{name: name, h: hmm})
		maxH = max(maxH, hmm)
	}
	if len(row) == 0 {
		return
	}

	y := pdf.GetY() + 2
	if y+maxH > pageH-pageMargin {
		pdf.AddPage()
		y = pdf.GetY()
	}
	x := pageMargin
	for _, p := range row {
		if x+thumbWidthMM > pageW-pageMargin {
			x = pageMargin
			y += maxH + 3
		}
		pdf.ImageOptions(p.name, x, y, thumbWidthMM, p.h, false, fpdf.ImageOptions{ImageType: "JPG"}, 0, "")
		x += thumbWidthMM + 4
	}
	pdf.SetY(y + maxH + 3)
}

// Thumbnail decodes a JPEG or PNG and returns it re-encoded as JPEG with its
// longest side at most maxDimension pixels.
func Thumbnail(data []byte, maxDimension int) ([]byte, int, int, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("decode image: %w", err)
	}
	bounds := src.Bounds()
	w, h := thumbnailDimensions(bounds.Dx(), bounds.Dy(), maxDimension)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 80}); err != nil {
		return nil, 0, 0, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), w, h, nil
}

func thumbnailDimensions(w, h, maxDimension int) (int, int) {
	if w <= maxDimension && h <= maxDimension {
		return w, h
	}
	if w >= h {
		return maxDimension, max(1, h*maxDimension/w)
	}
	return max(1, w*maxDimension/h), maxDimension
}

// plainText drops the markdown emphasis and heading markers the model tends
// to emit, which the PDF core fonts would print literally.
func plainText(s string) string {
	s = strings.NewReplacer("**", "", "__", "", "`", "").Replace(s)
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if strings.HasPrefix(l, "#") {
			lines[i] = strings.TrimSpace(strings.TrimLeft(l, "#"))
		}
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
