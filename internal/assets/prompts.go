package assets

import (
	"bytes"
	_ "embed"
	"text/template"

	"github.com/fpang/creative-review/internal/creative"
)

//go:embed prompts/partials.txt
var partialsTemplate string

//go:embed prompts/review-image.txt
var reviewImageTemplate string

//go:embed prompts/review-video.txt
var reviewVideoTemplate string

//go:embed prompts/review-combined.txt
var reviewCombinedTemplate string

// Pre-parsed templates. template.Must panics on malformed templates, so a
// bad edit fails at startup rather than on the first review.
var (
	imagePromptTmpl    = mustParse("image", reviewImageTemplate)
	videoPromptTmpl    = mustParse("video", reviewVideoTemplate)
	combinedPromptTmpl = mustParse("combined", reviewCombinedTemplate)
)

func mustParse(name, body string) *template.Template {
	t := template.Must(template.New(name).Parse(body))
	return template.Must(t.Parse(partialsTemplate))
}

// PromptData holds the dynamic data injected into prompt templates.
type PromptData struct {
	Campaign creative.Campaign
	// MetadataContext is the formatted asset details. Empty when nothing
	// could be measured.
	MetadataContext string
	// Count is the number of creatives in a combined review.
	Count int
	// Structured asks for a JSON answer instead of prose.
	Structured bool
}

// RenderReviewPrompt renders the single-creative prompt for the given kind.
// Unknown kinds use the image prompt.
func RenderReviewPrompt(kind creative.MediaKind, data PromptData) string {
	if kind == creative.KindVideo {
		return renderTemplate(videoPromptTmpl, data)
	}
	return renderTemplate(imagePromptTmpl, data)
}

// RenderCombinedPrompt renders the prompt comparing several creatives in one
// request.
func RenderCombinedPrompt(data PromptData) string {
	return renderTemplate(combinedPromptTmpl, data)
}

func renderTemplate(tmpl *template.Template, data PromptData) string {
	var buf bytes.Buffer
	// Execution errors are not expected with these templates; whatever was
	// rendered is returned.
	_ = tmpl.Execute(&buf, data)
	return buf.String()
}
