package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/fpang/creative-review/internal/ingest"
)

// DefaultModel is used when GenerationOptions.Model is empty.
const DefaultModel = "gemini-2.5-pro"

// Generator implements ingest.Generator with Models.GenerateContent.
type Generator struct {
	client *genai.Client
}

// NewGenerator returns a Generator backed by client.
func NewGenerator(client *genai.Client) *Generator {
	return &Generator{client: client}
}

// Generate issues exactly one GenerateContent call. A response withheld by
// a safety filter yields an *ingest.BlockedError.
func (g *Generator) Generate(ctx context.Context, req ingest.AnalysisRequest) (string, error) {
	model := req.Options.Model
	if model == "" {
		model = DefaultModel
	}

	contents := buildContents(req)
	config := buildConfig(req.Options, req.SystemInstruction)

	log.Info().
		Str("model", model).
		Int("files", len(req.Handles)).
		Int("prompt_chars", len(req.Prompt)).
		Msg("Sending analysis request to Gemini")

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		if reason := blockedByError(err); reason != "" {
			return "", &ingest.BlockedError{Reason: reason}
		}
		return "", fmt.Errorf("generate content: %w", err)
	}

	if reason := blockReason(resp); reason != "" {
		log.Warn().Str("reason", reason).Msg("Gemini withheld the response")
		return "", &ingest.BlockedError{Reason: reason}
	}

	text := responseText(resp)
	if text == "" {
		return "", errors.New("Gemini returned an empty response")
	}

	log.Info().
		Int("chars", len(text)).
		Dur("duration", time.Since(start)).
		Msg("Analysis received from Gemini")
	return text, nil
}

func buildContents(req ingest.AnalysisRequest) []*genai.Content {
	parts := make([]*genai.Part, 0, len(req.Handles)*2+1)
	for _, h := range req.Handles {
		if len(req.Handles) > 1 {
			parts = append(parts, &genai.Part{Text: fmt.Sprintf("Creative: %s", h.DisplayName)})
		}
		parts = append(parts, &genai.Part{
			FileData: &genai.FileData{
				FileURI:  h.URI,
				MIMEType: h.MIMEType,
			},
		})
	}
	parts = append(parts, &genai.Part{Text: req.Prompt})
	return []*genai.Content{{Role: "user", Parts: parts}}
}

func buildConfig(opts ingest.GenerationOptions, systemInstruction string) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(opts.Temperature),
		TopP:             genai.Ptr(opts.TopP),
		TopK:             genai.Ptr(opts.TopK),
		ResponseMIMEType: opts.ResponseMIMEType,
		SafetySettings:   safetySettings(opts.Safety),
	}
	if opts.MaxOutputTokens > 0 {
		config.MaxOutputTokens = opts.MaxOutputTokens
	}
	if systemInstruction != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: systemInstruction}},
		}
	}
	return config
}

func safetySettings(t ingest.SafetyThresholds) []*genai.SafetySetting {
	pairs := []struct {
		category  genai.HarmCategory
		threshold string
	}{
		{genai.HarmCategoryHateSpeech, t.HateSpeech},
		{genai.HarmCategoryHarassment, t.Harassment},
		{genai.HarmCategorySexuallyExplicit, t.SexuallyExplicit},
		{genai.HarmCategoryDangerousContent, t.DangerousContent},
	}
	var settings []*genai.SafetySetting
	for _, p := range pairs {
		if p.threshold == "" {
			continue
		}
		settings = append(settings, &genai.SafetySetting{
			Category:  p.category,
			Threshold: genai.HarmBlockThreshold(p.threshold),
		})
	}
	return settings
}

// blockedFinishReasons are finish reasons meaning the output was withheld.
var blockedFinishReasons = map[string]bool{
	"SAFETY":             true,
	"PROHIBITED_CONTENT": true,
	"BLOCKLIST":          true,
	"SPII":               true,
	"IMAGE_SAFETY":       true,
}

// blockReason returns why the response was withheld, or "" when it was not.
func blockReason(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	if fb := resp.PromptFeedback; fb != nil {
		if r := string(fb.BlockReason); r != "" && r != "BLOCKED_REASON_UNSPECIFIED" {
			return r
		}
	}
	for _, c := range resp.Candidates {
		if c == nil {
			continue
		}
		if r := string(c.FinishReason); blockedFinishReasons[r] {
			return r
		}
	}
	return ""
}

// blockedByError recognizes safety rejections reported as API errors.
func blockedByError(err error) string {
	apiErr, ok := apiError(err)
	if !ok || apiErr.Code != 400 {
		return ""
	}
	msg := strings.ToLower(apiErr.Message)
	if strings.Contains(msg, "safety") || strings.Contains(msg, "prohibited") {
		return "SAFETY"
	}
	return ""
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	c := resp.Candidates[0]
	if c == nil || c.Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range c.Content.Parts {
		if part != nil && part.Text != "" && !part.Thought {
			sb.WriteString(part.Text)
		}
	}
	return strings.TrimSpace(sb.String())
}
