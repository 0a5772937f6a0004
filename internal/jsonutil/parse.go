// Package jsonutil extracts JSON from model responses that may wrap it in
// markdown code fences or surrounding prose.
package jsonutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoJSON is returned when the text contains no JSON object or array.
var ErrNoJSON = errors.New("no JSON content found")

// StripMarkdownFences removes a ```json ... ``` (or bare ```) wrapper and
// returns the text between the fences. Text without an opening fence is
// returned trimmed.
func StripMarkdownFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	// Drop the opening fence line, including any language tag.
	nl := strings.IndexByte(text, '\n')
	if nl < 0 {
		return text
	}
	body := text[nl+1:]
	if end := strings.LastIndex(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

// ParseJSON decodes the first JSON object or array found in raw into T.
// Trailing prose after the value is ignored.
func ParseJSON[T any](raw string) (T, error) {
	var result T
	text := StripMarkdownFences(raw)

	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return result, fmt.Errorf("%w (raw length: %d)", ErrNoJSON, len(raw))
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(text[start:])))
	if err := dec.Decode(&result); err != nil {
		preview := text[start:]
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		var zero T
		return zero, fmt.Errorf("invalid JSON: %w (text: %s)", err, preview)
	}
	return result, nil
}
