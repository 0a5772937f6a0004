package jsonutil

import (
	"errors"
	"testing"
)

type critique struct {
	Score   int    `json:"score"`
	Summary string `json:"summary"`
}

func TestStripMarkdownFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no fences", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n[1,2]\n```", `[1,2]`},
		{"unterminated", "```json\n{\"a\":1}", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripMarkdownFences(tt.in); got != tt.want {
				t.Errorf("StripMarkdownFences() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseJSON(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantScore int
		wantErr   bool
	}{
		{"plain object", `{"score": 7, "summary": "ok"}`, 7, false},
		{"fenced", "```json\n{\"score\": 8}\n```", 8, false},
		{"surrounded by prose", "Here is the review:\n{\"score\": 5} Hope this helps {really}.", 5, false},
		{"no json", "The creative is fine.", 0, true},
		{"broken json", `{"score": }`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseJSON[critique](tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseJSON() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got.Score != tt.wantScore {
				t.Errorf("score = %d, want %d", got.Score, tt.wantScore)
			}
		})
	}

	if _, err := ParseJSON[critique]("nothing here"); !errors.Is(err, ErrNoJSON) {
		t.Errorf("expected ErrNoJSON, got %v", err)
	}
}
