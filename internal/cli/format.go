package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fpang/creative-review/internal/review"
)

// FormatDurationShort formats a duration in a short format (M:SS or H:MM:SS).
func FormatDurationShort(d time.Duration) string {
	totalSeconds := int(d.Seconds())
	hours := totalSeconds / 3600
	minutes := (totalSeconds % 3600) / 60
	seconds := totalSeconds % 60

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}

// PrintReview writes every run's critique, or its error, to w.
func PrintReview(w io.Writer, rv *review.Review) {
	for _, it := range rv.Items {
		title := strings.Join(it.Assets, ", ")
		fmt.Fprintf(w, "\n%s\n%s\n", title, strings.Repeat("=", len(title)))
		if !it.OK() {
			fmt.Fprintf(w, "%s\n", it.Err.UserMessage())
			continue
		}
		if c := it.Critique; c != nil {
			fmt.Fprintf(w, "Score: %d/10\n%s\n", c.Score, c.Summary)
			for _, s := range c.Strengths {
				fmt.Fprintf(w, "  + %s\n", s)
			}
			for _, is := range c.Issues {
				fmt.Fprintf(w, "  - [%s] %s: %s\n", is.Severity, is.Area, is.Detail)
				if is.Recommendation != "" {
					fmt.Fprintf(w, "      -> %s\n", is.Recommendation)
				}
			}
			continue
		}
		fmt.Fprintf(w, "%s\n", strings.TrimSpace(it.Text))
	}
	fmt.Fprintf(w, "\n%d of %d reviews completed.\n", len(rv.Items)-rv.Failed(), len(rv.Items))
}
