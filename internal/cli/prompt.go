package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ncruces/zenity"
	"github.com/rs/zerolog/log"
)

// ErrNoSelection is returned when the file picker is dismissed.
var ErrNoSelection = errors.New("no files selected")

// PickFiles opens a native file picker for ad creatives.
func PickFiles() ([]string, error) {
	selected, err := zenity.SelectFileMultiple(
		zenity.Title("Select ad creatives"),
		zenity.FileFilters{
			{
				Name:     "Ad creatives",
				Patterns: []string{"*.jpg", "*.jpeg", "*.png", "*.mp4"},
			},
		},
	)
	if err != nil {
		if errors.Is(err, zenity.ErrCanceled) {
			return nil, ErrNoSelection
		}
		return nil, fmt.Errorf("file picker failed: %w", err)
	}
	if len(selected) == 0 {
		return nil, ErrNoSelection
	}
	return selected, nil
}

// PromptChoice asks the user to pick one of options by number or name.
// An empty answer skips the question and returns "".
func PromptChoice(in io.Reader, out io.Writer, label string, options []string) string {
	fmt.Fprintf(out, "%s:\n", label)
	for i, o := range options {
		fmt.Fprintf(out, "  %d) %s\n", i+1, o)
	}
	fmt.Fprint(out, "Choice [skip]: ")

	input, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && input == "" {
		if !errors.Is(err, io.EOF) {
			log.Warn().Err(err).Msg("Failed to read input, skipping")
		}
		return ""
	}
	input = strings.TrimSpace(input)
	if n, err := strconv.Atoi(input); err == nil && n >= 1 && n <= len(options) {
		return options[n-1]
	}
	return input
}
