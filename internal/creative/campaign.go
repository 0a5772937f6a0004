package creative

import (
	"fmt"
	"slices"
	"strings"
)

// Campaign is the optional metadata an analyst attaches to a submission.
type Campaign struct {
	Channel   string `json:"channel,omitempty" dynamodbav:"channel,omitempty"`
	Objective string `json:"objective,omitempty" dynamodbav:"objective,omitempty"`
	Device    string `json:"device,omitempty" dynamodbav:"device,omitempty"`
}

// Channels are the ad placements the review prompt knows how to judge against.
var Channels = []string{
	"Facebook",
	"Instagram",
	"TikTok",
	"YouTube",
	"Google Display",
	"LinkedIn",
	"Snapchat",
	"Pinterest",
	"X",
}

// Objectives are the campaign goals offered to the analyst.
var Objectives = []string{
	"Awareness",
	"Consideration",
	"Traffic",
	"Engagement",
	"Lead Generation",
	"Conversion",
	"App Install",
}

// Devices are the primary viewing devices.
var Devices = []string{
	"Mobile",
	"Desktop",
	"Tablet",
	"Connected TV",
}

// IsZero reports whether no campaign field was selected.
func (c Campaign) IsZero() bool {
	return c.Channel == "" && c.Objective == "" && c.Device == ""
}

// Normalize trims whitespace and matches each field case-insensitively to
// its canonical spelling. Unknown values are left as given so Validate can
// report them.
func (c Campaign) Normalize() Campaign {
	return Campaign{
		Channel:   canonical(Channels, c.Channel),
		Objective: canonical(Objectives, c.Objective),
		Device:    canonical(Devices, c.Device),
	}
}

// Validate checks every selected field against the known options. When
// required is true all three fields must be present.
func (c Campaign) Validate(required bool) error {
	checks := []struct {
		field   string
		value   string
		options []string
	}{
		{"channel", c.Channel, Channels},
		{"objective", c.Objective, Objectives},
		{"device", c.Device, Devices},
	}
	for _, chk := range checks {
		if chk.value == "" {
			if required {
				return &ValidationError{Field: chk.field, Message: fmt.Sprintf("please select a %s", chk.field)}
			}
			continue
		}
		if !slices.Contains(chk.options, chk.value) {
			return &ValidationError{
				Field:   chk.field,
				Message: fmt.Sprintf("unknown %s %q (choose one of: %s)", chk.field, chk.value, strings.Join(chk.options, ", ")),
			}
		}
	}
	return nil
}

func canonical(options []string, value string) string {
	value = strings.TrimSpace(value)
	for _, opt := range options {
		if strings.EqualFold(opt, value) {
			return opt
		}
	}
	return value
}
