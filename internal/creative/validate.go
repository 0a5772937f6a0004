package creative

import "fmt"

// ValidationError reports a submission problem detected before any work is
// started. Message is safe to show to the analyst.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// ValidateAssetCount enforces 1..max assets per submission.
func ValidateAssetCount(n, max int) error {
	if n == 0 {
		return &ValidationError{Field: "assets", Message: "please upload at least one ad creative"}
	}
	if n > max {
		return &ValidationError{Field: "assets", Message: fmt.Sprintf("you can upload at most %d ad creatives at a time, got %d", max, n)}
	}
	return nil
}

// ValidateAsset checks that an asset declares an accepted media type and
// carries bytes.
func ValidateAsset(a Asset) error {
	if a.Filename == "" {
		return &ValidationError{Field: "assets", Message: "asset is missing a filename"}
	}
	if !IsAccepted(a.MIMEType) {
		return &ValidationError{
			Field:   "assets",
			Message: fmt.Sprintf("%s has unsupported type %q (accepted: image/jpeg, image/png, video/mp4)", a.Filename, a.MIMEType),
		}
	}
	if a.Size == 0 {
		return &ValidationError{Field: "assets", Message: fmt.Sprintf("%s is empty", a.Filename)}
	}
	return nil
}

// ValidateSubmission runs every pre-flight check on a submission.
func ValidateSubmission(assets []Asset, campaign Campaign, maxAssets int, requireCampaign bool) error {
	if err := ValidateAssetCount(len(assets), maxAssets); err != nil {
		return err
	}
	for _, a := range assets {
		if err := ValidateAsset(a); err != nil {
			return err
		}
	}
	return campaign.Validate(requireCampaign)
}
