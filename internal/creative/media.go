// Package creative holds the domain types of an advertising creative review:
// assets, accepted media types, campaign metadata and submission validation.
package creative

import (
	"fmt"
	"path/filepath"
	"strings"
)

// MediaKind distinguishes still images from videos.
type MediaKind string

const (
	KindImage   MediaKind = "image"
	KindVideo   MediaKind = "video"
	KindUnknown MediaKind = ""
)

// AcceptedMIMETypes lists the declared media types an asset may carry.
// "image/jpg" is not a registered type but browsers and upload widgets
// send it, so it is accepted and normalized before upload.
var AcceptedMIMETypes = map[string]MediaKind{
	"image/jpeg": KindImage,
	"image/jpg":  KindImage,
	"image/png":  KindImage,
	"video/mp4":  KindVideo,
}

// extensionMIMETypes maps file extensions to the MIME type declared for them.
var extensionMIMETypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".mp4":  "video/mp4",
}

// IsAccepted reports whether mimeType is one of AcceptedMIMETypes.
func IsAccepted(mimeType string) bool {
	_, ok := AcceptedMIMETypes[normalizeMIME(mimeType)]
	return ok
}

// KindOf returns the media kind of an accepted MIME type, or KindUnknown.
func KindOf(mimeType string) MediaKind {
	return AcceptedMIMETypes[normalizeMIME(mimeType)]
}

// MIMETypeForPath returns the declared MIME type for a filename based on its
// extension.
func MIMETypeForPath(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if mime, ok := extensionMIMETypes[ext]; ok {
		return mime, nil
	}
	return "", fmt.Errorf("unsupported file extension %q (accepted: .jpg, .jpeg, .png, .mp4)", ext)
}

// UploadMIMEType returns the MIME type to send to the remote service.
func UploadMIMEType(mimeType string) string {
	m := normalizeMIME(mimeType)
	if m == "image/jpg" {
		return "image/jpeg"
	}
	return m
}

// ExtensionFor returns the canonical file extension for an accepted MIME type.
func ExtensionFor(mimeType string) string {
	switch UploadMIMEType(mimeType) {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "video/mp4":
		return ".mp4"
	}
	return ""
}

func normalizeMIME(mimeType string) string {
	m := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(m, ';'); i >= 0 {
		m = strings.TrimSpace(m[:i])
	}
	return m
}
