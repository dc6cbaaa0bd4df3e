// Package media holds the upload plumbing shared by the platform adapters:
// mime sniffing, size adaptation for platforms with byte ceilings, and
// content-addressed upload helpers, so adapters do not duplicate HTTP and
// image handling.
package media

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
)

// DetectMime returns the image payload's mime type, preferring the declared
// one when present.
func DetectMime(declared string, data []byte) string {
	if declared != "" {
		return declared
	}
	detected := http.DetectContentType(data)
	if strings.HasPrefix(detected, "image/") {
		return detected
	}
	return "application/octet-stream"
}

// SHA256Hex returns the lowercase hex digest used for content-addressed
// uploads.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
