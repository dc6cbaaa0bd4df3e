package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// BlossomAuthorizer produces the base64-encoded signed authorization event
// for one upload, given the payload's SHA-256 hex digest. The caller owns
// the event construction and signing; this package only speaks HTTP.
type BlossomAuthorizer func(sha256Hex string) (string, error)

type blossomDescriptor struct {
	URL    string `json:"url"`
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
}

// UploadToBlossom PUTs one payload to a Blossom media server and returns the
// resulting public URL. The server authorizes the upload by the signed event
// carried in the Authorization header.
func UploadToBlossom(ctx context.Context, client *http.Client, server string, data []byte, mimeType string, auth BlossomAuthorizer) (string, error) {
	base := strings.TrimRight(strings.TrimSpace(server), "/")
	if base == "" {
		return "", fmt.Errorf("blossom server not configured")
	}
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}

	hash := SHA256Hex(data)
	token, err := auth(hash)
	if err != nil {
		return "", fmt.Errorf("authorize upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, base+"/upload", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Authorization", "Nostr "+token)
	req.Header.Set("Content-Type", DetectMime(mimeType, data))
	req.ContentLength = int64(len(data))

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload to %s: %w", base, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read upload response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("upload rejected (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var desc blossomDescriptor
	if err := json.Unmarshal(body, &desc); err == nil && desc.URL != "" {
		return desc.URL, nil
	}

	// Some servers respond with an empty or non-JSON body; the blob is
	// still addressable by its hash.
	ext := extensionForMime(mimeType)
	return fmt.Sprintf("%s/%s%s", base, hash, ext), nil
}

func extensionForMime(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	}
	return ""
}
