package nostr

import (
	"fmt"
	"strings"

	"github.com/11bDev-FOB/fragout-sub000/internal/fragout"
	"github.com/nbd-wtf/go-nostr/nip19"
)

// NormalizeSecretKey accepts a private key as raw hex or bech32 nsec and
// returns the canonical 64-char lowercase hex form. Short hex keys are
// zero-padded on the left.
func NormalizeSecretKey(raw string) (string, error) {
	key := strings.TrimSpace(raw)
	if key == "" {
		return "", fragout.ValidationError{Platform: platformID, Reason: "private key is empty"}
	}

	if strings.HasPrefix(strings.ToLower(key), "nsec1") {
		prefix, data, err := nip19.Decode(key)
		if err != nil {
			return "", fragout.ValidationError{Platform: platformID, Reason: fmt.Sprintf("invalid nsec key: %v", err)}
		}
		if prefix != "nsec" {
			return "", fragout.ValidationError{Platform: platformID, Reason: fmt.Sprintf("expected nsec key, got %s", prefix)}
		}
		key = data.(string)
	}

	return normalizeHex(key, "private key")
}

// NormalizePublicKey accepts a public key as raw hex or bech32 npub and
// returns 64-char lowercase hex.
func NormalizePublicKey(raw string) (string, error) {
	key := strings.TrimSpace(raw)
	if key == "" {
		return "", fragout.ValidationError{Platform: platformID, Reason: "pubkey is empty"}
	}

	if strings.HasPrefix(strings.ToLower(key), "npub1") {
		prefix, data, err := nip19.Decode(key)
		if err != nil {
			return "", fragout.ValidationError{Platform: platformID, Reason: fmt.Sprintf("invalid npub key: %v", err)}
		}
		if prefix != "npub" {
			return "", fragout.ValidationError{Platform: platformID, Reason: fmt.Sprintf("expected npub key, got %s", prefix)}
		}
		key = data.(string)
	}

	return normalizeHex(key, "pubkey")
}

func normalizeHex(key, what string) (string, error) {
	key = strings.ToLower(strings.TrimPrefix(key, "0x"))
	if len(key) > 64 {
		return "", fragout.ValidationError{Platform: platformID, Reason: fmt.Sprintf("%s is longer than 64 hex chars", what)}
	}
	for _, c := range key {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return "", fragout.ValidationError{Platform: platformID, Reason: fmt.Sprintf("%s is not hex", what)}
		}
	}
	return strings.Repeat("0", 64-len(key)) + key, nil
}
