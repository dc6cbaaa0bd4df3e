package fragout

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

// CredentialRecord is one stored credential row: the platform it belongs to
// and the ciphertext blob handed back by the store.
type CredentialRecord struct {
	Platform   string
	Ciphertext string
}

// CredentialSource is the read-only credential store contract. One read per
// dispatch returns every platform the user has connected.
type CredentialSource interface {
	GetCredentials(ctx context.Context, userID string) ([]CredentialRecord, error)
}

// Decrypter turns a stored ciphertext into the plaintext credential JSON.
// Encryption-at-rest lives outside this package; a nil Decrypter means the
// store already holds plaintext.
type Decrypter func(ciphertext string) (string, error)

// ParseCredentials decodes a plaintext credential JSON object into the bag
// handed to adapters. Non-string values (booleans, relay arrays) are kept as
// their JSON encoding so adapters can interpret them.
func ParseCredentials(plaintext string) (Credentials, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(plaintext), &raw); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	creds := make(Credentials, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			creds[k] = val
		case bool:
			creds[k] = strconv.FormatBool(val)
		case float64:
			creds[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case nil:
			// skip
		default:
			enc, err := json.Marshal(val)
			if err != nil {
				return nil, fmt.Errorf("parse credentials: field %q: %w", k, err)
			}
			creds[k] = string(enc)
		}
	}
	return creds, nil
}
