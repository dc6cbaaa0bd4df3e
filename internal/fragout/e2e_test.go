package fragout_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/11bDev-FOB/fragout-sub000/internal/fragout"
	"github.com/11bDev-FOB/fragout-sub000/internal/fragout/mastodon"
	"github.com/11bDev-FOB/fragout-sub000/internal/fragout/nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapSource map[string]string

func (m mapSource) GetCredentials(ctx context.Context, userID string) ([]fragout.CredentialRecord, error) {
	var records []fragout.CredentialRecord
	for platform, blob := range m {
		records = append(records, fragout.CredentialRecord{Platform: platform, Ciphertext: blob})
	}
	return records, nil
}

func newMastodonServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/statuses", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		json.NewEncoder(w).Encode(map[string]any{
			"id":  "109372",
			"url": "https://mastodon.test/@alice/109372",
		})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

// One valid platform and one with no stored credentials: the valid one
// posts, the other gets a credentials error, and neither affects the other.
func TestDispatchMastodonAndUnconnectedNostr(t *testing.T) {
	server := newMastodonServer(t)

	registry := fragout.NewRegistry()
	require.NoError(t, registry.Register(mastodon.New()))
	require.NoError(t, registry.Register(nostr.New([]string{"wss://relay.example"})))

	source := mapSource{
		"mastodon": `{"instance_url":"` + server.URL + `","access_token":"tok"}`,
	}

	d := fragout.NewDispatcher(registry, source, fragout.DispatcherOptions{})
	defer d.Close()

	report, err := d.Dispatch(context.Background(), "u1", fragout.PostContent{Text: "hello"}, []string{"mastodon", "nostr"})
	require.NoError(t, err)
	require.Len(t, report.Results, 2)

	assert.True(t, report.Results["mastodon"].Success)
	assert.Equal(t, "109372", report.Results["mastodon"].PostID)
	assert.Equal(t, "https://mastodon.test/@alice/109372", report.Results["mastodon"].URL)

	assert.False(t, report.Results["nostr"].Success)
	assert.Contains(t, report.Results["nostr"].Error, "credentials")
	assert.Equal(t, fragout.StatusFailed, report.Status)
}

// Images without a configured Blossom server fail the Nostr attempt before
// any upload or relay work, and never drag the sibling platform down.
func TestDispatchNostrImagesWithoutBlossomServer(t *testing.T) {
	server := newMastodonServer(t)

	registry := fragout.NewRegistry()
	require.NoError(t, registry.Register(mastodon.New()))
	require.NoError(t, registry.Register(nostr.New([]string{"wss://relay.example"})))

	source := mapSource{
		"mastodon": `{"instance_url":"` + server.URL + `","access_token":"tok"}`,
		"nostr":    `{"private_key":"` + "1a" + `"}`,
	}

	content := fragout.PostContent{
		Text: "hello",
		Images: []fragout.Image{
			{Data: []byte{0xff, 0xd8, 0xff}},
			{Data: []byte{0x89, 0x50, 0x4e}},
		},
	}

	d := fragout.NewDispatcher(registry, source, fragout.DispatcherOptions{})
	defer d.Close()

	report, err := d.Dispatch(context.Background(), "u1", content, []string{"mastodon", "nostr"})
	require.NoError(t, err)

	assert.False(t, report.Results["nostr"].Success)
	assert.Contains(t, report.Results["nostr"].Error, "Blossom")
	// Mastodon is unaffected even though its own image upload endpoint is
	// absent from the fake server; it degrades to a text-only post.
	assert.True(t, report.Results["mastodon"].Success)
}
