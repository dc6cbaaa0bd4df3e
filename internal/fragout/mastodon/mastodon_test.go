package mastodon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/11bDev-FOB/fragout-sub000/internal/fragout"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeInstanceURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"mastodon.social", "https://mastodon.social"},
		{"https://mastodon.social", "https://mastodon.social"},
		{"https://mastodon.social/", "https://mastodon.social"},
		{"https://mastodon.social//", "https://mastodon.social"},
		{"  mastodon.social  ", "https://mastodon.social"},
		{"http://localhost:3000/", "http://localhost:3000"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeInstanceURL(tt.in))
		})
	}
}

func TestParseCredentials(t *testing.T) {
	t.Run("missing fields fail locally", func(t *testing.T) {
		_, err := parseCredentials(fragout.Credentials{"instance_url": "mastodon.social"})
		var missing fragout.MissingFieldError
		require.ErrorAs(t, err, &missing)
		assert.Equal(t, []string{"access_token"}, missing.Fields)
	})

	t.Run("instance url normalized at the boundary", func(t *testing.T) {
		creds, err := parseCredentials(fragout.Credentials{
			"instance_url": "mastodon.social/",
			"access_token": "tok",
		})
		require.NoError(t, err)
		assert.Equal(t, "https://mastodon.social", creds.InstanceURL)
	})
}

func TestTestConnection(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/v1/accounts/verify_credentials", r.URL.Path)
			assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
			json.NewEncoder(w).Encode(map[string]any{
				"id":       "1",
				"username": "alice",
				"acct":     "alice",
			})
		}))
		defer server.Close()

		info, err := New().TestConnection(context.Background(), fragout.Credentials{
			"instance_url": server.URL,
			"access_token": "tok",
		})
		require.NoError(t, err)
		assert.Contains(t, info.Message, "alice")
		assert.Equal(t, "alice", info.Data["username"])
	})

	t.Run("bad token", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "The access token is invalid"})
		}))
		defer server.Close()

		_, err := New().TestConnection(context.Background(), fragout.Credentials{
			"instance_url": server.URL,
			"access_token": "bad",
		})
		var auth fragout.AuthError
		require.ErrorAs(t, err, &auth)
		assert.Contains(t, auth.Reason, "token")
	})

	t.Run("not a mastodon instance", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		}))
		defer server.Close()

		_, err := New().TestConnection(context.Background(), fragout.Credentials{
			"instance_url": server.URL,
			"access_token": "tok",
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "instance URL")
	})

	t.Run("missing fields never reach the network", func(t *testing.T) {
		_, err := New().TestConnection(context.Background(), fragout.Credentials{})
		var missing fragout.MissingFieldError
		require.ErrorAs(t, err, &missing)
	})
}

func TestPost(t *testing.T) {
	t.Run("text only", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/api/v1/statuses", r.URL.Path)
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "hello fediverse", r.PostFormValue("status"))
			json.NewEncoder(w).Encode(map[string]any{
				"id":  "42",
				"url": "https://mastodon.test/@alice/42",
			})
		}))
		defer server.Close()

		result, err := New().Post(context.Background(), fragout.PostContent{Text: "hello fediverse"}, fragout.Credentials{
			"instance_url": server.URL,
			"access_token": "tok",
		})
		require.NoError(t, err)
		assert.Equal(t, "42", result.PostID)
		assert.Equal(t, "https://mastodon.test/@alice/42", result.URL)
	})

	t.Run("failed image upload degrades to text-only", func(t *testing.T) {
		var statusCalls int
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/api/v1/statuses" {
				statusCalls++
				require.NoError(t, r.ParseForm())
				assert.Empty(t, r.PostForm["media_ids[]"])
				json.NewEncoder(w).Encode(map[string]any{"id": "43", "url": "https://mastodon.test/@alice/43"})
				return
			}
			// every media upload path fails
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		content := fragout.PostContent{
			Text:   "hello",
			Images: []fragout.Image{{Data: []byte("not-really-a-jpeg")}},
		}
		result, err := New().Post(context.Background(), content, fragout.Credentials{
			"instance_url": server.URL,
			"access_token": "tok",
		})
		require.NoError(t, err)
		assert.Equal(t, "43", result.PostID)
		assert.Equal(t, 1, statusCalls)
	})

	t.Run("server error names the instance", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		_, err := New().Post(context.Background(), fragout.PostContent{Text: "hello"}, fragout.Credentials{
			"instance_url": server.URL,
			"access_token": "tok",
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), server.URL)
	})
}

// TestIntegrationConnection hits a real instance; set both env vars to run it.
func TestIntegrationConnection(t *testing.T) {
	instance := os.Getenv("FRAGOUT_TEST_MASTODON_URL")
	token := os.Getenv("FRAGOUT_TEST_MASTODON_TOKEN")
	if instance == "" || token == "" {
		t.Skip("FRAGOUT_TEST_MASTODON_URL and FRAGOUT_TEST_MASTODON_TOKEN not set")
	}

	info, err := New().TestConnection(context.Background(), fragout.Credentials{
		"instance_url": instance,
		"access_token": token,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, info.Data["acct"])
}
