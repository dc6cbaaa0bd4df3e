package mastodon

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/11bDev-FOB/fragout-sub000/internal/fragout"
	"github.com/11bDev-FOB/fragout-sub000/internal/logutil"
	mastodonapi "github.com/mattn/go-mastodon"
)

const (
	platformID     = "mastodon"
	requestTimeout = 30 * time.Second
)

// Adapter posts statuses to a user-chosen Mastodon instance with a static
// bearer token.
type Adapter struct{}

// New constructs the Mastodon adapter.
func New() *Adapter { return &Adapter{} }

// Descriptor returns the platform metadata.
func (a *Adapter) Descriptor() fragout.Platform {
	return fragout.Platform{ID: platformID, Name: "Mastodon", RequiresAuth: true}
}

type credentials struct {
	InstanceURL string
	AccessToken string
}

func parseCredentials(bag fragout.Credentials) (credentials, error) {
	creds := credentials{
		InstanceURL: strings.TrimSpace(bag["instance_url"]),
		AccessToken: strings.TrimSpace(bag["access_token"]),
	}

	var missing []string
	if creds.InstanceURL == "" {
		missing = append(missing, "instance_url")
	}
	if creds.AccessToken == "" {
		missing = append(missing, "access_token")
	}
	if len(missing) > 0 {
		return credentials{}, fragout.MissingFieldError{Platform: platformID, Fields: missing}
	}

	creds.InstanceURL = NormalizeInstanceURL(creds.InstanceURL)
	return creds, nil
}

// NormalizeInstanceURL prepends https:// when the scheme is missing and
// strips any trailing slashes, so "mastodon.social",
// "https://mastodon.social" and "https://mastodon.social/" all address the
// same instance.
func NormalizeInstanceURL(raw string) string {
	url := strings.TrimSpace(raw)
	if url == "" {
		return ""
	}
	if !strings.Contains(url, "://") {
		url = "https://" + url
	}
	return strings.TrimRight(url, "/")
}

func (a *Adapter) client(creds credentials) *mastodonapi.Client {
	client := mastodonapi.NewClient(&mastodonapi.Config{
		Server:      creds.InstanceURL,
		AccessToken: creds.AccessToken,
	})
	client.Timeout = requestTimeout
	return client
}

// TestConnection verifies the token against the instance without creating
// any remote side effect.
func (a *Adapter) TestConnection(ctx context.Context, bag fragout.Credentials) (*fragout.ConnectionInfo, error) {
	creds, err := parseCredentials(bag)
	if err != nil {
		return nil, err
	}

	account, err := a.client(creds).GetAccountCurrentUser(ctx)
	if err != nil {
		return nil, classifyError(creds.InstanceURL, err)
	}

	return &fragout.ConnectionInfo{
		Message: fmt.Sprintf("connected to %s as @%s", creds.InstanceURL, account.Username),
		Data: map[string]string{
			"username": account.Username,
			"acct":     account.Acct,
			"instance": creds.InstanceURL,
		},
	}, nil
}

// Post publishes a status, attaching whichever images upload successfully.
func (a *Adapter) Post(ctx context.Context, content fragout.PostContent, bag fragout.Credentials) (*fragout.PostResult, error) {
	creds, err := parseCredentials(bag)
	if err != nil {
		return nil, err
	}
	client := a.client(creds)

	var mediaIDs []mastodonapi.ID
	for i, img := range content.Images {
		attachment, err := client.UploadMediaFromMedia(ctx, &mastodonapi.Media{
			File:        bytes.NewReader(img.Data),
			Description: img.AltText,
		})
		if err != nil {
			logutil.Warnf("mastodon: image %d/%d upload failed, continuing without it: %v", i+1, len(content.Images), err)
			continue
		}
		mediaIDs = append(mediaIDs, attachment.ID)
	}
	if len(content.Images) > 0 && len(mediaIDs) == 0 {
		logutil.Warnf("mastodon: all %d image uploads failed, posting text only", len(content.Images))
	}

	status, err := client.PostStatus(ctx, &mastodonapi.Toot{
		Status:   content.Text,
		MediaIDs: mediaIDs,
	})
	if err != nil {
		return nil, fmt.Errorf("post status: %w", classifyError(creds.InstanceURL, err))
	}

	return &fragout.PostResult{
		PostID: string(status.ID),
		URL:    status.URL,
	}, nil
}

// classifyError maps go-mastodon failures to actionable messages.
// go-mastodon reports remote failures as text errors carrying the HTTP
// status line, so classification scans the message.
func classifyError(instance string, err error) error {
	msg := err.Error()
	switch {
	case containsStatus(msg, 401):
		return fragout.AuthError{Platform: platformID, Reason: fmt.Sprintf("access token rejected by %s (bad or revoked token)", instance)}
	case containsStatus(msg, 404):
		return fmt.Errorf("no Mastodon API found at %s (check the instance URL): %w", instance, err)
	case containsServerStatus(msg):
		return fmt.Errorf("%s is having problems (server error): %w", instance, err)
	}
	return err
}

func containsStatus(msg string, code int) bool {
	return strings.Contains(msg, fmt.Sprintf("%d ", code)) || strings.HasSuffix(msg, fmt.Sprint(code))
}

func containsServerStatus(msg string) bool {
	for code := 500; code <= 504; code++ {
		if containsStatus(msg, code) {
			return true
		}
	}
	return false
}
