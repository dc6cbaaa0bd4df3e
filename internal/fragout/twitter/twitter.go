package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/11bDev-FOB/fragout-sub000/internal/fragout"
	"github.com/11bDev-FOB/fragout-sub000/internal/fragout/media"
	"github.com/11bDev-FOB/fragout-sub000/internal/logutil"
	"github.com/michimani/gotwi"
	"github.com/michimani/gotwi/tweet/managetweet"
	managetweettypes "github.com/michimani/gotwi/tweet/managetweet/types"
	"github.com/michimani/gotwi/user/userlookup"
	userlookuptypes "github.com/michimani/gotwi/user/userlookup/types"
)

const (
	platformID     = "twitter"
	requestTimeout = 30 * time.Second

	uploadEndpoint   = "https://upload.twitter.com/1.1/media/upload.json"
	metadataEndpoint = "https://upload.twitter.com/1.1/media/metadata/create.json"
)

// Adapter posts tweets under one of two mutually exclusive schemes: OAuth
// 1.0a request signing with four secrets, or a user-context Bearer Token.
// OAuth 1.0a wins when both are stored because app-only Bearer Tokens
// cannot post.
type Adapter struct {
	httpClient  *http.Client
	uploadURL   string
	metadataURL string
}

// New constructs the X adapter.
func New() *Adapter {
	return &Adapter{
		httpClient:  &http.Client{Timeout: requestTimeout},
		uploadURL:   uploadEndpoint,
		metadataURL: metadataEndpoint,
	}
}

// Descriptor returns the platform metadata.
func (a *Adapter) Descriptor() fragout.Platform {
	return fragout.Platform{ID: platformID, Name: "X / Twitter", RequiresAuth: true}
}

type credentials struct {
	APIKey            string
	APISecret         string
	AccessToken       string
	AccessTokenSecret string
	BearerToken       string
}

func (c credentials) hasOAuth1() bool {
	return c.APIKey != "" && c.APISecret != "" && c.AccessToken != "" && c.AccessTokenSecret != ""
}

func parseCredentials(bag fragout.Credentials) (credentials, error) {
	creds := credentials{
		APIKey:            strings.TrimSpace(bag["api_key"]),
		APISecret:         strings.TrimSpace(bag["api_secret"]),
		AccessToken:       strings.TrimSpace(bag["access_token"]),
		AccessTokenSecret: strings.TrimSpace(bag["access_token_secret"]),
		BearerToken:       strings.TrimSpace(bag["bearerToken"]),
	}

	if creds.hasOAuth1() || creds.BearerToken != "" {
		return creds, nil
	}

	return credentials{}, fragout.MissingFieldError{
		Platform: platformID,
		Fields:   []string{"api_key+api_secret+access_token+access_token_secret or bearerToken"},
	}
}

func (a *Adapter) client(creds credentials) (*gotwi.Client, error) {
	if creds.hasOAuth1() {
		client, err := gotwi.NewClient(&gotwi.NewClientInput{
			HTTPClient:           a.httpClient,
			AuthenticationMethod: gotwi.AuthenMethodOAuth1UserContext,
			OAuthToken:           creds.AccessToken,
			OAuthTokenSecret:     creds.AccessTokenSecret,
			APIKey:               creds.APIKey,
			APIKeySecret:         creds.APISecret,
		})
		if err != nil {
			return nil, fmt.Errorf("create X client: %w", err)
		}
		return client, nil
	}

	client, err := gotwi.NewClientWithAccessToken(&gotwi.NewClientWithAccessTokenInput{
		HTTPClient:  a.httpClient,
		AccessToken: creds.BearerToken,
	})
	if err != nil {
		return nil, fmt.Errorf("create X client: %w", err)
	}
	return client, nil
}

// TestConnection calls the get-me endpoint; no tweet is created.
func (a *Adapter) TestConnection(ctx context.Context, bag fragout.Credentials) (*fragout.ConnectionInfo, error) {
	creds, err := parseCredentials(bag)
	if err != nil {
		return nil, err
	}

	client, err := a.client(creds)
	if err != nil {
		return nil, err
	}

	me, err := userlookup.GetMe(ctx, client, &userlookuptypes.GetMeInput{})
	if err != nil {
		return nil, classifyError(creds, err)
	}

	username := gotwi.StringValue(me.Data.Username)
	return &fragout.ConnectionInfo{
		Message: fmt.Sprintf("connected as @%s", username),
		Data: map[string]string{
			"username": username,
			"user_id":  gotwi.StringValue(me.Data.ID),
			"auth":     authScheme(creds),
		},
	}, nil
}

// Post publishes a tweet, uploading images through the v1.1 media endpoint
// when OAuth 1.0a credentials are present.
func (a *Adapter) Post(ctx context.Context, content fragout.PostContent, bag fragout.Credentials) (*fragout.PostResult, error) {
	creds, err := parseCredentials(bag)
	if err != nil {
		return nil, err
	}

	client, err := a.client(creds)
	if err != nil {
		return nil, err
	}

	var mediaIDs []string
	if len(content.Images) > 0 {
		if creds.hasOAuth1() {
			signer := newOAuth1Signer(creds.APIKey, creds.APISecret, creds.AccessToken, creds.AccessTokenSecret)
			for i, img := range content.Images {
				mediaID, err := a.uploadMedia(ctx, signer, img)
				if err != nil {
					logutil.Warnf("twitter: image %d/%d upload failed, continuing without it: %v", i+1, len(content.Images), err)
					continue
				}
				mediaIDs = append(mediaIDs, mediaID)
			}
			if len(mediaIDs) == 0 {
				logutil.Warnf("twitter: all %d image uploads failed, posting text only", len(content.Images))
			}
		} else {
			logutil.Warnf("twitter: media upload requires OAuth 1.0a credentials, posting text only")
		}
	}

	input := &managetweettypes.CreateInput{Text: gotwi.String(content.Text)}
	if len(mediaIDs) > 0 {
		input.Media = &managetweettypes.CreateInputMedia{MediaIDs: mediaIDs}
	}

	res, err := managetweet.Create(ctx, client, input)
	if err != nil {
		return nil, fmt.Errorf("post tweet: %w", classifyError(creds, err))
	}

	tweetID := gotwi.StringValue(res.Data.ID)
	return &fragout.PostResult{
		PostID: tweetID,
		URL:    "https://x.com/i/web/status/" + tweetID,
	}, nil
}

type uploadResponse struct {
	MediaIDString string `json:"media_id_string"`
	Error         string `json:"error"`
}

// uploadMedia pushes one image through the v1.1 media/upload.json endpoint.
// The multipart body contributes nothing to the OAuth signature; only the
// oauth_* parameters are signed.
func (a *Adapter) uploadMedia(ctx context.Context, signer *oauth1Signer, img fragout.Image) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("media", "media")
	if err != nil {
		return "", fmt.Errorf("build upload body: %w", err)
	}
	if _, err := part.Write(img.Data); err != nil {
		return "", fmt.Errorf("build upload body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("build upload body: %w", err)
	}

	header, err := signer.authorizationHeader(http.MethodPost, a.uploadURL, nil)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.uploadURL, &body)
	if err != nil {
		return "", fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Authorization", header)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload media: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read upload response: %w", err)
	}

	var parsed uploadResponse
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if json.Unmarshal(respBody, &parsed) == nil && parsed.Error != "" {
			return "", fmt.Errorf("upload media (status %d): %s", resp.StatusCode, parsed.Error)
		}
		return "", fmt.Errorf("upload media (status %d): %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("parse upload response: %w", err)
	}
	if parsed.MediaIDString == "" {
		return "", fmt.Errorf("upload response missing media id")
	}

	if alt := strings.TrimSpace(img.AltText); alt != "" {
		if err := a.setAltText(ctx, signer, parsed.MediaIDString, alt); err != nil {
			logutil.Warnf("twitter: alt text failed for media %s: %v", parsed.MediaIDString, err)
		}
	}

	logutil.Debugf("twitter: media uploaded: media_id=%s type=%s", parsed.MediaIDString, media.DetectMime(img.MimeType, img.Data))
	return parsed.MediaIDString, nil
}

func (a *Adapter) setAltText(ctx context.Context, signer *oauth1Signer, mediaID, alt string) error {
	payload := struct {
		MediaID string `json:"media_id"`
		AltText struct {
			Text string `json:"text"`
		} `json:"alt_text"`
	}{MediaID: mediaID}
	payload.AltText.Text = alt

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	header, err := signer.authorizationHeader(http.MethodPost, a.metadataURL, nil)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.metadataURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create metadata request: %w", err)
	}
	req.Header.Set("Authorization", header)
	req.Header.Set("Content-Type", "application/json;charset=UTF-8")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("set alt text: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("set alt text: status %d", resp.StatusCode)
	}
	return nil
}

func authScheme(creds credentials) string {
	if creds.hasOAuth1() {
		return "oauth1"
	}
	return "bearer"
}

// classifyError turns gotwi failures into actionable messages. The app-only
// 403 in particular is pattern-matched: its stock text does not mention that
// the fix is user-context credentials.
func classifyError(creds credentials, err error) error {
	var gwErr *gotwi.GotwiError
	if !errors.As(err, &gwErr) || gwErr == nil {
		return err
	}

	summary := summarizeGotwiError(gwErr)
	lower := strings.ToLower(summary)

	if !creds.hasOAuth1() && (strings.Contains(lower, "oauth2 app") ||
		strings.Contains(lower, "not permitted") ||
		strings.Contains(lower, "forbidden") ||
		strings.Contains(lower, "unsupported authentication")) {
		return fmt.Errorf("this Bearer Token looks app-only and cannot act as a user; supply OAuth 1.0a keys or a user-context token (%s)", summary)
	}
	if strings.Contains(lower, "unauthorized") || strings.Contains(lower, "invalid or expired token") ||
		strings.Contains(lower, "could not authenticate") {
		return fragout.AuthError{Platform: platformID, Reason: summary}
	}

	return fmt.Errorf("%s", summary)
}

func summarizeGotwiError(err *gotwi.GotwiError) string {
	if err == nil {
		return "unknown X API error"
	}

	parts := make([]string, 0, 4)
	if err.Title != "" {
		parts = append(parts, err.Title)
	}
	if err.Detail != "" {
		parts = append(parts, err.Detail)
	}
	for _, apiErr := range err.APIErrors {
		if apiErr.Message != "" {
			parts = append(parts, apiErr.Message)
		}
	}
	if len(parts) == 0 {
		if msg := err.Error(); msg != "" {
			parts = append(parts, msg)
		}
	}
	if len(parts) == 0 {
		parts = append(parts, "X API request failed")
	}

	return strings.Join(parts, "; ")
}
