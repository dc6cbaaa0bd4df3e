package bluesky

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/11bDev-FOB/fragout-sub000/internal/fragout"
	"github.com/11bDev-FOB/fragout-sub000/internal/fragout/media"
	"github.com/11bDev-FOB/fragout-sub000/internal/logutil"
	"github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/api/bsky"
	lexutil "github.com/bluesky-social/indigo/lex/util"
	"github.com/bluesky-social/indigo/xrpc"
)

const (
	platformID     = "bluesky"
	defaultPDSURL  = "https://bsky.social"
	requestTimeout = 30 * time.Second

	// maxImageBytes is the PDS blob ceiling; larger images are re-encoded
	// client-side before upload.
	maxImageBytes = 976560
)

// Adapter posts to Bluesky over the AT Protocol: a session exchange with
// handle and app-password, then authenticated XRPC calls.
type Adapter struct {
	pdsURL string
}

// New constructs the Bluesky adapter. An empty pdsURL selects bsky.social.
func New(pdsURL string) *Adapter {
	if strings.TrimSpace(pdsURL) == "" {
		pdsURL = defaultPDSURL
	}
	return &Adapter{pdsURL: strings.TrimRight(pdsURL, "/")}
}

// Descriptor returns the platform metadata.
func (a *Adapter) Descriptor() fragout.Platform {
	return fragout.Platform{ID: platformID, Name: "Bluesky", RequiresAuth: true}
}

type credentials struct {
	Handle      string
	AppPassword string
	PDSURL      string
}

func parseCredentials(bag fragout.Credentials, defaultPDS string) (credentials, error) {
	creds := credentials{
		Handle:      strings.TrimSpace(bag["handle"]),
		AppPassword: strings.TrimSpace(bag["appPassword"]),
		PDSURL:      strings.TrimSpace(bag["pds_url"]),
	}
	if creds.AppPassword == "" {
		// Legacy bags used snake_case.
		creds.AppPassword = strings.TrimSpace(bag["app_password"])
	}

	var missing []string
	if creds.Handle == "" {
		missing = append(missing, "handle")
	}
	if creds.AppPassword == "" {
		missing = append(missing, "appPassword")
	}
	if len(missing) > 0 {
		return credentials{}, fragout.MissingFieldError{Platform: platformID, Fields: missing}
	}

	creds.Handle = NormalizeHandle(creds.Handle)
	if creds.PDSURL == "" {
		creds.PDSURL = defaultPDS
	}
	return creds, nil
}

// NormalizeHandle qualifies a bare handle with the bsky.social domain;
// handles that already carry a domain are left unchanged.
func NormalizeHandle(handle string) string {
	h := strings.TrimPrefix(strings.TrimSpace(handle), "@")
	if h == "" {
		return h
	}
	if !strings.Contains(h, ".") {
		return h + ".bsky.social"
	}
	return h
}

// createSession exchanges handle and app-password for a short-lived access
// JWT and returns the authenticated client.
func (a *Adapter) createSession(ctx context.Context, creds credentials) (*xrpc.Client, error) {
	userAgent := "fragout/1"
	client := &xrpc.Client{
		Client:    &http.Client{Timeout: requestTimeout},
		Host:      creds.PDSURL,
		UserAgent: &userAgent,
	}

	session, err := atproto.ServerCreateSession(ctx, client, &atproto.ServerCreateSession_Input{
		Identifier: creds.Handle,
		Password:   creds.AppPassword,
	})
	if err != nil {
		return nil, classifyError(creds, err)
	}

	client.Auth = &xrpc.AuthInfo{
		AccessJwt:  session.AccessJwt,
		RefreshJwt: session.RefreshJwt,
		Handle:     session.Handle,
		Did:        session.Did,
	}
	return client, nil
}

// TestConnection performs the session exchange only; no record is created.
func (a *Adapter) TestConnection(ctx context.Context, bag fragout.Credentials) (*fragout.ConnectionInfo, error) {
	creds, err := parseCredentials(bag, a.pdsURL)
	if err != nil {
		return nil, err
	}

	client, err := a.createSession(ctx, creds)
	if err != nil {
		return nil, err
	}

	return &fragout.ConnectionInfo{
		Message: fmt.Sprintf("connected as @%s", client.Auth.Handle),
		Data: map[string]string{
			"handle": client.Auth.Handle,
			"did":    client.Auth.Did,
		},
	}, nil
}

// Post publishes a feed post, embedding whichever images survive compression
// and blob upload.
func (a *Adapter) Post(ctx context.Context, content fragout.PostContent, bag fragout.Credentials) (*fragout.PostResult, error) {
	creds, err := parseCredentials(bag, a.pdsURL)
	if err != nil {
		return nil, err
	}

	client, err := a.createSession(ctx, creds)
	if err != nil {
		return nil, err
	}

	post := &bsky.FeedPost{
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Text:      content.Text,
	}

	var images []*bsky.EmbedImages_Image
	for i, img := range content.Images {
		blob, err := a.uploadImage(ctx, client, img)
		if err != nil {
			logutil.Warnf("bluesky: image %d/%d upload failed, continuing without it: %v", i+1, len(content.Images), err)
			continue
		}
		images = append(images, &bsky.EmbedImages_Image{Alt: img.AltText, Image: blob})
	}
	if len(content.Images) > 0 && len(images) == 0 {
		logutil.Warnf("bluesky: all %d image uploads failed, posting text only", len(content.Images))
	}
	if len(images) > 0 {
		post.Embed = &bsky.FeedPost_Embed{
			EmbedImages: &bsky.EmbedImages{Images: images},
		}
	}

	resp, err := atproto.RepoCreateRecord(ctx, client, &atproto.RepoCreateRecord_Input{
		Collection: "app.bsky.feed.post",
		Repo:       client.Auth.Did,
		Record:     &lexutil.LexiconTypeDecoder{Val: post},
	})
	if err != nil {
		return nil, fmt.Errorf("create record: %w", classifyError(creds, err))
	}

	return &fragout.PostResult{
		PostID: resp.Uri,
		URL:    postURL(client.Auth.Handle, resp.Uri),
	}, nil
}

func (a *Adapter) uploadImage(ctx context.Context, client *xrpc.Client, img fragout.Image) (*lexutil.LexBlob, error) {
	data, _, err := media.EnsureUnder(img.Data, img.MimeType, maxImageBytes)
	if err != nil {
		return nil, err
	}

	resp, err := atproto.RepoUploadBlob(ctx, client, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("upload blob: %w", err)
	}
	if resp.Blob == nil {
		return nil, fmt.Errorf("upload blob: empty response")
	}
	return resp.Blob, nil
}

// postURL derives the human-navigable permalink from the record's AT URI
// (at://did/app.bsky.feed.post/rkey).
func postURL(handle, uri string) string {
	parts := strings.Split(strings.TrimPrefix(uri, "at://"), "/")
	if len(parts) < 3 {
		return ""
	}
	return fmt.Sprintf("https://bsky.app/profile/%s/post/%s", handle, parts[len(parts)-1])
}

func classifyError(creds credentials, err error) error {
	var xe *xrpc.Error
	if errors.As(err, &xe) {
		switch {
		case xe.StatusCode == http.StatusUnauthorized:
			return fragout.AuthError{Platform: platformID, Reason: fmt.Sprintf("login rejected for %s (check the app-password, not the account password)", creds.Handle)}
		case xe.StatusCode == http.StatusNotFound:
			return fmt.Errorf("no AT Protocol service at %s: %w", creds.PDSURL, err)
		case xe.StatusCode >= 500:
			return fmt.Errorf("%s is having problems (status %d): %w", creds.PDSURL, xe.StatusCode, err)
		}
	}
	return err
}
