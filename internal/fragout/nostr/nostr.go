package nostr

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/11bDev-FOB/fragout-sub000/internal/fragout"
	"github.com/11bDev-FOB/fragout-sub000/internal/fragout/media"
	"github.com/11bDev-FOB/fragout-sub000/internal/logutil"
	nostrlib "github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
)

const (
	platformID = "nostr"

	relayTimeout   = 10 * time.Second
	requestTimeout = 30 * time.Second

	methodLocalKey = "private_key"
	methodNIP07    = "nip07"

	// blossomAuthKind is the upload authorization event kind one Blossom
	// server variant expects. Reproduced as-is; compatibility depends on
	// matching that server exactly.
	blossomAuthKind = 24242
	blossomAuthTTL  = 5 * time.Minute
)

// Adapter publishes kind-1 notes to a set of relays, signing with a locally
// held private key. NIP-07 bags identify the user but cannot sign here: the
// extension holding the key lives in the browser.
type Adapter struct {
	defaultRelays []string
	httpClient    *http.Client
}

// New constructs the Nostr adapter with fallback relays for bags that carry
// none of their own.
func New(defaultRelays []string) *Adapter {
	return &Adapter{
		defaultRelays: defaultRelays,
		httpClient:    &http.Client{Timeout: requestTimeout},
	}
}

// Descriptor returns the platform metadata.
func (a *Adapter) Descriptor() fragout.Platform {
	return fragout.Platform{ID: platformID, Name: "Nostr", RequiresAuth: true}
}

type credentials struct {
	Method        string
	PubKey        string
	SecretKey     string
	BlossomServer string
	Relays        []string
}

func parseCredentials(bag fragout.Credentials) (credentials, error) {
	creds := credentials{
		Method:        strings.TrimSpace(strings.ToLower(bag["method"])),
		BlossomServer: strings.TrimSpace(bag["blossom_server"]),
		Relays:        parseRelayList(bag["relays"]),
	}

	rawSecret := strings.TrimSpace(bag["private_key"])
	rawPub := strings.TrimSpace(bag["pubkey"])
	if creds.Method == "" {
		if rawSecret != "" {
			creds.Method = methodLocalKey
		} else {
			creds.Method = methodNIP07
		}
	}

	switch creds.Method {
	case methodLocalKey:
		if rawSecret == "" {
			return credentials{}, fragout.MissingFieldError{Platform: platformID, Fields: []string{"private_key"}}
		}
		sk, err := NormalizeSecretKey(rawSecret)
		if err != nil {
			return credentials{}, err
		}
		creds.SecretKey = sk

		pk, err := nostrlib.GetPublicKey(sk)
		if err != nil {
			return credentials{}, fragout.ValidationError{Platform: platformID, Reason: fmt.Sprintf("derive pubkey: %v", err)}
		}
		if rawPub != "" {
			stored, err := NormalizePublicKey(rawPub)
			if err != nil {
				return credentials{}, err
			}
			if stored != pk {
				return credentials{}, fragout.ValidationError{Platform: platformID, Reason: "stored pubkey does not match the private key"}
			}
		}
		creds.PubKey = pk

	case methodNIP07:
		if rawPub == "" {
			return credentials{}, fragout.MissingFieldError{Platform: platformID, Fields: []string{"pubkey"}}
		}
		pk, err := NormalizePublicKey(rawPub)
		if err != nil {
			return credentials{}, err
		}
		creds.PubKey = pk

	default:
		return credentials{}, fragout.ValidationError{Platform: platformID, Reason: fmt.Sprintf("unknown signing method %q", creds.Method)}
	}

	return creds, nil
}

// parseRelayList accepts a JSON array or a comma/whitespace separated list
// and normalizes each entry to a wss:// URL.
func parseRelayList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	var entries []string
	if strings.HasPrefix(raw, "[") {
		if err := json.Unmarshal([]byte(raw), &entries); err != nil {
			return nil
		}
	} else {
		entries = strings.FieldsFunc(raw, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\n' || r == '\t'
		})
	}

	out := make([]string, 0, len(entries))
	seen := map[string]struct{}{}
	for _, e := range entries {
		relay := strings.TrimRight(strings.TrimSpace(e), "/")
		if relay == "" {
			continue
		}
		if !strings.Contains(relay, "://") {
			relay = "wss://" + relay
		}
		if _, ok := seen[relay]; ok {
			continue
		}
		seen[relay] = struct{}{}
		out = append(out, relay)
	}
	return out
}

func (a *Adapter) resolveRelays(creds credentials, content fragout.PostContent) []string {
	if len(creds.Relays) > 0 {
		return creds.Relays
	}
	if hint := parseRelayList(content.Metadata["relays"]); len(hint) > 0 {
		return hint
	}
	return a.defaultRelays
}

// TestConnection validates the key material locally; relays see nothing.
func (a *Adapter) TestConnection(ctx context.Context, bag fragout.Credentials) (*fragout.ConnectionInfo, error) {
	creds, err := parseCredentials(bag)
	if err != nil {
		return nil, err
	}

	npub, err := nip19.EncodePublicKey(creds.PubKey)
	if err != nil {
		return nil, fragout.ValidationError{Platform: platformID, Reason: fmt.Sprintf("encode npub: %v", err)}
	}

	msg := fmt.Sprintf("key material valid for %s", npub)
	if creds.Method == methodNIP07 {
		msg += " (NIP-07: signing happens in the browser extension)"
	}

	return &fragout.ConnectionInfo{
		Message: msg,
		Data: map[string]string{
			"pubkey": creds.PubKey,
			"npub":   npub,
			"method": creds.Method,
		},
	}, nil
}

// Post signs a kind-1 note and broadcasts it to every resolved relay,
// tolerating individual relay failures. Images are pushed to the configured
// Blossom server first and their URLs appended to the note text; Nostr has
// no attachment model at this layer.
func (a *Adapter) Post(ctx context.Context, content fragout.PostContent, bag fragout.Credentials) (*fragout.PostResult, error) {
	creds, err := parseCredentials(bag)
	if err != nil {
		return nil, err
	}

	if creds.Method == methodNIP07 {
		return nil, fragout.ValidationError{
			Platform: platformID,
			Reason:   "NIP-07 signing lives in the browser extension; store a private key to post from here",
		}
	}

	// Fail before any relay or upload work: silently dropping images would
	// be worse than an error.
	if len(content.Images) > 0 && creds.BlossomServer == "" {
		return nil, fragout.ValidationError{
			Platform: platformID,
			Reason:   "images require a Blossom media server (set blossom_server)",
		}
	}

	relays := a.resolveRelays(creds, content)
	if len(relays) == 0 {
		return nil, fragout.ValidationError{Platform: platformID, Reason: "no relays configured"}
	}

	text := content.Text
	if len(content.Images) > 0 {
		urls := a.uploadImages(ctx, creds, content.Images)
		for _, u := range urls {
			text += "\n" + u
		}
		if len(urls) == 0 {
			logutil.Warnf("nostr: all %d image uploads failed, posting text only", len(content.Images))
		}
	}

	event := nostrlib.Event{
		PubKey:    creds.PubKey,
		CreatedAt: nostrlib.Now(),
		Kind:      nostrlib.KindTextNote,
		Tags:      nostrlib.Tags{},
		Content:   text,
	}
	if err := event.Sign(creds.SecretKey); err != nil {
		return nil, fmt.Errorf("sign event: %w", err)
	}

	published := a.broadcast(ctx, relays, event)
	if published == 0 {
		return nil, fmt.Errorf("failed to publish to any relay (%d attempted)", len(relays))
	}
	logutil.Debugf("nostr: event %s accepted by %d/%d relays", event.ID, published, len(relays))

	url := ""
	if note, err := nip19.EncodeNote(event.ID); err == nil {
		url = "https://njump.me/" + note
	}

	return &fragout.PostResult{PostID: event.ID, URL: url}, nil
}

// broadcast opens a short-lived connection to each relay, sends the event,
// and closes. Relay failures are isolated from one another.
func (a *Adapter) broadcast(ctx context.Context, relays []string, event nostrlib.Event) int {
	published := 0
	for _, url := range relays {
		if err := a.publishOne(ctx, url, event); err != nil {
			logutil.Warnf("nostr: relay %s rejected event: %v", url, err)
			continue
		}
		published++
	}
	return published
}

func (a *Adapter) publishOne(ctx context.Context, url string, event nostrlib.Event) error {
	relayCtx, cancel := context.WithTimeout(ctx, relayTimeout)
	defer cancel()

	relay, err := nostrlib.RelayConnect(relayCtx, url)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer relay.Close()

	if err := relay.Publish(relayCtx, event); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// uploadImages pushes each image to the Blossom server, collecting the URLs
// of the ones that made it.
func (a *Adapter) uploadImages(ctx context.Context, creds credentials, images []fragout.Image) []string {
	var urls []string
	for i, img := range images {
		url, err := media.UploadToBlossom(ctx, a.httpClient, creds.BlossomServer, img.Data, img.MimeType, a.authorizer(creds))
		if err != nil {
			logutil.Warnf("nostr: image %d/%d upload failed, continuing without it: %v", i+1, len(images), err)
			continue
		}
		urls = append(urls, url)
	}
	return urls
}

// authorizer builds and signs the kind-24242 upload authorization event for
// one payload hash, returning its base64 JSON for the Authorization header.
func (a *Adapter) authorizer(creds credentials) media.BlossomAuthorizer {
	return func(sha256Hex string) (string, error) {
		event := nostrlib.Event{
			PubKey:    creds.PubKey,
			CreatedAt: nostrlib.Now(),
			Kind:      blossomAuthKind,
			Tags: nostrlib.Tags{
				{"t", "upload"},
				{"x", sha256Hex},
				{"expiration", fmt.Sprint(time.Now().Add(blossomAuthTTL).Unix())},
			},
			Content: "upload",
		}
		if err := event.Sign(creds.SecretKey); err != nil {
			return "", fmt.Errorf("sign authorization event: %w", err)
		}

		encoded, err := json.Marshal(event)
		if err != nil {
			return "", fmt.Errorf("encode authorization event: %w", err)
		}
		return base64.StdEncoding.EncodeToString(encoded), nil
	}
}
