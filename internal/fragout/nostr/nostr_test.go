package nostr

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	"github.com/11bDev-FOB/fragout-sub000/internal/fragout"
	nostrlib "github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeSecretKey(t *testing.T) {
	t.Run("nsec and hex forms agree", func(t *testing.T) {
		hexKey := nostrlib.GeneratePrivateKey()
		nsec, err := nip19.EncodePrivateKey(hexKey)
		require.NoError(t, err)

		fromNsec, err := NormalizeSecretKey(nsec)
		require.NoError(t, err)
		fromHex, err := NormalizeSecretKey(hexKey)
		require.NoError(t, err)
		assert.Equal(t, hexKey, fromNsec)
		assert.Equal(t, fromHex, fromNsec)
	})

	t.Run("short hex is left-padded", func(t *testing.T) {
		key, err := NormalizeSecretKey("1a")
		require.NoError(t, err)
		assert.Len(t, key, 64)
		assert.True(t, strings.HasSuffix(key, "1a"))
		assert.True(t, strings.HasPrefix(key, "00"))
	})

	t.Run("uppercase hex and 0x prefix accepted", func(t *testing.T) {
		key, err := NormalizeSecretKey("0xABCDEF")
		require.NoError(t, err)
		assert.True(t, strings.HasSuffix(key, "abcdef"))
	})

	t.Run("rejects non-hex", func(t *testing.T) {
		_, err := NormalizeSecretKey("not-a-key")
		var verr fragout.ValidationError
		require.ErrorAs(t, err, &verr)
	})

	t.Run("rejects overlong hex", func(t *testing.T) {
		_, err := NormalizeSecretKey(strings.Repeat("a", 65))
		require.Error(t, err)
	})

	t.Run("rejects npub where nsec expected", func(t *testing.T) {
		hexKey := nostrlib.GeneratePrivateKey()
		pub, err := nostrlib.GetPublicKey(hexKey)
		require.NoError(t, err)
		npub, err := nip19.EncodePublicKey(pub)
		require.NoError(t, err)

		_, err = NormalizeSecretKey(npub)
		require.Error(t, err)

		normalized, err := NormalizePublicKey(npub)
		require.NoError(t, err)
		assert.Equal(t, pub, normalized)
	})
}

func TestParseRelayList(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", nil},
		{"single bare host", "relay.damus.io", []string{"wss://relay.damus.io"}},
		{"comma separated", "wss://a.example, b.example", []string{"wss://a.example", "wss://b.example"}},
		{"json array", `["wss://a.example","wss://b.example/"]`, []string{"wss://a.example", "wss://b.example"}},
		{"duplicates collapse", "wss://a.example wss://a.example/", []string{"wss://a.example"}},
		{"malformed json dropped", `["wss://a.example`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseRelayList(tt.in))
		})
	}
}

func TestResolveRelays(t *testing.T) {
	adapter := New([]string{"wss://fallback.example"})
	skHex := nostrlib.GeneratePrivateKey()

	t.Run("credential relays win", func(t *testing.T) {
		creds, err := parseCredentials(fragout.Credentials{
			"private_key": skHex,
			"relays":      "wss://mine.example",
		})
		require.NoError(t, err)
		got := adapter.resolveRelays(creds, fragout.PostContent{Metadata: map[string]string{"relays": "wss://hint.example"}})
		assert.Equal(t, []string{"wss://mine.example"}, got)
	})

	t.Run("request hint beats defaults", func(t *testing.T) {
		creds, err := parseCredentials(fragout.Credentials{"private_key": skHex})
		require.NoError(t, err)
		got := adapter.resolveRelays(creds, fragout.PostContent{Metadata: map[string]string{"relays": "wss://hint.example"}})
		assert.Equal(t, []string{"wss://hint.example"}, got)
	})

	t.Run("defaults last", func(t *testing.T) {
		creds, err := parseCredentials(fragout.Credentials{"private_key": skHex})
		require.NoError(t, err)
		got := adapter.resolveRelays(creds, fragout.PostContent{})
		assert.Equal(t, []string{"wss://fallback.example"}, got)
	})
}

func TestParseCredentials(t *testing.T) {
	skHex := nostrlib.GeneratePrivateKey()
	pub, err := nostrlib.GetPublicKey(skHex)
	require.NoError(t, err)

	t.Run("local key infers method and derives pubkey", func(t *testing.T) {
		creds, err := parseCredentials(fragout.Credentials{"private_key": skHex})
		require.NoError(t, err)
		assert.Equal(t, methodLocalKey, creds.Method)
		assert.Equal(t, pub, creds.PubKey)
	})

	t.Run("stored pubkey must match the key", func(t *testing.T) {
		otherPub, err := nostrlib.GetPublicKey(nostrlib.GeneratePrivateKey())
		require.NoError(t, err)
		_, err = parseCredentials(fragout.Credentials{"private_key": skHex, "pubkey": otherPub})
		var verr fragout.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Reason, "does not match")
	})

	t.Run("nip07 requires a pubkey", func(t *testing.T) {
		_, err := parseCredentials(fragout.Credentials{"method": "nip07"})
		var missing fragout.MissingFieldError
		require.ErrorAs(t, err, &missing)
		assert.Equal(t, []string{"pubkey"}, missing.Fields)
	})

	t.Run("empty bag falls back to nip07 and fails on pubkey", func(t *testing.T) {
		_, err := parseCredentials(fragout.Credentials{})
		var missing fragout.MissingFieldError
		require.ErrorAs(t, err, &missing)
	})

	t.Run("unknown method rejected", func(t *testing.T) {
		_, err := parseCredentials(fragout.Credentials{"method": "carrier-pigeon"})
		var verr fragout.ValidationError
		require.ErrorAs(t, err, &verr)
	})
}

func TestTestConnection(t *testing.T) {
	skHex := nostrlib.GeneratePrivateKey()
	pub, err := nostrlib.GetPublicKey(skHex)
	require.NoError(t, err)
	npub, err := nip19.EncodePublicKey(pub)
	require.NoError(t, err)

	info, err := New(nil).TestConnection(context.Background(), fragout.Credentials{"private_key": skHex})
	require.NoError(t, err)
	assert.Equal(t, npub, info.Data["npub"])
	assert.Equal(t, pub, info.Data["pubkey"])
	assert.Contains(t, info.Message, npub)
}

func TestPostPreflight(t *testing.T) {
	adapter := New([]string{"wss://fallback.example"})
	skHex := nostrlib.GeneratePrivateKey()
	pub, err := nostrlib.GetPublicKey(skHex)
	require.NoError(t, err)

	t.Run("nip07 cannot sign here", func(t *testing.T) {
		_, err := adapter.Post(context.Background(), fragout.PostContent{Text: "hi"}, fragout.Credentials{
			"method": "nip07",
			"pubkey": pub,
		})
		var verr fragout.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Reason, "browser extension")
	})

	t.Run("images without blossom server fail up front", func(t *testing.T) {
		content := fragout.PostContent{
			Text:   "hi",
			Images: []fragout.Image{{Data: []byte("img")}},
		}
		_, err := adapter.Post(context.Background(), content, fragout.Credentials{"private_key": skHex})
		var verr fragout.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Reason, "Blossom")
	})

	t.Run("no relays anywhere fails before signing", func(t *testing.T) {
		bare := New(nil)
		_, err := bare.Post(context.Background(), fragout.PostContent{Text: "hi"}, fragout.Credentials{"private_key": skHex})
		var verr fragout.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Reason, "relays")
	})
}

func decodeAuthEvent(t *testing.T, token string) nostrlib.Event {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString(token)
	require.NoError(t, err)
	var event nostrlib.Event
	require.NoError(t, json.Unmarshal(raw, &event))
	return event
}

func TestAuthorizerEvent(t *testing.T) {
	skHex := nostrlib.GeneratePrivateKey()
	creds, err := parseCredentials(fragout.Credentials{"private_key": skHex})
	require.NoError(t, err)

	token, err := New(nil).authorizer(creds)("f" + strings.Repeat("0", 63))
	require.NoError(t, err)

	event := decodeAuthEvent(t, token)
	assert.Equal(t, blossomAuthKind, event.Kind)
	assert.Equal(t, creds.PubKey, event.PubKey)
	ok, err := event.CheckSignature()
	require.NoError(t, err)
	assert.True(t, ok)

	tags := map[string]string{}
	for _, tag := range event.Tags {
		if len(tag) == 2 {
			tags[tag[0]] = tag[1]
		}
	}
	assert.Equal(t, "upload", tags["t"])
	assert.Equal(t, "f"+strings.Repeat("0", 63), tags["x"])
	assert.NotEmpty(t, tags["expiration"])
}
