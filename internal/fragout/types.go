package fragout

import "context"

// Platform describes a registered posting target.
type Platform struct {
	ID           string
	Name         string
	RequiresAuth bool
}

// Image is an inline image payload attached to a post.
type Image struct {
	Data     []byte
	MimeType string
	AltText  string
}

// PostContent is the message payload shared across all platforms. It is
// owned by the caller that builds it; adapters derive local copies when they
// need to alter text (e.g. appending uploaded media URLs) and never mutate
// the original.
type PostContent struct {
	Text     string
	Images   []Image
	Metadata map[string]string
}

// Credentials is the opaque per-platform credential bag handed to an
// adapter. Field names are platform-specific; each adapter validates its own
// subset before touching the network.
type Credentials map[string]string

// PostResult reports a successful publish on one platform.
type PostResult struct {
	PostID string
	URL    string
}

// ConnectionInfo reports a successful connection test, with enough platform
// data to show the user what they connected to.
type ConnectionInfo struct {
	Message string
	Data    map[string]string
}

// Poster abstracts a social network that can publish content.
type Poster interface {
	// Descriptor returns the platform's static metadata.
	Descriptor() Platform

	// TestConnection performs a lightweight read-only call to confirm the
	// credential bag is well-formed and accepted by the remote service.
	// It must not create any remote side effect.
	TestConnection(ctx context.Context, creds Credentials) (*ConnectionInfo, error)

	// Post publishes the content. Partial media failure degrades to a
	// text-only post rather than failing the publish.
	Post(ctx context.Context, content PostContent, creds Credentials) (*PostResult, error)
}
