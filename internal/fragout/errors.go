package fragout

import (
	"fmt"
	"strings"
)

// MissingFieldError is returned when a credential bag lacks required fields.
// Adapters return it before any network call is made.
type MissingFieldError struct {
	Platform string
	Fields   []string
}

func (e MissingFieldError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("%s credentials not configured", e.Platform)
	}
	return fmt.Sprintf("%s credentials not configured (missing %s)", e.Platform, strings.Join(e.Fields, ", "))
}

// ValidationError captures platform-specific validation issues.
type ValidationError struct {
	Platform string
	Reason   string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s validation failed: %s", e.Platform, e.Reason)
}

// AuthError is a remote authentication rejection (401-equivalent), carrying
// an actionable message naming the likely cause.
type AuthError struct {
	Platform string
	Reason   string
}

func (e AuthError) Error() string {
	return fmt.Sprintf("%s authentication failed: %s", e.Platform, e.Reason)
}

// UnsupportedPlatformError rejects a dispatch that names a platform id with
// no registered adapter. It is a whole-request error, not a per-platform one.
type UnsupportedPlatformError struct {
	ID string
}

func (e UnsupportedPlatformError) Error() string {
	return fmt.Sprintf("unsupported platform %q", e.ID)
}
