package crawler

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// DefaultMaxURLLength is the identity capacity used when none is configured.
const DefaultMaxURLLength = 6000

// ErrTooLong is returned when a URL exceeds the identity capacity.
var ErrTooLong = errors.New("url exceeds identity capacity")

// Identity is the graph key for a URL. Two identities are equal iff their
// content is equal, so Identity is safe to use as a map key.
type Identity struct {
	raw string
}

// NewIdentity validates raw against limit and returns its identity.
// A limit <= 0 falls back to DefaultMaxURLLength.
func NewIdentity(raw string, limit int) (Identity, error) {
	if limit <= 0 {
		limit = DefaultMaxURLLength
	}
	if n := len(raw); n > limit {
		return Identity{}, fmt.Errorf("%w: %d > %d", ErrTooLong, n, limit)
	}
	return Identity{raw: raw}, nil
}

// String returns the original URL content.
func (id Identity) String() string {
	return id.raw
}

// Len reports the logical length of the URL.
func (id Identity) Len() int {
	return len(id.raw)
}

// NormalizeURL standardizes a URL to avoid duplicates.
// It lowercases the scheme and host, removes default ports, sorts query
// parameters and removes fragments.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" && strings.HasSuffix(u.Host, ":80") {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" && strings.HasSuffix(u.Host, ":443") {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""
	u.RawFragment = ""

	if u.RawQuery != "" {
		u.RawQuery = u.Query().Encode()
	}

	return u.String(), nil
}
