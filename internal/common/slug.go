package common

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
)

// ProjectSlug derives the stable workspace slug for a root URL: lowercased
// host plus path, non-alphanumerics collapsed to single dashes.
func ProjectSlug(rootURL string) (string, error) {
	u, err := url.Parse(rootURL)
	if err != nil {
		return "", fmt.Errorf("invalid root url %q: %w", rootURL, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("root url %q has no host", rootURL)
	}
	raw := strings.ToLower(u.Host + u.Path)
	return Slugify(raw), nil
}

// Slugify lowercases the input and collapses every run of non-alphanumeric
// characters into a single dash, trimming leading/trailing dashes.
func Slugify(s string) string {
	var b strings.Builder
	lastDash := true // Suppress a leading dash
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastDash = false
		} else if !lastDash {
			b.WriteByte('-')
			lastDash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// ShortHash returns the first 8 hex characters of the SHA-256 of s. Used to
// disambiguate colliding page slugs inside a snapshot.
func ShortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:8]
}
