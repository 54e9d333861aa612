// Package mediaid extracts the 11-character content id from media page URLs.
package mediaid

import (
	"errors"
	"regexp"
	"strings"
)

var ErrNoContentID = errors.New("no content id in url")

var (
	urlPattern  = regexp.MustCompile(`(?:v=|youtu\.be/|shorts/|embed/)([a-zA-Z0-9_-]{11})`)
	barePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`)
)

// Extract pulls the content id out of a watch, short-link, shorts, or embed
// URL. A bare 11-character id is accepted as-is.
func Extract(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrNoContentID
	}

	if barePattern.MatchString(raw) {
		return raw, nil
	}

	if m := urlPattern.FindStringSubmatch(raw); m != nil {
		return m[1], nil
	}

	return "", ErrNoContentID
}
