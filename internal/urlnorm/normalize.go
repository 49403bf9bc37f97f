// Package urlnorm validates raw URL input and derives the canonical form used
// as the identity key for a tracked page.
package urlnorm

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidURL is returned when input cannot be canonicalized. Errors from
// Normalize wrap it, so callers match with errors.Is.
var ErrInvalidURL = errors.New("invalid url")

// Normalize validates a raw URL string and returns its canonical form:
// scheme://host[:port], with path, query and fragment dropped. Scheme and
// host are lowercased per standard URL equivalence rules, so two spellings of
// the same authority map to the same canonical string. A single-label host
// such as "http://localhost" is accepted.
func Normalize(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty input", ErrInvalidURL)
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("%w: scheme must be http or https", ErrInvalidURL)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidURL)
	}

	return scheme + "://" + strings.ToLower(u.Host), nil
}
