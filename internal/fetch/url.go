package fetch

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ErrInvalidURL marks input that is not a recognized YouTube video URL.
// Validation happens before any network or filesystem side effect.
var ErrInvalidURL = errors.New("not a recognized YouTube URL")

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// ValidateURL checks that raw is a supported YouTube video URL.
func ValidateURL(raw string) error {
	_, err := ExtractVideoID(raw)
	return err
}

// ExtractVideoID pulls the 11-character video ID out of the supported URL
// shapes: watch, shorts, live, embed paths on youtube.com hosts, and
// youtu.be short links.
func ExtractVideoID(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty input", ErrInvalidURL)
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, parsed.Scheme)
	}

	host := strings.ToLower(parsed.Hostname())
	id := ""

	switch host {
	case "youtu.be":
		id = firstPathSegment(parsed.Path)
	case "youtube.com", "www.youtube.com", "m.youtube.com", "music.youtube.com":
		id = idFromYouTubePath(parsed)
	default:
		return "", fmt.Errorf("%w: unsupported host %q", ErrInvalidURL, host)
	}

	if !videoIDPattern.MatchString(id) {
		return "", fmt.Errorf("%w: no video ID in %q", ErrInvalidURL, trimmed)
	}

	return id, nil
}

func idFromYouTubePath(parsed *url.URL) string {
	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		return ""
	}

	switch segments[0] {
	case "watch":
		return parsed.Query().Get("v")
	case "shorts", "live", "embed":
		if len(segments) >= 2 {
			return segments[1]
		}
	}

	return ""
}

func firstPathSegment(path string) string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return ""
	}
	if idx := strings.IndexByte(trimmed, '/'); idx >= 0 {
		return trimmed[:idx]
	}
	return trimmed
}
