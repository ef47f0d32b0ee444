package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"
)

var sha256Pattern = regexp.MustCompile(`(?i)\b([a-f0-9]{64})\b`)

// VerifyFileChecksum hashes path and compares against expectedSHA256.
// An empty expectation passes.
func VerifyFileChecksum(path, expectedSHA256 string) error {
	expected := normalizeChecksum(expectedSHA256)
	if expected == "" {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open file for checksum: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return fmt.Errorf("hash file: %w", err)
	}

	actual := hex.EncodeToString(h.Sum(nil))
	if actual != expected {
		return fmt.Errorf("checksum mismatch: expected %s, got %s", expected, actual)
	}
	return nil
}

// ResolveExpectedChecksum fetches a checksum manifest and extracts the
// SHA-256 entry for fileName.
func ResolveExpectedChecksum(ctx context.Context, checksumURL, fileName string, client *http.Client) (string, error) {
	if strings.TrimSpace(checksumURL) == "" {
		return "", errors.New("checksum URL is required")
	}
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, checksumURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	manifest, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	return ParseChecksum(manifest, fileName)
}

// ParseChecksum scans manifest content for a 64-hex-digit checksum. Lines
// mentioning fileName win over the rest, so sha256sum-style manifests with
// multiple artifacts resolve to the right entry.
func ParseChecksum(content []byte, fileName string) (string, error) {
	lines := strings.Split(string(content), "\n")

	if fileName != "" {
		for _, line := range lines {
			if !strings.Contains(line, fileName) {
				continue
			}
			if sum := firstChecksumIn(line); sum != "" {
				return sum, nil
			}
		}
	}

	for _, line := range lines {
		if sum := firstChecksumIn(line); sum != "" {
			return sum, nil
		}
	}

	return "", errors.New("sha256 checksum not found")
}

func firstChecksumIn(line string) string {
	match := sha256Pattern.FindStringSubmatch(line)
	if len(match) < 2 {
		return ""
	}
	return strings.ToLower(match[1])
}

func normalizeChecksum(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
