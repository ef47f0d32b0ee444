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
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
	"golang.org/x/term"
)

// Options describes one artifact download: model weights or a tool archive.
// The expected checksum can be pinned directly or resolved from a manifest
// at ChecksumURL; when both are empty the payload is not verified.
type Options struct {
	URL            string
	Destination    string
	Description    string
	ExpectedSHA256 string
	ChecksumURL    string
	Retries        int
	NoProgress     bool
	HTTPClient     *http.Client
	Logger         *zap.Logger
}

func (o *Options) withDefaults() {
	if o.Retries <= 0 {
		o.Retries = 3
	}
	if o.Description == "" {
		o.Description = "downloading"
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: 15 * time.Minute}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// File downloads opts.URL into opts.Destination through a .part temp file
// that is renamed into place only after the whole payload arrived and its
// checksum matched. Failed attempts are retried a bounded number of times
// and leave no partial file behind.
func File(ctx context.Context, opts Options) error {
	if opts.URL == "" {
		return errors.New("download URL is required")
	}
	if opts.Destination == "" {
		return errors.New("destination path is required")
	}
	opts.withDefaults()

	expected, err := expectedChecksum(ctx, opts)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(opts.Destination), 0o755); err != nil {
		return fmt.Errorf("create destination directory: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= opts.Retries; attempt++ {
		if attempt > 1 {
			opts.Logger.Warn("retrying download",
				zap.Int("attempt", attempt),
				zap.Int("max", opts.Retries),
				zap.String("url", opts.URL))
			if err := waitRetry(ctx, attempt); err != nil {
				return err
			}
		}

		lastErr = fetchArtifact(ctx, opts, expected)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return lastErr
		}
	}

	return lastErr
}

func expectedChecksum(ctx context.Context, opts Options) (string, error) {
	if pinned := normalizeChecksum(opts.ExpectedSHA256); pinned != "" {
		return pinned, nil
	}
	if opts.ChecksumURL == "" {
		return "", nil
	}

	resolved, err := ResolveExpectedChecksum(ctx, opts.ChecksumURL, filepath.Base(opts.Destination), opts.HTTPClient)
	if err != nil {
		return "", fmt.Errorf("fetch checksum: %w", err)
	}
	return resolved, nil
}

// fetchArtifact performs one download attempt. The temp file is only created
// after the server answered 200, so a dead URL does not litter the
// destination directory.
func fetchArtifact(ctx context.Context, opts Options, expected string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, opts.URL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "tubescribe/1")

	resp, err := opts.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	partPath := opts.Destination + ".part"
	part, err := os.Create(partPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	committed := false
	defer func() {
		_ = part.Close()
		if !committed {
			_ = os.Remove(partPath)
		}
	}()

	hash := sha256.New()
	sinks := []io.Writer{part, hash}

	bar := newByteBar(opts, resp.ContentLength)
	if bar != nil {
		sinks = append(sinks, bar)
	}

	if _, err := io.Copy(io.MultiWriter(sinks...), resp.Body); err != nil {
		return fmt.Errorf("download body: %w", err)
	}
	if bar != nil {
		_ = bar.Finish()
	}

	if err := part.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}

	actual := hex.EncodeToString(hash.Sum(nil))
	if expected != "" && actual != expected {
		return fmt.Errorf("checksum mismatch: expected %s, got %s", expected, actual)
	}

	if err := part.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(partPath, opts.Destination); err != nil {
		return fmt.Errorf("move temp file into destination: %w", err)
	}

	committed = true
	return nil
}

// waitRetry sleeps a linearly growing backoff, aborting early when the
// context is canceled.
func waitRetry(ctx context.Context, attempt int) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Duration(attempt) * 300 * time.Millisecond):
		return nil
	}
}

func newByteBar(opts Options, total int64) *progressbar.ProgressBar {
	if opts.NoProgress || total <= 0 {
		return nil
	}
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		return nil
	}

	return progressbar.NewOptions64(
		total,
		progressbar.OptionSetDescription(opts.Description),
		progressbar.OptionSetWidth(20),
		progressbar.OptionShowBytes(true),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionClearOnFinish(),
	)
}
