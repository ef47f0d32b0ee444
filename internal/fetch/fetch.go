package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lrstanley/go-ytdlp"
	"go.uber.org/zap"
)

const (
	DefaultFormat  = "mp3"
	DefaultQuality = "192K"
)

// Request describes one audio extraction.
type Request struct {
	URL     string
	Format  string
	Quality string

	// FFmpegDir points yt-dlp at a specific ffmpeg install. When empty the
	// Fetcher default applies, and failing that yt-dlp searches PATH.
	FFmpegDir string

	// OnProgress receives byte-level download progress when set.
	OnProgress func(Progress)
}

// Progress is a snapshot of yt-dlp's download state.
type Progress struct {
	Status          string
	DownloadedBytes int64
	TotalBytes      int64
	Percent         float64
}

// Result is a downloaded audio artifact inside a per-job workspace. The
// caller moves AudioPath to its final destination and then calls Cleanup.
type Result struct {
	AudioPath     string
	VideoID       string
	Title         string
	Duration      time.Duration
	SuggestedName string

	workDir string
}

// Cleanup removes the per-job workspace and everything left in it.
func (r *Result) Cleanup() error {
	if r == nil || r.workDir == "" {
		return nil
	}
	if err := os.RemoveAll(r.workDir); err != nil {
		return err
	}
	r.workDir = ""
	return nil
}

// Fetcher downloads YouTube audio through yt-dlp. The yt-dlp binary itself is
// downloaded on first use.
type Fetcher struct {
	WorkRoot  string
	FFmpegDir string
	Logger    *zap.Logger

	installOnce sync.Once
	installErr  error
	installFn   func(ctx context.Context) error
	downloadFn  func(ctx context.Context, req Request, destDir string) (string, error)
}

func New(workRoot, ffmpegDir string, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}

	f := &Fetcher{
		WorkRoot:  workRoot,
		FFmpegDir: ffmpegDir,
		Logger:    logger,
	}
	f.installFn = func(ctx context.Context) error {
		_, err := ytdlp.Install(ctx, nil)
		return err
	}
	f.downloadFn = f.runYTDLP
	return f
}

// EnsureInstalled downloads the yt-dlp binary if it is not cached yet.
func (f *Fetcher) EnsureInstalled(ctx context.Context) error {
	f.installOnce.Do(func() {
		f.Logger.Debug("ensuring yt-dlp is installed")
		f.installErr = f.installFn(ctx)
	})
	if f.installErr != nil {
		return fmt.Errorf("install yt-dlp: %w", f.installErr)
	}
	return nil
}

// Fetch validates the URL, downloads the best audio stream, and converts it
// to the requested format inside a fresh workspace directory. On failure no
// workspace is left behind.
func (f *Fetcher) Fetch(ctx context.Context, req Request) (*Result, error) {
	videoID, err := ExtractVideoID(req.URL)
	if err != nil {
		return nil, err
	}

	if req.Format == "" {
		req.Format = DefaultFormat
	}
	if req.Quality == "" {
		req.Quality = DefaultQuality
	}

	if err := f.EnsureInstalled(ctx); err != nil {
		return nil, err
	}

	workRoot := f.WorkRoot
	if workRoot == "" {
		workRoot = os.TempDir()
	}
	workDir := filepath.Join(workRoot, "tubescribe-"+uuid.NewString())
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("create job workspace: %w", err)
	}

	f.Logger.Info("downloading audio", zap.String("video_id", videoID), zap.String("format", req.Format))

	stdout, err := f.downloadFn(ctx, req, workDir)
	if err != nil {
		_ = os.RemoveAll(workDir)
		return nil, fmt.Errorf("yt-dlp download failed: %w", err)
	}

	audioPath, err := locateAudioFile(workDir, req.Format)
	if err != nil {
		_ = os.RemoveAll(workDir)
		return nil, err
	}

	meta := parseMetadata(stdout)
	title := meta.Title
	if title == "" {
		title = videoID
	}

	return &Result{
		AudioPath:     audioPath,
		VideoID:       videoID,
		Title:         title,
		Duration:      time.Duration(meta.DurationSeconds * float64(time.Second)),
		SuggestedName: SanitizeFilename(title) + "." + req.Format,
		workDir:       workDir,
	}, nil
}

func (f *Fetcher) runYTDLP(ctx context.Context, req Request, destDir string) (string, error) {
	dl := ytdlp.New().
		Format("bestaudio/best").
		ExtractAudio().
		AudioFormat(req.Format).
		AudioQuality(req.Quality).
		NoPlaylist().
		NoWarnings().
		NoProgress().
		PrintJSON().
		Output(filepath.Join(destDir, "%(id)s.%(ext)s"))

	if dir := firstNonEmpty(req.FFmpegDir, f.FFmpegDir); dir != "" {
		dl = dl.FFmpegLocation(dir)
	}

	if req.OnProgress != nil {
		dl = dl.ProgressFunc(500*time.Millisecond, func(update ytdlp.ProgressUpdate) {
			req.OnProgress(Progress{
				Status:          string(update.Status),
				DownloadedBytes: update.DownloadedBytes,
				TotalBytes:      update.TotalBytes,
				Percent:         percentOf(update.DownloadedBytes, update.TotalBytes),
			})
		})
	}

	result, err := dl.Run(ctx, req.URL)
	if err != nil {
		return "", err
	}
	return result.Stdout, nil
}

// locateAudioFile finds the post-processed audio artifact in the workspace.
func locateAudioFile(dir, format string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*."+format))
	if err != nil {
		return "", fmt.Errorf("scan workspace: %w", err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("yt-dlp finished but produced no .%s file", format)
	}

	// yt-dlp writes exactly one artifact per video with NoPlaylist set.
	audioPath := matches[0]
	info, err := os.Stat(audioPath)
	if err != nil {
		return "", fmt.Errorf("stat audio artifact: %w", err)
	}
	if info.Size() == 0 {
		return "", fmt.Errorf("yt-dlp produced an empty .%s file", format)
	}

	return audioPath, nil
}

type videoMetadata struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	DurationSeconds float64 `json:"duration"`
	Uploader        string  `json:"uploader"`
}

// parseMetadata extracts the video info dict yt-dlp prints with --print-json.
// Stdout can carry other lines around it, so scan for the first JSON object
// that looks like video metadata.
func parseMetadata(stdout string) videoMetadata {
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "{") {
			continue
		}

		var meta videoMetadata
		if err := json.Unmarshal([]byte(line), &meta); err != nil {
			continue
		}
		if meta.ID != "" || meta.Title != "" {
			return meta
		}
	}
	return videoMetadata{}
}

// SanitizeFilename makes a video title safe to use as a file name by
// replacing path separators and drive markers with underscores.
func SanitizeFilename(name string) string {
	replacer := strings.NewReplacer("/", "_", ":", "_", "\\", "_")
	sanitized := strings.TrimSpace(replacer.Replace(name))
	if sanitized == "" {
		return "audio"
	}
	return sanitized
}

func percentOf(done, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(done) / float64(total) * 100.0
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
