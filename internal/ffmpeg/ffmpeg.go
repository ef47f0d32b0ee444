package ffmpeg

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"

	"go.uber.org/zap"

	"github.com/tubescribe/tubescribe/internal/download"
)

// Location points at usable ffmpeg and ffprobe binaries. Dir is handed to
// yt-dlp so its audio post-processing uses the same install.
type Location struct {
	FFmpeg  string
	FFprobe string
	Dir     string
}

// Tool resolves and runs ffmpeg/ffprobe. Resolution order: a previous managed
// install, the system PATH, then a platform-specific download into InstallDir.
type Tool struct {
	InstallDir string
	Logger     *zap.Logger
	NoProgress bool

	mu  sync.Mutex
	loc *Location

	goos       string
	lookPath   func(string) (string, error)
	stat       func(string) (os.FileInfo, error)
	runner     commandRunner
	downloadFn func(ctx context.Context, url, dest, description string) error
}

func NewTool(installDir string, logger *zap.Logger) *Tool {
	if logger == nil {
		logger = zap.NewNop()
	}

	t := &Tool{
		InstallDir: installDir,
		Logger:     logger,
		goos:       runtime.GOOS,
		lookPath:   exec.LookPath,
		stat:       os.Stat,
		runner:     &execRunner{},
	}
	t.downloadFn = func(ctx context.Context, url, dest, description string) error {
		return download.File(ctx, download.Options{
			URL:         url,
			Destination: dest,
			Description: description,
			NoProgress:  t.NoProgress,
			Logger:      t.Logger,
		})
	}
	return t
}

// Ensure returns a usable ffmpeg location, installing one when neither a
// managed copy nor a system install exists. The result is cached for the
// lifetime of the Tool.
func (t *Tool) Ensure(ctx context.Context) (Location, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.loc != nil {
		return *t.loc, nil
	}

	if loc, ok := t.managedInstall(); ok {
		t.Logger.Debug("using managed ffmpeg", zap.String("dir", loc.Dir))
		t.loc = &loc
		return loc, nil
	}

	if loc, ok := t.systemInstall(); ok {
		t.Logger.Debug("using system ffmpeg", zap.String("ffmpeg", loc.FFmpeg))
		t.loc = &loc
		return loc, nil
	}

	t.Logger.Info("ffmpeg not found, installing", zap.String("dir", t.InstallDir))
	loc, err := t.install(ctx)
	if err != nil {
		return Location{}, err
	}

	t.loc = &loc
	return loc, nil
}

func (t *Tool) managedInstall() (Location, bool) {
	if t.InstallDir == "" {
		return Location{}, false
	}

	ffmpegPath := filepath.Join(t.InstallDir, t.ffmpegBinary())
	ffprobePath := filepath.Join(t.InstallDir, t.ffprobeBinary())

	if _, err := t.stat(ffmpegPath); err != nil {
		return Location{}, false
	}
	if _, err := t.stat(ffprobePath); err != nil {
		return Location{}, false
	}

	return Location{FFmpeg: ffmpegPath, FFprobe: ffprobePath, Dir: t.InstallDir}, true
}

func (t *Tool) systemInstall() (Location, bool) {
	ffmpegPath, err := t.lookPath(t.ffmpegBinary())
	if err != nil {
		return Location{}, false
	}

	ffprobePath, err := t.lookPath(t.ffprobeBinary())
	if err != nil {
		return Location{}, false
	}

	return Location{FFmpeg: ffmpegPath, FFprobe: ffprobePath, Dir: filepath.Dir(ffmpegPath)}, true
}

func (t *Tool) ffmpegBinary() string {
	if t.goos == "windows" {
		return "ffmpeg.exe"
	}
	return "ffmpeg"
}

func (t *Tool) ffprobeBinary() string {
	if t.goos == "windows" {
		return "ffprobe.exe"
	}
	return "ffprobe"
}

func newToolForTests(installDir, goos string, lookPath func(string) (string, error), stat func(string) (os.FileInfo, error), downloadFn func(ctx context.Context, url, dest, description string) error) *Tool {
	return &Tool{
		InstallDir: installDir,
		Logger:     zap.NewNop(),
		goos:       goos,
		lookPath:   lookPath,
		stat:       stat,
		runner:     &execRunner{},
		downloadFn: downloadFn,
	}
}
