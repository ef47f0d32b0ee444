package diagnostics

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tubescribe/tubescribe/internal/whisper"
)

// Status grades one diagnostic check. Warn covers tools tubescribe can
// install by itself on first use.
type Status string

const (
	StatusPass Status = "pass"
	StatusWarn Status = "warn"
	StatusFail Status = "fail"
)

// Item is one diagnostic check result.
type Item struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

// Report combines all checks for the doctor command.
type Report struct {
	GeneratedAt time.Time `json:"generatedAt"`
	HasFailures bool      `json:"hasFailures"`
	Items       []Item    `json:"items"`
}

// Inputs carries the resolved paths the checks run against.
type Inputs struct {
	Model     string
	ModelDir  string
	DestDir   string
	FFmpegDir string
}

// Checker validates external tools and required filesystem paths.
type Checker struct {
	goos          string
	lookPath      func(string) (string, error)
	stat          func(string) (os.FileInfo, error)
	mkdirAll      func(string, os.FileMode) error
	createTemp    func(string, string) (*os.File, error)
	remove        func(string) error
	locateWhisper func() (string, error)
}

// NewChecker builds a checker using real OS dependencies.
func NewChecker() *Checker {
	return &Checker{
		goos:       runtime.GOOS,
		lookPath:   exec.LookPath,
		stat:       os.Stat,
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
		locateWhisper: func() (string, error) {
			engine, err := whisper.NewCLIEngine(zap.NewNop())
			if err != nil {
				return "", err
			}
			return engine.Executable, nil
		},
	}
}

// Run executes all checks and returns a combined report.
func (c *Checker) Run(in Inputs) Report {
	items := []Item{
		c.checkFFmpegTool("ffmpeg", in.FFmpegDir),
		c.checkFFmpegTool("ffprobe", in.FFmpegDir),
		c.checkYTDLP(),
		c.checkWhisper(),
		c.checkModel(in.Model, in.ModelDir),
		c.checkDestDir(in.DestDir),
	}

	hasFailures := false
	for _, item := range items {
		if item.Status == StatusFail {
			hasFailures = true
			break
		}
	}

	return Report{
		GeneratedAt: time.Now().UTC(),
		HasFailures: hasFailures,
		Items:       items,
	}
}

// checkFFmpegTool looks for a managed install first, then PATH. A missing
// tool is only a hard failure on Linux, where no automatic install exists.
func (c *Checker) checkFFmpegTool(name, managedDir string) Item {
	item := Item{ID: "tool_" + name, Name: name}

	binary := name
	if c.goos == "windows" {
		binary += ".exe"
	}
	if managedDir != "" {
		managed := filepath.Join(managedDir, binary)
		if _, err := c.stat(managed); err == nil {
			item.Status = StatusPass
			item.Message = fmt.Sprintf("Managed install at %s", managed)
			return item
		}
	}

	if path, err := c.lookPath(name); err == nil {
		item.Status = StatusPass
		item.Message = fmt.Sprintf("Found at %s", path)
		return item
	}

	if c.goos == "linux" {
		item.Status = StatusFail
		item.Message = fmt.Sprintf("%s not found", name)
		item.Hint = "Install it with your package manager, e.g. `sudo apt install ffmpeg`."
		return item
	}

	item.Status = StatusWarn
	item.Message = fmt.Sprintf("%s not found; it will be installed automatically when needed", name)
	return item
}

// checkYTDLP only warns when yt-dlp is absent: the fetcher downloads its
// own copy on first use.
func (c *Checker) checkYTDLP() Item {
	item := Item{ID: "tool_yt-dlp", Name: "yt-dlp"}

	if path, err := c.lookPath("yt-dlp"); err == nil {
		item.Status = StatusPass
		item.Message = fmt.Sprintf("Found at %s", path)
		return item
	}

	item.Status = StatusWarn
	item.Message = "yt-dlp not on PATH; it will be downloaded automatically on first use"
	return item
}

func (c *Checker) checkWhisper() Item {
	item := Item{ID: "tool_whisper", Name: "whisper-cli"}

	path, err := c.locateWhisper()
	if err != nil {
		item.Status = StatusFail
		item.Message = "whisper-cli not found"
		item.Hint = fmt.Sprintf("Install whisper.cpp (e.g. `brew install whisper-cpp`) or point %s at the binary.", whisper.EnvWhisperPath)
		return item
	}

	item.Status = StatusPass
	item.Message = fmt.Sprintf("Found at %s", path)
	return item
}

// checkModel resolves the configured model. Weights that are merely not
// downloaded yet are a warning, not a failure.
func (c *Checker) checkModel(modelRef, modelDir string) Item {
	item := Item{ID: "model", Name: "Whisper model"}

	resolved, err := whisper.ResolveModel(modelRef, modelDir)
	if err != nil {
		item.Status = StatusFail
		item.Message = err.Error()
		item.Hint = fmt.Sprintf("Pick one of: %s, or pass a path to a .bin model file.", strings.Join(whisper.ModelNames(), ", "))
		return item
	}

	if resolved.NeedsDownload {
		size := ""
		if model, ok := whisper.LookupModel(resolved.Name); ok {
			size = " (" + model.SizeLabel + ")"
		}
		item.Status = StatusWarn
		item.Message = fmt.Sprintf("Model %q not downloaded yet%s", resolved.Name, size)
		item.Hint = fmt.Sprintf("It is fetched on first use, or run `tubescribe setup --model %s` now.", resolved.Name)
		return item
	}

	item.Status = StatusPass
	item.Message = fmt.Sprintf("Model file found: %s", resolved.Path)
	return item
}

// checkDestDir validates destination directory existence and write access.
func (c *Checker) checkDestDir(destDir string) Item {
	item := Item{ID: "dest_dir", Name: "Destination directory"}

	if strings.TrimSpace(destDir) == "" {
		item.Status = StatusFail
		item.Message = "Destination directory is empty."
		item.Hint = "Set a destination directory for downloaded audio."
		return item
	}

	if err := c.mkdirAll(destDir, 0o755); err != nil {
		item.Status = StatusFail
		item.Message = fmt.Sprintf("Cannot create destination directory: %s", destDir)
		item.Hint = "Choose a writable location or adjust filesystem permissions."
		return item
	}

	tmpFile, err := c.createTemp(destDir, ".write-check-*")
	if err != nil {
		item.Status = StatusFail
		item.Message = fmt.Sprintf("Destination directory is not writable: %s", destDir)
		item.Hint = "Choose a writable directory for downloads."
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = StatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", destDir)
	return item
}

func newCheckerForTests(
	goos string,
	lookPath func(string) (string, error),
	stat func(string) (os.FileInfo, error),
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
	locateWhisper func() (string, error),
) *Checker {
	return &Checker{
		goos:          goos,
		lookPath:      lookPath,
		stat:          stat,
		mkdirAll:      mkdirAll,
		createTemp:    createTemp,
		remove:        remove,
		locateWhisper: locateWhisper,
	}
}
