package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EnvWhisperPath overrides engine discovery with an explicit whisper-cli
// binary path.
const EnvWhisperPath = "TUBESCRIBE_WHISPER_PATH"

const defaultBeamSize = 5

// CLIEngine shells out to a whisper.cpp whisper-cli binary and reads back the
// plain-text and JSON transcripts it writes.
type CLIEngine struct {
	Executable string
	BeamSize   int
	Logger     *zap.Logger
}

// NewCLIEngine locates a whisper-cli binary: the TUBESCRIBE_WHISPER_PATH
// override first, then $PATH under the common whisper.cpp binary names.
func NewCLIEngine(logger *zap.Logger) (*CLIEngine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if override := strings.TrimSpace(os.Getenv(EnvWhisperPath)); override != "" {
		if err := ensureExecutable(override); err != nil {
			return nil, fmt.Errorf("%s is not executable: %w", EnvWhisperPath, err)
		}
		return &CLIEngine{Executable: override, BeamSize: defaultBeamSize, Logger: logger}, nil
	}

	for _, name := range engineBinaryNames() {
		if path, err := exec.LookPath(name); err == nil {
			return &CLIEngine{Executable: path, BeamSize: defaultBeamSize, Logger: logger}, nil
		}
	}

	return nil, fmt.Errorf("whisper-cli not found on PATH; install whisper.cpp or set %s to the binary", EnvWhisperPath)
}

func (e *CLIEngine) Transcribe(ctx context.Context, req TranscriptionRequest) (*Transcript, error) {
	if strings.TrimSpace(req.AudioPath) == "" {
		return nil, errors.New("audio path is required")
	}
	if strings.TrimSpace(req.ModelPath) == "" {
		return nil, errors.New("model path is required")
	}

	if err := ensureExecutable(e.Executable); err != nil {
		return nil, fmt.Errorf("whisper engine missing or not executable: %w", err)
	}

	outBase := filepath.Join(os.TempDir(), "tubescribe-"+uuid.NewString())
	txtOut := outBase + ".txt"
	jsonOut := outBase + ".json"

	args := e.buildArgs(req, outBase)

	cmd := exec.CommandContext(ctx, e.Executable, args...)
	var stderr bytes.Buffer
	cmd.Stdout = io.Discard
	cmd.Stderr = &stderr

	e.log().Debug("running whisper engine", zap.String("engine", e.Executable), zap.Strings("args", args))
	if err := cmd.Run(); err != nil {
		errText := strings.TrimSpace(stderr.String())
		if isMissingSharedLibraryError(errText) {
			return nil, fmt.Errorf("whisper engine at %s is missing required shared libraries (%s); rebuild whisper-cli with BUILD_SHARED_LIBS=OFF or fix the library path", e.Executable, errText)
		}
		return nil, fmt.Errorf("whisper transcribe failed: %w (%s)", err, errText)
	}

	defer os.Remove(txtOut)
	defer os.Remove(jsonOut)

	content, err := os.ReadFile(txtOut)
	if err != nil {
		return nil, fmt.Errorf("read whisper output: %w", err)
	}

	transcript := &Transcript{Text: strings.TrimSpace(string(content))}
	if err := fillFromJSON(transcript, jsonOut); err != nil {
		// The plain-text transcript is still usable without segment data.
		e.log().Debug("whisper json output unavailable", zap.Error(err))
	}

	return transcript, nil
}

func (e *CLIEngine) buildArgs(req TranscriptionRequest, outBase string) []string {
	beamSize := e.BeamSize
	if beamSize <= 0 {
		beamSize = defaultBeamSize
	}

	args := []string{
		"-m", req.ModelPath,
		"-f", req.AudioPath,
		"-bs", fmt.Sprintf("%d", beamSize),
		"-otxt",
		"-oj",
		"-of", outBase,
	}

	lang := strings.TrimSpace(strings.ToLower(req.Language))
	if lang != "" && lang != "auto" {
		args = append(args, "-l", lang)
	}

	return args
}

func (e *CLIEngine) log() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

// engineJSON mirrors the parts of whisper-cli's -oj output we consume.
type engineJSON struct {
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`
}

func fillFromJSON(transcript *Transcript, jsonPath string) error {
	raw, err := os.ReadFile(jsonPath)
	if err != nil {
		return err
	}

	var parsed engineJSON
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("parse whisper json output: %w", err)
	}

	transcript.Language = parsed.Result.Language
	for _, seg := range parsed.Transcription {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		transcript.Segments = append(transcript.Segments, Segment{
			Start: float64(seg.Offsets.From) / 1000.0,
			End:   float64(seg.Offsets.To) / 1000.0,
			Text:  text,
		})
	}

	return nil
}

func engineBinaryNames() []string {
	if runtime.GOOS == "windows" {
		return []string{"whisper-cli.exe", "whisper-cpp.exe"}
	}
	return []string{"whisper-cli", "whisper-cpp"}
}

func ensureExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	if runtime.GOOS != "windows" && info.Mode()&0o111 == 0 {
		return fmt.Errorf("%s is not executable", path)
	}
	return nil
}

func isMissingSharedLibraryError(stderr string) bool {
	value := strings.ToLower(strings.TrimSpace(stderr))
	if value == "" {
		return false
	}

	patterns := []string{
		"error while loading shared libraries",
		"cannot open shared object file",
		"dyld: library not loaded",
		"image not found",
	}

	for _, pattern := range patterns {
		if strings.Contains(value, pattern) {
			return true
		}
	}

	return false
}
