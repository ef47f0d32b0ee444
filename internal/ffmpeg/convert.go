package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// CommandLog captures one external command invocation for event reporting.
type CommandLog struct {
	Command  string   `json:"command"`
	Args     []string `json:"args"`
	ExitCode int      `json:"exitCode"`
	Stderr   string   `json:"stderr,omitempty"`
}

type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

type execRunner struct{}

func (r *execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := commandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: 0,
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}

	return result, nil
}

// ConvertForSpeech transcodes inputPath into the mono 16 kHz 16-bit PCM WAV
// that whisper.cpp expects.
func (t *Tool) ConvertForSpeech(ctx context.Context, inputPath, outputPath string) (CommandLog, error) {
	loc, err := t.Ensure(ctx)
	if err != nil {
		return CommandLog{}, err
	}

	args := speechConvertArgs(inputPath, outputPath)
	t.Logger.Debug("running ffmpeg", zap.Strings("args", args))

	result, runErr := t.runner.Run(ctx, loc.FFmpeg, args...)
	log := CommandLog{
		Command:  loc.FFmpeg,
		Args:     args,
		ExitCode: result.ExitCode,
		Stderr:   tailOf(result.Stderr),
	}
	if runErr != nil {
		return log, fmt.Errorf("ffmpeg audio conversion failed: %w (%s)", runErr, tailOf(result.Stderr))
	}

	if _, err := t.stat(outputPath); err != nil {
		return log, fmt.Errorf("ffmpeg completed but output file is missing: %w", err)
	}

	return log, nil
}

// ProbeDuration reads the media duration via ffprobe.
func (t *Tool) ProbeDuration(ctx context.Context, path string) (time.Duration, error) {
	loc, err := t.Ensure(ctx)
	if err != nil {
		return 0, err
	}

	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}

	result, runErr := t.runner.Run(ctx, loc.FFprobe, args...)
	if runErr != nil {
		return 0, fmt.Errorf("ffprobe failed: %w (%s)", runErr, tailOf(result.Stderr))
	}

	seconds, err := strconv.ParseFloat(strings.TrimSpace(result.Stdout), 64)
	if err != nil {
		return 0, fmt.Errorf("parse ffprobe duration %q: %w", strings.TrimSpace(result.Stdout), err)
	}

	return time.Duration(seconds * float64(time.Second)), nil
}

func speechConvertArgs(inputPath, outputPath string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inputPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		outputPath,
	}
}

// tailOf keeps command output in errors and logs readable: ffmpeg stderr can
// run to hundreds of lines.
func tailOf(output string) string {
	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return ""
	}

	lines := strings.Split(trimmed, "\n")
	if len(lines) <= 6 {
		return trimmed
	}
	return strings.Join(lines[len(lines)-6:], "\n")
}
