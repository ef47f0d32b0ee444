package ffmpeg

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Download sources for the managed install. Windows uses the BtbN nightly
// win64 build, macOS the per-binary evermeet.cx release zips. Linux installs
// nothing and points at the system package manager instead.
const (
	windowsArchiveURL = "https://github.com/BtbN/FFmpeg-Builds/releases/latest/download/ffmpeg-master-latest-win64-gpl.zip"
	macFFmpegURL      = "https://evermeet.cx/ffmpeg/getrelease/ffmpeg/zip"
	macFFprobeURL     = "https://evermeet.cx/ffmpeg/getrelease/ffprobe/zip"
)

// ErrManualInstall signals that ffmpeg must be installed by the user.
var ErrManualInstall = errors.New("ffmpeg must be installed manually")

func (t *Tool) install(ctx context.Context) (Location, error) {
	if t.InstallDir == "" {
		return Location{}, errors.New("ffmpeg install directory is not configured")
	}

	switch t.goos {
	case "windows":
		return t.installWindows(ctx)
	case "darwin":
		return t.installDarwin(ctx)
	case "linux":
		return Location{}, fmt.Errorf("%w: install it with your package manager, e.g. `sudo apt install ffmpeg` or `sudo dnf install ffmpeg`", ErrManualInstall)
	default:
		return Location{}, fmt.Errorf("%w: no managed ffmpeg build for %s", ErrManualInstall, t.goos)
	}
}

func (t *Tool) installWindows(ctx context.Context) (Location, error) {
	if err := os.MkdirAll(t.InstallDir, 0o755); err != nil {
		return Location{}, fmt.Errorf("create ffmpeg directory: %w", err)
	}

	archivePath := filepath.Join(t.InstallDir, "ffmpeg-win64.zip")
	if err := t.downloadFn(ctx, windowsArchiveURL, archivePath, "downloading ffmpeg"); err != nil {
		return Location{}, fmt.Errorf("download ffmpeg build: %w", err)
	}
	defer os.Remove(archivePath)

	ffmpegPath := filepath.Join(t.InstallDir, "ffmpeg.exe")
	ffprobePath := filepath.Join(t.InstallDir, "ffprobe.exe")

	if err := extractZipEntry(archivePath, "ffmpeg.exe", ffmpegPath, 0o755); err != nil {
		return Location{}, fmt.Errorf("extract ffmpeg.exe: %w", err)
	}
	if err := extractZipEntry(archivePath, "ffprobe.exe", ffprobePath, 0o755); err != nil {
		return Location{}, fmt.Errorf("extract ffprobe.exe: %w", err)
	}

	return Location{FFmpeg: ffmpegPath, FFprobe: ffprobePath, Dir: t.InstallDir}, nil
}

func (t *Tool) installDarwin(ctx context.Context) (Location, error) {
	if err := os.MkdirAll(t.InstallDir, 0o755); err != nil {
		return Location{}, fmt.Errorf("create ffmpeg directory: %w", err)
	}

	ffmpegPath := filepath.Join(t.InstallDir, "ffmpeg")
	ffprobePath := filepath.Join(t.InstallDir, "ffprobe")

	if err := t.installDarwinBinary(ctx, macFFmpegURL, "ffmpeg", ffmpegPath); err != nil {
		return Location{}, err
	}
	if err := t.installDarwinBinary(ctx, macFFprobeURL, "ffprobe", ffprobePath); err != nil {
		return Location{}, err
	}

	return Location{FFmpeg: ffmpegPath, FFprobe: ffprobePath, Dir: t.InstallDir}, nil
}

func (t *Tool) installDarwinBinary(ctx context.Context, url, name, destPath string) error {
	archivePath := destPath + ".zip"
	if err := t.downloadFn(ctx, url, archivePath, "downloading "+name); err != nil {
		return fmt.Errorf("download %s build: %w", name, err)
	}
	defer os.Remove(archivePath)

	if err := extractZipEntry(archivePath, name, destPath, 0o755); err != nil {
		return fmt.Errorf("extract %s: %w", name, err)
	}
	return nil
}

// extractZipEntry copies the first archive member whose base name matches
// into destPath. Archives either hold the binary at the root (evermeet) or
// under a versioned bin/ directory (BtbN).
func extractZipEntry(archivePath, baseName, destPath string, mode os.FileMode) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer reader.Close()

	for _, file := range reader.File {
		if file.FileInfo().IsDir() {
			continue
		}
		if !strings.EqualFold(filepath.Base(file.Name), baseName) {
			continue
		}

		return copyZipFile(file, destPath, mode)
	}

	return fmt.Errorf("entry %s not found in %s", baseName, filepath.Base(archivePath))
}

func copyZipFile(file *zip.File, destPath string, mode os.FileMode) error {
	src, err := file.Open()
	if err != nil {
		return fmt.Errorf("open archive entry: %w", err)
	}
	defer src.Close()

	out, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("create binary: %w", err)
	}

	if _, err := io.Copy(out, src); err != nil {
		_ = out.Close()
		_ = os.Remove(destPath)
		return fmt.Errorf("write binary: %w", err)
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("close binary: %w", err)
	}

	return os.Chmod(destPath, mode)
}
