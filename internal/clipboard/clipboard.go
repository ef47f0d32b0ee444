package clipboard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

var ErrUnavailable = errors.New("no clipboard command available")

const copyTimeout = 4 * time.Second

type commandSpec struct {
	name string
	args []string

	// asyncFire marks tools that own the clipboard selection for as long as
	// they run (xclip). Those must be started detached and outlive us.
	asyncFire bool
}

// candidates lists clipboard tools in preference order for one platform.
func candidates(goos string) []commandSpec {
	switch goos {
	case "darwin":
		return []commandSpec{{name: "pbcopy"}}
	case "windows":
		return []commandSpec{{name: "clip"}}
	default:
		return []commandSpec{
			{name: "wl-copy"},
			{name: "xclip", args: []string{"-selection", "clipboard", "-in", "-silent"}, asyncFire: true},
		}
	}
}

func detectCommandFor(goos string, lookPath func(string) (string, error)) (commandSpec, error) {
	for _, spec := range candidates(goos) {
		if _, err := lookPath(spec.name); err == nil {
			return spec, nil
		}
	}
	return commandSpec{}, ErrUnavailable
}

// CopyText puts value on the system clipboard using the platform's
// clipboard command.
func CopyText(ctx context.Context, value string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	spec, err := detectCommandFor(runtime.GOOS, exec.LookPath)
	if err != nil {
		return err
	}

	if spec.asyncFire {
		return copyDetached(spec, value)
	}
	return copyBlocking(ctx, spec, value)
}

func copyBlocking(ctx context.Context, spec commandSpec, value string) error {
	copyCtx, cancel := context.WithTimeout(ctx, copyTimeout)
	defer cancel()

	cmd := exec.CommandContext(copyCtx, spec.name, spec.args...)
	cmd.Stdin = strings.NewReader(value)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard

	if err := cmd.Run(); err != nil {
		if errors.Is(copyCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("copy to clipboard timed out: %w", copyCtx.Err())
		}
		return fmt.Errorf("copy to clipboard: %w", err)
	}
	return nil
}

// copyDetached hands the payload to the tool and releases the process
// instead of waiting for it to exit.
func copyDetached(spec commandSpec, value string) error {
	cmd := exec.Command(spec.name, spec.args...)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("open clipboard stdin: %w", err)
	}

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return fmt.Errorf("start clipboard command: %w", err)
	}

	if _, err := io.WriteString(stdin, value); err != nil {
		_ = stdin.Close()
		_ = cmd.Process.Kill()
		return fmt.Errorf("write clipboard data: %w", err)
	}

	if err := stdin.Close(); err != nil {
		_ = cmd.Process.Kill()
		return fmt.Errorf("close clipboard stdin: %w", err)
	}

	_ = cmd.Process.Release()
	return nil
}
