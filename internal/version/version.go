package version

import (
	"fmt"
	"os/exec"
	"strings"
)

// Set at release time via -ldflags "-X github.com/tubescribe/tubescribe/internal/version.Version=...".
var (
	Version = "0.1.0"
	Commit  = "unknown"
	Date    = "unknown"
)

// Resolve returns the version string for display, appending a git-derived
// suffix when the binary runs from a source checkout whose HEAD is not on
// a release tag.
func Resolve() string {
	return resolve(Version, runGit)
}

// Full returns the resolved version plus commit and build date when those
// were stamped into the binary.
func Full() string {
	return fullVersion(Resolve(), Commit, Date)
}

func fullVersion(resolved, commit, date string) string {
	if commit == "" || commit == "unknown" {
		return resolved
	}
	if len(commit) > 12 {
		commit = commit[:12]
	}
	if date == "" || date == "unknown" {
		return fmt.Sprintf("%s (commit %s)", resolved, commit)
	}
	return fmt.Sprintf("%s (commit %s, built %s)", resolved, commit, date)
}

func resolve(base string, git func(...string) (string, error)) string {
	if base == "" {
		base = "0.0.0"
	}

	suffix := gitSuffix(base, git)
	if suffix == "" {
		return base
	}
	return base + "-" + suffix
}

func gitSuffix(base string, git func(...string) (string, error)) string {
	if _, err := git("rev-parse", "--git-dir"); err != nil {
		return ""
	}

	if _, err := git("describe", "--tags", "--exact-match"); err == nil {
		return ""
	}

	desc, err := git("describe", "--tags", "--dirty", "--always")
	if err != nil {
		return ""
	}

	prefix := "v" + base + "-"
	if strings.HasPrefix(desc, prefix) {
		return strings.TrimPrefix(desc, prefix)
	}

	return desc
}

func runGit(args ...string) (string, error) {
	out, err := exec.Command("git", args...).Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
