package version

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func fakeGit(exactMatch string, describe string, exactErr, descErr error) func(...string) (string, error) {
	return func(args ...string) (string, error) {
		if len(args) == 0 {
			return "", fmt.Errorf("no args")
		}
		switch args[0] {
		case "rev-parse":
			return ".git", nil
		case "describe":
			for _, a := range args {
				if a == "--exact-match" {
					return exactMatch, exactErr
				}
			}
			return describe, descErr
		default:
			return "", fmt.Errorf("unexpected git subcommand %q", args[0])
		}
	}
}

func fakeGitNotARepo() func(...string) (string, error) {
	return func(args ...string) (string, error) {
		return "", fmt.Errorf("not a git repository")
	}
}

func TestResolve_TaggedRelease(t *testing.T) {
	t.Parallel()
	git := fakeGit("v0.1.0", "", nil, nil)
	got := resolve("0.1.0", git)
	require.Equal(t, "0.1.0", got)
}

func TestResolve_CommitsAfterTag(t *testing.T) {
	t.Parallel()
	git := fakeGit("", "v0.1.0-3-gabcdef", fmt.Errorf("no tag"), nil)
	got := resolve("0.1.0", git)
	require.Equal(t, "0.1.0-3-gabcdef", got)
}

func TestResolve_DirtyWorkingTree(t *testing.T) {
	t.Parallel()
	git := fakeGit("", "v0.1.0-3-gabcdef-dirty", fmt.Errorf("no tag"), nil)
	got := resolve("0.1.0", git)
	require.Equal(t, "0.1.0-3-gabcdef-dirty", got)
}

func TestResolve_NoTags(t *testing.T) {
	t.Parallel()
	git := fakeGit("", "abcdef", fmt.Errorf("no tag"), nil)
	got := resolve("0.1.0", git)
	require.Equal(t, "0.1.0-abcdef", got)
}

func TestResolve_NotAGitRepo(t *testing.T) {
	t.Parallel()
	got := resolve("0.1.0", fakeGitNotARepo())
	require.Equal(t, "0.1.0", got)
}

func TestResolve_EmptyBaseFallsBackToZero(t *testing.T) {
	t.Parallel()
	got := resolve("", fakeGitNotARepo())
	require.Equal(t, "0.0.0", got)
}

func TestResolve_DescribeFails(t *testing.T) {
	t.Parallel()
	git := fakeGit("", "", fmt.Errorf("no tag"), fmt.Errorf("describe failed"))
	got := resolve("0.1.0", git)
	require.Equal(t, "0.1.0", got)
}

func TestFullVersion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		resolved string
		commit   string
		date     string
		want     string
	}{
		{
			name:     "commit unknown",
			resolved: "0.1.0",
			commit:   "unknown",
			date:     "unknown",
			want:     "0.1.0",
		},
		{
			name:     "commit without date",
			resolved: "0.1.0",
			commit:   "abc1234",
			date:     "unknown",
			want:     "0.1.0 (commit abc1234)",
		},
		{
			name:     "commit truncated to twelve chars",
			resolved: "0.1.0",
			commit:   "0123456789abcdef0123",
			date:     "2026-08-23",
			want:     "0.1.0 (commit 0123456789ab, built 2026-08-23)",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, fullVersion(tc.resolved, tc.commit, tc.date))
		})
	}
}
