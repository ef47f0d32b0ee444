//go:build integration

package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tubescribe/tubescribe/internal/fetch"
	"github.com/tubescribe/tubescribe/internal/pipeline"
	"github.com/tubescribe/tubescribe/internal/whisper"
)

const flowTestURL = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

func TestRunFetchFlowSuccess(t *testing.T) {
	var order []string
	out := new(bytes.Buffer)

	app := &appState{
		out: out,
		runFn: func(_ context.Context, req pipeline.Request) (*pipeline.Result, error) {
			order = append(order, "run:"+req.URL)
			return &pipeline.Result{
				AudioPath:  "/downloads/Test Video.mp3",
				Transcript: &whisper.Transcript{Text: "hello world"},
			}, nil
		},
		runAllFn: func(_ context.Context, _ []string, _ pipeline.Request, _ time.Duration) []pipeline.BatchItem {
			t.Fatal("batch path must not run for a single URL")
			return nil
		},
		copyFn: func(_ context.Context, value string) error {
			order = append(order, "copy:"+value)
			return nil
		},
	}

	err := app.runFetchFlow(context.Background(), []string{flowTestURL}, fetchFlowOptions{copyToClipboard: true})
	require.NoError(t, err)
	require.Equal(t, "hello world\n", out.String())
	require.Equal(t, []string{
		"run:" + flowTestURL,
		"copy:hello world",
	}, order)
}

func TestRunFetchFlowPrintsAudioPathWithoutTranscript(t *testing.T) {
	out := new(bytes.Buffer)
	copyCalls := 0

	app := &appState{
		out: out,
		runFn: func(_ context.Context, _ pipeline.Request) (*pipeline.Result, error) {
			return &pipeline.Result{AudioPath: "/downloads/Test Video.mp3"}, nil
		},
		runAllFn: func(_ context.Context, _ []string, _ pipeline.Request, _ time.Duration) []pipeline.BatchItem {
			return nil
		},
		copyFn: func(_ context.Context, _ string) error {
			copyCalls++
			return nil
		},
	}

	err := app.runFetchFlow(context.Background(), []string{flowTestURL}, fetchFlowOptions{copyToClipboard: true})
	require.NoError(t, err)
	require.Equal(t, "/downloads/Test Video.mp3\n", out.String())
	require.Equal(t, 0, copyCalls, "audio-only results have nothing to copy")
}

func TestRunFetchFlowClipboardFailureIsNonFatal(t *testing.T) {
	out := new(bytes.Buffer)

	app := &appState{
		out: out,
		runFn: func(_ context.Context, _ pipeline.Request) (*pipeline.Result, error) {
			return &pipeline.Result{
				AudioPath:  "/downloads/Test Video.mp3",
				Transcript: &whisper.Transcript{Text: "clipboard fallback"},
			}, nil
		},
		runAllFn: func(_ context.Context, _ []string, _ pipeline.Request, _ time.Duration) []pipeline.BatchItem {
			return nil
		},
		copyFn: func(_ context.Context, _ string) error {
			return errors.New("clipboard command failed")
		},
	}

	err := app.runFetchFlow(context.Background(), []string{flowTestURL}, fetchFlowOptions{copyToClipboard: true})
	require.NoError(t, err)
	require.Equal(t, "clipboard fallback\n", out.String())
}

func TestRunFetchFlowSkipsCopyForBlankTranscript(t *testing.T) {
	out := new(bytes.Buffer)
	copyCalls := 0

	app := &appState{
		out: out,
		runFn: func(_ context.Context, _ pipeline.Request) (*pipeline.Result, error) {
			return &pipeline.Result{
				AudioPath:  "/downloads/Test Video.mp3",
				Transcript: &whisper.Transcript{Text: "[BLANK_AUDIO]"},
			}, nil
		},
		runAllFn: func(_ context.Context, _ []string, _ pipeline.Request, _ time.Duration) []pipeline.BatchItem {
			return nil
		},
		copyFn: func(_ context.Context, _ string) error {
			copyCalls++
			return nil
		},
	}

	err := app.runFetchFlow(context.Background(), []string{flowTestURL}, fetchFlowOptions{copyToClipboard: true})
	require.NoError(t, err)
	require.Equal(t, 0, copyCalls)
	require.Equal(t, "[BLANK_AUDIO]\n", out.String())
}

func TestRunFetchFlowCopiesBlankWhenCopyEmptyEnabled(t *testing.T) {
	out := new(bytes.Buffer)
	copyCalls := 0

	app := &appState{
		out:       out,
		copyEmpty: true,
		runFn: func(_ context.Context, _ pipeline.Request) (*pipeline.Result, error) {
			return &pipeline.Result{
				AudioPath:  "/downloads/Test Video.mp3",
				Transcript: &whisper.Transcript{Text: "[BLANK_AUDIO]"},
			}, nil
		},
		runAllFn: func(_ context.Context, _ []string, _ pipeline.Request, _ time.Duration) []pipeline.BatchItem {
			return nil
		},
		copyFn: func(_ context.Context, _ string) error {
			copyCalls++
			return nil
		},
	}

	err := app.runFetchFlow(context.Background(), []string{flowTestURL}, fetchFlowOptions{copyToClipboard: true})
	require.NoError(t, err)
	require.Equal(t, 1, copyCalls)
}

func TestRunFetchFlowRejectsInvalidURLBeforeRunning(t *testing.T) {
	runCalls := 0

	app := &appState{
		out: new(bytes.Buffer),
		runFn: func(_ context.Context, _ pipeline.Request) (*pipeline.Result, error) {
			runCalls++
			return &pipeline.Result{}, nil
		},
		runAllFn: func(_ context.Context, _ []string, _ pipeline.Request, _ time.Duration) []pipeline.BatchItem {
			runCalls++
			return nil
		},
	}

	err := app.runFetchFlow(context.Background(), []string{"https://example.com/nope"}, fetchFlowOptions{})
	require.Error(t, err)
	require.ErrorIs(t, err, fetch.ErrInvalidURL)
	require.Equal(t, 0, runCalls)
}

func TestRunFetchFlowBatchPrintsPathsAndCountsFailures(t *testing.T) {
	out := new(bytes.Buffer)
	urls := []string{
		"https://www.youtube.com/watch?v=aaaaaaaaaaa",
		"https://www.youtube.com/watch?v=bbbbbbbbbbb",
		"https://www.youtube.com/watch?v=ccccccccccc",
	}

	app := &appState{
		out: out,
		runFn: func(_ context.Context, _ pipeline.Request) (*pipeline.Result, error) {
			t.Fatal("single-URL path must not run for a batch")
			return nil, nil
		},
		runAllFn: func(_ context.Context, got []string, _ pipeline.Request, _ time.Duration) []pipeline.BatchItem {
			require.Equal(t, urls, got)
			return []pipeline.BatchItem{
				{URL: got[0], Result: &pipeline.Result{AudioPath: "/downloads/a.mp3"}},
				{URL: got[1], Err: errors.New("audio download failed")},
				{URL: got[2], Result: &pipeline.Result{AudioPath: "/downloads/c.mp3"}},
			}
		},
	}

	err := app.runFetchFlow(context.Background(), urls, fetchFlowOptions{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "1 of 3 downloads failed")
	require.Equal(t, "/downloads/a.mp3\n/downloads/c.mp3\n", out.String())
}

func TestRunFetchFlowBatchAllSucceed(t *testing.T) {
	out := new(bytes.Buffer)
	urls := []string{
		"https://www.youtube.com/watch?v=aaaaaaaaaaa",
		"https://youtu.be/bbbbbbbbbbb",
	}

	app := &appState{
		out: out,
		runAllFn: func(_ context.Context, got []string, _ pipeline.Request, _ time.Duration) []pipeline.BatchItem {
			items := make([]pipeline.BatchItem, 0, len(got))
			for _, u := range got {
				items = append(items, pipeline.BatchItem{URL: u, Result: &pipeline.Result{AudioPath: "/downloads/x.mp3"}})
			}
			return items
		},
		runFn: func(_ context.Context, _ pipeline.Request) (*pipeline.Result, error) {
			return nil, nil
		},
	}

	err := app.runFetchFlow(context.Background(), urls, fetchFlowOptions{})
	require.NoError(t, err)
	require.Equal(t, "/downloads/x.mp3\n/downloads/x.mp3\n", out.String())
}
