package cli

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tubescribe/tubescribe/internal/fetch"
	"github.com/tubescribe/tubescribe/internal/pipeline"
)

func TestStartSpinnerEnabled(t *testing.T) {
	t.Parallel()
	stop := startSpinner(true, "testing")
	require.NotNil(t, stop)
	stop()
}

func TestStartSpinnerDisabled(t *testing.T) {
	t.Parallel()
	stop := startSpinner(false, "testing")
	require.NotNil(t, stop)
	stop()
}

func TestStageUIDisabledIgnoresEvents(t *testing.T) {
	t.Parallel()

	ui := newStageUI(false)
	ui.onStage(pipeline.StageFetch)
	ui.onProgress(fetch.Progress{DownloadedBytes: 10, TotalBytes: 100})
	ui.onStage(pipeline.StageTranscribe)
	ui.done()

	require.Nil(t, ui.bar)
	require.Nil(t, ui.stop)
}

func TestStageUITracksDownloadBytes(t *testing.T) {
	t.Parallel()

	ui := newStageUI(true)

	ui.onProgress(fetch.Progress{DownloadedBytes: 5, TotalBytes: 0})
	require.Nil(t, ui.bar, "a bar without a known total renders nothing useful")

	ui.onProgress(fetch.Progress{DownloadedBytes: 5, TotalBytes: 100})
	require.NotNil(t, ui.bar)

	ui.onProgress(fetch.Progress{DownloadedBytes: 100, TotalBytes: 100})
	ui.done()
	require.Nil(t, ui.bar)
}

func TestStageUISwitchesToSpinnerPhases(t *testing.T) {
	t.Parallel()

	ui := newStageUI(true)

	ui.onStage(pipeline.StageFetch)
	require.Nil(t, ui.stop, "fetch progress is byte-driven, not spinner-driven")

	ui.onStage(pipeline.StageConvert)
	require.NotNil(t, ui.stop)

	ui.onStage(pipeline.StageTranscribe)
	require.NotNil(t, ui.stop)

	ui.done()
	require.Nil(t, ui.stop)
}
