package cli

import (
	"os"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/tubescribe/tubescribe/internal/fetch"
	"github.com/tubescribe/tubescribe/internal/pipeline"
)

type stopFunc func()

func startSpinner(enabled bool, description string) stopFunc {
	if !enabled {
		return func() {}
	}

	bar := progressbar.NewOptions(
		-1,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionThrottle(80*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)

	stopCh := make(chan struct{})
	doneCh := make(chan struct{})

	go func() {
		defer close(doneCh)
		ticker := time.NewTicker(120 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-stopCh:
				_ = bar.Finish()
				return
			case <-ticker.C:
				_ = bar.Add(1)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stopCh)
			<-doneCh
		})
	}
}

// stageUI renders pipeline progress on stderr: a byte-level bar while the
// download runs and a spinner for the conversion and transcription phases.
type stageUI struct {
	enabled bool
	bar     *progressbar.ProgressBar
	stop    stopFunc
}

func newStageUI(enabled bool) *stageUI {
	return &stageUI{enabled: enabled}
}

func (u *stageUI) onStage(stage pipeline.Stage) {
	u.clear()
	if !u.enabled {
		return
	}

	switch stage {
	case pipeline.StageConvert:
		u.stop = startSpinner(true, "Converting audio")
	case pipeline.StageTranscribe:
		u.stop = startSpinner(true, "Transcribing")
	}
}

func (u *stageUI) onProgress(p fetch.Progress) {
	if !u.enabled {
		return
	}

	if u.bar == nil {
		if p.TotalBytes <= 0 {
			return
		}
		u.bar = progressbar.NewOptions64(
			p.TotalBytes,
			progressbar.OptionSetDescription("Downloading"),
			progressbar.OptionSetWidth(20),
			progressbar.OptionShowBytes(true),
			progressbar.OptionThrottle(65*time.Millisecond),
			progressbar.OptionSetRenderBlankState(true),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionClearOnFinish(),
		)
	}

	if p.TotalBytes > 0 {
		u.bar.ChangeMax64(p.TotalBytes)
	}
	_ = u.bar.Set64(p.DownloadedBytes)
}

func (u *stageUI) done() {
	u.clear()
}

func (u *stageUI) clear() {
	if u.bar != nil {
		_ = u.bar.Finish()
		u.bar = nil
	}
	if u.stop != nil {
		u.stop()
		u.stop = nil
	}
}
