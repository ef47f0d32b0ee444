package pipeline

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tubescribe/tubescribe/internal/fetch"
	"github.com/tubescribe/tubescribe/internal/ffmpeg"
	"github.com/tubescribe/tubescribe/internal/history"
	"github.com/tubescribe/tubescribe/internal/whisper"
)

const testVideoURL = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

type fakeFetcher struct {
	t        *testing.T
	err      error
	titles   []string
	duration time.Duration

	calls      int
	lastReq    fetch.Request
	stagedPath string
}

func (f *fakeFetcher) Fetch(_ context.Context, req fetch.Request) (*fetch.Result, error) {
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}

	title := "Test Video"
	if len(f.titles) > 0 {
		title = f.titles[(f.calls-1)%len(f.titles)]
	}

	staging := f.t.TempDir()
	f.stagedPath = filepath.Join(staging, "dQw4w9WgXcQ.mp3")
	require.NoError(f.t, os.WriteFile(f.stagedPath, []byte("fake mp3 payload"), 0o644))

	return &fetch.Result{
		AudioPath:     f.stagedPath,
		VideoID:       "dQw4w9WgXcQ",
		Title:         title,
		Duration:      f.duration,
		SuggestedName: fetch.SanitizeFilename(title) + ".mp3",
	}, nil
}

type fakeTranscoder struct {
	ensureErr  error
	convertErr error
	convertLog ffmpeg.CommandLog
	wavData    []byte
	probe      time.Duration
	probeErr   error

	ensures  int
	converts int
	probes   int
}

func (f *fakeTranscoder) Ensure(context.Context) (ffmpeg.Location, error) {
	f.ensures++
	if f.ensureErr != nil {
		return ffmpeg.Location{}, f.ensureErr
	}
	return ffmpeg.Location{FFmpeg: "/opt/ffmpeg/ffmpeg", FFprobe: "/opt/ffmpeg/ffprobe", Dir: "/opt/ffmpeg"}, nil
}

func (f *fakeTranscoder) ConvertForSpeech(_ context.Context, inputPath, outputPath string) (ffmpeg.CommandLog, error) {
	f.converts++
	log := f.convertLog
	if log.Command == "" {
		log = ffmpeg.CommandLog{Command: "ffmpeg", Args: []string{"-i", inputPath, outputPath}}
	}
	if f.convertErr != nil {
		return log, f.convertErr
	}

	data := f.wavData
	if data == nil {
		data = wavBytes(toneSamples(1600))
	}
	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		return log, err
	}
	return log, nil
}

func (f *fakeTranscoder) ProbeDuration(context.Context, string) (time.Duration, error) {
	f.probes++
	return f.probe, f.probeErr
}

type fakeRecognizer struct {
	transcript *whisper.Transcript
	err        error

	calls     int
	lastAudio string
	lastLang  string
}

func (f *fakeRecognizer) Transcribe(_ context.Context, audioPath, language string) (*whisper.Transcript, error) {
	f.calls++
	f.lastAudio = audioPath
	f.lastLang = language
	if f.err != nil {
		return nil, f.err
	}
	return f.transcript, nil
}

type fakeRecorder struct {
	entries []history.Entry
}

func (f *fakeRecorder) Record(_ context.Context, e history.Entry) (int64, error) {
	f.entries = append(f.entries, e)
	return int64(len(f.entries)), nil
}

func newTestRunner(fetcher Fetcher, transcoder Transcoder, recognizer Recognizer) *Runner {
	return NewRunner(fetcher, transcoder, recognizer, zap.NewNop())
}

func wavBytes(samples []int16) []byte {
	var buf bytes.Buffer
	dataSize := len(samples) * 2
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint32(16000))
	binary.Write(&buf, binary.LittleEndian, uint32(32000))
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(dataSize))
	binary.Write(&buf, binary.LittleEndian, samples)
	return buf.Bytes()
}

func toneSamples(n int) []int16 {
	samples := make([]int16, n)
	for i := range samples {
		if i%8 < 4 {
			samples[i] = 12000
		} else {
			samples[i] = -12000
		}
	}
	return samples
}

func TestRunExtractsAudioWithoutTranscription(t *testing.T) {
	t.Parallel()

	dest := t.TempDir()
	fetcher := &fakeFetcher{t: t, duration: 90 * time.Second}
	transcoder := &fakeTranscoder{}
	recognizer := &fakeRecognizer{}
	runner := newTestRunner(fetcher, transcoder, recognizer)

	result, err := runner.Run(context.Background(), Request{
		URL:     testVideoURL,
		DestDir: dest,
	})
	require.NoError(t, err)

	wantAudio := filepath.Join(dest, "Test Video.mp3")
	require.Equal(t, wantAudio, result.AudioPath)
	data, err := os.ReadFile(wantAudio)
	require.NoError(t, err)
	require.Equal(t, "fake mp3 payload", string(data))

	require.NoFileExists(t, fetcher.stagedPath, "artifact should be moved, not copied")
	require.NoFileExists(t, filepath.Join(dest, "Test Video.txt"))
	require.Nil(t, result.Transcript)
	require.Empty(t, result.TranscriptPath)
	require.Equal(t, "Test Video", result.Title)
	require.Equal(t, "dQw4w9WgXcQ", result.VideoID)
	require.Equal(t, 90*time.Second, result.MediaDuration)
	require.Zero(t, transcoder.converts)
	require.Zero(t, transcoder.probes)
	require.Zero(t, recognizer.calls)
}

func TestRunTranscribesAndWritesTxt(t *testing.T) {
	t.Parallel()

	dest := t.TempDir()
	fetcher := &fakeFetcher{t: t, duration: time.Minute}
	transcoder := &fakeTranscoder{}
	recognizer := &fakeRecognizer{transcript: &whisper.Transcript{Text: "hello from the video", Language: "en"}}
	runner := newTestRunner(fetcher, transcoder, recognizer)

	var stages []Stage
	result, err := runner.Run(context.Background(), Request{
		URL:        testVideoURL,
		DestDir:    dest,
		Transcribe: true,
		WriteTxt:   true,
		Language:   "en",
		OnStage:    func(s Stage) { stages = append(stages, s) },
	})
	require.NoError(t, err)

	require.Equal(t, []Stage{StageFetch, StageConvert, StageTranscribe, StageExport}, stages)
	require.Equal(t, "/opt/ffmpeg", fetcher.lastReq.FFmpegDir)
	require.Equal(t, "en", recognizer.lastLang)
	require.Contains(t, recognizer.lastAudio, "speech-16k-mono.wav")

	require.NotNil(t, result.Transcript)
	require.Equal(t, "hello from the video", result.Transcript.Text)

	txtPath := filepath.Join(dest, "Test Video.txt")
	require.Equal(t, txtPath, result.TranscriptPath)
	content, err := os.ReadFile(txtPath)
	require.NoError(t, err)
	require.Equal(t, "hello from the video\n", string(content))
	require.Len(t, result.Logs, 1)
	require.Equal(t, "ffmpeg", result.Logs[0].Command)
}

func TestRunInvalidURLFailsBeforeAnySideEffect(t *testing.T) {
	t.Parallel()

	dest := t.TempDir()
	fetcher := &fakeFetcher{t: t}
	transcoder := &fakeTranscoder{}
	runner := newTestRunner(fetcher, transcoder, &fakeRecognizer{})

	_, err := runner.Run(context.Background(), Request{
		URL:     "https://example.com/not-a-video",
		DestDir: dest,
	})
	require.ErrorIs(t, err, fetch.ErrInvalidURL)

	var perr *Error
	require.ErrorAs(t, err, &perr)
	require.Equal(t, StageFetch, perr.Stage)

	require.Zero(t, fetcher.calls)
	require.Zero(t, transcoder.ensures)
	entries, readErr := os.ReadDir(dest)
	require.NoError(t, readErr)
	require.Empty(t, entries)
}

func TestRunRequiresDestinationDir(t *testing.T) {
	t.Parallel()

	runner := newTestRunner(&fakeFetcher{t: t}, &fakeTranscoder{}, &fakeRecognizer{})

	_, err := runner.Run(context.Background(), Request{URL: testVideoURL, DestDir: "   "})
	var perr *Error
	require.ErrorAs(t, err, &perr)
	require.Equal(t, StageFetch, perr.Stage)
	require.Contains(t, perr.Message, "destination directory")
}

func TestRunFetchFailureLeavesDestEmpty(t *testing.T) {
	t.Parallel()

	dest := t.TempDir()
	fetcher := &fakeFetcher{t: t, err: errors.New("HTTP 403")}
	recorder := &fakeRecorder{}
	runner := newTestRunner(fetcher, &fakeTranscoder{}, &fakeRecognizer{})
	runner.History = recorder

	_, err := runner.Run(context.Background(), Request{URL: testVideoURL, DestDir: dest})

	var perr *Error
	require.ErrorAs(t, err, &perr)
	require.Equal(t, StageFetch, perr.Stage)
	require.ErrorContains(t, err, "audio download failed")

	entries, readErr := os.ReadDir(dest)
	require.NoError(t, readErr)
	require.Empty(t, entries)

	require.Len(t, recorder.entries, 1)
	require.Equal(t, history.StatusFailed, recorder.entries[0].Status)
	require.Contains(t, recorder.entries[0].Error, "audio download failed")
	require.Empty(t, recorder.entries[0].AudioPath)
}

func TestRunTranscriptionFailureKeepsAudio(t *testing.T) {
	t.Parallel()

	dest := t.TempDir()
	fetcher := &fakeFetcher{t: t, duration: time.Minute}
	recognizer := &fakeRecognizer{err: errors.New("model exploded")}
	recorder := &fakeRecorder{}
	runner := newTestRunner(fetcher, &fakeTranscoder{}, recognizer)
	runner.History = recorder

	_, err := runner.Run(context.Background(), Request{
		URL:        testVideoURL,
		DestDir:    dest,
		Transcribe: true,
		WriteTxt:   true,
	})

	var perr *Error
	require.ErrorAs(t, err, &perr)
	require.Equal(t, StageTranscribe, perr.Stage)

	require.FileExists(t, filepath.Join(dest, "Test Video.mp3"))
	require.NoFileExists(t, filepath.Join(dest, "Test Video.txt"))

	require.Len(t, recorder.entries, 1)
	require.Equal(t, history.StatusFailed, recorder.entries[0].Status)
	require.Equal(t, filepath.Join(dest, "Test Video.mp3"), recorder.entries[0].AudioPath)
}

func TestRunConvertFailureCarriesCommandLog(t *testing.T) {
	t.Parallel()

	dest := t.TempDir()
	transcoder := &fakeTranscoder{
		convertErr: errors.New("exit status 1"),
		convertLog: ffmpeg.CommandLog{Command: "ffmpeg", ExitCode: 1, Stderr: "Invalid data found"},
	}
	runner := newTestRunner(&fakeFetcher{t: t, duration: time.Minute}, transcoder, &fakeRecognizer{})

	var logs []ffmpeg.CommandLog
	_, err := runner.Run(context.Background(), Request{
		URL:        testVideoURL,
		DestDir:    dest,
		Transcribe: true,
		OnLog:      func(log ffmpeg.CommandLog) { logs = append(logs, log) },
	})

	var perr *Error
	require.ErrorAs(t, err, &perr)
	require.Equal(t, StageConvert, perr.Stage)
	require.Equal(t, 1, perr.CommandLog.ExitCode)
	require.Contains(t, perr.CommandLog.Stderr, "Invalid data found")
	require.Len(t, logs, 1)
}

func TestRunSilenceGateSkipsTranscription(t *testing.T) {
	t.Parallel()

	dest := t.TempDir()
	transcoder := &fakeTranscoder{wavData: wavBytes(make([]int16, 16000))}
	recognizer := &fakeRecognizer{transcript: &whisper.Transcript{Text: "should not be used"}}
	runner := newTestRunner(&fakeFetcher{t: t, duration: time.Second}, transcoder, recognizer)

	var stages []Stage
	result, err := runner.Run(context.Background(), Request{
		URL:         testVideoURL,
		DestDir:     dest,
		Transcribe:  true,
		WriteTxt:    true,
		SilenceGate: true,
		OnStage:     func(s Stage) { stages = append(stages, s) },
	})
	require.NoError(t, err)

	require.True(t, result.SkippedSilent)
	require.Equal(t, blankAudioToken, result.Transcript.Text)
	require.Zero(t, recognizer.calls)
	require.Equal(t, []Stage{StageFetch, StageConvert, StageExport}, stages)

	content, err := os.ReadFile(filepath.Join(dest, "Test Video.txt"))
	require.NoError(t, err)
	require.Equal(t, blankAudioToken+"\n", string(content))
}

func TestRunSilenceGatePassesSpeech(t *testing.T) {
	t.Parallel()

	dest := t.TempDir()
	recognizer := &fakeRecognizer{transcript: &whisper.Transcript{Text: "real words"}}
	runner := newTestRunner(&fakeFetcher{t: t, duration: time.Second}, &fakeTranscoder{}, recognizer)

	result, err := runner.Run(context.Background(), Request{
		URL:         testVideoURL,
		DestDir:     dest,
		Transcribe:  true,
		SilenceGate: true,
	})
	require.NoError(t, err)
	require.False(t, result.SkippedSilent)
	require.Equal(t, 1, recognizer.calls)
	require.Equal(t, "real words", result.Transcript.Text)
}

func TestRunNoTxtWhenDisabled(t *testing.T) {
	t.Parallel()

	dest := t.TempDir()
	recognizer := &fakeRecognizer{transcript: &whisper.Transcript{Text: "kept in memory"}}
	runner := newTestRunner(&fakeFetcher{t: t, duration: time.Second}, &fakeTranscoder{}, recognizer)

	result, err := runner.Run(context.Background(), Request{
		URL:        testVideoURL,
		DestDir:    dest,
		Transcribe: true,
	})
	require.NoError(t, err)
	require.Empty(t, result.TranscriptPath)
	require.Equal(t, "kept in memory", result.Transcript.Text)
	require.NoFileExists(t, filepath.Join(dest, "Test Video.txt"))
}

func TestRunAvoidsClobberingExistingFiles(t *testing.T) {
	t.Parallel()

	dest := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dest, "Test Video.mp3"), []byte("older download"), 0o644))

	runner := newTestRunner(&fakeFetcher{t: t, duration: time.Second}, &fakeTranscoder{}, &fakeRecognizer{})
	result, err := runner.Run(context.Background(), Request{URL: testVideoURL, DestDir: dest})
	require.NoError(t, err)

	require.Equal(t, filepath.Join(dest, "Test Video-2.mp3"), result.AudioPath)
	data, err := os.ReadFile(filepath.Join(dest, "Test Video.mp3"))
	require.NoError(t, err)
	require.Equal(t, "older download", string(data))
}

func TestRunProbesDurationWhenMetadataLacksIt(t *testing.T) {
	t.Parallel()

	dest := t.TempDir()
	transcoder := &fakeTranscoder{probe: 137 * time.Second}
	runner := newTestRunner(&fakeFetcher{t: t}, transcoder, &fakeRecognizer{})

	result, err := runner.Run(context.Background(), Request{URL: testVideoURL, DestDir: dest})
	require.NoError(t, err)
	require.Equal(t, 1, transcoder.probes)
	require.Equal(t, 137*time.Second, result.MediaDuration)
}

func TestRunRecordsHistoryOnSuccess(t *testing.T) {
	t.Parallel()

	dest := t.TempDir()
	recognizer := &fakeRecognizer{transcript: &whisper.Transcript{Text: "archived"}}
	recorder := &fakeRecorder{}
	runner := newTestRunner(&fakeFetcher{t: t, duration: 42 * time.Second}, &fakeTranscoder{}, recognizer)
	runner.History = recorder

	_, err := runner.Run(context.Background(), Request{
		URL:        testVideoURL,
		DestDir:    dest,
		Transcribe: true,
		WriteTxt:   true,
		Model:      "small",
		Language:   "en",
	})
	require.NoError(t, err)

	require.Len(t, recorder.entries, 1)
	entry := recorder.entries[0]
	require.Equal(t, history.StatusDone, entry.Status)
	require.Equal(t, testVideoURL, entry.URL)
	require.Equal(t, "Test Video", entry.Title)
	require.Equal(t, "small", entry.Model)
	require.Equal(t, "en", entry.Language)
	require.Equal(t, filepath.Join(dest, "Test Video.mp3"), entry.AudioPath)
	require.Equal(t, filepath.Join(dest, "Test Video.txt"), entry.TranscriptPath)
	require.InDelta(t, 42.0, entry.MediaSeconds, 0.001)
	require.GreaterOrEqual(t, entry.ElapsedMS, int64(0))
	require.Empty(t, entry.Error)
}

func TestRunFFmpegEnsureFailureIsFetchStage(t *testing.T) {
	t.Parallel()

	transcoder := &fakeTranscoder{ensureErr: errors.New("no ffmpeg anywhere")}
	runner := newTestRunner(&fakeFetcher{t: t}, transcoder, &fakeRecognizer{})

	_, err := runner.Run(context.Background(), Request{URL: testVideoURL, DestDir: t.TempDir()})
	var perr *Error
	require.ErrorAs(t, err, &perr)
	require.Equal(t, StageFetch, perr.Stage)
	require.ErrorContains(t, err, "ffmpeg is unavailable")
}

func TestRunAllProcessesEveryURL(t *testing.T) {
	t.Parallel()

	dest := t.TempDir()
	fetcher := &fakeFetcher{t: t, titles: []string{"First Clip", "Second Clip"}, duration: time.Second}
	runner := newTestRunner(fetcher, &fakeTranscoder{}, &fakeRecognizer{})

	items := runner.RunAll(context.Background(), []string{testVideoURL, "https://youtu.be/dQw4w9WgXcQ"}, Request{DestDir: dest}, 10*time.Millisecond)
	require.Len(t, items, 2)
	require.Zero(t, Failed(items))
	require.FileExists(t, filepath.Join(dest, "First Clip.mp3"))
	require.FileExists(t, filepath.Join(dest, "Second Clip.mp3"))
	require.Equal(t, 2, fetcher.calls)
}

func TestRunAllCountsFailures(t *testing.T) {
	t.Parallel()

	dest := t.TempDir()
	runner := newTestRunner(&fakeFetcher{t: t, duration: time.Second}, &fakeTranscoder{}, &fakeRecognizer{})

	items := runner.RunAll(context.Background(), []string{"https://example.com/nope", testVideoURL}, Request{DestDir: dest}, 0)
	require.Len(t, items, 2)
	require.Equal(t, 1, Failed(items))
	require.Error(t, items[0].Err)
	require.NoError(t, items[1].Err)
}

func TestRunAllStopsOnCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fetcher := &fakeFetcher{t: t}
	runner := newTestRunner(fetcher, &fakeTranscoder{}, &fakeRecognizer{})

	items := runner.RunAll(ctx, []string{testVideoURL, testVideoURL}, Request{DestDir: t.TempDir()}, time.Second)
	require.Len(t, items, 2)
	for _, item := range items {
		require.ErrorIs(t, item.Err, context.Canceled)
	}
	require.Zero(t, fetcher.calls)
}

func TestUniqueDestPath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	path, err := uniqueDestPath(dir, "clip.mp3")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "clip.mp3"), path)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "clip.mp3"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "clip-2.mp3"), nil, 0o644))

	path, err = uniqueDestPath(dir, "clip.mp3")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "clip-3.mp3"), path)
}

func TestMoveFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "out", "dst.bin")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Dir(dst), 0o755))

	require.NoError(t, moveFile(src, dst))
	require.NoFileExists(t, src)
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, "payload", string(data))
}
