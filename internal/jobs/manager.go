package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tubescribe/tubescribe/internal/fetch"
	"github.com/tubescribe/tubescribe/internal/ffmpeg"
	"github.com/tubescribe/tubescribe/internal/pipeline"
)

// State is the lifecycle position of a job. Active states mirror the
// pipeline stages one to one.
type State string

const (
	StateQueued       State = "queued"
	StateFetching     State = State(pipeline.StageFetch)
	StateConverting   State = State(pipeline.StageConvert)
	StateTranscribing State = State(pipeline.StageTranscribe)
	StateExporting    State = State(pipeline.StageExport)
	StateDone         State = "done"
	StateFailed       State = "failed"
	StateCanceled     State = "canceled"
)

var (
	// ErrTooManyJobs is returned when all worker slots are taken.
	ErrTooManyJobs = errors.New("too many active jobs")

	// ErrNotFound is returned for unknown job ids.
	ErrNotFound = errors.New("job not found")

	// ErrJobActive is returned when deleting a job that is still running.
	ErrJobActive = errors.New("job is still active")

	// ErrJobFinished is returned when canceling a job in a terminal state.
	ErrJobFinished = errors.New("job already finished")
)

// Job is one tracked pipeline run.
type Job struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	State     State     `json:"state"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Title          string  `json:"title,omitempty"`
	AudioPath      string  `json:"audioPath,omitempty"`
	TranscriptPath string  `json:"transcriptPath,omitempty"`
	MediaSeconds   float64 `json:"mediaSeconds,omitempty"`
	SkippedSilent  bool    `json:"skippedSilent,omitempty"`

	transcript string
	cancel     context.CancelFunc
}

// Terminal reports whether the job can no longer change state.
func (j Job) Terminal() bool {
	switch j.State {
	case StateDone, StateFailed, StateCanceled:
		return true
	default:
		return false
	}
}

// Runner executes one pipeline request.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// Manager owns the job registry, bounds concurrent executions, and feeds
// the event bus that API clients poll.
type Manager struct {
	mu     sync.RWMutex
	jobs   map[string]*Job
	order  []string
	slots  chan struct{}
	bus    *EventBus
	runner Runner
	logger *zap.Logger

	wg sync.WaitGroup
}

// NewManager creates a manager allowing maxActive concurrent jobs.
func NewManager(runner Runner, maxActive int, logger *zap.Logger) *Manager {
	if maxActive <= 0 {
		maxActive = 2
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Manager{
		jobs:   make(map[string]*Job),
		slots:  make(chan struct{}, maxActive),
		bus:    NewEventBus(0),
		runner: runner,
		logger: logger,
	}
}

// Submit registers a new job and starts it in the background. It returns
// ErrTooManyJobs when every worker slot is taken.
func (m *Manager) Submit(req pipeline.Request) (Job, error) {
	if err := fetch.ValidateURL(req.URL); err != nil {
		return Job{}, err
	}

	select {
	case m.slots <- struct{}{}:
	default:
		return Job{}, ErrTooManyJobs
	}

	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now()
	job := &Job{
		ID:        uuid.NewString(),
		URL:       req.URL,
		State:     StateQueued,
		CreatedAt: now,
		UpdatedAt: now,
		cancel:    cancel,
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.order = append(m.order, job.ID)
	m.mu.Unlock()

	m.publishStatus(job.ID, StateQueued)

	m.wg.Add(1)
	go m.execute(ctx, job.ID, req)

	return *job, nil
}

func (m *Manager) execute(ctx context.Context, jobID string, req pipeline.Request) {
	defer m.wg.Done()
	defer func() { <-m.slots }()

	req.OnStage = func(stage pipeline.Stage) {
		if m.setState(jobID, State(stage)) {
			m.publishStatus(jobID, State(stage))
		}
	}
	req.OnProgress = func(p fetch.Progress) {
		m.bus.Publish(Event{
			JobID:   jobID,
			Type:    EventTypeProgress,
			Message: p.Status,
			Percent: p.Percent,
		})
	}
	req.OnLog = func(log ffmpeg.CommandLog) {
		m.bus.Publish(Event{
			JobID:    jobID,
			Type:     EventTypeLog,
			Command:  log.Command,
			ExitCode: log.ExitCode,
			Stderr:   log.Stderr,
		})
	}

	result, err := m.runner.Run(ctx, req)
	if err != nil {
		m.finishWithError(jobID, err)
		return
	}

	m.mu.Lock()
	if job, ok := m.jobs[jobID]; ok {
		job.Title = result.Title
		job.AudioPath = result.AudioPath
		job.TranscriptPath = result.TranscriptPath
		job.MediaSeconds = result.MediaDuration.Seconds()
		job.SkippedSilent = result.SkippedSilent
		if result.Transcript != nil {
			job.transcript = result.Transcript.Text
		}
	}
	m.mu.Unlock()

	if m.setState(jobID, StateDone) {
		m.bus.Publish(Event{
			JobID:     jobID,
			Type:      EventTypeResult,
			State:     StateDone,
			AudioPath: result.AudioPath,
			TextPath:  result.TranscriptPath,
		})
	}
}

func (m *Manager) finishWithError(jobID string, err error) {
	// A canceled job keeps its canceled state; the pipeline error that
	// follows the context cancellation is not a failure of its own.
	m.mu.Lock()
	if job, ok := m.jobs[jobID]; ok && job.State == StateCanceled {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	if errors.Is(err, context.Canceled) {
		m.setState(jobID, StateCanceled)
		m.publishStatus(jobID, StateCanceled)
		return
	}

	if m.setState(jobID, StateFailed) {
		m.mu.Lock()
		if job, ok := m.jobs[jobID]; ok {
			job.Error = err.Error()
		}
		m.mu.Unlock()
		m.bus.Publish(Event{
			JobID:   jobID,
			Type:    EventTypeError,
			State:   StateFailed,
			Message: err.Error(),
		})
	}
}

// Get returns a snapshot of one job.
func (m *Manager) Get(id string) (Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	return *job, nil
}

// List returns snapshots of all jobs, newest first.
func (m *Manager) List() []Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Job, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		if job, ok := m.jobs[m.order[i]]; ok {
			out = append(out, *job)
		}
	}
	return out
}

// Transcript returns the transcript text of a finished job.
func (m *Manager) Transcript(id string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[id]
	if !ok {
		return "", ErrNotFound
	}
	return job.transcript, nil
}

// Cancel stops an active job.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	job, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	if job.Terminal() {
		m.mu.Unlock()
		return ErrJobFinished
	}

	job.State = StateCanceled
	job.UpdatedAt = time.Now()
	cancel := job.cancel
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.publishStatus(id, StateCanceled)
	return nil
}

// Delete removes a finished job from the registry.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if !job.Terminal() {
		return ErrJobActive
	}

	delete(m.jobs, id)
	for i, jobID := range m.order {
		if jobID == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

// EventsSince returns a job's events after the given sequence number.
func (m *Manager) EventsSince(id string, seq int64) ([]Event, error) {
	m.mu.RLock()
	_, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return m.bus.Since(id, seq), nil
}

// ActiveCount reports how many worker slots are in use.
func (m *Manager) ActiveCount() int {
	return len(m.slots)
}

// Wait blocks until all background jobs have finished. Used on shutdown.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) setState(id string, to State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return false
	}
	if job.State == to {
		return false
	}
	if !isValidTransition(job.State, to) {
		m.logger.Debug("ignoring invalid job transition",
			zap.String("job", id),
			zap.String("from", string(job.State)),
			zap.String("to", string(to)))
		return false
	}

	job.State = to
	job.UpdatedAt = time.Now()
	return true
}

func (m *Manager) publishStatus(id string, state State) {
	m.bus.Publish(Event{JobID: id, Type: EventTypeStatus, State: state})
}

// isValidTransition enforces the allowed job state machine edges.
func isValidTransition(from, to State) bool {
	switch from {
	case StateQueued:
		return to == StateFetching || to == StateFailed || to == StateCanceled
	case StateFetching:
		return to == StateConverting || to == StateDone || to == StateFailed || to == StateCanceled
	case StateConverting:
		return to == StateTranscribing || to == StateExporting || to == StateFailed || to == StateCanceled
	case StateTranscribing:
		return to == StateExporting || to == StateFailed || to == StateCanceled
	case StateExporting:
		return to == StateDone || to == StateFailed || to == StateCanceled
	default:
		return false
	}
}

// ParseState validates a state string from the API.
func ParseState(raw string) (State, error) {
	switch State(raw) {
	case StateQueued, StateFetching, StateConverting, StateTranscribing, StateExporting, StateDone, StateFailed, StateCanceled:
		return State(raw), nil
	default:
		return "", fmt.Errorf("unknown job state %q", raw)
	}
}
