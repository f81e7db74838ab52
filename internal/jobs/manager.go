// Package jobs owns concurrent job lifecycle: registering a download run,
// running it on its own worker goroutine, cancelling it, evicting finished
// jobs past their grace period, and delivering its events through a
// bounded, coalescing queue a streaming HTTP handler can drain.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MeKo-Tech/osmboundaries/internal/downloader"
)

// Status is a job's lifecycle state.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusDone      Status = "done"
	StatusError     Status = "error"
	StatusCancelled Status = "cancelled"
)

func (s Status) terminal() bool {
	return s == StatusDone || s == StatusError || s == StatusCancelled
}

const (
	evictionGrace = 600 * time.Second
	maxTerminal   = 50
)

// Job is one registered download run plus its bookkeeping.
type Job struct {
	ID             string
	CreatedAtEpoch int64
	Params         downloader.Params

	mu             sync.Mutex
	status         Status
	progress       map[string]any
	lastError      string
	cancelled      bool
	finishedAtEpoch int64

	queue *eventQueue
}

// Snapshot is the read-only view returned to API callers.
type Snapshot struct {
	JobID           string         `json:"job_id"`
	CreatedAtEpoch  int64          `json:"created_at_epoch"`
	Status          Status         `json:"status"`
	Progress        map[string]any `json:"progress,omitempty"`
	Error           string         `json:"error,omitempty"`
	Cancelled       bool           `json:"cancelled"`
	FinishedAtEpoch int64          `json:"finished_at_epoch,omitempty"`
}

// Snapshot takes a consistent copy of the job's current state.
func (j *Job) Snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return Snapshot{
		JobID:           j.ID,
		CreatedAtEpoch:  j.CreatedAtEpoch,
		Status:          j.status,
		Progress:        j.progress,
		Error:           j.lastError,
		Cancelled:       j.cancelled,
		FinishedAtEpoch: j.finishedAtEpoch,
	}
}

func (j *Job) setStatus(s Status) {
	j.mu.Lock()
	j.status = s
	j.mu.Unlock()
}

func (j *Job) shouldCancel() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.cancelled
}

// Pop drains the next queued event for streaming, or Notify() to wait for one.
func (j *Job) Pop() (Event, bool) { return j.queue.Pop() }

// Notify returns the wakeup channel for this job's event queue.
func (j *Job) Notify() <-chan struct{} { return j.queue.Notify() }

// FlushPending force-delivers any pending coalesced event (used on keepalive).
func (j *Job) FlushPending() { j.queue.FlushPending() }

// Runner is the pipeline a Manager invokes per job; downloader.Downloader
// satisfies it directly.
type Runner interface {
	Run(ctx context.Context, params downloader.Params, emit downloader.EmitFunc, shouldCancel func() bool) error
}

// Manager owns the registry of active and recently-finished jobs.
type Manager struct {
	runner Runner
	logger *slog.Logger

	mu   sync.Mutex
	jobs map[string]*Job
	// order preserves insertion order for deterministic eviction-by-age scans.
	order []string
}

func New(runner Runner, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{runner: runner, logger: logger, jobs: make(map[string]*Job)}
}

func newJobID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// CreateJob registers params as a new job, evicts stale terminal jobs, and
// starts the worker goroutine.
func (m *Manager) CreateJob(params downloader.Params) *Job {
	m.mu.Lock()
	m.evictLocked()

	job := &Job{
		ID:             newJobID(),
		CreatedAtEpoch: time.Now().Unix(),
		Params:         params,
		status:         StatusQueued,
		queue:          newEventQueue("", m.logger),
	}
	job.queue.jobID = job.ID
	m.jobs[job.ID] = job
	m.order = append(m.order, job.ID)
	m.mu.Unlock()

	go m.run(job)
	return job
}

// ActiveCount reports how many registered jobs have not yet reached a
// terminal status.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, j := range m.jobs {
		j.mu.Lock()
		if !j.status.terminal() {
			n++
		}
		j.mu.Unlock()
	}
	return n
}

// Get looks up a job by id.
func (m *Manager) Get(jobID string) (*Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	return j, ok
}

// Cancel requests cancellation of a running job. Returns false if no such
// job exists.
func (m *Manager) Cancel(jobID string) bool {
	j, ok := m.Get(jobID)
	if !ok {
		return false
	}
	j.mu.Lock()
	j.cancelled = true
	j.mu.Unlock()
	j.queue.Push(Event{Type: "log", Data: map[string]any{"message": "Cancel requested"}})
	return true
}

func (m *Manager) evictLocked() {
	now := time.Now()
	terminal := make([]string, 0, len(m.order))
	var kept []string
	for _, id := range m.order {
		j, ok := m.jobs[id]
		if !ok {
			continue
		}
		j.mu.Lock()
		status := j.status
		finishedAt := j.finishedAtEpoch
		j.mu.Unlock()

		if status.terminal() {
			if finishedAt > 0 && now.Sub(time.Unix(finishedAt, 0)) > evictionGrace {
				delete(m.jobs, id)
				continue
			}
			terminal = append(terminal, id)
		}
		kept = append(kept, id)
	}

	for len(terminal) > maxTerminal {
		oldest := terminal[0]
		terminal = terminal[1:]
		delete(m.jobs, oldest)
		kept = removeID(kept, oldest)
	}
	m.order = kept
}

func removeID(ids []string, target string) []string {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}

func (m *Manager) run(j *Job) {
	j.setStatus(StatusRunning)
	j.queue.Push(Event{Type: "job_started", Data: map[string]any{"job_id": j.ID, "params": j.Params}})

	finalStatus := StatusDone
	emit := func(ev downloader.Event) {
		if ev.Type == "done" {
			if cancelled, _ := ev.Data["cancelled"].(bool); cancelled {
				finalStatus = StatusCancelled
			}
		}
		if ev.Type == "overall_progress" {
			j.mu.Lock()
			j.progress = ev.Data
			j.mu.Unlock()
		}
		j.queue.Push(Event(ev))
	}

	err := m.runner.Run(context.Background(), j.Params, emit, j.shouldCancel)
	if err != nil {
		finalStatus = StatusError
		j.mu.Lock()
		j.lastError = err.Error()
		j.mu.Unlock()
		j.queue.Push(Event{Type: "error", Data: map[string]any{"message": err.Error()}})
	}

	j.mu.Lock()
	j.finishedAtEpoch = time.Now().Unix()
	j.mu.Unlock()
	j.setStatus(finalStatus)

	if dropped := j.queue.Dropped(); dropped > 0 {
		j.queue.Push(Event{Type: "log", Data: map[string]any{"message": fmt.Sprintf("dropped %d events due to backpressure", dropped)}})
	}
	j.queue.FlushPending()
	j.queue.Push(Event{Type: "job_finished", Data: map[string]any{"job_id": j.ID, "status": string(finalStatus)}})
}
