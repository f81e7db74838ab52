package jobs

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/osmboundaries/internal/downloader"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeRunner struct {
	run func(ctx context.Context, params downloader.Params, emit downloader.EmitFunc, shouldCancel func() bool) error
}

func (f *fakeRunner) Run(ctx context.Context, params downloader.Params, emit downloader.EmitFunc, shouldCancel func() bool) error {
	return f.run(ctx, params, emit, shouldCancel)
}

func drain(t *testing.T, j *Job, timeout time.Duration) []Event {
	t.Helper()
	var out []Event
	deadline := time.After(timeout)
	for {
		if ev, ok := j.Pop(); ok {
			out = append(out, ev)
			if ev.Type == "job_finished" {
				return out
			}
			continue
		}
		select {
		case <-j.Notify():
		case <-deadline:
			return out
		}
	}
}

func TestCreateJobRunsToCompletion(t *testing.T) {
	runner := &fakeRunner{run: func(ctx context.Context, params downloader.Params, emit downloader.EmitFunc, shouldCancel func() bool) error {
		emit(downloader.Event{Type: "stage", Data: map[string]any{"stage": "start"}})
		emit(downloader.Event{Type: "done", Data: map[string]any{}})
		return nil
	}}
	mgr := New(runner, nil)
	job := mgr.CreateJob(downloader.Params{AdmName: "test", AdminLevel: "2"})

	events := drain(t, job, 2*time.Second)
	require.NotEmpty(t, events)
	assert.Equal(t, "job_started", events[0].Type)
	assert.Equal(t, "job_finished", events[len(events)-1].Type)
	assert.Equal(t, StatusDone, job.Snapshot().Status)
}

func TestCancelSetsCancelledStatus(t *testing.T) {
	started := make(chan struct{})
	runner := &fakeRunner{run: func(ctx context.Context, params downloader.Params, emit downloader.EmitFunc, shouldCancel func() bool) error {
		close(started)
		for !shouldCancel() {
			time.Sleep(time.Millisecond)
		}
		emit(downloader.Event{Type: "done", Data: map[string]any{"cancelled": true}})
		return nil
	}}
	mgr := New(runner, nil)
	job := mgr.CreateJob(downloader.Params{})
	<-started
	assert.True(t, mgr.Cancel(job.ID))

	events := drain(t, job, 2*time.Second)
	require.NotEmpty(t, events)
	assert.Equal(t, "job_finished", events[len(events)-1].Type)
	assert.Equal(t, StatusCancelled, job.Snapshot().Status)
}

func TestCancelUnknownJobReturnsFalse(t *testing.T) {
	mgr := New(&fakeRunner{run: func(context.Context, downloader.Params, downloader.EmitFunc, func() bool) error { return nil }}, nil)
	assert.False(t, mgr.Cancel("nope"))
}

func TestErrorSetsErrorStatus(t *testing.T) {
	runner := &fakeRunner{run: func(ctx context.Context, params downloader.Params, emit downloader.EmitFunc, shouldCancel func() bool) error {
		return assert.AnError
	}}
	mgr := New(runner, nil)
	job := mgr.CreateJob(downloader.Params{})

	events := drain(t, job, 2*time.Second)
	require.NotEmpty(t, events)
	snap := job.Snapshot()
	assert.Equal(t, StatusError, snap.Status)
	assert.NotEmpty(t, snap.Error)
}

func TestEventQueueCoalescesOverallProgress(t *testing.T) {
	q := newEventQueue("job1", testLogger())
	q.Push(Event{Type: "overall_progress", Data: map[string]any{"done": 1}})
	q.Push(Event{Type: "overall_progress", Data: map[string]any{"done": 2}})
	q.Push(Event{Type: "overall_progress", Data: map[string]any{"done": 3}})

	assert.Equal(t, 1, q.Len())
	ev, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, 1, ev.Data["done"])

	q.FlushPending()
	assert.Equal(t, 1, q.Len())
	ev2, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, 3, ev2.Data["done"])
}

func TestEventQueueBackpressureDrops(t *testing.T) {
	q := newEventQueue("job1", testLogger())
	for i := 0; i < queueCapacity+5; i++ {
		q.Push(Event{Type: "log", Data: map[string]any{"i": i}})
	}
	assert.Equal(t, queueCapacity, q.Len())
	assert.Equal(t, 5, q.Dropped())
}
