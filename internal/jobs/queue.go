package jobs

import (
	"log/slog"
	"sync"

	"github.com/MeKo-Tech/osmboundaries/internal/downloader"
)

// Event is the job-facing alias of the downloader's event type, so the
// rest of this package never imports downloader just to name a type.
type Event = downloader.Event

const queueCapacity = 1024

var coalescedTypes = map[string]struct{}{
	"overall_progress":                {},
	"land_polygons_download_progress": {},
	"clip_cache_stats":                {},
}

// eventQueue is a bounded FIFO with lossy coalescing for a fixed set of
// high-frequency event types: at most one instance of each coalesced type
// sits in the queue at a time, with the newest superseding instance held in
// a "pending" slot until the queued one is delivered. Overflow drops the
// oldest queued event and counts it.
type eventQueue struct {
	mu      sync.Mutex
	items   []Event
	queued  map[string]struct{}
	pending map[string]Event
	dropped int
	logger  *slog.Logger
	jobID   string
	notify  chan struct{}
}

func newEventQueue(jobID string, logger *slog.Logger) *eventQueue {
	return &eventQueue{
		queued:  make(map[string]struct{}),
		pending: make(map[string]Event),
		logger:  logger,
		jobID:   jobID,
		notify:  make(chan struct{}, 1),
	}
}

// Notify returns a channel that receives a value whenever a new event may
// be available to Pop. Consumers should re-check Pop after each receive.
func (q *eventQueue) Notify() <-chan struct{} {
	return q.notify
}

func (q *eventQueue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Push enqueues ev, applying coalescing and backpressure rules.
func (q *eventQueue) Push(ev Event) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, coalesced := coalescedTypes[ev.Type]; coalesced {
		if _, alreadyQueued := q.queued[ev.Type]; alreadyQueued {
			q.pending[ev.Type] = ev
			return
		}
		q.queued[ev.Type] = struct{}{}
	}

	q.enqueueLocked(ev)
	q.wake()
}

func (q *eventQueue) enqueueLocked(ev Event) {
	if len(q.items) >= queueCapacity {
		oldest := q.items[0]
		q.items = q.items[1:]
		if _, coalesced := coalescedTypes[oldest.Type]; coalesced {
			delete(q.queued, oldest.Type)
		}
		q.dropped++
		if q.dropped == 1 || q.dropped == 10 || q.dropped == 100 || q.dropped%1000 == 0 {
			q.logger.Warn("job event queue overflow, dropping oldest", "job_id", q.jobID, "dropped_total", q.dropped)
		}
	}
	q.items = append(q.items, ev)
}

// Pop removes and returns the next event, signaling onEventDelivered for
// its type before returning, so any pending coalesced instance can enqueue.
func (q *eventQueue) Pop() (Event, bool) {
	q.mu.Lock()
	if len(q.items) == 0 {
		q.mu.Unlock()
		return Event{}, false
	}
	ev := q.items[0]
	q.items = q.items[1:]
	q.mu.Unlock()

	q.onEventDelivered(ev.Type)
	return ev, true
}

func (q *eventQueue) onEventDelivered(eventType string) {
	if _, coalesced := coalescedTypes[eventType]; !coalesced {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.queued, eventType)
	if pending, ok := q.pending[eventType]; ok {
		delete(q.pending, eventType)
		q.queued[eventType] = struct{}{}
		q.enqueueLocked(pending)
	}
}

// FlushPending force-enqueues every pending coalesced event whose type has
// no instance queued, used when a keepalive tick fires or the job is
// finishing. A pending event whose type is still queued stays pending until
// that queued instance is delivered.
func (q *eventQueue) FlushPending() {
	q.mu.Lock()
	flushed := false
	for t, ev := range q.pending {
		if _, alreadyQueued := q.queued[t]; alreadyQueued {
			continue
		}
		delete(q.pending, t)
		q.queued[t] = struct{}{}
		q.enqueueLocked(ev)
		flushed = true
	}
	q.mu.Unlock()
	if flushed {
		q.wake()
	}
}

// Len reports the number of events currently queued (for tests/metrics).
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dropped reports the cumulative dropped-event count.
func (q *eventQueue) Dropped() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
