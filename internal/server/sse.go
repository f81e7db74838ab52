package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const keepaliveInterval = 15 * time.Second

// handleJobEvents streams a job's event queue as Server-Sent Events,
// draining coalesced/backpressured events in delivery order and
// terminating the connection once job_finished has been sent.
func (s *Server) handleJobEvents(w http.ResponseWriter, r *http.Request, jobID string) {
	job, ok := s.Jobs.Get(jobID)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown job")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	fmt.Fprint(w, "event: hello\ndata: {}\n\n")
	flusher.Flush()

	ctx := r.Context()
	for {
		ev, ok := job.Pop()
		if ok {
			writeSSE(w, ev.Type, ev.Data)
			flusher.Flush()
			if ev.Type == "job_finished" {
				return
			}
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-job.Notify():
		case <-time.After(keepaliveInterval):
			job.FlushPending()
			fmt.Fprint(w, "event: ping\ndata: {}\n\n")
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, eventType string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		payload = []byte("{}")
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, payload)
}
