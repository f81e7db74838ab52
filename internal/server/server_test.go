package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/osmboundaries/internal/catalog"
	"github.com/MeKo-Tech/osmboundaries/internal/downloader"
	"github.com/MeKo-Tech/osmboundaries/internal/jobs"
	"github.com/MeKo-Tech/osmboundaries/internal/landclip"
	"github.com/MeKo-Tech/osmboundaries/internal/overpass"
	"github.com/MeKo-Tech/osmboundaries/internal/preview"
)

type fakeRunner struct {
	run func(ctx context.Context, params downloader.Params, emit downloader.EmitFunc, shouldCancel func() bool) error
}

func (f *fakeRunner) Run(ctx context.Context, params downloader.Params, emit downloader.EmitFunc, shouldCancel func() bool) error {
	return f.run(ctx, params, emit, shouldCancel)
}

func newTestServer(t *testing.T, runner jobs.Runner) *Server {
	t.Helper()
	dir := t.TempDir()
	client := overpass.New("https://example.invalid/api/interpreter", "test-agent", time.Second, nil)
	cat := catalog.New(client, dir, time.Second)
	prev := preview.New(client, dir, dir, false, time.Second)
	store := landclip.NewStore(dir+"/land.zip", nil, nil)
	mgr := jobs.New(runner, nil)
	return New(mgr, cat, prev, store, dir, nil)
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t, &fakeRunner{})
	ts := httptest.NewServer(srv.Mux())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, false, body["land_polygons_present"])
}

func TestJobLifecycle(t *testing.T) {
	runner := &fakeRunner{run: func(ctx context.Context, params downloader.Params, emit downloader.EmitFunc, shouldCancel func() bool) error {
		emit(downloader.Event{Type: "stage", Data: map[string]any{"stage": "start"}})
		emit(downloader.Event{Type: "done", Data: map[string]any{}})
		return nil
	}}
	srv := newTestServer(t, runner)
	ts := httptest.NewServer(srv.Mux())
	defer ts.Close()

	createBody := `{"admin_level":"2","selected_relation_ids":[51477]}`
	resp, err := http.Post(ts.URL+"/api/jobs", "application/json", strings.NewReader(createBody))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var created map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	jobID, _ := created["job_id"].(string)
	require.NotEmpty(t, jobID)

	time.Sleep(50 * time.Millisecond)
	getResp, err := http.Get(ts.URL + "/api/jobs/" + jobID)
	require.NoError(t, err)
	defer getResp.Body.Close()
	assert.Equal(t, http.StatusOK, getResp.StatusCode)
}

func TestJobCreateRejectsWorldwideNonCountryLevel(t *testing.T) {
	srv := newTestServer(t, &fakeRunner{})
	ts := httptest.NewServer(srv.Mux())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/jobs", "application/json", strings.NewReader(`{"admin_level":"4"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestJobCancelUnknown(t *testing.T) {
	srv := newTestServer(t, &fakeRunner{})
	ts := httptest.NewServer(srv.Mux())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/jobs/doesnotexist/cancel", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestJobEventsStreamsHelloAndFinished(t *testing.T) {
	runner := &fakeRunner{run: func(ctx context.Context, params downloader.Params, emit downloader.EmitFunc, shouldCancel func() bool) error {
		emit(downloader.Event{Type: "done", Data: map[string]any{}})
		return nil
	}}
	srv := newTestServer(t, runner)
	ts := httptest.NewServer(srv.Mux())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/jobs", "application/json", strings.NewReader(`{"admin_level":"2","selected_relation_ids":[1]}`))
	require.NoError(t, err)
	var created map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()
	jobID := created["job_id"].(string)

	streamResp, err := http.Get(ts.URL + "/api/jobs/" + jobID + "/events")
	require.NoError(t, err)
	defer streamResp.Body.Close()
	assert.Equal(t, "text/event-stream", streamResp.Header.Get("Content-Type"))

	scanner := bufio.NewScanner(streamResp.Body)
	var lines []string
	for scanner.Scan() {
		line := scanner.Text()
		lines = append(lines, line)
		if strings.Contains(line, "job_finished") {
			break
		}
	}
	joined := strings.Join(lines, "\n")
	assert.Contains(t, joined, "event: hello")
	assert.Contains(t, joined, "job_finished")
}
