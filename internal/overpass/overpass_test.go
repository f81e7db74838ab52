package overpass

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeEndpoint(t *testing.T) {
	assert.Equal(t, "https://overpass-api.de/api/interpreter",
		normalizeEndpoint("https://overpass-api.de/api/"))
	assert.Equal(t, "https://overpass-api.de/api/interpreter",
		normalizeEndpoint("https://overpass-api.de/api/interpreter"))
}

func TestExtractOSM3SError(t *testing.T) {
	html := `<html><body><p>OSM3S Response</p><strong style="color:#FF0000">rate_limited</strong></body></html>`
	assert.Equal(t, "rate_limited", extractOSM3SError(html))
	assert.Equal(t, "", extractOSM3SError("<html>no banner here</html>"))
}

func TestSubmitFallsBackToSecondEndpoint(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>OSM3S Response<strong>overloaded</strong></html>"))
	}))
	defer bad.Close()

	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"elements":[]}`))
	}))
	defer good.Close()

	c := New(good.URL, "test-agent", 2*time.Second, nil)
	res, err := c.Submit(context.Background(), "relation(1);out;", bad.URL)
	require.NoError(t, err)
	assert.Equal(t, good.URL, res.UsedURL)
}

func TestSubmitAllFail(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	c := New(bad.URL, "test-agent", 2*time.Second, nil)
	_, err := c.Submit(context.Background(), "relation(1);out;", "")
	assert.Error(t, err)
}

func TestParseElements(t *testing.T) {
	payload := map[string]any{
		"elements": []any{
			map[string]any{"type": "node", "id": float64(1), "lat": 1.5, "lon": 2.5},
			map[string]any{"type": "way", "id": float64(2), "nodes": []any{float64(1)}},
			map[string]any{"type": "relation", "id": float64(3), "tags": map[string]any{"name": "X"}},
		},
	}
	els := ElementsOf(payload)
	assert.Len(t, els.Nodes, 1)
	assert.Len(t, els.Ways, 1)
	assert.Len(t, els.Relations, 1)
	assert.Equal(t, "X", els.Relations[3].Tags["name"])
}
