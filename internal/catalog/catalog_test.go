package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/osmboundaries/internal/overpass"
)

func TestScopeToken(t *testing.T) {
	assert.Equal(t, "world", scopeToken(0))
	assert.Equal(t, "r51477", scopeToken(51477))
}

func TestSanitizeSearchQuery(t *testing.T) {
	assert.Equal(t, "empty", sanitizeSearchQuery("   "))
	assert.Equal(t, "germany", sanitizeSearchQuery("Germany!!"))
	assert.Equal(t, "a_b-c", sanitizeSearchQuery("A_B-C"))
}

func TestIsShortASCIIWord(t *testing.T) {
	assert.True(t, isShortASCIIWord("DE"))
	assert.True(t, isShortASCIIWord("USA"))
	assert.False(t, isShortASCIIWord("DEU1"))
	assert.False(t, isShortASCIIWord("a"))
}

func TestIDsCacheRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ids.json")
	saveIDsCache(path, []int64{3, 1, 2})

	got, ok := loadIDsCache(path, time.Hour)
	require.True(t, ok)
	assert.Equal(t, []int64{3, 1, 2}, got)
}

func TestIDsCacheExpires(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ids.json")
	saveIDsCache(path, []int64{1})

	_, ok := loadIDsCache(path, -time.Hour)
	assert.False(t, ok)
}

func TestItemsFromElements(t *testing.T) {
	payload := map[string]any{
		"elements": []any{
			map[string]any{
				"type": "relation",
				"id":   float64(51477),
				"tags": map[string]any{"name": "Germany"},
			},
		},
	}
	items := itemsFromElements(payload)
	require.Len(t, items, 1)
	assert.Equal(t, int64(51477), items[0].RelationID)
	assert.Equal(t, "Germany", items[0].Name)
}

func TestSearchAdminAreasCountryScoring(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"elements":[
			{"type":"relation","id":51477,"tags":{"name":"Germany","ISO3166-1:alpha2":"DE"}},
			{"type":"relation","id":62149,"tags":{"name":"Georgia","ISO3166-1:alpha2":"GE"}}
		]}`))
	}))
	defer server.Close()

	client := overpass.New(server.URL, "test-agent", 2*time.Second, nil)
	cat := New(client, t.TempDir(), 2*time.Second)

	got, err := cat.SearchAdminAreas(context.Background(), "ge", "2", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Georgia", got[0].Name)
}
