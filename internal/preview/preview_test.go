package preview

import (
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDedupePositive(t *testing.T) {
	got := dedupePositive([]int64{1, 2, 1, -1, 0, 3})
	assert.Equal(t, []int64{1, 2, 3}, got)
}

func TestEndpointCacheKeyStable(t *testing.T) {
	a := endpointCacheKey("https://overpass-api.de/api/interpreter")
	b := endpointCacheKey("HTTPS://OVERPASS-API.DE/API/INTERPRETER ")
	assert.Equal(t, a, b)
}

func TestCachedFeatureRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "r1.json")
	geom := orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}
	feat := geojson.NewFeature(geom)
	feat.Properties = map[string]any{"name": "Test"}

	saveCachedFeature(path, feat)
	loaded := loadCachedFeature(path)
	require.NotNil(t, loaded)
	assert.Equal(t, "Test", loaded.Properties["name"])
}

func TestLoadCachedFeatureMissing(t *testing.T) {
	assert.Nil(t, loadCachedFeature(filepath.Join(t.TempDir(), "nope.json")))
}

func TestCachedFeatureReadsEndpointCacheWithoutFetching(t *testing.T) {
	f := New(nil, t.TempDir(), t.TempDir(), false, 0)

	geom := orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}
	feat := geojson.NewFeature(geom)
	feat.Properties = map[string]any{"name": "Cached Relation"}
	saveCachedFeature(f.previewCacheFile(42, "https://overpass-api.de/api/interpreter"), feat)

	got := f.CachedFeature(nil, 42, "https://overpass-api.de/api/interpreter")
	require.NotNil(t, got)
	assert.Equal(t, "Cached Relation", got.Properties["name"])
}

func TestCachedFeatureReturnsNilOnMiss(t *testing.T) {
	f := New(nil, t.TempDir(), t.TempDir(), false, 0)
	assert.Nil(t, f.CachedFeature(nil, 999, "https://overpass-api.de/api/interpreter"))
}
