package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/osmboundaries/internal/tagset"
)

func TestScopePathsIsPure(t *testing.T) {
	p1 := ScopePaths("/data", "germany_DE_r51477", "2")
	p2 := ScopePaths("/data", "germany_DE_r51477", "2")
	assert.Equal(t, p1, p2)
	assert.Equal(t, filepath.Join("/data", "geojson", "germany_DE_r51477", "admin_level=2"), p1.Root)
}

func TestWriteObjectGeoJSONRoundTrip(t *testing.T) {
	dir := t.TempDir()
	tags := tagset.Tags{"name": "Bavaria", "name:en": "Bavaria", "ISO3166-1:alpha2": "DE"}
	geom := orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}

	path, err := WriteObjectGeoJSON(dir, 62379, tags, geom)
	require.NoError(t, err)
	assert.FileExists(t, path)

	feat, err := ReadObjectFeature(path)
	require.NoError(t, err)
	assert.Equal(t, "relation", feat.Properties["osm_type"])
	assert.EqualValues(t, 62379, feat.Properties["osm_id"])
	assert.Equal(t, "Bavaria", feat.Properties["name"])
	assert.Equal(t, geom, feat.Geometry)
}

func TestWriteObjectGeoJSONRemovesStaleSibling(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "old-name__de__r62379.geojson")
	require.NoError(t, os.WriteFile(stale, []byte(`{}`), 0o644))

	tags := tagset.Tags{"name:en": "Bavaria", "ISO3166-1:alpha2": "DE"}
	geom := orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}
	_, err := WriteObjectGeoJSON(dir, 62379, tags, geom)
	require.NoError(t, err)

	_, statErr := os.Stat(stale)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRebuildCombined(t *testing.T) {
	dir := t.TempDir()
	tags := tagset.Tags{"name:en": "A"}
	geom := orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}
	_, err := WriteObjectGeoJSON(dir, 1, tags, geom)
	require.NoError(t, err)
	_, err = WriteObjectGeoJSON(dir, 2, tagset.Tags{"name:en": "B"}, geom)
	require.NoError(t, err)

	combined := filepath.Join(t.TempDir(), "combined.geojson")
	require.NoError(t, RebuildCombined(dir, combined))
	assert.FileExists(t, combined)
}

func TestManifestLoadMissingIsEmpty(t *testing.T) {
	m, err := LoadManifest(filepath.Join(t.TempDir(), "manifest.json"), "x", "2")
	require.NoError(t, err)
	assert.Empty(t, m.Objects)
}

func TestManifestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")
	m := &Manifest{AdmName: "x", AdminLevel: "2", Objects: map[string]*ManifestEntry{
		"51477": {RelationID: 51477, Name: "Germany", Slug: "germany"},
	}}
	require.NoError(t, m.Save(path))

	loaded, err := LoadManifest(path, "x", "2")
	require.NoError(t, err)
	assert.Equal(t, "Germany", loaded.Objects["51477"].Name)
}
