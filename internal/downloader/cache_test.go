package downloader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleFeature = `{"type":"FeatureCollection","features":[{"type":"Feature","properties":{"osm_type":"relation","osm_id":51477,"name":"Germany"},"geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}}]}`

func TestLoadCachedObjectSuffixName(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "germany__de__r51477.geojson")
	require.NoError(t, os.WriteFile(path, []byte(sampleFeature), 0o644))

	obj := loadCachedObject(dir, 51477)
	require.NotNil(t, obj)
	assert.Equal(t, path, obj.Path)
	assert.NotContains(t, obj.Tags, "name")
}

func TestLoadCachedObjectPrefixName(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "r51477__legacy.geojson")
	require.NoError(t, os.WriteFile(path, []byte(sampleFeature), 0o644))

	obj := loadCachedObject(dir, 51477)
	require.NotNil(t, obj)
	assert.Equal(t, path, obj.Path)
}

func TestLoadCachedObjectRejectsMismatchedID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "germany__de__r999.geojson")
	require.NoError(t, os.WriteFile(path, []byte(sampleFeature), 0o644))

	assert.Nil(t, loadCachedObject(dir, 999))
}

func TestLoadCachedObjectMissingDir(t *testing.T) {
	assert.Nil(t, loadCachedObject(filepath.Join(t.TempDir(), "nope"), 1))
}
