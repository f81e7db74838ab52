package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func newTestViper(t *testing.T, env map[string]string) *viper.Viper {
	t.Helper()
	for k, v := range env {
		t.Setenv(k, v)
	}
	v := viper.New()
	Bind(v)
	return v
}

func TestLoadDefaults(t *testing.T) {
	v := newTestViper(t, nil)
	s := Load(v)
	assert.Equal(t, "./data", s.DataDir)
	assert.Equal(t, defaultOverpassURL, s.OverpassURL)
	assert.Equal(t, 180*time.Second, s.HTTPTimeout)
	assert.Equal(t, 1800*time.Second, s.DownloadTimeout)
	assert.Nil(t, s.LandPolygonsURLs)
}

func TestLoadFromEnv(t *testing.T) {
	v := newTestViper(t, map[string]string{
		"DATA_DIR":               "/tmp/data",
		"HTTP_TIMEOUT_SEC":       "30",
		"OSM_LAND_POLYGONS_URLS": "https://a.example/z.zip, https://b.example/z.zip",
	})
	s := Load(v)
	assert.Equal(t, "/tmp/data", s.DataDir)
	assert.Equal(t, 30*time.Second, s.HTTPTimeout)
	assert.Equal(t, []string{"https://a.example/z.zip", "https://b.example/z.zip"}, s.LandPolygonsURLs)
}
