// Package config loads process-wide settings via viper, binding a fixed
// set of environment variables the way the teacher's internal/cmd binds
// its own flags/env.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Settings is the resolved runtime configuration.
type Settings struct {
	DataDir             string
	OverpassURL         string
	HTTPUserAgent       string
	HTTPTimeout         time.Duration
	DownloadTimeout     time.Duration
	LandPolygonsURLs    []string
}

const (
	defaultHTTPTimeoutSec     = 180
	defaultDownloadTimeoutSec = 1800
	defaultOverpassURL        = "https://overpass-api.de/api/interpreter"
	defaultUserAgent          = "osmboundaries/1.0"
)

// Bind registers defaults and environment bindings on v. Call once before
// Load.
func Bind(v *viper.Viper) {
	v.SetDefault("data_dir", "./data")
	v.SetDefault("overpass_url", defaultOverpassURL)
	v.SetDefault("http_user_agent", defaultUserAgent)
	v.SetDefault("http_timeout_sec", defaultHTTPTimeoutSec)
	v.SetDefault("download_timeout_sec", defaultDownloadTimeoutSec)
	v.SetDefault("osm_land_polygons_urls", "")

	v.AutomaticEnv()
	for _, key := range []string{
		"data_dir", "overpass_url", "http_user_agent",
		"http_timeout_sec", "download_timeout_sec", "osm_land_polygons_urls",
	} {
		_ = v.BindEnv(key, strings.ToUpper(key))
	}
}

// Load resolves Settings from v, which must have been passed to Bind.
func Load(v *viper.Viper) Settings {
	return Settings{
		DataDir:          v.GetString("data_dir"),
		OverpassURL:      v.GetString("overpass_url"),
		HTTPUserAgent:    v.GetString("http_user_agent"),
		HTTPTimeout:      time.Duration(v.GetInt("http_timeout_sec")) * time.Second,
		DownloadTimeout:  time.Duration(v.GetInt("download_timeout_sec")) * time.Second,
		LandPolygonsURLs: splitNonEmpty(v.GetString("osm_land_polygons_urls")),
	}
}

func splitNonEmpty(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
