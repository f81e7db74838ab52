package downloader

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/MeKo-Tech/osmboundaries/internal/tagset"
)

// cachedObject is a previously exported per-relation feature loaded back off
// disk, validated against the relation id it claims to represent.
type cachedObject struct {
	Geom orb.Geometry
	Tags tagset.Tags
	Path string
}

// loadCachedObject looks for any existing object file for rid under dir,
// accepting both the current "<slug>__<iso2>__r<rid>.geojson" naming and a
// legacy "r<rid>__<suffix>.geojson" form, picks the most recently modified
// candidate, and validates its feature before returning it.
func loadCachedObject(dir string, rid int64) *cachedObject {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	suffix := ridSuffix(rid)
	prefix := ridPrefix(rid)

	type cand struct {
		path  string
		mtime int64
	}
	var candidates []cand
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, suffix) && !strings.HasPrefix(name, prefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		candidates = append(candidates, cand{filepath.Join(dir, name), info.ModTime().UnixNano()})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].mtime > candidates[j].mtime })

	for _, c := range candidates {
		obj := parseAndValidate(c.path, rid)
		if obj != nil {
			return obj
		}
	}
	return nil
}

func ridSuffix(rid int64) string {
	return "__r" + strconv.FormatInt(rid, 10) + ".geojson"
}

func ridPrefix(rid int64) string {
	return "r" + strconv.FormatInt(rid, 10) + "__"
}

func parseAndValidate(path string, rid int64) *cachedObject {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil || len(fc.Features) == 0 {
		return nil
	}
	feat := fc.Features[0]
	if feat.Geometry == nil {
		return nil
	}

	osmID := rid
	if raw, ok := feat.Properties["osm_id"]; ok {
		switch v := raw.(type) {
		case float64:
			osmID = int64(v)
		case int64:
			osmID = v
		}
	}
	if osmID != rid {
		return nil
	}

	tags := tagset.StripReserved(feat.Properties)
	return &cachedObject{Geom: feat.Geometry, Tags: tags, Path: path}
}
