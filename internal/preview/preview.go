// Package preview resolves lightweight geometry previews for a set of
// relation ids, preferring already-exported scope objects, then a
// per-endpoint disk cache, and only falling back to a live Overpass fetch
// for whatever remains, with a half-split retry on chunk failures.
package preview

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb/geojson"
	"github.com/twpayne/go-geos"

	"github.com/MeKo-Tech/osmboundaries/internal/osmgeom"
	"github.com/MeKo-Tech/osmboundaries/internal/overpass"
	"github.com/MeKo-Tech/osmboundaries/internal/storage"
	"github.com/MeKo-Tech/osmboundaries/internal/tagset"
)

const chunkSize = 25

// Scope pins preview resolution to one admin-boundary scope, so hits are
// written back into that scope's osm_source objects rather than the
// per-endpoint cache.
type Scope struct {
	AdmName    string
	AdminLevel string
}

// Fetcher resolves missing previews against Overpass and assembles geometry
// via osmgeom, caching the result.
type Fetcher struct {
	Client          *overpass.Client
	CacheDir        string
	DataDir         string
	FixAntimeridian bool
	Timeout         time.Duration
}

func New(client *overpass.Client, cacheDir, dataDir string, fixAntimeridian bool, timeout time.Duration) *Fetcher {
	return &Fetcher{Client: client, CacheDir: cacheDir, DataDir: dataDir, FixAntimeridian: fixAntimeridian, Timeout: timeout}
}

func endpointCacheKey(overpassURL string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(strings.ToLower(strings.TrimSpace(overpassURL))))
	return fmt.Sprintf("op_%012x", h.Sum64())[:15]
}

func (f *Fetcher) previewCacheFile(rid int64, overpassURL string) string {
	key := endpointCacheKey(overpassURL)
	return filepath.Join(f.CacheDir, "preview", key, fmt.Sprintf("r%d.json", rid))
}

func loadCachedFeature(path string) *geojson.Feature {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var raw struct {
		Type       string         `json:"type"`
		Geometry   json.RawMessage `json:"geometry"`
		Properties map[string]any `json:"properties"`
	}
	if err := json.Unmarshal(data, &raw); err != nil || raw.Type != "Feature" {
		return nil
	}
	geom, err := geojson.UnmarshalGeometry(raw.Geometry)
	if err != nil {
		return nil
	}
	feat := geojson.NewFeature(geom.Geometry())
	feat.Properties = raw.Properties
	return feat
}

func saveCachedFeature(path string, feat *geojson.Feature) {
	data, err := json.Marshal(feat)
	if err != nil {
		return
	}
	_ = os.MkdirAll(filepath.Dir(path), 0o755)
	_ = os.WriteFile(path, data, 0o644)
}

func (f *Fetcher) loadScopedFeature(scope *Scope, rid int64, land bool) *geojson.Feature {
	if scope == nil {
		return nil
	}
	paths := storage.ScopePaths(f.DataDir, scope.AdmName, scope.AdminLevel)
	dir := paths.OSMObjectsDir
	if land {
		dir = paths.LandObjectsDir
	}
	path, err := storage.FindObjectFile(dir, rid)
	if err != nil || path == "" {
		return nil
	}
	feat, err := storage.ReadObjectFeature(path)
	if err != nil {
		return nil
	}
	return feat
}

// CachedFeature returns a previously resolved preview for rid without ever
// reaching out to Overpass: it consults the scoped osm_source objects, then
// the per-endpoint disk cache, and returns nil if neither has it.
func (f *Fetcher) CachedFeature(scope *Scope, rid int64, overpassURL string) *geojson.Feature {
	if feat := f.loadScopedFeature(scope, rid, false); feat != nil {
		return feat
	}
	if feat := loadCachedFeature(f.previewCacheFile(rid, overpassURL)); feat != nil {
		if scope != nil {
			f.writeScopedFromFeature(*scope, rid, feat)
		}
		return feat
	}
	return nil
}

// LandPreviewFeatures returns the already-clipped features for ids under a
// scope, without fetching anything.
func LandPreviewFeatures(dataDir string, scope Scope, ids []int64) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	paths := storage.ScopePaths(dataDir, scope.AdmName, scope.AdminLevel)
	for _, rid := range dedupePositive(ids) {
		path, err := storage.FindObjectFile(paths.LandObjectsDir, rid)
		if err != nil || path == "" {
			continue
		}
		feat, err := storage.ReadObjectFeature(path)
		if err != nil {
			continue
		}
		fc.Append(feat)
	}
	return fc
}

func dedupePositive(ids []int64) []int64 {
	seen := map[int64]struct{}{}
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// PreviewFeatures resolves geometry for ids via the scoped cache, the
// per-endpoint cache, and finally Overpass, in that order.
func (f *Fetcher) PreviewFeatures(ctx context.Context, ids []int64, scope *Scope, overpassURL string) (*geojson.FeatureCollection, error) {
	fc := geojson.NewFeatureCollection()
	wanted := dedupePositive(ids)
	if len(wanted) == 0 {
		return fc, nil
	}

	var missing []int64
	for _, rid := range wanted {
		if feat := f.loadScopedFeature(scope, rid, false); feat != nil {
			fc.Append(feat)
			continue
		}
		if feat := loadCachedFeature(f.previewCacheFile(rid, overpassURL)); feat != nil {
			fc.Append(feat)
			if scope != nil {
				f.writeScopedFromFeature(*scope, rid, feat)
			}
			continue
		}
		missing = append(missing, rid)
	}
	if len(missing) == 0 {
		return fc, nil
	}

	for i := 0; i < len(missing); i += chunkSize {
		end := i + chunkSize
		if end > len(missing) {
			end = len(missing)
		}
		chunk := missing[i:end]
		els, err := f.fetchChunkResilient(ctx, chunk, overpassURL)
		if err != nil {
			continue
		}
		ctx2 := geos.NewContext()
		for _, rid := range chunk {
			rel, ok := els.Relations[rid]
			if !ok {
				continue
			}
			geom, err := osmgeom.Build(ctx2, els, rid, osmgeom.Options{FixAntimeridian: f.FixAntimeridian})
			if err != nil {
				continue
			}
			tags := tagset.Tags(rel.Tags)
			name := tagset.PreferredName(tags)
			if name == "" {
				name = fmt.Sprintf("relation %d", rid)
			}
			props := map[string]any{
				"relation_id":                 rid,
				"osm_type":                    "relation",
				"osm_id":                      rid,
				"name":                        name,
				"preview_generated_at_epoch": time.Now().Unix(),
			}
			for k, v := range tags {
				props[k] = v
			}
			feat := geojson.NewFeature(geom)
			feat.Properties = props
			fc.Append(feat)

			if scope != nil {
				f.writeScopedFromFeature(*scope, rid, feat)
			} else {
				saveCachedFeature(f.previewCacheFile(rid, overpassURL), feat)
			}
		}
	}
	return fc, nil
}

func (f *Fetcher) writeScopedFromFeature(scope Scope, rid int64, feat *geojson.Feature) {
	paths := storage.ScopePaths(f.DataDir, scope.AdmName, scope.AdminLevel)
	tags := tagset.StripReserved(feat.Properties)
	_, _ = storage.WriteObjectGeoJSON(paths.OSMObjectsDir, rid, tags, feat.Geometry)
}

func (f *Fetcher) fetchChunkResilient(ctx context.Context, chunk []int64, overpassURL string) (*overpass.Elements, error) {
	els, err := f.fetchChunk(ctx, chunk, overpassURL)
	if err == nil {
		return els, nil
	}

	merged := &overpass.Elements{Nodes: map[int64]*overpass.Node{}, Ways: map[int64]*overpass.Way{}, Relations: map[int64]*overpass.Relation{}}
	half := len(chunk) / 2
	if half < 1 {
		half = 1
	}
	subchunks := [][]int64{chunk}
	if len(chunk) > 1 {
		subchunks = [][]int64{chunk[:half], chunk[half:]}
	}
	for _, sub := range subchunks {
		if len(sub) == 0 {
			continue
		}
		if subEls, err := f.fetchChunk(ctx, sub, overpassURL); err == nil {
			mergeElements(merged, subEls)
			continue
		}
		for _, rid := range sub {
			if oneEls, err := f.fetchChunk(ctx, []int64{rid}, overpassURL); err == nil {
				mergeElements(merged, oneEls)
			}
		}
	}
	return merged, nil
}

func mergeElements(dst, src *overpass.Elements) {
	for k, v := range src.Nodes {
		dst.Nodes[k] = v
	}
	for k, v := range src.Ways {
		dst.Ways[k] = v
	}
	for k, v := range src.Relations {
		dst.Relations[k] = v
	}
}

func (f *Fetcher) fetchChunk(ctx context.Context, chunk []int64, overpassURL string) (*overpass.Elements, error) {
	timeout := int(f.Timeout.Seconds())
	if timeout <= 0 {
		timeout = 180
	}
	joined := joinInts(chunk)
	q := fmt.Sprintf("[out:json][timeout:%d];\nrelation(%s)->.r;\n(.r;>;);\nout body geom;", timeout, joined)
	res, err := f.Client.Submit(ctx, q, overpassURL)
	if err != nil {
		qFallback := fmt.Sprintf("[out:json][timeout:%d];\nrelation(%s)->.r;\n(.r;>;);\nout body;", timeout, joined)
		res, err = f.Client.Submit(ctx, qFallback, overpassURL)
		if err != nil {
			return nil, err
		}
	}
	return overpass.ElementsOf(res.Payload), nil
}

func joinInts(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}
