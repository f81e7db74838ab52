package downloader

import (
	"context"
	"fmt"
	"time"

	"github.com/paulmach/orb"
	"github.com/twpayne/go-geos"

	"github.com/MeKo-Tech/osmboundaries/internal/geomutil"
	"github.com/MeKo-Tech/osmboundaries/internal/landclip"
	"github.com/MeKo-Tech/osmboundaries/internal/osmgeom"
	"github.com/MeKo-Tech/osmboundaries/internal/overpass"
	"github.com/MeKo-Tech/osmboundaries/internal/preview"
	"github.com/MeKo-Tech/osmboundaries/internal/storage"
	"github.com/MeKo-Tech/osmboundaries/internal/tagset"
)

const bboxPadDeg = 1.0

// processRelation resolves, builds, and (optionally) clips geometry for one
// relation, writing the resulting object files and returning the stats
// entry and the resolved display name.
func (d *Downloader) processRelation(
	ctx context.Context,
	paths storage.Paths,
	params Params,
	rid int64,
	objName, providedName string,
	previewFetcher *preview.Fetcher,
	scope preview.Scope,
	emit EmitFunc,
	clipCacheHits, clipCacheMisses *int,
	landObjectCacheHits, landObjectCacheMisses *int,
) (objectStats, string, error) {
	var stat objectStats
	geosCtx := geos.NewContext()

	var geom orb.Geometry
	var tags tagset.Tags
	var osmPath string
	osmReusedFromCache := false
	usedURL := ""
	usedElapsed := 0.0

	tFetchStart := time.Now()

	if !params.ForceRefreshOSMSource {
		if cached := loadCachedObject(paths.OSMObjectsDir, rid); cached != nil {
			emit(Event{"object_phase", map[string]any{"relation_id": rid, "phase": "use_osm_source_cache"}})
			geom = cached.Geom
			tags = cached.Tags
			osmPath = cached.Path
			osmReusedFromCache = true
			usedURL = "osm_source_cache"
		}
	}

	tBuildStart := time.Now()
	timeFetch := 0.0
	timeBuild := 0.0

	if !osmReusedFromCache {
		cacheScope := &scope
		if params.ForceRefreshOSMSource {
			cacheScope = nil
		}
		if feat := previewFetcher.CachedFeature(cacheScope, rid, params.OverpassURL); feat != nil {
			emit(Event{"object_phase", map[string]any{"relation_id": rid, "phase": "use_preview_cache"}})
			tags = tagset.StripReserved(feat.Properties)
			emit(Event{"object_phase", map[string]any{"relation_id": rid, "phase": "build_geometry"}})
			geom = feat.Geometry
			usedURL = "preview_cache"
		} else {
			emit(Event{"object_phase", map[string]any{"relation_id": rid, "phase": "fetch_overpass"}})
			els, url, elapsed, err := fetchRelation(ctx, d.Client, rid, params.OverpassURL, d.Timeout)
			if err != nil {
				return stat, objName, err
			}
			usedURL = url
			usedElapsed = elapsed
			timeFetch = time.Since(tFetchStart).Seconds()

			rel, ok := els.Relations[rid]
			if !ok {
				return stat, objName, fmt.Errorf("downloader: relation %d missing from overpass response", rid)
			}
			tags = tagset.Tags(rel.Tags)

			emit(Event{"object_phase", map[string]any{"relation_id": rid, "phase": "build_geometry"}})
			tBuildStart = time.Now()
			built, err := osmgeom.Build(geosCtx, els, rid, osmgeom.Options{FixAntimeridian: params.FixAntimeridian})
			if err != nil {
				return stat, objName, err
			}
			geom = built
		}
		timeBuild = time.Since(tBuildStart).Seconds()

		emit(Event{"object_phase", map[string]any{"relation_id": rid, "phase": "write_osm_source"}})
		tWriteStart := time.Now()
		path, err := storage.WriteObjectGeoJSON(paths.OSMObjectsDir, rid, tags, geom)
		if err != nil {
			return stat, objName, err
		}
		osmPath = path
		stat.TimeWriteSec += time.Since(tWriteStart).Seconds()
	}

	stat.OSMSourcePath = osmPath
	stat.OSMSourceBytes = fileSize(osmPath)
	stat.OverpassUsed = usedURL
	stat.OverpassElapsedSec = usedElapsed
	stat.TimeFetchSec = timeFetch
	stat.TimeBuildSec = timeBuild
	stat.Polygons = geomutil.GeometryCount(geom)
	stat.Vertices = geomutil.VertexCount(geom)

	name := tagset.PreferredName(tags)
	if name == "" {
		name = providedName
	}
	if name == "" {
		name = objName
	}
	if name == "" {
		name = fmt.Sprintf("relation %d", rid)
	}

	if params.ClipLand {
		emit(Event{"object_phase", map[string]any{"relation_id": rid, "phase": "clip_land"}})
		canReuseLandObject := osmReusedFromCache && !params.ForceRefreshOSMSource

		if canReuseLandObject {
			if cachedLand := loadCachedObject(paths.LandObjectsDir, rid); cachedLand != nil {
				*landObjectCacheHits++
				emit(Event{"object_phase", map[string]any{"relation_id": rid, "phase": "use_land_only_cache"}})
				stat.LandOnlyPath = cachedLand.Path
				stat.LandOnlyBytes = fileSize(cachedLand.Path)
				stat.LandOnlyPolygons = geomutil.GeometryCount(cachedLand.Geom)
				stat.LandOnlyVertices = geomutil.VertexCount(cachedLand.Geom)
				emit(Event{"object_clipped_ready", map[string]any{"relation_id": rid, "name": name}})
				return stat, name, nil
			}
		}
		*landObjectCacheMisses++

		tClipStart := time.Now()
		clipped, empty, cacheHit, err := d.LandEngine.Clip(geosCtx, geom, bboxPadDeg)
		if err != nil {
			return stat, name, err
		}
		if cacheHit {
			*clipCacheHits++
		} else {
			*clipCacheMisses++
		}
		emit(Event{"clip_cache_stats", map[string]any{"hits": *clipCacheHits, "misses": *clipCacheMisses}})
		stat.TimeClipSec = time.Since(tClipStart).Seconds()

		if empty {
			stat.ClippedEmpty = true
		} else {
			landPath, err := storage.WriteObjectGeoJSON(paths.LandObjectsDir, rid, tags, clipped)
			if err != nil {
				return stat, name, err
			}
			stat.LandOnlyPath = landPath
			stat.LandOnlyBytes = fileSize(landPath)
			stat.LandOnlyPolygons = geomutil.GeometryCount(clipped)
			stat.LandOnlyVertices = geomutil.VertexCount(clipped)
			emit(Event{"object_clipped_ready", map[string]any{"relation_id": rid, "name": name}})
		}
	}

	return stat, name, nil
}

func fetchRelation(ctx context.Context, client *overpass.Client, rid int64, overpassURL string, timeout time.Duration) (*overpass.Elements, string, float64, error) {
	secs := int(timeout.Seconds())
	if secs <= 0 {
		secs = 180
	}
	q := fmt.Sprintf("[out:json][timeout:%d];\nrelation(%d)->.r;\n(.r;>;);\nout body geom;", secs, rid)
	res, err := client.Submit(ctx, q, overpassURL)
	if err != nil {
		qFallback := fmt.Sprintf("[out:json][timeout:%d];\nrelation(%d)->.r;\n(.r;>;);\nout body;", secs, rid)
		res, err = client.Submit(ctx, qFallback, overpassURL)
		if err != nil {
			return nil, "", 0, err
		}
	}
	return overpass.ElementsOf(res.Payload), res.UsedURL, res.Elapsed.Seconds(), nil
}
