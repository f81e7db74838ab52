// Package downloader orchestrates the per-relation download pipeline: a
// cache cascade across already-exported objects, the preview cache, and a
// live Overpass fetch, followed by geometry assembly, optional land
// clipping, per-object statistics, and scope manifest maintenance.
package downloader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/MeKo-Tech/osmboundaries/internal/landclip"
	"github.com/MeKo-Tech/osmboundaries/internal/overpass"
	"github.com/MeKo-Tech/osmboundaries/internal/preview"
	"github.com/MeKo-Tech/osmboundaries/internal/slugify"
	"github.com/MeKo-Tech/osmboundaries/internal/storage"
)

// Event is one job progress notification; Type/Data mirror the catalog in
// the external API documentation.
type Event struct {
	Type string
	Data map[string]any
}

// EmitFunc delivers an event to whatever sink a caller provides (typically
// a job's coalesced queue).
type EmitFunc func(Event)

// Params describes one download run.
type Params struct {
	AdmName               string
	AdminLevel            string
	RelationIDs           []int64
	RelationNames         map[int64]string
	ClipLand              bool
	ForceRefreshOSMSource bool
	FixAntimeridian       bool
	OverpassURL           string
}

// Downloader ties together the Overpass client, land clip engine, and
// storage layer to run Params through the pipeline.
type Downloader struct {
	DataDir     string
	Client      *overpass.Client
	LandEngine  *landclip.Engine
	LandStore   *landclip.Store
	Timeout     time.Duration
}

func New(dataDir string, client *overpass.Client, landEngine *landclip.Engine, landStore *landclip.Store, timeout time.Duration) *Downloader {
	return &Downloader{DataDir: dataDir, Client: client, LandEngine: landEngine, LandStore: landStore, Timeout: timeout}
}

type objectStats struct {
	Name              string  `json:"name"`
	OSMSourcePath     string  `json:"osm_source_path"`
	LandOnlyPath      string  `json:"land_only_path,omitempty"`
	ClippedEmpty      bool    `json:"clipped_empty"`
	Polygons          int     `json:"polygons"`
	Vertices          int     `json:"vertices"`
	LandOnlyPolygons  int     `json:"land_only_polygons,omitempty"`
	LandOnlyVertices  int     `json:"land_only_vertices,omitempty"`
	OverpassUsed      string  `json:"overpass_used"`
	OverpassElapsedSec float64 `json:"overpass_elapsed_sec"`
	TimeFetchSec      float64 `json:"time_fetch_sec"`
	TimeBuildSec      float64 `json:"time_build_sec"`
	TimeWriteSec      float64 `json:"time_write_sec"`
	TimeClipSec       float64 `json:"time_clip_sec,omitempty"`
	OSMSourceBytes    int64   `json:"osm_source_bytes,omitempty"`
	LandOnlyBytes     int64   `json:"land_only_bytes,omitempty"`
	ElapsedSec        float64 `json:"elapsed_sec"`
	UpdatedAtEpoch    int64   `json:"updated_at_epoch"`
}

type runStats struct {
	AdmName         string  `json:"adm_name"`
	AdminLevel      string  `json:"admin_level"`
	UpdatedAtEpoch  int64   `json:"updated_at_epoch"`
	JobElapsedSec   float64 `json:"job_elapsed_sec"`
	SelectedCount   int     `json:"selected_count"`
	OK              int     `json:"ok"`
	Failed          int     `json:"failed"`
	ClipCacheHits   int     `json:"clip_cache_hits"`
	ClipCacheMisses int     `json:"clip_cache_misses"`
}

// Run executes the full per-relation pipeline, emitting events through
// emit and checking shouldCancel between relations.
func (d *Downloader) Run(ctx context.Context, params Params, emit EmitFunc, shouldCancel func() bool) error {
	paths := storage.ScopePaths(d.DataDir, params.AdmName, params.AdminLevel)
	if err := paths.EnsureDirs(); err != nil {
		return err
	}
	manifest, err := storage.LoadManifest(paths.ManifestFile, params.AdmName, params.AdminLevel)
	if err != nil {
		return err
	}

	emit(Event{"stage", map[string]any{"stage": "start", "adm_name": params.AdmName, "admin_level": params.AdminLevel}})
	cacheMsg := "OSM source cache mode: reuse cached object files when valid"
	if params.ForceRefreshOSMSource {
		cacheMsg = "OSM source cache mode: force refresh (ignore cached object files)"
	}
	emit(Event{"log", map[string]any{"message": cacheMsg}})
	jobStart := time.Now()

	if params.ClipLand {
		emit(Event{"stage", map[string]any{"stage": "land_polygons.ensure"}})
		onProgress := func(done int64, total *int64, elapsed time.Duration) {
			var totalVal any
			if total != nil {
				totalVal = *total
			}
			emit(Event{"land_polygons_download_progress", map[string]any{
				"done_bytes": done, "total_bytes": totalVal, "elapsed_sec": elapsed.Seconds(),
			}})
		}
		if err := d.LandStore.Ensure(ctx, false, nil, onProgress, shouldCancel); err != nil {
			if shouldCancel != nil && shouldCancel() {
				emit(Event{"done", map[string]any{"cancelled": true}})
				return nil
			}
			return fmt.Errorf("downloader: ensure land polygons: %w", err)
		}
	}

	total := len(params.RelationIDs)
	ok, failed := 0, 0
	clipCacheHits, clipCacheMisses := 0, 0
	landObjectCacheHits, landObjectCacheMisses := 0, 0
	emit(Event{"overall_progress", map[string]any{"done": 0, "total": total, "ok": 0, "failed": 0}})

	previewFetcher := preview.New(d.Client, d.fallbackCacheDir(), d.DataDir, params.FixAntimeridian, d.Timeout)
	scope := preview.Scope{AdmName: params.AdmName, AdminLevel: params.AdminLevel}

	for idx, rid := range params.RelationIDs {
		index := idx + 1
		if shouldCancel != nil && shouldCancel() {
			emit(Event{"done", map[string]any{"cancelled": true}})
			return nil
		}

		providedName := ""
		if n, ok := params.RelationNames[rid]; ok {
			providedName = n
		}
		cachedEntry := manifest.Objects[fmt.Sprint(rid)]
		objName := providedName
		if objName == "" && cachedEntry != nil {
			objName = cachedEntry.Name
		}
		if objName == "" {
			objName = fmt.Sprintf("relation %d", rid)
		}
		emit(Event{"object_started", map[string]any{"relation_id": rid, "name": objName, "index": index, "total": total}})

		t0 := time.Now()
		stat, name, err := d.processRelation(ctx, paths, params, rid, objName, providedName, previewFetcher, scope, emit,
			&clipCacheHits, &clipCacheMisses, &landObjectCacheHits, &landObjectCacheMisses)
		if err != nil {
			failed++
			emit(Event{"object_done", map[string]any{"relation_id": rid, "name": objName, "ok": false, "error": err.Error()}})
		} else {
			stat.ElapsedSec = time.Since(t0).Seconds()
			stat.UpdatedAtEpoch = time.Now().Unix()
			emit(Event{"object_stats", map[string]any{"relation_id": rid, "stats": stat}})

			manifest.Objects[fmt.Sprint(rid)] = &storage.ManifestEntry{
				RelationID:     rid,
				Name:           name,
				Slug:           slugify.Slugify(name, 80),
				UpdatedAtEpoch: stat.UpdatedAtEpoch,
				OSMSourceFile:  filepath.Base(stat.OSMSourcePath),
				LandOnlyFile:   basenameOrEmpty(stat.LandOnlyPath),
			}
			ok++
			emit(Event{"object_done", map[string]any{"relation_id": rid, "name": name, "ok": true}})
		}
		emit(Event{"overall_progress", map[string]any{"done": index, "total": total, "ok": ok, "failed": failed}})
	}

	manifest.AdmName = params.AdmName
	manifest.AdminLevel = params.AdminLevel
	manifest.UpdatedAtEpoch = time.Now().Unix()
	if err := manifest.Save(paths.ManifestFile); err != nil {
		return err
	}

	emit(Event{"stage", map[string]any{"stage": "rebuild_combined"}})
	_ = storage.RebuildCombined(paths.OSMObjectsDir, paths.OSMCombinedFile)
	if params.ClipLand {
		_ = storage.RebuildCombined(paths.LandObjectsDir, paths.LandCombinedFile)
	}

	stats := runStats{
		AdmName:         params.AdmName,
		AdminLevel:      params.AdminLevel,
		UpdatedAtEpoch:  time.Now().Unix(),
		JobElapsedSec:   time.Since(jobStart).Seconds(),
		SelectedCount:   total,
		OK:              ok,
		Failed:          failed,
		ClipCacheHits:   clipCacheHits,
		ClipCacheMisses: clipCacheMisses,
	}
	_ = saveStats(paths.StatsFile, stats)

	if params.ClipLand {
		emit(Event{"log", map[string]any{"message": fmt.Sprintf("Clip cache stats: hits=%d, misses=%d", clipCacheHits, clipCacheMisses)}})
		emit(Event{"log", map[string]any{"message": fmt.Sprintf("Land-only object cache: hits=%d, misses=%d", landObjectCacheHits, landObjectCacheMisses)}})
	}
	emit(Event{"done", map[string]any{"stats": stats}})
	return nil
}

func basenameOrEmpty(path string) string {
	if path == "" {
		return ""
	}
	return filepath.Base(path)
}

func (d *Downloader) fallbackCacheDir() string {
	return d.DataDir + "/cache"
}

func fileSize(path string) int64 {
	if path == "" {
		return 0
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

func saveStats(path string, stats runStats) error {
	return storage.WriteJSONAtomic(path, stats)
}
