// Package landclip ingests the global land-polygon shapefile dataset,
// indexes it spatially, and memoizes unioned land geometry per padded
// bounding box so repeated clips against nearby relations stay cheap.
package landclip

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	shp "github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/twpayne/go-geos"
)

// ErrEmpty marks a query (or the whole dataset) having no land coverage.
var ErrEmpty = fmt.Errorf("landclip: no land coverage")

// Feature is one loaded land polygon plus its bounding box, used for both
// the spatial index and the fallback linear scan.
type Feature struct {
	Bound orb.Bound
	Geom  orb.Geometry
}

// ProgressFunc reports download progress: bytes done, total (nil if
// unknown), and elapsed time.
type ProgressFunc func(done int64, total *int64, elapsed time.Duration)

// Store is the process-wide land dataset plus its spatial index, loaded
// once via sync.Once the first time a clip is requested.
type Store struct {
	ZipPath string
	URLs    []string
	Logger  *slog.Logger

	once     sync.Once
	loadErr  error
	features []Feature
	index    *rtreeIndex
}

// NewStore constructs a Store bound to a single local zip path and a list
// of candidate download URLs tried in order.
func NewStore(zipPath string, urls []string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{ZipPath: zipPath, URLs: urls, Logger: logger}
}

// Status describes whether the dataset archive is present on disk.
type Status struct {
	Present    bool
	Path       string
	SizeBytes  int64
	MtimeEpoch int64
	Meta       map[string]any
}

func metaPath(zipPath string) string {
	return strings.TrimSuffix(zipPath, filepath.Ext(zipPath)) + ".meta.json"
}

// StatusOf inspects the dataset archive without loading it into memory.
func StatusOf(zipPath string) Status {
	info, err := os.Stat(zipPath)
	if err != nil {
		return Status{Present: false}
	}
	st := Status{Present: true, Path: zipPath, SizeBytes: info.Size(), MtimeEpoch: info.ModTime().Unix()}
	if data, err := os.ReadFile(metaPath(zipPath)); err == nil {
		var meta map[string]any
		if json.Unmarshal(data, &meta) == nil {
			st.Meta = meta
		}
	}
	return st
}

// Ensure downloads the dataset archive if it is not already present (or if
// force is set), trying each configured URL in turn, streaming to a .tmp
// file and renaming atomically on success.
func (s *Store) Ensure(ctx context.Context, force bool, client *http.Client, onProgress ProgressFunc, shouldCancel func() bool) error {
	if _, err := os.Stat(s.ZipPath); err == nil && !force {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.ZipPath), 0o755); err != nil {
		return err
	}
	if client == nil {
		client = http.DefaultClient
	}

	var lastErr error
	for _, url := range s.URLs {
		if err := s.downloadOne(ctx, url, client, onProgress, shouldCancel); err != nil {
			lastErr = err
			s.Logger.Warn("land polygons download attempt failed", "url", url, "error", err)
			continue
		}
		return nil
	}
	return fmt.Errorf("landclip: failed to download land polygons: %w", lastErr)
}

func (s *Store) downloadOne(ctx context.Context, url string, client *http.Client, onProgress ProgressFunc, shouldCancel func() bool) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download HTTP %d", resp.StatusCode)
	}

	var total *int64
	if cl := resp.ContentLength; cl > 0 {
		total = &cl
	}

	tmpPath := s.ZipPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	defer f.Close()

	start := time.Now()
	buf := make([]byte, 1<<20)
	var done int64
	for {
		if shouldCancel != nil && shouldCancel() {
			os.Remove(tmpPath)
			return fmt.Errorf("landclip: download cancelled")
		}
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				return werr
			}
			done += int64(n)
			if onProgress != nil {
				onProgress(done, total, time.Since(start))
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return readErr
		}
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, s.ZipPath); err != nil {
		return err
	}

	meta := map[string]any{"download_url": url, "downloaded_at_epoch": time.Now().Unix()}
	data, _ := json.MarshalIndent(meta, "", "  ")
	_ = os.WriteFile(metaPath(s.ZipPath), data, 0o644)
	return nil
}

// ensureLoaded extracts the .shp/.shx/.dbf triple from the archive and
// loads every feature into memory, building the spatial index. Runs once
// per process.
func (s *Store) ensureLoaded() error {
	s.once.Do(func() {
		s.features, s.loadErr = loadFeaturesFromZip(s.ZipPath)
		if s.loadErr != nil {
			return
		}
		s.index = buildIndex(s.features)
	})
	return s.loadErr
}

func loadFeaturesFromZip(zipPath string) ([]Feature, error) {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, fmt.Errorf("landclip: open archive: %w", err)
	}
	defer zr.Close()

	var shpName string
	for _, f := range zr.File {
		lower := strings.ToLower(f.Name)
		if strings.HasSuffix(lower, "land_polygons.shp") {
			shpName = f.Name
			break
		}
		if strings.HasSuffix(lower, ".shp") && shpName == "" {
			shpName = f.Name
		}
	}
	if shpName == "" {
		return nil, fmt.Errorf("landclip: no .shp in archive")
	}
	stem := strings.TrimSuffix(shpName, filepath.Ext(shpName))

	tmpDir, err := os.MkdirTemp("", "landpolygons-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tmpDir)

	for _, ext := range []string{".shp", ".shx", ".dbf"} {
		if err := extractZipMember(zr, stem+ext, filepath.Join(tmpDir, "land"+ext)); err != nil {
			return nil, err
		}
	}

	reader, err := shp.Open(filepath.Join(tmpDir, "land.shp"))
	if err != nil {
		return nil, fmt.Errorf("landclip: open shapefile: %w", err)
	}
	defer reader.Close()

	var features []Feature
	for reader.Next() {
		_, shape := reader.Shape()
		geom := shapeToOrb(shape)
		if geom == nil {
			continue
		}
		features = append(features, Feature{Bound: geom.Bound(), Geom: geom})
	}
	if len(features) == 0 {
		return nil, ErrEmpty
	}
	return features, nil
}

func extractZipMember(zr *zip.ReadCloser, name, dest string) error {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		defer rc.Close()
		out, err := os.Create(dest)
		if err != nil {
			return err
		}
		defer out.Close()
		_, err = io.Copy(out, rc)
		return err
	}
	return fmt.Errorf("landclip: %s missing from archive", name)
}

func shapeToOrb(shape shp.Shape) orb.Geometry {
	poly, ok := shape.(*shp.Polygon)
	if !ok {
		return nil
	}
	var rings []orb.Ring
	start := 0
	for i := 0; i < len(poly.Parts); i++ {
		end := int(poly.NumPoints)
		if i+1 < len(poly.Parts) {
			end = int(poly.Parts[i+1])
		}
		ring := make(orb.Ring, 0, end-start)
		for _, pt := range poly.Points[start:end] {
			ring = append(ring, orb.Point{pt.X, pt.Y})
		}
		rings = append(rings, ring)
		start = end
	}
	if len(rings) == 0 {
		return nil
	}
	return orb.Polygon(rings)
}

// GeosContextFactory lets callers supply a context constructor so landclip
// never owns GEOS context lifetime decisions itself.
type GeosContextFactory func() *geos.Context
