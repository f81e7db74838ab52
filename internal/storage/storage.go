// Package storage implements the on-disk scope layout: per-relation object
// files, combined feature collections, and the job manifest, all written
// atomically via temp-file-then-rename.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/MeKo-Tech/osmboundaries/internal/slugify"
	"github.com/MeKo-Tech/osmboundaries/internal/tagset"
)

// Paths is the fixed directory layout for one (adm_name, admin_level) scope.
type Paths struct {
	Root                string
	OSMSourceDir        string
	OSMObjectsDir       string
	OSMCombinedFile     string
	LandOnlyDir         string
	LandObjectsDir      string
	LandCombinedFile    string
	ManifestFile        string
	StatsFile           string
}

// ScopePaths is a pure function of its arguments: it computes the full
// directory layout for a scope without touching the filesystem.
func ScopePaths(dataDir, admName, adminLevel string) Paths {
	root := filepath.Join(dataDir, "geojson", admName, "admin_level="+adminLevel)
	base := fmt.Sprintf("%s_admin_level_%s", admName, adminLevel)
	osmDir := filepath.Join(root, "osm_source")
	landDir := filepath.Join(root, "land_only")
	return Paths{
		Root:             root,
		OSMSourceDir:     osmDir,
		OSMObjectsDir:    filepath.Join(osmDir, "objects"),
		OSMCombinedFile:  filepath.Join(osmDir, base+"_osm_source.geojson"),
		LandOnlyDir:      landDir,
		LandObjectsDir:   filepath.Join(landDir, "objects"),
		LandCombinedFile: filepath.Join(landDir, base+"_land_only.geojson"),
		ManifestFile:     filepath.Join(root, "manifest.json"),
		StatsFile:        filepath.Join(root, "stats.json"),
	}
}

// EnsureDirs creates every directory the scope needs.
func (p Paths) EnsureDirs() error {
	for _, d := range []string{p.Root, p.OSMSourceDir, p.OSMObjectsDir, p.LandOnlyDir, p.LandObjectsDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return err
		}
	}
	return nil
}

func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}

func marshalNoEscape(v any) ([]byte, error) {
	var buf strings.Builder
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return []byte(buf.String()), nil
}

// objectFilename computes <slug(preferred english name)>__<iso2|xx>__r<rid>.geojson.
func objectFilename(rid int64, tags tagset.Tags) string {
	name := tagset.PreferredEnglishName(tags)
	slug := slugify.Slugify(name, 80)
	iso2 := tagset.ISO2(tags)
	if iso2 == "" {
		iso2 = "xx"
	}
	return fmt.Sprintf("%s__%s__r%d.geojson", slug, strings.ToLower(iso2), rid)
}

// WriteObjectGeoJSON writes a single-feature FeatureCollection for relation
// rid into dir, removing any pre-existing sibling file for the same
// relation id under a different name, and returns the final path.
func WriteObjectGeoJSON(dir string, rid int64, tags tagset.Tags, geom orb.Geometry) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	filename := objectFilename(rid, tags)
	finalPath := filepath.Join(dir, filename)

	if err := removeStaleSiblings(dir, rid, filename); err != nil {
		return "", err
	}

	props := map[string]any{
		"osm_type": "relation",
		"osm_id":   rid,
	}
	for k, v := range tags {
		props[k] = v
	}

	feature := geojson.NewFeature(geom)
	feature.Properties = props
	fc := geojson.NewFeatureCollection()
	fc.Append(feature)

	data, err := marshalNoEscape(fc)
	if err != nil {
		return "", err
	}
	if err := atomicWrite(finalPath, data); err != nil {
		return "", err
	}
	return finalPath, nil
}

func removeStaleSiblings(dir string, rid int64, keep string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	suffix := fmt.Sprintf("__r%d.geojson", rid)
	prefix := fmt.Sprintf("r%d__", rid)
	for _, e := range entries {
		if e.IsDir() || e.Name() == keep {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, suffix) || strings.HasPrefix(name, prefix) {
			_ = os.Remove(filepath.Join(dir, name))
		}
	}
	return nil
}

// FindObjectFile returns the most-recently-modified file under objectsDir
// matching "*__r<rid>.geojson", or "" if none exists.
func FindObjectFile(objectsDir string, rid int64) (string, error) {
	entries, err := os.ReadDir(objectsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	suffix := fmt.Sprintf("__r%d.geojson", rid)
	type cand struct {
		path  string
		mtime int64
	}
	var matches []cand
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), suffix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		matches = append(matches, cand{filepath.Join(objectsDir, e.Name()), info.ModTime().UnixNano()})
	}
	if len(matches) == 0 {
		return "", nil
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].mtime > matches[j].mtime })
	return matches[0].path, nil
}

// ReadObjectFeature reads the first feature out of a per-object file.
func ReadObjectFeature(path string) (*geojson.Feature, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, err
	}
	if len(fc.Features) == 0 {
		return nil, fmt.Errorf("storage: %s has no features", path)
	}
	return fc.Features[0], nil
}

// WriteJSONAtomic marshals v without HTML-escaping and writes it atomically.
func WriteJSONAtomic(path string, v any) error {
	data, err := marshalNoEscape(v)
	if err != nil {
		return err
	}
	return atomicWrite(path, data)
}

// RebuildCombined reads the first feature of every file under objectsDir
// and writes them as one FeatureCollection to combinedPath.
func RebuildCombined(objectsDir, combinedPath string) error {
	entries, err := os.ReadDir(objectsDir)
	if err != nil {
		if os.IsNotExist(err) {
			entries = nil
		} else {
			return err
		}
	}
	fc := geojson.NewFeatureCollection()
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".geojson") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		feat, err := ReadObjectFeature(filepath.Join(objectsDir, name))
		if err != nil {
			continue
		}
		fc.Append(feat)
	}
	data, err := marshalNoEscape(fc)
	if err != nil {
		return err
	}
	return atomicWrite(combinedPath, data)
}
