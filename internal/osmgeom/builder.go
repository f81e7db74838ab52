// Package osmgeom assembles a polygonal surface for one OSM relation out of
// its member ways, the way shapely-based boundary builders do: union the
// line segments, merge them into maximal lines, polygonize, and repair with
// a zero-width buffer. It additionally detects and corrects relations whose
// boundary crosses the antimeridian.
package osmgeom

import (
	"errors"
	"math"

	"github.com/paulmach/orb"
	"github.com/twpayne/go-geos"

	"github.com/MeKo-Tech/osmboundaries/internal/geomutil"
	"github.com/MeKo-Tech/osmboundaries/internal/overpass"
)

// Sentinel errors identifying why a relation could not be built.
var (
	ErrRelationNotFound    = errors.New("osmgeom: relation not found in elements")
	ErrNoWayGeometry       = errors.New("osmgeom: relation has no usable way geometry")
	ErrGeometryMergeFailed = errors.New("osmgeom: union/polygonize produced no geometry")
)

// Options controls antimeridian handling.
type Options struct {
	FixAntimeridian bool
}

// Build assembles the geometry for relation rid out of els. ctx is a
// per-call or per-goroutine GEOS context (go-geos Contexts are not
// goroutine-safe, so callers must not share one across concurrent builds).
func Build(ctx *geos.Context, els *overpass.Elements, rid int64, opts Options) (orb.Geometry, error) {
	rel, ok := els.Relations[rid]
	if !ok {
		return nil, ErrRelationNotFound
	}

	var lines []orb.LineString
	for _, m := range rel.Members {
		if m.Type != "way" {
			continue
		}
		way, ok := els.Ways[m.Ref]
		if !ok {
			continue
		}
		ls := wayLineString(way, els)
		if len(ls) < 2 {
			continue
		}
		lines = append(lines, ls)
	}
	if len(lines) == 0 {
		return nil, ErrNoWayGeometry
	}

	fixed := opts.FixAntimeridian && isAntimeridianCandidate(lines)
	if fixed {
		for i := range lines {
			lines[i] = unwrapLongitude(lines[i])
		}
	}

	geosGeoms := make([]*geos.Geom, 0, len(lines))
	for _, ls := range lines {
		g, err := geomutil.ToGeos(ctx, ls)
		if err != nil {
			return nil, err
		}
		geosGeoms = append(geosGeoms, g)
	}

	union, err := geomutil.UnionAll(ctx, geosGeoms)
	if err != nil {
		return nil, ErrGeometryMergeFailed
	}

	merged := union
	if lm := geomutil.LineMerge(union); lm != nil {
		merged = lm
	}

	poly := geomutil.Polygonize(ctx, []*geos.Geom{merged})
	result := poly
	if result == nil {
		result = merged
	}

	if buffered := geomutil.BufferZero(result); buffered != nil {
		result = buffered
	}

	out, err := geomutil.FromGeos(result)
	if err != nil {
		return nil, ErrGeometryMergeFailed
	}

	if fixed {
		out = rewrapLongitude(out)
		if g2, err := geomutil.ToGeos(ctx, out); err == nil {
			if buffered := geomutil.BufferZero(g2); buffered != nil {
				if remapped, err := geomutil.FromGeos(buffered); err == nil {
					out = remapped
				}
			}
		}
	}

	return out, nil
}

func wayLineString(w *overpass.Way, els *overpass.Elements) orb.LineString {
	if len(w.Geometry) > 0 {
		ls := make(orb.LineString, 0, len(w.Geometry))
		for _, pt := range w.Geometry {
			ls = append(ls, orb.Point{pt.Lon, pt.Lat})
		}
		return ls
	}
	ls := make(orb.LineString, 0, len(w.NodeRefs))
	for _, ref := range w.NodeRefs {
		if n, ok := els.Nodes[ref]; ok {
			ls = append(ls, orb.Point{n.Lon, n.Lat})
		}
	}
	return ls
}

// isAntimeridianCandidate applies the spec's heuristic: some coordinate west
// of -150°, some east of 150°, and a longitude span over 300°.
func isAntimeridianCandidate(lines []orb.LineString) bool {
	minLon, maxLon := math.Inf(1), math.Inf(-1)
	hasWest, hasEast := false, false
	for _, ls := range lines {
		for _, pt := range ls {
			lon := pt.X()
			if lon < minLon {
				minLon = lon
			}
			if lon > maxLon {
				maxLon = lon
			}
			if lon < -150 {
				hasWest = true
			}
			if lon > 150 {
				hasEast = true
			}
		}
	}
	return hasWest && hasEast && (maxLon-minLon) > 300
}

// unwrapLongitude rewrites a coordinate sequence so each longitude sits
// within (prevLon-180, prevLon+180], removing the ±180° discontinuity.
func unwrapLongitude(ls orb.LineString) orb.LineString {
	if len(ls) == 0 {
		return ls
	}
	out := make(orb.LineString, len(ls))
	out[0] = ls[0]
	prev := ls[0].X()
	for i := 1; i < len(ls); i++ {
		lon := ls[i].X()
		for lon <= prev-180 {
			lon += 360
		}
		for lon > prev+180 {
			lon -= 360
		}
		out[i] = orb.Point{lon, ls[i].Y()}
		prev = lon
	}
	return out
}

// rewrapLongitude maps every longitude in g back into [0, 360).
func rewrapLongitude(g orb.Geometry) orb.Geometry {
	return mapCoords(g, func(p orb.Point) orb.Point {
		x := math.Mod(p.X()+360, 360)
		if x < 0 {
			x += 360
		}
		return orb.Point{x, p.Y()}
	})
}

func mapCoords(g orb.Geometry, fn func(orb.Point) orb.Point) orb.Geometry {
	switch v := g.(type) {
	case orb.Point:
		return fn(v)
	case orb.LineString:
		out := make(orb.LineString, len(v))
		for i, p := range v {
			out[i] = fn(orb.Point(p))
		}
		return out
	case orb.Ring:
		out := make(orb.Ring, len(v))
		for i, p := range v {
			out[i] = fn(orb.Point(p))
		}
		return out
	case orb.Polygon:
		out := make(orb.Polygon, len(v))
		for i, ring := range v {
			out[i] = mapCoords(orb.Ring(ring), fn).(orb.Ring)
		}
		return out
	case orb.MultiPolygon:
		out := make(orb.MultiPolygon, len(v))
		for i, poly := range v {
			out[i] = mapCoords(orb.Polygon(poly), fn).(orb.Polygon)
		}
		return out
	case orb.MultiLineString:
		out := make(orb.MultiLineString, len(v))
		for i, ls := range v {
			out[i] = mapCoords(orb.LineString(ls), fn).(orb.LineString)
		}
		return out
	case orb.Collection:
		out := make(orb.Collection, len(v))
		for i, sub := range v {
			out[i] = mapCoords(sub, fn)
		}
		return out
	default:
		return g
	}
}
