// Package geomutil bridges paulmach/orb geometry values to the GEOS
// bindings used for the boolean operations orb itself does not provide:
// union, line-merge, polygonize, buffer, and intersection.
package geomutil

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/twpayne/go-geos"
)

// ToGeos converts an orb.Geometry to a GEOS geometry via WKT, the simplest
// stable interchange format between the two libraries.
func ToGeos(ctx *geos.Context, g orb.Geometry) (*geos.Geom, error) {
	if g == nil {
		return nil, fmt.Errorf("geomutil: nil geometry")
	}
	s := wkt.MarshalString(g)
	geom, err := ctx.NewGeomFromWKT(s)
	if err != nil {
		return nil, fmt.Errorf("geomutil: wkt to geos: %w", err)
	}
	return geom, nil
}

// FromGeos converts a GEOS geometry back to orb via WKT.
func FromGeos(g *geos.Geom) (orb.Geometry, error) {
	if g == nil {
		return nil, fmt.Errorf("geomutil: nil geos geometry")
	}
	s := g.ToWKT()
	geom, err := wkt.Unmarshal(s)
	if err != nil {
		return nil, fmt.Errorf("geomutil: wkt from geos: %w", err)
	}
	return geom, nil
}

// UnionAll unions a set of GEOS geometries via a collection + UnaryUnion,
// matching shapely's unary_union semantics from the builder this package
// ports.
func UnionAll(ctx *geos.Context, geoms []*geos.Geom) (*geos.Geom, error) {
	if len(geoms) == 0 {
		return nil, fmt.Errorf("geomutil: union of empty set")
	}
	if len(geoms) == 1 {
		return geoms[0].Clone(), nil
	}
	coll := ctx.NewCollection(geos.TypeIDGeometryCollection, geoms)
	return coll.UnaryUnion(), nil
}

// LineMerge merges a collection of line geometries into maximal lines and
// returns whatever GEOS produces, without substituting the input. The caller
// decides whether to fall back to the unmerged geometry.
func LineMerge(g *geos.Geom) *geos.Geom {
	return g.LineMerge()
}

// Polygonize builds polygons from a noded set of line geometries.
func Polygonize(ctx *geos.Context, geoms []*geos.Geom) *geos.Geom {
	return ctx.Polygonize(geoms)
}

// BufferZero applies a zero-width buffer, the standard trick for repairing
// minor self-intersections produced by polygonize.
func BufferZero(g *geos.Geom) *geos.Geom {
	return g.Buffer(0, geos.DefaultBufferParams)
}

// IsValid reports whether g is a valid geometry per GEOS's validity rules
// (simple rings, no self-intersections).
func IsValid(g *geos.Geom) bool {
	if g == nil {
		return false
	}
	return g.IsValid()
}

// Intersection computes a ∩ b, returning an error string from GEOS (via
// panic recovery inside go-geos, surfaced as a nil geometry) as a Go error.
func Intersection(a, b *geos.Geom) (result *geos.Geom, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("geomutil: intersection failed: %v", r)
		}
	}()
	result = a.Intersection(b)
	return result, nil
}

// GeometryCount returns the count of polygons contained in g, descending
// through GeometryCollection/MultiPolygon/MultiLineString/MultiPoint the way
// the original stats counter does.
func GeometryCount(g orb.Geometry) int {
	n := 0
	walkGeoms(g, func(leaf orb.Geometry) {
		if _, ok := leaf.(orb.Polygon); ok {
			n++
		}
	})
	return n
}

// VertexCount returns the total number of coordinate pairs in g.
func VertexCount(g orb.Geometry) int {
	n := 0
	walkGeoms(g, func(leaf orb.Geometry) {
		n += countCoords(leaf)
	})
	return n
}

func walkGeoms(g orb.Geometry, fn func(orb.Geometry)) {
	switch v := g.(type) {
	case nil:
		return
	case orb.MultiPolygon:
		for _, p := range v {
			fn(orb.Polygon(p))
		}
	case orb.MultiLineString:
		for _, ls := range v {
			fn(orb.LineString(ls))
		}
	case orb.MultiPoint:
		for _, p := range v {
			fn(orb.Point(p))
		}
	case orb.Collection:
		for _, sub := range v {
			walkGeoms(sub, fn)
		}
	default:
		fn(g)
	}
}

func countCoords(g orb.Geometry) int {
	switch v := g.(type) {
	case orb.Point:
		return 1
	case orb.MultiPoint:
		return len(v)
	case orb.LineString:
		return len(v)
	case orb.Ring:
		return len(v)
	case orb.Polygon:
		n := 0
		for _, ring := range v {
			n += len(ring)
		}
		return n
	default:
		return 0
	}
}

// BoundOf returns the bounding rectangle of g.
func BoundOf(g orb.Geometry) orb.Bound {
	return g.Bound()
}
