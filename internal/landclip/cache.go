package landclip

import (
	"fmt"
	"math"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/paulmach/orb"
	"github.com/twpayne/go-geos"

	"github.com/MeKo-Tech/osmboundaries/internal/geomutil"
)

const (
	tileDeg   = 5.0
	cacheSize = 96
)

// tileKey is the 5-tuple the spec defines: floor/ceil of the padded bbox on
// a 5-degree grid, plus the pad amount (rounded to hundredths of a degree)
// so different pad values never collide.
type tileKey struct {
	minX, minY, maxX, maxY int
	padHundredths          int
}

func computeTileKey(bbox orb.Bound, padDeg float64) tileKey {
	minX := bbox.Min[0] - padDeg
	minY := bbox.Min[1] - padDeg
	maxX := bbox.Max[0] + padDeg
	maxY := bbox.Max[1] + padDeg
	return tileKey{
		minX:          int(math.Floor(minX / tileDeg)),
		minY:          int(math.Floor(minY / tileDeg)),
		maxX:          int(math.Ceil(maxX / tileDeg)),
		maxY:          int(math.Ceil(maxY / tileDeg)),
		padHundredths: int(math.Round(padDeg * 100)),
	}
}

func (k tileKey) queryBound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{float64(k.minX) * tileDeg, float64(k.minY) * tileDeg},
		Max: orb.Point{float64(k.maxX) * tileDeg, float64(k.maxY) * tileDeg},
	}
}

// Engine ties the Store, spatial index, and LRU union cache together.
type Engine struct {
	store *Store
	mu    sync.Mutex
	cache *lru.Cache[tileKey, orb.Geometry]
}

// NewEngine wraps store with a capacity-96 LRU of unioned land geometry per
// tile key.
func NewEngine(store *Store) (*Engine, error) {
	c, err := lru.New[tileKey, orb.Geometry](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Engine{store: store, cache: c}, nil
}

// Hits/Misses are tracked by callers via the bool LoadLandUnionForBBox
// returns; the engine itself stays stateless about per-job counters.

// LoadLandUnionForBBox returns the unioned land geometry intersecting a
// padded bbox, memoized by tile key. The bool result is true on cache hit.
func (e *Engine) LoadLandUnionForBBox(ctx *geos.Context, bbox orb.Bound, padDeg float64) (orb.Geometry, bool, error) {
	key := computeTileKey(bbox, padDeg)

	e.mu.Lock()
	if g, ok := e.cache.Get(key); ok {
		e.mu.Unlock()
		return g, true, nil
	}
	e.mu.Unlock()

	if err := e.store.ensureLoaded(); err != nil {
		return nil, false, err
	}

	queryBound := key.queryBound()
	var candidates []*Feature
	if e.store.index != nil {
		candidates = e.store.index.Query(queryBound)
	}
	if len(candidates) == 0 {
		candidates = linearScan(e.store.features, queryBound)
	}
	if len(candidates) == 0 {
		return nil, false, ErrEmpty
	}

	geoms := make([]*geos.Geom, 0, len(candidates))
	for _, c := range candidates {
		g, err := geomutil.ToGeos(ctx, c.Geom)
		if err != nil {
			continue
		}
		geoms = append(geoms, g)
	}
	if len(geoms) == 0 {
		return nil, false, ErrEmpty
	}

	unionGeos, err := geomutil.UnionAll(ctx, geoms)
	if err != nil {
		return nil, false, fmt.Errorf("landclip: union failed: %w", err)
	}
	union, err := geomutil.FromGeos(unionGeos)
	if err != nil {
		return nil, false, err
	}

	e.mu.Lock()
	e.cache.Add(key, union)
	e.mu.Unlock()

	return union, false, nil
}

// Clip intersects relationGeom with the land union covering its bbox,
// padded by padDeg, repairing invalid results with a zero-width buffer. An
// empty intersection is a valid, non-error outcome.
func (e *Engine) Clip(ctx *geos.Context, relationGeom orb.Geometry, padDeg float64) (clipped orb.Geometry, empty bool, cacheHit bool, err error) {
	bbox := relationGeom.Bound()
	landUnion, hit, err := e.LoadLandUnionForBBox(ctx, bbox, padDeg)
	if err == ErrEmpty {
		return nil, true, hit, nil
	}
	if err != nil {
		return nil, false, hit, err
	}

	relGeos, err := geomutil.ToGeos(ctx, relationGeom)
	if err != nil {
		return nil, false, hit, err
	}
	landGeos, err := geomutil.ToGeos(ctx, landUnion)
	if err != nil {
		return nil, false, hit, err
	}

	result, err := geomutil.Intersection(relGeos, landGeos)
	if err != nil || result == nil || !geomutil.IsValid(result) {
		if buffered := geomutil.BufferZero(relGeos); buffered != nil {
			result, err = geomutil.Intersection(buffered, landGeos)
		}
	}
	if err != nil {
		return nil, false, hit, err
	}
	if result == nil {
		return nil, true, hit, nil
	}

	out, err := geomutil.FromGeos(result)
	if err != nil {
		return nil, false, hit, err
	}
	if geomutil.VertexCount(out) == 0 {
		return nil, true, hit, nil
	}
	return out, false, hit, nil
}
