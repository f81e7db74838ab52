package osmgeom

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"

	"github.com/MeKo-Tech/osmboundaries/internal/overpass"
)

func TestIsAntimeridianCandidate(t *testing.T) {
	crossing := []orb.LineString{
		{{170, 10}, {-170, 10}},
	}
	assert.True(t, isAntimeridianCandidate(crossing))

	normal := []orb.LineString{
		{{10, 10}, {11, 11}},
	}
	assert.False(t, isAntimeridianCandidate(normal))
}

func TestUnwrapLongitude(t *testing.T) {
	ls := orb.LineString{{170, 0}, {-170, 0}, {-175, 0}}
	out := unwrapLongitude(ls)
	assert.Equal(t, 170.0, out[0].X())
	assert.Equal(t, 190.0, out[1].X())
	assert.Equal(t, 185.0, out[2].X())
}

func TestRewrapLongitude(t *testing.T) {
	poly := orb.Polygon{{{190, 0}, {200, 0}, {195, 5}, {190, 0}}}
	out := rewrapLongitude(poly).(orb.Polygon)
	assert.Equal(t, 190.0, out[0][0].X())
}

func TestWayLineStringFromGeometry(t *testing.T) {
	w := &overpass.Way{Geometry: []overpass.LatLon{{Lat: 1, Lon: 2}, {Lat: 3, Lon: 4}}}
	els := &overpass.Elements{Nodes: map[int64]*overpass.Node{}}
	ls := wayLineString(w, els)
	assert.Len(t, ls, 2)
	assert.Equal(t, 2.0, ls[0].X())
	assert.Equal(t, 1.0, ls[0].Y())
}

func TestWayLineStringFromNodeRefs(t *testing.T) {
	els := &overpass.Elements{Nodes: map[int64]*overpass.Node{
		1: {ID: 1, Lat: 1, Lon: 2},
		2: {ID: 2, Lat: 3, Lon: 4},
	}}
	w := &overpass.Way{NodeRefs: []int64{1, 2}}
	ls := wayLineString(w, els)
	assert.Len(t, ls, 2)
}

func TestBuildMissingRelation(t *testing.T) {
	els := &overpass.Elements{
		Nodes:     map[int64]*overpass.Node{},
		Ways:      map[int64]*overpass.Way{},
		Relations: map[int64]*overpass.Relation{},
	}
	_, err := Build(nil, els, 42, Options{})
	assert.ErrorIs(t, err, ErrRelationNotFound)
}

func TestBuildNoWayGeometry(t *testing.T) {
	els := &overpass.Elements{
		Nodes: map[int64]*overpass.Node{},
		Ways:  map[int64]*overpass.Way{},
		Relations: map[int64]*overpass.Relation{
			42: {ID: 42, Members: []overpass.Member{{Type: "node", Ref: 1}}},
		},
	}
	_, err := Build(nil, els, 42, Options{})
	assert.ErrorIs(t, err, ErrNoWayGeometry)
}
