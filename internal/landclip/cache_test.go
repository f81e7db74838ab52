package landclip

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
)

func TestComputeTileKeySnapsToGrid(t *testing.T) {
	bbox := orb.Bound{Min: orb.Point{10.2, 20.4}, Max: orb.Point{11.8, 21.9}}
	k := computeTileKey(bbox, 1.0)
	assert.Equal(t, 100, k.padHundredths)
	assert.Equal(t, tileKey{minX: 1, minY: 3, maxX: 3, maxY: 5, padHundredths: 100}, k)
}

func TestComputeTileKeyStableForNearbyBBoxes(t *testing.T) {
	a := orb.Bound{Min: orb.Point{10.0, 20.0}, Max: orb.Point{11.0, 21.0}}
	b := orb.Bound{Min: orb.Point{10.5, 20.5}, Max: orb.Point{11.5, 21.5}}
	assert.Equal(t, computeTileKey(a, 1.0), computeTileKey(b, 1.0))
}

func TestQueryBoundMultipleOfTile(t *testing.T) {
	k := tileKey{minX: 1, minY: 2, maxX: 3, maxY: 4}
	b := k.queryBound()
	assert.Equal(t, 5.0, b.Min[0])
	assert.Equal(t, 10.0, b.Min[1])
	assert.Equal(t, 15.0, b.Max[0])
	assert.Equal(t, 20.0, b.Max[1])
}

func TestBoundsIntersect(t *testing.T) {
	a := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{10, 10}}
	b := orb.Bound{Min: orb.Point{5, 5}, Max: orb.Point{15, 15}}
	c := orb.Bound{Min: orb.Point{20, 20}, Max: orb.Point{30, 30}}
	assert.True(t, boundsIntersect(a, b))
	assert.False(t, boundsIntersect(a, c))
}

func TestLinearScan(t *testing.T) {
	features := []Feature{
		{Bound: orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 1}}},
		{Bound: orb.Bound{Min: orb.Point{20, 20}, Max: orb.Point{21, 21}}},
	}
	got := linearScan(features, orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{2, 2}})
	assert.Len(t, got, 1)
}

func TestStatusOfMissing(t *testing.T) {
	st := StatusOf("/nonexistent/land.zip")
	assert.False(t, st.Present)
}
