package geomutil

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
)

func TestGeometryCountSinglePolygon(t *testing.T) {
	poly := orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}
	assert.Equal(t, 1, GeometryCount(poly))
}

func TestGeometryCountMultiPolygon(t *testing.T) {
	mp := orb.MultiPolygon{
		{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}},
		{{{5, 5}, {6, 5}, {6, 6}, {5, 5}}},
	}
	assert.Equal(t, 2, GeometryCount(mp))
}

func TestVertexCountPolygon(t *testing.T) {
	poly := orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}
	assert.Equal(t, 4, VertexCount(poly))
}

func TestBoundOf(t *testing.T) {
	poly := orb.Polygon{{{0, 0}, {2, 0}, {2, 2}, {0, 0}}}
	b := BoundOf(poly)
	assert.Equal(t, 0.0, b.Min[0])
	assert.Equal(t, 2.0, b.Max[0])
}
