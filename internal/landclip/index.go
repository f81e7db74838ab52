package landclip

import (
	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
)

// rtreeIndex wraps an rtreego.Rtree over land Feature bounding boxes. The
// engine falls back to linearScan when no index is built or the index query
// returns no candidates, mirroring the original's sindex-or-mask fallback.
type rtreeIndex struct {
	tree     *rtreego.Rtree
	byLeaf   map[*indexedFeature]*Feature
}

type indexedFeature struct {
	rect rtreego.Rect
	feat *Feature
}

func (f *indexedFeature) Bounds() rtreego.Rect { return f.rect }

func boundToRect(b orb.Bound) (rtreego.Rect, error) {
	point := rtreego.Point{b.Min[0], b.Min[1]}
	lengths := []float64{maxf(b.Max[0]-b.Min[0], 1e-9), maxf(b.Max[1]-b.Min[1], 1e-9)}
	return rtreego.NewRect(point, lengths)
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func buildIndex(features []Feature) *rtreeIndex {
	tree := rtreego.NewTree(2, 25, 50)
	idx := &rtreeIndex{tree: tree, byLeaf: map[*indexedFeature]*Feature{}}
	for i := range features {
		f := &features[i]
		rect, err := boundToRect(f.Bound)
		if err != nil {
			continue
		}
		leaf := &indexedFeature{rect: rect, feat: f}
		idx.byLeaf[leaf] = f
		tree.Insert(leaf)
	}
	return idx
}

// Query returns every feature whose bounding box intersects bbox.
func (idx *rtreeIndex) Query(bbox orb.Bound) []*Feature {
	rect, err := boundToRect(bbox)
	if err != nil {
		return nil
	}
	results := idx.tree.SearchIntersect(rect)
	out := make([]*Feature, 0, len(results))
	for _, r := range results {
		if leaf, ok := r.(*indexedFeature); ok {
			out = append(out, leaf.feat)
		}
	}
	return out
}

// linearScan falls back to a brute-force intersects test over all features,
// used if the spatial index is unavailable.
func linearScan(features []Feature, bbox orb.Bound) []*Feature {
	out := make([]*Feature, 0)
	for i := range features {
		if boundsIntersect(features[i].Bound, bbox) {
			out = append(out, &features[i])
		}
	}
	return out
}

func boundsIntersect(a, b orb.Bound) bool {
	return a.Min[0] <= b.Max[0] && a.Max[0] >= b.Min[0] &&
		a.Min[1] <= b.Max[1] && a.Max[1] >= b.Min[1]
}
