// Package index provides bounding box queries over a compiled feature
// collection using an R-tree.
package index

import (
	"os"
	"sort"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/NERVsystems/stdownloader/pkg/core"
	"github.com/NERVsystems/stdownloader/pkg/geo"
)

// Point features have no extent; the R-tree needs one (~11 m at the equator)
const epsilon = 0.0001

// Index answers bounding box queries over a feature collection
type Index struct {
	fc    *geojson.FeatureCollection
	tree  *rtreego.Rtree
	bound orb.Bound
	size  int
}

// entry wraps a feature for R-tree storage
type entry struct {
	pos   int
	bound orb.Bound
}

// Bounds implements rtreego.Spatial
func (e *entry) Bounds() rtreego.Rect {
	return rect(e.bound)
}

func rect(b orb.Bound) rtreego.Rect {
	lonLength := b.Max.Lon() - b.Min.Lon()
	latLength := b.Max.Lat() - b.Min.Lat()
	if lonLength < epsilon {
		lonLength = epsilon
	}
	if latLength < epsilon {
		latLength = epsilon
	}

	r, _ := rtreego.NewRect(rtreego.Point{b.Min.Lon(), b.Min.Lat()}, []float64{lonLength, latLength})
	return r
}

// New indexes every feature of fc that has at least one coordinate
func New(fc *geojson.FeatureCollection) *Index {
	if fc == nil {
		fc = geojson.NewFeatureCollection()
	}

	ix := &Index{
		fc:   fc,
		tree: rtreego.NewTree(2, 25, 50),
	}

	first := true
	for i, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		b := f.Geometry.Bound()
		if b.IsEmpty() {
			continue
		}

		ix.tree.Insert(&entry{pos: i, bound: b})
		ix.size++

		if first {
			ix.bound = b
			first = false
		} else {
			ix.bound = ix.bound.Union(b)
		}
	}

	return ix
}

// Load reads a feature collection written by the compiler and indexes it
func Load(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, core.NewError(core.ErrInput, "cannot read feature collection").
			WithPath(path).
			Wrap(err)
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, core.NewError(core.ErrParse, "invalid feature collection").
			WithPath(path).
			Wrap(err)
	}

	return New(fc), nil
}

// Len returns the number of indexed features
func (ix *Index) Len() int {
	return ix.size
}

// Bound returns the extent of all indexed features
func (ix *Index) Bound() orb.Bound {
	return ix.bound
}

// Collection returns the indexed collection
func (ix *Index) Collection() *geojson.FeatureCollection {
	return ix.fc
}

// Search returns the features whose extent intersects bbox, in collection order
func (ix *Index) Search(bbox geo.BoundingBox) []*geojson.Feature {
	if ix.size == 0 {
		return []*geojson.Feature{}
	}

	hits := ix.tree.SearchIntersect(rect(bbox.Bound()))

	positions := make([]int, 0, len(hits))
	for _, h := range hits {
		positions = append(positions, h.(*entry).pos)
	}
	sort.Ints(positions)

	result := make([]*geojson.Feature, 0, len(positions))
	for _, pos := range positions {
		result = append(result, ix.fc.Features[pos])
	}
	return result
}
