package compiler

import (
	"fmt"
	"math"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/osm"

	"github.com/NERVsystems/stdownloader/pkg/core"
)

// pass is the state of one forward pass over a document. It is owned by a
// single goroutine and discarded when the pass ends.
type pass struct {
	reg    *registry
	cur    scratch
	fc     *geojson.FeatureCollection
	stats  *Stats
	onDrop func(DroppedRef)
}

func newPass(onDrop func(DroppedRef)) *pass {
	return &pass{
		reg:    newRegistry(),
		fc:     geojson.NewFeatureCollection(),
		stats:  newStats(),
		onDrop: onDrop,
	}
}

func (p *pass) emit(g orb.Geometry, props map[string]interface{}) {
	f := geojson.NewFeature(g)
	f.Properties = props
	p.fc.Append(f)
	p.stats.Features[g.GeoJSONType()]++
}

func (p *pass) drop(d DroppedRef) {
	p.stats.record(d)
	if p.onDrop != nil {
		p.onDrop(d)
	}
}

func (p *pass) node(n *osm.Node) error {
	p.cur.reset(len(n.Tags))
	p.cur.loadTags(n.Tags)

	if !finite(n.Lat) || !finite(n.Lon) {
		return core.NewError(core.ErrParse, fmt.Sprintf("node %d has an unparsable coordinate", n.ID))
	}

	pt := orb.Point{n.Lon, n.Lat}
	p.reg.putNode(n.ID, pt)
	p.stats.Nodes++

	if len(p.cur.tags) > 0 {
		p.emit(pt, p.cur.properties("osm_id", strconv.FormatInt(int64(n.ID), 10)))
	}
	return nil
}

func (p *pass) way(w *osm.Way) {
	p.cur.reset(len(w.Tags))
	p.cur.loadTags(w.Tags)
	for _, wn := range w.Nodes {
		p.cur.addRef(wn.ID)
	}

	coords := make(orb.LineString, 0, len(p.cur.refs))
	for _, ref := range p.cur.refs {
		pt, ok := p.reg.node(ref)
		if !ok {
			p.drop(DroppedRef{
				Kind:       DropWayNode,
				ParentType: osm.TypeWay,
				ParentID:   int64(w.ID),
				RefType:    osm.TypeNode,
				Ref:        int64(ref),
			})
			continue
		}
		coords = append(coords, pt)
	}

	// Untagged ways are stored too; relations may reference them
	p.reg.putWay(w.ID, coords, p.cur.tags)
	p.stats.Ways++

	if len(p.cur.tags) == 0 {
		return
	}

	props := p.cur.properties("osm_id", strconv.FormatInt(int64(w.ID), 10))
	if closed(coords) {
		p.emit(orb.Polygon{orb.Ring(coords)}, props)
	} else {
		p.emit(coords, props)
	}
}

// closed reports whether coords form a ring: more than one coordinate and
// the first exactly equal to the last.
func closed(coords orb.LineString) bool {
	return len(coords) > 1 && coords[0] == coords[len(coords)-1]
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
