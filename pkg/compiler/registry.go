package compiler

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
)

type wayEntry struct {
	coords orb.LineString
	tags   map[string]string
}

// registry holds the forward references of one compilation: every node's
// coordinate and every way's resolved coordinates. Re-used ids overwrite.
type registry struct {
	nodes map[osm.NodeID]orb.Point
	ways  map[osm.WayID]wayEntry
}

func newRegistry() *registry {
	return &registry{
		nodes: make(map[osm.NodeID]orb.Point),
		ways:  make(map[osm.WayID]wayEntry),
	}
}

func (r *registry) putNode(id osm.NodeID, p orb.Point) {
	r.nodes[id] = p
}

func (r *registry) node(id osm.NodeID) (orb.Point, bool) {
	p, ok := r.nodes[id]
	return p, ok
}

func (r *registry) putWay(id osm.WayID, coords orb.LineString, tags map[string]string) {
	r.ways[id] = wayEntry{coords: coords, tags: tags}
}

func (r *registry) way(id osm.WayID) (wayEntry, bool) {
	w, ok := r.ways[id]
	return w, ok
}
