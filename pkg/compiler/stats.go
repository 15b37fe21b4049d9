package compiler

import (
	"time"

	"github.com/paulmach/osm"
)

// DropKind classifies a reference the compiler skipped
type DropKind string

const (
	// DropWayNode is a way node ref absent from the node registry
	DropWayNode DropKind = "way_node"

	// DropMember is a relation member whose ref did not resolve
	DropMember DropKind = "member"

	// DropUnsupportedMember is a route or restriction member that is neither
	// a node nor a way
	DropUnsupportedMember DropKind = "unsupported_member"
)

// DroppedRef describes one skipped reference
type DroppedRef struct {
	Kind       DropKind
	ParentType osm.Type
	ParentID   int64
	RefType    osm.Type
	Ref        int64
	Role       string
}

// Stats summarizes one compilation
type Stats struct {
	Nodes     int
	Ways      int
	Relations int

	// Features counts emitted features by GeoJSON geometry type
	Features map[string]int

	DroppedNodeRefs    int
	DroppedMemberRefs  int
	UnsupportedMembers int

	Elapsed time.Duration
}

func newStats() *Stats {
	return &Stats{Features: make(map[string]int, 4)}
}

// FeatureCount returns the total number of emitted features
func (s *Stats) FeatureCount() int {
	n := 0
	for _, c := range s.Features {
		n += c
	}
	return n
}

// DroppedRefs returns the total number of skipped references
func (s *Stats) DroppedRefs() int {
	return s.DroppedNodeRefs + s.DroppedMemberRefs + s.UnsupportedMembers
}

func (s *Stats) record(d DroppedRef) {
	switch d.Kind {
	case DropWayNode:
		s.DroppedNodeRefs++
	case DropMember:
		s.DroppedMemberRefs++
	case DropUnsupportedMember:
		s.UnsupportedMembers++
	}
}
