package compiler

import (
	"github.com/paulmach/osm"
)

type member struct {
	typ  osm.Type
	ref  int64
	role string
}

// scratch holds the children of the primitive being finalized. It is reset
// at the start of every primitive and never outlives it.
type scratch struct {
	tags    map[string]string
	refs    []osm.NodeID
	members []member
}

// reset starts a new primitive. The tag map is reallocated rather than
// cleared because the previous way's map lives on in the way registry.
func (s *scratch) reset(tagHint int) {
	s.tags = make(map[string]string, tagHint)
	s.refs = s.refs[:0]
	s.members = s.members[:0]
}

// addTag records a tag; a repeated key overwrites the earlier value.
func (s *scratch) addTag(k, v string) {
	s.tags[k] = v
}

func (s *scratch) addRef(id osm.NodeID) {
	s.refs = append(s.refs, id)
}

func (s *scratch) addMember(t osm.Type, ref int64, role string) {
	s.members = append(s.members, member{typ: t, ref: ref, role: role})
}

func (s *scratch) loadTags(tags osm.Tags) {
	for _, t := range tags {
		s.addTag(t.Key, t.Value)
	}
}

// properties returns a fresh map of the current tags followed by extra
// key/value pairs, which win over tags with the same key.
func (s *scratch) properties(extra ...string) map[string]interface{} {
	props := make(map[string]interface{}, len(s.tags)+len(extra)/2)
	for k, v := range s.tags {
		props[k] = v
	}
	for i := 0; i+1 < len(extra); i += 2 {
		props[extra[i]] = extra[i+1]
	}
	return props
}
