package compiler

import (
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
)

// Relation types the compiler turns into features
const (
	typeMultipolygon = "multipolygon"
	typeBoundary     = "boundary"
	typeRoute        = "route"
	typeRestriction  = "restriction"
)

// relation finalizes a relation against the registries as they stand.
// Relations are never stored, so a relation member is never resolved.
func (p *pass) relation(r *osm.Relation) {
	p.cur.reset(len(r.Tags))
	p.cur.loadTags(r.Tags)
	for _, m := range r.Members {
		p.cur.addMember(m.Type, m.Ref, m.Role)
	}
	p.stats.Relations++

	id := strconv.FormatInt(int64(r.ID), 10)

	switch p.cur.tags["type"] {
	case typeMultipolygon, typeBoundary:
		p.area(r.ID, id)
	case typeRoute, typeRestriction:
		p.orderedMembers(r.ID, id)
	}
}

// area emits one MultiPolygon holding every outer ring followed by every
// inner ring, or nothing when no outer ring resolves.
func (p *pass) area(rid osm.RelationID, id string) {
	var outer, inner []orb.Ring

	for _, m := range p.cur.members {
		if m.role != "outer" && m.role != "inner" {
			continue
		}

		w, ok := p.reg.way(osm.WayID(m.ref))
		if !ok {
			p.drop(DroppedRef{
				Kind:       DropMember,
				ParentType: osm.TypeRelation,
				ParentID:   int64(rid),
				RefType:    m.typ,
				Ref:        m.ref,
				Role:       m.role,
			})
			continue
		}

		if m.role == "outer" {
			outer = append(outer, orb.Ring(w.coords))
		} else {
			inner = append(inner, orb.Ring(w.coords))
		}
	}

	if len(outer) == 0 {
		return
	}

	rings := make(orb.Polygon, 0, len(outer)+len(inner))
	rings = append(rings, outer...)
	rings = append(rings, inner...)

	p.emit(orb.MultiPolygon{rings}, p.cur.properties("osm_id", id))
}

// orderedMembers emits one feature per resolvable member, in member order.
// Way members are always LineStrings, closed or not.
func (p *pass) orderedMembers(rid osm.RelationID, id string) {
	for _, m := range p.cur.members {
		d := DroppedRef{
			Kind:       DropMember,
			ParentType: osm.TypeRelation,
			ParentID:   int64(rid),
			RefType:    m.typ,
			Ref:        m.ref,
			Role:       m.role,
		}

		switch m.typ {
		case osm.TypeNode:
			pt, ok := p.reg.node(osm.NodeID(m.ref))
			if !ok {
				p.drop(d)
				continue
			}
			p.emit(pt, p.cur.properties("rel_role", m.role, "osm_id", id))

		case osm.TypeWay:
			w, ok := p.reg.way(osm.WayID(m.ref))
			if !ok {
				p.drop(d)
				continue
			}
			p.emit(w.coords, p.cur.properties("rel_role", m.role, "osm_id", id))

		default:
			d.Kind = DropUnsupportedMember
			p.drop(d)
		}
	}
}
