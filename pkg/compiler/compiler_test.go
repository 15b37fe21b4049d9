package compiler

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/osm"

	"github.com/NERVsystems/stdownloader/pkg/core"
)

// utcFixture covers every branch: a tagged node, open and closed ways, an
// area relation with inner and outer rings, a boundary, a route and a turn
// restriction (Westfield UTC, San Diego).
const utcFixture = `<?xml version="1.0" encoding="UTF-8"?>
<osm version="0.6" generator="Overpass API 0.7.62.8 e802775f">
<note>The data included in this document is from www.openstreetmap.org. The data is made available under ODbL.</note>
<meta osm_base="2025-12-21T23:30:31Z"/>
<bounds minlat="32.8680000" minlon="-117.2150000" maxlat="32.8750000" maxlon="-117.2080000"/>
<node id="1" lat="32.8715" lon="-117.2110" version="1" timestamp="2025-01-01T00:00:00Z">
  <tag k="name" v="UTC Transit Center"/>
</node>
<node id="2" lat="32.8720" lon="-117.2120" version="1"/>
<node id="3" lat="32.8730" lon="-117.2120" version="1"/>
<node id="4" lat="32.8730" lon="-117.2110" version="1"/>
<node id="5" lat="32.8725" lon="-117.2115" version="1"/>
<way id="10" version="1">
  <nd ref="2"/>
  <nd ref="3"/>
  <tag k="highway" v="primary"/>
  <tag k="name" v="Genesee Ave"/>
</way>
<way id="11" version="1">
  <nd ref="1"/>
  <nd ref="2"/>
  <nd ref="3"/>
  <nd ref="4"/>
  <nd ref="1"/>
  <tag k="building" v="retail"/>
</way>
<way id="12" version="1">
  <nd ref="5"/>
  <nd ref="2"/>
  <nd ref="3"/>
  <nd ref="5"/>
  <tag k="landuse" v="grass"/>
</way>
<relation id="100" version="1">
  <member type="way" ref="11" role="outer"/>
  <member type="way" ref="12" role="inner"/>
  <tag k="type" v="multipolygon"/>
  <tag k="amenity" v="marketplace"/>
</relation>
<relation id="200" version="1">
  <member type="way" ref="11" role="outer"/>
  <tag k="type" v="boundary"/>
  <tag k="boundary" v="parking"/>
  <tag k="name" v="UTC Parking South"/>
</relation>
<relation id="300" version="1">
  <member type="way" ref="10" role="track"/>
  <member type="node" ref="1" role="stop"/>
  <tag k="type" v="route"/>
  <tag k="route" v="bus"/>
  <tag k="ref" v="201"/>
</relation>
<relation id="400" version="1">
  <member type="way" ref="10" role="from"/>
  <member type="node" ref="5" role="via"/>
  <tag k="type" v="restriction"/>
  <tag k="restriction" v="no_left_turn"/>
</relation>
</osm>`

func osmDoc(body string) string {
	return `<?xml version="1.0" encoding="UTF-8"?><osm version="0.6">` + body + `</osm>`
}

func run(t *testing.T, doc string, opts ...Option) (*geojson.FeatureCollection, *Stats) {
	t.Helper()
	fc, stats, err := New(opts...).Run(context.Background(), strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	return fc, stats
}

func prop(f *geojson.Feature, key string) string {
	v, _ := f.Properties[key].(string)
	return v
}

func TestCompileUTCFixture(t *testing.T) {
	fc, stats := run(t, utcFixture)

	expected := []struct {
		geometry string
		osmID    string
		relRole  string
	}{
		{"Point", "1", ""},
		{"LineString", "10", ""},
		{"Polygon", "11", ""},
		{"Polygon", "12", ""},
		{"MultiPolygon", "100", ""},
		{"MultiPolygon", "200", ""},
		{"LineString", "300", "track"},
		{"Point", "300", "stop"},
		{"LineString", "400", "from"},
		{"Point", "400", "via"},
	}

	if len(fc.Features) != len(expected) {
		t.Fatalf("got %d features, expected %d", len(fc.Features), len(expected))
	}

	for i, want := range expected {
		f := fc.Features[i]
		if got := f.Geometry.GeoJSONType(); got != want.geometry {
			t.Errorf("feature %d: geometry %s, expected %s", i, got, want.geometry)
		}
		if got := prop(f, "osm_id"); got != want.osmID {
			t.Errorf("feature %d: osm_id %q, expected %q", i, got, want.osmID)
		}
		role, hasRole := f.Properties["rel_role"]
		if want.relRole == "" && hasRole {
			t.Errorf("feature %d: unexpected rel_role %v", i, role)
		}
		if want.relRole != "" && role != want.relRole {
			t.Errorf("feature %d: rel_role %v, expected %s", i, role, want.relRole)
		}
	}

	if stats.Nodes != 5 || stats.Ways != 3 || stats.Relations != 4 {
		t.Errorf("primitive counts = %d/%d/%d, expected 5/3/4", stats.Nodes, stats.Ways, stats.Relations)
	}
	if stats.FeatureCount() != 10 {
		t.Errorf("FeatureCount() = %d, expected 10", stats.FeatureCount())
	}
	if stats.DroppedRefs() != 0 {
		t.Errorf("DroppedRefs() = %d, expected 0", stats.DroppedRefs())
	}
}

func TestCompileUTCFixtureDetails(t *testing.T) {
	fc, _ := run(t, utcFixture)

	t.Run("tagged node", func(t *testing.T) {
		f := fc.Features[0]
		if pt := f.Geometry.(orb.Point); pt != (orb.Point{-117.2110, 32.8715}) {
			t.Errorf("coordinate = %v", pt)
		}
		if prop(f, "name") != "UTC Transit Center" {
			t.Errorf("name = %q", prop(f, "name"))
		}
	})

	t.Run("closed way is a single ring polygon", func(t *testing.T) {
		poly := fc.Features[2].Geometry.(orb.Polygon)
		if len(poly) != 1 || len(poly[0]) != 5 {
			t.Fatalf("polygon shape = %v", poly)
		}
		if poly[0][0] != poly[0][4] {
			t.Error("ring is not closed")
		}
	})

	t.Run("multipolygon concatenates outer and inner rings", func(t *testing.T) {
		mall := fc.Features[4]
		if prop(mall, "amenity") != "marketplace" {
			t.Fatalf("unexpected feature %v", mall.Properties)
		}
		mp := mall.Geometry.(orb.MultiPolygon)
		if len(mp) != 1 || len(mp[0]) != 2 {
			t.Fatalf("expected one polygon with 2 rings, got %v", mp)
		}
		if len(mp[0][0]) != 5 || len(mp[0][1]) != 4 {
			t.Errorf("ring order wrong: outer %d coords, inner %d coords", len(mp[0][0]), len(mp[0][1]))
		}
		if prop(mall, "type") != "multipolygon" {
			t.Errorf("relation tags should be carried, got %v", mall.Properties)
		}
	})

	t.Run("boundary", func(t *testing.T) {
		b := fc.Features[5]
		if prop(b, "name") != "UTC Parking South" || len(b.Geometry.(orb.MultiPolygon)[0]) != 1 {
			t.Errorf("unexpected boundary feature %v", b.Properties)
		}
	})

	t.Run("route member carries relation tags", func(t *testing.T) {
		stop := fc.Features[7]
		if prop(stop, "ref") != "201" || prop(stop, "route") != "bus" {
			t.Errorf("stop properties = %v", stop.Properties)
		}
		if stop.Geometry.(orb.Point) != (orb.Point{-117.2110, 32.8715}) {
			t.Errorf("stop coordinate = %v", stop.Geometry)
		}
	})

	t.Run("restriction", func(t *testing.T) {
		via := fc.Features[9]
		if prop(via, "restriction") != "no_left_turn" || prop(via, "osm_id") != "400" {
			t.Errorf("via properties = %v", via.Properties)
		}
		from := fc.Features[8].Geometry.(orb.LineString)
		if len(from) != 2 {
			t.Errorf("from line has %d coordinates, expected 2", len(from))
		}
	})
}

func TestUntaggedPrimitivesEmitNothing(t *testing.T) {
	fc, stats := run(t, osmDoc(`
<node id="1" lat="1" lon="1"/>
<node id="2" lat="2" lon="2"/>
<way id="10"><nd ref="1"/><nd ref="2"/></way>
<relation id="100"><member type="way" ref="10" role="outer"/></relation>`))

	if len(fc.Features) != 0 {
		t.Errorf("got %d features, expected none", len(fc.Features))
	}
	if stats.Nodes != 2 || stats.Ways != 1 || stats.Relations != 1 {
		t.Errorf("unexpected counts %+v", stats)
	}
}

func TestWayShapes(t *testing.T) {
	nodes := `<node id="1" lat="0" lon="0"/><node id="2" lat="0" lon="1"/><node id="3" lat="1" lon="1"/>`

	tests := []struct {
		name   string
		way    string
		geom   string
		coords int
	}{
		{"open line", `<nd ref="1"/><nd ref="2"/><nd ref="3"/>`, "LineString", 3},
		{"closed ring", `<nd ref="1"/><nd ref="2"/><nd ref="3"/><nd ref="1"/>`, "Polygon", 4},
		{"single node", `<nd ref="1"/>`, "LineString", 1},
		{"two equal nodes", `<nd ref="1"/><nd ref="1"/>`, "Polygon", 2},
		{"no nodes", ``, "LineString", 0},
		{"all refs unresolved", `<nd ref="8"/><nd ref="9"/>`, "LineString", 0},
		{"ring closes after dropping a ref", `<nd ref="1"/><nd ref="2"/><nd ref="9"/><nd ref="1"/>`, "Polygon", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc, _ := run(t, osmDoc(nodes+`<way id="10">`+tt.way+`<tag k="highway" v="path"/></way>`))
			if len(fc.Features) != 1 {
				t.Fatalf("got %d features, expected 1", len(fc.Features))
			}

			g := fc.Features[0].Geometry
			if g.GeoJSONType() != tt.geom {
				t.Fatalf("geometry = %s, expected %s", g.GeoJSONType(), tt.geom)
			}

			var n int
			switch v := g.(type) {
			case orb.LineString:
				n = len(v)
				if v == nil {
					t.Error("coordinates must not be nil")
				}
			case orb.Polygon:
				if len(v) != 1 {
					t.Fatalf("polygon has %d rings, expected 1", len(v))
				}
				n = len(v[0])
			}
			if n != tt.coords {
				t.Errorf("got %d coordinates, expected %d", n, tt.coords)
			}
		})
	}
}

func TestEmptyLineStringEncodesAsArray(t *testing.T) {
	fc, _ := run(t, osmDoc(`<way id="10"><nd ref="9"/><tag k="highway" v="path"/></way>`))

	data, err := json.Marshal(fc.Features[0])
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if !bytes.Contains(data, []byte(`"coordinates":[]`)) {
		t.Errorf("expected empty coordinate array, got %s", data)
	}
}

func TestForwardReferencesAreNotResolved(t *testing.T) {
	fc, stats := run(t, osmDoc(`
<way id="10"><nd ref="1"/><nd ref="2"/><tag k="highway" v="path"/></way>
<node id="1" lat="0" lon="0"/>
<node id="2" lat="1" lon="1"/>`))

	if ls := fc.Features[0].Geometry.(orb.LineString); len(ls) != 0 {
		t.Errorf("way resolved nodes that came after it: %v", ls)
	}
	if stats.DroppedNodeRefs != 2 {
		t.Errorf("DroppedNodeRefs = %d, expected 2", stats.DroppedNodeRefs)
	}
}

func TestDuplicateTagLastValueWins(t *testing.T) {
	fc, _ := run(t, osmDoc(`<node id="1" lat="0" lon="0"><tag k="name" v="first"/><tag k="name" v="second"/></node>`))

	if got := prop(fc.Features[0], "name"); got != "second" {
		t.Errorf("name = %q, expected second", got)
	}
}

func TestOsmIDOverridesTag(t *testing.T) {
	fc, _ := run(t, osmDoc(`<node id="42" lat="0" lon="0"><tag k="osm_id" v="bogus"/></node>`))

	if got := prop(fc.Features[0], "osm_id"); got != "42" {
		t.Errorf("osm_id = %q, expected 42", got)
	}
}

func TestDuplicateNodeIDLastWriteWins(t *testing.T) {
	fc, _ := run(t, osmDoc(`
<node id="1" lat="0" lon="0"/>
<node id="1" lat="5" lon="6"/>
<node id="2" lat="7" lon="8"/>
<way id="10"><nd ref="1"/><nd ref="2"/><tag k="highway" v="path"/></way>`))

	ls := fc.Features[0].Geometry.(orb.LineString)
	if ls[0] != (orb.Point{6, 5}) {
		t.Errorf("first coordinate = %v, expected the later node position", ls[0])
	}
}

func TestAreaRelations(t *testing.T) {
	ways := `
<node id="1" lat="0" lon="0"/><node id="2" lat="0" lon="1"/><node id="3" lat="1" lon="1"/>
<way id="10"><nd ref="1"/><nd ref="2"/><nd ref="3"/><nd ref="1"/></way>
<way id="11"><nd ref="1"/><nd ref="2"/><nd ref="3"/><nd ref="1"/></way>
<way id="12"><nd ref="2"/><nd ref="3"/></way>`

	tests := []struct {
		name    string
		members string
		relType string
		rings   int // -1: no feature
		dropped int
	}{
		{"outer only", `<member type="way" ref="10" role="outer"/>`, "multipolygon", 1, 0},
		{"two outers and an inner", `<member type="way" ref="10" role="outer"/><member type="way" ref="12" role="inner"/><member type="way" ref="11" role="outer"/>`, "multipolygon", 3, 0},
		{"boundary", `<member type="way" ref="10" role="outer"/>`, "boundary", 1, 0},
		{"inner only", `<member type="way" ref="12" role="inner"/>`, "multipolygon", -1, 0},
		{"unresolved outer", `<member type="way" ref="99" role="outer"/><member type="way" ref="12" role="inner"/>`, "multipolygon", -1, 1},
		{"unresolved inner skipped", `<member type="way" ref="10" role="outer"/><member type="way" ref="99" role="inner"/>`, "multipolygon", 1, 1},
		{"other roles ignored", `<member type="way" ref="10" role="outer"/><member type="node" ref="1" role="label"/><member type="way" ref="11" role=""/>`, "multipolygon", 1, 0},
		{"no members", ``, "multipolygon", -1, 0},
		{"unsupported type", `<member type="way" ref="10" role="outer"/>`, "site", -1, 0},
		{"no type", `<member type="way" ref="10" role="outer"/>`, "", -1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tags := `<tag k="name" v="area"/>`
			if tt.relType != "" {
				tags += `<tag k="type" v="` + tt.relType + `"/>`
			}
			fc, stats := run(t, osmDoc(ways+`<relation id="100">`+tt.members+tags+`</relation>`))

			if tt.rings < 0 {
				if len(fc.Features) != 0 {
					t.Fatalf("expected no feature, got %d", len(fc.Features))
				}
			} else {
				if len(fc.Features) != 1 {
					t.Fatalf("expected 1 feature, got %d", len(fc.Features))
				}
				f := fc.Features[0]
				mp := f.Geometry.(orb.MultiPolygon)
				if len(mp) != 1 || len(mp[0]) != tt.rings {
					t.Errorf("rings = %v, expected one polygon with %d rings", mp, tt.rings)
				}
				if prop(f, "osm_id") != "100" {
					t.Errorf("osm_id = %q", prop(f, "osm_id"))
				}
				if _, ok := f.Properties["rel_role"]; ok {
					t.Error("area features must not carry rel_role")
				}
			}

			if stats.DroppedMemberRefs != tt.dropped {
				t.Errorf("DroppedMemberRefs = %d, expected %d", stats.DroppedMemberRefs, tt.dropped)
			}
		})
	}
}

func TestOrderedMemberRelations(t *testing.T) {
	doc := osmDoc(`
<node id="1" lat="0" lon="0"/><node id="2" lat="0" lon="1"/><node id="3" lat="1" lon="1"/>
<way id="10"><nd ref="1"/><nd ref="2"/><nd ref="3"/><nd ref="1"/><tag k="area" v="yes"/></way>
<relation id="50"><tag k="type" v="route"/></relation>
<relation id="300">
  <member type="node" ref="1" role="stop"/>
  <member type="way" ref="10"/>
  <member type="node" ref="99" role="stop"/>
  <member type="way" ref="99" role="platform"/>
  <member type="relation" ref="50" role="sub"/>
  <member type="node" ref="3" role="stop"/>
  <tag k="type" v="route"/>
  <tag k="ref" v="201"/>
</relation>`)

	var dropped []DroppedRef
	fc, stats := run(t, doc, WithDroppedRefHook(func(d DroppedRef) {
		dropped = append(dropped, d)
	}))

	// way 10 polygon, then three route members
	if len(fc.Features) != 4 {
		t.Fatalf("got %d features, expected 4", len(fc.Features))
	}

	members := fc.Features[1:]
	wantGeom := []string{"Point", "LineString", "Point"}
	wantRole := []string{"stop", "", "stop"}
	for i, f := range members {
		if f.Geometry.GeoJSONType() != wantGeom[i] {
			t.Errorf("member %d geometry = %s, expected %s", i, f.Geometry.GeoJSONType(), wantGeom[i])
		}
		role, ok := f.Properties["rel_role"]
		if !ok || role != wantRole[i] {
			t.Errorf("member %d rel_role = %v (present %v), expected %q", i, role, ok, wantRole[i])
		}
		if prop(f, "osm_id") != "300" || prop(f, "ref") != "201" {
			t.Errorf("member %d properties = %v", i, f.Properties)
		}
	}

	if ls := members[1].Geometry.(orb.LineString); len(ls) != 4 {
		t.Errorf("closed way member should be a 4 point LineString, got %v", ls)
	}

	if stats.DroppedMemberRefs != 2 || stats.UnsupportedMembers != 1 {
		t.Errorf("dropped = %d, unsupported = %d, expected 2 and 1", stats.DroppedMemberRefs, stats.UnsupportedMembers)
	}
	if len(dropped) != 3 {
		t.Fatalf("hook saw %d refs, expected 3", len(dropped))
	}
	if dropped[2].Kind != DropUnsupportedMember || dropped[2].RefType != osm.TypeRelation || dropped[2].ParentID != 300 {
		t.Errorf("unexpected dropped ref %+v", dropped[2])
	}
}

func TestDroppedRefHookForWays(t *testing.T) {
	var dropped []DroppedRef
	_, stats := run(t, osmDoc(`<node id="1" lat="0" lon="0"/><way id="7"><nd ref="1"/><nd ref="2"/></way>`),
		WithDroppedRefHook(func(d DroppedRef) { dropped = append(dropped, d) }))

	if stats.DroppedNodeRefs != 1 {
		t.Errorf("DroppedNodeRefs = %d, expected 1", stats.DroppedNodeRefs)
	}
	want := DroppedRef{Kind: DropWayNode, ParentType: osm.TypeWay, ParentID: 7, RefType: osm.TypeNode, Ref: 2}
	if len(dropped) != 1 || dropped[0] != want {
		t.Errorf("dropped = %+v, expected %+v", dropped, want)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unparsable latitude", osmDoc(`<node id="1" lat="north" lon="0"><tag k="a" v="b"/></node>`)},
		{"unparsable longitude", osmDoc(`<node id="1" lat="0" lon="1.2.3"/>`)},
		{"NaN coordinate", osmDoc(`<node id="1" lat="NaN" lon="0"/>`)},
		{"infinite coordinate", osmDoc(`<node id="1" lat="0" lon="+Inf"/>`)},
		{"unclosed element", `<osm><node id="1" lat="0" lon="0"></osm>`},
		{"unclosed root", `<osm><node id="1" lat="0" lon="0"/>`},
		{"empty document", ""},
		{"plain text", "this is not xml at all"},
		{"missing latitude", osmDoc(`<node id="1" lon="5"><tag k="a" v="b"/></node><way id="2"><nd ref="1"/><nd ref="1"/><tag k="area" v="yes"/></way>`)},
		{"missing longitude", osmDoc(`<node id="1" lat="5"/>`)},
		{"non-numeric id", osmDoc(`<node id="n1" lat="0" lon="0"/>`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := New().Run(context.Background(), strings.NewReader(tt.doc))
			if err == nil {
				t.Fatal("expected error")
			}
			if !core.HasCode(err, core.ErrParse) {
				t.Errorf("expected PARSE_ERROR, got %v", err)
			}
		})
	}
}

func writeInput(t *testing.T, dir, name, doc string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCompileWritesCollection(t *testing.T) {
	dir := t.TempDir()
	in := writeInput(t, dir, "utc_full.osm", utcFixture)
	out := filepath.Join(dir, "utc_full.geojson")

	stats, err := Compile(context.Background(), in, out)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if stats.FeatureCount() != 10 {
		t.Errorf("FeatureCount() = %d, expected 10", stats.FeatureCount())
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("output not written: %v", err)
	}

	var doc struct {
		Type     string `json:"type"`
		Features []struct {
			Geometry struct {
				Type        string          `json:"type"`
				Coordinates json.RawMessage `json:"coordinates"`
			} `json:"geometry"`
			Properties map[string]interface{} `json:"properties"`
		} `json:"features"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("invalid output: %v", err)
	}
	if doc.Type != "FeatureCollection" || len(doc.Features) != 10 {
		t.Fatalf("got %s with %d features", doc.Type, len(doc.Features))
	}
	for i, f := range doc.Features {
		if _, ok := f.Properties["osm_id"].(string); !ok {
			t.Errorf("feature %d: osm_id is not a string: %v", i, f.Properties["osm_id"])
		}
	}

	var mp [][][][2]float64
	if err := json.Unmarshal(doc.Features[4].Geometry.Coordinates, &mp); err != nil {
		t.Fatalf("multipolygon coordinates: %v", err)
	}
	if len(mp) != 1 || len(mp[0]) != 2 {
		t.Errorf("multipolygon nesting = %v", mp)
	}
}

func TestCompileDeterministic(t *testing.T) {
	dir := t.TempDir()
	in := writeInput(t, dir, "utc.osm", utcFixture)

	var outputs [][]byte
	for _, name := range []string{"a.geojson", "b.geojson"} {
		out := filepath.Join(dir, name)
		if _, err := Compile(context.Background(), in, out); err != nil {
			t.Fatalf("Compile failed: %v", err)
		}
		data, err := os.ReadFile(out)
		if err != nil {
			t.Fatal(err)
		}
		outputs = append(outputs, data)
	}

	if !bytes.Equal(outputs[0], outputs[1]) {
		t.Error("compiling the same input twice produced different output")
	}
}

func TestCompileErrorsWriteNothing(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name   string
		input  string
		output string
		code   core.ErrorCode
	}{
		{
			name:   "missing input",
			input:  filepath.Join(dir, "missing.osm"),
			output: filepath.Join(dir, "missing.geojson"),
			code:   core.ErrInput,
		},
		{
			name:   "corrupt coordinate",
			input:  writeInput(t, dir, "corrupt.osm", osmDoc(`<node id="1" lat="32.87" lon="oops"/>`)),
			output: filepath.Join(dir, "corrupt.geojson"),
			code:   core.ErrParse,
		},
		{
			name:   "empty document",
			input:  writeInput(t, dir, "empty.osm", ""),
			output: filepath.Join(dir, "empty.geojson"),
			code:   core.ErrParse,
		},
		{
			name:   "no root element",
			input:  writeInput(t, dir, "text.osm", "this is not xml at all"),
			output: filepath.Join(dir, "text.geojson"),
			code:   core.ErrParse,
		},
		{
			name:   "missing coordinate",
			input:  writeInput(t, dir, "nolat.osm", osmDoc(`<node id="1" lon="5"/>`)),
			output: filepath.Join(dir, "nolat.geojson"),
			code:   core.ErrParse,
		},
		{
			name:   "unwritable destination",
			input:  writeInput(t, dir, "ok.osm", utcFixture),
			output: filepath.Join(dir, "no", "such", "dir", "out.geojson"),
			code:   core.ErrOutput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(context.Background(), tt.input, tt.output)
			if err == nil {
				t.Fatal("expected error")
			}
			if !core.HasCode(err, tt.code) {
				t.Errorf("expected %s, got %v", tt.code, err)
			}
			if _, statErr := os.Stat(tt.output); !os.IsNotExist(statErr) {
				t.Error("output file should not exist")
			}
		})
	}
}

func TestFormatFromPath(t *testing.T) {
	tests := map[string]Format{
		"extract.osm":     FormatXML,
		"extract.osm.pbf": FormatPBF,
		"EXTRACT.PBF":     FormatPBF,
		"extract.xml":     FormatXML,
	}
	for path, want := range tests {
		if got := FormatFromPath(path); got != want {
			t.Errorf("FormatFromPath(%q) = %s, expected %s", path, got, want)
		}
	}
}

func TestCompilerIgnoresCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fc, _, err := New().Run(ctx, strings.NewReader(utcFixture))
	if err != nil {
		t.Fatalf("Run failed on a cancelled context: %v", err)
	}
	if len(fc.Features) != 10 {
		t.Errorf("got %d features, expected 10", len(fc.Features))
	}
}

func TestEmptyRootCompiles(t *testing.T) {
	fc, stats := run(t, `<?xml version="1.0"?><osm version="0.6"></osm>`)
	if len(fc.Features) != 0 || stats.Nodes != 0 {
		t.Errorf("got %d features, %d nodes", len(fc.Features), stats.Nodes)
	}
}

func TestMissingCoordinateNamesNode(t *testing.T) {
	_, _, err := New().Run(context.Background(), strings.NewReader(osmDoc(`<node id="17" lat="1"/>`)))
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "node 17: missing lon attribute") {
		t.Errorf("unexpected error %v", err)
	}
}

func TestOsmIDIsCanonicalInteger(t *testing.T) {
	fc, _ := run(t, osmDoc(`<node id="007" lat="0" lon="0"><tag k="a" v="b"/></node>`))

	if got := prop(fc.Features[0], "osm_id"); got != "7" {
		t.Errorf("osm_id = %q, expected 7", got)
	}
}
