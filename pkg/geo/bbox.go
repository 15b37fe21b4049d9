// Package geo provides the geographic primitives shared by the fetchers and the
// feature index.
package geo

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// BoundingBox is a query extent in decimal degrees (WGS84).
type BoundingBox struct {
	South float64 `json:"south"`
	West  float64 `json:"west"`
	North float64 `json:"north"`
	East  float64 `json:"east"`
}

// NewBoundingBox creates a bounding box from its four edges, in the
// south, west, north, east order used throughout the CLI and tools.
func NewBoundingBox(south, west, north, east float64) BoundingBox {
	return BoundingBox{South: south, West: west, North: north, East: east}
}

// ParseBoundingBox parses "south,west,north,east".
func ParseBoundingBox(s string) (BoundingBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return BoundingBox{}, fmt.Errorf("bounding box must have 4 comma-separated values (south,west,north,east), got %d", len(parts))
	}

	var vals [4]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return BoundingBox{}, fmt.Errorf("invalid bounding box value %q: %w", p, err)
		}
		vals[i] = v
	}

	b := NewBoundingBox(vals[0], vals[1], vals[2], vals[3])
	if err := b.Validate(); err != nil {
		return BoundingBox{}, err
	}
	return b, nil
}

// Validate checks coordinate ranges and edge ordering.
// Boxes crossing the antimeridian (west > east) are rejected.
func (b BoundingBox) Validate() error {
	if b.South < -90 || b.South > 90 || b.North < -90 || b.North > 90 {
		return fmt.Errorf("latitude must be between -90 and 90 (south=%f, north=%f)", b.South, b.North)
	}
	if b.West < -180 || b.West > 180 || b.East < -180 || b.East > 180 {
		return fmt.Errorf("longitude must be between -180 and 180 (west=%f, east=%f)", b.West, b.East)
	}
	if b.South >= b.North {
		return fmt.Errorf("south (%f) must be less than north (%f)", b.South, b.North)
	}
	if b.West >= b.East {
		return fmt.Errorf("west (%f) must be less than east (%f)", b.West, b.East)
	}
	return nil
}

// OverpassParam formats the box as the Overpass "bbox" parameter:
// west,south,east,north with the shortest exact decimal form of each edge.
func (b BoundingBox) OverpassParam() string {
	return strings.Join([]string{
		formatDegrees(b.West),
		formatDegrees(b.South),
		formatDegrees(b.East),
		formatDegrees(b.North),
	}, ",")
}

// Bound converts the box to an orb.Bound (x = longitude, y = latitude).
func (b BoundingBox) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.West, b.South},
		Max: orb.Point{b.East, b.North},
	}
}

// String implements fmt.Stringer in south,west,north,east order.
func (b BoundingBox) String() string {
	return strings.Join([]string{
		formatDegrees(b.South),
		formatDegrees(b.West),
		formatDegrees(b.North),
		formatDegrees(b.East),
	}, ",")
}

func formatDegrees(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
