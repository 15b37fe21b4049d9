// Package coords parses bounding boxes given either in decimal degrees or as
// a pair of MGRS grid references.
package coords

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/akhenakh/mgrs"

	"github.com/NERVsystems/stdownloader/pkg/geo"
)

// Grid Zone (1-60) + Latitude Band (C-X, excluding I and O) +
// 100km Square ID (2 letters) + Numeric Location (2-10 digits)
var mgrsRegex = regexp.MustCompile(`(?i)^(\d{1,2})([C-HJ-NP-X])([A-HJ-NP-Z]{2})(\d{2,10})$`)

// IsMGRS reports whether input looks like an MGRS grid reference
func IsMGRS(input string) bool {
	input = strings.TrimSpace(input)
	if !mgrsRegex.MatchString(input) {
		return false
	}
	digits := mgrsRegex.FindStringSubmatch(input)[4]
	return len(digits)%2 == 0
}

// ParseMGRS converts an MGRS grid reference to the latitude and longitude of
// the south-west corner of its grid square.
//
// Examples:
//   - 11SMS8300037000 (10-digit: 1m precision)
//   - 11SMS830370 (6-digit: 100m precision)
func ParseMGRS(input string) (lat, lon float64, err error) {
	input = strings.TrimSpace(strings.ToUpper(input))

	if !IsMGRS(input) {
		return 0, 0, fmt.Errorf("invalid MGRS format: %q", input)
	}

	lat, lon, err = mgrs.MGRSToLatLng(input)
	if err != nil {
		return 0, 0, fmt.Errorf("MGRS conversion failed: %w", err)
	}

	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return 0, 0, fmt.Errorf("MGRS conversion produced invalid coordinates: lat=%f, lon=%f", lat, lon)
	}
	return lat, lon, nil
}

// ToMGRS converts a lat/lon to MGRS string with specified precision.
// Precision is 1-5 representing: 10km, 1km, 100m, 10m, 1m
func ToMGRS(lat, lon float64, precision int) (string, error) {
	if precision < 1 || precision > 5 {
		precision = 5
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return "", fmt.Errorf("coordinates out of range: lat=%f, lon=%f", lat, lon)
	}

	result, err := mgrs.LatLngToMGRS(lat, lon, precision)
	if err != nil {
		return "", fmt.Errorf("MGRS conversion failed: %w", err)
	}
	return result, nil
}

// ParseBoundingBox accepts "south,west,north,east" in decimal degrees or
// "SW,NE" as two MGRS grid references.
func ParseBoundingBox(s string) (geo.BoundingBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return geo.ParseBoundingBox(s)
	}

	south, west, err := ParseMGRS(parts[0])
	if err != nil {
		return geo.BoundingBox{}, fmt.Errorf("south-west corner: %w", err)
	}
	north, east, err := ParseMGRS(parts[1])
	if err != nil {
		return geo.BoundingBox{}, fmt.Errorf("north-east corner: %w", err)
	}

	b := geo.NewBoundingBox(south, west, north, east)
	if err := b.Validate(); err != nil {
		return geo.BoundingBox{}, err
	}
	return b, nil
}
