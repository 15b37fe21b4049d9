package geo

import (
	"encoding/json"
	"testing"
)

func TestParseBoundingBox(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expectError bool
		expected    BoundingBox
	}{
		{
			name:     "Westfield UTC",
			input:    "32.868,-117.215,32.875,-117.208",
			expected: BoundingBox{South: 32.868, West: -117.215, North: 32.875, East: -117.208},
		},
		{
			name:     "Whitespace around values",
			input:    " 1, 2 ,3 , 4",
			expected: BoundingBox{South: 1, West: 2, North: 3, East: 4},
		},
		{
			name:        "Too few values",
			input:       "1,2,3",
			expectError: true,
		},
		{
			name:        "Not a number",
			input:       "1,2,x,4",
			expectError: true,
		},
		{
			name:        "South above north",
			input:       "10,2,5,4",
			expectError: true,
		},
		{
			name:        "Latitude out of range",
			input:       "-91,2,5,4",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseBoundingBox(tt.input)
			if tt.expectError {
				if err == nil {
					t.Fatalf("expected error for %q, got %+v", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("expected %+v, got %+v", tt.expected, got)
			}
		})
	}
}

func TestOverpassParam(t *testing.T) {
	b := NewBoundingBox(32.868, -117.215, 32.875, -117.208)

	if got, want := b.OverpassParam(), "-117.215,32.868,-117.208,32.875"; got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
	if got, want := b.String(), "32.868,-117.215,32.875,-117.208"; got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestBound(t *testing.T) {
	b := NewBoundingBox(1, 2, 3, 4)
	bound := b.Bound()

	if bound.Min[0] != 2 || bound.Min[1] != 1 || bound.Max[0] != 4 || bound.Max[1] != 3 {
		t.Errorf("unexpected bound %v", bound)
	}
}

func TestBoundingBoxJSONFieldNames(t *testing.T) {
	var b BoundingBox
	if err := json.Unmarshal([]byte(`{"south":1,"west":2,"north":3,"east":4}`), &b); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if b != NewBoundingBox(1, 2, 3, 4) {
		t.Errorf("unexpected bbox %+v", b)
	}
}
