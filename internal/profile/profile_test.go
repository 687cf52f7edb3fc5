package profile

import (
	"math"
	"testing"
)

func TestValidate(t *testing.T) {
	valid := Profile{UserID: "u1", Age: 30, Latitude: 40.7, Longitude: -74.0}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid profile rejected: %v", err)
	}

	cases := []struct {
		name string
		p    Profile
	}{
		{"missing user id", Profile{Age: 30}},
		{"blank user id", Profile{UserID: "   "}},
		{"negative age", Profile{UserID: "u1", Age: -1}},
		{"implausible age", Profile{UserID: "u1", Age: 151}},
		{"latitude out of range", Profile{UserID: "u1", Latitude: 91}},
		{"longitude out of range", Profile{UserID: "u1", Longitude: -181}},
	}
	for _, tc := range cases {
		if err := tc.p.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestHasCoordinates(t *testing.T) {
	p := Profile{UserID: "u1"}
	if p.HasCoordinates() {
		t.Error("zero coordinates should read as unknown")
	}
	p.Latitude = 35.68
	if !p.HasCoordinates() {
		t.Error("nonzero latitude should count as coordinates")
	}
}

func TestHaversine(t *testing.T) {
	// A point is zero distance from itself.
	if d := Haversine(40.7, -74.0, 40.7, -74.0); d != 0 {
		t.Errorf("self distance should be 0, got %f", d)
	}

	// New York to Los Angeles is roughly 3940 km.
	d := Haversine(40.7128, -74.0060, 34.0522, -118.2437)
	if math.Abs(d-3940) > 50 {
		t.Errorf("NY-LA distance out of expected range: %f", d)
	}

	// Symmetric.
	if d2 := Haversine(34.0522, -118.2437, 40.7128, -74.0060); math.Abs(d-d2) > 1e-9 {
		t.Errorf("distance should be symmetric: %f vs %f", d, d2)
	}
}
