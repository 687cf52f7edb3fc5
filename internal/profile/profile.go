// Package profile defines the immutable scoring profile passed between the
// compatibility scorer, the deck builder, and the matchmaking queue, plus
// its PostgreSQL-backed store.
package profile

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrNotFound is returned when no profile exists for a user id.
var ErrNotFound = errors.New("profile: not found")

// Profile is an immutable snapshot of the fields compatibility scoring
// reads. It is validated once at the boundary and never mutated by the
// scoring layers.
type Profile struct {
	UserID     string   `json:"user_id"`
	Gender     string   `json:"gender"`      // "male" | "female" | "" (undeclared)
	LookingFor string   `json:"looking_for"` // declared preference, "" if none
	Age        int      `json:"age"`         // derived from birthdate, 0 if unknown
	Career     string   `json:"career"`      // free text
	Hobbies    []string `json:"hobbies"`     // short phrases
	Location   string   `json:"location"`    // free text
	Zodiac     string   `json:"zodiac"`      // sign name, "" if unknown
	Latitude   float64  `json:"latitude"`    // 0 = unknown
	Longitude  float64  `json:"longitude"`   // 0 = unknown
}

// Validate checks the invariants the scoring layers rely on.
func (p *Profile) Validate() error {
	if strings.TrimSpace(p.UserID) == "" {
		return fmt.Errorf("profile: missing user id")
	}
	if p.Age < 0 || p.Age > 150 {
		return fmt.Errorf("profile: implausible age %d", p.Age)
	}
	if p.Latitude < -90 || p.Latitude > 90 {
		return fmt.Errorf("profile: latitude out of range: %f", p.Latitude)
	}
	if p.Longitude < -180 || p.Longitude > 180 {
		return fmt.Errorf("profile: longitude out of range: %f", p.Longitude)
	}
	return nil
}

// HasCoordinates reports whether the profile carries a usable geographic
// point. Zero coordinates are treated as unknown.
func (p *Profile) HasCoordinates() bool {
	return p.Latitude != 0 || p.Longitude != 0
}

// Haversine returns the great-circle distance in kilometers between two
// coordinate pairs.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusKm = 6371
	dLat := (lat2 - lat1) * (math.Pi / 180)
	dLon := (lon2 - lon1) * (math.Pi / 180)
	lat1 = lat1 * (math.Pi / 180)
	lat2 = lat2 * (math.Pi / 180)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Sin(dLon/2)*math.Sin(dLon/2)*math.Cos(lat1)*math.Cos(lat2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}
