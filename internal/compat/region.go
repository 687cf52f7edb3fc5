package compat

import "strings"

// cityRegions assigns major cities to one of three macro-regions. Location
// strings are free text, so lookup is by substring against lowercased keys.
var cityRegions = map[string]string{
	// west
	"seattle":       "west",
	"portland":      "west",
	"san francisco": "west",
	"los angeles":   "west",
	"san diego":     "west",
	"las vegas":     "west",
	"denver":        "west",
	"phoenix":       "west",
	// central
	"chicago":     "central",
	"minneapolis": "central",
	"st louis":    "central",
	"kansas city": "central",
	"dallas":      "central",
	"houston":     "central",
	"austin":      "central",
	"nashville":   "central",
	// east
	"new york":     "east",
	"boston":       "east",
	"philadelphia": "east",
	"washington":   "east",
	"atlanta":      "east",
	"miami":        "east",
	"charlotte":    "east",
	"pittsburgh":   "east",
}

// regionOf returns the macro-region of a free-text location, or "" if no
// known city name appears in it.
func regionOf(location string) string {
	loc := strings.ToLower(location)
	for city, region := range cityRegions {
		if strings.Contains(loc, city) {
			return region
		}
	}
	return ""
}

// locationScore compares two free-text locations: exact match (after
// trimming and lowercasing) scores 1.0, same macro-region 0.7, anything
// else 0.4.
func locationScore(loc1, loc2 string) float64 {
	a := strings.ToLower(strings.TrimSpace(loc1))
	b := strings.ToLower(strings.TrimSpace(loc2))
	if a != "" && a == b {
		return 1.0
	}

	r1, r2 := regionOf(a), regionOf(b)
	if r1 != "" && r1 == r2 {
		return 0.7
	}
	return 0.4
}
