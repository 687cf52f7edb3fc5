package compat

import "strings"

// zodiacOrder maps the twelve sign names to their position on the wheel.
var zodiacOrder = map[string]int{
	"aries":       0,
	"taurus":      1,
	"gemini":      2,
	"cancer":      3,
	"leo":         4,
	"virgo":       5,
	"libra":       6,
	"scorpio":     7,
	"sagittarius": 8,
	"capricorn":   9,
	"aquarius":    10,
	"pisces":      11,
}

// zodiacScore returns the static compatibility for two signs: 1.0 for a
// compatible pair (same sign or same-element trine), 0.3 for a conflict
// pair (square or opposition), 0.6 otherwise, and 0.5 when either sign is
// unknown.
func zodiacScore(sign1, sign2 string) float64 {
	i, ok1 := zodiacOrder[strings.ToLower(strings.TrimSpace(sign1))]
	j, ok2 := zodiacOrder[strings.ToLower(strings.TrimSpace(sign2))]
	if !ok1 || !ok2 {
		return 0.5
	}

	diff := (i - j + 12) % 12
	switch diff {
	case 0, 4, 8: // same element
		return 1.0
	case 3, 6, 9: // square or opposition
		return 0.3
	default:
		return 0.6
	}
}
