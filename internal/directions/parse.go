package directions

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ParseError reports a distance or duration string the provider adapter could
// not understand. Malformed input is rejected outright rather than defaulting
// to zero, since a zero distance silently underquotes every fare built on it.
type ParseError struct {
	Input string
	Kind  string // "distance" or "duration"
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot parse %s from %q", e.Kind, e.Input)
}

var (
	distanceRe = regexp.MustCompile(`^([0-9]+(?:[.,][0-9]+)?)\s*(km|m)$`)
	durationRe = regexp.MustCompile(`^(?:([0-9]+)\s*(?:hours?|hrs?)\s*)?([0-9]+(?:\.[0-9]+)?)\s*(?:minutes?|mins?)$`)
)

// ParseDistanceKm normalizes human-readable distance strings like "5.2 km" or
// "870 m" to kilometers.
func ParseDistanceKm(s string) (float64, error) {
	m := distanceRe.FindStringSubmatch(strings.TrimSpace(strings.ToLower(s)))
	if m == nil {
		return 0, &ParseError{Input: s, Kind: "distance"}
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
	if err != nil {
		return 0, &ParseError{Input: s, Kind: "distance"}
	}
	if m[2] == "m" {
		v /= 1000
	}
	return v, nil
}

// ParseDurationMin normalizes strings like "15 mins" or "1 hour 5 mins" to
// minutes.
func ParseDurationMin(s string) (float64, error) {
	m := durationRe.FindStringSubmatch(strings.TrimSpace(strings.ToLower(s)))
	if m == nil {
		return 0, &ParseError{Input: s, Kind: "duration"}
	}
	var hours float64
	if m[1] != "" {
		h, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, &ParseError{Input: s, Kind: "duration"}
		}
		hours = h
	}
	mins, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return 0, &ParseError{Input: s, Kind: "duration"}
	}
	return hours*60 + mins, nil
}
