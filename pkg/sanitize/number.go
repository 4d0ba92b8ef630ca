// Package sanitize converts raw spreadsheet cells into clean numbers and canonical identifiers.
package sanitize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// suppressionMarkers are the exact (case-insensitive) placeholders the source
// publishes instead of a value. Strings starting with "<" are handled separately.
var suppressionMarkers = map[string]bool{
	"*":   true,
	"nc":  true,
	"n/a": true,
	"-":   true,
}

// IsSuppressed reports whether a trimmed cell is a suppression or non-report marker.
func IsSuppressed(raw string) bool {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "<") {
		return true
	}

	return suppressionMarkers[strings.ToLower(s)]
}

// Number converts a raw cell to a finite number, or nil when the cell is
// absent, suppressed or unparseable. It never panics and never returns NaN or Inf.
// Negative values pass through; deciding whether they are valid is up to the caller.
func Number(raw any) *float64 {
	switch v := raw.(type) {
	case nil:
		return nil
	case string:
		return parseString(v)
	case json.Number:
		return parseString(v.String())
	case float64:
		return finite(v)
	case float32:
		return finite(float64(v))
	case int:
		return finite(float64(v))
	case int8:
		return finite(float64(v))
	case int16:
		return finite(float64(v))
	case int32:
		return finite(float64(v))
	case int64:
		return finite(float64(v))
	case uint:
		return finite(float64(v))
	case uint8:
		return finite(float64(v))
	case uint16:
		return finite(float64(v))
	case uint32:
		return finite(float64(v))
	case uint64:
		return finite(float64(v))
	case *float64:
		if v == nil {
			return nil
		}

		return finite(*v)
	}

	return nil
}

func parseString(raw string) *float64 {
	s := strings.TrimSpace(raw)
	if s == "" || IsSuppressed(s) {
		return nil
	}

	s = strings.ReplaceAll(s, ",", "")

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}

	return finite(f)
}

func finite(f float64) *float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}

	return &f
}
