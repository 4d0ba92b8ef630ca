package sanitize

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// IDWidth is the width of a canonical IRN.
const IDWidth = 6

// ErrInvalidIdentifier is returned when a raw value cannot be turned into a canonical identifier.
var ErrInvalidIdentifier = errors.New("invalid identifier")

// ID normalizes a raw identifier cell to a zero-padded IDWidth-digit string.
func ID(raw any) (string, error) {
	return IDWidthN(raw, IDWidth)
}

// IDWidthN is ID with an explicit width.
func IDWidthN(raw any, width int) (string, error) {
	digits, err := idDigits(raw)
	if err != nil {
		return "", err
	}

	if digits == "" || len(digits) > width || !allDigits(digits) {
		return "", fmt.Errorf("%w: %v", ErrInvalidIdentifier, raw)
	}

	return strings.Repeat("0", width-len(digits)) + digits, nil
}

// IsValidID reports whether s is already in canonical form: exactly IDWidth ASCII digits.
// An empty string stands for an absent identifier and is never valid.
func IsValidID(s string) bool {
	return len(s) == IDWidth && allDigits(s)
}

func idDigits(raw any) (string, error) {
	switch v := raw.(type) {
	case nil:
		return "", fmt.Errorf("%w: missing", ErrInvalidIdentifier)
	case string:
		return stripWrapper(v), nil
	case json.Number:
		return stripWrapper(v.String()), nil
	case int:
		return intDigits(int64(v))
	case int32:
		return intDigits(int64(v))
	case int64:
		return intDigits(v)
	case uint32:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case float32:
		return floatDigits(float64(v))
	case float64:
		return floatDigits(v)
	}

	return "", fmt.Errorf("%w: unsupported type %T", ErrInvalidIdentifier, raw)
}

func intDigits(v int64) (string, error) {
	if v < 0 {
		return "", fmt.Errorf("%w: %d", ErrInvalidIdentifier, v)
	}

	return strconv.FormatInt(v, 10), nil
}

func floatDigits(v float64) (string, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v != math.Trunc(v) || v > 1e15 {
		return "", fmt.Errorf("%w: %v", ErrInvalidIdentifier, v)
	}

	return strconv.FormatInt(int64(v), 10), nil
}

// stripWrapper removes spreadsheet artifacts: ="043752" formula wrappers,
// surrounding quotes, a leading text apostrophe and a trailing ".0".
func stripWrapper(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "=")
	s = strings.TrimPrefix(s, "'")
	s = strings.Trim(s, `"`)
	s = strings.TrimSpace(s)

	if i := strings.IndexByte(s, '.'); i > 0 && strings.Trim(s[i+1:], "0") == "" {
		s = s[:i]
	}

	return s
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}

	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}

	return true
}
