package forecast

import (
	"math"
	"strconv"
	"strings"
)

// ParseAmount reads a weight as exported by the scale systems, which mix
// "1234.5", "1234,5", "1.234,5" and "1,234.5". It never fails: anything it
// cannot read, and any negative or non-finite value, is 0.
//
// The chain is: dot decimal, comma decimal, then thousands separator
// normalization where the right-most separator is the decimal one.
func ParseAmount(s string) float64 {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\u00a0', '\u202f', '\'':
			return -1
		}
		return r
	}, s)
	if s == "" {
		return 0
	}

	if v, ok := parseDotDecimal(s); ok {
		return v
	}
	if v, ok := parseCommaDecimal(s); ok {
		return v
	}
	if v, ok := parseWithThousands(s); ok {
		return v
	}
	return 0
}

func parseDotDecimal(s string) (float64, bool) {
	if strings.Count(s, ".") > 1 || strings.Contains(s, ",") {
		return 0, false
	}
	return finite(s)
}

func parseCommaDecimal(s string) (float64, bool) {
	if strings.Count(s, ",") != 1 || strings.Contains(s, ".") {
		return 0, false
	}
	return finite(strings.Replace(s, ",", ".", 1))
}

func parseWithThousands(s string) (float64, bool) {
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	var normalized string
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			// 1.234,56
			normalized = strings.ReplaceAll(s, ".", "")
			normalized = strings.Replace(normalized, ",", ".", 1)
		} else {
			// 1,234.56
			normalized = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		// 1,234,567
		normalized = strings.ReplaceAll(s, ",", "")
	case lastDot >= 0:
		// 1.234.567
		normalized = strings.ReplaceAll(s, ".", "")
	default:
		return 0, false
	}
	if strings.ContainsAny(normalized, ",") || strings.Count(normalized, ".") > 1 {
		return 0, false
	}
	return finite(normalized)
}

func finite(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	if v < 0 {
		return 0, true
	}
	return v, true
}
