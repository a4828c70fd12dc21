package exporter

import (
	"math"
	"strconv"
	"strings"
)

// formatFloat renders f the way spreadsheet tools read it back: NaN as an
// empty cell, infinities as inf/-inf, integral values with a trailing ".0",
// and exponent notation only outside [1e-4, 1e16).
func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return ""
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}

	abs := math.Abs(f)
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(f, 'e', -1, 64)
	}

	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// formatInt formats an integer value for CSV output
func formatInt(i int) string {
	return strconv.Itoa(i)
}

// count is the cell for a sample size; zero means "not counted" and is empty
func count(n int) interface{} {
	if n <= 0 {
		return nil
	}
	return n
}

// cellValue converts f for a spreadsheet cell; NaN becomes an empty cell
// and infinities become text since xlsx has no representation for them.
func cellValue(f float64) interface{} {
	switch {
	case math.IsNaN(f):
		return nil
	case math.IsInf(f, 0):
		return formatFloat(f)
	}
	return f
}
