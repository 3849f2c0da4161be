package exporter

import (
	"math"
	"strconv"
)

// formatValue formats a float64 value for CSV output using the shortest
// representation that parses back to the same value. NaN becomes an
// empty cell so downstream loaders treat it as missing.
func formatValue(f float64) string {
	if math.IsNaN(f) {
		return ""
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// cellValue converts a float64 for an Excel cell. NaN and infinities
// are not representable as numeric cells, so they degrade to strings.
func cellValue(f float64) interface{} {
	if math.IsNaN(f) {
		return ""
	}
	if math.IsInf(f, 0) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return f
}
