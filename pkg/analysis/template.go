package analysis

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Placeholder names understood by rule templates
const (
	PlaceholderResourceID      = "resource_id"
	PlaceholderThreshold       = "threshold"
	PlaceholderDurationMinutes = "duration_minutes"
)

var placeholderPattern = regexp.MustCompile(`\{(\w+)(?::([^{}]*))?\}`)

var precisionSpecPattern = regexp.MustCompile(`^\.(\d+)f$`)

// RenderTemplate substitutes {name} and {name:.Nf} placeholders with values.
// Unknown placeholders are left verbatim.
func RenderTemplate(template string, values map[string]interface{}) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		parts := placeholderPattern.FindStringSubmatch(match)
		value, ok := values[parts[1]]
		if !ok {
			return match
		}
		return formatValue(value, parts[2])
	})
}

func formatValue(value interface{}, format string) string {
	switch v := value.(type) {
	case float64:
		if m := precisionSpecPattern.FindStringSubmatch(format); m != nil {
			precision, _ := strconv.Atoi(m[1])
			return strconv.FormatFloat(v, 'f', precision, 64)
		}
		return FormatFloat(v)
	case int:
		return strconv.Itoa(v)
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// FormatFloat renders a float with at least one decimal and without
// binary rounding noise, so 0.1*100 renders as "10.0".
func FormatFloat(v float64) string {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	rounded := math.Round(v*1e9) / 1e9
	s := strconv.FormatFloat(rounded, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
