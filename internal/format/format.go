// Package format converts loosely typed record values into display text.
package format

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// dateLayouts are tried in order when reading dates coming from the backend or a CSV file.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC1123,
	time.RFC1123Z,
	"1/2/2006",
	"01/02/2006",
}

// ToString renders any record value as plain text. Nil is the empty string.
func ToString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return fmt.Sprint(val)
	}
}

// IsEmpty is true for nil and for strings that are blank after trimming.
func IsEmpty(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

// ParseNumber reads numeric values and numeric strings. Strings must parse in full.
func ParseNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// ParseDate accepts ISO dates and timestamps, HTTP dates and US-style m/d/yyyy.
func ParseDate(v any) (time.Time, bool) {
	if t, ok := v.(time.Time); ok {
		return t, true
	}
	s := strings.TrimSpace(ToString(v))
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Date renders a date as m/d/yyyy. Unparseable values are returned as-is.
func Date(v any) string {
	t, ok := ParseDate(v)
	if !ok {
		return ToString(v)
	}
	return t.Format("1/2/2006")
}

// Currency renders an amount as $1,234.5 (at most three decimals). Non-numeric
// values are returned as-is.
func Currency(v any) string {
	n, ok := ParseNumber(v)
	if !ok {
		return ToString(v)
	}
	n = math.Round(n*1000) / 1000
	if n < 0 {
		return "-$" + humanize.Commaf(-n)
	}
	return "$" + humanize.Commaf(n)
}

// Equal compares two identifier values by their text form, so 3 matches "3".
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return ToString(a) == ToString(b)
}
