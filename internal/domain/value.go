package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Accepted layouts for date and timestamp parsing, tried in order.
var (
	dateLayouts = []string{"2006-01-02", "2006/01/02", "01/02/2006"}
	tsLayouts   = []string{
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02",
	}
)

// CastValue parses a raw string value into the Go representation of the
// declared type. It returns (nil, false) when the value cannot be parsed;
// per the silver null policy a failed cast becomes NULL, never an error.
// Empty strings are NULL for every type.
func CastValue(raw string, t FieldType) (any, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, true
	}
	switch t {
	case TypeString:
		return raw, true
	case TypeInt:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, false
		}
		return n, true
	case TypeDouble:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, false
		}
		return f, true
	case TypeBool:
		switch strings.ToLower(raw) {
		case "true", "1", "yes":
			return true, true
		case "false", "0", "no":
			return false, true
		}
		return nil, false
	case TypeDate:
		for _, layout := range dateLayouts {
			if ts, err := time.Parse(layout, raw); err == nil {
				return ts, true
			}
		}
		return nil, false
	case TypeTimestamp:
		for _, layout := range tsLayouts {
			if ts, err := time.Parse(layout, raw); err == nil {
				return ts, true
			}
		}
		return nil, false
	}
	return nil, false
}

// FormatValue renders a cell value as its canonical string form. NULL renders
// as the empty string. The encoding is stable so that identical batches
// serialize byte-for-byte identically.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format("2006-01-02")
		}
		return x.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", x)
	}
}

// CompareValues orders two cell values of the same type. NULL sorts before
// any non-NULL value. Returns -1, 0, or 1.
func CompareValues(a, b any) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}
	switch x := a.(type) {
	case string:
		y, _ := b.(string)
		return strings.Compare(x, y)
	case int64:
		y, _ := b.(int64)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case float64:
		y, _ := b.(float64)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case bool:
		y, _ := b.(bool)
		switch {
		case !x && y:
			return -1
		case x && !y:
			return 1
		}
		return 0
	case time.Time:
		y, _ := b.(time.Time)
		switch {
		case x.Before(y):
			return -1
		case x.After(y):
			return 1
		}
		return 0
	}
	return strings.Compare(FormatValue(a), FormatValue(b))
}

// Round2 rounds a monetary amount to two decimal places.
func Round2(f float64) float64 {
	return math.Round(f*100) / 100
}
