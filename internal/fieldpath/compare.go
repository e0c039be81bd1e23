package fieldpath

import (
	"cmp"
	"reflect"
	"strings"
	"time"
)

// timeLayouts are the string forms accepted where a time is expected. Layouts
// without a zone are read as UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	time.DateOnly,
}

// ParseTime reads s as an instant in one of the forms a condition may use
// for a time, from a bare date up to RFC 3339 with nanoseconds.
func ParseTime(s string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Compare orders a against b. Numbers compare across integer and float kinds,
// strings compare bytewise, false sorts before true and times compare
// chronologically. A string compared with a time is read with ParseTime.
// nil sorts before every other value. ok is false when the two values are not
// mutually ordered.
func Compare(a, b any) (int, bool) {
	switch {
	case a == nil && b == nil:
		return 0, true
	case a == nil:
		return -1, true
	case b == nil:
		return 1, true
	}

	ta, aTime := asTime(a)
	tb, bTime := asTime(b)
	if aTime || bTime {
		if !aTime {
			if ta, aTime = timeFromString(a); !aTime {
				return 0, false
			}
		}
		if !bTime {
			if tb, bTime = timeFromString(b); !bTime {
				return 0, false
			}
		}
		return ta.Compare(tb), true
	}

	av, bv := reflect.ValueOf(a), reflect.ValueOf(b)
	switch {
	case isNumber(av) && isNumber(bv):
		return compareNumbers(av, bv), true
	case av.Kind() == reflect.String && bv.Kind() == reflect.String:
		return strings.Compare(av.String(), bv.String()), true
	case av.Kind() == reflect.Bool && bv.Kind() == reflect.Bool:
		return compareBools(av.Bool(), bv.Bool()), true
	default:
		return 0, false
	}
}

// Storage ranks used by Order for values Compare cannot order. They follow
// SQLite's ordering of the JSON values json_extract returns, where booleans
// are integers and times are text.
const (
	rankNil = iota
	rankNumber
	rankText
	rankOther
)

// Order is a total ordering for sorting. Values Compare can order keep that
// order. Otherwise nil sorts first, then numbers and booleans (as 0 and 1),
// then strings and times, then everything else, which ties.
func Order(a, b any) int {
	if c, ok := Compare(a, b); ok {
		return c
	}
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}
	switch ra {
	case rankNumber:
		return cmp.Compare(numberOrBool(a), numberOrBool(b))
	case rankText:
		return strings.Compare(text(a), text(b))
	default:
		return 0
	}
}

func rank(v any) int {
	if v == nil {
		return rankNil
	}
	if _, ok := asTime(v); ok {
		return rankText
	}
	rv := reflect.ValueOf(v)
	switch {
	case isNumber(rv), rv.Kind() == reflect.Bool:
		return rankNumber
	case rv.Kind() == reflect.String:
		return rankText
	default:
		return rankOther
	}
}

func numberOrBool(v any) float64 {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Bool {
		if rv.Bool() {
			return 1
		}
		return 0
	}
	return toFloat(rv)
}

func text(v any) string {
	if t, ok := asTime(v); ok {
		return t.UTC().Format(time.RFC3339Nano)
	}
	s, _ := AsString(v)
	return s
}

// Equal reports whether a and b hold the same value. Values that Compare can
// order are equal when they compare as 0; anything else falls back to
// reflect.DeepEqual.
func Equal(a, b any) bool {
	if c, ok := Compare(a, b); ok {
		return c == 0
	}
	return reflect.DeepEqual(a, b)
}

func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, true
	default:
		return time.Time{}, false
	}
}

func timeFromString(v any) (time.Time, bool) {
	s, ok := AsString(v)
	if !ok {
		return time.Time{}, false
	}
	return ParseTime(s)
}

// AsString returns the string held by v, including named string types.
func AsString(v any) (string, bool) {
	if v == nil {
		return "", false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.String {
		return "", false
	}
	return rv.String(), true
}

func isNumber(v reflect.Value) bool {
	return isSigned(v) || isUnsigned(v) || isFloat(v)
}

func isSigned(v reflect.Value) bool {
	switch v.Kind() { //nolint:exhaustive // numeric kinds only
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	default:
		return false
	}
}

func isUnsigned(v reflect.Value) bool {
	switch v.Kind() { //nolint:exhaustive // numeric kinds only
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return true
	default:
		return false
	}
}

func isFloat(v reflect.Value) bool {
	return v.Kind() == reflect.Float32 || v.Kind() == reflect.Float64
}

func compareNumbers(a, b reflect.Value) int {
	switch {
	case isSigned(a) && isSigned(b):
		return cmp.Compare(a.Int(), b.Int())
	case isUnsigned(a) && isUnsigned(b):
		return cmp.Compare(a.Uint(), b.Uint())
	default:
		return cmp.Compare(toFloat(a), toFloat(b))
	}
}

func toFloat(v reflect.Value) float64 {
	switch {
	case isSigned(v):
		return float64(v.Int())
	case isUnsigned(v):
		return float64(v.Uint())
	default:
		return v.Float()
	}
}

func compareBools(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	default:
		return 1
	}
}
