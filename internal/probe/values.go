package probe

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var errNoToString = errors.New("value has no toString")

// Stringify converts a captured value the way toString() would in the page.
// null and undefined have no toString and fail.
func Stringify(v any) (string, error) {
	switch x := v.(type) {
	case nil, undefined:
		return "", errNoToString
	case string:
		return x, nil
	case bool:
		return strconv.FormatBool(x), nil
	case float64:
		return jsNumber(x), nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case []string:
		return strings.Join(x, ","), nil
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			if e == nil || e == Undefined {
				continue
			}
			s, err := Stringify(e)
			if err != nil {
				return "", err
			}
			parts[i] = s
		}
		return strings.Join(parts, ","), nil
	case map[string]any:
		return "[object Object]", nil
	case fmt.Stringer:
		return x.String(), nil
	}
	return "", fmt.Errorf("cannot stringify %T", v)
}

func jsNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}
	abs := math.Abs(f)
	if abs >= 1e21 || abs < 1e-6 {
		s := strconv.FormatFloat(f, 'e', -1, 64)
		// Go pads the exponent to two digits.
		s = strings.Replace(s, "e+0", "e+", 1)
		return strings.Replace(s, "e-0", "e-", 1)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Truthy applies the page's boolean coercion to a captured value.
func Truthy(v any) bool {
	switch x := v.(type) {
	case nil, undefined:
		return false
	case bool:
		return x
	case float64:
		return x != 0 && !math.IsNaN(x)
	case int:
		return x != 0
	case string:
		return x != ""
	}
	return true
}
