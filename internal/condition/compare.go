package condition

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// compare applies op to a resolved value and the node's literal.
// Shape mismatches (In without a list, Between without two bounds) are false.
func compare(op domain.Operator, actual, expected any) (bool, error) {
	switch op {
	case domain.OpEquals:
		return equal(actual, expected), nil
	case domain.OpNotEquals:
		return !equal(actual, expected), nil
	case domain.OpGreaterThan:
		return order(actual, expected) > 0, nil
	case domain.OpGreaterOrEqual:
		return order(actual, expected) >= 0, nil
	case domain.OpLessThan:
		return order(actual, expected) < 0, nil
	case domain.OpLessOrEqual:
		return order(actual, expected) <= 0, nil
	case domain.OpIn:
		list, ok := asList(expected)
		if !ok {
			return false, nil
		}
		for _, item := range list {
			if equal(actual, item) {
				return true, nil
			}
		}
		return false, nil
	case domain.OpBetween:
		bounds, ok := asList(expected)
		if !ok || len(bounds) != 2 {
			return false, nil
		}
		return order(actual, bounds[0]) >= 0 && order(actual, bounds[1]) <= 0, nil
	case domain.OpContains:
		return strings.Contains(lower(actual), lower(expected)), nil
	case domain.OpStartsWith:
		return strings.HasPrefix(lower(actual), lower(expected)), nil
	case domain.OpEndsWith:
		return strings.HasSuffix(lower(actual), lower(expected)), nil
	default:
		return false, &domain.ConfigurationError{Message: fmt.Sprintf("unsupported operator %q", op)}
	}
}

// equal compares numerically when either side is a real number and both
// coerce, so 40 == 40.0 == json.Number("40"). Two strings compare as strings.
func equal(a, b any) bool {
	_, aStr := a.(string)
	_, bStr := b.(string)
	if !(aStr && bStr) {
		if da, ok := toDecimal(a); ok {
			if db, ok := toDecimal(b); ok {
				return da.Equal(db)
			}
		}
	}
	if aStr && bStr {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}

// order is a three-way comparison: numeric when both sides coerce,
// lexicographic on the string forms otherwise.
func order(a, b any) int {
	if da, ok := toDecimal(a); ok {
		if db, ok := toDecimal(b); ok {
			return da.Cmp(db)
		}
	}
	return strings.Compare(toString(a), toString(b))
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, true
	case *decimal.Decimal:
		if n == nil {
			return decimal.Zero, false
		}
		return *n, true
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(n), true
	case float32:
		return toDecimal(float64(n))
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int8:
		return decimal.NewFromInt(int64(n)), true
	case int16:
		return decimal.NewFromInt(int64(n)), true
	case int32:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	case uint:
		return decimal.NewFromUint64(uint64(n)), true
	case uint8:
		return decimal.NewFromInt(int64(n)), true
	case uint16:
		return decimal.NewFromInt(int64(n)), true
	case uint32:
		return decimal.NewFromInt(int64(n)), true
	case uint64:
		return decimal.NewFromUint64(n), true
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return decimal.Zero, false
		}
		d, err := decimal.NewFromString(s)
		return d, err == nil
	default:
		return decimal.Zero, false
	}
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	case decimal.Decimal:
		return s.String()
	case json.Number:
		return s.String()
	case float64:
		return decimal.NewFromFloat(s).String()
	case fmt.Stringer:
		return s.String()
	default:
		return fmt.Sprint(v)
	}
}

func lower(v any) string {
	return strings.ToLower(toString(v))
}

// asList accepts []any from decoded JSON and any other slice or array.
func asList(v any) ([]any, bool) {
	if list, ok := v.([]any); ok {
		return list, true
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return nil, false
	}
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
