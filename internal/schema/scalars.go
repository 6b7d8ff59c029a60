package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// ParseFunc coerces an input value into the storage representation of a scalar.
type ParseFunc func(v any) (any, error)

// Scalars holds the parsers of all attribute scalar types.
var Scalars = map[string]ParseFunc{
	"String":   parseString,
	"Int":      parseInt,
	"Float":    parseFloat,
	"Boolean":  parseBoolean,
	"ID":       parseID,
	"UUID":     parseUUID,
	"DateTime": parseDateTime,
	"JSON":     parseJSON,
}

func parseString(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("expected string, got %T", v)
	}
	return s, nil
}

// ToInt64 converts any integral number representation.
func ToInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n != math.Trunc(n) || n >= math.MaxInt64 || n < math.MinInt64 {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}

// ToFloat64 converts any number representation.
func ToFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func parseInt(v any) (any, error) {
	i, ok := ToInt64(v)
	if !ok || i > math.MaxInt32 || i < math.MinInt32 {
		return nil, fmt.Errorf("expected 32-bit integer, got %v", v)
	}
	return i, nil
}

func parseFloat(v any) (any, error) {
	f, ok := ToFloat64(v)
	if !ok {
		return nil, fmt.Errorf("expected number, got %T", v)
	}
	return f, nil
}

func parseBoolean(v any) (any, error) {
	b, ok := v.(bool)
	if !ok {
		return nil, fmt.Errorf("expected boolean, got %T", v)
	}
	return b, nil
}

func parseID(v any) (any, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	if i, ok := ToInt64(v); ok {
		return strconv.FormatInt(i, 10), nil
	}
	return nil, fmt.Errorf("expected string or integer id, got %T", v)
}

func parseUUID(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("expected UUID string, got %T", v)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("invalid UUID %q: %w", s, err)
	}
	return u.String(), nil
}

func parseDateTime(v any) (any, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano), nil
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return nil, fmt.Errorf("invalid DateTime %q: expected RFC 3339", t)
		}
		return parsed.UTC().Format(time.RFC3339Nano), nil
	default:
		return nil, fmt.Errorf("expected DateTime string, got %T", v)
	}
}

func parseJSON(v any) (any, error) {
	return v, nil
}
