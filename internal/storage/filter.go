package storage

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// Op is a filter comparison operator.
type Op string

// OpEq matches payload fields equal to the condition value.
const OpEq Op = "eq"

// Condition compares one payload field. Value is a string, int64 or bool.
type Condition struct {
	Field string
	Op    Op
	Value any
}

// Filter is a conjunction of conditions. A nil or empty filter matches everything.
type Filter struct {
	Must []Condition
}

// Eq builds an equality condition.
func Eq(field string, value any) Condition {
	return Condition{Field: field, Op: OpEq, Value: value}
}

// Empty reports whether the filter has no conditions.
func (f *Filter) Empty() bool {
	return f == nil || len(f.Must) == 0
}

// ParseFilter converts a decoded JSON object of field/value pairs into a Filter.
// Returns nil for an empty object. Nested objects, arrays and non-integral
// numbers are rejected with ErrInvalidFilter.
func ParseFilter(raw map[string]any) (*Filter, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	fields := make([]string, 0, len(raw))
	for k := range raw {
		fields = append(fields, k)
	}
	sort.Strings(fields)

	f := &Filter{Must: make([]Condition, 0, len(fields))}
	for _, field := range fields {
		if field == "" {
			return nil, fmt.Errorf("%w: empty field name", ErrInvalidFilter)
		}
		v, err := normalizeValue(raw[field])
		if err != nil {
			return nil, fmt.Errorf("%w: field %q: %v", ErrInvalidFilter, field, err)
		}
		f.Must = append(f.Must, Eq(field, v))
	}
	return f, nil
}

// Validate checks every condition has a field, a known operator and a scalar value.
func (f *Filter) Validate() error {
	if f == nil {
		return nil
	}
	for i, c := range f.Must {
		if c.Field == "" {
			return fmt.Errorf("%w: condition %d has no field", ErrInvalidFilter, i)
		}
		if c.Op != OpEq {
			return fmt.Errorf("%w: unsupported operator %q", ErrInvalidFilter, c.Op)
		}
		if _, err := normalizeValue(c.Value); err != nil {
			return fmt.Errorf("%w: field %q: %v", ErrInvalidFilter, c.Field, err)
		}
	}
	return nil
}

// Matches reports whether fields satisfy every condition.
func (f *Filter) Matches(fields map[string]any) bool {
	if f.Empty() {
		return true
	}
	for _, c := range f.Must {
		want, err := normalizeValue(c.Value)
		if err != nil {
			return false
		}
		got, ok := fields[c.Field]
		if !ok {
			return false
		}
		if got != want {
			return false
		}
	}
	return true
}

func normalizeValue(v any) (any, error) {
	switch x := v.(type) {
	case string, bool, int64:
		return x, nil
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) {
			return nil, fmt.Errorf("number %v is not an integer", x)
		}
		return int64(x), nil
	case json.Number:
		n, err := x.Int64()
		if err != nil {
			return nil, fmt.Errorf("number %s is not an integer", x)
		}
		return n, nil
	case nil:
		return nil, fmt.Errorf("null value")
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}
