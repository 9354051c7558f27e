package state

import (
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"reflect"
	"slices"
)

// Values is a set of field values: a partial update or a full snapshot.
type Values map[string]any

// Clone returns a deep copy of v.
func (v Values) Clone() Values {
	if v == nil {
		return nil
	}
	out := make(Values, len(v))
	for k, val := range v {
		out[k] = deepCopy(val)
	}
	return out
}

// Keys returns the field names of v, sorted.
func (v Values) Keys() []string {
	return sortedKeys(v)
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}

// conformUpdate normalizes an update value for f. Append fields accept a
// single item as well as a list of items.
func conformUpdate(f Field, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if f.Policy == Append && !isList(v) {
		v = []any{v}
	}
	cv, err := conform(f.Type, v)
	if err != nil {
		return nil, err
	}
	if err := checkEnum(f, cv); err != nil {
		return nil, err
	}
	return cv, nil
}

// conform coerces v to the canonical Go representation of t. Values decoded
// from JSON (float64 numbers, []any, map[string]any) conform to every type
// they can losslessly represent.
func conform(t FieldType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case Any:
		return normalize(v), nil
	case String:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case Bool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case Int:
		if i, ok := toInt(v); ok {
			return i, nil
		}
	case Float:
		if f, ok := toFloat(v); ok {
			return f, nil
		}
	case Map:
		if m, ok := normalize(v).(map[string]any); ok {
			return m, nil
		}
	case List:
		if l, ok := normalize(v).([]any); ok {
			return l, nil
		}
	}
	return nil, fmt.Errorf("%w: want %s, got %T", ErrTypeMismatch, t, v)
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint:
		return int(n), true
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int(n), true
	case float32:
		return toInt(float64(n))
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || math.IsNaN(n) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	if i, ok := toInt(v); ok {
		return float64(i), true
	}
	return 0, false
}

func isList(v any) bool {
	switch v.(type) {
	case []any:
		return true
	case []byte:
		return false
	}
	k := reflect.ValueOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array
}

// normalize converts typed maps with string keys and typed slices into
// map[string]any and []any, recursively, producing a value owned by the caller.
func normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = normalize(val)
		}
		return out
	case string, bool, int, int64, float64, []byte:
		return x
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = normalize(iter.Value().Interface())
		}
		return out
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range rv.Len() {
			out[i] = normalize(rv.Index(i).Interface())
		}
		return out
	}
	return v
}

// deepCopy copies the containers produced by normalize. Scalars are shared.
func deepCopy(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = deepCopy(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = deepCopy(val)
		}
		return out
	case Values:
		return map[string]any(x.Clone())
	}
	return v
}
