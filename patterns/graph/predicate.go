package graph

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/leofalp/devforge/core/state"
)

// Predicate guards a branch route. Predicates are values rather than bare
// functions so that Build can inspect them (which fields they read, which
// enum values they cover) and so that they print in logs and in `devforge graph`.
type Predicate interface {
	Match(values state.Values) bool
	String() string
}

// fieldReader is implemented by predicates that read state fields.
type fieldReader interface {
	fields() []string
}

type equalsPredicate struct {
	field string
	value any
}

// FieldEquals matches when field holds value. Numbers compare by value, so
// 2 matches a JSON-decoded 2.0.
func FieldEquals(field string, value any) Predicate {
	return equalsPredicate{field: field, value: value}
}

func (p equalsPredicate) Match(values state.Values) bool {
	v, ok := values[p.field]
	return ok && valuesEqual(v, p.value)
}

func (p equalsPredicate) String() string {
	if s, ok := p.value.(string); ok {
		return fmt.Sprintf("%s == %q", p.field, s)
	}
	return fmt.Sprintf("%s == %v", p.field, p.value)
}

func (p equalsPredicate) fields() []string { return []string{p.field} }

type truthyPredicate struct{ field string }

// FieldTruthy matches when field is present and holds a non-zero value:
// true, a non-empty string, a non-zero number or a non-empty map or list.
func FieldTruthy(field string) Predicate {
	return truthyPredicate{field: field}
}

func (p truthyPredicate) Match(values state.Values) bool {
	return truthy(values[p.field])
}

func (p truthyPredicate) String() string { return "truthy(" + p.field + ")" }

func (p truthyPredicate) fields() []string { return []string{p.field} }

type emptyPredicate struct{ field string }

// FieldEmpty matches exactly when FieldTruthy does not.
func FieldEmpty(field string) Predicate {
	return emptyPredicate{field: field}
}

func (p emptyPredicate) Match(values state.Values) bool {
	return !truthy(values[p.field])
}

func (p emptyPredicate) String() string { return "empty(" + p.field + ")" }

func (p emptyPredicate) fields() []string { return []string{p.field} }

type notPredicate struct{ inner Predicate }

// Not negates p.
func Not(p Predicate) Predicate {
	return notPredicate{inner: p}
}

func (p notPredicate) Match(values state.Values) bool { return !p.inner.Match(values) }

func (p notPredicate) String() string { return "!(" + p.inner.String() + ")" }

func (p notPredicate) fields() []string { return readFields(p.inner) }

type allPredicate struct {
	preds []Predicate
	or    bool
}

// And matches when every predicate matches. And() with no arguments matches
// everything.
func And(preds ...Predicate) Predicate {
	return allPredicate{preds: preds}
}

// Or matches when at least one predicate matches.
func Or(preds ...Predicate) Predicate {
	return allPredicate{preds: preds, or: true}
}

func (p allPredicate) Match(values state.Values) bool {
	for _, inner := range p.preds {
		if inner.Match(values) == p.or {
			return p.or
		}
	}
	return !p.or
}

func (p allPredicate) String() string {
	sep := " && "
	if p.or {
		sep = " || "
	}
	parts := make([]string, len(p.preds))
	for i, inner := range p.preds {
		parts[i] = inner.String()
	}
	return "(" + strings.Join(parts, sep) + ")"
}

func (p allPredicate) fields() []string {
	var out []string
	for _, inner := range p.preds {
		out = append(out, readFields(inner)...)
	}
	return out
}

type funcPredicate struct {
	name string
	fn   func(state.Values) bool
}

// When wraps an arbitrary function. Build cannot reason about it, so a branch
// using When is checked at run time: the run fails with ErrEdgeAmbiguity
// when several routes match, or when none does and there is no Otherwise.
func When(name string, fn func(state.Values) bool) Predicate {
	return funcPredicate{name: name, fn: fn}
}

func (p funcPredicate) Match(values state.Values) bool { return p.fn != nil && p.fn(values) }

func (p funcPredicate) String() string { return p.name }

type otherwisePredicate struct{}

// Otherwise is the route taken when no other route of the branch matches.
func Otherwise() Predicate {
	return otherwisePredicate{}
}

func (otherwisePredicate) Match(state.Values) bool { return true }

func (otherwisePredicate) String() string { return "otherwise" }

func isOtherwise(p Predicate) bool {
	_, ok := p.(otherwisePredicate)
	return ok
}

func readFields(p Predicate) []string {
	if r, ok := p.(fieldReader); ok {
		return r.fields()
	}
	return nil
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case map[string]any:
		return len(x) > 0
	case []any:
		return len(x) > 0
	}
	if f, ok := toFloat(v); ok {
		return f != 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.String:
		return rv.Len() > 0
	}
	return !rv.IsZero()
}

func valuesEqual(a, b any) bool {
	fa, aNum := toFloat(a)
	fb, bNum := toFloat(b)
	if aNum && bNum {
		return fa == fb
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
