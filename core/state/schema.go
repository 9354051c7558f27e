package state

import (
	"errors"
	"fmt"
	"slices"
)

var (
	ErrInvalidSchema = errors.New("invalid state schema")
	ErrUnknownField  = errors.New("unknown state field")
	ErrTypeMismatch  = errors.New("state field type mismatch")
	ErrEnumValue     = errors.New("value not allowed by field enum")
)

// Policy is the rule used to combine an update with the current value.
type Policy int

const (
	Overwrite Policy = iota
	ShallowMerge
	Append
)

func (p Policy) String() string {
	switch p {
	case Overwrite:
		return "overwrite"
	case ShallowMerge:
		return "shallow_merge"
	case Append:
		return "append"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// FieldType is the declared type of a field value.
type FieldType int

const (
	Any FieldType = iota
	String
	Bool
	Int
	Float
	Map
	List
)

func (t FieldType) String() string {
	switch t {
	case Any:
		return "any"
	case String:
		return "string"
	case Bool:
		return "bool"
	case Int:
		return "int"
	case Float:
		return "float"
	case Map:
		return "map"
	case List:
		return "list"
	default:
		return fmt.Sprintf("type(%d)", int(t))
	}
}

func (t FieldType) scalar() bool {
	return t == String || t == Bool || t == Int || t == Float
}

// Field declares one named slot of the state.
type Field struct {
	Name   string
	Type   FieldType
	Policy Policy
	// Enum restricts a scalar field to a closed set of values. Branch
	// validation uses it to prove exhaustiveness.
	Enum        []any
	Default     any
	Description string
}

// Schema is the fixed set of fields a run may hold. It is immutable once built.
type Schema struct {
	fields []Field
	index  map[string]int
}

// NewSchema validates fields and returns the schema. All problems are
// reported together.
func NewSchema(fields ...Field) (*Schema, error) {
	s := &Schema{index: make(map[string]int, len(fields))}
	var errs []error

	for _, f := range fields {
		if f.Name == "" {
			errs = append(errs, fmt.Errorf("%w: field with empty name", ErrInvalidSchema))
			continue
		}
		if _, dup := s.index[f.Name]; dup {
			errs = append(errs, fmt.Errorf("%w: duplicate field %q", ErrInvalidSchema, f.Name))
			continue
		}

		switch f.Policy {
		case Overwrite:
		case ShallowMerge:
			if f.Type != Map && f.Type != Any {
				errs = append(errs, fmt.Errorf("%w: field %q: shallow merge requires a map, got %s", ErrInvalidSchema, f.Name, f.Type))
			}
		case Append:
			if f.Type != List && f.Type != Any {
				errs = append(errs, fmt.Errorf("%w: field %q: append requires a list, got %s", ErrInvalidSchema, f.Name, f.Type))
			}
		default:
			errs = append(errs, fmt.Errorf("%w: field %q: unknown policy %s", ErrInvalidSchema, f.Name, f.Policy))
		}

		if len(f.Enum) > 0 {
			if !f.Type.scalar() {
				errs = append(errs, fmt.Errorf("%w: field %q: enum requires a scalar type, got %s", ErrInvalidSchema, f.Name, f.Type))
			} else {
				enum := make([]any, 0, len(f.Enum))
				for _, v := range f.Enum {
					cv, err := conform(f.Type, v)
					if err != nil {
						errs = append(errs, fmt.Errorf("%w: field %q: enum value: %w", ErrInvalidSchema, f.Name, err))
						continue
					}
					enum = append(enum, cv)
				}
				f.Enum = enum
			}
		}

		if f.Default != nil {
			dv, err := conform(f.Type, f.Default)
			if err == nil {
				err = checkEnum(f, dv)
			}
			if err != nil {
				errs = append(errs, fmt.Errorf("%w: field %q: default: %w", ErrInvalidSchema, f.Name, err))
			} else {
				f.Default = dv
			}
		}

		s.index[f.Name] = len(s.fields)
		s.fields = append(s.fields, f)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return s, nil
}

// Field returns the declaration of name.
func (s *Schema) Field(name string) (Field, bool) {
	i, ok := s.index[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// Has reports whether name is declared.
func (s *Schema) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

// Fields returns the declarations in declaration order.
func (s *Schema) Fields() []Field {
	return slices.Clone(s.fields)
}

// Names returns the field names in declaration order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.Name
	}
	return names
}

// Validate checks that every key of values is declared and type-checks
// against its field.
func (s *Schema) Validate(values Values) error {
	var errs []error
	for _, name := range sortedKeys(values) {
		f, ok := s.Field(name)
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownField, name))
			continue
		}
		if _, err := conformUpdate(f, values[name]); err != nil {
			errs = append(errs, fmt.Errorf("field %q: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// defaults returns a fresh copy of every declared default.
func (s *Schema) defaults() Values {
	out := make(Values)
	for _, f := range s.fields {
		if f.Default != nil {
			out[f.Name] = deepCopy(f.Default)
		}
	}
	return out
}

func checkEnum(f Field, v any) error {
	if len(f.Enum) == 0 || v == nil {
		return nil
	}
	if slices.Contains(f.Enum, v) {
		return nil
	}
	return fmt.Errorf("%w: %v not in %v", ErrEnumValue, v, f.Enum)
}
