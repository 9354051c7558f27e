package state

import (
	"errors"
	"fmt"
	"maps"
	"sync"
)

// ApplyPolicy combines the current value of f with an update and returns the
// new value. It does not modify old or update.
func ApplyPolicy(f Field, old, update any) (any, error) {
	cv, err := conformUpdate(f, update)
	if err != nil {
		return nil, err
	}

	switch f.Policy {
	case ShallowMerge:
		if cv == nil {
			return deepCopy(old), nil
		}
		incoming, ok := cv.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: shallow merge needs a map, got %T", ErrTypeMismatch, cv)
		}
		merged := make(map[string]any)
		if current, ok := old.(map[string]any); ok {
			maps.Copy(merged, deepCopy(current).(map[string]any))
		}
		maps.Copy(merged, incoming)
		return merged, nil

	case Append:
		if cv == nil {
			return deepCopy(old), nil
		}
		var out []any
		if current, ok := old.([]any); ok {
			out = deepCopy(current).([]any)
		}
		return append(out, cv.([]any)...), nil

	default:
		return cv, nil
	}
}

// Store holds the values of one run. It is safe for concurrent use.
type Store struct {
	schema *Schema

	mu     sync.RWMutex
	values Values
}

// NewStore returns a store populated with the schema defaults and then
// initial, merged by policy.
func NewStore(schema *Schema, initial Values) (*Store, error) {
	if schema == nil {
		return nil, fmt.Errorf("%w: nil schema", ErrInvalidSchema)
	}
	s := &Store{schema: schema, values: schema.defaults()}
	if len(initial) > 0 {
		if err := s.Merge(initial); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Schema returns the schema the store was built with.
func (s *Store) Schema() *Schema {
	return s.schema
}

// Get returns a copy of the current value of name.
func (s *Store) Get(name string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[name]
	if !ok {
		return nil, false
	}
	return deepCopy(v), true
}

// Merge applies update field by field according to each field's policy.
//
// The whole update is validated first: if any field is unknown or mistyped,
// Merge returns the joined errors and the store is unchanged. Otherwise every
// field is committed under one lock, in sorted-name order.
func (s *Store) Merge(update Values) error {
	if len(update) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	staged := make(Values, len(update))
	var errs []error
	for _, name := range sortedKeys(update) {
		f, ok := s.schema.Field(name)
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownField, name))
			continue
		}
		next, err := ApplyPolicy(f, s.values[name], update[name])
		if err != nil {
			errs = append(errs, fmt.Errorf("field %q: %w", name, err))
			continue
		}
		staged[name] = next
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	for _, name := range sortedKeys(staged) {
		if staged[name] == nil {
			// Clearing a field with a default resets it, so it is never absent.
			if f, _ := s.schema.Field(name); f.Default != nil {
				s.values[name] = deepCopy(f.Default)
			} else {
				delete(s.values, name)
			}
			continue
		}
		s.values[name] = staged[name]
	}
	return nil
}

// Snapshot returns a deep copy of every value.
func (s *Store) Snapshot() Values {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values.Clone()
}

// Restore replaces every value with snapshot, as written by Snapshot. Policies
// are not applied: the snapshot is taken as the full state. Fields missing
// from the snapshot fall back to their defaults.
func (s *Store) Restore(snapshot Values) error {
	restored := s.schema.defaults()
	var errs []error
	for _, name := range sortedKeys(snapshot) {
		f, ok := s.schema.Field(name)
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownField, name))
			continue
		}
		v, err := conform(f.Type, snapshot[name])
		if err == nil {
			err = checkEnum(f, v)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("field %q: %w", name, err))
			continue
		}
		if v != nil {
			restored[name] = v
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = restored
	return nil
}
