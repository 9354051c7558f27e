package state

import (
	"errors"
	"testing"
)

func TestNewSchema_Validation(t *testing.T) {
	tests := []struct {
		name    string
		fields  []Field
		wantErr error
	}{
		{
			name: "valid",
			fields: []Field{
				{Name: "a", Type: String},
				{Name: "b", Type: Map, Policy: ShallowMerge},
				{Name: "c", Type: List, Policy: Append},
				{Name: "d", Type: String, Enum: []any{"x", "y"}, Default: "x"},
			},
		},
		{name: "empty name", fields: []Field{{Type: String}}, wantErr: ErrInvalidSchema},
		{name: "duplicate", fields: []Field{{Name: "a"}, {Name: "a"}}, wantErr: ErrInvalidSchema},
		{name: "shallow merge on string", fields: []Field{{Name: "a", Type: String, Policy: ShallowMerge}}, wantErr: ErrInvalidSchema},
		{name: "append on map", fields: []Field{{Name: "a", Type: Map, Policy: Append}}, wantErr: ErrInvalidSchema},
		{name: "enum on list", fields: []Field{{Name: "a", Type: List, Enum: []any{"x"}}}, wantErr: ErrInvalidSchema},
		{name: "enum value mistyped", fields: []Field{{Name: "a", Type: Bool, Enum: []any{"yes"}}}, wantErr: ErrInvalidSchema},
		{name: "default outside enum", fields: []Field{{Name: "a", Type: String, Enum: []any{"x"}, Default: "z"}}, wantErr: ErrInvalidSchema},
		{name: "default mistyped", fields: []Field{{Name: "a", Type: Int, Default: "1"}}, wantErr: ErrInvalidSchema},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSchema(tt.fields...)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if len(s.Fields()) != len(tt.fields) {
					t.Errorf("Fields() = %d, want %d", len(s.Fields()), len(tt.fields))
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewSchema_ReportsAllProblems(t *testing.T) {
	_, err := NewSchema(
		Field{Name: "a", Type: String, Policy: Append},
		Field{Name: "b", Type: Bool, Policy: ShallowMerge},
	)
	if err == nil {
		t.Fatal("expected an error")
	}
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok || len(joined.Unwrap()) != 2 {
		t.Errorf("expected two joined errors, got %v", err)
	}
}

func TestSchema_Validate(t *testing.T) {
	s, err := NewSchema(
		Field{Name: "count", Type: Int},
		Field{Name: "mode", Type: String, Enum: []any{"fast", "slow"}},
	)
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Validate(Values{"count": 3.0, "mode": "fast"}); err != nil {
		t.Errorf("whole float must coerce to int: %v", err)
	}
	if err := s.Validate(Values{"count": 3.5}); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("fractional float: got %v", err)
	}
	if err := s.Validate(Values{"mode": "medium"}); !errors.Is(err, ErrEnumValue) {
		t.Errorf("enum: got %v", err)
	}
	if err := s.Validate(Values{"nope": 1}); !errors.Is(err, ErrUnknownField) {
		t.Errorf("unknown: got %v", err)
	}
}
