package parse

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   map[string]any
		wantOK bool
	}{
		{
			name:   "plain object",
			input:  `{"a":1}`,
			want:   map[string]any{"a": float64(1)},
			wantOK: true,
		},
		{
			name:   "fenced block inside prose",
			input:  "here is json: ```json\n{\"a\":1}\n``` thanks",
			want:   map[string]any{"a": float64(1)},
			wantOK: true,
		},
		{
			name:   "no json at all",
			input:  "no json here",
			want:   map[string]any{},
			wantOK: false,
		},
		{
			name:   "empty input",
			input:  "",
			want:   map[string]any{},
			wantOK: false,
		},
		{
			name:   "literal newline inside string",
			input:  "{\"a\": \"line1\nline2\"}",
			want:   map[string]any{"a": "line1\nline2"},
			wantOK: true,
		},
		{
			name:   "literal tab and carriage return inside string",
			input:  "{\"a\": \"x\ty\r\"}",
			want:   map[string]any{"a": "x\ty\r"},
			wantOK: true,
		},
		{
			name:   "duplicate keys keep the last value",
			input:  `{"a":1,"a":2}`,
			want:   map[string]any{"a": float64(2)},
			wantOK: true,
		},
		{
			name:   "stray closing brace after the object",
			input:  `{"a":1} remember to close every } carefully`,
			want:   map[string]any{"a": float64(1)},
			wantOK: true,
		},
		{
			name:   "example braces before the real object",
			input:  `Use the shape {like this}. Result: {"b":2}`,
			want:   map[string]any{"b": float64(2)},
			wantOK: true,
		},
		{
			name:   "invalid backslash escapes",
			input:  `{"path": "C:\Users\me"}`,
			want:   map[string]any{"path": `C:\Users\me`},
			wantOK: true,
		},
		{
			name:   "valid unicode escape preserved",
			input:  `{"s": "caf\u00e9"}`,
			want:   map[string]any{"s": "café"},
			wantOK: true,
		},
		{
			name:   "fence without closing delimiter",
			input:  "```json\n{\"a\":1}",
			want:   map[string]any{"a": float64(1)},
			wantOK: true,
		},
		{
			name:   "inline fence without language tag",
			input:  "```{\"a\":1}```",
			want:   map[string]any{"a": float64(1)},
			wantOK: true,
		},
		{
			name:   "first fence holds no json",
			input:  "Run this:\n```bash\nls -la\n```\nthen {\"a\":1}",
			want:   map[string]any{"a": float64(1)},
			wantOK: true,
		},
		{
			name:   "top level array is not an object",
			input:  `[1, 2, 3]`,
			want:   map[string]any{},
			wantOK: false,
		},
		{
			name:   "trailing comma repaired",
			input:  `{"a": 1, "b": [1, 2,],}`,
			want:   map[string]any{"a": float64(1), "b": []any{float64(1), float64(2)}},
			wantOK: true,
		},
		{
			name:  "nested objects",
			input: "Here you go:\n```json\n{\"files\": {\"main.go\": \"package main\\n\"}, \"count\": 1}\n```",
			want: map[string]any{
				"files": map[string]any{"main.go": "package main\n"},
				"count": float64(1),
			},
			wantOK: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Extract(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("Extract() ok = %v, want %v (got %v)", ok, tt.wantOK, got)
			}
			if got == nil {
				t.Fatal("Extract() returned a nil map")
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Extract() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestExtract_ManySegments(t *testing.T) {
	input := strings.Repeat(`{"k": "v"} noise } `, 5000)

	got, ok := Extract(input)
	if !ok {
		t.Fatal("expected the first balanced segment to be recovered")
	}
	if got["k"] != "v" {
		t.Errorf("got %v, want k=v", got)
	}
}

func TestStripFence(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "no fence", input: "plain", want: "plain"},
		{name: "tagged fence", input: "```json\nbody\n```", want: "body\n"},
		{name: "untagged fence", input: "```\nbody\n```", want: "body\n"},
		{name: "first of two fences", input: "```\none\n```\n```\ntwo\n```", want: "one\n"},
		{name: "unterminated", input: "```go\nbody", want: "body"},
		{name: "bare opening delimiter", input: "text ```", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripFence(tt.input); got != tt.want {
				t.Errorf("StripFence() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRepairEscapes(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "untouched", input: `{"a": "b"}`, want: `{"a": "b"}`},
		{name: "newline in string", input: "{\"a\": \"x\ny\"}", want: `{"a": "x\ny"}`},
		{name: "newline outside string kept", input: "{\n\"a\": 1\n}", want: "{\n\"a\": 1\n}"},
		{name: "invalid escape doubled", input: `{"a": "\d"}`, want: `{"a": "\\d"}`},
		{name: "escaped quote kept", input: `{"a": "say \"hi\""}`, want: `{"a": "say \"hi\""}`},
		{name: "short unicode escape doubled", input: `{"a": "\u12"}`, want: `{"a": "\\u12"}`},
		{name: "valid escapes kept", input: `{"a": "\n\t\\\/"}`, want: `{"a": "\n\t\\\/"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RepairEscapes(tt.input); got != tt.want {
				t.Errorf("RepairEscapes() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractAs(t *testing.T) {
	type plan struct {
		Steps []string `json:"steps"`
	}

	t.Run("decodes fenced object", func(t *testing.T) {
		got, err := ExtractAs[plan]("Sure!\n```json\n{\"steps\": [\"a\", \"b\"]}\n```")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !reflect.DeepEqual(got.Steps, []string{"a", "b"}) {
			t.Errorf("Steps = %v", got.Steps)
		}
	})

	t.Run("unwraps schema envelopes", func(t *testing.T) {
		type person struct {
			Name  string `json:"name"`
			Count int    `json:"count"`
		}
		input := `{"name": {"type": "string", "value": "Ada"}, "count": {"type": "integer", "value": 3}}`

		got, err := ExtractAs[person](input)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Name != "Ada" || got.Count != 3 {
			t.Errorf("got %+v", got)
		}
	})

	t.Run("no json", func(t *testing.T) {
		_, err := ExtractAs[plan]("nothing to see")
		if !errors.Is(err, ErrNoJSON) {
			t.Errorf("err = %v, want ErrNoJSON", err)
		}
	})

	t.Run("type mismatch", func(t *testing.T) {
		_, err := ExtractAs[plan](`{"steps": 5}`)
		if err == nil {
			t.Error("expected a decode error")
		}
	})
}

func FuzzExtract(f *testing.F) {
	seeds := []string{
		`{"a":1}`,
		"```json\n{\"a\":\"b\"}\n```",
		"{{{{",
		"}}}}{",
		`{"a": "\`,
		"```",
		`{"a": "\u"}`,
		"{\"\n\t\r\\\"}",
		`{} {} {"x": [1, {"y": "}"}]}`,
	}
	for _, s := range seeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, input string) {
		got, ok := Extract(input)
		if got == nil {
			t.Fatal("Extract returned a nil map")
		}
		if !ok && len(got) != 0 {
			t.Fatalf("failed extraction returned data: %v", got)
		}
	})
}
