package utils

import (
	"strings"
	"testing"
)

func TestJSONToString(t *testing.T) {
	compact := JSONToString(map[string]int{"a": 1})
	if compact != `{"a":1}` {
		t.Errorf("compact = %q", compact)
	}

	indented := JSONToString(map[string]int{"x": 42}, true)
	if !strings.Contains(indented, "\n  \"x\": 42") {
		t.Errorf("indented = %q", indented)
	}

	// Channels cannot be marshaled to JSON.
	broken := JSONToString(make(chan int))
	if !strings.Contains(broken, "failed to marshal") {
		t.Errorf("marshal failure = %q", broken)
	}
}

func TestTruncateString(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{name: "short", input: "abc", maxLen: 10, want: "abc"},
		{name: "exact", input: "abc", maxLen: 3, want: "abc"},
		{name: "long", input: "abcdef", maxLen: 3, want: "abc... (truncated, total: 6 chars)"},
		{name: "default length", input: "abc", maxLen: 0, want: "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TruncateString(tt.input, tt.maxLen); got != tt.want {
				t.Errorf("TruncateString() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSafeName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{input: "validate", want: "validate"},
		{input: "../etc/passwd", want: "%2E.%2Fetc%2Fpasswd"},
		{input: "..", want: "%2E."},
		{input: ".hidden", want: "%2Ehidden"},
		{input: "", want: "%"},
		{input: "a/b\\c", want: "a%2Fb%5Cc"},
		{input: "a_b", want: "a_b"},
		{input: "run:1", want: "run%3A1"},
		{input: "100%", want: "100%25"},
		{input: "0190f7a2-8f4e-7c1a", want: "0190f7a2-8f4e-7c1a"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := SafeName(tt.input); got != tt.want {
				t.Errorf("SafeName(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSafeName_DistinctInputsStayDistinct(t *testing.T) {
	inputs := []string{"a/b", "a_b", "a\\b", "a:b", "a%2Fb", "a%b", "", "%", "_", ".", "%2E", "..", "x.y"}
	seen := make(map[string]string, len(inputs))
	for _, in := range inputs {
		got := SafeName(in)
		if prev, ok := seen[got]; ok {
			t.Errorf("SafeName(%q) = SafeName(%q) = %q", in, prev, got)
		}
		seen[got] = in
		if strings.ContainsAny(got, "/\\") || got == "." || got == ".." {
			t.Errorf("SafeName(%q) = %q is not a single safe path element", in, got)
		}
	}
}
