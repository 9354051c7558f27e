package parse

import (
	"encoding/json"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

const fence = "```"

// Extract recovers the JSON object embedded in text.
//
// The text is processed in stages: the first fenced block is selected (if any),
// the candidate is trimmed to the span between the first '{' and the last '}',
// string escaping is repaired, and the result is parsed. When direct parsing
// fails, balanced brace segments are scanned from the first '{' and each one is
// parsed in turn. As a last resort the candidate is handed to jsonrepair.
//
// Only objects count as success. On failure Extract returns an empty, non-nil
// map and false. It never panics and runs in time linear in len(text).
func Extract(text string) (map[string]any, bool) {
	candidate := StripFence(text)
	if !strings.Contains(candidate, "{") {
		// A leading fence in another language (shell, yaml) must not hide the payload.
		candidate = text
	}

	trimmed, ok := trimToBraces(candidate)
	if !ok {
		return map[string]any{}, false
	}

	repaired := RepairEscapes(trimmed)
	if obj, ok := decodeObject(repaired); ok {
		return obj, true
	}

	if obj, ok := scanBalanced(repaired); ok {
		return obj, true
	}

	if fixed, ok := repairJSON(trimmed); ok {
		if obj, ok := decodeObject(fixed); ok {
			return obj, true
		}
	}

	return map[string]any{}, false
}

// StripFence returns the body of the first fenced block in s. The opening
// delimiter may carry a language tag; a missing closing delimiter extends the
// block to the end of s. When s contains no fence it is returned unchanged.
func StripFence(s string) string {
	start := strings.Index(s, fence)
	if start < 0 {
		return s
	}
	body := s[start+len(fence):]

	// Skip the language tag, but only when the rest of the line looks like one.
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		if isLanguageTag(strings.TrimSpace(body[:nl])) {
			body = body[nl+1:]
		}
	} else if isLanguageTag(strings.TrimSpace(body)) {
		return ""
	}

	if end := strings.Index(body, fence); end >= 0 {
		body = body[:end]
	}
	return body
}

func isLanguageTag(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '+', r == '.':
		default:
			return false
		}
	}
	return true
}

// trimToBraces cuts s down to the span between the first '{' and the last '}'.
func trimToBraces(s string) (string, bool) {
	first := strings.IndexByte(s, '{')
	last := strings.LastIndexByte(s, '}')
	if first < 0 || last < first {
		return "", false
	}
	return s[first : last+1], true
}

// scanBalanced walks s from its first '{' and tries every top-level balanced
// segment in order. Segments never overlap, so the scan stays linear.
func scanBalanced(s string) (map[string]any, bool) {
	depth := 0
	start := -1
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				if obj, ok := decodeObject(s[start : i+1]); ok {
					return obj, true
				}
				start = -1
			}
		}
	}
	return nil, false
}

// repairJSON runs jsonrepair and converts any panic inside it into a failure.
func repairJSON(s string) (fixed string, ok bool) {
	defer func() {
		if recover() != nil {
			fixed, ok = "", false
		}
	}()

	out, err := jsonrepair.JSONRepair(s)
	if err != nil {
		return "", false
	}
	return out, true
}

func decodeObject(s string) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}
