package parse

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNoJSON is returned by [ExtractAs] when no JSON object could be recovered.
var ErrNoJSON = errors.New("no JSON object found in text")

// ExtractAs recovers the JSON object embedded in text and decodes it into T.
// When direct decoding fails it retries after unwrapping schema-style
// envelopes such as {"type": "string", "value": "x"}, a common mistake when a
// model confuses a JSON schema with the data it describes.
//
// Example usage:
//
//	type Plan struct {
//	    Steps []string `json:"steps"`
//	}
//
//	plan, err := ExtractAs[Plan]("Sure! ```json\n{\"steps\": [\"a\"]}\n```")
func ExtractAs[T any](text string) (T, error) {
	var result T

	obj, ok := Extract(text)
	if !ok {
		return result, ErrNoJSON
	}

	raw, err := json.Marshal(obj)
	if err != nil {
		return result, fmt.Errorf("re-encoding extracted object: %w", err)
	}

	err = json.Unmarshal(raw, &result)
	if err == nil {
		return result, nil
	}

	unwrapped, unwrapErr := json.Marshal(recursiveUnwrap(obj))
	if unwrapErr == nil {
		var retry T
		if json.Unmarshal(unwrapped, &retry) == nil {
			return retry, nil
		}
	}

	return result, fmt.Errorf("decoding extracted object as %T: %w", result, err)
}

// recursiveUnwrap replaces every {"type": ..., "value": ...} pair with its value.
func recursiveUnwrap(data any) any {
	switch v := data.(type) {
	case map[string]any:
		if _, hasType := v["type"]; hasType {
			if value, hasValue := v["value"]; hasValue && len(v) == 2 {
				return recursiveUnwrap(value)
			}
		}

		result := make(map[string]any, len(v))
		for key, val := range v {
			result[key] = recursiveUnwrap(val)
		}
		return result

	case []any:
		result := make([]any, len(v))
		for i, val := range v {
			result[i] = recursiveUnwrap(val)
		}
		return result

	default:
		return data
	}
}
