package slogobs

import "strings"

// Format selects the record layout of the handler.
type Format string

const (
	FormatCompact Format = "compact" // one line, attributes as a JSON object
	FormatPretty  Format = "pretty"  // one attribute per line
	FormatJSON    Format = "json"    // slog's JSON handler
)

// ParseFormat accepts compact, pretty or json in any case. Anything else
// yields FormatCompact and ok=false.
func ParseFormat(s string) (Format, bool) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	switch f {
	case FormatCompact, FormatPretty, FormatJSON:
		return f, true
	}
	return FormatCompact, false
}
