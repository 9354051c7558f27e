package parse

import "strings"

// RepairEscapes fixes the escaping faults models commonly produce inside JSON
// strings: raw newline, tab and carriage-return characters are replaced by
// their escape sequences, and a backslash that does not start a valid escape
// is itself escaped. Text outside string literals is copied unchanged.
func RepairEscapes(s string) string {
	var b strings.Builder
	b.Grow(len(s) + len(s)/16)

	inString := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !inString {
			if c == '"' {
				inString = true
			}
			b.WriteByte(c)
			continue
		}

		switch c {
		case '"':
			inString = false
			b.WriteByte(c)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '\r':
			b.WriteString(`\r`)
		case '\\':
			if i+1 < len(s) && validEscape(s, i+1) {
				b.WriteByte(c)
				b.WriteByte(s[i+1])
				i++
				continue
			}
			b.WriteString(`\\`)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// validEscape reports whether s[i] completes a JSON escape sequence started
// by the backslash at s[i-1].
func validEscape(s string, i int) bool {
	switch s[i] {
	case '"', '\\', '/', 'b', 'f', 'n', 'r', 't':
		return true
	case 'u':
		if i+4 >= len(s) {
			return false
		}
		for _, h := range []byte(s[i+1 : i+5]) {
			if !isHex(h) {
				return false
			}
		}
		return true
	}
	return false
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
