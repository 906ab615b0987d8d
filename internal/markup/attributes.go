package markup

const (
	className uint8 = 1 << iota
	classSpace
	classAttrName
)

var classes [256]uint8

func init() {
	for c := 0; c < 256; c++ {
		b := byte(c)
		switch {
		case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9', b == '_', b == '-', b == ':':
			classes[c] |= className | classAttrName
		case b == ' ', b == '\t', b == '\n', b == '\r', b == '\f':
			classes[c] |= classSpace
		case b == '=', b == '"', b == '/', b == '>', b == '<':
		default:
			classes[c] |= classAttrName
		}
	}
}

func isSpace(c byte) bool { return classes[c]&classSpace != 0 }

func nameLength(b []byte) int {
	for i, c := range b {
		if classes[c]&className == 0 {
			return i
		}
	}
	return len(b)
}

func isName(b []byte) bool {
	return len(b) > 0 && nameLength(b) == len(b)
}

// ParseAttributes splits an attribute string into ordered name/value pairs.
// Values are double-quoted with \" as an escaped quote, or unquoted up to
// the next whitespace. An unterminated quoted value runs to the end of the
// string.
func ParseAttributes(s string) []Attr {
	var attrs []Attr
	i := 0
	n := len(s)

	for i < n {
		for i < n && isSpace(s[i]) {
			i++
		}
		start := i
		for i < n && classes[s[i]]&classAttrName != 0 {
			i++
		}
		if i == start {
			i++
			continue
		}
		name := s[start:i]

		j := i
		for j < n && isSpace(s[j]) {
			j++
		}
		if j >= n || s[j] != '=' {
			attrs = append(attrs, Attr{Name: name})
			continue
		}
		i = j + 1
		for i < n && isSpace(s[i]) {
			i++
		}

		var value string
		if i < n && s[i] == '"' {
			value, i = quoted(s, i+1)
		} else {
			start := i
			for i < n && !isSpace(s[i]) {
				i++
			}
			value = s[start:i]
		}
		attrs = append(attrs, Attr{Name: name, Value: &value})
	}

	return attrs
}

// quoted reads a double-quoted value starting after the opening quote and
// returns it unescaped along with the index after the closing quote.
func quoted(s string, i int) (string, int) {
	var out []byte
	for i < len(s) {
		c := s[i]
		switch {
		case c == '\\' && i+1 < len(s) && s[i+1] == '"':
			out = append(out, '"')
			i += 2
		case c == '"':
			return string(out), i + 1
		default:
			out = append(out, c)
			i++
		}
	}
	return string(out), i
}
