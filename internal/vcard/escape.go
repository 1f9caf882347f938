package vcard

import (
	"strings"
	"unicode/utf8"
)

const maxLineOctets = 75

var textEscaper = strings.NewReplacer(
	`\`, `\\`,
	"\r\n", `\n`,
	"\n", `\n`,
	"\r", `\n`,
	",", `\,`,
	";", `\;`,
)

// escapeText backslash-escapes a text value for output.
func escapeText(s string) string {
	return textEscaper.Replace(s)
}

// joinStructured escapes every component and joins them with ';'.
func joinStructured(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = escapeText(p)
	}
	return strings.Join(escaped, ";")
}

// splitStructured splits a decoded value on unescaped semicolons and pads the
// result to at least n components. The decoder has already resolved "\\",
// "\n" and "\,"; only "\;" is left for us.
func splitStructured(v string, n int) []string {
	parts := make([]string, 0, n)
	var cur strings.Builder
	for i := 0; i < len(v); i++ {
		c := v[i]
		if c == '\\' && i+1 < len(v) && v[i+1] == ';' {
			cur.WriteByte(';')
			i++
			continue
		}
		if c == ';' {
			parts = append(parts, cur.String())
			cur.Reset()
			continue
		}
		cur.WriteByte(c)
	}
	parts = append(parts, cur.String())
	for len(parts) < n {
		parts = append(parts, "")
	}
	return parts
}

// unescapeText finishes unescaping a decoded text value.
func unescapeText(v string) string {
	return strings.ReplaceAll(v, `\;`, ";")
}

// trimText is unescapeText for values where surrounding blanks carry no
// meaning.
func trimText(v string) string {
	return strings.TrimSpace(unescapeText(v))
}

var unfolder = strings.NewReplacer("\r\n ", "", "\r\n\t", "", "\n ", "", "\n\t", "")

// rawValues returns the undecoded values of every property called name in
// the first card of text.
func rawValues(text, name string) []string {
	var values []string
	inCard := false
	for _, line := range strings.Split(unfolder.Replace(text), "\n") {
		line = strings.TrimRight(line, "\r")
		upper := strings.ToUpper(strings.TrimSpace(line))
		switch {
		case upper == "BEGIN:VCARD":
			inCard = true
			continue
		case upper == "END:VCARD":
			if inCard {
				return values
			}
			continue
		case !inCard:
			continue
		}

		end := strings.IndexAny(line, ";:")
		if end < 0 {
			continue
		}
		key := line[:end]
		if dot := strings.IndexByte(key, '.'); dot >= 0 {
			key = key[dot+1:]
		}
		if !strings.EqualFold(key, name) {
			continue
		}
		if v, ok := valueAfterParams(line[end:]); ok {
			values = append(values, v)
		}
	}
	return values
}

// valueAfterParams returns what follows the first colon outside a quoted
// parameter value.
func valueAfterParams(s string) (string, bool) {
	quoted := false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			quoted = !quoted
		case ':':
			if !quoted {
				return s[i+1:], true
			}
		}
	}
	return "", false
}

// splitList splits a raw text-list value on unescaped commas and unescapes
// every item.
func splitList(v string) []string {
	var items []string
	var cur strings.Builder
	for i := 0; i < len(v); i++ {
		c := v[i]
		if c == '\\' && i+1 < len(v) {
			i++
			switch v[i] {
			case 'n', 'N':
				cur.WriteByte('\n')
			default:
				cur.WriteByte(v[i])
			}
			continue
		}
		if c == ',' {
			items = append(items, cur.String())
			cur.Reset()
			continue
		}
		cur.WriteByte(c)
	}
	return append(items, cur.String())
}

// foldLine terminates line with CRLF, folding it so that no physical line
// exceeds 75 octets. Continuation lines start with a single space and folds
// never split a UTF-8 sequence.
func foldLine(line string) string {
	if len(line) <= maxLineOctets {
		return line + "\r\n"
	}

	var b strings.Builder
	b.Grow(len(line) + len(line)/maxLineOctets*3 + 2)

	start, width := 0, maxLineOctets
	for start < len(line) {
		end := start + width
		if end >= len(line) {
			b.WriteString(line[start:])
			b.WriteString("\r\n")
			break
		}
		for end > start+1 && !utf8.RuneStart(line[end]) {
			end--
		}
		b.WriteString(line[start:end])
		b.WriteString("\r\n ")
		start = end
		width = maxLineOctets - 1
	}
	return b.String()
}

const (
	appleLabelPrefix = "_$!<"
	appleLabelSuffix = ">!$_"
)

// cleanLabel strips Apple's "_$!<...>!$_" wrapper. wrapped reports whether
// the wrapper was present.
func cleanLabel(label string) (clean string, wrapped bool) {
	label = trimText(label)
	if strings.HasPrefix(label, appleLabelPrefix) && strings.HasSuffix(label, appleLabelSuffix) {
		return label[len(appleLabelPrefix) : len(label)-len(appleLabelSuffix)], true
	}
	return label, false
}

// typeLabel turns an X-ABLabel into a collection type.
func typeLabel(label string) string {
	clean, wrapped := cleanLabel(label)
	if wrapped {
		return strings.ToLower(clean)
	}
	return clean
}
