package rendering

import (
	"html"
	"strings"
	"unicode"
)

// EscapeMarkdown escapes characters that CommonMark would treat as inline or block syntax
// Special characters: \ ` * _ [ ] < > # & ~ ! |
func EscapeMarkdown(text string) string {
	if text == "" {
		return ""
	}

	var result strings.Builder
	result.Grow(len(text) * 2)

	for _, r := range text {
		switch r {
		case '\\', '`', '*', '_', '[', ']', '<', '>', '#', '&', '~', '!', '|':
			result.WriteByte('\\')
			result.WriteRune(r)
		default:
			result.WriteRune(r)
		}
	}

	return result.String()
}

// escapeLineStarts trims every line, drops blank lines and escapes
// leading characters that would otherwise open a list, heading underline or thematic break.
func escapeLineStarts(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimFunc(line, unicode.IsSpace)
		if line == "" {
			continue
		}
		switch line[0] {
		case '-', '+', '=':
			line = `\` + line
		default:
			digits := 0
			for digits < len(line) && line[digits] >= '0' && line[digits] <= '9' {
				digits++
			}
			if digits > 0 && digits < len(line) && (line[digits] == '.' || line[digits] == ')') {
				line = line[:digits] + `\` + line[digits:]
			}
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// escapeDestination writes a link destination that survives CommonMark parsing
func escapeDestination(dest string) string {
	dest = strings.ReplaceAll(dest, "\n", "%0A")
	angled := strings.ContainsAny(dest, " \t<>")

	var sb strings.Builder
	if angled {
		sb.WriteByte('<')
	}
	for _, r := range dest {
		switch r {
		case '\\', '&', '<', '>':
			sb.WriteByte('\\')
		case '(', ')':
			if !angled {
				sb.WriteByte('\\')
			}
		}
		sb.WriteRune(r)
	}
	if angled {
		sb.WriteByte('>')
	}
	return sb.String()
}

// unescapeMarkdown resolves backslash escapes and entity references in one pass
func unescapeMarkdown(s string) string {
	if !strings.ContainsAny(s, `\&`) {
		return s
	}

	var sb strings.Builder
	chunk := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) && isASCIIPunct(s[i+1]) {
			sb.WriteString(html.UnescapeString(s[chunk:i]))
			sb.WriteByte(s[i+1])
			i++
			chunk = i + 1
		}
	}
	sb.WriteString(html.UnescapeString(s[chunk:]))
	return sb.String()
}

func isASCIIPunct(c byte) bool {
	return strings.IndexByte("!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~", c) >= 0
}

// longestRun returns the longest run of r in s
func longestRun(s string, r rune) int {
	longest, current := 0, 0
	for _, c := range s {
		if c == r {
			current++
			if current > longest {
				longest = current
			}
			continue
		}
		current = 0
	}
	return longest
}
