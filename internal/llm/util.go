package llm

import "strings"

// CleanCodeFence removes a code fence wrapping the whole response.
// Models often wrap markdown, HTML or JSON in ```lang ... ``` even when told not to.
// Text that is not entirely fenced is returned trimmed but otherwise unchanged.
func CleanCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") && !strings.HasPrefix(text, "~~~") {
		return text
	}

	fence := text[:3]
	nl := strings.IndexByte(text, '\n')
	if nl < 0 {
		return text
	}
	// info string: "markdown", "html", "json" ...
	info := strings.TrimSpace(strings.TrimLeft(text[:nl], fence[:1]))
	if strings.ContainsAny(info, " {<") {
		return text
	}

	body := text[nl+1:]
	end := strings.LastIndex(body, fence)
	for end > 0 && body[end-1] == fence[0] {
		end--
	}
	if end < 0 || strings.TrimSpace(body[end:]) != strings.Repeat(fence[:1], len(strings.TrimSpace(body[end:]))) {
		return text
	}
	return strings.TrimSpace(body[:end])
}

// ExtractJSONObject returns the first balanced JSON object in text, skipping any preamble.
// It returns "" when no complete object is found.
func ExtractJSONObject(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}
