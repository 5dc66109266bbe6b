package catalog

import (
	"fmt"
	"strings"
)

const (
	openMarker  = "{{"
	closeMarker = "}}"
)

// Render replaces every {{key}} in s with fmt.Sprint(data[key]). Whitespace
// inside the braces is ignored. Placeholders whose key is absent from data are
// left verbatim. Substituted values are never rescanned.
func Render(s string, data map[string]any) string {
	if !strings.Contains(s, openMarker) {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))

	rest := s
	for {
		start := strings.Index(rest, openMarker)
		if start < 0 {
			b.WriteString(rest)
			break
		}
		end := strings.Index(rest[start+len(openMarker):], closeMarker)
		if end < 0 {
			b.WriteString(rest)
			break
		}
		end += start + len(openMarker)

		b.WriteString(rest[:start])
		key := strings.TrimSpace(rest[start+len(openMarker) : end])
		if v, ok := data[key]; ok && key != "" {
			b.WriteString(fmt.Sprint(v))
		} else {
			b.WriteString(rest[start : end+len(closeMarker)])
		}
		rest = rest[end+len(closeMarker):]
	}

	return b.String()
}
