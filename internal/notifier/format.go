package notifier

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/good-yellow-bee/beacon/internal/models"
)

// priorityEmoji returns an emoji for the priority level.
func priorityEmoji(p models.Priority) string {
	switch p {
	case models.PriorityCritical:
		return "\U0001F534" // red circle
	case models.PriorityHigh:
		return "\U0001F7E0" // orange circle
	case models.PriorityMedium:
		return "\U0001F7E1" // yellow circle
	case models.PriorityLow:
		return "\U0001F7E2" // green circle
	default:
		return "⚪" // white circle
	}
}

// truncate shortens s to at most max runes, ending with an ellipsis when cut.
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	if max <= 3 {
		return string([]rune(s)[:max])
	}
	return string([]rune(s)[:max-3]) + "..."
}

// dataPairs renders the alert data bag as sorted key=value strings.
func dataPairs(data map[string]any) []string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%v", k, data[k]))
	}
	return pairs
}

// splitList splits a comma separated setting, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

const timestampLayout = "2006-01-02 15:04:05 MST"
