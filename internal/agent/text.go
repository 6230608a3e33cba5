package agent

import (
	"errors"
	"strings"
	"time"
)

var nowFunc = time.Now

var errNoModel = errors.New("no model configured")

// ExtractItems splits model text into list items, stripping numbering and
// bullets. Lines shorter than minLen after stripping are dropped. At most max
// items are returned.
func ExtractItems(text string, minLen, max int) []string {
	var items []string
	for _, line := range strings.Split(text, "\n") {
		clean := strings.TrimLeft(strings.TrimSpace(line), "0123456789.-•*) ")
		clean = strings.TrimSpace(clean)
		if clean == "" || len([]rune(clean)) < minLen {
			continue
		}
		items = append(items, clean)
		if max > 0 && len(items) == max {
			break
		}
	}
	return items
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
