package tools

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// formatWhen renders an instant for the model: a readable civil time in
// loc followed by the exact RFC 3339 value.
func formatWhen(t time.Time, loc *time.Location) string {
	t = t.In(loc)
	return fmt.Sprintf("%s (%s)", t.Format("Mon 02/01/2006 15:04"), t.Format(time.RFC3339))
}

func formatNumber(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', 2, 64)
}

// formatMetadata renders metadata as "key=value" pairs in key order.
func formatMetadata(meta map[string]any) string {
	if len(meta) == 0 {
		return ""
	}
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := meta[k]
		if f, ok := v.(float64); ok {
			parts = append(parts, k+"="+formatNumber(f))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return strings.Join(parts, ", ")
}

// matchNote discloses that a substring matched several entities and
// which one was acted on.
func matchNote(n int, kind string) string {
	if n <= 1 {
		return ""
	}
	return fmt.Sprintf(" Note: %d %ss matched; the most recently updated one was used. Pass its id to target another.", n, kind)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
