package utils

import (
	"strings"
	"time"
)

// Date layouts seen in task payloads, most specific first.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseDueDate parses the loosely formatted date strings stored on
// tasks and subtasks. A trailing "Z" without an offset-aware layout is
// tolerated. Returns false when the value is empty or unparsable.
func ParseDueDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	trimmed := strings.TrimSuffix(value, "Z")
	if trimmed != value {
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, trimmed); err == nil {
				return t.UTC(), true
			}
		}
	}
	return time.Time{}, false
}
