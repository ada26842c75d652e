package utils

import (
	"testing"
	"time"
)

func TestParseDueDateLayouts(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
	}{
		{"2026-09-01", time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)},
		{"2026-09-01 15:04:05", time.Date(2026, 9, 1, 15, 4, 5, 0, time.UTC)},
		{"2026-09-01T15:04:05", time.Date(2026, 9, 1, 15, 4, 5, 0, time.UTC)},
		{"2026-09-01T15:04:05Z", time.Date(2026, 9, 1, 15, 4, 5, 0, time.UTC)},
		{"2026-09-01 15:04:05Z", time.Date(2026, 9, 1, 15, 4, 5, 0, time.UTC)},
		{"  2026-09-01  ", time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, c := range cases {
		got, ok := ParseDueDate(c.in)
		if !ok {
			t.Errorf("ParseDueDate(%q) failed", c.in)
			continue
		}
		if !got.Equal(c.want) {
			t.Errorf("ParseDueDate(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestParseDueDateInvalid(t *testing.T) {
	for _, in := range []string{"", "   ", "tomorrow", "2026-13-40", "01/09/2026"} {
		if _, ok := ParseDueDate(in); ok {
			t.Errorf("ParseDueDate(%q) should fail", in)
		}
	}
}
