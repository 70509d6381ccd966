// Package cliui contains small helpers for terminal output of the history
// command.
package cliui

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Truncate returns s trimmed to at most max runes, appending "..." when
// anything was removed.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	rs := []rune(s)
	if max <= 3 {
		return string(rs[:max])
	}
	return string(rs[:max-3]) + "..."
}

// FormatTimestamp renders a stored RFC 3339 timestamp in local time for
// display, falling back to the raw string when it does not parse.
func FormatTimestamp(raw string) string {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return raw
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

// EventLine renders one history row.
func EventLine(timestamp, source string, eventID int, message string, abnormal bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s (id %d)", FormatTimestamp(timestamp), source, eventID)
	if abnormal {
		b.WriteString(" [ABNORMAL]")
	}
	b.WriteString("\n  ")
	b.WriteString(Truncate(message, 160))
	return b.String()
}
