package analytics

import (
	"strings"
	"time"
)

// dateLayouts covers the formats seen in uploaded workbooks and in
// LLM-supplied arguments. Order matters: most specific first.
var dateLayouts = []string{
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"02-Jan-2006",
	"Jan 2, 2006",
	"Jan 2006",
	"January 2006",
	"2006-01",
	"2006",
}

// ParseDate parses a date string leniently. Returns false when no known
// layout matches.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseDates parses each entry, skipping failures. The returned slice holds
// only the parseable dates, in input order.
func ParseDates(ss []string) []time.Time {
	out := make([]time.Time, 0, len(ss))
	for _, s := range ss {
		if t, ok := ParseDate(s); ok {
			out = append(out, t)
		}
	}
	return out
}

// SameMonth reports whether two dates fall in the same calendar month.
func SameMonth(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month()
}
