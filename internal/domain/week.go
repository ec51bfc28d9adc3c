package domain

import (
	"fmt"
	"regexp"
	"time"
)

// Week keys follow ISO-8601 week dates: weeks start Monday, week 1 contains
// the year's first Thursday. Formatted as "YYYY.Www" with a zero-padded week.
var weekKeyPattern = regexp.MustCompile(`^\d{4}\.W(0[1-9]|[1-4][0-9]|5[0-3])$`)

// FormatWeekKey derives the week key for a date.
func FormatWeekKey(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d.W%02d", year, week)
}

// ValidWeekKey reports whether key is a syntactically valid week key.
func ValidWeekKey(key string) bool {
	return weekKeyPattern.MatchString(key)
}
