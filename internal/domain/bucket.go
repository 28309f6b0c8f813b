package domain

import (
	"fmt"
	"strings"
	"time"
)

// BucketWidth is the calendar interval observations are aggregated over.
type BucketWidth string

const (
	BucketWeek  BucketWidth = "week"
	BucketMonth BucketWidth = "month"
)

// ParseBucketWidth accepts "week"/"weekly" and "month"/"monthly", case-insensitively.
func ParseBucketWidth(s string) (BucketWidth, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "week", "weekly", "w":
		return BucketWeek, nil
	case "month", "monthly", "m":
		return BucketMonth, nil
	default:
		return "", fmt.Errorf("unknown bucket width %q (allowed: week, month)", s)
	}
}

// ParseWeekday accepts English weekday names ("monday", "Sun", ...).
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) >= 3 {
		for d := time.Sunday; d <= time.Saturday; d++ {
			name := strings.ToLower(d.String())
			if s == name || s == name[:3] {
				return d, nil
			}
		}
	}
	return time.Sunday, fmt.Errorf("unknown weekday %q", s)
}

// BucketStart returns the start of the bucket containing t. Boundaries are
// calendar-aligned in UTC so bucket starts are comparable across stations:
// weeks begin at 00:00 on weekStart, months at 00:00 on the first day.
func BucketStart(t time.Time, width BucketWidth, weekStart time.Weekday) (time.Time, error) {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	switch width {
	case BucketWeek:
		offset := (int(day.Weekday()) - int(weekStart) + 7) % 7
		return day.AddDate(0, 0, -offset), nil
	case BucketMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC), nil
	default:
		return time.Time{}, fmt.Errorf("%w: bucket width %q", ErrInvalidOptions, width)
	}
}
