package util

import (
	"fmt"
	"strings"
	"time"
)

const minutesPerDay = 24 * 60

// ParseClock converts an HH:MM local time of day into minutes after midnight.
func ParseClock(v string) (int, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, fmt.Errorf("empty time of day")
	}
	parsed, err := time.Parse("15:04", v)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", v, err)
	}
	return parsed.Hour()*60 + parsed.Minute(), nil
}

// FormatClock renders minutes after midnight as HH:MM, wrapping into a single day.
func FormatClock(minutes int) string {
	m := ((minutes % minutesPerDay) + minutesPerDay) % minutesPerDay
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// TimeOfDayUTC returns an instant whose UTC time of day is minutes after
// midnight. UTC has no offset changes, so every minute of the day exists.
func TimeOfDayUTC(minutes int) time.Time {
	m := ((minutes % minutesPerDay) + minutesPerDay) % minutesPerDay
	return time.Date(2000, time.January, 1, m/60, m%60, 0, 0, time.UTC)
}
