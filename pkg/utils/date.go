package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeNowIn returns the current time in the given location.
func TimeNowIn(loc *time.Location) time.Time {
	return time.Now().In(loc)
}

// ParseClockTime parses a wall-clock "HH:MM" string into hour and minute.
// Hours must be 0-23 and minutes 0-59.
func ParseClockTime(s string) (int, int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid clock time %q: expected HH:MM", s)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid hour in clock time %q: %w", s, err)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid minute in clock time %q: %w", s, err)
	}

	if hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("hour out of range in clock time %q", s)
	}
	if minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("minute out of range in clock time %q", s)
	}

	return hour, minute, nil
}

// AtClock constructs a timestamp on the same calendar date as day, at the
// given hour and minute with zero seconds, in day's location.
func AtClock(day time.Time, hour, minute int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, day.Location())
}
