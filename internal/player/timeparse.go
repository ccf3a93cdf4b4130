package player

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrBadTimestamp is returned for timestamps that are not SS, MM:SS, or
// HH:MM:SS. It is a user-input error, never fatal to a cycle.
var ErrBadTimestamp = errors.New("player: invalid time format, use seconds, MM:SS, or HH:MM:SS")

// ParseTimestamp parses "SS", "MM:SS", or "HH:MM:SS" into a duration.
func ParseTimestamp(s string) (time.Duration, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) == 0 || len(parts) > 3 {
		return 0, ErrBadTimestamp
	}
	total := 0
	for _, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return 0, ErrBadTimestamp
		}
		total = total*60 + n
	}
	return time.Duration(total) * time.Second, nil
}

// FormatDuration renders a duration as MM:SS, or HH:MM:SS past the hour
// mark. Non-positive durations render as 00:00.
func FormatDuration(d time.Duration) string {
	total := int(d.Seconds())
	if total < 1 {
		return "00:00"
	}
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	if hours > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}
