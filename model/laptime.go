package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseLapTime parses a "hh:mm:ss.fff" or "hh:mm:ss" lap time string into a
// duration. An unparseable string yields the zero duration, the sentinel for
// "unknown"
func ParseLapTime(s string) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}

	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0
	}

	hours, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0
	}

	secParts := strings.SplitN(parts[2], ".", 2)
	seconds, err := strconv.Atoi(secParts[0])
	if err != nil {
		return 0
	}

	var millis int
	if len(secParts) == 2 {
		frac := secParts[1]
		if len(frac) > 3 {
			frac = frac[:3]
		}
		for len(frac) < 3 {
			frac += "0"
		}
		millis, err = strconv.Atoi(frac)
		if err != nil {
			return 0
		}
	}

	total := time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds)*time.Second +
		time.Duration(millis)*time.Millisecond
	return total
}

// FormatLapTime renders a duration as "hh:mm:ss.fff".
func FormatLapTime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	d -= minutes * time.Minute
	seconds := d / time.Second
	d -= seconds * time.Second
	millis := d / time.Millisecond
	return fmt.Sprintf("%02d:%02d:%02d.%03d", hours, minutes, seconds, millis)
}

// LapTimeMs is a convenience wrapper returning milliseconds directly.
func LapTimeMs(s string) int {
	return int(ParseLapTime(s) / time.Millisecond)
}
