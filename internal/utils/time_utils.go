package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var durationUnits = []struct {
	suffix string
	unit   time.Duration
}{
	{"ms", time.Millisecond},
	{"s", time.Second},
	{"m", time.Minute},
	{"h", time.Hour},
	{"d", 24 * time.Hour},
}

// ParseDuration parses strings such as "500ms", "15s", "20M", "48h" or "2d".
// Units are case-insensitive and a single unit per string is accepted.
func ParseDuration(timeString string) (time.Duration, error) {
	s := strings.ToLower(strings.TrimSpace(timeString))
	if s == "" {
		return 0, fmt.Errorf("empty time string")
	}
	for _, u := range durationUnits {
		number, found := strings.CutSuffix(s, u.suffix)
		if !found {
			continue
		}
		n, err := strconv.Atoi(number)
		if err != nil {
			return 0, fmt.Errorf("invalid time format %q: %w", timeString, err)
		}
		if n < 0 {
			return 0, fmt.Errorf("negative time %q", timeString)
		}
		return time.Duration(n) * u.unit, nil
	}
	return 0, fmt.Errorf("invalid time format %q", timeString)
}

// MustParseDuration is ParseDuration for values that were validated already.
// Invalid strings yield fallback.
func MustParseDuration(timeString string, fallback time.Duration) time.Duration {
	d, err := ParseDuration(timeString)
	if err != nil {
		return fallback
	}
	return d
}
