package analytics

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultTimeframe is used when a request names none.
const DefaultTimeframe = "7d"

// Window is a half-open time range [Since, Until). A zero bound is open.
type Window struct {
	Since time.Time `json:"since"`
	Until time.Time `json:"until"`
}

// LastDays returns the window covering the given number of days before now.
func LastDays(now time.Time, days int) Window {
	return Window{Since: now.AddDate(0, 0, -days), Until: now}
}

// ParseTimeframe turns "7d", "30d", any other "<n>d" or "all" into a window
// ending at now. An empty string means DefaultTimeframe.
func ParseTimeframe(s string, now time.Time) (Window, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		s = DefaultTimeframe
	}
	if s == "all" {
		return Window{Until: now}, nil
	}
	n, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
	if err != nil || !strings.HasSuffix(s, "d") || n <= 0 {
		return Window{}, fmt.Errorf("invalid timeframe %q", s)
	}
	return LastDays(now, n), nil
}
