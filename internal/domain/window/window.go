package window

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Built-in window names.
const (
	Today = "today"
	Week  = "week"
	Month = "month"
	Year  = "year"
)

const day = 24 * time.Hour

// Window is a named look-back period.
type Window struct {
	name     string
	lookback time.Duration
	// dayStart windows begin at 00:00 UTC of the current day instead of now-lookback.
	dayStart bool
}

var builtins = map[string]Window{
	Today: {name: Today, dayStart: true},
	Week:  {name: Week, lookback: 7 * day},
	Month: {name: Month, lookback: 30 * day},
	Year:  {name: Year, lookback: 365 * day},
}

// Defaults returns today, week and month.
func Defaults() []Window {
	return []Window{builtins[Today], builtins[Week], builtins[Month]}
}

// Parse accepts a built-in name, a day count ("90d") or a Go duration ("36h").
func Parse(name string) (Window, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if w, ok := builtins[name]; ok {
		return w, nil
	}
	if n, ok := strings.CutSuffix(name, "d"); ok {
		days, err := strconv.Atoi(n)
		if err == nil && days > 0 {
			return Window{name: name, lookback: time.Duration(days) * day}, nil
		}
	}
	d, err := time.ParseDuration(name)
	if err != nil || d <= 0 {
		return Window{}, fmt.Errorf("invalid window %q", name)
	}
	return Window{name: name, lookback: d}, nil
}

// ParseAll parses names, rejecting duplicates. An empty list yields Defaults.
func ParseAll(names []string) ([]Window, error) {
	if len(names) == 0 {
		return Defaults(), nil
	}
	out := make([]Window, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		w, err := Parse(n)
		if err != nil {
			return nil, err
		}
		if seen[w.name] {
			return nil, fmt.Errorf("duplicate window %q", w.name)
		}
		seen[w.name] = true
		out = append(out, w)
	}
	return out, nil
}

// Name returns the window name used as a result key.
func (w Window) Name() string { return w.name }

// Start returns the inclusive lower bound of the window relative to now.
func (w Window) Start(now time.Time) time.Time {
	now = now.UTC()
	if w.dayStart {
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}
	return now.Add(-w.lookback)
}
