// Package display turns ledger timestamps and durations into text.
package display

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// FormatTime renders a Unix-millisecond timestamp as HH:MM local time.
func FormatTime(ms int64) string {
	return FormatTimeIn(ms, time.Local)
}

// FormatTimeIn renders a Unix-millisecond timestamp as HH:MM in loc.
func FormatTimeIn(ms int64, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return time.UnixMilli(ms).In(loc).Format("15:04")
}

// FormatDuration renders milliseconds compactly: "12h", "1h05m", "10m", "1m05s", "45s".
// Only the two largest units are shown and hours do not wrap into days.
func FormatDuration(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	total := ms / 1000
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60

	switch {
	case hours >= 10:
		return fmt.Sprintf("%dh", hours)
	case hours > 0:
		return fmt.Sprintf("%dh%02dm", hours, minutes)
	case minutes >= 10:
		return fmt.Sprintf("%dm", minutes)
	case minutes > 0:
		return fmt.Sprintf("%dm%02ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}

// FormatAgo renders a timestamp relative to now, such as "3 minutes ago".
func FormatAgo(ms int64, now time.Time) string {
	return humanize.RelTime(time.UnixMilli(ms), now, "ago", "from now")
}

// LoadLocation resolves a configured zone name. Empty and "Local" mean the host zone.
func LoadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", name, err)
	}
	return loc, nil
}

// Formatter applies the configured zone and relative-time preference.
type Formatter struct {
	Location *time.Location
	Relative bool
	Now      func() time.Time
}

// Time renders ms as HH:MM, followed by a relative hint when enabled.
func (f Formatter) Time(ms int64) string {
	out := FormatTimeIn(ms, f.Location)
	if !f.Relative {
		return out
	}
	now := time.Now
	if f.Now != nil {
		now = f.Now
	}
	return out + " (" + FormatAgo(ms, now()) + ")"
}

// Clock renders ms as HH:MM only.
func (f Formatter) Clock(ms int64) string {
	return FormatTimeIn(ms, f.Location)
}

// Day renders the calendar date of ms.
func (f Formatter) Day(ms int64) string {
	loc := f.Location
	if loc == nil {
		loc = time.Local
	}
	return time.UnixMilli(ms).In(loc).Format("2006-01-02")
}
