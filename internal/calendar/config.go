// Package calendar decides when outbound communications may be sent under
// UAE business norms: working days, business hours, public and Islamic
// holidays, and recurring prayer-time avoid windows. It is a pure library
// with no persistence or transport dependencies.
package calendar

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ConfigError reports a malformed organization calendar configuration.
// The engine skips the organization and records the error; other
// organizations in the same run proceed.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("calendar config: %s: %s", e.Field, e.Reason)
}

// AvoidWindowSetting is a recurring daily window during which sends are
// suppressed, e.g. Maghrib or Isha prayer times. Times are "HH:MM" in the
// organization's civil timezone.
type AvoidWindowSetting struct {
	Label string `json:"label"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// Settings is the raw, serializable calendar configuration as stored per
// organization. Build validates it into an operational Config.
type Settings struct {
	Timezone      string               `json:"timezone"`
	WorkingDays   []string             `json:"workingDays"`
	WorkStart     string               `json:"workStart"`
	WorkEnd       string               `json:"workEnd"`
	Holidays      []string             `json:"holidays"`
	AvoidWindows  []AvoidWindowSetting `json:"avoidWindows"`
	BufferMinutes int                  `json:"bufferMinutes"`
}

// DefaultSettings returns the UAE defaults: Sunday through Thursday,
// 08:00-18:00, Maghrib and Isha avoid windows, 30 minute buffer.
// Holiday dates shift yearly and must be supplied as data.
func DefaultSettings(timezone string) Settings {
	if timezone == "" {
		timezone = "Asia/Dubai"
	}
	return Settings{
		Timezone:    timezone,
		WorkingDays: []string{"sun", "mon", "tue", "wed", "thu"},
		WorkStart:   "08:00",
		WorkEnd:     "18:00",
		AvoidWindows: []AvoidWindowSetting{
			{Label: "maghrib", Start: "18:00", End: "19:00"},
			{Label: "isha", Start: "19:30", End: "20:30"},
		},
		BufferMinutes: 30,
	}
}

// avoidWindow is a parsed recurring window in minutes since midnight.
// End may be less than Start for windows crossing midnight.
type avoidWindow struct {
	label string
	start int
	end   int
}

// Config is a validated calendar ready for sendability checks. All time
// arithmetic happens in Location; holiday membership is keyed by the civil
// date string to avoid offset-related off-by-one-day errors.
type Config struct {
	Location    *time.Location
	workingDays map[time.Weekday]bool
	windowStart int // minutes since midnight
	windowEnd   int
	holidays    map[string]struct{} // "2006-01-02"
	avoid       []avoidWindow
	buffer      time.Duration
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday,
	"wed": time.Wednesday, "thu": time.Thursday, "fri": time.Friday,
	"sat": time.Saturday,
}

// Build validates the settings and produces an operational Config.
func (s Settings) Build() (Config, error) {
	tz := s.Timezone
	if tz == "" {
		tz = "Asia/Dubai"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return Config{}, &ConfigError{Field: "timezone", Reason: err.Error()}
	}

	if len(s.WorkingDays) == 0 {
		return Config{}, &ConfigError{Field: "workingDays", Reason: "at least one working day is required"}
	}
	days := make(map[time.Weekday]bool, len(s.WorkingDays))
	for _, raw := range s.WorkingDays {
		wd, ok := weekdayNames[strings.ToLower(strings.TrimSpace(raw))]
		if !ok {
			return Config{}, &ConfigError{Field: "workingDays", Reason: "unknown day " + raw}
		}
		days[wd] = true
	}

	start, err := parseClock(s.WorkStart)
	if err != nil {
		return Config{}, &ConfigError{Field: "workStart", Reason: err.Error()}
	}
	end, err := parseClock(s.WorkEnd)
	if err != nil {
		return Config{}, &ConfigError{Field: "workEnd", Reason: err.Error()}
	}
	if start >= end {
		return Config{}, &ConfigError{Field: "workEnd", Reason: "business window must end after it starts"}
	}

	holidays := make(map[string]struct{}, len(s.Holidays))
	for _, raw := range s.Holidays {
		d := strings.TrimSpace(raw)
		if _, err := time.ParseInLocation("2006-01-02", d, loc); err != nil {
			return Config{}, &ConfigError{Field: "holidays", Reason: "bad date " + raw}
		}
		holidays[d] = struct{}{}
	}

	windows := make([]avoidWindow, 0, len(s.AvoidWindows))
	for _, w := range s.AvoidWindows {
		ws, err := parseClock(w.Start)
		if err != nil {
			return Config{}, &ConfigError{Field: "avoidWindows", Reason: w.Label + ": " + err.Error()}
		}
		we, err := parseClock(w.End)
		if err != nil {
			return Config{}, &ConfigError{Field: "avoidWindows", Reason: w.Label + ": " + err.Error()}
		}
		if ws == we {
			return Config{}, &ConfigError{Field: "avoidWindows", Reason: w.Label + ": empty window"}
		}
		windows = append(windows, avoidWindow{label: w.Label, start: ws, end: we})
	}
	sort.Slice(windows, func(i, j int) bool { return windows[i].start < windows[j].start })

	buffer := time.Duration(s.BufferMinutes) * time.Minute
	if s.BufferMinutes < 0 {
		return Config{}, &ConfigError{Field: "bufferMinutes", Reason: "must not be negative"}
	}
	if s.BufferMinutes == 0 {
		buffer = 30 * time.Minute
	}

	return Config{
		Location:    loc,
		workingDays: days,
		windowStart: start,
		windowEnd:   end,
		holidays:    holidays,
		avoid:       windows,
		buffer:      buffer,
	}, nil
}

// WindowStartClock returns the business window opening as "HH:MM".
func (c Config) WindowStartClock() string {
	return fmt.Sprintf("%02d:%02d", c.windowStart/60, c.windowStart%60)
}

// WindowEndClock returns the business window close as "HH:MM".
func (c Config) WindowEndClock() string {
	return fmt.Sprintf("%02d:%02d", c.windowEnd/60, c.windowEnd%60)
}

func parseClock(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	t, err := time.Parse("15:04", raw)
	if err != nil {
		return 0, fmt.Errorf("expected HH:MM, got %q", raw)
	}
	return t.Hour()*60 + t.Minute(), nil
}
