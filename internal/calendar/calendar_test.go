package calendar

import (
	"testing"
	"time"
)

func mustBuild(t *testing.T, s Settings) Config {
	t.Helper()
	cfg, err := s.Build()
	if err != nil {
		t.Fatalf("build settings: %v", err)
	}
	return cfg
}

func dubaiSettings() Settings {
	s := DefaultSettings("Asia/Dubai")
	s.Holidays = []string{"2026-06-16", "2026-06-17", "2026-06-18"}
	return s
}

func at(t *testing.T, cfg Config, value string) time.Time {
	t.Helper()
	parsed, err := time.ParseInLocation("2006-01-02 15:04", value, cfg.Location)
	if err != nil {
		t.Fatalf("parse %q: %v", value, err)
	}
	return parsed
}

func TestIsSendableInsideBusinessHours(t *testing.T) {
	cfg := mustBuild(t, dubaiSettings())

	// Monday 2026-06-01 10:30 local, a plain working day.
	v := cfg.IsSendable(at(t, cfg, "2026-06-01 10:30"))
	if !v.Valid {
		t.Fatalf("expected sendable, got reason %q", v.Reason)
	}
}

func TestIsSendableRejectsWeekend(t *testing.T) {
	cfg := mustBuild(t, dubaiSettings())

	// Friday is a non-working day under the Sun-Thu default.
	v := cfg.IsSendable(at(t, cfg, "2026-06-05 10:00"))
	if v.Valid || v.Reason != ReasonNonWorkingDay {
		t.Fatalf("expected non-working day rejection, got %+v", v)
	}
}

func TestIsSendableRejectsHolidayAndAvoidWindow(t *testing.T) {
	cfg := mustBuild(t, dubaiSettings())

	if v := cfg.IsSendable(at(t, cfg, "2026-06-16 10:00")); v.Valid || v.Reason != ReasonHoliday {
		t.Fatalf("expected holiday rejection, got %+v", v)
	}

	// 07:00 is before the business window.
	if v := cfg.IsSendable(at(t, cfg, "2026-06-01 07:00")); v.Valid || v.Reason != ReasonOutsideHours {
		t.Fatalf("expected outside-hours rejection, got %+v", v)
	}

	// Put an avoid window inside business hours to exercise the check.
	s := dubaiSettings()
	s.AvoidWindows = append(s.AvoidWindows, AvoidWindowSetting{Label: "dhuhr", Start: "12:15", End: "12:45"})
	cfg = mustBuild(t, s)
	if v := cfg.IsSendable(at(t, cfg, "2026-06-01 12:30")); v.Valid || v.Reason != ReasonAvoidWindow {
		t.Fatalf("expected avoid-window rejection, got %+v", v)
	}
}

func TestNextSendableIsFixedPointAndMonotonic(t *testing.T) {
	s := dubaiSettings()
	s.AvoidWindows = append(s.AvoidWindows, AvoidWindowSetting{Label: "dhuhr", Start: "12:15", End: "12:45"})
	cfg := mustBuild(t, s)

	inputs := []string{
		"2026-06-01 10:30", // already valid
		"2026-06-01 07:59", // before window
		"2026-06-01 18:01", // after window
		"2026-06-01 12:20", // inside avoid window
		"2026-06-05 11:00", // Friday
		"2026-06-16 09:00", // holiday
		"2026-06-18 23:00", // holiday, late
	}

	for _, raw := range inputs {
		in := at(t, cfg, raw)
		out := cfg.NextSendable(in)

		if out.Before(in) {
			t.Fatalf("NextSendable(%s) = %s moved backwards", raw, out)
		}
		if v := cfg.IsSendable(out); !v.Valid {
			t.Fatalf("NextSendable(%s) = %s not sendable: %s", raw, out, v.Reason)
		}
		if again := cfg.NextSendable(out); !again.Equal(out) {
			t.Fatalf("NextSendable not a fixed point for %s: %s then %s", raw, out, again)
		}
	}
}

func TestNextSendableRollsThroughConsecutiveHolidays(t *testing.T) {
	// Eid-style run: Tue-Thu holidays, then Fri-Sat weekend. The first valid
	// instant is Sunday at window start.
	cfg := mustBuild(t, dubaiSettings())

	got := cfg.NextSendable(at(t, cfg, "2026-06-16 11:00"))
	want := at(t, cfg, "2026-06-21 08:00")
	if !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestNextSendableShiftsPastAvoidWindowWithBuffer(t *testing.T) {
	s := dubaiSettings()
	s.AvoidWindows = []AvoidWindowSetting{{Label: "dhuhr", Start: "12:15", End: "12:45"}}
	s.BufferMinutes = 30
	cfg := mustBuild(t, s)

	got := cfg.NextSendable(at(t, cfg, "2026-06-01 12:20"))
	want := at(t, cfg, "2026-06-01 13:15")
	if !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestNextSendableAvoidShiftCannotEscapeBusinessHours(t *testing.T) {
	// Avoid window ending at the business close: the buffered shift lands
	// after hours and must roll to the next working day instead.
	s := dubaiSettings()
	s.AvoidWindows = []AvoidWindowSetting{{Label: "late", Start: "17:30", End: "18:00"}}
	cfg := mustBuild(t, s)

	got := cfg.NextSendable(at(t, cfg, "2026-06-01 17:45"))
	want := at(t, cfg, "2026-06-02 08:00")
	if !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestNextSendableAvoidWindowWrappingMidnight(t *testing.T) {
	// Late-evening window that closes after midnight. A candidate in the
	// evening portion must be shifted to the close on the following day,
	// never backwards to the same-day clock reading of the end time.
	s := dubaiSettings()
	s.WorkEnd = "23:30"
	s.AvoidWindows = []AvoidWindowSetting{{Label: "night", Start: "23:00", End: "00:30"}}
	s.BufferMinutes = 30
	cfg := mustBuild(t, s)

	// Monday 23:10 sits inside the window; the close plus buffer is Tuesday
	// 01:00, which rolls to the Tuesday window open.
	in := at(t, cfg, "2026-03-02 23:10")
	got := cfg.NextSendable(in)
	if got.Before(in) {
		t.Fatalf("NextSendable(%s) = %s moved backwards", in, got)
	}
	want := at(t, cfg, "2026-03-03 08:00")
	if !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
	if v := cfg.IsSendable(got); !v.Valid {
		t.Fatalf("result not sendable: %s", v.Reason)
	}
	if again := cfg.NextSendable(got); !again.Equal(got) {
		t.Fatalf("not a fixed point: %s then %s", got, again)
	}
}

func TestNextSendableAvoidWindowMorningPortion(t *testing.T) {
	// The post-midnight portion of a wrapped window closes on the same day.
	s := dubaiSettings()
	s.WorkStart = "00:00"
	s.WorkEnd = "10:00"
	s.AvoidWindows = []AvoidWindowSetting{{Label: "night", Start: "23:00", End: "00:30"}}
	s.BufferMinutes = 30
	cfg := mustBuild(t, s)

	got := cfg.NextSendable(at(t, cfg, "2026-03-02 00:10"))
	want := at(t, cfg, "2026-03-02 01:00")
	if !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestBuildRejectsMalformedSettings(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"bad timezone", func(s *Settings) { s.Timezone = "Mars/Olympus" }},
		{"no working days", func(s *Settings) { s.WorkingDays = nil }},
		{"bad day name", func(s *Settings) { s.WorkingDays = []string{"sun", "noday"} }},
		{"window inverted", func(s *Settings) { s.WorkStart, s.WorkEnd = "18:00", "08:00" }},
		{"bad holiday", func(s *Settings) { s.Holidays = []string{"16-06-2026"} }},
		{"bad clock", func(s *Settings) { s.WorkStart = "8am" }},
		{"negative buffer", func(s *Settings) { s.BufferMinutes = -5 }},
	}

	for _, tc := range cases {
		s := dubaiSettings()
		tc.mutate(&s)
		if _, err := s.Build(); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		} else if _, ok := err.(*ConfigError); !ok {
			t.Fatalf("%s: expected *ConfigError, got %T", tc.name, err)
		}
	}
}

func TestCivilDateComparisonIgnoresUTCOffset(t *testing.T) {
	cfg := mustBuild(t, dubaiSettings())

	// 2026-06-15 22:00 UTC is already 2026-06-16 02:00 in Dubai, which is a
	// holiday there even though the UTC date differs.
	utc := time.Date(2026, 6, 15, 22, 0, 0, 0, time.UTC)
	next := cfg.NextSendable(utc)
	want := at(t, cfg, "2026-06-21 08:00")
	if !next.Equal(want) {
		t.Fatalf("expected %s, got %s", want, next)
	}
}
