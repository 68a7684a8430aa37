package calendar

import "time"

// Reasons returned by IsSendable when an instant is not valid.
const (
	ReasonNonWorkingDay = "non-working day"
	ReasonHoliday       = "holiday"
	ReasonOutsideHours  = "outside business hours"
	ReasonAvoidWindow   = "prayer avoid window"
)

// Verdict is the result of a sendability check.
type Verdict struct {
	Valid  bool
	Reason string
}

// maxSteps bounds the NextSendable search. Each step either advances to the
// next calendar day or jumps past an avoid window, so even a long run of
// consecutive holidays terminates well inside the bound.
const maxSteps = 1500

// IsSendable reports whether a communication may be sent at the given
// instant. The check is performed in the organization's civil timezone.
func (c Config) IsSendable(t time.Time) Verdict {
	local := t.In(c.Location)

	if !c.workingDays[local.Weekday()] {
		return Verdict{Reason: ReasonNonWorkingDay}
	}
	if c.isHoliday(local) {
		return Verdict{Reason: ReasonHoliday}
	}

	minutes := local.Hour()*60 + local.Minute()
	if minutes < c.windowStart || minutes >= c.windowEnd {
		return Verdict{Reason: ReasonOutsideHours}
	}
	if _, in := c.inAvoidWindow(minutes); in {
		return Verdict{Reason: ReasonAvoidWindow}
	}

	return Verdict{Valid: true}
}

// NextSendable returns the earliest instant at or after t that IsSendable
// accepts under the same configuration. The result is a fixed point:
// NextSendable(NextSendable(t)) == NextSendable(t).
func (c Config) NextSendable(t time.Time) time.Time {
	cur := t.In(c.Location)

	for i := 0; i < maxSteps; i++ {
		// Roll whole days first: weekends and holidays move the candidate to
		// the next day's window start, and the new day is re-checked because
		// consecutive holidays are common around Eid.
		if !c.workingDays[cur.Weekday()] || c.isHoliday(cur) {
			cur = c.windowOpenOn(cur.AddDate(0, 0, 1))
			continue
		}

		minutes := cur.Hour()*60 + cur.Minute()
		if minutes < c.windowStart {
			cur = c.windowOpenOn(cur)
			continue
		}
		if minutes >= c.windowEnd {
			cur = c.windowOpenOn(cur.AddDate(0, 0, 1))
			continue
		}

		if w, in := c.inAvoidWindow(minutes); in {
			// Shift past the window end plus the buffer; the loop re-checks
			// business hours so the shift cannot land outside the window
			// unnoticed.
			day := cur
			if w.start > w.end && minutes >= w.start {
				// The window wraps midnight and the candidate sits in its
				// evening portion, so the window closes on the next day.
				day = cur.AddDate(0, 0, 1)
			}
			cur = c.atMinutes(day, w.end).Add(c.buffer)
			continue
		}

		return cur
	}

	return cur
}

// NextSendableAfter clamps a naive target instant forward through the
// calendar. It is a convenience for "lastSentAt + delay" arithmetic.
func (c Config) NextSendableAfter(base time.Time, delay time.Duration) time.Time {
	return c.NextSendable(base.Add(delay))
}

func (c Config) isHoliday(local time.Time) bool {
	_, ok := c.holidays[local.Format("2006-01-02")]
	return ok
}

func (c Config) inAvoidWindow(minutes int) (avoidWindow, bool) {
	for _, w := range c.avoid {
		if w.start < w.end {
			if minutes >= w.start && minutes < w.end {
				return w, true
			}
		} else {
			// Window crosses midnight.
			if minutes >= w.start || minutes < w.end {
				return w, true
			}
		}
	}
	return avoidWindow{}, false
}

// windowOpenOn returns the business window opening on the given day.
func (c Config) windowOpenOn(day time.Time) time.Time {
	return c.atMinutes(day, c.windowStart)
}

func (c Config) atMinutes(day time.Time, minutes int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), minutes/60, minutes%60, 0, 0, c.Location)
}
