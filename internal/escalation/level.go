// Package escalation defines the ordered tone tiers used by follow-up
// sequences and consolidated reminders.
package escalation

import (
	"fmt"
	"strings"
)

// Level is an ordered urgency tier. Higher values are more severe; sequence
// steps must never de-escalate.
type Level int

const (
	Gentle Level = iota + 1
	Firm
	Urgent
	Final
)

var names = map[Level]string{
	Gentle: "gentle",
	Firm:   "firm",
	Urgent: "urgent",
	Final:  "final",
}

func (l Level) String() string {
	if name, ok := names[l]; ok {
		return name
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// Valid reports whether l is a known tier.
func (l Level) Valid() bool {
	_, ok := names[l]
	return ok
}

// Parse converts a stored level name back to a Level.
func Parse(raw string) (Level, error) {
	for l, name := range names {
		if strings.EqualFold(raw, name) {
			return l, nil
		}
	}
	return 0, fmt.Errorf("unknown escalation level %q", raw)
}

// FromDaysOverdue maps days past due onto a tier using the organization's
// band bounds: below bands[0] is gentle, below bands[1] firm, below
// bands[2] urgent, everything above final. Bounds are configuration, not
// logic; organizations disagree on the exact cutoffs.
func FromDaysOverdue(days int, bands [3]int) Level {
	switch {
	case days < bands[0]:
		return Gentle
	case days < bands[1]:
		return Firm
	case days < bands[2]:
		return Urgent
	default:
		return Final
	}
}
