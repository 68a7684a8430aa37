package repository

import "testing"

func TestCanTransitionOnlyMovesForward(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusScheduled, StatusSent, true},
		{StatusScheduled, StatusFailed, true},
		{StatusSent, StatusDelivered, true},
		{StatusSent, StatusFailed, true},

		// Late or replayed callbacks must not rewind a reminder.
		{StatusSent, StatusScheduled, false},
		{StatusDelivered, StatusSent, false},
		{StatusDelivered, StatusFailed, false},
		{StatusFailed, StatusSent, false},
		{StatusCancelled, StatusSent, false},

		// Replays of the same status are no-ops, not conflicts.
		{StatusSent, StatusSent, true},
		{StatusDelivered, StatusDelivered, true},
	}

	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}
