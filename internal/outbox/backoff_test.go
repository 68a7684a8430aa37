package outbox

import (
	"testing"
	"time"
)

func TestBackoffDoublesAndCaps(t *testing.T) {
	base := 5 * time.Minute
	cap := 4 * time.Hour

	cases := []struct {
		retry int
		want  time.Duration
	}{
		{0, 5 * time.Minute},
		{1, 10 * time.Minute},
		{2, 20 * time.Minute},
		{3, 40 * time.Minute},
		{4, 80 * time.Minute},
		{5, 160 * time.Minute},
		{6, 4 * time.Hour},
		{20, 4 * time.Hour},
		{-1, 5 * time.Minute},
	}

	for _, tc := range cases {
		if got := Backoff(tc.retry, base, cap); got != tc.want {
			t.Fatalf("Backoff(%d) = %s, want %s", tc.retry, got, tc.want)
		}
	}
}

func TestBackoffBaseAboveCap(t *testing.T) {
	if got := Backoff(0, time.Hour, time.Minute); got != time.Minute {
		t.Fatalf("expected cap, got %s", got)
	}
}
