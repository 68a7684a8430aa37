package escalation

import "testing"

func TestFromDaysOverdueBands(t *testing.T) {
	bands := [3]int{15, 30, 60}

	cases := []struct {
		days int
		want Level
	}{
		{0, Gentle},
		{14, Gentle},
		{15, Firm},
		{29, Firm},
		{30, Urgent},
		{45, Urgent},
		{59, Urgent},
		{60, Final},
		{120, Final},
	}

	for _, tc := range cases {
		if got := FromDaysOverdue(tc.days, bands); got != tc.want {
			t.Fatalf("FromDaysOverdue(%d) = %s, want %s", tc.days, got, tc.want)
		}
	}
}

func TestParseRoundTrip(t *testing.T) {
	for _, l := range []Level{Gentle, Firm, Urgent, Final} {
		parsed, err := Parse(l.String())
		if err != nil {
			t.Fatalf("parse %s: %v", l, err)
		}
		if parsed != l {
			t.Fatalf("round trip %s != %s", parsed, l)
		}
	}

	if _, err := Parse("casual"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestOrdering(t *testing.T) {
	if !(Gentle < Firm && Firm < Urgent && Urgent < Final) {
		t.Fatal("levels must be strictly ordered")
	}
}
