package shared

import "testing"

func TestValidatePeriodTransition(t *testing.T) {
	cases := []struct {
		from, to string
		override bool
		ok       bool
	}{
		{PeriodStatusOpen, PeriodStatusClosed, false, true},
		{PeriodStatusOpen, PeriodStatusLocked, false, true},
		{PeriodStatusClosed, PeriodStatusOpen, false, true},
		{PeriodStatusClosed, PeriodStatusLocked, false, true},
		{PeriodStatusLocked, PeriodStatusOpen, true, false},
		{PeriodStatusLocked, PeriodStatusClosed, false, false},
		{PeriodStatusLocked, PeriodStatusClosed, true, true},
		{PeriodStatusOpen, PeriodStatusOpen, false, false},
	}
	for _, tc := range cases {
		err := ValidatePeriodTransition(tc.from, tc.to, tc.override)
		if tc.ok && err != nil {
			t.Fatalf("%s -> %s: unexpected error %v", tc.from, tc.to, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("%s -> %s: expected rejection", tc.from, tc.to)
		}
	}
	if PeriodAcceptsPostings(PeriodStatusClosed) || PeriodAcceptsPostings(PeriodStatusLocked) {
		t.Fatal("closed and locked periods must not accept postings")
	}
}
