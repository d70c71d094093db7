package session

import (
	"testing"
	"time"
)

func TestTrackerStaleOnlyWhenStrictlyNewer(t *testing.T) {
	var tr Tracker
	t0 := time.Unix(1000, 0)

	if tr.Check(t0.Add(time.Hour), t0.Add(time.Hour)) != CauseNone {
		t.Fatalf("no run yet, nothing can be stale")
	}
	tr.Record(t0, t0)
	if got := tr.Check(t0, t0); got != CauseNone {
		t.Fatalf("equal stamps must not be stale, got %q", got)
	}
	if got := tr.Check(t0.Add(-time.Second), t0); got != CauseNone {
		t.Fatalf("older stamps must not be stale, got %q", got)
	}
	if got := tr.Check(t0, t0.Add(time.Millisecond)); got != CauseRoutes {
		t.Fatalf("expected routes cause, got %q", got)
	}
	if got := tr.Check(t0.Add(time.Millisecond), t0.Add(time.Millisecond)); got != CauseFactors {
		t.Fatalf("factors are checked first, got %q", got)
	}
}

func TestTrackerZeroRecordedStampNeverStale(t *testing.T) {
	var tr Tracker
	tr.Record(time.Time{}, time.Unix(5, 0))
	if got := tr.Check(time.Unix(100, 0), time.Unix(5, 0)); got != CauseNone {
		t.Fatalf("zero recorded factor stamp cannot go stale, got %q", got)
	}
}

func TestTrackerFiresAgainAfterRerun(t *testing.T) {
	var tr Tracker
	t0 := time.Unix(1000, 0)
	tr.Record(t0, t0)
	if tr.Check(t0.Add(time.Second), t0) != CauseFactors {
		t.Fatalf("expected first stale")
	}
	tr.Record(t0.Add(time.Second), t0)
	if tr.Check(t0.Add(time.Second), t0) != CauseNone {
		t.Fatalf("re-record must clear staleness")
	}
	if tr.Check(t0.Add(2*time.Second), t0) != CauseFactors {
		t.Fatalf("cause should fire again on the next change")
	}
}

func TestCauseNotices(t *testing.T) {
	if CauseFactors.Notice() != "Factors changed since last run. Run the simulation again." {
		t.Fatalf("unexpected factors notice")
	}
	if CauseRoutes.Notice() != "Routes changed since last run. Run the simulation again." {
		t.Fatalf("unexpected routes notice")
	}
	if CauseNone.Notice() != "" {
		t.Fatalf("none has no notice")
	}
}
