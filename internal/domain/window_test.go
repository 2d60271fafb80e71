package domain

import (
	"errors"
	"testing"
	"time"
)

func TestTimeWindowValidate(t *testing.T) {
	base := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	valid := TimeWindow{Start: base.Add(-time.Hour), End: base}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid window rejected: %v", err)
	}
	empty := TimeWindow{Start: base, End: base}
	if err := empty.Validate(); !errors.Is(err, ErrInvalidConfiguration) {
		t.Fatalf("expected empty window rejected, got %v", err)
	}
	inverted := TimeWindow{Start: base, End: base.Add(-time.Hour)}
	if err := inverted.Validate(); !errors.Is(err, ErrInvalidConfiguration) {
		t.Fatalf("expected inverted window rejected, got %v", err)
	}
}

func TestTimeWindowBoundsOpenStartClosedEnd(t *testing.T) {
	base := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	w := TimeWindow{Start: base.Add(-time.Hour), End: base}
	if w.Contains(w.Start) {
		t.Fatal("start boundary must be excluded")
	}
	if !w.Contains(w.End) {
		t.Fatal("end boundary must be included")
	}
	if !w.Contains(base.Add(-30 * time.Minute)) {
		t.Fatal("interior point must be included")
	}
}

func TestBucketSpanPolicy(t *testing.T) {
	base := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		length time.Duration
		want   time.Duration
	}{
		{time.Hour, 30 * time.Minute},
		{6 * time.Hour, 30 * time.Minute},
		{24 * time.Hour, 30 * time.Minute},
		{25 * time.Hour, 24 * time.Hour},
		{168 * time.Hour, 24 * time.Hour},
	}
	for _, tc := range cases {
		w := TimeWindow{Start: base.Add(-tc.length), End: base}
		if got := BucketSpan(w); got != tc.want {
			t.Fatalf("BucketSpan(%v) = %v, want %v", tc.length, got, tc.want)
		}
	}
}

func TestAlignedWindowEndingSnapsToQuantum(t *testing.T) {
	base := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	a := AlignedWindowEnding(base.Add(3*time.Second), time.Hour)
	b := AlignedWindowEnding(base.Add(29*time.Second+999*time.Millisecond), time.Hour)
	if !a.End.Equal(b.End) || !a.Start.Equal(b.Start) {
		t.Fatalf("captures inside one quantum must derive equal windows: %+v vs %+v", a, b)
	}
	if !a.End.Equal(base) {
		t.Fatalf("expected end snapped to %v, got %v", base, a.End)
	}
	if a.Duration() != time.Hour {
		t.Fatalf("span must stay exact, got %v", a.Duration())
	}

	c := AlignedWindowEnding(base.Add(30*time.Second), time.Hour)
	if c.End.Equal(a.End) {
		t.Fatalf("a capture past the quantum must advance the window")
	}
}

func TestPresetDuration(t *testing.T) {
	if d, ok := PresetDuration("168h"); !ok || d != 168*time.Hour {
		t.Fatalf("expected 168h preset, got %v %v", d, ok)
	}
	if _, ok := PresetDuration("13h"); ok {
		t.Fatal("unknown preset must not resolve")
	}
}
