package vesting

import (
	"testing"
	"time"
)

func testStream(total int64, start, end, cliff time.Time) Stream {
	return Stream{Total: total, Start: start, End: end, Cliff: cliff}
}

func TestVestedAt(t *testing.T) {
	start := time.Unix(1_000_000, 0).UTC()
	end := start.Add(1000 * time.Second)
	cliff := start.Add(200 * time.Second)

	s := testStream(100, start, end, cliff)

	testCases := []struct {
		name string
		at   time.Time
		want int64
	}{
		{"before start", start.Add(-time.Second), 0},
		{"at start, before cliff", start, 0},
		{"before cliff", start.Add(100 * time.Second), 0},
		{"at cliff", cliff, 20},
		{"midway", start.Add(500 * time.Second), 50},
		{"floor division", start.Add(307 * time.Second), 30},
		{"at end", end, 100},
		{"after end", end.Add(time.Hour), 100},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := s.VestedAt(tc.at); got != tc.want {
				t.Errorf("VestedAt = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestVestedAt_Monotonic(t *testing.T) {
	start := time.Unix(1_000_000, 0).UTC()
	s := testStream(1_234_567, start, start.Add(9999*time.Second), start.Add(777*time.Second))

	prev := int64(-1)
	for sec := -100; sec <= 10_500; sec += 13 {
		v := s.VestedAt(start.Add(time.Duration(sec) * time.Second))
		if v < prev {
			t.Fatalf("VestedAt decreased at +%ds: %d < %d", sec, v, prev)
		}
		prev = v
	}
	if prev != s.Total {
		t.Errorf("VestedAt after end = %d, want total %d", prev, s.Total)
	}
}

func TestVestedAt_NoCliff(t *testing.T) {
	start := time.Unix(1_000_000, 0).UTC()
	s := testStream(1000, start, start.Add(100*time.Second), time.Time{})

	if got := s.VestedAt(start.Add(time.Second)); got != 10 {
		t.Errorf("VestedAt without cliff = %d, want 10", got)
	}
}

func TestClaimableAt(t *testing.T) {
	start := time.Unix(1_000_000, 0).UTC()
	s := testStream(100, start, start.Add(1000*time.Second), start.Add(200*time.Second))
	s.Claimed = 20

	if got := s.ClaimableAt(start.Add(500 * time.Second)); got != 30 {
		t.Errorf("ClaimableAt = %d, want 30", got)
	}
	if got := s.ClaimableAt(start.Add(100 * time.Second)); got != 0 {
		t.Errorf("ClaimableAt before cliff = %d, want 0", got)
	}

	s.Cancelled = true
	if got := s.ClaimableAt(start.Add(900 * time.Second)); got != 0 {
		t.Errorf("ClaimableAt after cancel = %d, want 0", got)
	}
}

func TestProgressAt(t *testing.T) {
	start := time.Unix(1_000_000, 0).UTC()
	s := testStream(300, start, start.Add(1000*time.Second), time.Time{})

	testCases := []struct {
		at   time.Time
		want int
	}{
		{start.Add(-time.Minute), 0},
		{start.Add(333 * time.Second), 33},
		{start.Add(500 * time.Second), 50},
		{start.Add(2000 * time.Second), 100},
	}
	for _, tc := range testCases {
		if got := s.ProgressAt(tc.at); got != tc.want {
			t.Errorf("ProgressAt(%v) = %d, want %d", tc.at, got, tc.want)
		}
	}

	if got := (Stream{}).ProgressAt(start); got != 0 {
		t.Errorf("ProgressAt on zero stream = %d", got)
	}
}
