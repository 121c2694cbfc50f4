package daily

import (
	"testing"
	"time"
)

func TestDateKey(t *testing.T) {
	// 23:30 in UTC-5 is already the next day in UTC.
	loc := time.FixedZone("EST", -5*3600)
	got := DateKey(time.Date(2026, 3, 14, 23, 30, 0, 0, loc))
	if got != "2026-03-15" {
		t.Errorf("DateKey = %q, want 2026-03-15", got)
	}
}

func TestIdentityIndexDeterministic(t *testing.T) {
	date := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	first := IdentityIndex(date, "salt", 50)
	for i := 0; i < 10; i++ {
		if got := IdentityIndex(date, "salt", 50); got != first {
			t.Fatalf("run %d: index = %d, want %d", i, got, first)
		}
	}
	// Time of day within the same UTC date does not matter.
	evening := time.Date(2026, 3, 14, 23, 59, 59, 0, time.UTC)
	if got := IdentityIndex(evening, "salt", 50); got != first {
		t.Errorf("same date, different hour: index = %d, want %d", got, first)
	}
}

func TestIdentityIndexInRange(t *testing.T) {
	date := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for n := 1; n <= 100; n++ {
		for d := 0; d < 30; d++ {
			idx := IdentityIndex(date.AddDate(0, 0, d), "salt", n)
			if idx < 0 || idx >= n {
				t.Fatalf("index %d out of range [0,%d)", idx, n)
			}
		}
	}
}

func TestIdentityIndexVariesAcrossDates(t *testing.T) {
	date := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	seen := map[int]bool{}
	for d := 0; d < 60; d++ {
		seen[IdentityIndex(date.AddDate(0, 0, d), "salt", 50)] = true
	}
	if len(seen) < 2 {
		t.Errorf("60 consecutive days mapped to %d distinct indexes", len(seen))
	}
}

func TestIdentityIndexEmptyRoster(t *testing.T) {
	if got := IdentityIndex(time.Now(), "salt", 0); got != 0 {
		t.Errorf("empty roster index = %d, want 0", got)
	}
}
