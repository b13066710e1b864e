package discovery

import (
	"testing"
	"time"
)

func TestIsEasternDSTBoundaries(t *testing.T) {
	cases := []struct {
		name string
		t    time.Time
		want bool
	}{
		{"mid-january", time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC), false},
		{"mid-july", time.Date(2026, 7, 15, 12, 0, 0, 0, time.UTC), true},
		{"just-before-march-start", time.Date(2026, 3, 8, 6, 59, 0, 0, time.UTC), false},
		{"just-after-march-start", time.Date(2026, 3, 8, 7, 1, 0, 0, time.UTC), true},
		{"just-before-november-end", time.Date(2026, 11, 1, 5, 59, 0, 0, time.UTC), true},
		{"just-after-november-end", time.Date(2026, 11, 1, 6, 1, 0, 0, time.UTC), false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := isEasternDST(c.t); got != c.want {
				t.Errorf("isEasternDST(%v) = %v, want %v", c.t, got, c.want)
			}
		})
	}
}

func TestEasternOffset(t *testing.T) {
	summer := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	if got := EasternOffset(summer); got != -4*time.Hour {
		t.Errorf("summer offset = %v, want -4h", got)
	}
	winter := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := EasternOffset(winter); got != -5*time.Hour {
		t.Errorf("winter offset = %v, want -5h", got)
	}
}

func TestNthSundayOfMonth(t *testing.T) {
	// 2026-03-01 is a Sunday, so the second Sunday is 2026-03-08.
	got := nthSundayOfMonth(2026, time.March, 2)
	want := time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("nthSundayOfMonth = %v, want %v", got, want)
	}
}
