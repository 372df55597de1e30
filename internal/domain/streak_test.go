package domain

import (
	"testing"
	"time"
)

func TestDayOf(t *testing.T) {
	// Late evening in a +13 zone is already the next UTC day.
	loc := time.FixedZone("NZDT", 13*3600)
	stamp := time.Date(2026, 3, 14, 23, 30, 0, 0, loc)

	got := DayOf(stamp)
	want := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("DayOf() = %v, want %v", got, want)
	}
	if got.Hour() != 0 || got.Minute() != 0 {
		t.Errorf("DayOf() not truncated to midnight: %v", got)
	}
}

func TestDaysBetween(t *testing.T) {
	day := func(d int) time.Time {
		return time.Date(2026, 3, d, 15, 4, 5, 0, time.UTC)
	}

	tests := []struct {
		a, b time.Time
		want int
	}{
		{day(1), day(1), 0},
		{day(1), day(2), 1},
		{day(1), day(5), 4},
		{day(5), day(1), -4},
	}
	for _, tt := range tests {
		if got := DaysBetween(tt.a, tt.b); got != tt.want {
			t.Errorf("DaysBetween(%v, %v) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestHasFired(t *testing.T) {
	s := StreakState{FiredMilestones: []int{7, 30}}
	if !s.HasFired(7) {
		t.Error("HasFired(7) = false, want true")
	}
	if s.HasFired(100) {
		t.Error("HasFired(100) = true, want false")
	}
	if (StreakState{}).HasFired(7) {
		t.Error("zero state HasFired(7) = true, want false")
	}
}
