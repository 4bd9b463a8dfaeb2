package timezone

import (
	"testing"
	"time"
)

func TestDay(t *testing.T) {
	in := time.Date(2025, 6, 1, 23, 30, 0, 0, time.UTC)
	got := Day(in)

	if got.Hour() != 0 || got.Minute() != 0 {
		t.Fatalf("expected midnight, got %s", got)
	}
	if got.Location() != Location {
		t.Fatalf("expected portal timezone, got %s", got.Location())
	}
	// 23:30 UTC is already the next day in UTC+8
	if got.Day() != 2 {
		t.Fatalf("expected day rollover to the 2nd, got %d", got.Day())
	}
}
