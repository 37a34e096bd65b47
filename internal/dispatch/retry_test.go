package dispatch

import (
	"testing"
	"time"
)

func TestBackoffZeroAttempt(t *testing.T) {
	if got := Backoff(time.Second, 10*time.Second, 0); got != 0 {
		t.Errorf("expected 0 for attempt 0, got %v", got)
	}
}

func TestBackoffGrowsExponentially(t *testing.T) {
	base := 100 * time.Millisecond
	cap := time.Minute

	for attempt := 1; attempt <= 5; attempt++ {
		// Expected center: 2^(attempt-1) * base, jitter ±25%.
		center := base * time.Duration(1<<uint(attempt-1))
		min := center * 3 / 4
		max := center * 5 / 4

		got := Backoff(base, cap, attempt)
		if got < min || got > max {
			t.Errorf("attempt %d: expected backoff in [%v, %v], got %v", attempt, min, max, got)
		}
	}
}

func TestBackoffRespectsCap(t *testing.T) {
	base := time.Second
	cap := 10 * time.Second

	for attempt := 5; attempt <= 40; attempt += 5 {
		got := Backoff(base, cap, attempt)
		// Cap plus max jitter.
		if got > cap*5/4 {
			t.Errorf("attempt %d: backoff %v exceeds cap %v (+jitter)", attempt, got, cap)
		}
		if got < cap*3/4 {
			t.Errorf("attempt %d: backoff %v below capped center %v (-jitter)", attempt, got, cap)
		}
	}
}
