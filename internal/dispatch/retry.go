package dispatch

import (
	"math/rand/v2"
	"time"
)

// Backoff returns the exponential backoff delay for the given attempt (1-based)
// with random jitter of up to ±25%. The delay doubles per attempt, starting at
// base and never exceeding cap.
func Backoff(base, cap time.Duration, attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	// Cap attempt to avoid overflow in bit shift.
	if attempt > 30 {
		attempt = 30
	}

	backoff := base * time.Duration(1<<uint(attempt-1))
	if backoff > cap || backoff <= 0 {
		backoff = cap
	}

	// Jitter: -25% to +25%.
	jitter := time.Duration(rand.Int64N(int64(backoff)/2)) - backoff/4
	return backoff + jitter
}
