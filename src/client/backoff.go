package client

import (
	"math/rand"
	"time"
)

const (
	maxReconnectDelay = 30 * time.Second
	maxJitter         = time.Second
)

// backoffDelay returns the pre-jitter exponential delay for the given
// reconnect attempt: base * 2^(attempt-1), capped at 30 seconds.
func backoffDelay(attempt int, base time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if base <= 0 {
		base = time.Second
	}
	// Shift guard: past 30 doublings any sane base is over the cap.
	if attempt-1 > 30 {
		return maxReconnectDelay
	}
	d := base << (attempt - 1)
	if d <= 0 || d > maxReconnectDelay {
		return maxReconnectDelay
	}
	return d
}

// reconnectDelay adds 0-1000ms of random jitter to the exponential delay
// so synchronized clients do not retry in lockstep. The total stays within
// the 30 second cap.
func reconnectDelay(attempt int, base time.Duration) time.Duration {
	d := backoffDelay(attempt, base) + time.Duration(rand.Int63n(int64(maxJitter)))
	if d > maxReconnectDelay {
		d = maxReconnectDelay
	}
	return d
}
