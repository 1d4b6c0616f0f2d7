package hub

import (
	"sync"
	"time"
)

// admissionLimiter caps connection attempts per user within a rolling
// window, protecting the registry from reconnect storms.
type admissionLimiter struct {
	mu       sync.Mutex
	window   time.Duration
	ceiling  int
	attempts map[string][]time.Time
}

func newAdmissionLimiter(ceiling int, window time.Duration) *admissionLimiter {
	if ceiling <= 0 {
		ceiling = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &admissionLimiter{
		window:   window,
		ceiling:  ceiling,
		attempts: make(map[string][]time.Time),
	}
}

// allow records one attempt for userID and reports whether it stays within
// the ceiling for the trailing window.
func (l *admissionLimiter) allow(userID string) bool {
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	recent := l.attempts[userID][:0]
	for _, t := range l.attempts[userID] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	recent = append(recent, now)
	l.attempts[userID] = recent

	return len(recent) <= l.ceiling
}

// prune drops users whose entire attempt history has aged out of the window.
func (l *admissionLimiter) prune() {
	cutoff := time.Now().Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	for userID, times := range l.attempts {
		live := times[:0]
		for _, t := range times {
			if t.After(cutoff) {
				live = append(live, t)
			}
		}
		if len(live) == 0 {
			delete(l.attempts, userID)
		} else {
			l.attempts[userID] = live
		}
	}
}
