package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDelayDoubles(t *testing.T) {
	base := time.Second
	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second, // 32s capped
	}
	for i, expected := range want {
		assert.Equal(t, expected, backoffDelay(i+1, base), "attempt %d", i+1)
	}
}

func TestBackoffDelayCap(t *testing.T) {
	assert.Equal(t, maxReconnectDelay, backoffDelay(20, time.Second))
	assert.Equal(t, maxReconnectDelay, backoffDelay(500, time.Second))
}

func TestBackoffDelayDefaults(t *testing.T) {
	assert.Equal(t, time.Second, backoffDelay(0, 0))
	assert.Equal(t, 250*time.Millisecond, backoffDelay(1, 250*time.Millisecond))
}

func TestReconnectDelayJitterBounds(t *testing.T) {
	base := 500 * time.Millisecond
	for attempt := 1; attempt <= 8; attempt++ {
		exp := backoffDelay(attempt, base)
		for i := 0; i < 50; i++ {
			d := reconnectDelay(attempt, base)
			assert.GreaterOrEqual(t, d, exp)
			assert.LessOrEqual(t, d, maxReconnectDelay)
			assert.Less(t, d-exp, maxJitter+time.Millisecond)
		}
	}
}
