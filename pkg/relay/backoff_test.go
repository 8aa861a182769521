package relay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDelayGrowsAndCaps(t *testing.T) {
	p := NewBackoffPolicy()
	p.Jitter = 0 // isolate growth from jitter for this assertion

	d0 := p.delay(0)
	d1 := p.delay(1)
	assert.Greater(t, d1, d0)

	dMax := p.delay(50)
	assert.LessOrEqual(t, dMax, p.Max+1)
	assert.GreaterOrEqual(t, dMax, p.Max-1)
}

func TestBackoffJitterStaysInBounds(t *testing.T) {
	p := NewBackoffPolicy()
	for i := 0; i < 100; i++ {
		d := p.delay(0)
		lower := time.Duration(float64(p.Base) * (1 - p.Jitter) * 0.99)
		upper := time.Duration(float64(p.Base) * (1 + p.Jitter) * 1.01)
		assert.GreaterOrEqual(t, d, lower)
		assert.LessOrEqual(t, d, upper)
	}
}

func TestExhausted(t *testing.T) {
	p := NewBackoffPolicy()
	assert.False(t, p.exhausted(0))
	assert.False(t, p.exhausted(p.MaxAttempts-1))
	assert.True(t, p.exhausted(p.MaxAttempts))
}
