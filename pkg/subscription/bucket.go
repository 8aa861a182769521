package subscription

import (
	"sync"
	"time"
)

// Cold start and frame-budget tunables (spec.md §4.D/§5).
const (
	// ColdWindow is how long after module load the conservative limits
	// apply.
	ColdWindow = 2 * time.Second

	// ColdTokensPerFrame and HotTokensPerFrame bound the total number of
	// messages delivered, across every active subscription, per animation
	// frame.
	ColdTokensPerFrame = 200
	HotTokensPerFrame  = 1500

	// ColdReadBudget and HotReadBudget bound how long a single pushPending
	// pass may spend draining a subscription's buffer before yielding.
	ColdReadBudget = 4 * time.Millisecond
	HotReadBudget  = 8 * time.Millisecond

	// MaxPendingBuffer caps a subscription's local undelivered queue; once
	// reached, draining pauses until flush makes room.
	MaxPendingBuffer = 5000

	// FrameInterval stands in for requestAnimationFrame (~60Hz).
	FrameInterval = 16 * time.Millisecond

	// IdleDeadline is the requestIdleCallback-style deadline for
	// cold-start flushing. Tick does not use it: every flush, cold or hot,
	// runs on the FrameInterval ticker.
	IdleDeadline = 100 * time.Millisecond
)

// TokenBucket is the module-scope, globally shared per-frame delivery
// budget of spec.md §4.D: "A module-scope token bucket refills at the
// start of each animation frame." It is owned by one Engine and passed by
// reference to every subscription's reader, never held as a file-level
// binding (spec.md §9 "Global mutable state").
type TokenBucket struct {
	mu        sync.Mutex
	remaining int
	start     time.Time
}

// NewTokenBucket starts the cold-start clock now.
func NewTokenBucket(now time.Time) *TokenBucket {
	return &TokenBucket{start: now}
}

// Cold reports whether the bucket is still within its cold-start window as
// of now.
func (b *TokenBucket) Cold(now time.Time) bool {
	return now.Sub(b.start) < ColdWindow
}

// Refill resets the per-frame allowance based on whether now falls inside
// the cold-start window.
func (b *TokenBucket) Refill(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Cold(now) {
		b.remaining = ColdTokensPerFrame
	} else {
		b.remaining = HotTokensPerFrame
	}
}

// Take consumes up to want tokens and returns how many were actually
// granted.
func (b *TokenBucket) Take(want int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if want > b.remaining {
		want = b.remaining
	}
	if want < 0 {
		want = 0
	}
	b.remaining -= want
	return want
}

// Remaining reports the tokens left in the current frame.
func (b *TokenBucket) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remaining
}
