package subscription

import "time"

// Tick runs one animation-frame step for every active subscription: refill
// the shared token bucket, budgeted-drain each subscription's buffer into
// its local pending queue, then flush up to the bucket's remaining
// allowance (spec.md §4.D "Reader"). It is called by the internal ticker
// loop started by Start, but is exported so tests can drive frames
// deterministically instead of waiting on a real 16ms ticker.
func (e *Engine) Tick(now time.Time) {
	e.bucket.Refill(now)
	budget := ColdReadBudget
	if !e.bucket.Cold(now) {
		budget = HotReadBudget
	}

	e.mu.Lock()
	recs := make([]*subscriptionRecord, 0, len(e.subs))
	for _, r := range e.subs {
		recs = append(recs, r)
	}
	e.mu.Unlock()

	for _, rec := range recs {
		e.pumpOne(rec, budget)
	}
}

// pumpOne drains rec under budget and delivers as many pending messages as
// the shared bucket still has tokens for this frame.
func (e *Engine) pumpOne(rec *subscriptionRecord, budget time.Duration) {
	rec.mu.Lock()
	pushPending(rec, budget)
	toDeliver := e.bucket.Take(len(rec.pending))
	var delivered [][]byte
	if toDeliver > 0 {
		delivered = rec.pending[:toDeliver]
		rec.pending = rec.pending[toDeliver:]
	}
	fp := rec.fp
	rec.mu.Unlock()

	topic := SubscriptionTopic(fp)
	for _, msg := range delivered {
		e.listeners.dispatch(topic, msg)
	}
}

// pushPending drains rec's cursor into rec.pending one message at a time,
// stopping either when the buffer runs dry, the local queue hits
// MaxPendingBuffer (pausing further reads until flush makes room; unread
// messages stay in the buffer, nothing is dropped), or budget has been exceeded and
// the call yields to let the frame loop move on (spec.md §4.D: "if the
// budget is exhausted it yields ... and continues"). Caller holds rec.mu.
func pushPending(rec *subscriptionRecord, budget time.Duration) {
	if len(rec.pending) >= MaxPendingBuffer {
		rec.paused = true
		return
	}
	rec.paused = false

	deadline := time.Now().Add(budget)
	const checkEvery = 32
	count := 0
	for {
		msg, ok := rec.cursor.Next()
		if !ok {
			break
		}
		rec.pending = append(rec.pending, msg)
		count++
		if len(rec.pending) >= MaxPendingBuffer {
			// the queue is full: stop reading. Messages are appended one
			// at a time, so the queue never exceeds the cap and overflow
			// is zero here; no queued entry is dropped.
			overflow := len(rec.pending) - MaxPendingBuffer
			if overflow > 0 {
				rec.pending = rec.pending[overflow:]
			}
			break
		}
		if count%checkEvery == 0 && time.Now().After(deadline) {
			break
		}
	}
}
