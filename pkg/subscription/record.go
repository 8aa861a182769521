package subscription

import (
	"sync"

	"nostrworker.dev/pkg/ring"
	"nostrworker.dev/pkg/wire"
)

// subscriptionRecord is one fingerprint's entry in the Engine's registry
// (spec.md §3 "Subscription record"): its buffer, the options it was
// created with, a reference count, and the reader state needed to pump
// that buffer under the shared frame budget.
type subscriptionRecord struct {
	fp     string
	buffer *ring.SubBuffer
	cursor *ring.Cursor

	mu       sync.Mutex
	options  wire.Options
	refCount int

	pending [][]byte
	paused  bool
}

func newSubscriptionRecord(fp string, buffer *ring.SubBuffer, options wire.Options) *subscriptionRecord {
	return &subscriptionRecord{
		fp:       fp,
		buffer:   buffer,
		cursor:   ring.NewCursor(buffer),
		options:  options,
		refCount: 1,
	}
}

// publishRecord is one fingerprint's entry in the publish-status registry;
// it has no refcount or reader pipeline of its own -- the caller just holds
// the buffer until it drops the handle (spec.md §3 "Publish record").
type publishRecord struct {
	fp     string
	buffer *ring.SubBuffer
}
