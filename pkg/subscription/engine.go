// Package subscription implements the UI-facing SubscriptionEngine of
// spec.md §4.D: a fingerprinted, reference-counted subscription registry,
// a publish-status registry, and a per-subscription delivery pipeline that
// drains each subscription's buffer under a globally shared, per-frame
// token budget so no amount of relay traffic can starve the host's render
// loop.
package subscription

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"lol.mleku.dev/chk"

	"nostrworker.dev/pkg/fingerprint"
	"nostrworker.dev/pkg/mesh"
	"nostrworker.dev/pkg/ring"
	"nostrworker.dev/pkg/wire"
)

// DefaultEventLimit is the totalEventLimit CalculateBufferSize assumes when
// an Options.MaxEvents wasn't specified.
const DefaultEventLimit = 500

// defaultPublishBufferSize is generous enough for the handful of
// publish-status records (spec.md §3 "Publish status update") a single
// publish call produces.
const defaultPublishBufferSize = 4 + 64*512

// CalculateBufferSize implements spec.md §4.D's buffer-sizing formula:
// 4 (the SubBuffer's write-position header) plus 1.25x the estimated
// total bytes needed to hold totalEventLimit events at bytesPerEvent bytes
// each. A non-positive bytesPerEvent falls back to
// wire.DefaultBytesPerEvent; a non-positive totalEventLimit falls back to
// DefaultEventLimit.
func CalculateBufferSize(totalEventLimit, bytesPerEvent int) int {
	if bytesPerEvent <= 0 {
		bytesPerEvent = wire.DefaultBytesPerEvent
	}
	if totalEventLimit <= 0 {
		totalEventLimit = DefaultEventLimit
	}
	return 4 + int(float64(totalEventLimit*bytesPerEvent)*1.25)
}

// SendFrame delivers a control frame to the Parser worker (the UI->Parser
// port of spec.md §4.C).
type SendFrame func(mesh.Frame) error

// CloseHint notifies the Connections worker that a fingerprint's
// subscription is gone, so any relay-side REQ tied to it can be closed
// (spec.md §4.D Cleanup: "a close hint (fingerprint string) to
// Connections").
type CloseHint func(fp string)

// Engine is the SubscriptionEngine of spec.md §4.D. One Engine owns the
// fingerprint->record registry, the publish registry, the perpetual-
// subscription allow-list, the shared token bucket, and the listener
// registry new data is dispatched through.
type Engine struct {
	mu        sync.Mutex
	subs      map[string]*subscriptionRecord
	pubs      map[string]*publishRecord
	perpetual map[string]bool

	bucket    *TokenBucket
	listeners *listenerRegistry

	sendToParser         SendFrame
	closeHint            CloseHint
	signer               Signer
	defaultBytesPerEvent int

	ticker   *time.Ticker
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New constructs an Engine. perpetualFingerprints names subscriptions
// exempt from Cleanup regardless of refCount (spec.md glossary "Perpetual
// subscription"); sendToParser and closeHint may be nil for tests that
// don't need the control-plane side effects. signer may be nil if the
// caller never exercises SignEvent/SetSigner/GetActivePubkey.
func New(sendToParser SendFrame, closeHint CloseHint, signer Signer, perpetualFingerprints []string) *Engine {
	perpetual := make(map[string]bool, len(perpetualFingerprints))
	for _, fp := range perpetualFingerprints {
		perpetual[fp] = true
	}
	return &Engine{
		subs:         make(map[string]*subscriptionRecord),
		pubs:         make(map[string]*publishRecord),
		perpetual:    perpetual,
		bucket:       NewTokenBucket(time.Now()),
		listeners:    newListenerRegistry(),
		sendToParser: sendToParser,
		closeHint:    closeHint,
		signer:       signer,
		stop:         make(chan struct{}),
	}
}

// SetDefaultBytesPerEvent overrides the bytesPerEvent CalculateBufferSize
// falls back to for a Subscribe call whose Options.BytesPerEvent is unset
// (spec.md §5's configurable resource cap). Leaving it unset (the zero
// value) keeps CalculateBufferSize's own fallback to wire.DefaultBytesPerEvent.
func (e *Engine) SetDefaultBytesPerEvent(n int) {
	e.defaultBytesPerEvent = n
}

// Start begins the animation-frame-tied delivery loop. Safe to call once;
// callers that only want to exercise Subscribe/Unsubscribe/Cleanup
// bookkeeping in tests can skip it.
func (e *Engine) Start() {
	e.ticker = time.NewTicker(FrameInterval)
	e.wg.Add(1)
	go e.loop()
}

// Stop halts the delivery loop and waits for it to exit.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.stop)
	})
	e.wg.Wait()
}

func (e *Engine) loop() {
	defer e.wg.Done()
	for {
		select {
		case <-e.stop:
			if e.ticker != nil {
				e.ticker.Stop()
			}
			return
		case now := <-e.ticker.C:
			e.Tick(now)
		}
	}
}

// Subscribe implements spec.md §4.D's subscribe contract: a first call for
// an unseen fingerprint allocates a buffer and notifies the Parser; every
// later call with the same fingerprint increments refCount and hands back
// the identical buffer (spec.md §3 invariant: "at most one SharedRing
// exists per fingerprint at any time").
func (e *Engine) Subscribe(id string, requests []wire.Request, options wire.Options) (*ring.SubBuffer, error) {
	fp := fingerprint.Of(id)

	e.mu.Lock()
	if rec, ok := e.subs[fp]; ok {
		rec.mu.Lock()
		rec.refCount++
		rec.mu.Unlock()
		e.mu.Unlock()
		return rec.buffer, nil
	}
	bytesPerEvent := options.BytesPerEvent
	if bytesPerEvent <= 0 {
		bytesPerEvent = e.defaultBytesPerEvent
	}
	size := CalculateBufferSize(options.MaxEvents, bytesPerEvent)
	buf := ring.NewSubBuffer(size)
	rec := newSubscriptionRecord(fp, buf, options)
	e.subs[fp] = rec
	e.mu.Unlock()

	frame, err := buildSubscribeFrame(fp, requests, options)
	if chk.E(err) {
		return nil, err
	}
	if e.sendToParser != nil {
		if err := e.sendToParser(frame); chk.E(err) {
			return nil, err
		}
	}
	return buf, nil
}

// Unsubscribe decrements the fingerprint's refCount. The record is not
// removed here -- only Cleanup physically removes entries, and only when
// refCount <= 0 and the fingerprint isn't perpetual (spec.md §3).
func (e *Engine) Unsubscribe(id string) {
	fp := fingerprint.Of(id)
	e.mu.Lock()
	rec, ok := e.subs[fp]
	e.mu.Unlock()
	if !ok {
		return
	}
	rec.mu.Lock()
	rec.refCount--
	rec.mu.Unlock()
}

// RefCount reports a fingerprint's current reference count, or 0 if it
// isn't registered (test/introspection helper).
func (e *Engine) RefCount(id string) int {
	fp := fingerprint.Of(id)
	e.mu.Lock()
	rec, ok := e.subs[fp]
	e.mu.Unlock()
	if !ok {
		return 0
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.refCount
}

// Cleanup walks the registry and removes every entry with refCount <= 0
// that isn't in the perpetual allow-list, sending the Unsubscribe control
// message and close hint spec.md §4.D describes for each.
func (e *Engine) Cleanup() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for fp, rec := range e.subs {
		rec.mu.Lock()
		rc := rec.refCount
		rec.mu.Unlock()
		if rc > 0 || e.perpetual[fp] {
			continue
		}
		if e.sendToParser != nil {
			if frame, err := buildUnsubscribeFrame(fp); !chk.E(err) {
				chk.E(e.sendToParser(frame))
			}
		}
		if e.closeHint != nil {
			e.closeHint(fp)
		}
		delete(e.subs, fp)
	}
}

// Publish implements spec.md §4.D's publish contract: fingerprint-keyed,
// idempotent like Subscribe, but with no refcount -- the caller just holds
// the buffer until it drops the handle (spec.md §3 "Publish record").
func (e *Engine) Publish(id string, event json.RawMessage, defaultRelays []string) (*ring.SubBuffer, error) {
	fp := fingerprint.Of(id)

	e.mu.Lock()
	if rec, ok := e.pubs[fp]; ok {
		e.mu.Unlock()
		return rec.buffer, nil
	}
	buf := ring.NewSubBuffer(defaultPublishBufferSize)
	e.pubs[fp] = &publishRecord{fp: fp, buffer: buf}
	e.mu.Unlock()

	frame, err := buildPublishFrame(fp, event, defaultRelays)
	if chk.E(err) {
		return nil, err
	}
	if e.sendToParser != nil {
		if err := e.sendToParser(frame); chk.E(err) {
			return nil, err
		}
	}
	return buf, nil
}

// Deliver appends a raw relay frame to the fingerprint's subscription buffer
// (spec.md §4.D: events arriving from the Connections worker land in the
// SharedRing the matching Subscribe call returned). It is a no-op -- not an
// error -- for an unknown fingerprint, since a relay can keep delivering to a
// subscription id for a moment after the caller has already Unsubscribed.
// Reports whether the append succeeded (false if the fingerprint is unknown
// or the buffer is full).
func (e *Engine) Deliver(fp string, raw []byte) bool {
	e.mu.Lock()
	rec, ok := e.subs[fp]
	e.mu.Unlock()
	if !ok {
		return false
	}
	return rec.buffer.Append(raw)
}

// SignEvent delegates to the configured Signer asynchronously, invoking cb
// with the signed event or an error (spec.md §4.D: "signEvent(template,
// callback)").
func (e *Engine) SignEvent(ctx context.Context, template json.RawMessage, cb func(signed json.RawMessage, err error)) {
	if e.signer == nil {
		cb(nil, ErrNoSigner)
		return
	}
	go func() {
		signed, err := e.signer.SignEvent(ctx, template)
		cb(signed, err)
	}()
}

// SetSigner delegates to the configured Signer.
func (e *Engine) SetSigner(kind string, payload json.RawMessage) error {
	if e.signer == nil {
		return ErrNoSigner
	}
	return e.signer.SetSigner(kind, payload)
}

// GetActivePubkey delegates to the configured Signer, returning "" if none
// is configured or no session is active.
func (e *Engine) GetActivePubkey() string {
	if e.signer == nil {
		return ""
	}
	return e.signer.GetActivePubkey()
}

// AddEventListener registers fn against topic (spec.md §4.D: topics of the
// form "subscription:<fingerprint>" and "publish:<fingerprint>"). Use
// SubscriptionTopic/PublishTopic to build the topic string.
func (e *Engine) AddEventListener(topic string, fn Listener) ListenerHandle {
	return e.listeners.add(topic, fn)
}

// RemoveEventListener unregisters a listener previously returned by
// AddEventListener.
func (e *Engine) RemoveEventListener(topic string, h ListenerHandle) {
	e.listeners.remove(topic, h)
}
