package relay

import (
	"context"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/errgroup"
	"lol.mleku.dev/log"
)

// shortCooldown is applied after an ordinary ensureConnection failure
// (spec.md §4.B step 3); unlike the given-up case it is not configurable,
// matching the spec's literal "now + min(60s, 10s)" (always 10s).
const shortCooldown = 10 * time.Second

// FrameHandler receives every inbound frame from every connected relay,
// tagged with the relay it arrived from.
type FrameHandler func(url string, frame []byte)

// Registry owns one Connection per relay URL and fans outbound frames out
// to many relays in parallel while preserving per-relay ordering (spec.md
// §3.B: "parallel across relays, sequential within a relay").
//
// Grounded on pkg/protocol/ws/pool.go's Pool: a map keyed by relay URL,
// connect-on-demand, and a reconnect loop with growing backoff.
type Registry struct {
	conns       *xsync.MapOf[string, *Connection]
	nextAllowed *xsync.MapOf[string, time.Time]
	policy      BackoffPolicy

	closeDelay   time.Duration
	readyTimeout time.Duration
	idleTimeout  time.Duration
	longCooldown time.Duration
	onFrame      FrameHandler
}

// NewRegistry constructs a registry using spec.md §5's default resource
// caps. onFrame, if non-nil, is invoked for every inbound frame from every
// relay. Use NewRegistryWithPolicy to override the defaults (e.g. from
// config.C, as cmd/nostrworkerd does).
func NewRegistry(onFrame FrameHandler) *Registry {
	return NewRegistryWithPolicy(onFrame, NewBackoffPolicy(), defaultCloseDelayMs, defaultReadyTimeout, defaultIdleTimeout, defaultLongCooldown)
}

// NewRegistryWithPolicy constructs a registry with caller-supplied tunables
// (spec.md §5 "Resource caps"): policy shapes reconnect backoff and the
// attempt budget, closeDelay is the idle-disconnect grace period,
// readyTimeout bounds waitForReady (connectTimeoutMs), idleTimeout is the
// longest span of relay silence before a connection is treated as dead, and
// longCooldown is the penalty applied once a connection has given up.
func NewRegistryWithPolicy(onFrame FrameHandler, policy BackoffPolicy, closeDelay, readyTimeout, idleTimeout, longCooldown time.Duration) *Registry {
	return &Registry{
		conns:        xsync.NewMapOf[string, *Connection](),
		nextAllowed:  xsync.NewMapOf[string, time.Time](),
		policy:       policy,
		closeDelay:   closeDelay,
		readyTimeout: readyTimeout,
		idleTimeout:  idleTimeout,
		longCooldown: longCooldown,
		onFrame:      onFrame,
	}
}

// ensureConnection returns the Connection for url, dialing it if this is the
// first time it's been seen. It returns ErrDisabled or ErrCoolingDown
// without dialing if url is disabled or still cooling down (spec.md §4.B
// step 1: "fail fast").
func (r *Registry) ensureConnection(ctx context.Context, url string) (*Connection, error) {
	if until, ok := r.nextAllowed.Load(url); ok && time.Now().Before(until) {
		return nil, ErrCoolingDown
	}
	conn, loaded := r.conns.LoadOrCompute(url, func() *Connection {
		return newConnection(url, r.policy, r.idleTimeout, r.onFrame)
	})
	if conn.disabled.Load() {
		return nil, ErrDisabled
	}
	if status := conn.Status(); !loaded || status == StatusIdle || status == StatusClosed {
		conn.connect(ctx)
	}
	return conn, nil
}

// waitForReady ensures url is connecting and blocks until it is Ready or
// timeout elapses. A timeout of 0 uses the registry default. On failure it
// applies the cooldown policy of spec.md §4.B step 3: a long cooldown once
// the connection has given up, a short one otherwise.
func (r *Registry) waitForReady(ctx context.Context, url string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = r.readyTimeout
	}
	conn, err := r.ensureConnection(ctx, url)
	if err != nil {
		return err
	}
	if err := conn.waitReady(ctx, timeout); err != nil {
		if conn.GivenUp() {
			r.nextAllowed.Store(url, time.Now().Add(r.longCooldown))
		} else {
			r.nextAllowed.Store(url, time.Now().Add(shortCooldown))
		}
		return err
	}
	return nil
}

// SendResult is one relay's outcome from SendToRelays.
type SendResult struct {
	URL string
	Err error
}

// SendToRelays ensures every url is connected and writes frame to each,
// fanning out across relays concurrently. Within a relay, frames submitted
// in sequence by the caller via repeated SendToRelays calls are written in
// call order because each call returns only after its writes have finished;
// Connection.send does not lock the socket, so concurrent SendToRelays calls
// for the same relay are not ordered against each other.
func (r *Registry) SendToRelays(ctx context.Context, urls []string, frame []byte) []SendResult {
	results := make([]SendResult, len(urls))
	g, ctx := errgroup.WithContext(ctx)
	for i, rawURL := range urls {
		i, url := i, NormalizeURL(rawURL)
		g.Go(func() error {
			if err := r.waitForReady(ctx, url, r.readyTimeout); err != nil {
				results[i] = SendResult{URL: url, Err: err}
				return nil
			}
			conn, _ := r.conns.Load(url)
			onIdle := func() { r.scheduleIdleDisconnect(url) }
			err := conn.send(frame, r.closeDelay, onIdle)
			results[i] = SendResult{URL: url, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// scheduleIdleDisconnect disconnects url once its REQ count has been zero
// for closeDelay (spec.md §3.B: "disconnect-on-idle grace period").
func (r *Registry) scheduleIdleDisconnect(url string) {
	conn, ok := r.conns.Load(url)
	if !ok || conn.ReqCount() > 0 {
		return
	}
	log.D.F("relay %s: idle, disconnecting", url)
	conn.close()
}

// Disconnect tears down url's connection without disabling it; a later
// SendToRelays/ensureConnection call will redial it.
func (r *Registry) Disconnect(url string) {
	url = NormalizeURL(url)
	if conn, ok := r.conns.Load(url); ok {
		conn.close()
	}
}

// DisconnectAll tears down every known connection.
func (r *Registry) DisconnectAll() {
	r.conns.Range(func(url string, conn *Connection) bool {
		conn.close()
		return true
	})
}

// DisableRelay permanently closes url and prevents reconnection until
// EnableRelay is called.
func (r *Registry) DisableRelay(url string) {
	url = NormalizeURL(url)
	conn, _ := r.conns.LoadOrCompute(url, func() *Connection {
		return newConnection(url, r.policy, r.idleTimeout, r.onFrame)
	})
	conn.disable()
}

// EnableRelay clears a prior DisableRelay (or an exhausted backoff) and lets
// the next ensureConnection/SendToRelays redial url.
func (r *Registry) EnableRelay(url string) {
	url = NormalizeURL(url)
	conn, ok := r.conns.Load(url)
	if !ok {
		return
	}
	conn.enable()
	conn.status.Store(int32(StatusIdle))
	r.nextAllowed.Delete(url)
}

// Status reports url's lifecycle state, or StatusIdle if it has never been
// seen.
func (r *Registry) Status(url string) Status {
	if conn, ok := r.conns.Load(NormalizeURL(url)); ok {
		return conn.Status()
	}
	return StatusIdle
}

// ActiveReqCount reports url's outstanding REQ count, or 0 if unknown.
func (r *Registry) ActiveReqCount(url string) int {
	if conn, ok := r.conns.Load(NormalizeURL(url)); ok {
		return conn.ReqCount()
	}
	return 0
}

// AllStatuses returns a snapshot of every known relay's status, keyed by
// URL.
func (r *Registry) AllStatuses() map[string]Status {
	out := make(map[string]Status)
	r.conns.Range(func(url string, conn *Connection) bool {
		out[url] = conn.Status()
		return true
	})
	return out
}
