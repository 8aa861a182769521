// Package relay implements the per-relay connection lifecycle and registry
// that the Connections worker (spec.md §3.B "RelayRegistry") drives: dialing,
// exponential-backoff reconnection, idle disconnect, and outbound/inbound
// wire-frame classification.
package relay

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/atomic"
	"lol.mleku.dev/chk"
	"lol.mleku.dev/log"
)

// Status is a relay connection's lifecycle state (spec.md §3.B).
type Status int

const (
	StatusIdle Status = iota
	StatusConnecting
	StatusReady
	StatusClosing
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusConnecting:
		return "connecting"
	case StatusReady:
		return "ready"
	case StatusClosing:
		return "closing"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

var (
	// ErrDisabled is returned when a relay has been explicitly disabled.
	ErrDisabled = errors.New("relay: disabled")
	// ErrCoolingDown is returned when a relay has exhausted its reconnect
	// budget, and by the Registry while a relay is inside any cooldown window
	// (the long one after giving up or the short one after an ordinary
	// failed wait for Ready).
	ErrCoolingDown = errors.New("relay: cooling down after giving up")
	// ErrNotReady is returned by SendToRelays when a connection never
	// reaches Ready within the wait timeout.
	ErrNotReady = errors.New("relay: not ready")
)

// Connection tracks one relay URL's socket and lifecycle bookkeeping. All
// fields that can be touched from more than one goroutine (the dial loop,
// the REQ/CLOSE accounting from callers, the idle-disconnect timer) are
// atomics or guarded by mu.
type Connection struct {
	url         string
	policy      BackoffPolicy
	idleTimeout time.Duration

	mu             sync.Mutex
	sock           *socket
	status         atomic.Int32 // Status
	attempts       atomic.Int32
	givenUp        atomic.Bool
	disabled       atomic.Bool
	closeRequested atomic.Bool
	reqCount       atomic.Int32
	lastSeen       atomic.Int64 // unix nanos of last received frame

	readyWaiters []chan struct{}
	idleTimer    *time.Timer
	readLoopDone chan struct{}
	onFrame      func(url string, frame []byte)
}

// newConnection constructs an idle, undialed connection. idleTimeout, if
// positive, is the longest span of relay silence (no frame at all, not even
// a ping) before the socket is treated as dead and redialed (spec.md §5's
// idleTimeoutMs resource cap).
func newConnection(url string, policy BackoffPolicy, idleTimeout time.Duration, onFrame func(url string, frame []byte)) *Connection {
	c := &Connection{url: url, policy: policy, idleTimeout: idleTimeout, onFrame: onFrame}
	c.status.Store(int32(StatusIdle))
	return c
}

// Status reports the connection's current lifecycle state.
func (c *Connection) Status() Status { return Status(c.status.Load()) }

// ReqCount reports the number of outstanding (un-CLOSEd) REQ subscriptions
// this connection believes are live.
func (c *Connection) ReqCount() int { return int(c.reqCount.Load()) }

// GivenUp reports whether reconnection attempts have been exhausted.
func (c *Connection) GivenUp() bool { return c.givenUp.Load() }

// waitReady blocks until the connection reaches Ready, Closed gives up, or
// ctx/timeout elapses.
func (c *Connection) waitReady(ctx context.Context, timeout time.Duration) error {
	if c.Status() == StatusReady {
		return nil
	}
	if c.disabled.Load() {
		return ErrDisabled
	}
	if c.GivenUp() {
		return ErrCoolingDown
	}

	ch := make(chan struct{})
	c.mu.Lock()
	c.readyWaiters = append(c.readyWaiters, ch)
	c.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ch:
		if c.Status() != StatusReady {
			return ErrNotReady
		}
		return nil
	case <-timer.C:
		return ErrNotReady
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Connection) notifyReady() {
	c.mu.Lock()
	waiters := c.readyWaiters
	c.readyWaiters = nil
	c.mu.Unlock()
	for _, ch := range waiters {
		close(ch)
	}
}

// connect dials the relay and starts its read loop, retrying with backoff
// until it reaches Ready or the attempt budget is exhausted. It returns once
// the first dial attempt has been dispatched; subsequent reconnects happen
// in the background.
func (c *Connection) connect(ctx context.Context) {
	if c.disabled.Load() {
		return
	}
	c.closeRequested.Store(false)
	c.status.Store(int32(StatusConnecting))
	go c.dialLoop(ctx)
}

func (c *Connection) dialLoop(ctx context.Context) {
	for {
		if c.disabled.Load() || c.closeRequested.Load() {
			c.status.Store(int32(StatusClosed))
			return
		}
		sock, err := dialSocket(ctx, c.url)
		if chk.E(err) {
			log.D.F("relay %s: dial attempt failed: %v", c.url, err)
			attempt := int(c.attempts.Add(1)) - 1
			if c.policy.exhausted(attempt) {
				c.givenUp.Store(true)
				c.status.Store(int32(StatusClosed))
				c.notifyReady()
				return
			}
			select {
			case <-time.After(c.policy.delay(attempt)):
				continue
			case <-ctx.Done():
				c.status.Store(int32(StatusClosed))
				return
			}
		}

		c.mu.Lock()
		c.sock = sock
		c.readLoopDone = make(chan struct{})
		c.mu.Unlock()
		c.attempts.Store(0)
		c.status.Store(int32(StatusReady))
		c.lastSeen.Store(time.Now().UnixNano())
		c.notifyReady()

		c.readLoop(ctx, sock)

		if c.disabled.Load() || c.closeRequested.Load() || ctx.Err() != nil {
			c.status.Store(int32(StatusClosed))
			return
		}
		// socket dropped unexpectedly: fall through and redial.
		c.status.Store(int32(StatusConnecting))
	}
}

func (c *Connection) readLoop(ctx context.Context, sock *socket) {
	defer close(c.readLoopDone)
	for {
		if err := sock.setIdleDeadline(c.idleTimeout); chk.E(err) {
			return
		}
		frame, err := sock.readText()
		if chk.E(err) {
			logSocketErr(c.url, err)
			return
		}
		c.lastSeen.Store(time.Now().UnixNano())
		kind, subID := classifyInbound(frame)
		if kind == InClosed {
			c.reqCount.Add(-1)
			if c.reqCount.Load() < 0 {
				c.reqCount.Store(0)
			}
		}
		_ = subID
		if c.onFrame != nil {
			c.onFrame(c.url, frame)
		}
	}
}

// send writes a single outbound frame, updating REQ/CLOSE reference
// counting and canceling/arming the idle-disconnect timer as needed.
func (c *Connection) send(frame []byte, closeDelay time.Duration, onIdle func()) error {
	c.mu.Lock()
	sock := c.sock
	c.mu.Unlock()
	if sock == nil {
		return ErrNotReady
	}

	kind, _ := classifyOutbound(frame)
	switch kind {
	case OutReq:
		c.reqCount.Add(1)
		c.cancelIdleTimer()
	case OutClose:
		n := c.reqCount.Add(-1)
		if n <= 0 {
			c.reqCount.Store(0)
			c.armIdleTimer(closeDelay, onIdle)
		}
	}

	if err := sock.writeText(frame); chk.E(err) {
		return err
	}
	return nil
}

func (c *Connection) armIdleTimer(delay time.Duration, onIdle func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.idleTimer != nil {
		c.idleTimer.Stop()
	}
	c.idleTimer = time.AfterFunc(delay, func() {
		if c.reqCount.Load() == 0 && onIdle != nil {
			onIdle()
		}
	})
}

func (c *Connection) cancelIdleTimer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.idleTimer != nil {
		c.idleTimer.Stop()
		c.idleTimer = nil
	}
}

// close tears down the socket and marks the connection Closed. It sets
// closeRequested so the dial loop this close interrupts does not treat the
// resulting socket error as an unexpected drop and redial on its own
// (spec.md §3.B: "close() ──▶ Closed (no reconnect)"). It does not mark the
// connection disabled, so a later explicit connect call can still redial it.
func (c *Connection) close() {
	c.closeRequested.Store(true)
	c.mu.Lock()
	sock := c.sock
	c.sock = nil
	c.mu.Unlock()
	if sock != nil {
		chk.E(sock.close())
	}
	c.status.Store(int32(StatusClosed))
}

// disable marks the connection permanently off; connect becomes a no-op
// until enable is called.
func (c *Connection) disable() {
	c.disabled.Store(true)
	c.close()
}

func (c *Connection) enable() {
	c.disabled.Store(false)
	c.givenUp.Store(false)
	c.closeRequested.Store(false)
	c.attempts.Store(0)
}
