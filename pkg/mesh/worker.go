package mesh

import (
	"context"
	"fmt"
	"sync"

	"lol.mleku.dev/chk"
	"lol.mleku.dev/log"
)

// Link is a worker's view of a point-to-point channel pair to one neighbor:
// Out carries frames this worker sends, In carries frames it receives.
type Link struct {
	Out chan<- []byte
	In  <-chan []byte
}

// newDuplexLink allocates the channel pair for a bidirectional connection
// between two workers and returns each side's Link.
func newDuplexLink(buf int) (a, b Link) {
	ab := make(chan []byte, buf)
	ba := make(chan []byte, buf)
	a = Link{Out: ab, In: ba}
	b = Link{Out: ba, In: ab}
	return a, b
}

type inboundFrame struct {
	from string
	data []byte
}

// Worker is one mesh context (spec.md §4.C names four: Parser, Cache,
// Connections, Crypto). It fans in frames from all attached neighbor links
// into a single mailbox, queueing anything that arrives before Init
// completes and replaying it afterward (spec.md §4.C "Init protocol").
type Worker struct {
	Name      string
	mailbox   chan inboundFrame
	stop      chan struct{}
	stopOnce  sync.Once
	neighbors map[string]Link

	readyMu sync.Mutex
	ready   bool
	pending []inboundFrame
}

// NewWorker constructs a worker with no neighbors attached yet.
func NewWorker(name string) *Worker {
	return &Worker{
		Name:      name,
		mailbox:   make(chan inboundFrame, 256),
		stop:      make(chan struct{}),
		neighbors: make(map[string]Link),
	}
}

// Attach wires a bidirectional neighbor link under the given name, starting
// a forwarder goroutine that copies inbound frames into the mailbox (or the
// pending queue, before the worker signals ready).
func (w *Worker) Attach(name string, link Link) {
	w.neighbors[name] = link
	go w.forward(name, link.In)
}

// AttachInbound wires a one-way inbound-only source (spec.md §4.C: "control
// ... on Parser port" is one-way from the UI).
func (w *Worker) AttachInbound(name string, in <-chan []byte) {
	go w.forward(name, in)
}

func (w *Worker) forward(from string, in <-chan []byte) {
	for data := range in {
		f := inboundFrame{from: from, data: data}
		w.readyMu.Lock()
		if w.ready {
			w.readyMu.Unlock()
			select {
			case w.mailbox <- f:
			case <-w.stop:
			}
		} else {
			w.pending = append(w.pending, f)
			w.readyMu.Unlock()
		}
	}
}

// markReady flushes anything queued before init completed and flips the
// worker into normal fan-in mode.
func (w *Worker) markReady() {
	w.readyMu.Lock()
	pending := w.pending
	w.pending = nil
	w.ready = true
	w.readyMu.Unlock()
	for _, f := range pending {
		select {
		case w.mailbox <- f:
		case <-w.stop:
			return
		}
	}
}

// Send encodes and delivers frame to the named neighbor.
func (w *Worker) Send(to string, frame Frame) error {
	link, ok := w.neighbors[to]
	if !ok {
		return fmt.Errorf("mesh: worker %q has no link to %q", w.Name, to)
	}
	b, err := Encode(frame)
	if chk.E(err) {
		return err
	}
	select {
	case link.Out <- b:
		return nil
	case <-w.stop:
		return fmt.Errorf("mesh: worker %q stopped", w.Name)
	}
}

// Handler processes one decoded frame received from a neighbor. It is not
// called for FrameWake (ignored at the Worker level per spec.md §4.C). A
// FrameShutdown is passed to it once, before the onShutdown hook runs and
// Run returns.
type Handler func(ctx context.Context, from string, frame Frame)

// Run performs the lazy-init step (a no-op hook here, since Go has no
// asynchronous module loading to await), marks the worker ready, and then
// services its mailbox until Stop is called, ctx is cancelled, or a
// FrameShutdown arrives on any link. onShutdown, if non-nil, runs once
// before Run returns.
func (w *Worker) Run(ctx context.Context, handle Handler, onShutdown func()) {
	w.markReady()
	for {
		select {
		case <-ctx.Done():
			w.runShutdown(onShutdown)
			return
		case <-w.stop:
			w.runShutdown(onShutdown)
			return
		case m := <-w.mailbox:
			frame, err := Decode(m.data)
			if chk.E(err) {
				log.W.F("mesh: worker %s: dropping malformed frame from %s: %v", w.Name, m.from, err)
				continue
			}
			if frame.Type == FrameWake {
				continue // wake exists only to break long sleeps; nothing to do
			}
			if frame.Type == FrameShutdown {
				handle(ctx, m.from, frame)
				w.runShutdown(onShutdown)
				return
			}
			handle(ctx, m.from, frame)
		}
	}
}

func (w *Worker) runShutdown(onShutdown func()) {
	if onShutdown != nil {
		onShutdown()
	}
}

// Stop signals Run to exit; safe to call more than once.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
}
