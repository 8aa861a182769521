package mesh

import "nostrworker.dev/pkg/ring"

// defaultChanBuf is the bounded-queue depth for each inter-worker channel,
// standing in for a browser MessageChannel's implicit buffering.
const defaultChanBuf = 64

// Mesh wires the four workers of spec.md §4.C into the specified
// point-to-point topology:
//
//	Parser <-> Cache <-> Connections <-> Crypto
//	  ^                      ^              |
//	  +----------------------+--------------+
//
// plus a one-way UI->Parser control channel, a bidirectional UI<->Crypto
// control link, and a one-way Connections->UI status SharedRing.
type Mesh struct {
	Parser      *Worker
	Cache       *Worker
	Connections *Worker
	Crypto      *Worker

	uiToParser chan []byte
	uiCrypto   Link

	StatusRing *ring.Ring
}

// New allocates every channel, constructs the four workers, and attaches
// their neighbor links per the topology. It does not start any worker's
// loop; call Run for each.
func New() *Mesh {
	parserCache0, parserCache1 := newDuplexLink(defaultChanBuf)
	cacheConnections0, cacheConnections1 := newDuplexLink(defaultChanBuf)
	connectionsParser0, connectionsParser1 := newDuplexLink(defaultChanBuf)
	parserCrypto0, parserCrypto1 := newDuplexLink(defaultChanBuf)
	cryptoConnections0, cryptoConnections1 := newDuplexLink(defaultChanBuf)
	uiCrypto0, uiCrypto1 := newDuplexLink(defaultChanBuf)

	m := &Mesh{
		Parser:      NewWorker("parser"),
		Cache:       NewWorker("cache"),
		Connections: NewWorker("connections"),
		Crypto:      NewWorker("crypto"),
		uiToParser:  make(chan []byte, defaultChanBuf),
		uiCrypto:    uiCrypto1,
		StatusRing:  ring.New(ring.NewBuffer(ring.HeaderSize + 1<<20)),
	}

	m.Parser.Attach("cache", parserCache0)
	m.Parser.Attach("connections", connectionsParser1)
	m.Parser.Attach("crypto", parserCrypto0)
	m.Parser.AttachInbound("ui", m.uiToParser)

	m.Cache.Attach("parser", parserCache1)
	m.Cache.Attach("connections", cacheConnections0)

	m.Connections.Attach("cache", cacheConnections1)
	m.Connections.Attach("parser", connectionsParser0)
	m.Connections.Attach("crypto", cryptoConnections0)

	m.Crypto.Attach("parser", parserCrypto1)
	m.Crypto.Attach("connections", cryptoConnections1)
	m.Crypto.Attach("ui", uiCrypto0)

	return m
}

// SendToParser delivers a raw control frame on the UI->Parser port.
func (m *Mesh) SendToParser(frame Frame) error {
	b, err := Encode(frame)
	if err != nil {
		return err
	}
	m.uiToParser <- b
	return nil
}

// UICrypto exposes the UI side of the bidirectional Crypto<->UI control
// link (spec.md §4.E's extension-capability escape hatch travels over
// this).
func (m *Mesh) UICrypto() Link { return m.uiCrypto }

// Shutdown stops every worker. disconnectAll (spec.md §4.C: "implicit on
// worker termination") is the Connections worker's own onShutdown hook,
// supplied by its caller, not something this package does on its behalf.
func (m *Mesh) Shutdown() {
	m.Parser.Stop()
	m.Cache.Stop()
	m.Connections.Stop()
	m.Crypto.Stop()
}
