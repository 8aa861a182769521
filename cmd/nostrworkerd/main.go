// Command nostrworkerd is a host-process demo that wires the five
// components of spec.md §2 together: SharedRing (pkg/ring), RelayRegistry
// (pkg/relay), WorkerMesh (pkg/mesh), SubscriptionEngine (pkg/subscription)
// and SignerSession (pkg/signer). It stands in for "inside a browser tab":
// a single process that owns every worker as a goroutine instead of a page
// owning several Web Workers.
package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	lol "lol.mleku.dev"
	"lol.mleku.dev/chk"
	"lol.mleku.dev/log"

	"nostrworker.dev/pkg/config"
	"nostrworker.dev/pkg/mesh"
	"nostrworker.dev/pkg/relay"
	"nostrworker.dev/pkg/ring"
	"nostrworker.dev/pkg/signer"
	"nostrworker.dev/pkg/subscription"
	"nostrworker.dev/pkg/wire"
)

func main() {
	cfg, err := config.New()
	if chk.E(err) {
		os.Exit(1)
	}
	lol.SetLogLevel(cfg.LogLevel)
	log.I.F("starting %s", cfg.AppName)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	msh := mesh.New()

	store, err := signer.OpenStore(cfg.SignerStorePath())
	if chk.E(err) {
		os.Exit(1)
	}
	backend := newDevBackend()
	orch := signer.NewOrchestrator(store, backend, signer.NewMeshExtension(msh.UICrypto()), func(pubkey string) {
		log.I.F("nostrworkerd: signer authenticated as %s", pubkey)
	})
	if err := orch.Restore(ctx); chk.E(err) {
		log.W.F("nostrworkerd: failed to restore prior signer session: %v", err)
	}

	engine := subscription.New(msh.SendToParser, nil, orch, nil)
	engine.SetDefaultBytesPerEvent(cfg.BytesPerEvent)
	engine.Start()
	defer engine.Stop()

	registry := relay.NewRegistryWithPolicy(
		routeInboundFrame(engine, msh.StatusRing),
		relay.BackoffPolicy{
			Base:        time.Duration(cfg.BackoffBaseMs) * time.Millisecond,
			Max:         time.Duration(cfg.BackoffMaxMs) * time.Millisecond,
			Multiplier:  cfg.BackoffMultiplier,
			Jitter:      cfg.BackoffJitter,
			MaxAttempts: cfg.MaxReconnectAttempts,
		},
		time.Duration(cfg.CloseDelayMs)*time.Millisecond,
		time.Duration(cfg.ConnectTimeoutMs)*time.Millisecond,
		time.Duration(cfg.IdleTimeoutMs)*time.Millisecond,
		time.Duration(cfg.CooldownMs)*time.Millisecond,
	)
	conns := newConnectionTracker()

	var wg sync.WaitGroup
	runWorker(&wg, msh.Parser, parserHandler(msh), nil)
	runWorker(&wg, msh.Cache, passthroughHandler("cache"), nil)
	runWorker(&wg, msh.Connections, connectionsHandler(ctx, cfg, registry, conns), registry.DisconnectAll)
	runWorker(&wg, msh.Crypto, cryptoHandler(msh), nil)

	go func() {
		<-ctx.Done()
		log.I.F("nostrworkerd: shutting down")
		msh.Shutdown()
	}()

	wg.Wait()
}

// runWorker starts w's Run loop on its own goroutine, tracked by wg.
func runWorker(wg *sync.WaitGroup, w *mesh.Worker, handle mesh.Handler, onShutdown func()) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.Run(context.Background(), handle, onShutdown)
	}()
}

// parserHandler forwards Subscribe/Unsubscribe/Publish control frames
// straight through to the Connections worker unchanged. A cache-aware
// build would consult the Cache worker first when Options.CacheFirst is
// set; that optimization has no component to exercise it yet here, so
// every request reaches the network.
func parserHandler(msh *mesh.Mesh) mesh.Handler {
	return func(ctx context.Context, from string, frame mesh.Frame) {
		switch frame.Type {
		case mesh.FrameSubscribe, mesh.FrameUnsubscribe, mesh.FramePublish:
			if err := msh.Parser.Send("connections", frame); chk.E(err) {
				log.W.F("parser: forwarding %s to connections: %v", frame.Type, err)
			}
		case mesh.FrameShutdown:
		default:
			log.D.F("parser: ignoring unhandled frame %s from %s", frame.Type, from)
		}
	}
}

// passthroughHandler is a do-nothing Handler for mesh workers this demo
// doesn't drive any control traffic through (the Cache worker: no local
// cache store is in scope for this runtime -- see parserHandler's
// CacheFirst note above).
func passthroughHandler(name string) mesh.Handler {
	return func(ctx context.Context, from string, frame mesh.Frame) {
		if frame.Type == mesh.FrameShutdown {
			return
		}
		log.D.F("%s: ignoring unhandled frame %s from %s", name, frame.Type, from)
	}
}

// cryptoHandler answers extension_request frames arriving from the UI side
// of the Crypto<->UI link. This host process has no browser extension to
// offer, so impl is nil: every nip07 round trip fails with
// signer.ErrNoExtension, exactly as a window.nostr-less environment would.
func cryptoHandler(msh *mesh.Mesh) mesh.Handler {
	return func(ctx context.Context, from string, frame mesh.Frame) {
		if reply, ok := signer.HandleExtensionRequest(ctx, frame, nil); ok {
			if err := msh.Crypto.Send("ui", reply); chk.E(err) {
				log.W.F("crypto: replying to extension request: %v", err)
			}
			return
		}
		if frame.Type == mesh.FrameShutdown {
			return
		}
		log.D.F("crypto: ignoring unhandled frame %s from %s", frame.Type, from)
	}
}

// connectionTracker remembers which relay URLs a fingerprint's REQ was sent
// to, so Unsubscribe can CLOSE the same set (spec.md §4.D: the Engine only
// carries a fingerprint, not the relay list, past Subscribe time).
type connectionTracker struct {
	mu     sync.Mutex
	relays map[string][]string
}

func newConnectionTracker() *connectionTracker {
	return &connectionTracker{relays: make(map[string][]string)}
}

func (c *connectionTracker) remember(fp string, relays []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.relays[fp] = relays
}

func (c *connectionTracker) forget(fp string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	relays := c.relays[fp]
	delete(c.relays, fp)
	return relays
}

// connectionsHandler owns the RelayRegistry side of the mesh: it turns
// Subscribe/Unsubscribe/Publish control frames into the REQ/CLOSE/EVENT
// wire frames of spec.md §6 and fans them out across relays.
func connectionsHandler(ctx context.Context, cfg *config.C, registry *relay.Registry, conns *connectionTracker) mesh.Handler {
	return func(ctx2 context.Context, from string, frame mesh.Frame) {
		switch frame.Type {
		case mesh.FrameSubscribe:
			var payload subscription.SubscribePayload
			if err := mesh.DecodePayload(frame.Payload, &payload); chk.E(err) {
				return
			}
			relays := relayURLsFor(payload.Requests, cfg.DefaultRelays)
			conns.remember(payload.Fingerprint, relays)
			req, err := wire.BuildReq(payload.Fingerprint, payload.Requests...)
			if chk.E(err) {
				return
			}
			for _, res := range registry.SendToRelays(ctx, relays, req) {
				if chk.E(res.Err) {
					log.D.F("connections: REQ %s -> %s failed: %v", payload.Fingerprint, res.URL, res.Err)
				}
			}
		case mesh.FrameUnsubscribe:
			var payload subscription.UnsubscribePayload
			if err := mesh.DecodePayload(frame.Payload, &payload); chk.E(err) {
				return
			}
			relays := conns.forget(payload.Fingerprint)
			closeFrame, err := wire.BuildClose(payload.Fingerprint)
			if chk.E(err) {
				return
			}
			registry.SendToRelays(ctx, relays, closeFrame)
		case mesh.FramePublish:
			var payload subscription.PublishPayload
			if err := mesh.DecodePayload(frame.Payload, &payload); chk.E(err) {
				return
			}
			relays := payload.DefaultRelays
			if len(relays) == 0 {
				relays = cfg.DefaultRelays
			}
			eventFrame, err := wire.BuildEvent(payload.Event)
			if chk.E(err) {
				return
			}
			for _, res := range registry.SendToRelays(ctx, relays, eventFrame) {
				if chk.E(res.Err) {
					log.D.F("connections: EVENT %s -> %s failed: %v", payload.Fingerprint, res.URL, res.Err)
				}
			}
		case mesh.FrameShutdown:
		default:
			log.D.F("connections: ignoring unhandled frame %s from %s", frame.Type, from)
		}
	}
}

// relayURLsFor collects the union of relay URLs named across requests,
// falling back to defaults when none of them name any (spec.md §6's
// Request.Relays is optional per-request).
func relayURLsFor(requests []wire.Request, defaults []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range requests {
		for _, url := range r.Relays {
			if !seen[url] {
				seen[url] = true
				out = append(out, url)
			}
		}
	}
	if len(out) == 0 {
		return defaults
	}
	return out
}

// routeInboundFrame turns every relay.Registry.FrameHandler callback into
// either a SharedRing status envelope (OK/CLOSED/NOTICE/AUTH -- spec.md §6)
// or a delivery into the matching subscription's buffer (EVENT/EOSE).
func routeInboundFrame(engine *subscription.Engine, statusRing *ring.Ring) relay.FrameHandler {
	return func(url string, frame []byte) {
		kind, subID := relay.ClassifyInbound(frame)
		switch kind {
		case relay.InEvent, relay.InEose:
			if subID == "" {
				return
			}
			if !engine.Deliver(subID, frame) {
				log.D.F("nostrworkerd: dropping %s for unknown/full subscription %s", kind, subID)
			}
		case relay.InOK, relay.InClosed, relay.InNotice, relay.InAuth:
			statusRing.WriteOrSentinel(ring.PackEnvelope(url, frame))
		default:
		}
	}
}
