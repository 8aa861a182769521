package signer

import (
	"context"
	"encoding/json"
	"sync"

	"lol.mleku.dev/chk"
	"lol.mleku.dev/log"
)

// OnAuth is invoked after a session successfully authenticates and
// persists (spec.md §4.E: "an auth event is dispatched").
type OnAuth func(pubkey string)

// Orchestrator is the SignerSession state machine of spec.md §4.E. Setting
// a signer does not by itself authenticate it: the orchestrator stages a
// pending session, asks the Backend (or ExtensionCapability, for nip07) to
// resolve a pubkey, and only persists + activates on success.
type Orchestrator struct {
	mu             sync.Mutex
	pendingSession *Session
	activePubkey   string

	store   *Store
	backend Backend
	ext     ExtensionCapability
	onAuth  OnAuth
}

// NewOrchestrator constructs an Orchestrator backed by store for
// persistence and backend for the math/transport each variant needs. ext
// may be nil if the host process offers no nip07 capability; onAuth may be
// nil if the caller doesn't need the auth notification.
func NewOrchestrator(store *Store, backend Backend, ext ExtensionCapability, onAuth OnAuth) *Orchestrator {
	return &Orchestrator{store: store, backend: backend, ext: ext, onAuth: onAuth}
}

// GetActivePubkey returns the authenticated pubkey, or "" if no session has
// authenticated yet.
func (o *Orchestrator) GetActivePubkey() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.activePubkey
}

// authenticate stages pending, calls resolve to obtain a pubkey, and on
// success persists whatever pending has become by the time resolve returns
// (resolve may rewrite o.pendingSession mid-flight -- see SetNIP46QR) and
// marks it active. On failure no session is saved (spec.md §4.E: "On
// failure, no session is saved").
func (o *Orchestrator) authenticate(pending Session, resolve func() (string, error)) error {
	o.mu.Lock()
	p := pending
	o.pendingSession = &p
	o.mu.Unlock()

	pubkey, err := resolve()
	if chk.E(err) {
		o.mu.Lock()
		o.pendingSession = nil
		o.mu.Unlock()
		return err
	}

	o.mu.Lock()
	final := *o.pendingSession
	o.activePubkey = pubkey
	o.pendingSession = nil
	o.mu.Unlock()

	if err := o.store.SaveSession(pubkey, final); chk.E(err) {
		return err
	}
	log.I.F("signer: authenticated %s as %s", pubkey, final.Type)
	if o.onAuth != nil {
		o.onAuth(pubkey)
	}
	return nil
}

// SetPrivateKey implements the set_private_key message.
func (o *Orchestrator) SetPrivateKey(hex string) error {
	payload, err := json.Marshal(privkeyPayload{Hex: hex})
	if chk.E(err) {
		return err
	}
	return o.authenticate(Session{Type: TypePrivkey, Payload: payload}, func() (string, error) {
		return o.backend.PrivkeyPubkey(hex)
	})
}

// SetNIP07 implements the set_nip07 message, delegating pubkey lookup to
// the injected ExtensionCapability (spec.md §4.E's escape hatch).
func (o *Orchestrator) SetNIP07(ctx context.Context) error {
	if o.ext == nil {
		return ErrNoExtension
	}
	return o.authenticate(Session{Type: TypeNIP07}, func() (string, error) {
		return o.ext.GetPublicKey(ctx)
	})
}

// SetNIP46Bunker implements the set_nip46_bunker message.
func (o *Orchestrator) SetNIP46Bunker(ctx context.Context, url, clientSecret string) error {
	payload, err := json.Marshal(bunkerPayload{URL: url, ClientSecret: clientSecret})
	if chk.E(err) {
		return err
	}
	return o.authenticate(Session{Type: TypeNIP46Bunker, Payload: payload}, func() (string, error) {
		return o.backend.BunkerConnect(ctx, url, clientSecret)
	})
}

// SetNIP46QR implements the set_nip46_qr message. On a successful
// bunker_discovered resolution it rewrites the pending session's type and
// payload to nip46_bunker so the session restores that way on next start
// (spec.md §4.E "Bunker-discovered persistence").
func (o *Orchestrator) SetNIP46QR(ctx context.Context, nostrconnectURL, clientSecret string) error {
	payload, err := json.Marshal(bunkerPayload{URL: nostrconnectURL, ClientSecret: clientSecret})
	if chk.E(err) {
		return err
	}
	return o.authenticate(Session{Type: TypeNIP46QR, Payload: payload}, func() (string, error) {
		bunkerURL, err := o.backend.BunkerDiscoverURL(ctx, nostrconnectURL)
		if chk.E(err) {
			return "", err
		}
		rewritten, err := json.Marshal(bunkerPayload{URL: bunkerURL, ClientSecret: clientSecret})
		if chk.E(err) {
			return "", err
		}
		o.mu.Lock()
		if o.pendingSession != nil {
			o.pendingSession.Type = TypeNIP46Bunker
			o.pendingSession.Payload = rewritten
		}
		o.mu.Unlock()
		return o.backend.BunkerConnect(ctx, bunkerURL, clientSecret)
	})
}

// ClearSigner implements the clear_signer message: drops any pending
// session and the active pubkey, without touching persisted accounts.
func (o *Orchestrator) ClearSigner() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pendingSession = nil
	o.activePubkey = ""
}

// Logout clears the in-memory session and the persisted active_pubkey key
// (spec.md §4.E "Logout/remove").
func (o *Orchestrator) Logout() error {
	o.ClearSigner()
	return o.store.ClearActivePubkey()
}

// RemoveAccount deletes the active pubkey's persisted session, then either
// switches to any remaining account or logs out entirely (spec.md §4.E).
func (o *Orchestrator) RemoveAccount(ctx context.Context) error {
	pubkey := o.GetActivePubkey()
	if pubkey == "" {
		return nil
	}
	if err := o.store.DeleteSession(pubkey); chk.E(err) {
		return err
	}
	if remaining := o.store.AnyPubkey(); remaining != "" {
		sess, ok := o.store.Session(remaining)
		if ok {
			return o.replay(ctx, remaining, sess)
		}
	}
	return o.Logout()
}

// Restore re-authenticates whatever session was active on a prior run
// (spec.md §4.E "Restore"): it's a no-op if no active_pubkey is on record.
func (o *Orchestrator) Restore(ctx context.Context) error {
	pubkey := o.store.ActivePubkey()
	if pubkey == "" {
		return nil
	}
	sess, ok := o.store.Session(pubkey)
	if !ok {
		return nil
	}
	return o.replay(ctx, pubkey, sess)
}

func (o *Orchestrator) replay(ctx context.Context, pubkey string, sess Session) error {
	log.D.F("signer: restoring %s session for %s", sess.Type, pubkey)
	switch sess.Type {
	case TypePrivkey:
		var p privkeyPayload
		if err := json.Unmarshal(sess.Payload, &p); chk.E(err) {
			return err
		}
		return o.SetPrivateKey(p.Hex)
	case TypeNIP07:
		return o.SetNIP07(ctx)
	case TypeNIP46Bunker:
		var p bunkerPayload
		if err := json.Unmarshal(sess.Payload, &p); chk.E(err) {
			return err
		}
		return o.SetNIP46Bunker(ctx, p.URL, p.ClientSecret)
	case TypeNIP46QR:
		var p bunkerPayload
		if err := json.Unmarshal(sess.Payload, &p); chk.E(err) {
			return err
		}
		return o.SetNIP46QR(ctx, p.URL, p.ClientSecret)
	default:
		return ErrUnknownSignerType
	}
}

// SignEvent signs template with whatever variant is currently active
// (spec.md §4.E "sign_event").
func (o *Orchestrator) SignEvent(ctx context.Context, template json.RawMessage) (json.RawMessage, error) {
	pubkey := o.GetActivePubkey()
	if pubkey == "" {
		return nil, ErrNoActiveSession
	}
	sess, ok := o.store.Session(pubkey)
	if !ok {
		return nil, ErrNoActiveSession
	}
	switch sess.Type {
	case TypePrivkey:
		var p privkeyPayload
		if err := json.Unmarshal(sess.Payload, &p); chk.E(err) {
			return nil, err
		}
		return o.backend.PrivkeySign(p.Hex, template)
	case TypeNIP07:
		if o.ext == nil {
			return nil, ErrNoExtension
		}
		return o.ext.SignEvent(ctx, template)
	case TypeNIP46Bunker, TypeNIP46QR:
		var p bunkerPayload
		if err := json.Unmarshal(sess.Payload, &p); chk.E(err) {
			return nil, err
		}
		return o.backend.BunkerSign(ctx, p.URL, p.ClientSecret, template)
	default:
		return nil, ErrUnknownSignerType
	}
}

// SetSigner dispatches to the matching Set* method by variant name,
// adapting the subscription.Signer interface's generic (kind, payload)
// shape onto this package's typed calls.
func (o *Orchestrator) SetSigner(kind string, payload json.RawMessage) error {
	ctx := context.Background()
	switch Type(kind) {
	case TypePrivkey:
		var p privkeyPayload
		if err := json.Unmarshal(payload, &p); chk.E(err) {
			return err
		}
		return o.SetPrivateKey(p.Hex)
	case TypeNIP07:
		return o.SetNIP07(ctx)
	case TypeNIP46Bunker:
		var p bunkerPayload
		if err := json.Unmarshal(payload, &p); chk.E(err) {
			return err
		}
		return o.SetNIP46Bunker(ctx, p.URL, p.ClientSecret)
	case TypeNIP46QR:
		var p bunkerPayload
		if err := json.Unmarshal(payload, &p); chk.E(err) {
			return err
		}
		return o.SetNIP46QR(ctx, p.URL, p.ClientSecret)
	default:
		return ErrUnknownSignerType
	}
}
