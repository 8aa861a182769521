// Package signer implements the SignerSession state machine of spec.md
// §4.E: four signer variants sharing one authenticate/persist/restore
// lifecycle, a pubkey-gated session store, and a NIP-07-style escape hatch
// for operations only the host's main thread can perform.
//
// Concrete cryptographic primitives -- signature algorithm, key derivation
// -- are out of scope (spec.md §1); this package specifies only the
// protocol and delegates the math to an injected Backend.
package signer

import "encoding/json"

// Type is one of the four signer variants spec.md §4.E names.
type Type string

const (
	TypePrivkey     Type = "privkey"
	TypeNIP07       Type = "nip07"
	TypeNIP46Bunker Type = "nip46_bunker"
	TypeNIP46QR     Type = "nip46_qr"
)

// Session is the durable record of how to sign on behalf of a pubkey
// (spec.md glossary "Signer session"): a variant tag plus whatever payload
// that variant needs to re-authenticate.
type Session struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// privkeyPayload is Session.Payload's shape for TypePrivkey.
type privkeyPayload struct {
	Hex string `json:"hex"`
}

// bunkerPayload is Session.Payload's shape for TypeNIP46Bunker and
// TypeNIP46QR (after bunker discovery rewrites a QR session's payload to
// this shape -- spec.md §4.E "Bunker-discovered persistence").
type bunkerPayload struct {
	URL          string `json:"url"`
	ClientSecret string `json:"clientSecret,omitempty"`
}
