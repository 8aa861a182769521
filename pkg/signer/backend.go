package signer

import (
	"context"
	"encoding/json"
)

// Backend performs the actual cryptographic and NIP-46 transport operations
// each signer variant needs. spec.md §1 carves the concrete signature
// algorithm and key derivation out of scope ("specifies only its protocol,
// not the math"), so this package only defines the shape a caller's
// implementation must have.
type Backend interface {
	// PrivkeyPubkey derives the hex pubkey for a hex private key.
	PrivkeyPubkey(hex string) (pubkey string, err error)
	// PrivkeySign signs template with a hex private key.
	PrivkeySign(hex string, template json.RawMessage) (signed json.RawMessage, err error)

	// BunkerConnect opens (or verifies) a NIP-46 remote-signer session at
	// url and returns the controlled pubkey.
	BunkerConnect(ctx context.Context, url, clientSecret string) (pubkey string, err error)
	// BunkerSign asks the remote signer at url to sign template.
	BunkerSign(ctx context.Context, url, clientSecret string, template json.RawMessage) (signed json.RawMessage, err error)
	// BunkerDiscoverURL resolves a nostrconnect:// URL into the canonical
	// bunker:// URL the session should persist under (spec.md §4.E
	// "Bunker-discovered persistence").
	BunkerDiscoverURL(ctx context.Context, nostrconnectURL string) (bunkerURL string, err error)
}

// ExtensionCapability is the NIP-07 `window.nostr`-style escape hatch
// (spec.md §4.E): operations the Signer cannot perform itself and must
// delegate to a capability the host process injects on the main thread.
type ExtensionCapability interface {
	GetPublicKey(ctx context.Context) (pubkey string, err error)
	SignEvent(ctx context.Context, template json.RawMessage) (signed json.RawMessage, err error)
	Nip04Encrypt(ctx context.Context, pubkey, plaintext string) (ciphertext string, err error)
	Nip04Decrypt(ctx context.Context, pubkey, ciphertext string) (plaintext string, err error)
	Nip44Encrypt(ctx context.Context, pubkey, plaintext string) (ciphertext string, err error)
	Nip44Decrypt(ctx context.Context, pubkey, ciphertext string) (plaintext string, err error)
}
