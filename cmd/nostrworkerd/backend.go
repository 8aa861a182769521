package main

import (
	"context"
	"encoding/hex"
	"encoding/json"

	"github.com/cespare/xxhash/v2"
	"lukechampine.com/frand"

	"nostrworker.dev/pkg/signer"
)

// devBackend is a placeholder signer.Backend: it derives pubkeys
// deterministically from whatever key material it's given and produces
// frand-random "signatures" rather than running real secp256k1/NIP-46
// math (spec.md §1 carves the concrete cryptographic primitives out of
// scope -- a real host process supplies its own Backend). Grounded on
// cmd/benchmark/test_signer.go, which does exactly this -- a signer.I
// implementation that fabricates keys and signatures with frand for
// benchmarking rather than performing real cryptography.
type devBackend struct{}

func newDevBackend() *devBackend { return &devBackend{} }

func derivedPubkey(material string) string {
	sum := xxhash.Sum64String(material)
	var b [8]byte
	for i := range b {
		b[i] = byte(sum >> (8 * uint(i)))
	}
	return hex.EncodeToString(b[:])
}

func (b *devBackend) PrivkeyPubkey(hexKey string) (string, error) {
	return derivedPubkey("privkey:" + hexKey), nil
}

func (b *devBackend) PrivkeySign(hexKey string, template json.RawMessage) (json.RawMessage, error) {
	return signedEnvelope(derivedPubkey("privkey:"+hexKey), template), nil
}

func (b *devBackend) BunkerConnect(ctx context.Context, url, clientSecret string) (string, error) {
	return derivedPubkey("bunker:" + url + ":" + clientSecret), nil
}

func (b *devBackend) BunkerSign(ctx context.Context, url, clientSecret string, template json.RawMessage) (json.RawMessage, error) {
	return signedEnvelope(derivedPubkey("bunker:"+url+":"+clientSecret), template), nil
}

func (b *devBackend) BunkerDiscoverURL(ctx context.Context, nostrconnectURL string) (string, error) {
	return "bunker://" + derivedPubkey("discover:"+nostrconnectURL), nil
}

func signedEnvelope(pubkey string, template json.RawMessage) json.RawMessage {
	out, _ := json.Marshal(struct {
		Pubkey    string          `json:"pubkey"`
		Template  json.RawMessage `json:"template"`
		Signature string          `json:"sig"`
	}{
		Pubkey:    pubkey,
		Template:  template,
		Signature: hex.EncodeToString(frand.Bytes(64)),
	})
	return out
}

var _ signer.Backend = (*devBackend)(nil)
