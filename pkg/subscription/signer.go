package subscription

import (
	"context"
	"encoding/json"
)

// Signer is the narrow capability the Engine needs from the Crypto worker
// (spec.md §4.D: "signEvent(template, callback), setSigner(type, payload),
// getActivePubkey()"). pkg/signer.Orchestrator implements it; the Engine
// only depends on this interface so it never needs to know about signer
// session internals, matching the mesh's point-to-point isolation (spec.md
// §4.C: "each worker treats its neighbors as opaque sinks/sources").
type Signer interface {
	SignEvent(ctx context.Context, template json.RawMessage) (json.RawMessage, error)
	SetSigner(kind string, payload json.RawMessage) error
	GetActivePubkey() string
}
