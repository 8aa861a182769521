// Package wire defines the shapes crossing the runtime's external
// boundary (spec.md §6): subscribe options, the per-subscription request
// (filter) shape, and the persistent-state key names, plus BuildReq,
// BuildClose and BuildEvent (frame.go), which encode the NIP-01 envelope
// arrays from them; cmd/nostrworkerd calls those builders.
package wire

// Options are the per-subscribe knobs of spec.md §6's option table. Zero
// values are meaningful defaults (no timeout, no cap, optimization off)
// except where noted.
type Options struct {
	CloseOnEOSE        bool
	CacheFirst         bool
	TimeoutMs          int
	MaxEvents          int
	SkipCache          bool
	Force              bool
	BytesPerEvent      int
	EnableOptimization bool
	Pipeline           []string
}

// DefaultBytesPerEvent is used when Options.BytesPerEvent is unset
// (spec.md §4.D: calculateBufferSize's default).
const DefaultBytesPerEvent = 3072

// Request is one subscription's filter set (spec.md §6 "request shape").
// Tags maps a single-character filter key (e.g. "e", "p") to the list of
// values it must match one of.
type Request struct {
	IDs         []string
	Authors     []string
	Kinds       []int
	Tags        map[string][]string
	Since       int64
	Until       int64
	Limit       int
	Search      string
	Relays      []string
	CloseOnEOSE bool
	CacheFirst  bool
	NoCache     bool
}

// Persistent-state key names (spec.md §6 "Persistent state"): two keys in
// the host's synchronous key-value store.
const (
	KeySignerAccounts = "nostr_signer_accounts"
	KeyActivePubkey   = "nostr_active_pubkey"
)

// RelayStatus is the closed set of values used in the "status|url" text
// form of relay state transitions (spec.md §6 "Status ring envelope").
type RelayStatus string

const (
	StatusConnected RelayStatus = "connected"
	StatusFailed    RelayStatus = "failed"
	StatusClose     RelayStatus = "close"
)
