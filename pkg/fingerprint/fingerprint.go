// Package fingerprint derives the stable short identifier used to
// deduplicate subscriptions and publishes across the mesh.
package fingerprint

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// MaxLen is the maximum length of a derived fingerprint.
const MaxLen = 63

// verbatimLimit is the length below which a caller-supplied id is used as-is.
const verbatimLimit = 64

// Of derives the fingerprint of a caller-supplied subscription or publish id.
//
// If id is shorter than 64 bytes it is returned unchanged: callers that pass
// their own short, already-unique ids get them back verbatim. Longer ids are
// replaced by a base36 rendering of a 32-bit hash of the input (xxhash64
// xor-folded to 32 bits, not a rolling hash), truncated to MaxLen
// characters. This is a deduplication key, not a
// security property -- collisions just mean two distinct long ids share a
// subscription slot.
func Of(id string) string {
	if len(id) < verbatimLimit {
		return id
	}
	sum := xxhash.Sum64String(id)
	h := uint32(sum ^ (sum >> 32))
	fp := strconv.FormatUint(uint64(h), 36)
	if len(fp) > MaxLen {
		fp = fp[:MaxLen]
	}
	return fp
}
