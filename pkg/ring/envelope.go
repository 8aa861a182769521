package ring

import (
	"encoding/binary"
	"fmt"
)

// PackEnvelope encodes the status/envelope ring framing used between the
// Connections worker and the UI (spec.md §4.A/§6):
// [urlLen:u16 BE][url][rawLen:u32 BE][raw].
func PackEnvelope(url string, raw []byte) []byte {
	out := make([]byte, 2+len(url)+4+len(raw))
	binary.BigEndian.PutUint16(out[0:2], uint16(len(url)))
	copy(out[2:], url)
	base := 2 + len(url)
	binary.BigEndian.PutUint32(out[base:base+4], uint32(len(raw)))
	copy(out[base+4:], raw)
	return out
}

// UnpackEnvelope is the exact inverse of PackEnvelope: for any (url, raw)
// pair, UnpackEnvelope(PackEnvelope(url, raw)) returns url, raw, an empty
// rest and a nil error.
func UnpackEnvelope(b []byte) (url string, raw []byte, rest []byte, err error) {
	if len(b) < 2 {
		return "", nil, nil, fmt.Errorf("envelope: truncated url length")
	}
	urlLen := int(binary.BigEndian.Uint16(b[0:2]))
	if len(b) < 2+urlLen+4 {
		return "", nil, nil, fmt.Errorf("envelope: truncated url or raw length")
	}
	url = string(b[2 : 2+urlLen])
	base := 2 + urlLen
	rawLen := int(binary.BigEndian.Uint32(b[base : base+4]))
	if len(b) < base+4+rawLen {
		return "", nil, nil, fmt.Errorf("envelope: truncated raw payload")
	}
	raw = make([]byte, rawLen)
	copy(raw, b[base+4:base+4+rawLen])
	rest = b[base+4+rawLen:]
	return url, raw, rest, nil
}

// PackStatusLine formats the simple "status|url" text form used for relay
// state transitions (spec.md §6), e.g. "connected|wss://relay.example.com".
func PackStatusLine(status, url string) string {
	return status + "|" + url
}
