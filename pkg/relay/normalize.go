package relay

import (
	"net/url"
	"strings"
)

// schemeDefaultPort names the port each relay scheme implies, so an
// explicit ":443"/":80" collapses into the same registry entry as the
// bare scheme (SPEC_FULL.md "Relay URL normalization").
var schemeDefaultPort = map[string]string{
	"wss": "443",
	"ws":  "80",
}

// NormalizeURL canonicalizes a relay URL so that equivalent spellings
// (different case, a trailing slash, an explicit default port) key the
// same Registry entry. Grounded on the call sites of the teacher's
// pkg/protocol/ws/pool.go (`normalize.URL(url)` applied to every URL
// before it touches the connection map) -- the function itself wasn't in
// the retrieval pack, so this is written from those call sites plus
// ordinary NIP-01 relay URL practice.
//
// Malformed input is returned unchanged rather than erroring: the caller
// (Registry) treats an unparsable URL the same way a browser WebSocket
// constructor would -- it simply fails to dial, later.
func NormalizeURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if port := u.Port(); port != "" && port != schemeDefaultPort[u.Scheme] {
		host = host + ":" + port
	}
	u.Host = host
	u.Path = strings.TrimSuffix(u.Path, "/")
	u.Fragment = ""
	return u.String()
}
