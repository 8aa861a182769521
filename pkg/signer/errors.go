package signer

import "errors"

var (
	// ErrNoExtension is returned for the nip07 variant when the host
	// process injected no ExtensionCapability (spec.md §4.E's "globally
	// injected capability object" is simply absent).
	ErrNoExtension = errors.New("signer: no extension capability configured")
	// ErrNoActiveSession is returned by SignEvent/GetPubkey-style calls
	// when no session has authenticated successfully yet.
	ErrNoActiveSession = errors.New("signer: no active session")
	// ErrUnknownSignerType is returned when a persisted or supplied
	// Session names a Type this package doesn't recognize.
	ErrUnknownSignerType = errors.New("signer: unknown signer type")
)
