package subscription

import "errors"

// ErrNoSigner is returned by SetSigner, and passed to SignEvent's callback,
// when the Engine was constructed without a Signer (GetActivePubkey then
// returns "").
var ErrNoSigner = errors.New("subscription: no signer configured")
