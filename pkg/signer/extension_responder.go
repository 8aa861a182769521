package signer

import (
	"context"
	"encoding/json"

	"nostrworker.dev/pkg/mesh"
)

// HandleExtensionRequest is the "main thread" half of the Crypto<->UI
// extension_request/extension_response round trip (spec.md §4.E): it
// decodes frame, performs the requested op against impl, and returns the
// extension_response frame the Crypto worker should send back. ok is false
// if frame isn't an extension_request, in which case the caller should treat
// it as unhandled.
//
// impl is the host's actual NIP-07 capability, if it has one. A headless
// process has none, so passing nil is the ordinary case: every request
// fails with ErrNoExtension, exactly as a window.nostr-less environment
// would behave.
//
// Grounded on publish/publisher.go's Register/Receive/Deliver dispatch
// shape: one message type, several payload kinds, dispatch by a tag --
// here the tag is extensionOp rather than a type string, and the fan-out is
// a single reply rather than many subscriber callbacks.
func HandleExtensionRequest(ctx context.Context, frame mesh.Frame, impl ExtensionCapability) (reply mesh.Frame, ok bool) {
	if frame.Type != mesh.FrameExtensionReq {
		return mesh.Frame{}, false
	}
	var req extensionRequestPayload
	if err := mesh.DecodePayload(frame.Payload, &req); err != nil {
		return mesh.Frame{}, false
	}
	resp := serveExtensionOp(ctx, impl, req)
	payload, err := mesh.EncodePayload(resp)
	if err != nil {
		return mesh.Frame{}, false
	}
	return mesh.Frame{Type: mesh.FrameExtensionResp, Payload: payload}, true
}

func serveExtensionOp(ctx context.Context, impl ExtensionCapability, req extensionRequestPayload) extensionResponsePayload {
	if impl == nil {
		return extensionResponsePayload{ID: req.ID, OK: false, Error: ErrNoExtension.Error()}
	}
	switch req.Op {
	case opGetPublicKey:
		pk, err := impl.GetPublicKey(ctx)
		return jsonResult(req.ID, pk, err)
	case opSignEvent:
		signed, err := impl.SignEvent(ctx, req.Payload)
		return rawResult(req.ID, signed, err)
	case opNip04Encrypt, opNip04Decrypt, opNip44Encrypt, opNip44Decrypt:
		var p cipherPayload
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return extensionResponsePayload{ID: req.ID, OK: false, Error: err.Error()}
		}
		out, err := dispatchCipherOp(ctx, impl, req.Op, p.Pubkey, p.Text)
		return jsonResult(req.ID, out, err)
	default:
		return extensionResponsePayload{ID: req.ID, OK: false, Error: "signer: unknown extension op " + string(req.Op)}
	}
}

func dispatchCipherOp(ctx context.Context, impl ExtensionCapability, op extensionOp, pubkey, text string) (string, error) {
	switch op {
	case opNip04Encrypt:
		return impl.Nip04Encrypt(ctx, pubkey, text)
	case opNip04Decrypt:
		return impl.Nip04Decrypt(ctx, pubkey, text)
	case opNip44Encrypt:
		return impl.Nip44Encrypt(ctx, pubkey, text)
	default: // opNip44Decrypt
		return impl.Nip44Decrypt(ctx, pubkey, text)
	}
}

func jsonResult(id uint64, v string, err error) extensionResponsePayload {
	if err != nil {
		return extensionResponsePayload{ID: id, OK: false, Error: err.Error()}
	}
	raw, mErr := json.Marshal(v)
	if mErr != nil {
		return extensionResponsePayload{ID: id, OK: false, Error: mErr.Error()}
	}
	return extensionResponsePayload{ID: id, OK: true, Result: raw}
}

func rawResult(id uint64, raw json.RawMessage, err error) extensionResponsePayload {
	if err != nil {
		return extensionResponsePayload{ID: id, OK: false, Error: err.Error()}
	}
	return extensionResponsePayload{ID: id, OK: true, Result: raw}
}
