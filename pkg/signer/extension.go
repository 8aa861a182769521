package signer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/atomic"

	"nostrworker.dev/pkg/mesh"
)

// extensionOp names the op field of an extension_request/extension_response
// round trip (spec.md §4.E: "op in {getPublicKey, signEvent, nip04Encrypt,
// nip04Decrypt, nip44Encrypt, nip44Decrypt}").
type extensionOp string

const (
	opGetPublicKey  extensionOp = "getPublicKey"
	opSignEvent     extensionOp = "signEvent"
	opNip04Encrypt  extensionOp = "nip04Encrypt"
	opNip04Decrypt  extensionOp = "nip04Decrypt"
	opNip44Encrypt  extensionOp = "nip44Encrypt"
	opNip44Decrypt  extensionOp = "nip44Decrypt"
)

type extensionRequestPayload struct {
	ID      uint64          `msgpack:"id"`
	Op      extensionOp     `msgpack:"op"`
	Payload json.RawMessage `msgpack:"payload,omitempty"`
}

type extensionResponsePayload struct {
	ID     uint64          `msgpack:"id"`
	OK     bool            `msgpack:"ok"`
	Result json.RawMessage `msgpack:"result,omitempty"`
	Error  string          `msgpack:"error,omitempty"`
}

// MeshExtension implements ExtensionCapability by round-tripping
// extension_request/extension_response frames over the Crypto<->UI link
// (spec.md §4.E: "Signer posts extension_request ... main thread performs
// the op and posts extension_response ... Signer correlates by id").
//
// Grounded on pkg/protocol/ws/pool.go's xsync.MapOf usage, reused here for
// the request/response correlation table (SPEC_FULL.md DOMAIN STACK).
type MeshExtension struct {
	link    mesh.Link
	seq     atomic.Uint64
	pending *xsync.MapOf[uint64, chan extensionResult]
}

type extensionResult struct {
	result json.RawMessage
	errMsg string
}

// NewMeshExtension wraps link and starts the goroutine that demultiplexes
// extension_response frames back to the caller awaiting them.
func NewMeshExtension(link mesh.Link) *MeshExtension {
	e := &MeshExtension{link: link, pending: xsync.NewMapOf[uint64, chan extensionResult]()}
	go e.listen()
	return e
}

func (e *MeshExtension) listen() {
	for data := range e.link.In {
		frame, err := mesh.Decode(data)
		if err != nil || frame.Type != mesh.FrameExtensionResp {
			continue
		}
		var resp extensionResponsePayload
		if err := mesh.DecodePayload(frame.Payload, &resp); err != nil {
			continue
		}
		ch, ok := e.pending.LoadAndDelete(resp.ID)
		if !ok {
			continue
		}
		if resp.OK {
			ch <- extensionResult{result: resp.Result}
		} else {
			ch <- extensionResult{errMsg: resp.Error}
		}
		close(ch)
	}
}

func (e *MeshExtension) call(ctx context.Context, op extensionOp, payload any) (json.RawMessage, error) {
	id := e.seq.Add(1)
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	ch := make(chan extensionResult, 1)
	e.pending.Store(id, ch)

	reqPayload, err := mesh.EncodePayload(extensionRequestPayload{ID: id, Op: op, Payload: raw})
	if err != nil {
		e.pending.Delete(id)
		return nil, err
	}
	frameBytes, err := mesh.Encode(mesh.Frame{Type: mesh.FrameExtensionReq, Payload: reqPayload})
	if err != nil {
		e.pending.Delete(id)
		return nil, err
	}

	select {
	case e.link.Out <- frameBytes:
	case <-ctx.Done():
		e.pending.Delete(id)
		return nil, ctx.Err()
	}

	select {
	case res := <-ch:
		if res.errMsg != "" {
			return nil, fmt.Errorf("signer: extension %s: %s", op, res.errMsg)
		}
		return res.result, nil
	case <-ctx.Done():
		e.pending.Delete(id)
		return nil, ctx.Err()
	}
}

type pubkeyOnly struct{}

func (e *MeshExtension) GetPublicKey(ctx context.Context) (string, error) {
	res, err := e.call(ctx, opGetPublicKey, pubkeyOnly{})
	if err != nil {
		return "", err
	}
	var pk string
	if err := json.Unmarshal(res, &pk); err != nil {
		return "", err
	}
	return pk, nil
}

func (e *MeshExtension) SignEvent(ctx context.Context, template json.RawMessage) (json.RawMessage, error) {
	return e.call(ctx, opSignEvent, template)
}

type cipherPayload struct {
	Pubkey string `json:"pubkey"`
	Text   string `json:"text"`
}

func (e *MeshExtension) callCipher(ctx context.Context, op extensionOp, pubkey, text string) (string, error) {
	res, err := e.call(ctx, op, cipherPayload{Pubkey: pubkey, Text: text})
	if err != nil {
		return "", err
	}
	var out string
	if err := json.Unmarshal(res, &out); err != nil {
		return "", err
	}
	return out, nil
}

func (e *MeshExtension) Nip04Encrypt(ctx context.Context, pubkey, plaintext string) (string, error) {
	return e.callCipher(ctx, opNip04Encrypt, pubkey, plaintext)
}

func (e *MeshExtension) Nip04Decrypt(ctx context.Context, pubkey, ciphertext string) (string, error) {
	return e.callCipher(ctx, opNip04Decrypt, pubkey, ciphertext)
}

func (e *MeshExtension) Nip44Encrypt(ctx context.Context, pubkey, plaintext string) (string, error) {
	return e.callCipher(ctx, opNip44Encrypt, pubkey, plaintext)
}

func (e *MeshExtension) Nip44Decrypt(ctx context.Context, pubkey, ciphertext string) (string, error) {
	return e.callCipher(ctx, opNip44Decrypt, pubkey, ciphertext)
}
