// Package mesh wires the four worker contexts of spec.md §4.C (Parser,
// Cache, Connections, Crypto) into the point-to-point topology it specifies,
// and implements the init/wake/shutdown control protocol shared by all of
// them. Business logic (what a Subscribe frame *does*) belongs to the
// packages that run on top of a Worker (pkg/subscription, pkg/signer); this
// package only owns topology, framing, and lifecycle.
package mesh

import "github.com/vmihailenco/msgpack/v5"

// FrameType tags the control-frame union exchanged between workers and the
// UI (spec.md §4.C/§6: "a serialized binary frame (schema-defined,
// length-prefixed, tagged union)").
type FrameType string

const (
	FrameInit          FrameType = "init"
	FrameWake          FrameType = "wake"
	FrameShutdown      FrameType = "shutdown"
	FrameSubscribe     FrameType = "subscribe"
	FrameUnsubscribe   FrameType = "unsubscribe"
	FramePublish       FrameType = "publish"
	FrameSignEvent     FrameType = "sign_event"
	FrameGetPublicKey  FrameType = "get_public_key"
	FrameSetSigner     FrameType = "set_signer"
	FrameResponse      FrameType = "response"
	FrameBunkerFound   FrameType = "bunker_discovered"
	FrameExtensionReq  FrameType = "extension_request"
	FrameExtensionResp FrameType = "extension_response"
)

// Frame is the wire shape of a control message. Payload is left as raw
// bytes (itself msgpack-encoded by the caller) rather than an
// interface{}, so each worker only ever decodes the payload shapes it
// understands.
type Frame struct {
	Type    FrameType `msgpack:"type"`
	Payload []byte    `msgpack:"payload,omitempty"`
}

// Encode serializes f using msgpack, the binary format spec.md §6 calls for
// on the worker boundary. Grounded on the teacher's go.mod carrying
// vmihailenco/msgpack/v5 as a direct dependency.
func Encode(f Frame) ([]byte, error) {
	return msgpack.Marshal(f)
}

// Decode is the inverse of Encode.
func Decode(b []byte) (Frame, error) {
	var f Frame
	err := msgpack.Unmarshal(b, &f)
	return f, err
}

// EncodePayload is a convenience for building a Frame's Payload from a typed
// value.
func EncodePayload(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

// DecodePayload unmarshals a Frame's Payload into v.
func DecodePayload(b []byte, v any) error {
	return msgpack.Unmarshal(b, v)
}
