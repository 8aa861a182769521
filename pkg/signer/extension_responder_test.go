package signer

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nostrworker.dev/pkg/mesh"
)

type fakeExtension struct {
	pubkey string
}

func (f *fakeExtension) GetPublicKey(ctx context.Context) (string, error) { return f.pubkey, nil }
func (f *fakeExtension) SignEvent(ctx context.Context, template json.RawMessage) (json.RawMessage, error) {
	return json.Marshal(map[string]string{"pubkey": f.pubkey, "template": string(template)})
}
func (f *fakeExtension) Nip04Encrypt(ctx context.Context, pubkey, plaintext string) (string, error) {
	return "enc04:" + plaintext, nil
}
func (f *fakeExtension) Nip04Decrypt(ctx context.Context, pubkey, ciphertext string) (string, error) {
	return "dec04:" + ciphertext, nil
}
func (f *fakeExtension) Nip44Encrypt(ctx context.Context, pubkey, plaintext string) (string, error) {
	return "enc44:" + plaintext, nil
}
func (f *fakeExtension) Nip44Decrypt(ctx context.Context, pubkey, ciphertext string) (string, error) {
	return "dec44:" + ciphertext, nil
}

func requestFrame(t *testing.T, op extensionOp, payload any) mesh.Frame {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	body, err := mesh.EncodePayload(extensionRequestPayload{ID: 7, Op: op, Payload: raw})
	require.NoError(t, err)
	return mesh.Frame{Type: mesh.FrameExtensionReq, Payload: body}
}

func decodeResponse(t *testing.T, frame mesh.Frame) extensionResponsePayload {
	t.Helper()
	var resp extensionResponsePayload
	require.NoError(t, mesh.DecodePayload(frame.Payload, &resp))
	return resp
}

func TestHandleExtensionRequestIgnoresOtherFrameTypes(t *testing.T) {
	_, ok := HandleExtensionRequest(context.Background(), mesh.Frame{Type: mesh.FrameSubscribe}, nil)
	assert.False(t, ok)
}

func TestHandleExtensionRequestWithNoImplFailsWithErrNoExtension(t *testing.T) {
	req := requestFrame(t, opGetPublicKey, struct{}{})
	reply, ok := HandleExtensionRequest(context.Background(), req, nil)
	require.True(t, ok)
	resp := decodeResponse(t, reply)
	assert.False(t, resp.OK)
	assert.Equal(t, ErrNoExtension.Error(), resp.Error)
}

func TestHandleExtensionRequestGetPublicKey(t *testing.T) {
	impl := &fakeExtension{pubkey: "pub1"}
	req := requestFrame(t, opGetPublicKey, struct{}{})
	reply, ok := HandleExtensionRequest(context.Background(), req, impl)
	require.True(t, ok)
	resp := decodeResponse(t, reply)
	require.True(t, resp.OK)
	var pk string
	require.NoError(t, json.Unmarshal(resp.Result, &pk))
	assert.Equal(t, "pub1", pk)
}

func TestHandleExtensionRequestCipherRoundTrip(t *testing.T) {
	impl := &fakeExtension{pubkey: "pub1"}
	req := requestFrame(t, opNip44Encrypt, cipherPayload{Pubkey: "pub1", Text: "hello"})
	reply, ok := HandleExtensionRequest(context.Background(), req, impl)
	require.True(t, ok)
	resp := decodeResponse(t, reply)
	require.True(t, resp.OK)
	var out string
	require.NoError(t, json.Unmarshal(resp.Result, &out))
	assert.Equal(t, "enc44:hello", out)
}
