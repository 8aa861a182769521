package signer

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	pubkeyByHex map[string]string
	bunkerOwner map[string]string // url -> pubkey
	discovered  map[string]string // nostrconnect url -> bunker url
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		pubkeyByHex: map[string]string{},
		bunkerOwner: map[string]string{},
		discovered:  map[string]string{},
	}
}

func (b *fakeBackend) PrivkeyPubkey(hex string) (string, error) {
	pk, ok := b.pubkeyByHex[hex]
	if !ok {
		pk = "pub-" + hex
		b.pubkeyByHex[hex] = pk
	}
	return pk, nil
}

func (b *fakeBackend) PrivkeySign(hex string, template json.RawMessage) (json.RawMessage, error) {
	pk, _ := b.PrivkeyPubkey(hex)
	return json.Marshal(map[string]string{"pubkey": pk, "template": string(template)})
}

func (b *fakeBackend) BunkerConnect(ctx context.Context, url, clientSecret string) (string, error) {
	pk, ok := b.bunkerOwner[url]
	if !ok {
		pk = "pub-" + url
		b.bunkerOwner[url] = pk
	}
	return pk, nil
}

func (b *fakeBackend) BunkerSign(ctx context.Context, url, clientSecret string, template json.RawMessage) (json.RawMessage, error) {
	pk, _ := b.BunkerConnect(ctx, url, clientSecret)
	return json.Marshal(map[string]string{"pubkey": pk, "template": string(template)})
}

func (b *fakeBackend) BunkerDiscoverURL(ctx context.Context, nostrconnectURL string) (string, error) {
	if u, ok := b.discovered[nostrconnectURL]; ok {
		return u, nil
	}
	return "bunker://resolved-from-" + nostrconnectURL, nil
}

func TestSetPrivateKeyAuthenticatesAndPersists(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenStore(filepath.Join(dir, "signer.json"))
	require.NoError(t, err)
	backend := newFakeBackend()

	var authed string
	o := NewOrchestrator(store, backend, nil, func(pk string) { authed = pk })

	require.NoError(t, o.SetPrivateKey("deadbeef"))
	assert.Equal(t, "pub-deadbeef", o.GetActivePubkey())
	assert.Equal(t, "pub-deadbeef", authed)
	assert.Equal(t, "pub-deadbeef", store.ActivePubkey())

	sess, ok := store.Session("pub-deadbeef")
	require.True(t, ok)
	assert.Equal(t, TypePrivkey, sess.Type)
}

func TestRestoreReplaysPersistedSession(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "signer.json")
	store, err := OpenStore(path)
	require.NoError(t, err)
	backend := newFakeBackend()
	o := NewOrchestrator(store, backend, nil, nil)
	require.NoError(t, o.SetPrivateKey("cafe"))

	store2, err := OpenStore(path)
	require.NoError(t, err)
	o2 := NewOrchestrator(store2, backend, nil, nil)
	require.NoError(t, o2.Restore(context.Background()))
	assert.Equal(t, "pub-cafe", o2.GetActivePubkey())
}

func TestSetNIP46QRRewritesPendingToBunkerOnDiscovery(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenStore(filepath.Join(dir, "signer.json"))
	require.NoError(t, err)
	backend := newFakeBackend()
	backend.discovered["nostrconnect://abc"] = "bunker://xyz"
	o := NewOrchestrator(store, backend, nil, nil)

	require.NoError(t, o.SetNIP46QR(context.Background(), "nostrconnect://abc", "secret"))
	pubkey := o.GetActivePubkey()
	require.NotEmpty(t, pubkey)

	sess, ok := store.Session(pubkey)
	require.True(t, ok)
	assert.Equal(t, TypeNIP46Bunker, sess.Type, "persisted as nip46_bunker per spec.md's bunker-discovered persistence rule")
}

func TestFailedAuthenticationDoesNotPersist(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenStore(filepath.Join(dir, "signer.json"))
	require.NoError(t, err)
	o := NewOrchestrator(store, nil, nil, nil)

	err = o.SetNIP07(context.Background())
	require.ErrorIs(t, err, ErrNoExtension)
	assert.Equal(t, "", o.GetActivePubkey())
	assert.Equal(t, "", store.ActivePubkey())
}

func TestRemoveAccountSwitchesToRemainingOrLogsOut(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenStore(filepath.Join(dir, "signer.json"))
	require.NoError(t, err)
	backend := newFakeBackend()
	o := NewOrchestrator(store, backend, nil, nil)

	require.NoError(t, o.SetPrivateKey("a"))
	require.NoError(t, o.SetPrivateKey("b"))
	assert.Equal(t, "pub-b", o.GetActivePubkey())

	require.NoError(t, o.RemoveAccount(context.Background()))
	assert.Equal(t, "pub-a", o.GetActivePubkey(), "switches to remaining account")

	require.NoError(t, o.RemoveAccount(context.Background()))
	assert.Equal(t, "", o.GetActivePubkey(), "logs out once no accounts remain")
}

func TestSignEventDispatchesByActiveVariant(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenStore(filepath.Join(dir, "signer.json"))
	require.NoError(t, err)
	backend := newFakeBackend()
	o := NewOrchestrator(store, backend, nil, nil)
	require.NoError(t, o.SetPrivateKey("feed"))

	signed, err := o.SignEvent(context.Background(), json.RawMessage(`{"kind":1}`))
	require.NoError(t, err)
	assert.Contains(t, string(signed), "pub-feed")
}
