package signer

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreRoundTripsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signer.json")
	s1, err := OpenStore(path)
	require.NoError(t, err)
	require.NoError(t, s1.SaveSession("pub1", Session{Type: TypePrivkey, Payload: []byte(`{"hex":"abc"}`)}))

	s2, err := OpenStore(path)
	require.NoError(t, err)
	assert.Equal(t, "pub1", s2.ActivePubkey())
	sess, ok := s2.Session("pub1")
	require.True(t, ok)
	assert.Equal(t, TypePrivkey, sess.Type)
}

func TestOpenStoreMissingFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.json")
	s, err := OpenStore(path)
	require.NoError(t, err)
	assert.Equal(t, "", s.ActivePubkey())
	_, ok := s.Session("anything")
	assert.False(t, ok)
}

func TestClearActivePubkeyKeepsSessions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signer.json")
	s, err := OpenStore(path)
	require.NoError(t, err)
	require.NoError(t, s.SaveSession("pub1", Session{Type: TypePrivkey}))
	require.NoError(t, s.ClearActivePubkey())
	assert.Equal(t, "", s.ActivePubkey())
	_, ok := s.Session("pub1")
	assert.True(t, ok)
}
