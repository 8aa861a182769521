package signer

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
)

// Store persists signer sessions the way spec.md §6 describes the
// browser's localStorage being used: a pubkey->Session table under
// nostr_signer_accounts, and a single nostr_active_pubkey string, read at
// startup and rewritten on every mutation. The Go translation (SPEC_FULL.md)
// is a mutex-guarded JSON file under the host's state directory rather than
// an in-memory KV API, since there's no browser tab for it to live in.
type Store struct {
	mu   sync.Mutex
	path string
	data storeData
}

type storeData struct {
	Accounts     map[string]Session `json:"nostr_signer_accounts"`
	ActivePubkey string             `json:"nostr_active_pubkey"`
}

// OpenStore loads path if it exists, or starts empty if it doesn't.
func OpenStore(path string) (*Store, error) {
	s := &Store{path: path, data: storeData{Accounts: map[string]Session{}}}
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(b, &s.data); err != nil {
		return nil, err
	}
	if s.data.Accounts == nil {
		s.data.Accounts = map[string]Session{}
	}
	return s, nil
}

func (s *Store) save() error {
	b, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(s.path, b, 0o600)
}

// SaveSession persists sess under pubkey and sets it as the active pubkey
// (spec.md §4.E: "the pending session ... is persisted to local storage
// keyed by pubkey, active_pubkey is set").
func (s *Store) SaveSession(pubkey string, sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Accounts[pubkey] = sess
	s.data.ActivePubkey = pubkey
	return s.save()
}

// ActivePubkey returns the currently active pubkey, or "" if none.
func (s *Store) ActivePubkey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.ActivePubkey
}

// SetActivePubkey rewrites the active-pubkey key without touching any
// session record.
func (s *Store) SetActivePubkey(pubkey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.ActivePubkey = pubkey
	return s.save()
}

// ClearActivePubkey removes the active-pubkey key (spec.md §4.E
// "Logout/remove").
func (s *Store) ClearActivePubkey() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.ActivePubkey = ""
	return s.save()
}

// Session looks up pubkey's persisted session.
func (s *Store) Session(pubkey string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.data.Accounts[pubkey]
	return sess, ok
}

// DeleteSession removes pubkey's session (spec.md §4.E "removeAccount()
// deletes the current pubkey's session").
func (s *Store) DeleteSession(pubkey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data.Accounts, pubkey)
	return s.save()
}

// AnyPubkey returns an arbitrary remaining pubkey with a saved session, or
// "" if none remain (spec.md §4.E: "removeAccount() ... either switches to
// any remaining account or logs out").
func (s *Store) AnyPubkey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for pk := range s.data.Accounts {
		return pk
	}
	return ""
}
