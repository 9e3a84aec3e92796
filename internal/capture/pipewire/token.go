package pipewire

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

// tokenStore persists the portal restore token so later sessions can skip
// the source selection dialog.
type tokenStore struct {
	path string
	mu   sync.Mutex
}

func newTokenStore(path string) *tokenStore {
	return &tokenStore{path: path}
}

type savedToken struct {
	Token string `json:"token"`
}

// Load returns the saved token, or "" if there is none
func (s *tokenStore) Load() string {
	if s.path == "" {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return ""
	}
	var t savedToken
	if err := json.Unmarshal(data, &t); err != nil {
		return ""
	}
	return t.Token
}

// Save replaces the saved token
func (s *tokenStore) Save(token string) error {
	if s.path == "" || token == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	data, err := json.Marshal(savedToken{Token: token})
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0600)
}
