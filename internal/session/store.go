package session

import (
	"os"
	"path/filepath"
	"strings"
)

// tokenKey is the fixed name the credential is persisted under.
const tokenKey = "jwtToken"

// TokenStore persists the credential token between runs, the local
// storage of this client.
type TokenStore struct {
	dir string
}

func NewTokenStore(dir string) *TokenStore {
	return &TokenStore{dir: dir}
}

func (s *TokenStore) path() string {
	return filepath.Join(s.dir, tokenKey)
}

// Save writes the token, creating the state dir if needed.
func (s *TokenStore) Save(token string) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return err
	}
	return os.WriteFile(s.path(), []byte(token), 0o600)
}

// Load returns the stored token, or "" when none is stored.
func (s *TokenStore) Load() (string, error) {
	raw, err := os.ReadFile(s.path())
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

// Clear removes the stored token. Removing a token that is already
// gone is not an error.
func (s *TokenStore) Clear() error {
	err := os.Remove(s.path())
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
