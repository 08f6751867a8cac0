// Package session holds the locally persisted credential and derives the
// current-user identity from it. The credential is an opaque bearer token
// from the identity provider; its payload is decoded locally to extract
// the subject, with no signature verification (the trust boundary is the
// network request to the provider, and the data service re-verifies every
// mutating call). Absence of a stored credential means logged out; a
// stored credential that fails to decode is discarded so it is not
// retried on the next load.
package session

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// ErrLoggedOut is returned when no usable credential is stored.
var ErrLoggedOut = errors.New("not logged in")

// ErrMalformedToken is returned when a credential cannot be decoded.
var ErrMalformedToken = errors.New("malformed credential")

const credentialFile = "session"

// Dir returns the directory holding linkloft's local state.
// LINKLOFT_CONFIG_DIR overrides it (keeps unit tests away from ~/.linkloft).
func Dir() (string, error) {
	if v := strings.TrimSpace(os.Getenv("LINKLOFT_CONFIG_DIR")); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".linkloft"), nil
}

// Store reads and writes the persisted credential.
type Store struct {
	// DirOverride, when set, bypasses Dir(). Tests use it.
	DirOverride string
}

func (s Store) path() (string, error) {
	dir := s.DirOverride
	if dir == "" {
		d, err := Dir()
		if err != nil {
			return "", err
		}
		dir = d
	}
	return filepath.Join(dir, credentialFile), nil
}

// Save persists the raw credential.
func (s Store) Save(token string) error {
	path, err := s.path()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(path), credentialFile+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() { _ = os.Remove(tmp) }()
	if _, err := f.WriteString(strings.TrimSpace(token) + "\n"); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	_ = os.Chmod(tmp, 0o600)
	return os.Rename(tmp, path)
}

// Clear removes the persisted credential. Clearing an absent credential
// is not an error.
func (s Store) Clear() error {
	path, err := s.path()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Load returns the stored credential and the subject decoded from it.
// A missing file yields ErrLoggedOut; an undecodable credential is
// discarded and also yields ErrLoggedOut, so the bad value is never
// retried.
func (s Store) Load() (token, subject string, err error) {
	path, err := s.path()
	if err != nil {
		return "", "", err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", "", ErrLoggedOut
		}
		return "", "", err
	}
	token = strings.TrimSpace(string(b))
	subject, err = Subject(token)
	if err != nil {
		_ = s.Clear()
		return "", "", ErrLoggedOut
	}
	return token, subject, nil
}

// Subject decodes the credential's payload and returns its subject
// identifier. The signature is deliberately not verified: the decoded
// subject is a display/cache hint and the owner-key value the data
// service expects, never an authorization decision.
func Subject(token string) (string, error) {
	parts := strings.Split(strings.TrimSpace(token), ".")
	if len(parts) != 3 {
		return "", ErrMalformedToken
	}
	raw, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return "", ErrMalformedToken
	}
	var claims struct {
		Sub string `json:"sub"`
	}
	if err := json.Unmarshal(raw, &claims); err != nil {
		return "", ErrMalformedToken
	}
	if strings.TrimSpace(claims.Sub) == "" {
		return "", ErrMalformedToken
	}
	return claims.Sub, nil
}
