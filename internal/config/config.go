// Package config loads linkloft's endpoints and service identifiers from
// ~/.linkloft/config.json, with environment overrides for scripting and
// tests.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"linkloft/internal/session"
)

// Config names the external collaborators. Everything else the program
// needs (the credential) lives in the session store.
type Config struct {
	// HasuraEndpoint is the GraphQL HTTP endpoint of the data service.
	HasuraEndpoint string `json:"hasuraEndpoint,omitempty"`

	// IdentityDomain is the identity provider tenant base URL.
	IdentityDomain string `json:"identityDomain,omitempty"`

	// IdentityClientID identifies this application to the provider.
	IdentityClientID string `json:"identityClientId,omitempty"`

	// UploadCloudName is the image-hosting account identifier.
	UploadCloudName string `json:"uploadCloudName,omitempty"`

	// UploadPreset is the unsigned upload preset. Empty uses the
	// service default.
	UploadPreset string `json:"uploadPreset,omitempty"`
}

func path() (string, error) {
	dir, err := session.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config file (absent file = zero config) and applies
// LINKLOFT_* environment overrides.
func Load() (Config, error) {
	p, err := path()
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	b, err := os.ReadFile(p)
	switch {
	case err == nil:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: %s: %w", p, err)
		}
	case errors.Is(err, os.ErrNotExist):
		// Zero config plus env overrides is a valid setup.
	default:
		return Config{}, err
	}

	applyEnv(&cfg.HasuraEndpoint, "LINKLOFT_HASURA_ENDPOINT")
	applyEnv(&cfg.IdentityDomain, "LINKLOFT_IDENTITY_DOMAIN")
	applyEnv(&cfg.IdentityClientID, "LINKLOFT_IDENTITY_CLIENT_ID")
	applyEnv(&cfg.UploadCloudName, "LINKLOFT_UPLOAD_CLOUD_NAME")
	applyEnv(&cfg.UploadPreset, "LINKLOFT_UPLOAD_PRESET")
	return cfg, nil
}

// Save writes the config file atomically.
func Save(cfg Config) error {
	p, err := path()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(p), "config.json.*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() { _ = os.Remove(tmp) }()
	if _, err := f.Write(append(b, '\n')); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	_ = os.Chmod(tmp, 0o600)
	return os.Rename(tmp, p)
}

func applyEnv(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}
