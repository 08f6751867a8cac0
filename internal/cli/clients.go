package cli

import (
	"errors"

	"linkloft/internal/config"
	"linkloft/internal/hasura"
	"linkloft/internal/identity"
	"linkloft/internal/session"
	"linkloft/internal/upload"
)

// Client construction shared by all commands. Config comes from
// ~/.linkloft/config.json plus LINKLOFT_* env overrides.

func newHasuraClient(cfg config.Config) (*hasura.Client, error) {
	if cfg.HasuraEndpoint == "" {
		return nil, errors.New("no data service configured; set hasuraEndpoint in config.json or LINKLOFT_HASURA_ENDPOINT")
	}
	return hasura.NewClient(hasura.Config{Endpoint: cfg.HasuraEndpoint})
}

func newIdentityClient(cfg config.Config) (*identity.Client, error) {
	if cfg.IdentityDomain == "" || cfg.IdentityClientID == "" {
		return nil, errors.New("no identity provider configured; set identityDomain and identityClientId in config.json or the LINKLOFT_IDENTITY_* env vars")
	}
	return identity.NewClient(identity.Config{Domain: cfg.IdentityDomain, ClientID: cfg.IdentityClientID})
}

// newUploadClient returns nil when no image hosting is configured;
// callers treat that as "feature off".
func newUploadClient(cfg config.Config) (*upload.Client, error) {
	if cfg.UploadCloudName == "" {
		return nil, nil
	}
	return upload.NewClient(upload.Config{CloudName: cfg.UploadCloudName, Preset: cfg.UploadPreset})
}

func currentSession() (token, subject string, err error) {
	token, subject, err = session.Store{}.Load()
	if errors.Is(err, session.ErrLoggedOut) {
		return "", "", errors.New("not logged in; run `linkloft login` first")
	}
	return token, subject, err
}
