package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_AbsentFileIsZeroConfig(t *testing.T) {
	t.Setenv("LINKLOFT_CONFIG_DIR", t.TempDir())
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != (Config{}) {
		t.Fatalf("expected zero config; got %+v", cfg)
	}
}

func TestSaveLoad_RoundTripAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("LINKLOFT_CONFIG_DIR", dir)

	want := Config{
		HasuraEndpoint:   "https://acme.hasura.app/v1/graphql",
		IdentityDomain:   "https://acme.auth0.com",
		IdentityClientID: "client-1",
		UploadCloudName:  "acme",
	}
	if err := Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "config.json")); err != nil {
		t.Fatalf("config file missing: %v", err)
	}

	t.Setenv("LINKLOFT_HASURA_ENDPOINT", "http://localhost:8080/v1/graphql")
	got, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.HasuraEndpoint != "http://localhost:8080/v1/graphql" {
		t.Fatalf("env override lost: %q", got.HasuraEndpoint)
	}
	if got.IdentityDomain != want.IdentityDomain || got.IdentityClientID != want.IdentityClientID {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestLoad_RejectsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("LINKLOFT_CONFIG_DIR", dir)
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte("{nope"), 0o600); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := Load(); err == nil {
		t.Fatalf("expected decode error")
	}
}
