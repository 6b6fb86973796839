package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTP.Port != 8080 {
		t.Errorf("Port = %d", cfg.HTTP.Port)
	}
	if cfg.Realm != "realm" {
		t.Errorf("Realm = %q", cfg.Realm)
	}
	if cfg.Token.SigningKeyName != "mqtt-signing-key" {
		t.Errorf("SigningKeyName = %q", cfg.Token.SigningKeyName)
	}
	if cfg.Postgres.LookupTimeout != 2*time.Second {
		t.Errorf("LookupTimeout = %v", cfg.Postgres.LookupTimeout)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("SCENEGRID_REALM", "myrealm")
	t.Setenv("GOOGLE_CLIENT_IDS", "a.apps.example,b.apps.example")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTP.Port != 9000 {
		t.Errorf("Port = %d", cfg.HTTP.Port)
	}
	if cfg.Realm != "myrealm" {
		t.Errorf("Realm = %q", cfg.Realm)
	}
	if len(cfg.Auth.GoogleClientIDs) != 2 || cfg.Auth.GoogleClientIDs[1] != "b.apps.example" {
		t.Errorf("GoogleClientIDs = %v", cfg.Auth.GoogleClientIDs)
	}
}

func TestLoadWithFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
realm = "filerealm"

[http]
port = 7000

[postgres]
dsn = "postgres://file:file@db:5432/perms"
lookup_timeout = "500ms"

[token]
conference_audience = "scenegrid"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SCENEGRID_CONFIG", path)

	cfg, err := LoadWithFile()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Realm != "filerealm" {
		t.Errorf("Realm = %q", cfg.Realm)
	}
	if cfg.HTTP.Port != 7000 {
		t.Errorf("Port = %d", cfg.HTTP.Port)
	}
	if cfg.Postgres.LookupTimeout != 500*time.Millisecond {
		t.Errorf("LookupTimeout = %v", cfg.Postgres.LookupTimeout)
	}
	if cfg.Token.ConferenceAudience != "scenegrid" {
		t.Errorf("ConferenceAudience = %q", cfg.Token.ConferenceAudience)
	}
	// Untouched fields keep their defaults
	if cfg.MongoDB.Database != "scenegrid" {
		t.Errorf("MongoDB.Database = %q", cfg.MongoDB.Database)
	}
}

func TestEnvBeatsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("realm = \"filerealm\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SCENEGRID_CONFIG", path)
	t.Setenv("SCENEGRID_REALM", "envrealm")

	cfg, err := LoadWithFile()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Realm != "envrealm" {
		t.Errorf("Realm = %q, want env override", cfg.Realm)
	}
}

func TestWriteExampleConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.toml")
	if err := WriteExampleConfig(path); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SCENEGRID_CONFIG", path)
	if _, err := LoadWithFile(); err != nil {
		t.Errorf("example config does not load: %v", err)
	}
}
