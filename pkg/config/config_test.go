package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "environment: test\n")
	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Server.Port != 8000 {
		t.Fatalf("expected default port 8000, got %d", c.Server.Port)
	}
	if c.Auth.APIKey != DefaultAPIKey {
		t.Fatalf("expected placeholder api key")
	}
	if c.Registry.StaleAfter != 300*time.Second || c.Registry.ReapInterval != 60*time.Second {
		t.Fatalf("unexpected registry defaults %+v", c.Registry)
	}
	if c.Signals.MaxRetained != 1000 {
		t.Fatalf("expected retention 1000, got %d", c.Signals.MaxRetained)
	}
	if c.Cache.Type != "memory" || c.Archive.Type != "none" {
		t.Fatalf("unexpected backend defaults cache=%s archive=%s", c.Cache.Type, c.Archive.Type)
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	path := writeConfig(t, "environment: test\n")
	t.Setenv("COPY_API_KEY", "supersecret")
	t.Setenv("PORT", "9001")
	t.Setenv("REDIS_ADDR", "cache.internal:6380")

	c, err := LoadWithEnv(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Auth.APIKey != "supersecret" {
		t.Fatalf("expected env api key, got %q", c.Auth.APIKey)
	}
	if c.Server.Port != 9001 {
		t.Fatalf("expected env port, got %d", c.Server.Port)
	}
	if c.Cache.Redis.Host != "cache.internal" || c.Cache.Redis.Port != 6380 {
		t.Fatalf("unexpected redis override %+v", c.Cache.Redis)
	}
}

func TestValidateRejectsBadBackends(t *testing.T) {
	path := writeConfig(t, "environment: test\narchive:\n  type: sqlite\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown archive type")
	}

	path = writeConfig(t, "environment: test\narchive:\n  type: kafka\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for kafka without brokers")
	}
}
