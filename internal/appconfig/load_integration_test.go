// internal/appconfig/load_integration_test.go
package appconfig

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	oldCwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(oldCwd) })
}

func TestLoadDefaultPath(t *testing.T) {
	tempDir := t.TempDir()
	configDir := filepath.Join(tempDir, "config")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		t.Fatalf("mkdir config: %v", err)
	}

	payload := `{
  "workerBinary": "/usr/local/bin/codeintel",
  "sourceExtensions": [".c", ".h"],
  "watch": true
}`
	if err := os.WriteFile(filepath.Join(configDir, "config.json"), []byte(payload), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	chdir(t, tempDir)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.ConfigPath != DefaultConfigPath {
		t.Fatalf("expected %q, got %q", DefaultConfigPath, cfg.ConfigPath)
	}
	if len(cfg.SourceExtensions) != 2 || !cfg.Watch {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestLoadLegacyFallback(t *testing.T) {
	tempDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tempDir, "codeintel.json"), []byte(`{"inProcess": true}`), 0o644); err != nil {
		t.Fatalf("write legacy config: %v", err)
	}
	chdir(t, tempDir)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if !cfg.InProcess {
		t.Fatal("expected legacy config to be used")
	}
	if cfg.ConfigPath != "codeintel.json" {
		t.Fatalf("expected legacy path, got %q", cfg.ConfigPath)
	}
}

func TestLoadInvalidDefault(t *testing.T) {
	tempDir := t.TempDir()
	configDir := filepath.Join(tempDir, "config")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		t.Fatalf("mkdir config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "config.json"), []byte(`{"respawnBurst": -1}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	chdir(t, tempDir)

	if _, err := Load(""); err == nil {
		t.Fatal("expected error for negative burst")
	}
}

func TestLoadMissingFileError(t *testing.T) {
	chdir(t, t.TempDir())

	_, err := Load("")
	if !errors.Is(err, ErrNoConfig) {
		t.Fatalf("expected ErrNoConfig, got %v", err)
	}
}

func TestResolve(t *testing.T) {
	tempDir := t.TempDir()
	chdir(t, tempDir)

	explicit := filepath.Join(tempDir, "custom.json")
	if _, err := Resolve(explicit); !errors.Is(err, ErrNoConfig) {
		t.Fatalf("missing explicit path: expected ErrNoConfig, got %v", err)
	}
	if err := os.WriteFile(explicit, []byte(`{}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if got, err := Resolve(explicit); err != nil || got != explicit {
		t.Fatalf("Resolve(%q) = %q, %v", explicit, got, err)
	}

	if err := os.WriteFile("codeintel.json", []byte(`{}`), 0o644); err != nil {
		t.Fatalf("write legacy config: %v", err)
	}
	if got, err := Resolve(DefaultConfigPath); err != nil || got != "codeintel.json" {
		t.Fatalf("Resolve(default) = %q, %v; want legacy file", got, err)
	}
	if _, err := Resolve(filepath.Join(tempDir, "other.json")); !errors.Is(err, ErrNoConfig) {
		t.Fatal("only the default path falls back to the legacy file")
	}
}
