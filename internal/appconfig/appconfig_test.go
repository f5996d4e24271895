// internal/appconfig/appconfig_test.go
package appconfig

import (
	"bytes"
	"os"
	"strings"
	"testing"
	"time"
)

func writeTemp(t *testing.T, body string) string {
	t.Helper()
	tmpfile, err := os.CreateTemp(t.TempDir(), "config.json")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tmpfile.Write([]byte(body)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}
	return tmpfile.Name()
}

// TestLoad checks that a valid file loads with defaults applied and that
// malformed, invalid or missing files are rejected.
func TestLoad(t *testing.T) {
	path := writeTemp(t, `{
        "compileFlags": ["-Wall", "-Iinclude"],
        "respawnInterval": 250,
        "debug": true
    }`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() with valid config failed: %v", err)
	}
	if cfg.ConfigPath != path {
		t.Fatalf("expected ConfigPath %q, got %q", path, cfg.ConfigPath)
	}
	if len(cfg.CompileFlags) != 2 || cfg.CompileFlags[1] != "-Iinclude" {
		t.Fatalf("unexpected compile flags %v", cfg.CompileFlags)
	}
	if cfg.InitTimeout != 10 {
		t.Fatalf("expected default init timeout of 10 seconds, got %d", cfg.InitTimeout)
	}
	if cfg.InitTimeoutDuration() != 10*time.Second {
		t.Fatalf("expected 10s, got %v", cfg.InitTimeoutDuration())
	}
	if cfg.RespawnIntervalDuration() != 250*time.Millisecond {
		t.Fatalf("expected 250ms, got %v", cfg.RespawnIntervalDuration())
	}
	if cfg.RespawnBurstSize() != 3 || cfg.SpawnFailureLimit() != 5 {
		t.Fatalf("unexpected respawn defaults %d/%d", cfg.RespawnBurstSize(), cfg.SpawnFailureLimit())
	}
	if !cfg.Debug {
		t.Fatal("expected debug to be set")
	}

	if _, err := Load(writeTemp(t, `{ "compileFlags": [`)); err == nil {
		t.Fatal("Load() with invalid JSON should have failed")
	}
	if _, err := Load(writeTemp(t, `{ "telemetry": "jaeger" }`)); err == nil {
		t.Fatal("Load() with unknown telemetry exporter should have failed")
	}
	if _, err := Load(writeTemp(t, `{ "sourceExtensions": ["c"] }`)); err == nil {
		t.Fatal("Load() with dotless extension should have failed")
	}
	if _, err := Load("nonexistent.json"); err == nil {
		t.Fatal("Load() with nonexistent file should have failed")
	}
}

func TestWorkerCommand(t *testing.T) {
	bin, args, err := Config{WorkerBinary: "/opt/bin/analyzer", WorkerArgs: []string{"--stdio"}}.WorkerCommand()
	if err != nil {
		t.Fatalf("WorkerCommand: %v", err)
	}
	if bin != "/opt/bin/analyzer" || len(args) != 1 || args[0] != "--stdio" {
		t.Fatalf("unexpected command %s %v", bin, args)
	}

	bin, args, err = Config{}.WorkerCommand()
	if err != nil {
		t.Fatalf("WorkerCommand default: %v", err)
	}
	self, _ := os.Executable()
	if bin != self {
		t.Fatalf("expected %q, got %q", self, bin)
	}
	if len(args) != 1 || args[0] != "worker" {
		t.Fatalf("expected worker subcommand, got %v", args)
	}
}

func TestLogFilePathDefault(t *testing.T) {
	if got := (Config{}).LogFilePath(); got != "codeintel.log" {
		t.Fatalf("expected codeintel.log, got %q", got)
	}
	if got := (Config{LogFile: "logs/ci.log"}).LogFilePath(); got != "logs/ci.log" {
		t.Fatalf("expected logs/ci.log, got %q", got)
	}
}

func TestShowConfig(t *testing.T) {
	var buf bytes.Buffer
	ShowConfig(&buf, "config/config.json", &Config{InProcess: true, CompileFlags: []string{"-DX"}, Telemetry: "stdout"}, Config{})
	out := buf.String()
	for _, want := range []string{"Config file: config/config.json", "in-process", "[-DX]", "Telemetry:         stdout"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	ShowConfig(&buf, "", nil, Config{Debug: true})
	out = buf.String()
	if !strings.Contains(out, "No config file loaded") || !strings.Contains(out, "Debug:             true") {
		t.Fatalf("fallback not shown:\n%s", out)
	}
	if !strings.Contains(out, "Telemetry:         none") {
		t.Fatalf("expected telemetry none:\n%s", out)
	}
}
