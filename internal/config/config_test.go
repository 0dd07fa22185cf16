// ABOUTME: Tests for configuration loading
// ABOUTME: Covers defaults, YAML parsing, env overrides, and validation
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load with defaults failed: %v", err)
	}
	if cfg.Synthesis.BaseURL != "http://localhost:7860" {
		t.Errorf("base URL = %q", cfg.Synthesis.BaseURL)
	}
	if cfg.Router.Backend != "malgo" {
		t.Errorf("router backend = %q", cfg.Router.Backend)
	}
	if cfg.Cache.MaxBytes != 64<<20 {
		t.Errorf("cache max bytes = %d", cfg.Cache.MaxBytes)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	doc := `
synthesis:
  base_url: http://tts.local:9000
  default_voice: Timbre3
  request_deadline_ms: 90000
mixer:
  max_handles_per_bus: 4
router:
  backend: oto
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Synthesis.BaseURL != "http://tts.local:9000" {
		t.Errorf("base URL = %q", cfg.Synthesis.BaseURL)
	}
	if cfg.Synthesis.DefaultVoice != "Timbre3" {
		t.Errorf("voice = %q", cfg.Synthesis.DefaultVoice)
	}
	if cfg.Synthesis.RequestDeadline() != 90*time.Second {
		t.Errorf("deadline = %v", cfg.Synthesis.RequestDeadline())
	}
	if cfg.Mixer.MaxHandlesPerBus != 4 {
		t.Errorf("max handles = %d", cfg.Mixer.MaxHandlesPerBus)
	}
	// Unset fields keep their defaults
	if cfg.Library.DatabasePath != "./data/clips.db" {
		t.Errorf("library path = %q", cfg.Library.DatabasePath)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("VOICEDECK_SYNTHESIS_BASE_URL", "http://override:1234")
	t.Setenv("VOICEDECK_ROUTER_BACKEND", "memory")
	t.Setenv("VOICEDECK_MIXER_MAX_HANDLES", "7")
	t.Setenv("VOICEDECK_SYNTHESIS_ENABLED", "false")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Synthesis.BaseURL != "http://override:1234" {
		t.Errorf("base URL = %q", cfg.Synthesis.BaseURL)
	}
	if cfg.Router.Backend != "memory" {
		t.Errorf("backend = %q", cfg.Router.Backend)
	}
	if cfg.Mixer.MaxHandlesPerBus != 7 {
		t.Errorf("max handles = %d", cfg.Mixer.MaxHandlesPerBus)
	}
	if cfg.Synthesis.Enabled {
		t.Error("enabled override ignored")
	}
}

func TestValidation(t *testing.T) {
	t.Setenv("VOICEDECK_ROUTER_BACKEND", "pulseaudio")
	if _, err := Load(""); err == nil {
		t.Error("unknown backend should fail validation")
	}
}
