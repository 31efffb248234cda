package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Resolution != 480 || cfg.DefaultVelocity != 64 || cfg.DefaultOctave != 5 || cfg.IncludeBasePath != "inc" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadOverlaysOnlySetFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "preset.yaml")
	if err := os.WriteFile(path, []byte("resolution: 960\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Resolution != 960 {
		t.Fatalf("Resolution = %d, want 960", cfg.Resolution)
	}
	if cfg.DefaultVelocity != 64 || cfg.DefaultOctave != 5 || cfg.IncludeBasePath != "inc" {
		t.Fatalf("untouched fields should keep their defaults, got %+v", cfg)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error loading a missing config file")
	}
}
