package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

// TestDefaultConfig verifies the built-in defaults
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Chunk.Shape != [3]int{64, 64, 64} {
		t.Errorf("Default chunk shape = %v", cfg.Chunk.Shape)
	}
	if !cfg.Display.AutoContrast {
		t.Error("Expected auto contrast on by default")
	}
	if cfg.Display.ContrastHigh <= cfg.Display.ContrastLow {
		t.Errorf("Default contrast pair not ordered: %g, %g",
			cfg.Display.ContrastLow, cfg.Display.ContrastHigh)
	}
	if cfg.Display.SnapshotDir == "" {
		t.Error("Expected a default snapshot directory")
	}
	if !cfg.Session.Prefetch {
		t.Error("Expected prefetch on by default")
	}
}

// TestLoadConfigMissingFile verifies a missing file falls back to defaults
func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if !reflect.DeepEqual(cfg, DefaultConfig()) {
		t.Errorf("Missing file did not yield defaults: %+v", cfg)
	}
}

// TestSaveLoadRoundTrip verifies a saved configuration reloads identically
func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "ptannotator3d.yaml")

	cfg := DefaultConfig()
	cfg.Image.Path = "/data/brain.zarr"
	cfg.Image.Channel = 1
	cfg.Image.CoChannel = 2
	cfg.Store.Path = "/data/points.csv"
	cfg.Store.BoxOutline = true
	cfg.Chunk.Shape = [3]int{32, 48, 48}
	cfg.Session.Seed = 42

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if !reflect.DeepEqual(loaded, cfg) {
		t.Errorf("Round trip mismatch:\nsaved:  %+v\nloaded: %+v", cfg, loaded)
	}
}

// TestLoadConfigPartial verifies unset keys keep their defaults
func TestLoadConfigPartial(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	content := "image:\n  path: /data/brain.zarr\nchunk:\n  shape: [16, 16, 16]\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Image.Path != "/data/brain.zarr" {
		t.Errorf("Image path = %q", cfg.Image.Path)
	}
	if cfg.Chunk.Shape != [3]int{16, 16, 16} {
		t.Errorf("Chunk shape = %v", cfg.Chunk.Shape)
	}
	if cfg.Display.SnapshotDir != "snapshots" {
		t.Errorf("Default snapshot dir lost: %q", cfg.Display.SnapshotDir)
	}
	if !cfg.Session.Prefetch {
		t.Error("Default prefetch lost")
	}
}

// TestLoadConfigMalformed verifies invalid YAML is reported
func TestLoadConfigMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("chunk: [not: a map\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadConfig(path); err == nil {
		t.Error("Expected error for malformed YAML")
	}
}

// TestCreateDefaultConfigFile verifies the generated file loads back as defaults
func TestCreateDefaultConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ptannotator3d.yaml")

	if err := CreateDefaultConfigFile(path); err != nil {
		t.Fatalf("CreateDefaultConfigFile: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if !reflect.DeepEqual(cfg, DefaultConfig()) {
		t.Errorf("Generated file does not load as defaults: %+v", cfg)
	}
}
