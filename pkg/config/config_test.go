package config

import (
	"os"
	"path/filepath"
	"testing"
)

func createTempDir(t *testing.T) string {
	dir, err := os.MkdirTemp("", "petviz-config-*")
	if err != nil {
		t.Fatalf("Failed to create temporary directory: %v", err)
	}
	return dir
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig("/nonexistent/petviz.yaml")
	if err != nil {
		t.Fatalf("Expected defaults for a missing file, got error: %v", err)
	}
	if cfg.Server.Address != ":8000" {
		t.Errorf("Expected default address :8000, got %s", cfg.Server.Address)
	}
	if cfg.Processing.DefaultMethod != "min_max" {
		t.Errorf("Expected default method min_max, got %s", cfg.Processing.DefaultMethod)
	}
}

func TestSaveAndLoadConfig(t *testing.T) {
	tmpDir := createTempDir(t)
	defer os.RemoveAll(tmpDir)

	path := filepath.Join(tmpDir, "nested", "petviz.yaml")
	cfg := DefaultConfig()
	cfg.Server.Address = "127.0.0.1:9000"
	cfg.Server.AllowedOrigins = []string{"https://viewer.example.org"}
	cfg.Output.PreviewSize = 128

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if loaded.Server.Address != "127.0.0.1:9000" {
		t.Errorf("Expected address to round trip, got %s", loaded.Server.Address)
	}
	if len(loaded.Server.AllowedOrigins) != 1 || loaded.Server.AllowedOrigins[0] != "https://viewer.example.org" {
		t.Errorf("Expected origins to round trip, got %v", loaded.Server.AllowedOrigins)
	}
	if loaded.Output.PreviewSize != 128 {
		t.Errorf("Expected preview size 128, got %d", loaded.Output.PreviewSize)
	}
}

func TestPartialConfigKeepsDefaults(t *testing.T) {
	tmpDir := createTempDir(t)
	defer os.RemoveAll(tmpDir)

	path := filepath.Join(tmpDir, "petviz.yaml")
	if err := os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Expected level debug, got %s", cfg.Logging.Level)
	}
	if cfg.Server.MaxUploadMB != 1024 {
		t.Errorf("Expected default upload limit, got %d", cfg.Server.MaxUploadMB)
	}
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	tmpDir := createTempDir(t)
	defer os.RemoveAll(tmpDir)

	path := filepath.Join(tmpDir, "petviz.yaml")
	if err := os.WriteFile(path, []byte("processing:\n  compressionLevel: 42\n"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	if _, err := LoadConfig(path); err == nil {
		t.Error("Expected an error for an out-of-range compression level")
	}
}

func TestCreateDefaultConfigFile(t *testing.T) {
	tmpDir := createTempDir(t)
	defer os.RemoveAll(tmpDir)

	path := filepath.Join(tmpDir, "petviz.yaml")
	if err := CreateDefaultConfigFile(path); err != nil {
		t.Fatalf("Failed to create default config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load default config: %v", err)
	}
	if len(cfg.Server.AllowedOrigins) != 2 {
		t.Errorf("Expected two default origins, got %v", cfg.Server.AllowedOrigins)
	}
}
