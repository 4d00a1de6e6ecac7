package config

import (
	"os"
	"path/filepath"
	"testing"
)

type yamlTestConfig struct {
	Name    string `yaml:"name"`
	Retries int    `yaml:"retries"`
}

func TestLoadYAMLReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	if err := os.WriteFile(path, []byte("name: billing\nretries: 7\n"), 0o600); err != nil {
		t.Fatalf("write settings: %v", err)
	}

	var cfg yamlTestConfig
	if err := LoadYAML(path, &cfg); err != nil {
		t.Fatalf("load yaml: %v", err)
	}
	if cfg.Name != "billing" {
		t.Fatalf("name = %q, want billing", cfg.Name)
	}
	if cfg.Retries != 7 {
		t.Fatalf("retries = %d, want 7", cfg.Retries)
	}
}

func TestLoadYAMLMissingFileIsNoop(t *testing.T) {
	var cfg yamlTestConfig
	if err := LoadYAML(filepath.Join(t.TempDir(), "absent.yaml"), &cfg); err != nil {
		t.Fatalf("missing file should not error, got %v", err)
	}
	if cfg != (yamlTestConfig{}) {
		t.Fatalf("config should stay zero, got %+v", cfg)
	}
}

func TestLoadYAMLRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	if err := os.WriteFile(path, []byte("name: [unclosed"), 0o600); err != nil {
		t.Fatalf("write settings: %v", err)
	}

	var cfg yamlTestConfig
	if err := LoadYAML(path, &cfg); err == nil {
		t.Fatal("expected parse error")
	}
}
