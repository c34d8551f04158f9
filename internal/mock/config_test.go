package mock

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "mock.yaml")
	os.WriteFile(yamlPath, []byte("port: 9090\nstringIds: true\nnotFoundRate: 0.1\n"), 0644)

	config, err := LoadConfig(yamlPath)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if config.Port != 9090 || !config.StringIDs || config.NotFoundRate != 0.1 {
		t.Errorf("Unexpected config %+v", config)
	}
	if config.Host != "localhost" {
		t.Errorf("Expected default host, got %q", config.Host)
	}

	jsonPath := filepath.Join(dir, "mock.json")
	os.WriteFile(jsonPath, []byte(`{"errorRate": 2}`), 0644)
	if _, err := LoadConfig(jsonPath); err == nil {
		t.Error("Expected validation error")
	}

	if _, err := LoadConfig(filepath.Join(dir, "mock.toml")); err == nil {
		t.Error("Expected error for missing file")
	}
}
