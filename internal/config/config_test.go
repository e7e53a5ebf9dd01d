package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("GEMCHAT_API_KEY", "")

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIKey != "test-key" {
		t.Errorf("api key = %q", cfg.APIKey)
	}
	if cfg.Model != DefaultModel {
		t.Errorf("model = %q", cfg.Model)
	}
	if cfg.FallbackModel != DefaultFallbackModel {
		t.Errorf("fallback = %q", cfg.FallbackModel)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("max retries = %d", cfg.MaxRetries)
	}
	if cfg.BaseDelay != time.Second {
		t.Errorf("base delay = %v", cfg.BaseDelay)
	}
	if cfg.QuotaBytes != 5*1024*1024 {
		t.Errorf("quota = %d", cfg.QuotaBytes)
	}
}

func TestLoadMissingAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GEMCHAT_API_KEY", "")

	_, err := Load(t.TempDir())
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("GEMCHAT_API_KEY", "env-key")
	t.Setenv("GEMCHAT_MODEL", "gemini-2.5-pro")
	t.Setenv("GEMCHAT_MAX_RETRIES", "5")

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIKey != "env-key" {
		t.Errorf("api key = %q", cfg.APIKey)
	}
	if cfg.Model != "gemini-2.5-pro" {
		t.Errorf("model = %q", cfg.Model)
	}
	if cfg.MaxRetries != 5 {
		t.Errorf("max retries = %d", cfg.MaxRetries)
	}
}

func TestLoadConfigFile(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")

	dir := t.TempDir()
	content := "model = \"gemini-2.5-pro\"\nbase_delay = \"2s\"\ntemperature = 0.3\n"
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Model != "gemini-2.5-pro" {
		t.Errorf("model = %q", cfg.Model)
	}
	if cfg.BaseDelay != 2*time.Second {
		t.Errorf("base delay = %v", cfg.BaseDelay)
	}
	if cfg.Temperature != 0.3 {
		t.Errorf("temperature = %v", cfg.Temperature)
	}
}
