package config

import (
	"os"
	"testing"
)

func writeTestFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Backend != BackendBrowser {
		t.Errorf("default backend = %q, want browser", cfg.Backend)
	}
	if cfg.StorePath == "" || cfg.AccountsDB == "" || cfg.ChromeProfile == "" {
		t.Errorf("default paths incomplete: %+v", cfg)
	}
	if cfg.Headless {
		t.Error("headless must default to false")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("XDUMP_BACKEND", "api")
	t.Setenv("XDUMP_STORE", "/tmp/custom.db")
	t.Setenv("XDUMP_HEADLESS", "true")
	t.Setenv("XDUMP_PROXY", "socks5://127.0.0.1:1080")

	cfg := Default()
	applyEnv(&cfg)

	if cfg.Backend != BackendAPI {
		t.Errorf("backend = %q, want api", cfg.Backend)
	}
	if cfg.StorePath != "/tmp/custom.db" {
		t.Errorf("store = %q", cfg.StorePath)
	}
	if !cfg.Headless {
		t.Error("headless override not applied")
	}
	if cfg.Proxy != "socks5://127.0.0.1:1080" {
		t.Errorf("proxy = %q", cfg.Proxy)
	}
}

func TestLoadFile(t *testing.T) {
	path := t.TempDir() + "/config.yaml"
	if err := writeTestFile(path, "backend: api\nheadless: true\nstore_path: /data/tweets.db\n"); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg := Default()
	if err := loadFile(path, &cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Backend != BackendAPI || !cfg.Headless || cfg.StorePath != "/data/tweets.db" {
		t.Errorf("loaded config wrong: %+v", cfg)
	}
	// Unset fields keep their defaults.
	if cfg.AccountsDB == "" {
		t.Error("accounts_db default lost")
	}
}

func TestLoadFile_Invalid(t *testing.T) {
	path := t.TempDir() + "/config.yaml"
	if err := writeTestFile(path, "backend: [not, a, string\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg := Default()
	if err := loadFile(path, &cfg); err == nil {
		t.Error("expected parse error for invalid yaml")
	}
}
