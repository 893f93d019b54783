package detector

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigEmptyPath(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.BurstThreshold != 10 || cfg.BurstWindow != 5*time.Minute {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.LargeDownloadBytes != 50_000_000 {
		t.Errorf("large_download_bytes = %d, want 50000000", cfg.LargeDownloadBytes)
	}
}

func TestLoadConfigOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := []byte("malicious_domains:\n  - evil.test\nburst_threshold: 5\nburst_window: 2m\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if len(cfg.MaliciousDomains) != 1 || cfg.MaliciousDomains[0] != "evil.test" {
		t.Errorf("malicious_domains = %v, want [evil.test]", cfg.MaliciousDomains)
	}
	if cfg.BurstThreshold != 5 {
		t.Errorf("burst_threshold = %d, want 5", cfg.BurstThreshold)
	}
	if cfg.BurstWindow != 2*time.Minute {
		t.Errorf("burst_window = %v, want 2m", cfg.BurstWindow)
	}
	// Untouched sections keep their defaults.
	if len(cfg.RiskyCategories) != 4 {
		t.Errorf("risky_categories = %v, want defaults", cfg.RiskyCategories)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig("/does/not/exist.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
