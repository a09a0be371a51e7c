package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.HorizonDays != -1 {
		t.Errorf("HorizonDays = %d, want -1", cfg.HorizonDays)
	}
	if cfg.ResyncInterval != 5*time.Minute {
		t.Errorf("ResyncInterval = %v, want 5m", cfg.ResyncInterval)
	}
	if cfg.CacheStaleness != 60*time.Second {
		t.Errorf("CacheStaleness = %v, want 60s", cfg.CacheStaleness)
	}
	if cfg.SearchConcurrency != 4 {
		t.Errorf("SearchConcurrency = %d, want 4", cfg.SearchConcurrency)
	}
	if cfg.DataDir == "" {
		t.Error("DataDir should default to a non-empty path")
	}
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "daybook.yaml")
	content := `
data_dir: /tmp/daybook-test
horizon_days: 14
resync_interval: 90s
webhook_url: http://localhost:9000/notify
log_level: debug
`
	if err := os.WriteFile(file, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.DataDir != "/tmp/daybook-test" {
		t.Errorf("DataDir = %q", cfg.DataDir)
	}
	if cfg.HorizonDays != 14 {
		t.Errorf("HorizonDays = %d, want 14", cfg.HorizonDays)
	}
	if cfg.ResyncInterval != 90*time.Second {
		t.Errorf("ResyncInterval = %v, want 90s", cfg.ResyncInterval)
	}
	if cfg.WebhookURL != "http://localhost:9000/notify" {
		t.Errorf("WebhookURL = %q", cfg.WebhookURL)
	}

	if cfg.IndexPath() != filepath.Join("/tmp/daybook-test", "index.db") {
		t.Errorf("IndexPath() = %q", cfg.IndexPath())
	}
	if cfg.DocsDir() != filepath.Join("/tmp/daybook-test", "docs") {
		t.Errorf("DocsDir() = %q", cfg.DocsDir())
	}
}

func TestLoad_RejectsBadHorizon(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "daybook.yaml")
	if err := os.WriteFile(file, []byte("horizon_days: -5\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(file); err == nil {
		t.Error("Load() accepted horizon_days below -1")
	}
}

func TestLoad_MissingFileErrors(t *testing.T) {
	if _, err := Load("/nonexistent/daybook.yaml"); err == nil {
		t.Error("Load() with an explicit missing file should fail")
	}
}
