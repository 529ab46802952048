package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Platform.BaseURL == "" {
		t.Error("expected default base URL")
	}
	if cfg.Wait.TimeoutSec != 120 {
		t.Errorf("expected default wait timeout 120, got %d", cfg.Wait.TimeoutSec)
	}
	if cfg.Wait.PollIntervalSec != 3 {
		t.Errorf("expected default poll interval 3, got %d", cfg.Wait.PollIntervalSec)
	}
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `
platform:
  base_url: https://staging.dealloft.test
  user_id: u_42
search:
  app_id: TESTAPP
wait:
  timeout_sec: 15
log_level: debug
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Platform.BaseURL != "https://staging.dealloft.test" {
		t.Errorf("base_url not loaded: %q", cfg.Platform.BaseURL)
	}
	if cfg.Platform.UserID != "u_42" {
		t.Errorf("user_id not loaded: %q", cfg.Platform.UserID)
	}
	if cfg.Search.AppID != "TESTAPP" {
		t.Errorf("app_id not loaded: %q", cfg.Search.AppID)
	}
	if cfg.Wait.TimeoutSec != 15 {
		t.Errorf("timeout_sec not loaded: %d", cfg.Wait.TimeoutSec)
	}
	// Unset fields keep defaults.
	if cfg.Wait.PollIntervalSec != 3 {
		t.Errorf("expected default poll interval to survive, got %d", cfg.Wait.PollIntervalSec)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(EnvPlatform, "https://env.dealloft.test")
	t.Setenv(EnvUserID, "u_env")
	t.Setenv(EnvLogLevel, "warn")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Platform.BaseURL != "https://env.dealloft.test" {
		t.Errorf("env base URL override not applied: %q", cfg.Platform.BaseURL)
	}
	if cfg.Platform.UserID != "u_env" {
		t.Errorf("env user id override not applied: %q", cfg.Platform.UserID)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("env log level override not applied: %q", cfg.LogLevel)
	}
}

func TestLoad_EnvExpansionInFile(t *testing.T) {
	t.Setenv("TEST_DEAL_APP", "EXPANDED")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("search:\n  app_id: ${TEST_DEAL_APP}\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Search.AppID != "EXPANDED" {
		t.Errorf("expected env expansion, got %q", cfg.Search.AppID)
	}
}

func TestFindConfig_MissingExplicit(t *testing.T) {
	if _, err := FindConfig("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing explicit config path")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"info", slog.LevelInfo, false},
		{"TRACE", LevelTrace, false},
		{"debug", slog.LevelDebug, false},
		{" warn ", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLogLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLogLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
