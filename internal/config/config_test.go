package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rtmchat.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
url = "wss://example.com/rtm"
token = "xoxp-test"
ping_seconds = 30
log_level = "debug"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.URL != "wss://example.com/rtm" {
		t.Errorf("URL = %q", cfg.URL)
	}
	if cfg.Token != "xoxp-test" {
		t.Errorf("Token = %q", cfg.Token)
	}
	if cfg.PingInterval() != 30*time.Second {
		t.Errorf("PingInterval = %v", cfg.PingInterval())
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `url = "ws://localhost:8080/rtm"`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.PingInterval() != 60*time.Second {
		t.Errorf("Expected default 60s ping, got %v", cfg.PingInterval())
	}
	if cfg.LogLevel != "info" {
		t.Errorf("Expected default info level, got %q", cfg.LogLevel)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing url", `token = "x"`},
		{"wrong scheme", `url = "https://example.com/rtm"`},
		{"negative ping", "url = \"ws://h/rtm\"\nping_seconds = -1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			if _, err := Load(path); err == nil {
				t.Error("Expected validation error, got nil")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("Expected error for missing file, got nil")
	}
}
