package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}

	if cfg.Client.BaseURL != "http://localhost:4002" {
		t.Fatalf("unexpected base URL: %s", cfg.Client.BaseURL)
	}
	if cfg.Client.HTTPTimeout != 30*time.Second {
		t.Fatalf("unexpected timeout: %v", cfg.Client.HTTPTimeout)
	}
	if cfg.Server.Addr != ":4002" {
		t.Fatalf("unexpected server addr: %s", cfg.Server.Addr)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("RETROGPT_BASE_URL", "https://retrogpt.example.com")
	t.Setenv("RETROGPT_HTTP_TIMEOUT", "5")
	t.Setenv("PORT", "127.0.0.1:9000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}

	if cfg.Client.BaseURL != "https://retrogpt.example.com" {
		t.Fatalf("unexpected base URL: %s", cfg.Client.BaseURL)
	}
	if cfg.Client.HTTPTimeout != 5*time.Second {
		t.Fatalf("unexpected timeout: %v", cfg.Client.HTTPTimeout)
	}
	if cfg.Server.Addr != "127.0.0.1:9000" {
		t.Fatalf("unexpected server addr: %s", cfg.Server.Addr)
	}
}

func TestLoadRejectsBadBaseURL(t *testing.T) {
	t.Setenv("RETROGPT_BASE_URL", "localhost:4002")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for base URL without scheme")
	}
}

func TestLoadRejectsBadTimeout(t *testing.T) {
	t.Setenv("RETROGPT_HTTP_TIMEOUT", "0")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for non-positive timeout")
	}
}
