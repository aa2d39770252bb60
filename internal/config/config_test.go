package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.CSMoney.Limit != 60 || cfg.CSMoney.MaxPages != 200 {
		t.Errorf("csmoney paging = %d/%d, want 60/200", cfg.CSMoney.Limit, cfg.CSMoney.MaxPages)
	}
	if cfg.CSMoney.CooldownWait != 120*time.Second {
		t.Errorf("CooldownWait = %v, want 2m0s", cfg.CSMoney.CooldownWait)
	}
	if cfg.Steam.Retries != 3 || cfg.Steam.BaseDelay != 2*time.Second {
		t.Errorf("steam retry = %d/%v, want 3/2s", cfg.Steam.Retries, cfg.Steam.BaseDelay)
	}
	if len(cfg.Steam.UserAgents) != len(DefaultUserAgents) {
		t.Errorf("UserAgents = %d entries, want %d", len(cfg.Steam.UserAgents), len(DefaultUserAgents))
	}
	if cfg.Steam.Concurrency != 10 {
		t.Errorf("Concurrency = %d, want 10", cfg.Steam.Concurrency)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CSMONEY_LIMIT", "30")
	t.Setenv("CSMONEY_COOLDOWN_WAIT", "5s")
	t.Setenv("REDIS_QUEUE", "jobs:test")
	t.Setenv("CSMONEY_CREATE_MISSING_ITEMS", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.CSMoney.Limit != 30 {
		t.Errorf("Limit = %d, want 30", cfg.CSMoney.Limit)
	}
	if cfg.CSMoney.CooldownWait != 5*time.Second {
		t.Errorf("CooldownWait = %v, want 5s", cfg.CSMoney.CooldownWait)
	}
	if cfg.Redis.Queue != "jobs:test" {
		t.Errorf("Queue = %q, want jobs:test", cfg.Redis.Queue)
	}
	if cfg.CSMoney.CreateMissingItems {
		t.Error("CreateMissingItems = true, want false")
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	t.Setenv("CSMONEY_MAX_PAGES", "0")
	if _, err := Load(); err == nil {
		t.Fatal("Load() accepted max_pages=0")
	}
}

func TestNewLogger(t *testing.T) {
	if _, err := NewLogger(LoggerConfig{Level: "debug"}); err != nil {
		t.Fatalf("NewLogger(debug) error = %v", err)
	}
	if _, err := NewLogger(LoggerConfig{Level: "loud"}); err == nil {
		t.Fatal("NewLogger accepted an unknown level")
	}
}
