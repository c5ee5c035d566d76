package config

import (
	"testing"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_DSN", "host=localhost user=test password=test dbname=test port=5432 sslmode=disable")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("OUTREACH_API_URL", "https://api.outreach.example")
	t.Setenv("OUTREACH_API_KEY", "outreach-key")
	t.Setenv("CRM_API_URL", "https://api.crm.example")
	t.Setenv("CRM_API_KEY", "crm-key")
	t.Setenv("TEXTGEN_API_URL", "https://api.textgen.example/v1/chat/completions")
	t.Setenv("TEXTGEN_API_KEY", "textgen-key")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.APIPort != 8080 {
		t.Errorf("APIPort = %d, want 8080", cfg.APIPort)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %s, want info", cfg.LogLevel)
	}
	if cfg.ChunkSize != 10 {
		t.Errorf("ChunkSize = %d, want 10", cfg.ChunkSize)
	}
	if cfg.BreakerCooldownHours != 4 {
		t.Errorf("BreakerCooldownHours = %d, want 4", cfg.BreakerCooldownHours)
	}
	if cfg.EnrollRatePerSec != 5 {
		t.Errorf("EnrollRatePerSec = %d, want 5", cfg.EnrollRatePerSec)
	}
	if cfg.RunIntervalSec != 300 {
		t.Errorf("RunIntervalSec = %d, want 300", cfg.RunIntervalSec)
	}
	if cfg.TextGenModel != "gpt-4o-mini" {
		t.Errorf("TextGenModel = %s, want gpt-4o-mini", cfg.TextGenModel)
	}
}

func TestLoad_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("CHUNK_SIZE", "25")
	t.Setenv("BREAKER_COOLDOWN_HOURS", "8")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.ChunkSize != 25 {
		t.Errorf("ChunkSize = %d, want 25", cfg.ChunkSize)
	}
	if cfg.BreakerCooldownHours != 8 {
		t.Errorf("BreakerCooldownHours = %d, want 8", cfg.BreakerCooldownHours)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %s, want debug", cfg.LogLevel)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DATABASE_DSN", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when DATABASE_DSN is missing")
	}
}
