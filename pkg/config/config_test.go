package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := NewDefaultConfig()

	if cfg.ListenAddr != ":8089" {
		t.Errorf("unexpected listen addr %s", cfg.ListenAddr)
	}
	if cfg.RateLimits.PerMinute != 10 || cfg.RateLimits.PerHour != 100 || cfg.RateLimits.PerDay != 500 {
		t.Errorf("unexpected rate limits: %+v", cfg.RateLimits)
	}
	if cfg.SessionLimits.MaxDuration != 30*time.Minute {
		t.Errorf("unexpected session max %v", cfg.SessionLimits.MaxDuration)
	}
	if cfg.SessionLimits.MaxBlocks != 3 || cfg.SessionLimits.MaxDistressFlags != 2 {
		t.Errorf("unexpected escalation limits: %+v", cfg.SessionLimits)
	}
	if cfg.AccessSecret == "" {
		t.Error("access secret should be generated when unset")
	}
	if cfg.MaxInboundChars != 1000 || cfg.MaxOutboundChars != 2000 {
		t.Errorf("unexpected length bounds: %d/%d", cfg.MaxInboundChars, cfg.MaxOutboundChars)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("BOUNCER_LISTEN_ADDR", ":9999")
	t.Setenv("BOUNCER_RATE_PER_MINUTE", "3")
	t.Setenv("BOUNCER_GENERATE_TIMEOUT", "90s")
	t.Setenv("BOUNCER_ENABLE_SEMANTICS", "true")
	t.Setenv("BOUNCER_MAX_INBOUND", "750")

	cfg := NewDefaultConfig()

	if cfg.ListenAddr != ":9999" {
		t.Errorf("listen addr override ignored: %s", cfg.ListenAddr)
	}
	if cfg.RateLimits.PerMinute != 3 {
		t.Errorf("rate override ignored: %d", cfg.RateLimits.PerMinute)
	}
	if cfg.GenerateTimeout != 90*time.Second {
		t.Errorf("timeout override ignored: %v", cfg.GenerateTimeout)
	}
	if !cfg.EnableSemantics {
		t.Error("semantics flag ignored")
	}
	if cfg.MaxInboundChars != 750 {
		t.Errorf("inbound bound override ignored: %d", cfg.MaxInboundChars)
	}
}

func TestResolveTanksDefault(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.ResolveTanks(); err != nil {
		t.Fatal(err)
	}

	if len(cfg.Tanks) != 3 {
		t.Fatalf("expected 3 stock tanks, got %d", len(cfg.Tanks))
	}
	if cfg.Tanks[0].ID != "tank-visitor-01" || cfg.Tanks[0].Specimen != "Aria" {
		t.Errorf("unexpected first tank: %+v", cfg.Tanks[0])
	}
}

func TestResolveTanksFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tanks.yaml")
	yaml := `tanks:
  - id: tank-alpha
    specimen: Nemo
    model: mistral
  - id: tank-beta
    specimen: Dory
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	cfg.TanksFile = path
	if err := cfg.ResolveTanks(); err != nil {
		t.Fatal(err)
	}

	if len(cfg.Tanks) != 2 {
		t.Fatalf("expected 2 tanks, got %d", len(cfg.Tanks))
	}
	if cfg.Tanks[0].Model != "mistral" {
		t.Errorf("model override lost: %+v", cfg.Tanks[0])
	}
	if cfg.Tanks[1].Model != "" {
		t.Errorf("expected empty model for tank-beta, got %s", cfg.Tanks[1].Model)
	}
}

func TestResolveTanksEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tanks.yaml")
	if err := os.WriteFile(path, []byte("tanks: []\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	cfg.TanksFile = path
	if err := cfg.ResolveTanks(); err == nil {
		t.Error("expected error for empty tanks file")
	}
}

func TestValidateProduction(t *testing.T) {
	t.Setenv("BOUNCER_ENV", "production")
	t.Setenv("BOUNCER_ACCESS_SECRET", "")
	t.Setenv("BOUNCER_IDENTITY_SALT", "")

	cfg := NewDefaultConfig()
	_ = cfg.ResolveTanks()

	if err := cfg.Validate(); err == nil {
		t.Error("expected validation failure without production secrets")
	}

	t.Setenv("BOUNCER_ACCESS_SECRET", "a-long-shared-secret")
	t.Setenv("BOUNCER_IDENTITY_SALT", "a-unique-salt")
	cfg = NewDefaultConfig()
	_ = cfg.ResolveTanks()

	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid production config: %v", err)
	}
}

func TestHighSecurityConfig(t *testing.T) {
	cfg := NewHighSecurityConfig()

	if cfg.SessionLimits.MaxBlocks != 1 {
		t.Errorf("high-security profile should end on first block, got %d", cfg.SessionLimits.MaxBlocks)
	}
	if cfg.RateLimits.PerMinute >= 10 {
		t.Errorf("high-security profile should tighten rate limits, got %d", cfg.RateLimits.PerMinute)
	}
	if cfg.MaxInboundChars != 500 {
		t.Errorf("high-security profile should shorten messages, got %d", cfg.MaxInboundChars)
	}
}
