package sentinel

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func validTestConfig() Config {
	cfg := defaultConfig()
	cfg.JWT.SecretKey = []byte("0123456789abcdef0123456789abcdef")
	return cfg
}

func TestDefaultConfigValidates(t *testing.T) {
	cfg := validTestConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing secret", func(c *Config) { c.JWT.SecretKey = nil }, "SecretKey"},
		{"refresh ttl below access", func(c *Config) { c.JWT.RefreshTTL = c.JWT.AccessTTL }, "RefreshTTL"},
		{"unknown signing method", func(c *Config) { c.JWT.SigningMethod = "rs256" }, "signing method"},
		{"weak argon memory", func(c *Config) { c.Password.Memory = 1024 }, "Memory"},
		{"zero login capacity", func(c *Config) { c.RateLimit.LoginCapacity = 0 }, "LoginCapacity"},
		{"zero anomaly window", func(c *Config) { c.Anomaly.RecentSessions = 0 }, "RecentSessions"},
		{"bad persistence", func(c *Config) { c.Ledger.Persistence = "dynamo" }, "Persistence"},
		{"audit without buffer", func(c *Config) { c.Audit.BufferSize = 0 }, "BufferSize"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validTestConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestValidateProductionProfile(t *testing.T) {
	cfg := validTestConfig()
	cfg.Security.ProductionMode = true

	if err := cfg.Validate(); err == nil {
		t.Fatal("production without strict mode must fail")
	}

	cfg.Security.StrictMode = true
	if err := cfg.Validate(); err != nil {
		t.Fatalf("strict production config invalid: %v", err)
	}

	cfg.JWT.SecretKey = []byte("short")
	if err := cfg.Validate(); err == nil {
		t.Fatal("production must reject short hs256 secrets")
	}

	cfg.JWT.SecretKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Audit.Enabled = false
	if err := cfg.Validate(); err == nil {
		t.Fatal("production must require auditing")
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("SECRET_KEY", "0123456789abcdef0123456789abcdef")
	t.Setenv("ACCESS_TOKEN_TTL_MIN", "5")
	t.Setenv("REFRESH_TOKEN_TTL_DAYS", "14")
	t.Setenv("RATE_LIMIT_CAPACITY", "10")
	t.Setenv("RATE_LIMIT_WINDOW_SEC", "120")
	t.Setenv("APP_ENV", "production")
	t.Setenv("REFRESH_PERSISTENCE", "db")

	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv: %v", err)
	}

	if cfg.JWT.AccessTTL != 5*time.Minute {
		t.Fatalf("AccessTTL = %s", cfg.JWT.AccessTTL)
	}
	if cfg.JWT.RefreshTTL != 14*24*time.Hour {
		t.Fatalf("RefreshTTL = %s", cfg.JWT.RefreshTTL)
	}
	if cfg.RateLimit.LoginCapacity != 10 || cfg.RateLimit.LoginWindow != 2*time.Minute {
		t.Fatalf("rate limit = %d/%s", cfg.RateLimit.LoginCapacity, cfg.RateLimit.LoginWindow)
	}
	if !cfg.Security.ProductionMode || !cfg.Security.StrictMode {
		t.Fatal("APP_ENV=production must enable the production profile")
	}
	if cfg.Ledger.Persistence != PersistDurable {
		t.Fatalf("persistence = %s", cfg.Ledger.Persistence)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("env config invalid: %v", err)
	}
}

func TestConfigFromEnvRejectsMalformedValues(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_TTL_MIN", "soon")
	if _, err := ConfigFromEnv(); err == nil {
		t.Fatal("expected parse error")
	}

	t.Setenv("ACCESS_TOKEN_TTL_MIN", "15")
	t.Setenv("REFRESH_PERSISTENCE", "tape")
	if _, err := ConfigFromEnv(); err == nil {
		t.Fatal("expected persistence error")
	}
}

func TestBuilderCopiesConfig(t *testing.T) {
	cfg := validTestConfig()
	builder := New().WithConfig(cfg).WithCredentialStore(NewMemoryCredentialStore())

	// Mutating the caller's secret after WithConfig must not leak into the
	// engine.
	cfg.JWT.SecretKey[0] = 'x'

	engine, err := builder.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer engine.Close()

	if engine.config.JWT.SecretKey[0] == 'x' {
		t.Fatal("builder must keep its own copy of key material")
	}
}

func TestBuildRequiresCredentialStore(t *testing.T) {
	_, err := New().WithConfig(validTestConfig()).Build()
	if !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("error = %v, want ErrEngineNotReady", err)
	}
}
