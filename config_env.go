package sentinel

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// ConfigFromEnv builds a Config from environment variables, loading a .env
// file first when one exists. Unset variables keep their defaults;
// malformed values are errors rather than silent fallbacks.
//
//	SECRET_KEY               hs256 signing secret
//	ACCESS_TOKEN_TTL_MIN     access token lifetime in minutes (default 15)
//	REFRESH_TOKEN_TTL_DAYS   refresh token lifetime in days (default 7)
//	RATE_LIMIT_CAPACITY      login attempts per window (default 5)
//	RATE_LIMIT_WINDOW_SEC    login window in seconds (default 60)
//	APP_ENV                  "production" enables the production profile
//	STRICT_MODE              "true"/"false" degraded-mode policy
//	REFRESH_PERSISTENCE      "db" or "redis" ledger layout
func ConfigFromEnv() (Config, error) {
	_ = godotenv.Load()

	cfg := defaultConfig()

	if v := os.Getenv("SECRET_KEY"); v != "" {
		cfg.JWT.SecretKey = []byte(v)
	}
	if err := envMinutes("ACCESS_TOKEN_TTL_MIN", &cfg.JWT.AccessTTL); err != nil {
		return Config{}, err
	}
	if err := envDays("REFRESH_TOKEN_TTL_DAYS", &cfg.JWT.RefreshTTL); err != nil {
		return Config{}, err
	}
	if err := envInt("RATE_LIMIT_CAPACITY", &cfg.RateLimit.LoginCapacity); err != nil {
		return Config{}, err
	}
	if err := envSeconds("RATE_LIMIT_WINDOW_SEC", &cfg.RateLimit.LoginWindow); err != nil {
		return Config{}, err
	}

	if os.Getenv("APP_ENV") == "production" {
		cfg.Security.ProductionMode = true
		cfg.Security.StrictMode = true
	}
	if v := os.Getenv("STRICT_MODE"); v != "" {
		strict, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("STRICT_MODE: %w", err)
		}
		cfg.Security.StrictMode = strict
	}

	switch v := os.Getenv("REFRESH_PERSISTENCE"); v {
	case "":
	case string(PersistDurable), string(PersistMirrored):
		cfg.Ledger.Persistence = LedgerPersistence(v)
	default:
		return Config{}, fmt.Errorf("REFRESH_PERSISTENCE: unknown value %q", v)
	}

	return cfg, nil
}

func envInt(name string, out *int) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*out = n
	return nil
}

func envMinutes(name string, out *time.Duration) error {
	return envDuration(name, time.Minute, out)
}

func envSeconds(name string, out *time.Duration) error {
	return envDuration(name, time.Second, out)
}

func envDays(name string, out *time.Duration) error {
	return envDuration(name, 24*time.Hour, out)
}

func envDuration(name string, unit time.Duration, out *time.Duration) error {
	var n int
	if err := envInt(name, &n); err != nil {
		return err
	}
	if n > 0 {
		*out = time.Duration(n) * unit
	}
	return nil
}
