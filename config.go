package sentinel

import (
	"errors"
	"time"
)

// Config is the engine configuration. Populate it once before Build; the
// engine treats it as immutable afterwards.
type Config struct {
	JWT       JWTConfig
	Password  PasswordConfig
	RateLimit RateLimitConfig
	Anomaly   AnomalyConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
	Security  SecurityConfig
	Ledger    LedgerConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures token minting and validation.
type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	SecretKey     []byte // hs256
	PrivateKey    []byte // ed25519
	PublicKey     []byte // ed25519
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig configures the argon2id hasher.
type PasswordConfig struct {
	Memory         uint32 // in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	UpgradeOnLogin bool
	MinLength      int
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig holds the fixed-window admission budgets. Login windows
// are tracked per email and, when EnableIPThrottle is set, per client IP;
// refresh windows are tracked per user.
type RateLimitConfig struct {
	LoginCapacity    int
	LoginWindow      time.Duration
	RefreshCapacity  int
	RefreshWindow    time.Duration
	EnableIPThrottle bool
}

/*
====================================
ANOMALY CONFIG
====================================
*/

// AnomalyConfig tunes the login anomaly heuristic. RecentSessions is the
// history window the new fingerprint is compared against; NotifyThreshold
// is the minimum severity that triggers the notifier.
type AnomalyConfig struct {
	RecentSessions  int
	NotifyThreshold Severity
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig holds the degraded-mode policy. StrictMode fails closed
// when a backing store is unreachable; relaxed mode fails open for the
// rate limiter and drops the ledger to durable-only operation.
// ProductionMode tightens validation and refuses relaxed operation.
type SecurityConfig struct {
	ProductionMode bool
	StrictMode     bool
}

/*
====================================
LEDGER CONFIG
====================================
*/

// LedgerPersistence selects the refresh-ledger backend layout.
type LedgerPersistence string

const (
	// PersistDurable uses the durable store alone.
	PersistDurable LedgerPersistence = "db"
	// PersistMirrored layers the Redis mirror over the durable store.
	PersistMirrored LedgerPersistence = "redis"
)

// LedgerConfig selects refresh-token persistence and the optional expired
// entry sweep.
type LedgerConfig struct {
	Persistence LedgerPersistence
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the baseline configuration. Callers set the
// signing secret and adjust what they need before Build.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: "hs256",
			Issuer:        "sentinel",
			Leeway:        30 * time.Second,
		},
		Password: PasswordConfig{
			Memory:         65536,
			Time:           2,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			UpgradeOnLogin: true,
			MinLength:      8,
		},
		RateLimit: RateLimitConfig{
			LoginCapacity:    5,
			LoginWindow:      time.Minute,
			RefreshCapacity:  20,
			RefreshWindow:    time.Minute,
			EnableIPThrottle: true,
		},
		Anomaly: AnomalyConfig{
			RecentSessions:  5,
			NotifyThreshold: SeverityMedium,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
		Security: SecurityConfig{
			ProductionMode: false,
			StrictMode:     false,
		},
		Ledger: LedgerConfig{
			Persistence: PersistMirrored,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.SecretKey = cloneBytes(cfg.JWT.SecretKey)
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks internal consistency. ProductionMode applies a stricter
// profile: strict degraded-mode policy is mandatory and hs256 secrets must
// be at least 32 bytes.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be > AccessTTL")
	}
	if c.JWT.SigningMethod != "hs256" && c.JWT.SigningMethod != "ed25519" {
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.SigningMethod == "hs256" && len(c.JWT.SecretKey) == 0 {
		return errors.New("hs256 requires SecretKey")
	}
	if c.JWT.SigningMethod == "ed25519" && (len(c.JWT.PrivateKey) == 0 || len(c.JWT.PublicKey) == 0) {
		return errors.New("ed25519 requires PrivateKey and PublicKey")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}

	// Rate limits
	if c.RateLimit.LoginCapacity <= 0 {
		return errors.New("RateLimit LoginCapacity must be > 0")
	}
	if c.RateLimit.LoginWindow <= 0 {
		return errors.New("RateLimit LoginWindow must be > 0")
	}
	if c.RateLimit.RefreshCapacity <= 0 {
		return errors.New("RateLimit RefreshCapacity must be > 0")
	}
	if c.RateLimit.RefreshWindow <= 0 {
		return errors.New("RateLimit RefreshWindow must be > 0")
	}

	// Anomaly
	if c.Anomaly.RecentSessions <= 0 {
		return errors.New("Anomaly RecentSessions must be > 0")
	}
	switch c.Anomaly.NotifyThreshold {
	case SeverityNone, SeverityLow, SeverityMedium, SeverityHigh:
	default:
		return errors.New("Anomaly NotifyThreshold is invalid")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	// Ledger
	switch c.Ledger.Persistence {
	case PersistDurable, PersistMirrored:
	default:
		return errors.New("Ledger Persistence must be 'db' or 'redis'")
	}

	// Production tightening. Relaxed fail-open is a development trade;
	// production always fails closed.
	if c.Security.ProductionMode {
		if !c.Security.StrictMode {
			return errors.New("StrictMode is mandatory in production")
		}
		if c.JWT.SigningMethod == "hs256" && len(c.JWT.SecretKey) < 32 {
			return errors.New("hs256 SecretKey must be >= 32 bytes in production")
		}
		if !c.Audit.Enabled {
			return errors.New("Audit must be enabled in production")
		}
	}

	return nil
}
