package sentinel

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/sentinelauth/sentinel/audit"
	"github.com/sentinelauth/sentinel/internal/rate"
	"github.com/sentinelauth/sentinel/jwt"
	"github.com/sentinelauth/sentinel/ledger"
	"github.com/sentinelauth/sentinel/password"
	"github.com/sentinelauth/sentinel/session"
)

// Builder assembles an Engine. Stores left unset fall back to Postgres
// implementations when a database handle is provided, or to in-memory
// implementations otherwise (credential store excepted: it is always
// required, explicitly or via WithDB).
type Builder struct {
	cfg      Config
	db       *sql.DB
	redis    *redis.Client
	creds    CredentialStore
	ledgers  ledger.Store
	sessions session.Store
	sink     audit.Sink
	notifier Notifier
	clock    func() time.Time
}

// New starts a builder with the default configuration.
func New() *Builder {
	return &Builder{cfg: defaultConfig()}
}

// WithConfig replaces the whole configuration. The builder keeps its own
// copy; later mutations of cfg by the caller have no effect.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.cfg = cloneConfig(cfg)
	return b
}

// WithDB provides the Postgres handle used for any store not set
// explicitly.
func (b *Builder) WithDB(db *sql.DB) *Builder {
	b.db = db
	return b
}

// WithRedis provides the Redis client for the rate limiter and the ledger
// mirror. Without it the engine runs on the in-process limiter and a
// durable-only ledger.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithCredentialStore(store CredentialStore) *Builder {
	b.creds = store
	return b
}

// WithLedgerStore overrides the durable refresh ledger. The Redis mirror,
// when configured, still layers on top of it.
func (b *Builder) WithLedgerStore(store ledger.Store) *Builder {
	b.ledgers = store
	return b
}

func (b *Builder) WithSessionStore(store session.Store) *Builder {
	b.sessions = store
	return b
}

// WithAuditSink sets the destination behind the async dispatcher. A sink
// that also implements AuditQuerier enables Engine.AuditEvents.
func (b *Builder) WithAuditSink(sink audit.Sink) *Builder {
	b.sink = sink
	return b
}

func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithClock overrides the time source. Tests use this to cross token
// expiry boundaries without sleeping.
func (b *Builder) WithClock(clock func() time.Time) *Builder {
	b.clock = clock
	return b
}

// Build validates the configuration and wiring and returns a ready Engine.
func (b *Builder) Build() (*Engine, error) {
	cfg := b.cfg
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineNotReady, err)
	}

	clock := b.clock
	if clock == nil {
		clock = time.Now
	}

	tokens, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		SecretKey:     cfg.JWT.SecretKey,
		PrivateKey:    cfg.JWT.PrivateKey,
		PublicKey:     cfg.JWT.PublicKey,
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		Clock:         clock,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineNotReady, err)
	}

	hasher, err := password.NewHasher(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineNotReady, err)
	}

	creds := b.creds
	if creds == nil {
		if b.db == nil {
			return nil, fmt.Errorf("%w: credential store required (WithCredentialStore or WithDB)", ErrEngineNotReady)
		}
		creds = NewPGCredentialStore(b.db)
	}

	sessions := b.sessions
	if sessions == nil {
		if b.db != nil {
			sessions = session.NewPGStore(b.db)
		} else {
			sessions = session.NewMemoryStore()
		}
	}

	durable := b.ledgers
	if durable == nil {
		if b.db != nil {
			durable = ledger.NewPGStore(b.db)
		} else {
			durable = ledger.NewMemoryStore()
		}
	}

	ledgerStore := durable
	var mirror *ledger.CachedStore
	if cfg.Ledger.Persistence == PersistMirrored && b.redis != nil {
		mirror = ledger.NewCachedStore(durable, b.redis, cfg.Security.StrictMode)
		ledgerStore = mirror
	}

	var loginLimiter, refreshLimiter *rate.Limiter
	if b.redis != nil {
		loginLimiter = rate.New(b.redis, rate.Config{
			Capacity: cfg.RateLimit.LoginCapacity,
			Window:   cfg.RateLimit.LoginWindow,
		})
		refreshLimiter = rate.New(b.redis, rate.Config{
			Capacity: cfg.RateLimit.RefreshCapacity,
			Window:   cfg.RateLimit.RefreshWindow,
		})
	} else if cfg.Security.StrictMode {
		return nil, fmt.Errorf("%w: strict mode requires Redis for rate limiting", ErrEngineNotReady)
	}

	dispatcher := audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.sink)

	querier, _ := b.sink.(AuditQuerier)

	var metrics *Metrics
	if cfg.Metrics.Enabled {
		metrics = NewMetrics()
	}

	engine := &Engine{
		config:   cfg,
		tokens:   tokens,
		hasher:   hasher,
		creds:    creds,
		ledger:   ledgerStore,
		mirror:   mirror,
		sessions: sessions,
		audits:   dispatcher,
		querier:  querier,
		notifier: b.notifier,
		metrics:  metrics,
		clock:    clock,
		db:       b.db,
		redis:    b.redis,
		loginLimiter: limiterPair{
			remote: loginLimiter,
			local:  rate.NewLocalLimiter(rate.Config{Capacity: cfg.RateLimit.LoginCapacity, Window: cfg.RateLimit.LoginWindow}),
		},
		refreshLimiter: limiterPair{
			remote: refreshLimiter,
			local:  rate.NewLocalLimiter(rate.Config{Capacity: cfg.RateLimit.RefreshCapacity, Window: cfg.RateLimit.RefreshWindow}),
		},
	}

	// Precomputed so Login can burn equivalent verify work on unknown
	// emails.
	engine.dummyHash, err = hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineNotReady, err)
	}

	return engine, nil
}

// AuditQuerier is the optional read surface of an audit sink. The Postgres
// recorder implements it.
type AuditQuerier interface {
	Query(ctx context.Context, since time.Time, eventType string, limit int) ([]audit.Event, error)
}
