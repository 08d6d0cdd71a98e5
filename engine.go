package sentinel

import (
	"context"
	"database/sql"
	"errors"
	"sync/atomic"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/sentinelauth/sentinel/audit"
	"github.com/sentinelauth/sentinel/internal/ids"
	"github.com/sentinelauth/sentinel/internal/rate"
	"github.com/sentinelauth/sentinel/jwt"
	"github.com/sentinelauth/sentinel/ledger"
	"github.com/sentinelauth/sentinel/password"
	"github.com/sentinelauth/sentinel/session"
)

// Engine is the authentication and authorization core. Construct it through
// the Builder; the zero value is not usable. All methods are safe for
// concurrent use.
type Engine struct {
	config   Config
	tokens   *jwt.Manager
	hasher   *password.Hasher
	creds    CredentialStore
	ledger   ledger.Store
	mirror   *ledger.CachedStore
	sessions session.Store
	audits   *audit.Dispatcher
	querier  AuditQuerier
	notifier Notifier
	metrics  *Metrics
	clock    func() time.Time
	db       *sql.DB
	redis    *redis.Client

	loginLimiter   limiterPair
	refreshLimiter limiterPair

	// dummyHash equalizes verify work for unknown emails.
	dummyHash string

	limiterFallback atomic.Bool
	ledgerDegraded  atomic.Bool
	closed          atomic.Bool
}

// limiterPair couples the shared Redis window with the in-process fallback
// used when Redis is down in relaxed mode. remote is nil when the engine was
// built without Redis; the local limiter is then authoritative.
type limiterPair struct {
	remote *rate.Limiter
	local  *rate.LocalLimiter
}

const (
	limitActionLogin   = "login"
	limitActionLoginIP = "login_ip"
	limitActionRefresh = "refresh"
)

// admit runs one admission check. Redis failures fail closed in strict mode
// and fall back to the local limiter in relaxed mode.
func (e *Engine) admit(ctx context.Context, pair limiterPair, identity, action string) error {
	if pair.remote == nil {
		return e.admitLocal(ctx, pair, identity, action)
	}

	decision, err := pair.remote.Allow(ctx, identity, action)
	if err != nil {
		if e.config.Security.StrictMode {
			return storeUnavailable(err)
		}
		if e.limiterFallback.CompareAndSwap(false, true) {
			e.metrics.Inc(MetricLimiterFallback)
			e.emitAudit(ctx, audit.EventLimiterFailOpen, "", false, err.Error(), nil)
		}
		return e.admitLocal(ctx, pair, identity, action)
	}
	e.limiterFallback.Store(false)

	if !decision.Permitted {
		e.metrics.Inc(MetricRateLimited)
		return &RetryAfterError{RetryAfter: decision.RetryAfter}
	}
	return nil
}

func (e *Engine) admitLocal(ctx context.Context, pair limiterPair, identity, action string) error {
	decision := pair.local.Allow(ctx, identity, action)
	if !decision.Permitted {
		e.metrics.Inc(MetricRateLimited)
		return &RetryAfterError{RetryAfter: decision.RetryAfter}
	}
	return nil
}

// admitLogin runs the per-email and optional per-IP admission checks. A
// denial is a security event in its own right and is audited before it
// returns.
func (e *Engine) admitLogin(ctx context.Context, email, ip string) error {
	err := e.admit(ctx, e.loginLimiter, email, limitActionLogin)
	if err == nil && e.config.RateLimit.EnableIPThrottle && ip != "" {
		err = e.admit(ctx, e.loginLimiter, ip, limitActionLoginIP)
	}
	if err != nil && errors.Is(err, ErrRateLimited) {
		e.emitAudit(ctx, audit.EventLoginFailure, "", false, "rate_limited", func() map[string]string {
			return map[string]string{"email": email}
		})
	}
	return err
}

func (e *Engine) resetLoginWindow(ctx context.Context, email, ip string) {
	if e.loginLimiter.remote != nil {
		_ = e.loginLimiter.remote.Reset(ctx, email, limitActionLogin)
		if ip != "" {
			_ = e.loginLimiter.remote.Reset(ctx, ip, limitActionLoginIP)
		}
	}
	e.loginLimiter.local.Reset(ctx, email, limitActionLogin)
	if ip != "" {
		e.loginLimiter.local.Reset(ctx, ip, limitActionLoginIP)
	}
}

// Login verifies credentials and issues a fresh token pair rooted in a new
// refresh lineage. Unknown emails and wrong passwords are indistinguishable
// to the caller.
func (e *Engine) Login(ctx context.Context, email, plainPassword string) (*TokenPair, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}

	email = normalizeEmail(email)
	if email == "" || plainPassword == "" {
		return nil, ErrInvalidCredentials
	}

	ip := clientIPFromContext(ctx)
	if err := e.admitLogin(ctx, email, ip); err != nil {
		return nil, err
	}

	user, err := e.creds.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			// Burn the same hash work as a real verify so response
			// timing does not reveal whether the email exists.
			_, _ = e.hasher.Verify(plainPassword, e.dummyHash)
			e.failLogin(ctx, "", email, "unknown email")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	match, err := e.hasher.Verify(plainPassword, user.PasswordHash)
	if err != nil || !match {
		e.failLogin(ctx, user.ID, email, "password mismatch")
		return nil, ErrInvalidCredentials
	}

	if !user.Active {
		e.failLogin(ctx, user.ID, email, "account inactive")
		return nil, ErrAccountInactive
	}

	if e.config.Password.UpgradeOnLogin {
		if upgrade, err := e.hasher.NeedsUpgrade(user.PasswordHash); err == nil && upgrade {
			if rehashed, err := e.hasher.Hash(plainPassword); err == nil {
				_ = e.creds.UpdatePassword(ctx, user.ID, rehashed)
			}
		}
	}

	userAgent := userAgentFromContext(ctx)
	fingerprint := session.Fingerprint(userAgent, deviceHashFromContext(ctx))

	recent, _ := e.sessions.RecentForUser(ctx, user.ID, e.config.Anomaly.RecentSessions)
	signal := assessAnomaly(recent, ip, fingerprint)

	pair, err := e.issueTokens(ctx, user, ip, userAgent, fingerprint)
	if err != nil {
		return nil, err
	}

	e.resetLoginWindow(ctx, email, ip)
	_ = e.creds.UpdateLastLogin(ctx, user.ID, e.clock())

	e.metrics.Inc(MetricLoginSuccess)
	e.emitAudit(ctx, audit.EventLoginSuccess, user.ID, true, "", func() map[string]string {
		return map[string]string{"anomaly": signal.Severity.String()}
	})
	if signal.Severity >= SeverityMedium {
		e.metrics.Inc(MetricAnomalyAlert)
		e.emitAudit(ctx, audit.EventAnomalousLogin, user.ID, true, "", func() map[string]string {
			return map[string]string{
				"severity": signal.Severity.String(),
				"new_ip":   boolString(signal.NewIP),
				"new_ua":   boolString(signal.NewUA),
			}
		})
	}
	e.fireAlert(user, ip, userAgent, signal.Severity)

	return pair, nil
}

func (e *Engine) failLogin(ctx context.Context, userID, email, reason string) {
	e.metrics.Inc(MetricLoginFailure)
	e.emitAudit(ctx, audit.EventLoginFailure, userID, false, reason, func() map[string]string {
		return map[string]string{"email": email}
	})
}

// issueTokens creates a new lineage root in the ledger, records the session,
// and mints the pair. A durable ledger failure returns no tokens.
func (e *Engine) issueTokens(ctx context.Context, user *User, ip, userAgent, fingerprint string) (*TokenPair, error) {
	now := e.clock()
	rootJTI := uuid.NewString()

	entry := &ledger.Entry{
		JTI:       rootJTI,
		UserID:    user.ID,
		Status:    ledger.StatusActive,
		RootJTI:   rootJTI,
		CreatedAt: now,
		ExpiresAt: now.Add(e.config.JWT.RefreshTTL),
	}
	if err := e.ledger.Insert(ctx, entry); err != nil {
		return nil, storeUnavailable(err)
	}
	e.noteLedgerState(ctx)

	// Session tracking is best effort; losing the record degrades anomaly
	// detection, not authentication.
	_ = e.sessions.Create(ctx, &session.Record{
		ID:         ids.New(),
		UserID:     user.ID,
		RootJTI:    rootJTI,
		IP:         ip,
		UserAgent:  userAgent,
		DeviceHash: fingerprint,
		CreatedAt:  now,
		LastSeenAt: now,
		Active:     true,
	})

	return e.mintPair(user.ID, user.Roles, rootJTI)
}

func (e *Engine) mintPair(userID string, roles []string, refreshJTI string) (*TokenPair, error) {
	access, accessExp, err := e.tokens.MintAccess(userID, roles, uuid.NewString())
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, err := e.tokens.MintRefresh(userID, roles, refreshJTI)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		TokenType:        "Bearer",
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// Refresh rotates a refresh token: exactly one concurrent caller wins the
// ledger transition and receives a new pair minted with a fresh role
// snapshot. Presenting an already-rotated or revoked token revokes the
// whole lineage and its session.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}

	claims, err := e.tokens.Parse(refreshToken, jwt.TypeRefresh)
	if err != nil {
		return nil, mapTokenError(err)
	}

	if err := e.admit(ctx, e.refreshLimiter, claims.Subject, limitActionRefresh); err != nil {
		return nil, err
	}

	now := e.clock()
	child := &ledger.Entry{
		JTI:       uuid.NewString(),
		UserID:    claims.Subject,
		Status:    ledger.StatusActive,
		CreatedAt: now,
		ExpiresAt: now.Add(e.config.JWT.RefreshTTL),
	}

	parent, err := e.ledger.Rotate(ctx, claims.ID, child)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrConflict), errors.Is(err, ledger.ErrNotFound):
			return nil, e.handleReuse(ctx, claims.Subject, claims.ID, now)
		case errors.Is(err, ledger.ErrExpired):
			return nil, ErrTokenExpired
		default:
			return nil, storeUnavailable(err)
		}
	}

	e.noteLedgerState(ctx)

	user, err := e.creds.FindByID(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	if !user.Active {
		return nil, ErrAccountInactive
	}

	_ = e.sessions.Touch(ctx, parent.RootJTI, now)

	pair, err := e.mintPair(user.ID, user.Roles, child.JTI)
	if err != nil {
		return nil, err
	}

	e.metrics.Inc(MetricRefreshSuccess)
	e.emitAudit(ctx, audit.EventTokenRefresh, user.ID, true, "", nil)

	return pair, nil
}

// handleReuse revokes the full lineage behind a replayed refresh token. A
// missing entry is treated the same as a rotated one: the safe reading of
// an unknown JTI with a valid signature is that the ledger row was created
// by a pair we no longer trust.
func (e *Engine) handleReuse(ctx context.Context, userID, jti string, now time.Time) error {
	rootJTI := jti
	if entry, err := e.ledger.Get(ctx, jti); err == nil && entry.RootJTI != "" {
		rootJTI = entry.RootJTI
	}

	_, _ = e.ledger.RevokeLineage(ctx, rootJTI, now)
	_ = e.sessions.Revoke(ctx, rootJTI, now)

	e.metrics.Inc(MetricTokenReuse)
	e.emitAudit(ctx, audit.EventTokenReuse, userID, false, "refresh token replayed", func() map[string]string {
		return map[string]string{"jti": jti, "root_jti": rootJTI, "severity": SeverityHigh.String()}
	})

	return ErrTokenReuse
}

// Logout revokes the lineage behind the presented refresh token. Revoking
// an already-revoked lineage succeeds.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}

	claims, err := e.tokens.Parse(refreshToken, jwt.TypeRefresh)
	if err != nil {
		return mapTokenError(err)
	}

	now := e.clock()
	rootJTI := claims.ID
	if entry, err := e.ledger.Get(ctx, claims.ID); err == nil && entry.RootJTI != "" {
		rootJTI = entry.RootJTI
	}

	if _, err := e.ledger.RevokeLineage(ctx, rootJTI, now); err != nil && !errors.Is(err, ledger.ErrNotFound) {
		return storeUnavailable(err)
	}
	e.noteLedgerState(ctx)
	_ = e.sessions.Revoke(ctx, rootJTI, now)

	e.metrics.Inc(MetricLogout)
	e.emitAudit(ctx, audit.EventLogout, claims.Subject, true, "", nil)
	e.emitAudit(ctx, audit.EventSessionRevoked, claims.Subject, true, "", func() map[string]string {
		return map[string]string{"root_jti": rootJTI}
	})

	return nil
}

// Authorize validates an access token statelessly and checks the role
// snapshot minted into it. requiredRole == "" checks authentication only.
func (e *Engine) Authorize(ctx context.Context, accessToken, requiredRole string) (*AccessIdentity, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}

	claims, err := e.tokens.Parse(accessToken, jwt.TypeAccess)
	if err != nil {
		return nil, mapTokenError(err)
	}

	if requiredRole != "" && !hasRole(claims.Roles, requiredRole) {
		e.metrics.Inc(MetricAuthorizeDenied)
		return nil, ErrInsufficientRole
	}

	return &AccessIdentity{
		UserID:    claims.Subject,
		Roles:     append([]string(nil), claims.Roles...),
		JTI:       claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// AuditEvents serves the audit query surface when the configured sink
// supports reads.
func (e *Engine) AuditEvents(ctx context.Context, window time.Duration, eventType string, limit int) ([]audit.Event, error) {
	if e.querier == nil {
		return nil, ErrEngineNotReady
	}
	return e.querier.Query(ctx, e.clock().Add(-window), eventType, limit)
}

// SweepExpired purges ledger entries past their expiry. Intended for a
// periodic maintenance job; lazy expiry keeps correctness without it.
func (e *Engine) SweepExpired(ctx context.Context) (int64, error) {
	return e.ledger.SweepExpired(ctx, e.clock())
}

// noteLedgerState surfaces relaxed-mode mirror loss once per outage, the
// same way limiter fallback is reported. The flag clears when the mirror
// recovers.
func (e *Engine) noteLedgerState(ctx context.Context) {
	if e.mirror == nil {
		return
	}
	if !e.mirror.Degraded() {
		e.ledgerDegraded.Store(false)
		return
	}
	if e.ledgerDegraded.CompareAndSwap(false, true) {
		e.metrics.Inc(MetricLedgerDegraded)
		e.emitAudit(ctx, audit.EventLedgerDegraded, "", false, "redis mirror unreachable", nil)
	}
}

// Health reports dependency liveness. Degradation flags stay raised until
// the underlying dependency recovers.
func (e *Engine) Health(ctx context.Context) Health {
	health := Health{Status: "ok", DB: true, Redis: true}

	if e.db != nil {
		if err := e.db.PingContext(ctx); err != nil {
			health.DB = false
		}
	}
	if e.redis != nil {
		if err := e.redis.Ping(ctx).Err(); err != nil {
			health.Redis = false
		}
	}
	if e.mirror != nil && e.mirror.Degraded() {
		health.LedgerDegraded = true
	}
	if e.limiterFallback.Load() {
		health.LimiterFallback = true
	}

	if !health.DB || !health.Redis || health.LedgerDegraded || health.LimiterFallback {
		health.Status = "degraded"
	}
	return health
}

// Metrics exposes the counter table; nil when metrics are disabled.
func (e *Engine) Metrics() *Metrics { return e.metrics }

// AuditDropped reports events discarded by the dispatcher under
// backpressure.
func (e *Engine) AuditDropped() uint64 { return e.audits.Dropped() }

// Close drains the audit dispatcher and rejects further operations.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return ErrEngineClosed
	}
	e.audits.Close()
	return nil
}

// mapTokenError folds jwt-layer failures into the engine taxonomy.
func mapTokenError(err error) error {
	if errors.Is(err, gjwt.ErrTokenExpired) {
		return ErrTokenExpired
	}
	return ErrTokenInvalid
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
