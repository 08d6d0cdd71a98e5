package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the signature algorithm for minted tokens.
type SigningMethod string

const (
	// MethodHS256 signs with a shared secret key.
	MethodHS256 SigningMethod = "hs256"
	// MethodEd25519 signs with an ed25519 key pair.
	MethodEd25519 SigningMethod = "ed25519"
)

// TokenType discriminates access tokens from refresh tokens. A token of one
// type is never accepted where the other is expected.
type TokenType string

const (
	// TypeAccess marks short-lived stateless bearer tokens.
	TypeAccess TokenType = "access"
	// TypeRefresh marks long-lived rotatable tokens tracked in the ledger.
	TypeRefresh TokenType = "refresh"
)

// Config holds the signing and validation settings for a Manager.
type Config struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod SigningMethod
	SecretKey     []byte // hs256
	PrivateKey    []byte // ed25519
	PublicKey     []byte // ed25519
	Issuer        string
	Audience      string
	Leeway        time.Duration
	Clock         func() time.Time
}

// Claims is the payload carried by both token types. Subject holds the user
// id and ID the JTI; Roles is the role snapshot taken at mint time.
type Claims struct {
	Roles     []string  `json:"roles"`
	TokenType TokenType `json:"type"`
	jwt.RegisteredClaims
}

// Manager mints and parses signed tokens. Safe for concurrent use.
type Manager struct {
	config Config
	now    func() time.Time
}

// ErrWrongType is returned by Parse when the token carries a valid signature
// but the other token type.
var ErrWrongType = errors.New("unexpected token type")

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("jwt: access and refresh TTLs must be positive")
	}
	if cfg.RefreshTTL <= cfg.AccessTTL {
		return nil, errors.New("jwt: refresh TTL must exceed access TTL")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("jwt: leeway out of range")
	}

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.SecretKey) == 0 {
			return nil, errors.New("jwt: hs256 requires a secret key")
		}
	case MethodEd25519:
		if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
			return nil, err
		}
		if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("jwt: unsupported signing method")
	}

	now := cfg.Clock
	if now == nil {
		now = time.Now
	}

	return &Manager{config: cfg, now: now}, nil
}

// MintAccess signs a stateless access token carrying the user's current role
// snapshot. Returns the token and its expiry.
func (m *Manager) MintAccess(userID string, roles []string, jti string) (string, time.Time, error) {
	return m.mint(TypeAccess, userID, roles, jti, m.config.AccessTTL)
}

// MintRefresh signs a refresh token bound to the given ledger JTI.
func (m *Manager) MintRefresh(userID string, roles []string, jti string) (string, time.Time, error) {
	return m.mint(TypeRefresh, userID, roles, jti, m.config.RefreshTTL)
}

func (m *Manager) mint(typ TokenType, userID string, roles []string, jti string, ttl time.Duration) (string, time.Time, error) {
	if userID == "" || jti == "" {
		return "", time.Time{}, errors.New("jwt: subject and jti are required")
	}

	issued := m.now()
	expires := issued.Add(ttl)

	claims := Claims{
		Roles:     append([]string(nil), roles...),
		TokenType: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(expires),
			Issuer:    m.config.Issuer,
		},
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	token := jwt.NewWithClaims(m.signingMethod(), claims)
	signed, err := token.SignedString(m.signKey())
	if err != nil {
		return "", time.Time{}, err
	}

	return signed, expires, nil
}

// Parse validates signature, expiry, issuer, audience, and token type.
// Expired tokens surface jwt.ErrTokenExpired through the returned error
// chain; a type mismatch surfaces ErrWrongType.
func (m *Manager) Parse(tokenStr string, want TokenType) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.signingMethod().Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(m.now),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Audience != "" {
		options = append(options, jwt.WithAudience(m.config.Audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != m.signingMethod().Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return m.verifyKey()
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.TokenType != want {
		return nil, ErrWrongType
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}

	return claims, nil
}

func (m *Manager) signingMethod() jwt.SigningMethod {
	if m.config.SigningMethod == MethodHS256 {
		return jwt.SigningMethodHS256
	}
	return jwt.SigningMethodEdDSA
}

func (m *Manager) signKey() interface{} {
	if m.config.SigningMethod == MethodHS256 {
		return m.config.SecretKey
	}
	key, _ := parseEdPrivateKey(m.config.PrivateKey)
	return key
}

func (m *Manager) verifyKey() (interface{}, error) {
	if m.config.SigningMethod == MethodHS256 {
		return m.config.SecretKey, nil
	}
	return parseEdPublicKey(m.config.PublicKey)
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("jwt: invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("jwt: invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("jwt: invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("jwt: invalid ed25519 public key type")
	}
	return edKey, nil
}
