package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

func newHS256Manager(t *testing.T, clock func() time.Time) *Manager {
	t.Helper()
	m, err := NewManager(Config{
		AccessTTL:     5 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
		SigningMethod: MethodHS256,
		SecretKey:     []byte("0123456789abcdef0123456789abcdef"),
		Issuer:        "sentinel",
		Clock:         clock,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestMintAndParseRoundTrip(t *testing.T) {
	m := newHS256Manager(t, nil)

	token, expires, err := m.MintAccess("user-1", []string{"user", "admin"}, "jti-1")
	if err != nil {
		t.Fatalf("MintAccess: %v", err)
	}
	if !expires.After(time.Now()) {
		t.Fatal("expected future expiry")
	}

	claims, err := m.Parse(token, TypeAccess)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Subject != "user-1" || claims.ID != "jti-1" {
		t.Fatalf("unexpected claims: sub=%s jti=%s", claims.Subject, claims.ID)
	}
	if len(claims.Roles) != 2 || claims.Roles[1] != "admin" {
		t.Fatalf("unexpected role snapshot: %v", claims.Roles)
	}
}

func TestParseRejectsWrongTokenType(t *testing.T) {
	m := newHS256Manager(t, nil)

	refresh, _, err := m.MintRefresh("user-1", []string{"user"}, "jti-r")
	if err != nil {
		t.Fatalf("MintRefresh: %v", err)
	}

	if _, err := m.Parse(refresh, TypeAccess); !errors.Is(err, ErrWrongType) {
		t.Fatalf("expected ErrWrongType, got %v", err)
	}
	if _, err := m.Parse(refresh, TypeRefresh); err != nil {
		t.Fatalf("expected refresh token to parse as refresh: %v", err)
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	current := time.Now()
	m := newHS256Manager(t, func() time.Time { return current })

	token, _, err := m.MintAccess("user-1", []string{"user"}, "jti-1")
	if err != nil {
		t.Fatalf("MintAccess: %v", err)
	}

	current = current.Add(6 * time.Minute)
	if _, err := m.Parse(token, TypeAccess); !errors.Is(err, gjwt.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestParseRejectsWrongAlgorithm(t *testing.T) {
	m := newHS256Manager(t, nil)

	claims := Claims{
		TokenType: TypeAccess,
		RegisteredClaims: gjwt.RegisteredClaims{
			Subject:   "user-1",
			ID:        "jti-1",
			ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
			IssuedAt:  gjwt.NewNumericDate(time.Now()),
			Issuer:    "sentinel",
		},
	}
	tok := gjwt.NewWithClaims(gjwt.SigningMethodNone, claims)
	unsigned, err := tok.SignedString(gjwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := m.Parse(unsigned, TypeAccess); err == nil {
		t.Fatal("expected alg=none token to be rejected")
	}
}

func TestParseRejectsTamperedSignature(t *testing.T) {
	m := newHS256Manager(t, nil)
	other := newHS256ManagerWithKey(t, []byte("another-secret-another-secret-xx"))

	token, _, err := other.MintAccess("user-1", []string{"user"}, "jti-1")
	if err != nil {
		t.Fatalf("MintAccess: %v", err)
	}

	if _, err := m.Parse(token, TypeAccess); err == nil {
		t.Fatal("expected foreign-key token to be rejected")
	}
}

func TestEd25519RoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	token, _, err := m.MintAccess("user-9", []string{"user"}, "jti-9")
	if err != nil {
		t.Fatalf("MintAccess: %v", err)
	}
	claims, err := m.Parse(token, TypeAccess)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Subject != "user-9" {
		t.Fatalf("unexpected subject %s", claims.Subject)
	}
}

func TestNewManagerValidation(t *testing.T) {
	base := Config{
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
		SigningMethod: MethodHS256,
		SecretKey:     []byte("0123456789abcdef0123456789abcdef"),
	}

	cfg := base
	cfg.SecretKey = nil
	if _, err := NewManager(cfg); err == nil {
		t.Fatal("expected missing secret to be rejected")
	}

	cfg = base
	cfg.RefreshTTL = 30 * time.Second
	if _, err := NewManager(cfg); err == nil {
		t.Fatal("expected refresh TTL <= access TTL to be rejected")
	}

	cfg = base
	cfg.SigningMethod = "rs256"
	if _, err := NewManager(cfg); err == nil {
		t.Fatal("expected unsupported method to be rejected")
	}
}

func newHS256ManagerWithKey(t *testing.T, key []byte) *Manager {
	t.Helper()
	m, err := NewManager(Config{
		AccessTTL:     5 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
		SigningMethod: MethodHS256,
		SecretKey:     key,
		Issuer:        "sentinel",
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}
