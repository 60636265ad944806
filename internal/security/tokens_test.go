package security

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"commerce-auth/backend/internal/principal/domain"
)

func mustProvider(t *testing.T) *TokenProvider {
	t.Helper()
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	return p
}

func TestTokenProvider_SignAndVerifyUser(t *testing.T) {
	p := mustProvider(t)
	role := "role-admin"
	token, exp, err := p.Sign(domain.Principal{ID: "u1", Username: "alice", Type: domain.TypeUser, RoleID: &role}, "")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if exp.Before(time.Now()) {
		t.Fatal("expires at in the past")
	}
	claims, err := p.VerifyFor(token, domain.TypeUser)
	if err != nil {
		t.Fatalf("VerifyFor: %v", err)
	}
	if claims.Subject != "u1" || claims.Username != "alice" || claims.Type != domain.TypeUser {
		t.Errorf("claims = %+v", claims)
	}
	if claims.RoleID == nil || *claims.RoleID != role {
		t.Errorf("RoleID = %v, want %q", claims.RoleID, role)
	}
	if claims.SessionID != "" {
		t.Errorf("user token carries session id %q", claims.SessionID)
	}
	if claims.IssuedAt == nil || claims.ExpiresAt == nil {
		t.Error("iat/exp not set")
	}
}

func TestTokenProvider_SignAndVerifyCustomerWithSession(t *testing.T) {
	p := mustProvider(t)
	token, _, err := p.Sign(domain.Principal{ID: "c1", Username: "bob@example.com", Type: domain.TypeCustomer}, "s1")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	claims, err := p.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Type != domain.TypeCustomer || claims.SessionID != "s1" || claims.RoleID != nil {
		t.Errorf("claims = %+v", claims)
	}
}

func TestTokenProvider_CustomerTokenRejectedOnUserRoute(t *testing.T) {
	p := mustProvider(t)
	token, _, err := p.Sign(domain.Principal{ID: "c1", Username: "bob", Type: domain.TypeCustomer}, "s1")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	typ, err := peekType(token)
	if err != nil || typ != domain.TypeCustomer {
		t.Fatalf("peekType = %q, %v", typ, err)
	}
	if _, err := p.VerifyFor(token, domain.TypeUser); !errors.Is(err, ErrInvalidTokenType) {
		t.Errorf("VerifyFor(user) with customer token: want ErrInvalidTokenType, got %v", err)
	}
	if _, err := p.VerifyFor(token, domain.TypeCustomer); err != nil {
		t.Errorf("VerifyFor(customer): %v", err)
	}
}

func TestTokenProvider_ClaimedTypeSignedWithOtherSecret(t *testing.T) {
	p := mustProvider(t)
	// Claims say "user" but the token is signed with the customer secret.
	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "c1",
			Issuer:    "test-issuer",
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Username: "bob",
		Type:     domain.TypeUser,
	})
	token, err := forged.SignedString([]byte(TestCustomerSecret))
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	if _, err := p.Verify(token); !errors.Is(err, ErrSignatureInvalid) {
		t.Errorf("Verify forged user token: want ErrSignatureInvalid, got %v", err)
	}
	if _, err := p.VerifyFor(token, domain.TypeUser); err == nil {
		t.Error("forged token must not pass the user route")
	}
}

func TestTokenProvider_Malformed(t *testing.T) {
	p := mustProvider(t)
	cases := []string{
		"",
		"invalid-token",
		"a.b",
		"a.b.c.d",
		"eyJhbGciOiJIUzI1NiJ9.!!!.sig",
		"eyJhbGciOiJIUzI1NiJ9." + base64.RawURLEncoding.EncodeToString([]byte("not json")) + ".sig",
	}
	for _, tc := range cases {
		if _, err := p.Verify(tc); !errors.Is(err, ErrMalformedToken) {
			t.Errorf("Verify(%q): want ErrMalformedToken, got %v", tc, err)
		}
	}
}

func TestTokenProvider_UnknownType(t *testing.T) {
	p := mustProvider(t)
	for _, typ := range []string{"", "admin", "USER"} {
		payload, _ := json.Marshal(map[string]any{"sub": "x", "type": typ})
		token := "eyJhbGciOiJIUzI1NiJ9." + base64.RawURLEncoding.EncodeToString(payload) + ".sig"
		if _, err := p.Verify(token); !errors.Is(err, ErrInvalidTokenType) {
			t.Errorf("type %q: want ErrInvalidTokenType, got %v", typ, err)
		}
	}
}

func TestTokenProvider_Expired(t *testing.T) {
	p := mustProvider(t)
	p.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, _, err := p.Sign(domain.Principal{ID: "c1", Username: "bob", Type: domain.TypeCustomer}, "s1")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	p.now = time.Now
	if _, err := p.Verify(token); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("Verify expired: want ErrTokenExpired, got %v", err)
	}
}

func TestTokenProvider_TamperedClaims(t *testing.T) {
	p := mustProvider(t)
	token, _, err := p.Sign(domain.Principal{ID: "c1", Username: "bob", Type: domain.TypeCustomer}, "s1")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	parts := strings.Split(token, ".")
	raw, _ := base64.RawURLEncoding.DecodeString(parts[1])
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	m["sub"] = "c2"
	raw, _ = json.Marshal(m)
	parts[1] = base64.RawURLEncoding.EncodeToString(raw)
	if _, err := p.Verify(strings.Join(parts, ".")); !errors.Is(err, ErrSignatureInvalid) {
		t.Errorf("Verify tampered: want ErrSignatureInvalid, got %v", err)
	}
}

func TestTokenProvider_WrongIssuer(t *testing.T) {
	p := mustProvider(t)
	other, err := NewTokenProvider(IssuerConfig{
		Issuer: "someone-else",
		Keys:   p.keys,
		TTLs:   p.ttls,
	})
	if err != nil {
		t.Fatalf("NewTokenProvider: %v", err)
	}
	token, _, err := other.Sign(domain.Principal{ID: "u1", Username: "alice", Type: domain.TypeUser}, "")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if _, err := p.Verify(token); !errors.Is(err, ErrSignatureInvalid) {
		t.Errorf("Verify foreign issuer: want ErrSignatureInvalid, got %v", err)
	}
}

func TestTokenProvider_AsymmetricUserKey(t *testing.T) {
	p, err := NewTestAsymmetricTokenProvider()
	if err != nil {
		t.Fatalf("NewTestAsymmetricTokenProvider: %v", err)
	}
	token, _, err := p.Sign(domain.Principal{ID: "u1", Username: "alice", Type: domain.TypeUser}, "")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if _, err := p.VerifyFor(token, domain.TypeUser); err != nil {
		t.Fatalf("VerifyFor: %v", err)
	}

	// HS256 token keyed with the public key PEM must not be accepted for an RS256 principal type.
	confused := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			Issuer:    "test-issuer",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Type: domain.TypeUser,
	})
	forged, err := confused.SignedString([]byte(testPublicKeyPEM))
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	if _, err := p.Verify(forged); !errors.Is(err, ErrSignatureInvalid) {
		t.Errorf("algorithm confusion: want ErrSignatureInvalid, got %v", err)
	}
}

func TestTokenProvider_SignUnknownType(t *testing.T) {
	p := mustProvider(t)
	if _, _, err := p.Sign(domain.Principal{ID: "x", Type: "admin"}, ""); !errors.Is(err, ErrInvalidTokenType) {
		t.Errorf("Sign unknown type: want ErrInvalidTokenType, got %v", err)
	}
	if _, _, err := p.Sign(domain.Principal{Type: domain.TypeUser}, ""); err == nil {
		t.Error("Sign without principal id should fail")
	}
}

func TestNewTokenProvider_Validation(t *testing.T) {
	key, _ := HMACKey([]byte(TestUserSecret))
	other, _ := HMACKey([]byte(TestCustomerSecret))
	ttls := map[domain.Type]time.Duration{domain.TypeUser: time.Hour, domain.TypeCustomer: time.Hour}

	cases := []struct {
		name string
		cfg  IssuerConfig
	}{
		{"missing issuer", IssuerConfig{Keys: map[domain.Type]SigningKey{domain.TypeUser: key}, TTLs: ttls}},
		{"no keys", IssuerConfig{Issuer: "i", TTLs: ttls}},
		{"unknown type", IssuerConfig{Issuer: "i", Keys: map[domain.Type]SigningKey{"admin": key}, TTLs: ttls}},
		{"zero key", IssuerConfig{Issuer: "i", Keys: map[domain.Type]SigningKey{domain.TypeUser: {}}, TTLs: ttls}},
		{"missing ttl", IssuerConfig{Issuer: "i", Keys: map[domain.Type]SigningKey{domain.TypeUser: key, domain.TypeCustomer: other}, TTLs: map[domain.Type]time.Duration{domain.TypeUser: time.Hour}}},
		{"shared secret", IssuerConfig{Issuer: "i", Keys: map[domain.Type]SigningKey{domain.TypeUser: key, domain.TypeCustomer: key}, TTLs: ttls}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewTokenProvider(tc.cfg); err == nil {
				t.Error("NewTokenProvider: want error, got nil")
			}
		})
	}
}

func TestHMACKey_ShortSecret(t *testing.T) {
	if _, err := HMACKey([]byte("short")); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("HMACKey short secret: want ErrInvalidKey, got %v", err)
	}
	k, err := HMACKey([]byte(TestUserSecret))
	if err != nil {
		t.Fatalf("HMACKey: %v", err)
	}
	if k.Alg() != "HS256" {
		t.Errorf("Alg = %q, want HS256", k.Alg())
	}
}
