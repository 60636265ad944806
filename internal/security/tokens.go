package security

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"commerce-auth/backend/internal/principal/domain"
)

var (
	// ErrMalformedToken is returned when a token does not have the header.claims.signature shape
	// or its claims segment cannot be decoded.
	ErrMalformedToken = errors.New("malformed token")
	// ErrInvalidTokenType is returned when the principal type is unknown, has no key,
	// or does not match the type a route requires.
	ErrInvalidTokenType = errors.New("invalid token type")
	// ErrSignatureInvalid is returned when signature, algorithm, issuer or claims checks fail.
	ErrSignatureInvalid = errors.New("token signature invalid")
	// ErrTokenExpired is returned when a correctly signed token is past its expiry.
	ErrTokenExpired = errors.New("token expired")
)

// Claims is the bearer credential payload.
type Claims struct {
	jwt.RegisteredClaims
	Username  string      `json:"username"`
	Type      domain.Type `json:"type"`
	RoleID    *string     `json:"role_id,omitempty"`
	SessionID string      `json:"session_id,omitempty"`
}

// IssuerConfig configures a TokenProvider. Keys and TTLs are indexed by principal type.
type IssuerConfig struct {
	Issuer string
	Keys   map[domain.Type]SigningKey
	TTLs   map[domain.Type]time.Duration
}

// TokenProvider signs and verifies bearer tokens, selecting key material by principal type.
type TokenProvider struct {
	issuer string
	keys   map[domain.Type]SigningKey
	ttls   map[domain.Type]time.Duration
	now    func() time.Time
}

// NewTokenProvider validates cfg and returns a TokenProvider. Every configured type needs
// a key and a positive TTL; HS256 secrets may not be shared between types.
func NewTokenProvider(cfg IssuerConfig) (*TokenProvider, error) {
	if cfg.Issuer == "" {
		return nil, errors.New("token provider: issuer is required")
	}
	if len(cfg.Keys) == 0 {
		return nil, errors.New("token provider: at least one key is required")
	}
	keys := make(map[domain.Type]SigningKey, len(cfg.Keys))
	ttls := make(map[domain.Type]time.Duration, len(cfg.Keys))
	for typ, key := range cfg.Keys {
		if !typ.Valid() {
			return nil, fmt.Errorf("token provider: unknown principal type %q", typ)
		}
		if key.method == nil {
			return nil, fmt.Errorf("token provider: %s: %w", typ, ErrInvalidKey)
		}
		ttl := cfg.TTLs[typ]
		if ttl <= 0 {
			return nil, fmt.Errorf("token provider: %s: ttl must be positive", typ)
		}
		keys[typ] = key
		ttls[typ] = ttl
	}
	if sharedHMACSecret(keys) {
		return nil, errors.New("token provider: principal types must not share a signing secret")
	}
	return &TokenProvider{issuer: cfg.Issuer, keys: keys, ttls: ttls, now: time.Now}, nil
}

func sharedHMACSecret(keys map[domain.Type]SigningKey) bool {
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		secret, ok := k.signKey.([]byte)
		if !ok {
			continue
		}
		if seen[string(secret)] {
			return true
		}
		seen[string(secret)] = true
	}
	return false
}

// Sign issues a token for p, optionally bound to sessionID. Returns the token and its expiry.
func (p *TokenProvider) Sign(pr domain.Principal, sessionID string) (string, time.Time, error) {
	key, ok := p.keys[pr.Type]
	if !ok {
		return "", time.Time{}, ErrInvalidTokenType
	}
	if pr.ID == "" {
		return "", time.Time{}, errors.New("sign: principal id is required")
	}
	now := p.now().UTC()
	expiresAt := now.Add(p.ttls[pr.Type])
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   pr.ID,
			Issuer:    p.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Username:  pr.Username,
		Type:      pr.Type,
		RoleID:    pr.RoleID,
		SessionID: sessionID,
	}
	token, err := jwt.NewWithClaims(key.method, claims).SignedString(key.signKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing %s token: %w", pr.Type, err)
	}
	return token, expiresAt, nil
}

// Verify authenticates token. The unverified principal type only selects the key; the
// returned claims come exclusively from the verification with that key.
func (p *TokenProvider) Verify(token string) (*Claims, error) {
	typ, err := peekType(token)
	if err != nil {
		return nil, err
	}
	key, ok := p.keys[typ]
	if !ok {
		return nil, ErrInvalidTokenType
	}
	return p.verifyWithKey(token, typ, key)
}

// VerifyFor authenticates token and requires it to belong to a principal of type want.
func (p *TokenProvider) VerifyFor(token string, want domain.Type) (*Claims, error) {
	claims, err := p.Verify(token)
	if err != nil {
		return nil, err
	}
	if claims.Type != want {
		return nil, ErrInvalidTokenType
	}
	return claims, nil
}

// peekType reads the principal type from the claims segment without checking the signature.
// Its result must never be used for anything except key selection.
func peekType(token string) (domain.Type, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return "", ErrMalformedToken
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		return "", ErrMalformedToken
	}
	var peek struct {
		Type domain.Type `json:"type"`
	}
	if err := json.Unmarshal(raw, &peek); err != nil {
		return "", ErrMalformedToken
	}
	if !peek.Type.Valid() {
		return "", ErrInvalidTokenType
	}
	return peek.Type, nil
}

func (p *TokenProvider) verifyWithKey(token string, typ domain.Type, key SigningKey) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return key.verifyKey, nil
	},
		jwt.WithValidMethods([]string{key.method.Alg()}),
		jwt.WithIssuer(p.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrSignatureInvalid
	}
	if claims.Type != typ {
		return nil, ErrInvalidTokenType
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrSignatureInvalid)
	}
	return claims, nil
}
