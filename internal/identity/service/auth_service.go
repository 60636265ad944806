package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"commerce-auth/backend/internal/device"
	"commerce-auth/backend/internal/geo"
	principaldomain "commerce-auth/backend/internal/principal/domain"
	principalrepo "commerce-auth/backend/internal/principal/repository"
	"commerce-auth/backend/internal/security"
	sessiondomain "commerce-auth/backend/internal/session/domain"
	sessionservice "commerce-auth/backend/internal/session/service"
	"commerce-auth/backend/internal/telemetry"
)

// ErrInvalidCredentials is returned for an unknown principal or a wrong password alike.
var ErrInvalidCredentials = errors.New("invalid credentials")

// dummyPassword is hashed once at construction so lookups for unknown principals
// spend the same time in Verify as lookups for known ones.
const dummyPassword = "commerce-auth-timing-equaliser"

// Credentials is a customer login request. Login is a username or an email address.
type Credentials struct {
	Login    string
	Password string
}

// UserLoginResult is the outcome of a staff login. Users have no session or refresh token.
type UserLoginResult struct {
	AccessToken string
	ExpiresAt   time.Time
	Principal   principaldomain.Principal
}

// CustomerLoginResult carries the access token, the raw refresh token (returned once) and the session.
type CustomerLoginResult struct {
	AccessToken      string
	ExpiresAt        time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	Principal        principaldomain.Principal
	Session          *sessiondomain.Session
}

// SessionStore is the session lifecycle the orchestrator depends on.
type SessionStore interface {
	Create(ctx context.Context, p sessionservice.CreateParams) (*sessiondomain.Session, string, error)
	Rotate(ctx context.Context, sessionID, presented string, ttl time.Duration) (*sessiondomain.Session, string, error)
	Revoke(ctx context.Context, sessionID, requesterCustomerID, reason string) error
	RevokeOthers(ctx context.Context, currentSessionID, customerID string) (int64, error)
	RevokeAll(ctx context.Context, customerID string) (int64, error)
	ListByCustomer(ctx context.Context, customerID string) ([]*sessiondomain.Session, error)
}

// GeoLocator resolves an advisory location for an IP. It must not fail.
type GeoLocator interface {
	Lookup(ctx context.Context, ip string) geo.Location
}

// Deps are the collaborators of AuthService. Locator, Events, Metrics and Logger are optional.
type Deps struct {
	Principals principalrepo.Repository
	Sessions   SessionStore
	Hasher     *security.Hasher
	Tokens     *security.TokenProvider
	Locator    GeoLocator
	Events     telemetry.EventEmitter
	Metrics    *telemetry.Metrics
	Logger     *zap.Logger
	RefreshTTL time.Duration
}

// AuthService composes password verification, device fingerprinting, sessions and token
// signing into the login, refresh and logout flows.
type AuthService struct {
	principals principalrepo.Repository
	sessions   SessionStore
	hasher     *security.Hasher
	tokens     *security.TokenProvider
	locator    GeoLocator
	events     telemetry.EventEmitter
	metrics    *telemetry.Metrics
	logger     *zap.Logger
	refreshTTL time.Duration
	dummyHash  string
}

// NewAuthService validates deps and returns an AuthService.
func NewAuthService(deps Deps) (*AuthService, error) {
	if deps.Principals == nil || deps.Sessions == nil || deps.Hasher == nil || deps.Tokens == nil {
		return nil, errors.New("auth service: principals, sessions, hasher and tokens are required")
	}
	if deps.RefreshTTL <= 0 {
		return nil, errors.New("auth service: refresh ttl must be positive")
	}
	dummy, err := deps.Hasher.Hash([]byte(dummyPassword))
	if err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		principals: deps.Principals,
		sessions:   deps.Sessions,
		hasher:     deps.Hasher,
		tokens:     deps.Tokens,
		locator:    deps.Locator,
		events:     deps.Events,
		metrics:    deps.Metrics,
		logger:     logger,
		refreshTTL: deps.RefreshTTL,
		dummyHash:  dummy,
	}, nil
}

// LoginUser authenticates a staff user and returns an access token. No session is tracked.
func (s *AuthService) LoginUser(ctx context.Context, username, password string) (*UserLoginResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		s.loginFailed(ctx, principaldomain.TypeUser, "")
		return nil, ErrInvalidCredentials
	}
	u, err := s.principals.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if !s.checkPassword(u != nil, password, func() string { return u.PasswordHash }) {
		s.loginFailed(ctx, principaldomain.TypeUser, "")
		return nil, ErrInvalidCredentials
	}
	pr := u.Principal()
	token, exp, err := s.tokens.Sign(pr, "")
	if err != nil {
		return nil, err
	}
	s.metrics.Login(ctx, string(pr.Type), telemetry.OutcomeSuccess)
	telemetry.EmitAsync(s.events, ctx, &telemetry.Event{
		Type:          telemetry.EventLoginSucceeded,
		PrincipalType: string(pr.Type),
		SubjectID:     pr.ID,
	})
	return &UserLoginResult{AccessToken: token, ExpiresAt: exp, Principal: pr}, nil
}

// LoginCustomer authenticates a customer, opens or refreshes the session for the calling device
// and returns a session-bound access token plus a new refresh token.
func (s *AuthService) LoginCustomer(ctx context.Context, creds Credentials, dc device.Context) (*CustomerLoginResult, error) {
	login := strings.TrimSpace(creds.Login)
	if login == "" || creds.Password == "" {
		s.loginFailed(ctx, principaldomain.TypeCustomer, dc.IP)
		return nil, ErrInvalidCredentials
	}
	c, err := s.principals.GetCustomerByLogin(ctx, login)
	if err != nil {
		return nil, err
	}
	if !s.checkPassword(c != nil, creds.Password, func() string { return c.PasswordHash }) {
		s.loginFailed(ctx, principaldomain.TypeCustomer, dc.IP)
		return nil, ErrInvalidCredentials
	}

	loc := s.locate(ctx, dc.IP)
	dev := device.Fingerprint(dc)
	sess, raw, err := s.sessions.Create(ctx, sessionservice.CreateParams{
		CustomerID: c.ID,
		DeviceID:   dev.ID,
		DeviceName: dev.Name,
		UserAgent:  dc.UserAgent,
		IP:         dc.IP,
		Location:   loc,
		TTL:        s.refreshTTL,
		Metadata:   agentMetadata(dev.Agent),
	})
	if err != nil {
		return nil, err
	}
	pr := c.Principal()
	token, exp, err := s.tokens.Sign(pr, sess.ID)
	if err != nil {
		return nil, err
	}
	s.metrics.Login(ctx, string(pr.Type), telemetry.OutcomeSuccess)
	telemetry.EmitAsync(s.events, ctx, &telemetry.Event{
		Type:          telemetry.EventLoginSucceeded,
		PrincipalType: string(pr.Type),
		SubjectID:     pr.ID,
		SessionID:     sess.ID,
		DeviceID:      sess.DeviceID,
		IP:            dc.IP,
	})
	return &CustomerLoginResult{
		AccessToken:      token,
		ExpiresAt:        exp,
		RefreshToken:     raw,
		RefreshExpiresAt: sess.RefreshExpiresAt,
		Principal:        pr,
		Session:          sess,
	}, nil
}

// RefreshCustomerToken rotates the session's refresh token and signs a new access token bound
// to the same session. A stale, wrong or empty refresh token revokes the session.
func (s *AuthService) RefreshCustomerToken(ctx context.Context, sessionID, rawRefresh string) (*CustomerLoginResult, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		s.metrics.Refresh(ctx, telemetry.OutcomeFailure)
		return nil, sessionservice.ErrInvalidRefreshToken
	}
	sess, raw, err := s.sessions.Rotate(ctx, sessionID, rawRefresh, s.refreshTTL)
	if err != nil {
		s.refreshFailed(ctx, sessionID, err)
		return nil, err
	}
	c, err := s.principals.GetCustomerByID(ctx, sess.CustomerID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		s.refreshFailed(ctx, sessionID, ErrInvalidCredentials)
		return nil, ErrInvalidCredentials
	}
	pr := c.Principal()
	token, exp, err := s.tokens.Sign(pr, sess.ID)
	if err != nil {
		return nil, err
	}
	s.metrics.Refresh(ctx, telemetry.OutcomeSuccess)
	telemetry.EmitAsync(s.events, ctx, &telemetry.Event{
		Type:          telemetry.EventTokenRefreshed,
		PrincipalType: string(pr.Type),
		SubjectID:     pr.ID,
		SessionID:     sess.ID,
		DeviceID:      sess.DeviceID,
	})
	return &CustomerLoginResult{
		AccessToken:      token,
		ExpiresAt:        exp,
		RefreshToken:     raw,
		RefreshExpiresAt: sess.RefreshExpiresAt,
		Principal:        pr,
		Session:          sess,
	}, nil
}

// Logout revokes the caller's current session.
func (s *AuthService) Logout(ctx context.Context, customerID, sessionID string) error {
	if err := s.sessions.Revoke(ctx, sessionID, customerID, sessiondomain.ReasonLogout); err != nil {
		return err
	}
	s.revoked(ctx, telemetry.EventLogout, customerID, sessionID, sessiondomain.ReasonLogout, 1)
	return nil
}

// ListSessions returns every session of the customer, most recent first.
func (s *AuthService) ListSessions(ctx context.Context, customerID string) ([]*sessiondomain.Session, error) {
	return s.sessions.ListByCustomer(ctx, customerID)
}

// RevokeSession revokes one of the customer's sessions.
func (s *AuthService) RevokeSession(ctx context.Context, customerID, sessionID string) error {
	if err := s.sessions.Revoke(ctx, sessionID, customerID, sessiondomain.ReasonRevokedByCustomer); err != nil {
		return err
	}
	s.revoked(ctx, telemetry.EventSessionRevoked, customerID, sessionID, sessiondomain.ReasonRevokedByCustomer, 1)
	return nil
}

// RevokeOtherSessions revokes every session of the customer except currentSessionID.
func (s *AuthService) RevokeOtherSessions(ctx context.Context, customerID, currentSessionID string) (int64, error) {
	n, err := s.sessions.RevokeOthers(ctx, currentSessionID, customerID)
	if err != nil {
		return 0, err
	}
	s.revoked(ctx, telemetry.EventSessionRevoked, customerID, currentSessionID, sessiondomain.ReasonRevokedOthers, n)
	return n, nil
}

// RevokeAllSessions revokes every session of the customer, including the current one.
func (s *AuthService) RevokeAllSessions(ctx context.Context, customerID string) (int64, error) {
	n, err := s.sessions.RevokeAll(ctx, customerID)
	if err != nil {
		return 0, err
	}
	s.revoked(ctx, telemetry.EventSessionRevoked, customerID, "", sessiondomain.ReasonRevokedAll, n)
	return n, nil
}

// checkPassword verifies password against the stored hash, or against a dummy hash when the
// principal does not exist so both paths cost one hash verification.
func (s *AuthService) checkPassword(found bool, password string, stored func() string) bool {
	if !found {
		s.hasher.Verify([]byte(password), s.dummyHash)
		return false
	}
	return s.hasher.Verify([]byte(password), stored())
}

func (s *AuthService) locate(ctx context.Context, ip string) sessiondomain.Location {
	if s.locator == nil || ip == "" {
		return sessiondomain.Location{}
	}
	loc := s.locator.Lookup(ctx, ip)
	return sessiondomain.Location{
		Country:     loc.Country,
		Province:    loc.Province,
		District:    loc.District,
		Latitude:    loc.Latitude,
		Longitude:   loc.Longitude,
		GeoLocation: loc.Coordinates(),
	}
}

func agentMetadata(a device.Agent) map[string]any {
	md := map[string]any{}
	for k, v := range map[string]string{
		"browser":         a.Browser,
		"browser_version": a.BrowserVersion,
		"os":              a.OS,
		"os_version":      a.OSVersion,
		"device_class":    string(a.Class),
	} {
		if v != "" {
			md[k] = v
		}
	}
	if len(md) == 0 {
		return nil
	}
	return md
}

func (s *AuthService) loginFailed(ctx context.Context, typ principaldomain.Type, ip string) {
	s.metrics.Login(ctx, string(typ), telemetry.OutcomeFailure)
	telemetry.EmitAsync(s.events, ctx, &telemetry.Event{
		Type:          telemetry.EventLoginFailed,
		PrincipalType: string(typ),
		IP:            ip,
		Reason:        ErrInvalidCredentials.Error(),
	})
}

func (s *AuthService) refreshFailed(ctx context.Context, sessionID string, err error) {
	s.metrics.Refresh(ctx, telemetry.OutcomeFailure)
	event := &telemetry.Event{
		Type:          telemetry.EventRefreshRejected,
		PrincipalType: string(principaldomain.TypeCustomer),
		SessionID:     sessionID,
		Reason:        err.Error(),
	}
	if errors.Is(err, sessionservice.ErrInvalidRefreshToken) {
		event.Type = telemetry.EventRefreshTokenReuse
		event.Reason = sessiondomain.ReasonRefreshTokenReuse
		s.metrics.Revoked(ctx, sessiondomain.ReasonRefreshTokenReuse, 1)
	}
	telemetry.EmitAsync(s.events, ctx, event)
}

func (s *AuthService) revoked(ctx context.Context, eventType, customerID, sessionID, reason string, n int64) {
	s.metrics.Revoked(ctx, reason, n)
	telemetry.EmitAsync(s.events, ctx, &telemetry.Event{
		Type:          eventType,
		PrincipalType: string(principaldomain.TypeCustomer),
		SubjectID:     customerID,
		SessionID:     sessionID,
		Reason:        reason,
		Count:         n,
	})
}
