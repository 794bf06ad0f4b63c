// Package auth signs and validates access tokens and produces refresh-token
// secrets. Keys are supplied through an explicit KeyRing; nothing here reads
// global state or the wall clock directly.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/dmitrijs2005/sessionkeeper/internal/logging"
	"github.com/dmitrijs2005/sessionkeeper/internal/timex"
)

// maxTokenLength bounds what Validate is willing to parse.
const maxTokenLength = 8192

var signingMethod = jwt.SigningMethodHS256

// Claims are the access-token claims. Subject is the user id, ID the jti.
type Claims struct {
	jwt.RegisteredClaims
	Email     string   `json:"email,omitempty"`
	SessionID string   `json:"sid"`
	Roles     []string `json:"roles,omitempty"`
	DeviceID  string   `json:"did,omitempty"`
	UserAgent string   `json:"ua,omitempty"`
}

// UserID parses the subject.
func (c *Claims) UserID() (uuid.UUID, error) { return uuid.Parse(c.Subject) }

// Session parses the session id.
func (c *Claims) Session() (uuid.UUID, error) { return uuid.Parse(c.SessionID) }

// AccessToken is a freshly signed token together with the values the
// caller would otherwise need to parse back out of it.
type AccessToken struct {
	Token     string
	JTI       string
	SessionID uuid.UUID
	UserID    uuid.UUID
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// BlacklistStore is the part of the blacklist the signer depends on.
type BlacklistStore interface {
	Blacklist(ctx context.Context, jti string, expiresAt time.Time) (bool, error)
	IsBlacklisted(ctx context.Context, jti string) (bool, error)
}

// Options configure a Signer.
type Options struct {
	Keys      *KeyRing
	Issuer    string
	Audience  string
	AccessTTL time.Duration
	Clock     timex.Clock
	Blacklist BlacklistStore
	Logger    logging.Logger
}

// Signer creates and validates access tokens.
type Signer struct {
	keys      *KeyRing
	issuer    string
	audience  string
	accessTTL time.Duration
	clock     timex.Clock
	blacklist BlacklistStore
	log       logging.Logger
}

func NewSigner(o Options) (*Signer, error) {
	if o.Keys == nil {
		return nil, errors.New("signer needs a key ring")
	}
	if o.Blacklist == nil {
		return nil, errors.New("signer needs a blacklist store")
	}
	if o.AccessTTL <= 0 {
		return nil, fmt.Errorf("access token ttl must be positive, got %s", o.AccessTTL)
	}
	if o.Clock == nil {
		o.Clock = timex.SystemClock{}
	}
	if o.Logger == nil {
		o.Logger = logging.NewNop()
	}
	return &Signer{
		keys:      o.Keys,
		issuer:    o.Issuer,
		audience:  o.Audience,
		accessTTL: o.AccessTTL,
		clock:     o.Clock,
		blacklist: o.Blacklist,
		log:       o.Logger,
	}, nil
}

// CreateAccessToken signs a new access token. A new session id is minted
// unless existingSessionID is given.
func (s *Signer) CreateAccessToken(userID uuid.UUID, email string, roles []string, deviceID, userAgent string, existingSessionID *uuid.UUID) (*AccessToken, error) {
	sessionID := uuid.New()
	if existingSessionID != nil && *existingSessionID != uuid.Nil {
		sessionID = *existingSessionID
	}
	if len(roles) == 0 {
		roles = common.DefaultRoles
	}

	now := s.clock.Now()
	iat := jwt.NewNumericDate(now)
	exp := jwt.NewNumericDate(now.Add(s.accessTTL))
	jti := uuid.NewString()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   userID.String(),
			ExpiresAt: exp,
			IssuedAt:  iat,
			NotBefore: iat,
			ID:        jti,
		},
		Email:     email,
		SessionID: sessionID.String(),
		Roles:     roles,
		DeviceID:  deviceID,
		UserAgent: userAgent,
	}
	if s.audience != "" {
		claims.Audience = jwt.ClaimStrings{s.audience}
	}

	key := s.keys.Signing()
	token := jwt.NewWithClaims(signingMethod, claims)
	token.Header["kid"] = key.ID

	signed, err := token.SignedString(key.Secret)
	if err != nil {
		return nil, err
	}

	return &AccessToken{
		Token:     signed,
		JTI:       jti,
		SessionID: sessionID,
		UserID:    userID,
		IssuedAt:  iat.Time,
		ExpiresAt: exp.Time,
	}, nil
}

// Validate checks shape, signature, issuer/audience and expiry, re-checks
// expiry against the injected clock and finally consults the blacklist.
// Every failure, including a blacklist lookup error, is
// common.ErrInvalidToken.
func (s *Signer) Validate(ctx context.Context, token string) (*Claims, error) {
	if !wellFormed(token) {
		s.log.Debug(ctx, "token rejected", "reason", "malformed")
		return nil, common.ErrInvalidToken
	}

	claims := &Claims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock.Now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	if s.audience != "" {
		opts = append(opts, jwt.WithAudience(s.audience))
	}

	if _, err := jwt.ParseWithClaims(token, claims, s.keyFunc, opts...); err != nil {
		s.log.Debug(ctx, "token rejected", "reason", err.Error())
		return nil, common.ErrInvalidToken
	}

	if claims.ExpiresAt == nil || !s.clock.Now().Before(claims.ExpiresAt.Time) {
		s.log.Debug(ctx, "token rejected", "reason", "expired")
		return nil, common.ErrInvalidToken
	}
	if claims.ID == "" || claims.SessionID == "" {
		s.log.Debug(ctx, "token rejected", "reason", "missing jti or sid")
		return nil, common.ErrInvalidToken
	}

	revoked, err := s.blacklist.IsBlacklisted(ctx, claims.ID)
	if err != nil {
		s.log.Error(ctx, "blacklist lookup failed", "jti", claims.ID, "error", err)
		return nil, common.ErrInvalidToken
	}
	if revoked {
		s.log.Debug(ctx, "token rejected", "reason", "blacklisted", "jti", claims.ID)
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}

// Inspect verifies the signature but not expiry. It is meant for flows like
// logout that must still identify the session of a stale token.
func (s *Signer) Inspect(token string) (*Claims, error) {
	token = StripBearer(token)
	if !wellFormed(token) {
		return nil, common.ErrInvalidToken
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, s.keyFunc,
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil, common.ErrInvalidToken
	}
	return claims, nil
}

// Blacklist revokes token until its own expiry. The signature is not
// checked: a token being revoked may already be unusable, but its jti must
// still be recorded. It reports false when the token is already expired.
func (s *Signer) Blacklist(ctx context.Context, token string) (bool, error) {
	token = StripBearer(token)
	if !wellFormed(token) {
		return false, common.ErrInvalidToken
	}

	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false, common.ErrInvalidToken
	}
	if claims.ID == "" || claims.ExpiresAt == nil {
		return false, common.ErrInvalidToken
	}

	return s.blacklist.Blacklist(ctx, claims.ID, claims.ExpiresAt.Time)
}

func (s *Signer) keyFunc(t *jwt.Token) (any, error) {
	kid, _ := t.Header["kid"].(string)
	if kid == "" {
		return nil, errors.New("missing kid")
	}
	secret, ok := s.keys.Lookup(kid)
	if !ok {
		return nil, fmt.Errorf("unknown kid %q", kid)
	}
	return secret, nil
}

// StripBearer removes an optional "Bearer " prefix (any case).
func StripBearer(token string) string {
	token = strings.TrimSpace(token)
	if len(token) >= len(common.BearerPrefix) && strings.EqualFold(token[:len(common.BearerPrefix)], common.BearerPrefix) {
		token = strings.TrimSpace(token[len(common.BearerPrefix):])
	}
	return token
}

// wellFormed is a cheap shape check run before any parsing.
func wellFormed(token string) bool {
	if token == "" || len(token) > maxTokenLength {
		return false
	}
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return false
	}
	for _, p := range parts {
		if p == "" {
			return false
		}
	}
	return true
}
