// Package services contains server-side business logic. SessionService is
// the login use case: captcha, lockout and credential gates followed by
// token issuance and refresh-token persistence with a bounded retry.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/dmitrijs2005/sessionkeeper/internal/dbx"
	"github.com/dmitrijs2005/sessionkeeper/internal/logging"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/auth"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/captcha"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/lockout"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/models"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/password"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/sessionkeeper/internal/timex"
)

// maxRefreshInserts is the number of insert attempts for one refresh row:
// the first plus exactly one retry after a token-hash collision.
const maxRefreshInserts = 2

// TokenSigner is the subset of auth.Signer used here.
type TokenSigner interface {
	CreateAccessToken(userID uuid.UUID, email string, roles []string, deviceID, userAgent string, existingSessionID *uuid.UUID) (*auth.AccessToken, error)
	Validate(ctx context.Context, token string) (*auth.Claims, error)
	Inspect(token string) (*auth.Claims, error)
	Blacklist(ctx context.Context, token string) (bool, error)
}

// LoginRequest is what the transport extracts from a login call.
type LoginRequest struct {
	Email        string
	Password     string
	CaptchaToken string
	RememberMe   bool
	ClientIP     string
	DeviceID     string
	UserAgent    string
	// ExistingSessionID, when set, is revoked and then reused.
	ExistingSessionID *uuid.UUID
	// Seeding marks a trusted seeding call; honored only when AllowSeedLogin.
	Seeding bool
}

// RefreshRequest exchanges a refresh-token plaintext for a new token pair.
type RefreshRequest struct {
	RefreshToken string
	RememberMe   bool
	ClientIP     string
	DeviceID     string
	UserAgent    string
}

// LoginResult is the token bundle returned by Login and Refresh. The
// refresh plaintext is handed out here once and never stored.
type LoginResult struct {
	AccessToken                   string
	AccessTokenJTI                string
	AccessTokenExpiresAt          time.Time
	RefreshToken                  string
	RefreshTokenExpiresAt         time.Time
	RefreshTokenAbsoluteExpiresAt time.Time
	SessionID                     uuid.UUID
	UserID                        uuid.UUID
	RememberMe                    bool
}

// SessionOptions carries the policy knobs of SessionService.
type SessionOptions struct {
	Lockout            lockout.Policy
	RefreshRollingTTL  time.Duration
	RefreshAbsoluteTTL time.Duration
	AllowSeedLogin     bool
	// BypassEmail reports whether an email may skip the captcha.
	BypassEmail func(email string) bool
}

// SessionService implements login, refresh, logout and session revocation.
type SessionService struct {
	db       *sql.DB
	repos    repomanager.RepositoryManager
	signer   TokenSigner
	verifier password.Verifier
	captcha  captcha.Verifier
	clock    timex.Clock
	log      logging.Logger
	opts     SessionOptions

	newRefreshToken func() (string, error)
}

// NewSessionService wires the orchestrator. Repositories are bound to db on
// every call, as with the rest of the services.
func NewSessionService(
	db *sql.DB,
	repos repomanager.RepositoryManager,
	signer TokenSigner,
	verifier password.Verifier,
	captchaVerifier captcha.Verifier,
	clock timex.Clock,
	log logging.Logger,
	opts SessionOptions,
) *SessionService {
	if clock == nil {
		clock = timex.SystemClock{}
	}
	if log == nil {
		log = logging.NewNop()
	}
	if opts.BypassEmail == nil {
		opts.BypassEmail = func(string) bool { return false }
	}
	return &SessionService{
		db:              db,
		repos:           repos,
		signer:          signer,
		verifier:        verifier,
		captcha:         captchaVerifier,
		clock:           clock,
		log:             log.With("component", "sessions"),
		opts:            opts,
		newRefreshToken: auth.CreateRefreshToken,
	}
}

// Login runs the gates in order and stops at the first failure. Expected
// failures come back as *common.DomainError values; store faults are logged
// and collapsed into common.ErrTransactionFailed.
func (s *SessionService) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	email := normalizeEmail(req.Email)
	log := s.log.With("email", email, "ip", req.ClientIP)

	if err := s.checkBot(ctx, email, req); err != nil {
		log.Info(ctx, "login rejected", "code", common.CodeInvalidCaptcha)
		return nil, err
	}

	users := s.repos.Users(s.db)
	user, err := users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			log.Info(ctx, "login rejected", "code", common.CodeInvalidCredentials)
			return nil, common.ErrInvalidCredentials
		}
		return nil, s.fault(ctx, "lookup user", err)
	}

	now := s.clock.Now()

	failed := 0
	if !user.IsLockedAt(now) {
		failed, err = s.repos.LoginAttempts(s.db).CountSince(ctx, email, s.opts.Lockout.WindowStart(now), now)
		if err != nil {
			return nil, s.fault(ctx, "count login attempts", err)
		}
	}

	switch v := s.opts.Lockout.Evaluate(user.LockoutUntil, now, failed); v.Decision {
	case lockout.Locked:
		log.Info(ctx, "login rejected", "code", common.CodeUserLockedOut)
		return nil, common.ErrUserLockedOut
	case lockout.LockNow:
		if err := users.SetLockoutUntil(ctx, user.ID, &v.Until); err != nil {
			return nil, s.fault(ctx, "persist lockout", err)
		}
		log.Info(ctx, "login rejected, account locked", "code", common.CodeInvalidCredentials, "until", v.Until)
		return nil, common.ErrInvalidCredentials
	}

	ok, err := s.verifier.Verify(req.Password, user.PasswordHash)
	if err != nil {
		log.Warn(ctx, "stored password hash unusable", "user_id", user.ID, "error", err)
	}
	if !ok {
		if err := s.recordFailure(ctx, user, email, req, now); err != nil {
			return nil, s.fault(ctx, "record failed attempt", err)
		}
		log.Info(ctx, "login rejected", "code", common.CodeInvalidCredentials)
		return nil, common.ErrInvalidCredentials
	}

	// Correct password on an unconfirmed account: neither counted as a
	// failure nor clearing earlier failures.
	if !user.EmailConfirmed {
		log.Info(ctx, "login rejected", "code", common.CodeEmailNotConfirmed)
		return nil, common.ErrEmailNotConfirmed
	}

	if _, err := s.repos.LoginAttempts(s.db).DeleteByEmail(ctx, email); err != nil {
		return nil, s.fault(ctx, "clear login attempts", err)
	}
	if user.LockoutUntil != nil {
		if err := users.SetLockoutUntil(ctx, user.ID, nil); err != nil {
			return nil, s.fault(ctx, "clear lockout", err)
		}
	}

	if req.ExistingSessionID != nil {
		if _, err := s.repos.RefreshTokens(s.db).RevokeSession(ctx, user.ID, *req.ExistingSessionID, now); err != nil {
			return nil, s.fault(ctx, "revoke prior session", err)
		}
	}

	access, err := s.signer.CreateAccessToken(user.ID, user.Email, user.Roles, req.DeviceID, req.UserAgent, req.ExistingSessionID)
	if err != nil {
		return nil, s.fault(ctx, "sign access token", err)
	}

	absolute := now.Add(s.opts.RefreshAbsoluteTTL)
	rolling := minTime(now.Add(s.opts.RefreshRollingTTL), absolute)

	plain, row, err := s.persistRefreshToken(ctx, func(hash string) *models.RefreshToken {
		return &models.RefreshToken{
			UserID:            user.ID,
			SessionID:         access.SessionID,
			TokenHash:         hash,
			AccessJTI:         access.JTI,
			ExpiresAt:         rolling,
			AbsoluteExpiresAt: absolute,
			Status:            models.RefreshTokenActive,
			DeviceID:          req.DeviceID,
			UserAgent:         req.UserAgent,
			CreatedAt:         now,
		}
	})
	if err != nil {
		return nil, err
	}

	log.Info(ctx, "login succeeded", "user_id", user.ID, "session_id", access.SessionID)
	return newResult(access, plain, row, req.RememberMe), nil
}

// Refresh rotates a refresh token: the presented row is revoked and a new
// one is issued in the same session, keeping the original absolute expiry.
// Presenting an already revoked token revokes the whole session.
func (s *SessionService) Refresh(ctx context.Context, req RefreshRequest) (*LoginResult, error) {
	if strings.TrimSpace(req.RefreshToken) == "" {
		return nil, common.ErrInvalidRefreshToken
	}

	tokens := s.repos.RefreshTokens(s.db)
	row, err := tokens.FindByHash(ctx, auth.HashRefreshToken(req.RefreshToken))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidRefreshToken
		}
		return nil, s.fault(ctx, "find refresh token", err)
	}

	now := s.clock.Now()
	log := s.log.With("user_id", row.UserID, "session_id", row.SessionID)

	if row.Status == models.RefreshTokenRevoked {
		log.Warn(ctx, "revoked refresh token presented, revoking session")
		if _, err := tokens.RevokeSession(ctx, row.UserID, row.SessionID, now); err != nil {
			return nil, s.fault(ctx, "revoke replayed session", err)
		}
		return nil, common.ErrInvalidRefreshToken
	}
	if !row.UsableAt(now) {
		return nil, common.ErrInvalidRefreshToken
	}

	user, err := s.repos.Users(s.db).GetByID(ctx, row.UserID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidRefreshToken
		}
		return nil, s.fault(ctx, "lookup user", err)
	}
	if !user.EmailConfirmed || user.IsLockedAt(now) {
		return nil, common.ErrInvalidRefreshToken
	}

	n, err := tokens.RevokeByID(ctx, row.ID, now)
	if err != nil {
		return nil, s.fault(ctx, "revoke rotated token", err)
	}
	if n == 0 {
		// lost a race with a concurrent rotation of the same token
		return nil, common.ErrInvalidRefreshToken
	}

	deviceID := req.DeviceID
	if deviceID == "" {
		deviceID = row.DeviceID
	}
	userAgent := req.UserAgent
	if userAgent == "" {
		userAgent = row.UserAgent
	}

	sessionID := row.SessionID
	access, err := s.signer.CreateAccessToken(user.ID, user.Email, user.Roles, deviceID, userAgent, &sessionID)
	if err != nil {
		return nil, s.fault(ctx, "sign access token", err)
	}

	rolling := minTime(now.Add(s.opts.RefreshRollingTTL), row.AbsoluteExpiresAt)
	plain, next, err := s.persistRefreshToken(ctx, func(hash string) *models.RefreshToken {
		return &models.RefreshToken{
			UserID:            user.ID,
			SessionID:         sessionID,
			TokenHash:         hash,
			AccessJTI:         access.JTI,
			ExpiresAt:         rolling,
			AbsoluteExpiresAt: row.AbsoluteExpiresAt,
			Status:            models.RefreshTokenActive,
			DeviceID:          deviceID,
			UserAgent:         userAgent,
			CreatedAt:         now,
		}
	})
	if err != nil {
		return nil, err
	}

	log.Info(ctx, "refresh token rotated")
	return newResult(access, plain, next, req.RememberMe), nil
}

// Logout blacklists the access token and revokes its session. When the
// access token cannot identify the session, the refresh token is used.
func (s *SessionService) Logout(ctx context.Context, accessToken, refreshToken string) error {
	var (
		userID, sessionID uuid.UUID
		found             bool
	)

	if accessToken = auth.StripBearer(accessToken); accessToken != "" {
		if claims, err := s.signer.Inspect(accessToken); err == nil {
			uid, uerr := claims.UserID()
			sid, serr := claims.Session()
			if uerr == nil && serr == nil {
				userID, sessionID, found = uid, sid, true
			}
			if _, err := s.signer.Blacklist(ctx, accessToken); err != nil {
				return s.fault(ctx, "blacklist access token", err)
			}
		}
	}

	if !found && strings.TrimSpace(refreshToken) != "" {
		row, err := s.repos.RefreshTokens(s.db).FindByHash(ctx, auth.HashRefreshToken(refreshToken))
		switch {
		case err == nil:
			userID, sessionID, found = row.UserID, row.SessionID, true
		case !errors.Is(err, common.ErrorNotFound):
			return s.fault(ctx, "find refresh token", err)
		}
	}

	if !found {
		return common.ErrInvalidToken
	}

	if _, err := s.RevokeSession(ctx, userID, sessionID); err != nil {
		return err
	}
	s.log.Info(ctx, "logged out", "user_id", userID, "session_id", sessionID)
	return nil
}

// RevokeSession revokes the active refresh row of one session and returns
// the number of rows changed (0 when already revoked).
func (s *SessionService) RevokeSession(ctx context.Context, userID, sessionID uuid.UUID) (int64, error) {
	n, err := s.repos.RefreshTokens(s.db).RevokeSession(ctx, userID, sessionID, s.clock.Now())
	if err != nil {
		return 0, s.fault(ctx, "revoke session", err)
	}
	return n, nil
}

// ValidateAccessToken validates a bearer token, with or without prefix.
func (s *SessionService) ValidateAccessToken(ctx context.Context, token string) (*auth.Claims, error) {
	return s.signer.Validate(ctx, auth.StripBearer(token))
}

// checkBot is the first gate. A seeding call skips the captcha only when
// seeding is enabled; a bypass email skips it only when bypass is enabled.
func (s *SessionService) checkBot(ctx context.Context, email string, req LoginRequest) error {
	if req.Seeding {
		if s.opts.AllowSeedLogin {
			return nil
		}
		s.log.Warn(ctx, "seeding login attempted while disabled", "email", email)
	}
	if s.opts.BypassEmail(email) {
		return nil
	}

	ok, err := s.captcha.Verify(ctx, req.CaptchaToken, req.ClientIP)
	if err != nil {
		s.log.Warn(ctx, "captcha verification error", "error", err)
		return common.ErrInvalidCaptcha
	}
	if !ok {
		return common.ErrInvalidCaptcha
	}
	return nil
}

// recordFailure stores the failed attempt, recounts the window and locks
// the account when the threshold is reached, all in one transaction.
func (s *SessionService) recordFailure(ctx context.Context, user *models.User, email string, req LoginRequest, now time.Time) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		attempts := s.repos.LoginAttempts(tx)

		if err := attempts.Insert(ctx, &models.LoginAttempt{
			Email:       email,
			IPAddress:   req.ClientIP,
			UserAgent:   req.UserAgent,
			AttemptedAt: now,
		}); err != nil {
			return err
		}

		// the attempt just stored sits at now, so the window includes now
		count, err := attempts.CountSince(ctx, email, s.opts.Lockout.WindowStart(now), now.Add(time.Nanosecond))
		if err != nil {
			return err
		}
		if !s.opts.Lockout.Tripped(count) {
			return nil
		}

		until := s.opts.Lockout.LockUntil(now)
		if err := s.repos.Users(tx).SetLockoutUntil(ctx, user.ID, &until); err != nil {
			return err
		}
		s.log.Info(ctx, "account locked", "user_id", user.ID, "until", until, "failures", count)
		return nil
	})
}

// persistRefreshToken generates a plaintext, stores its hash and retries
// once with a fresh plaintext if the hash collides. The caller's access
// token is not regenerated. Cancellation is checked before every attempt.
func (s *SessionService) persistRefreshToken(ctx context.Context, build func(hash string) *models.RefreshToken) (string, *models.RefreshToken, error) {
	repo := s.repos.RefreshTokens(s.db)

	for attempt := 1; attempt <= maxRefreshInserts; attempt++ {
		if err := ctx.Err(); err != nil {
			s.log.Warn(ctx, "refresh token persistence cancelled", "attempt", attempt, "error", err)
			return "", nil, fmt.Errorf("%w: %w", common.ErrTransactionFailed, err)
		}

		plain, err := s.newRefreshToken()
		if err != nil {
			return "", nil, s.fault(ctx, "generate refresh token", err)
		}

		out := repo.Insert(ctx, build(auth.HashRefreshToken(plain)))
		switch out.Kind {
		case refreshtokens.OutcomeOK:
			return plain, out.Row, nil
		case refreshtokens.OutcomeConflict:
			s.log.Warn(ctx, "refresh token hash collision", "attempt", attempt)
		default:
			return "", nil, s.fault(ctx, "insert refresh token", out.Err)
		}
	}

	return "", nil, s.fault(ctx, "insert refresh token", errors.New("hash collision retry exhausted"))
}

func (s *SessionService) fault(ctx context.Context, op string, err error) error {
	s.log.Error(ctx, "session store failure", "op", op, "error", err)
	return common.ErrTransactionFailed
}

func newResult(access *auth.AccessToken, plain string, row *models.RefreshToken, rememberMe bool) *LoginResult {
	return &LoginResult{
		AccessToken:                   access.Token,
		AccessTokenJTI:                access.JTI,
		AccessTokenExpiresAt:          access.ExpiresAt,
		RefreshToken:                  plain,
		RefreshTokenExpiresAt:         row.ExpiresAt,
		RefreshTokenAbsoluteExpiresAt: row.AbsoluteExpiresAt,
		SessionID:                     access.SessionID,
		UserID:                        access.UserID,
		RememberMe:                    rememberMe,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
