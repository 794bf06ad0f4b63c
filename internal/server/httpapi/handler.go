// Package httpapi exposes the session service over HTTP with gin. Access
// tokens travel in JSON bodies and Authorization headers; refresh tokens only
// in an HttpOnly cookie scoped to the auth routes.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/dmitrijs2005/sessionkeeper/internal/logging"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/auth"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/services"
	"github.com/dmitrijs2005/sessionkeeper/internal/timex"
)

// TokenValidator validates bearer tokens for protected routes.
type TokenValidator interface {
	ValidateAccessToken(ctx context.Context, token string) (*auth.Claims, error)
}

// SessionService is what the handlers need from services.SessionService.
type SessionService interface {
	TokenValidator
	Login(ctx context.Context, req services.LoginRequest) (*services.LoginResult, error)
	Refresh(ctx context.Context, req services.RefreshRequest) (*services.LoginResult, error)
	Logout(ctx context.Context, accessToken, refreshToken string) error
	RevokeSession(ctx context.Context, userID, sessionID uuid.UUID) (int64, error)
}

type LoginRequest struct {
	Email        string `json:"email" binding:"required,email,max=320"`
	Password     string `json:"password" binding:"required,max=1024"`
	CaptchaToken string `json:"captchaToken" binding:"max=4096"`
	RememberMe   bool   `json:"rememberMe"`
	DeviceID     string `json:"deviceId" binding:"max=128"`
	SessionID    string `json:"sessionId" binding:"omitempty,uuid"`
}

type RefreshRequest struct {
	RememberMe bool   `json:"rememberMe"`
	DeviceID   string `json:"deviceId" binding:"max=128"`
}

// TokenResponse is returned by login and refresh. The refresh token itself
// is only set as a cookie.
type TokenResponse struct {
	AccessToken           string    `json:"accessToken"`
	TokenType             string    `json:"tokenType"`
	ExpiresAt             time.Time `json:"expiresAt"`
	ExpiresIn             int64     `json:"expiresIn"`
	SessionID             string    `json:"sessionId"`
	UserID                string    `json:"userId"`
	RefreshTokenExpiresAt time.Time `json:"refreshTokenExpiresAt"`
}

type MeResponse struct {
	UserID    string    `json:"userId"`
	Email     string    `json:"email"`
	SessionID string    `json:"sessionId"`
	Roles     []string  `json:"roles"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type RevokeResponse struct {
	Revoked int64 `json:"revoked"`
}

type Handler struct {
	svc    SessionService
	cookie CookieOptions
	clock  timex.Clock
	log    logging.Logger
}

func NewHandler(svc SessionService, cookie CookieOptions, clock timex.Clock, log logging.Logger) *Handler {
	if clock == nil {
		clock = timex.SystemClock{}
	}
	if log == nil {
		log = logging.NewNop()
	}
	if cookie.Name == "" {
		cookie.Name = DefaultCookieName
	}
	return &Handler{svc: svc, cookie: cookie, clock: clock, log: log.With("module", "http")}
}

// Router builds the gin engine with all routes and middleware.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), accessLog(h.log))

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	api := r.Group(CookiePath)
	api.POST("/login", h.login)
	api.POST("/refresh", h.refresh)
	api.POST("/logout", h.logout)

	authed := api.Group("")
	authed.Use(bearerAuth(h.svc))
	authed.GET("/me", h.me)
	authed.DELETE("/sessions/:id", h.revokeSession)

	return r
}

func (h *Handler) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return
	}

	in := services.LoginRequest{
		Email:        req.Email,
		Password:     req.Password,
		CaptchaToken: req.CaptchaToken,
		RememberMe:   req.RememberMe,
		ClientIP:     c.ClientIP(),
		DeviceID:     req.DeviceID,
		UserAgent:    c.Request.UserAgent(),
	}
	if req.SessionID != "" {
		sid, err := uuid.Parse(req.SessionID)
		if err != nil {
			respondValidationError(c, err)
			return
		}
		in.ExistingSessionID = &sid
	}

	res, err := h.svc.Login(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}

	h.writeTokens(c, res)
}

func (h *Handler) refresh(c *gin.Context) {
	var req RefreshRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}
	}

	plain, _ := c.Cookie(h.cookie.Name)

	res, err := h.svc.Refresh(c.Request.Context(), services.RefreshRequest{
		RefreshToken: plain,
		RememberMe:   req.RememberMe,
		ClientIP:     c.ClientIP(),
		DeviceID:     req.DeviceID,
		UserAgent:    c.Request.UserAgent(),
	})
	if err != nil {
		h.clearRefreshCookie(c)
		respondError(c, err)
		return
	}

	h.writeTokens(c, res)
}

func (h *Handler) logout(c *gin.Context) {
	plain, _ := c.Cookie(h.cookie.Name)
	h.clearRefreshCookie(c)

	if err := h.svc.Logout(c.Request.Context(), c.GetHeader("Authorization"), plain); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) me(c *gin.Context) {
	claims := claimsFrom(c)
	resp := MeResponse{
		UserID:    claims.Subject,
		Email:     claims.Email,
		SessionID: claims.SessionID,
		Roles:     claims.Roles,
	}
	if claims.ExpiresAt != nil {
		resp.ExpiresAt = claims.ExpiresAt.Time
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) revokeSession(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Code: codeInvalidRequest, Message: "session id is invalid"})
		return
	}

	claims := claimsFrom(c)
	userID, err := claims.UserID()
	if err != nil {
		respondError(c, common.ErrInvalidToken)
		return
	}

	n, err := h.svc.RevokeSession(c.Request.Context(), userID, sessionID)
	if err != nil {
		respondError(c, err)
		return
	}
	if claims.SessionID == sessionID.String() {
		h.clearRefreshCookie(c)
	}
	c.JSON(http.StatusOK, RevokeResponse{Revoked: n})
}

func (h *Handler) writeTokens(c *gin.Context, res *services.LoginResult) {
	h.setRefreshCookie(c, res.RefreshToken, res.RefreshTokenExpiresAt, res.RememberMe)

	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, TokenResponse{
		AccessToken:           res.AccessToken,
		TokenType:             "Bearer",
		ExpiresAt:             res.AccessTokenExpiresAt,
		ExpiresIn:             int64(res.AccessTokenExpiresAt.Sub(h.clock.Now()).Seconds()),
		SessionID:             res.SessionID.String(),
		UserID:                res.UserID.String(),
		RefreshTokenExpiresAt: res.RefreshTokenExpiresAt,
	})
}
