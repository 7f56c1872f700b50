package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/identity-service/internal/middleware"
	"github.com/iliyamo/identity-service/internal/model"
	"github.com/iliyamo/identity-service/internal/service"
)

// AuthAPI is the part of service.AuthService the HTTP layer calls.
type AuthAPI interface {
	Login(ctx context.Context, login, password, userAgent string) (model.TokenPair, error)
	Logout(ctx context.Context, jti string, remaining time.Duration) (service.LogoutResult, error)
	RefreshTokens(ctx context.Context, subjectID uint64, roles []string, presented string) (model.TokenPair, error)
	Register(ctx context.Context, login, password, email string) (model.User, error)
	ChangePassword(ctx context.Context, userID uint64, current, next string) error
	History(ctx context.Context, userID uint64, limit int) ([]model.LoginHistoryEntry, error)
}

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Auth  AuthAPI
	Clock service.Clock
	Log   *zap.Logger
}

func NewAuthHandler(a AuthAPI, clock service.Clock, log *zap.Logger) *AuthHandler {
	if clock == nil {
		clock = service.SystemClock{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthHandler{Auth: a, Clock: clock, Log: log}
}

// ----- DTOs -----

type loginReq struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type registerReq struct {
	Login    string `json:"login"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

type changePasswordReq struct {
	CurrentPassword string `json:"current_password"`
	Password        string `json:"password"`
}

type userResp struct {
	ID    uint64 `json:"id"`
	Login string `json:"login"`
	Email string `json:"email,omitempty"`
}

// Login: verify credentials and return a new pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return detail(c, http.StatusBadRequest, "invalid body")
	}
	req.Login = strings.TrimSpace(req.Login)
	if req.Login == "" || req.Password == "" {
		return detail(c, http.StatusBadRequest, "login/password required")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	pair, err := h.Auth.Login(ctx, req.Login, req.Password, c.Request().UserAgent())
	if err != nil {
		return respond(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, pair)
}

// Logout: blocklist the caller's access token until it expires.
func (h *AuthHandler) Logout(c echo.Context) error {
	claims, ok := middleware.Claims(c)
	if !ok {
		return detail(c, http.StatusUnauthorized, "unauthorized")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	res, err := h.Auth.Logout(ctx, claims.ID, claims.Remaining(h.Clock.Now()))
	if err != nil {
		return respond(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Refresh: rotate the pair using the caller's refresh token.
func (h *AuthHandler) Refresh(c echo.Context) error {
	claims, ok := middleware.Claims(c)
	if !ok {
		return detail(c, http.StatusUnauthorized, "unauthorized")
	}
	uid, err := getUserID(c)
	if err != nil {
		return detail(c, http.StatusUnauthorized, "unauthorized")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	pair, err := h.Auth.RefreshTokens(ctx, uid, claims.Roles, middleware.RawToken(c))
	if err != nil {
		return respond(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, pair)
}

// Me returns the identity carried by the access token.
func (h *AuthHandler) Me(c echo.Context) error {
	claims, ok := middleware.Claims(c)
	if !ok {
		return detail(c, http.StatusUnauthorized, "unauthorized")
	}
	uid, _ := getUserID(c)
	return c.JSON(http.StatusOK, echo.Map{
		"user_id": uid,
		"roles":   claims.Roles,
		"jti":     claims.ID,
	})
}

// Register creates an account.  It does not log the user in.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return detail(c, http.StatusBadRequest, "invalid body")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	u, err := h.Auth.Register(ctx, req.Login, req.Password, req.Email)
	if err != nil {
		return respond(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, userResp{ID: u.ID, Login: u.Login, Email: u.Email})
}

func (h *AuthHandler) ChangePassword(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return detail(c, http.StatusUnauthorized, "unauthorized")
	}
	var req changePasswordReq
	if err := c.Bind(&req); err != nil {
		return detail(c, http.StatusBadRequest, "invalid body")
	}
	if req.CurrentPassword == "" || req.Password == "" {
		return detail(c, http.StatusBadRequest, "current_password/password required")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.Auth.ChangePassword(ctx, uid, req.CurrentPassword, req.Password); err != nil {
		return respond(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// History lists the caller's logins, newest first.  ?limit caps the count.
func (h *AuthHandler) History(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return detail(c, http.StatusUnauthorized, "unauthorized")
	}
	limit := 0
	if s := c.QueryParam("limit"); s != "" {
		if err := echo.QueryParamsBinder(c).Int("limit", &limit).BindError(); err != nil || limit < 0 {
			return detail(c, http.StatusBadRequest, "limit must be a non-negative integer")
		}
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	entries, err := h.Auth.History(ctx, uid, limit)
	if err != nil {
		return respond(c, h.Log, err)
	}
	if entries == nil {
		entries = []model.LoginHistoryEntry{}
	}
	return c.JSON(http.StatusOK, entries)
}
