package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/identity-service/internal/repository"
	"github.com/iliyamo/identity-service/internal/utils"
)

// Context keys set by the token guards.
const (
	ClaimsKey = "claims"
	UserIDKey = "user_id"
)

// AccessVerifier checks an access token and its blocklist entry.
// service.Tokenizer satisfies it.
type AccessVerifier interface {
	ParseAccess(raw string) (*utils.Claims, error)
	VerifyNotBlocklisted(ctx context.Context, jti string) (bool, error)
}

// RefreshParser checks a refresh token.
type RefreshParser interface {
	ParseRefresh(raw string) (*utils.Claims, error)
}

// JWTAuth validates a Bearer access token and rejects tokens that were
// logged out.  On success the claims are stored under ClaimsKey and the
// numeric subject under UserIDKey.
func JWTAuth(v AccessVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := bearer(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"detail": "missing bearer token"})
			}
			claims, err := v.ParseAccess(raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"detail": "invalid token"})
			}
			allowed, err := v.VerifyNotBlocklisted(c.Request().Context(), claims.ID)
			if err != nil {
				if errors.Is(err, repository.ErrStoreUnavailable) {
					return c.JSON(http.StatusServiceUnavailable, echo.Map{"detail": "token store unavailable"})
				}
				return err
			}
			if !allowed {
				return c.JSON(http.StatusUnauthorized, echo.Map{"detail": "token has been revoked"})
			}
			return setClaims(c, claims, next)
		}
	}
}

// RefreshAuth accepts only a Bearer refresh token.  Whether it is the
// subject's current one is decided by the refresh handler.
func RefreshAuth(p RefreshParser) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := bearer(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"detail": "missing bearer token"})
			}
			claims, err := p.ParseRefresh(raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"detail": "invalid token"})
			}
			c.Set("raw_token", raw)
			return setClaims(c, claims, next)
		}
	}
}

// Claims returns the claims stored by JWTAuth or RefreshAuth.
func Claims(c echo.Context) (*utils.Claims, bool) {
	cl, ok := c.Get(ClaimsKey).(*utils.Claims)
	return cl, ok && cl != nil
}

// RawToken returns the refresh token string accepted by RefreshAuth.
func RawToken(c echo.Context) string {
	s, _ := c.Get("raw_token").(string)
	return s
}

func setClaims(c echo.Context, claims *utils.Claims, next echo.HandlerFunc) error {
	id, err := claims.SubjectID()
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"detail": "invalid token"})
	}
	c.Set(ClaimsKey, claims)
	c.Set(UserIDKey, id)
	return next(c)
}

func bearer(c echo.Context) (string, bool) {
	auth := c.Request().Header.Get(echo.HeaderAuthorization)
	if !strings.HasPrefix(auth, "Bearer ") {
		return "", false
	}
	raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	return raw, raw != ""
}
