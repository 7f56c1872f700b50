package handler // handler defines http handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/identity-service/internal/middleware"
	"github.com/iliyamo/identity-service/internal/repository"
	"github.com/iliyamo/identity-service/internal/service"
)

// requestTimeout bounds the store work of a single request.
const requestTimeout = 5 * time.Second

// getUserID extracts the authenticated subject set by the token guards.
func getUserID(c echo.Context) (uint64, error) {
	if id, ok := c.Get(middleware.UserIDKey).(uint64); ok {
		return id, nil
	}
	return 0, errors.New("invalid user_id in context")
}

// parseID reads a positive numeric path parameter.
func parseID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

func detail(c echo.Context, status int, msg string) error {
	return c.JSON(status, echo.Map{"detail": msg})
}

// respond maps service and store errors onto {"detail": ...} responses.
// Anything unrecognised is logged and reported as 500.
func respond(c echo.Context, log *zap.Logger, err error) error {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		return detail(c, http.StatusBadRequest, verr.Reason)
	case errors.Is(err, service.ErrInvalidCredentials):
		return detail(c, http.StatusUnauthorized, service.ErrInvalidCredentials.Error())
	case errors.Is(err, service.ErrInvalidToken):
		return detail(c, http.StatusUnauthorized, service.ErrInvalidToken.Error())
	case errors.Is(err, service.ErrRoleAlreadyAssigned):
		return detail(c, http.StatusConflict, service.ErrRoleAlreadyAssigned.Error())
	case errors.Is(err, service.ErrRoleNotAssigned):
		return detail(c, http.StatusNotFound, service.ErrRoleNotAssigned.Error())
	case errors.Is(err, repository.ErrIntegrityViolation):
		return detail(c, http.StatusConflict, "conflicts with an existing record")
	case errors.Is(err, repository.ErrValueTooLong):
		return detail(c, http.StatusBadRequest, "value too long")
	case errors.Is(err, repository.ErrNotFound):
		return detail(c, http.StatusNotFound, "not found")
	case errors.Is(err, repository.ErrStoreUnavailable):
		log.Error("store unavailable", zap.String("path", c.Path()), zap.Error(err))
		return detail(c, http.StatusServiceUnavailable, "service temporarily unavailable")
	}
	log.Error("unhandled error", zap.String("path", c.Path()), zap.Error(err))
	return detail(c, http.StatusInternalServerError, "internal error")
}
