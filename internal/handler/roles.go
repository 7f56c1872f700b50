package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/identity-service/internal/model"
)

// RoleAPI is the part of service.RoleService the HTTP layer calls.
type RoleAPI interface {
	List(ctx context.Context) ([]model.Role, error)
	Create(ctx context.Context, name string) (model.Role, error)
	Rename(ctx context.Context, id uint64, name string) (model.Role, error)
	Delete(ctx context.Context, id uint64) error
	Assign(ctx context.Context, userID, roleID uint64) error
	Unassign(ctx context.Context, userID, roleID uint64) error
}

type RoleHandler struct {
	Roles RoleAPI
	Log   *zap.Logger
}

func NewRoleHandler(r RoleAPI, log *zap.Logger) *RoleHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &RoleHandler{Roles: r, Log: log}
}

type roleReq struct {
	Name string `json:"name"`
}

func (h *RoleHandler) List(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	roles, err := h.Roles.List(ctx)
	if err != nil {
		return respond(c, h.Log, err)
	}
	if roles == nil {
		roles = []model.Role{}
	}
	return c.JSON(http.StatusOK, roles)
}

func (h *RoleHandler) Create(c echo.Context) error {
	var req roleReq
	if err := c.Bind(&req); err != nil {
		return detail(c, http.StatusBadRequest, "invalid body")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	role, err := h.Roles.Create(ctx, req.Name)
	if err != nil {
		return respond(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, role)
}

func (h *RoleHandler) Update(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return detail(c, http.StatusBadRequest, "invalid role id")
	}
	var req roleReq
	if err := c.Bind(&req); err != nil {
		return detail(c, http.StatusBadRequest, "invalid body")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	role, err := h.Roles.Rename(ctx, id, req.Name)
	if err != nil {
		return respond(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, role)
}

func (h *RoleHandler) Delete(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return detail(c, http.StatusBadRequest, "invalid role id")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.Roles.Delete(ctx, id); err != nil {
		return respond(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Assign links /users/:id to /roles/:role_id.
func (h *RoleHandler) Assign(c echo.Context) error {
	return h.link(c, h.Roles.Assign, http.StatusCreated)
}

func (h *RoleHandler) Unassign(c echo.Context) error {
	return h.link(c, h.Roles.Unassign, http.StatusNoContent)
}

func (h *RoleHandler) link(c echo.Context, op func(context.Context, uint64, uint64) error, status int) error {
	userID, ok := parseID(c, "id")
	if !ok {
		return detail(c, http.StatusBadRequest, "invalid user id")
	}
	roleID, ok := parseID(c, "role_id")
	if !ok {
		return detail(c, http.StatusBadRequest, "invalid role id")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := op(ctx, userID, roleID); err != nil {
		return respond(c, h.Log, err)
	}
	return c.NoContent(status)
}
