package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/iliyamo/identity-service/internal/model"
	"github.com/iliyamo/identity-service/internal/repository"
)

// RoleStore covers role CRUD and the user/role association.
type RoleStore interface {
	Create(ctx context.Context, name string) (model.Role, error)
	GetByID(ctx context.Context, id uint64) (model.Role, error)
	List(ctx context.Context) ([]model.Role, error)
	Rename(ctx context.Context, id uint64, name string) error
	Delete(ctx context.Context, id uint64) error
	NamesForUser(ctx context.Context, userID uint64) ([]string, error)
	IsAssigned(ctx context.Context, userID, roleID uint64) (bool, error)
	Assign(ctx context.Context, userID, roleID uint64) error
	Unassign(ctx context.Context, userID, roleID uint64) error
}

// UserLookup is used to check that an assignment target exists.
type UserLookup interface {
	GetByID(ctx context.Context, id uint64) (model.User, error)
}

const maxRoleName = 64

type RoleService struct {
	roles RoleStore
	users UserLookup
	log   *zap.Logger
}

func NewRoleService(roles RoleStore, users UserLookup, log *zap.Logger) *RoleService {
	if log == nil {
		log = zap.NewNop()
	}
	return &RoleService{roles: roles, users: users, log: log.Named("roles")}
}

func (s *RoleService) List(ctx context.Context) ([]model.Role, error) {
	return s.roles.List(ctx)
}

// Create adds a role.  A duplicate name surfaces as
// repository.ErrIntegrityViolation.
func (s *RoleService) Create(ctx context.Context, name string) (model.Role, error) {
	name, err := roleName(name)
	if err != nil {
		return model.Role{}, err
	}
	role, err := s.roles.Create(ctx, name)
	if err != nil {
		return model.Role{}, err
	}
	s.log.Info("role created", zap.Uint64("role_id", role.ID), zap.String("name", role.Name))
	return role, nil
}

func (s *RoleService) Rename(ctx context.Context, id uint64, name string) (model.Role, error) {
	name, err := roleName(name)
	if err != nil {
		return model.Role{}, err
	}
	if err := s.roles.Rename(ctx, id, name); err != nil {
		return model.Role{}, err
	}
	return model.Role{ID: id, Name: name}, nil
}

// Delete removes a role; its assignments go with it.
func (s *RoleService) Delete(ctx context.Context, id uint64) error {
	if err := s.roles.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Info("role deleted", zap.Uint64("role_id", id))
	return nil
}

// Assign links roleID to userID.  Both must exist and the pair must not
// already be linked.
func (s *RoleService) Assign(ctx context.Context, userID, roleID uint64) error {
	if err := s.ensureBoth(ctx, userID, roleID); err != nil {
		return err
	}
	assigned, err := s.roles.IsAssigned(ctx, userID, roleID)
	if err != nil {
		return err
	}
	if assigned {
		return ErrRoleAlreadyAssigned
	}
	if err := s.roles.Assign(ctx, userID, roleID); err != nil {
		// lost a race with a concurrent assign
		if errors.Is(err, repository.ErrIntegrityViolation) {
			return ErrRoleAlreadyAssigned
		}
		return err
	}
	s.log.Info("role assigned", zap.Uint64("user_id", userID), zap.Uint64("role_id", roleID))
	return nil
}

// Unassign removes the link between userID and roleID.
func (s *RoleService) Unassign(ctx context.Context, userID, roleID uint64) error {
	if err := s.ensureBoth(ctx, userID, roleID); err != nil {
		return err
	}
	assigned, err := s.roles.IsAssigned(ctx, userID, roleID)
	if err != nil {
		return err
	}
	if !assigned {
		return ErrRoleNotAssigned
	}
	if err := s.roles.Unassign(ctx, userID, roleID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrRoleNotAssigned
		}
		return err
	}
	s.log.Info("role unassigned", zap.Uint64("user_id", userID), zap.Uint64("role_id", roleID))
	return nil
}

func (s *RoleService) ensureBoth(ctx context.Context, userID, roleID uint64) error {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return err
	}
	if _, err := s.roles.GetByID(ctx, roleID); err != nil {
		return err
	}
	return nil
}

func roleName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", invalid("role name is required")
	}
	if len([]rune(name)) > maxRoleName {
		return "", invalid("role name is too long")
	}
	return name, nil
}
