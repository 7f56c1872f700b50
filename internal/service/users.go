package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/iliyamo/identity-service/internal/model"
)

// UserDirectory lists and removes user records.
type UserDirectory interface {
	List(ctx context.Context) ([]model.User, error)
	Delete(ctx context.Context, id uint64) error
}

// UserView is a user as exposed to administrators.
type UserView struct {
	ID    uint64   `json:"id"`
	Login string   `json:"login"`
	Email string   `json:"email,omitempty"`
	Roles []string `json:"roles"`
}

type UserService struct {
	users UserDirectory
	roles RoleSource
	log   *zap.Logger
}

func NewUserService(users UserDirectory, roles RoleSource, log *zap.Logger) *UserService {
	if log == nil {
		log = zap.NewNop()
	}
	return &UserService{users: users, roles: roles, log: log.Named("users")}
}

// List returns every user with their current role names.
func (s *UserService) List(ctx context.Context) ([]UserView, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]UserView, 0, len(users))
	for _, u := range users {
		roles, err := s.roles.NamesForUser(ctx, u.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, UserView{ID: u.ID, Login: u.Login, Email: u.Email, Roles: roles})
	}
	return out, nil
}

// Delete removes a user along with their role links and history.  Tokens
// already issued to them expire on their own.
func (s *UserService) Delete(ctx context.Context, id uint64) error {
	if err := s.users.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Info("user deleted", zap.Uint64("user_id", id))
	return nil
}
