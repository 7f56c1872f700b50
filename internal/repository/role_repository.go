package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/identity-service/internal/model"
)

// RoleRepo reads and writes `roles` and the `roles_users` association.
type RoleRepo struct{ store *SQLStore }

func NewRoleRepo(s *SQLStore) *RoleRepo { return &RoleRepo{store: s} }

// Create inserts a role.  A taken name is reported as ErrIntegrityViolation.
func (r *RoleRepo) Create(ctx context.Context, name string) (model.Role, error) {
	name = strings.TrimSpace(name)
	res, err := r.store.exec(ctx, "INSERT INTO roles (name) VALUES (?)", name)
	if err != nil {
		return model.Role{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Role{}, err
	}
	return model.Role{ID: uint64(id), Name: name}, nil
}

// GetByID fetches a role by id.
func (r *RoleRepo) GetByID(ctx context.Context, id uint64) (model.Role, error) {
	var role model.Role
	err := r.store.withConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		return conn.QueryRowContext(ctx, "SELECT id,name FROM roles WHERE id=? LIMIT 1", id).
			Scan(&role.ID, &role.Name)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return model.Role{}, ErrNotFound
	}
	return role, err
}

// List returns all roles ordered by name.
func (r *RoleRepo) List(ctx context.Context) ([]model.Role, error) {
	var out []model.Role
	err := r.store.withConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		out = out[:0]
		rows, err := conn.QueryContext(ctx, "SELECT id,name FROM roles ORDER BY name")
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var role model.Role
			if err := rows.Scan(&role.ID, &role.Name); err != nil {
				return err
			}
			out = append(out, role)
		}
		return rows.Err()
	})
	return out, err
}

// Rename changes the name of role id.  Tokens already issued keep the old
// name in their claims.  Renaming a role to its current name is a no-op.
func (r *RoleRepo) Rename(ctx context.Context, id uint64, name string) error {
	res, err := r.store.exec(ctx, "UPDATE roles SET name=? WHERE id=?", strings.TrimSpace(name), id)
	if err != nil {
		return err
	}
	if err := requireAffected(res); !errors.Is(err, ErrNotFound) {
		return err
	}
	// Without clientFoundRows an unchanged row reports zero affected.
	_, err = r.GetByID(ctx, id)
	return err
}

// Delete removes role id; its assignments go with it (ON DELETE CASCADE).
func (r *RoleRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.store.exec(ctx, "DELETE FROM roles WHERE id=?", id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// NamesForUser returns the names of the roles assigned to userID, sorted.
func (r *RoleRepo) NamesForUser(ctx context.Context, userID uint64) ([]string, error) {
	names := []string{}
	err := r.store.withConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		names = names[:0]
		rows, err := conn.QueryContext(ctx,
			"SELECT r.name FROM roles r JOIN roles_users ru ON ru.role_id = r.id WHERE ru.user_id=? ORDER BY r.name",
			userID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var n string
			if err := rows.Scan(&n); err != nil {
				return err
			}
			names = append(names, n)
		}
		return rows.Err()
	})
	return names, err
}

// IsAssigned reports whether roleID is linked to userID.
func (r *RoleRepo) IsAssigned(ctx context.Context, userID, roleID uint64) (bool, error) {
	var one int
	err := r.store.withConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		return conn.QueryRowContext(ctx,
			"SELECT 1 FROM roles_users WHERE user_id=? AND role_id=? LIMIT 1", userID, roleID).Scan(&one)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// Assign links roleID to userID.  An existing link or a missing user/role
// is reported as ErrIntegrityViolation.
func (r *RoleRepo) Assign(ctx context.Context, userID, roleID uint64) error {
	_, err := r.store.exec(ctx, "INSERT INTO roles_users (user_id, role_id) VALUES (?,?)", userID, roleID)
	return err
}

// Unassign removes the link between roleID and userID.  It returns
// ErrNotFound when there was nothing to remove.
func (r *RoleRepo) Unassign(ctx context.Context, userID, roleID uint64) error {
	res, err := r.store.exec(ctx, "DELETE FROM roles_users WHERE user_id=? AND role_id=?", userID, roleID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}
