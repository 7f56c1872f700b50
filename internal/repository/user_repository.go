package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/identity-service/internal/model"
)

const userColumns = "id,login,email,password_hash,created_at,updated_at"

// UserRepo reads and writes the `users` table.
type UserRepo struct{ store *SQLStore }

func NewUserRepo(s *SQLStore) *UserRepo { return &UserRepo{store: s} }

// Create inserts u and returns its new id.  A taken login is reported as
// ErrIntegrityViolation.
func (r *UserRepo) Create(ctx context.Context, u model.User) (uint64, error) {
	res, err := r.store.exec(ctx,
		"INSERT INTO users (login, email, password_hash, created_at, updated_at) VALUES (?,?,?,?,?)",
		strings.TrimSpace(u.Login), nullString(u.Email), u.PasswordHash, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByLogin fetches a user by login.
func (r *UserRepo) GetByLogin(ctx context.Context, login string) (model.User, error) {
	return r.getOne(ctx, "SELECT "+userColumns+" FROM users WHERE login=? LIMIT 1", strings.TrimSpace(login))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return r.getOne(ctx, "SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id)
}

// List returns every user ordered by id.
func (r *UserRepo) List(ctx context.Context) ([]model.User, error) {
	var out []model.User
	err := r.store.withConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		out = out[:0]
		rows, err := conn.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY id")
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			u, err := scanUser(rows)
			if err != nil {
				return err
			}
			out = append(out, u)
		}
		return rows.Err()
	})
	return out, err
}

// UpdatePassword replaces the stored hash of user id.
func (r *UserRepo) UpdatePassword(ctx context.Context, id uint64, hash string, now time.Time) error {
	res, err := r.store.exec(ctx, "UPDATE users SET password_hash=?, updated_at=? WHERE id=?", hash, now, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// Delete removes user id together with its role assignments.
func (r *UserRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.store.exec(ctx, "DELETE FROM users WHERE id=?", id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *UserRepo) getOne(ctx context.Context, query string, arg any) (model.User, error) {
	var u model.User
	err := r.store.withConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		var err error
		u, err = scanUser(conn.QueryRowContext(ctx, query, arg))
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	return u, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner) (model.User, error) {
	var (
		u     model.User
		email sql.NullString
	)
	if err := s.Scan(&u.ID, &u.Login, &email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return model.User{}, err
	}
	u.Email = email.String
	return u, nil
}

func nullString(s string) sql.NullString {
	s = strings.TrimSpace(s)
	return sql.NullString{String: s, Valid: s != ""}
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
