package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/identity-service/internal/model"
)

// LoginHistoryRepo appends to and reads `login_history`.  Rows are never
// updated or deleted here.
type LoginHistoryRepo struct{ store *SQLStore }

func NewLoginHistoryRepo(s *SQLStore) *LoginHistoryRepo { return &LoginHistoryRepo{store: s} }

// Append inserts one entry.  The id is generated by the caller so a retried
// insert cannot produce two rows.
func (r *LoginHistoryRepo) Append(ctx context.Context, e model.LoginHistoryEntry) error {
	_, err := r.store.execIdempotent(ctx,
		"INSERT INTO login_history (id, user_id, user_agent, auth_datetime) VALUES (?,?,?,?)",
		e.ID, e.UserID, e.UserAgent, e.AuthDatetime)
	return err
}

// ListByUser returns up to limit entries of userID, newest first.
func (r *LoginHistoryRepo) ListByUser(ctx context.Context, userID uint64, limit int) ([]model.LoginHistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	out := []model.LoginHistoryEntry{}
	err := r.store.withConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		out = out[:0]
		rows, err := conn.QueryContext(ctx,
			"SELECT id,user_id,user_agent,auth_datetime FROM login_history WHERE user_id=? ORDER BY auth_datetime DESC LIMIT ?",
			userID, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var e model.LoginHistoryEntry
			if err := rows.Scan(&e.ID, &e.UserID, &e.UserAgent, &e.AuthDatetime); err != nil {
				return err
			}
			out = append(out, e)
		}
		return rows.Err()
	})
	return out, err
}
