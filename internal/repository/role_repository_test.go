package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/identity-service/internal/model"
)

func TestRoleRepo_CRUD(t *testing.T) {
	store, mock := newMockStore(t)
	repo := NewRoleRepo(store)
	ctx := context.Background()

	mock.ExpectExec(q("INSERT INTO roles (name) VALUES (?)")).WithArgs("admin").
		WillReturnResult(sqlmock.NewResult(4, 1))
	role, err := repo.Create(ctx, " admin ")
	require.NoError(t, err)
	assert.Equal(t, model.Role{ID: 4, Name: "admin"}, role)

	mock.ExpectQuery(q("SELECT id,name FROM roles WHERE id=? LIMIT 1")).WithArgs(4).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(4, "admin"))
	got, err := repo.GetByID(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, "admin", got.Name)

	mock.ExpectQuery(q("SELECT id,name FROM roles WHERE id=? LIMIT 1")).WithArgs(5).
		WillReturnError(sql.ErrNoRows)
	_, err = repo.GetByID(ctx, 5)
	assert.ErrorIs(t, err, ErrNotFound)

	mock.ExpectQuery(q("SELECT id,name FROM roles ORDER BY name")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(4, "admin").AddRow(2, "viewer"))
	roles, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, roles, 2)

	mock.ExpectExec(q("UPDATE roles SET name=? WHERE id=?")).WithArgs("root", 4).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Rename(ctx, 4, "root"))

	mock.ExpectExec(q("UPDATE roles SET name=? WHERE id=?")).WithArgs("root", 4).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(q("SELECT id,name FROM roles WHERE id=? LIMIT 1")).WithArgs(4).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(4, "root"))
	require.NoError(t, repo.Rename(ctx, 4, "root"))

	mock.ExpectExec(q("UPDATE roles SET name=? WHERE id=?")).WithArgs("ghost", 8).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(q("SELECT id,name FROM roles WHERE id=? LIMIT 1")).WithArgs(8).
		WillReturnError(sql.ErrNoRows)
	assert.ErrorIs(t, repo.Rename(ctx, 8, "ghost"), ErrNotFound)

	mock.ExpectExec(q("DELETE FROM roles WHERE id=?")).WithArgs(9).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.Delete(ctx, 9), ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRoleRepo_Associations(t *testing.T) {
	store, mock := newMockStore(t)
	repo := NewRoleRepo(store)
	ctx := context.Background()
	exists := q("SELECT 1 FROM roles_users WHERE user_id=? AND role_id=? LIMIT 1")

	mock.ExpectQuery(exists).WithArgs(1, 4).WillReturnError(sql.ErrNoRows)
	ok, err := repo.IsAssigned(ctx, 1, 4)
	require.NoError(t, err)
	assert.False(t, ok)

	mock.ExpectExec(q("INSERT INTO roles_users (user_id, role_id) VALUES (?,?)")).WithArgs(1, 4).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Assign(ctx, 1, 4))

	mock.ExpectQuery(exists).WithArgs(1, 4).WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	ok, err = repo.IsAssigned(ctx, 1, 4)
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectExec(q("INSERT INTO roles_users (user_id, role_id) VALUES (?,?)")).WithArgs(1, 4).
		WillReturnError(&mysql.MySQLError{Number: 1062})
	assert.ErrorIs(t, repo.Assign(ctx, 1, 4), ErrIntegrityViolation)

	mock.ExpectQuery(q("SELECT r.name FROM roles r JOIN roles_users ru ON ru.role_id = r.id WHERE ru.user_id=? ORDER BY r.name")).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("admin").AddRow("viewer"))
	names, err := repo.NamesForUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"admin", "viewer"}, names)

	del := q("DELETE FROM roles_users WHERE user_id=? AND role_id=?")
	mock.ExpectExec(del).WithArgs(1, 4).WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Unassign(ctx, 1, 4))
	mock.ExpectExec(del).WithArgs(1, 4).WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.Unassign(ctx, 1, 4), ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoginHistoryRepo_AppendAndList(t *testing.T) {
	store, mock := newMockStore(t)
	repo := NewLoginHistoryRepo(store)
	ctx := context.Background()
	t1 := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)

	mock.ExpectExec(q("INSERT INTO login_history (id, user_id, user_agent, auth_datetime) VALUES (?,?,?,?)")).
		WithArgs("e1", 3, "UA1", t1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Append(ctx, model.LoginHistoryEntry{ID: "e1", UserID: 3, UserAgent: "UA1", AuthDatetime: t1}))

	mock.ExpectQuery(q("SELECT id,user_id,user_agent,auth_datetime FROM login_history WHERE user_id=? ORDER BY auth_datetime DESC LIMIT ?")).
		WithArgs(3, 50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "user_agent", "auth_datetime"}).
			AddRow("e2", 3, "UA2", t2).
			AddRow("e1", 3, "UA1", t1))
	entries, err := repo.ListByUser(ctx, 3, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "e2", entries[0].ID)
	assert.True(t, entries[0].AuthDatetime.After(entries[1].AuthDatetime))

	require.NoError(t, mock.ExpectationsWereMet())
}
