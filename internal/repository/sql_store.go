package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/identity-service/internal/retry"
)

// SQLStore is the relational backend shared by the MySQL repositories.
// Every repository call runs on its own connection, acquired from the pool
// for that call only and released on every exit path.
type SQLStore struct {
	DB     *sql.DB
	policy retry.Policy
}

// NewSQLStore wraps db.  Transient connection failures are retried under
// policy; constraint errors and empty results never are.
func NewSQLStore(db *sql.DB, policy retry.Policy) *SQLStore {
	if policy.Name == "" {
		policy.Name = "mysql"
	}
	policy.Retryable = isTransientSQL
	return &SQLStore{DB: db, policy: policy}
}

// withConn runs fn on a dedicated connection.  The whole call is retried,
// so fn must be safe to repeat: reads, or writes keyed by the caller.
func (s *SQLStore) withConn(ctx context.Context, fn func(ctx context.Context, conn *sql.Conn) error) error {
	err := retry.Do(ctx, s.policy, func(ctx context.Context) error {
		conn, err := s.DB.Conn(ctx)
		if err != nil {
			return err
		}
		defer conn.Close()
		return fn(ctx, conn)
	})
	if errors.Is(err, retry.ErrExhausted) {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return mapSQLError(err)
}

// exec runs a single write statement and returns the driver result.  Only
// acquiring the connection is retried: once the statement has gone out a
// dropped connection leaves its outcome unknown, and sending it again could
// apply it twice.
func (s *SQLStore) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var (
		res  sql.Result
		sent bool
	)
	p := s.policy
	p.Retryable = func(err error) bool { return !sent && isTransientSQL(err) }
	err := retry.Do(ctx, p, func(ctx context.Context) error {
		conn, err := s.DB.Conn(ctx)
		if err != nil {
			return err
		}
		defer conn.Close()
		sent = true
		res, err = conn.ExecContext(ctx, query, args...)
		return err
	})
	switch {
	case err == nil:
		return res, nil
	case errors.Is(err, retry.ErrExhausted):
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	case sent && isTransientSQL(err):
		return nil, fmt.Errorf("%w: write outcome unknown: %w", ErrStoreUnavailable, err)
	}
	return nil, mapSQLError(err)
}

// execIdempotent runs a write that can be repeated without effect, such as
// an insert whose primary key the caller generated.  It is retried like a
// read.
func (s *SQLStore) execIdempotent(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	err := s.withConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		var err error
		res, err = conn.ExecContext(ctx, query, args...)
		return err
	})
	return res, err
}

func isTransientSQL(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}
