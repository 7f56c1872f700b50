// Package repository holds the MySQL repositories and the Redis key-value
// store adapter, together with the sentinel errors shared by both.  Higher
// layers compare against these with errors.Is to pick a response status.
package repository

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when a lookup by id or unique key matches no row.
var ErrNotFound = errors.New("not found")

// ErrIntegrityViolation signals a uniqueness or foreign-key failure on
// write.  It is a client error: the request conflicts with stored data.
var ErrIntegrityViolation = errors.New("integrity violation")

// ErrValueTooLong is returned when a value exceeds its column width.
var ErrValueTooLong = errors.New("value too long")

// ErrStoreUnavailable is returned once a backing store call has used up its
// retry budget.  Handlers translate it into HTTP 503.
var ErrStoreUnavailable = errors.New("store unavailable")

// MySQL server error numbers mapped to ErrIntegrityViolation.
const (
	mysqlDupEntry        = 1062
	mysqlRowIsReferenced = 1451
	mysqlNoReferencedRow = 1452
	mysqlDataTooLong     = 1406
)

// mapSQLError converts constraint failures into ErrIntegrityViolation and
// oversized values into ErrValueTooLong.  Every other error is returned
// untouched.
func mapSQLError(err error) error {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case mysqlDupEntry:
			return fmt.Errorf("%w: duplicate entry", ErrIntegrityViolation)
		case mysqlRowIsReferenced:
			return fmt.Errorf("%w: record is still referenced", ErrIntegrityViolation)
		case mysqlNoReferencedRow:
			return fmt.Errorf("%w: referenced record does not exist", ErrIntegrityViolation)
		case mysqlDataTooLong:
			return fmt.Errorf("%w: %s", ErrValueTooLong, me.Message)
		}
	}
	return err
}
