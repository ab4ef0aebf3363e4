// Package repository defines the persistence gateway of the application
// and its MySQL implementation. The sentinel errors below let higher
// layers such as services and handlers tell failure kinds apart with
// errors.Is. A missing row is never an error: getters return nil and
// deletes return false.
package repository

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
)

// ErrForbidden is returned when the caller attempts an operation
// on a resource outside their city. Handlers translate this into an
// HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrConflict signals an operation that cannot proceed because of
// existing state. Handlers translate this into an HTTP 409 response.
var ErrConflict = errors.New("conflict")

// ErrDuplicate is the constraint-violation kind. Unique key errors of
// the underlying store are translated into one of the wrapped values
// below and never leak raw.
var ErrDuplicate = errors.New("already exists")

var (
	ErrEmailExists = fmt.Errorf("email %w", ErrDuplicate)
	ErrCodeExists  = fmt.Errorf("admin code %w", ErrDuplicate)
)

// Admin onboarding failures.
var (
	ErrCodeNotFound     = errors.New("admin code not found")
	ErrCodeUsed         = errors.New("admin code already used")
	ErrCodeCityMismatch = errors.New("admin code does not belong to this city")
)

// ErrPartialCompletion is returned when a report was committed as
// completed but its reward could not be credited because the owning
// user no longer exists. The accompanying StatusChange is still valid.
var ErrPartialCompletion = errors.New("report completed but reward not credited")

// mysqlDuplicateEntry is the server error number for unique key
// violations (ER_DUP_ENTRY).
const mysqlDuplicateEntry = 1062

// isDuplicate reports whether err is a MySQL unique key violation.
func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == mysqlDuplicateEntry
	}
	return false
}

// ErrTokenInvalid is returned for unknown, revoked or expired refresh
// tokens.
var ErrTokenInvalid = errors.New("invalid refresh token")
