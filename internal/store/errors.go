package store

import (
	"errors"
	"strings"

	"github.com/lib/pq"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateEmail is returned when an email is already taken.
var ErrDuplicateEmail = errors.New("user with this email already exists")

// ErrDuplicateUsername is returned when a username is already taken.
var ErrDuplicateUsername = errors.New("username already taken")

const uniqueViolationCode = "23505"

// translateUniqueViolation maps a Postgres unique-index violation to the
// matching duplicate sentinel. The index is the final arbiter for
// uniqueness; the service-level pre-checks are racy on their own.
func translateUniqueViolation(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != uniqueViolationCode {
		return err
	}
	switch {
	case strings.Contains(pqErr.Constraint, "email"):
		return ErrDuplicateEmail
	case strings.Contains(pqErr.Constraint, "username"):
		return ErrDuplicateUsername
	default:
		return err
	}
}
