package service

import "errors"

var (
	// ErrInvalidCredentials covers both an unknown login and a wrong
	// password so callers cannot tell which one happened.
	ErrInvalidCredentials = errors.New("invalid login or password")
	// ErrInvalidToken is returned when a refresh token is absent, stale
	// or malformed.
	ErrInvalidToken = errors.New("invalid token")
	// ErrRoleAlreadyAssigned and ErrRoleNotAssigned guard the
	// user/role association.
	ErrRoleAlreadyAssigned = errors.New("role already assigned to user")
	ErrRoleNotAssigned     = errors.New("role is not assigned to user")
)

// ValidationError carries a human readable reason for rejected input.
type ValidationError struct{ Reason string }

func (e *ValidationError) Error() string { return e.Reason }

func invalid(reason string) error { return &ValidationError{Reason: reason} }
