// Package common holds the sentinel errors shared by the gateway's server and
// client layers. Callers match them with errors.Is.
package common

import "errors"

var (
	// ErrInvalidCredentials covers both an unknown identifier and a wrong
	// password; the two cases are never distinguished.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrInvalidToken is returned for malformed, unsigned, wrongly signed or
	// expired tokens.
	ErrInvalidToken = errors.New("invalid or expired token")

	// ErrUserAlreadyExists is returned when provisioning a duplicate email.
	ErrUserAlreadyExists = errors.New("user already exists")

	// ErrUnauthorized is the transport-level failure for a protected call
	// without a valid bearer token.
	ErrUnauthorized = errors.New("unauthorized")
)
