package auth

import "errors"

var (
	// ErrUnauthenticated means no valid session: absent, malformed, expired or revoked.
	ErrUnauthenticated = errors.New("auth: unauthenticated")
	// ErrForbidden means a valid session whose level is below the requirement.
	ErrForbidden = errors.New("auth: forbidden")
	// ErrAuthenticationFailed is returned for an unknown login and a wrong
	// password alike.
	ErrAuthenticationFailed = errors.New("auth: invalid login or password")
	// ErrInvalidCredentials is a validation failure: login or password missing.
	ErrInvalidCredentials = errors.New("auth: login and password are required")
	ErrStorageUnavailable = errors.New("auth: backend unavailable")

	// ErrUserNotFound is returned by a UserSource when no user has the login.
	ErrUserNotFound = errors.New("auth: user not found")
)
