package auth

import "errors"

var (
	// ErrInvalidToken is returned for any access token that fails decoding:
	// bad signature, wrong algorithm, malformed payload or expired.
	ErrInvalidToken = errors.New("invalid token")

	// ErrMissingToken is returned when no bearer token accompanies a request.
	ErrMissingToken = errors.New("missing token")

	// ErrUnauthenticated is returned by role gates when no user is attached.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrForbidden is returned by role gates when the user lacks permission.
	ErrForbidden = errors.New("forbidden")
)
