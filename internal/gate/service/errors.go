package service

import "errors"

// Sentinel errors whose messages are the wire-level error strings. The
// dispatch layer sends err.Error() verbatim, so authentication failures
// stay uniform (no username enumeration) while refresh failures report
// their distinct causes.
var (
	ErrInvalidCredentials = errors.New("Invalid username or password")
	ErrInvalidAccessToken = errors.New("Invalid access token")
	ErrMissingTokenPair   = errors.New("Invalid access token or refresh token")
	ErrInvalidRefresh     = errors.New("Invalid refresh token")
	ErrRefreshMismatch    = errors.New("Refresh token access token mismatch")
	ErrUserExists         = errors.New("User already exists")
	ErrUserNotFound       = errors.New("User does not exist")
)
