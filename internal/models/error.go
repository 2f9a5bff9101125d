package models

import "errors"

// Storage errors, mapped from driver errors by the database package
var (
	ErrNotFound   = errors.New("resource not found")
	ErrConflict   = errors.New("resource already exists")
	ErrBadRequest = errors.New("bad request")
)

// Credential and token errors. Callers must not reveal which check failed.
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrOAuthUser          = errors.New("account has no password")
	ErrPasswordUnchanged  = errors.New("new password must differ from the current one")
)

// Second factor lifecycle errors
var (
	ErrTwoFactorNotEnabled     = errors.New("two-factor authentication is not enabled")
	ErrTwoFactorAlreadyEnabled = errors.New("two-factor authentication is already enabled")
	ErrTwoFactorNotSetUp       = errors.New("two-factor authentication has not been set up")
	ErrInvalidCode             = errors.New("invalid verification code")
)
