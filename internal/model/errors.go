package model

import "errors"

var (
	// Identity related errors
	ErrIdentityNotFound = errors.New("identity not found")
	ErrDuplicateEmail   = errors.New("email already registered")

	// Credential related errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmptyPassword      = errors.New("password cannot be empty")

	// Token related errors
	ErrTokenInvalid = errors.New("token invalid")
	ErrTokenExpired = errors.New("token expired")

	// Reset token related errors
	ErrResetTokenInvalid = errors.New("reset token invalid or expired")

	// Delivery related errors
	ErrDeliveryFailed = errors.New("delivery failed")
)
