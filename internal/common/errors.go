// Package common defines shared sentinel errors used across the notifier.
// Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Token provider errors.
	ErrNotAuthenticated  = errors.New("not authenticated")
	ErrCredentialRevoked = errors.New("credential revoked")

	// Registration errors.
	ErrPreconditionMissing = errors.New("calendar or delivery channel not selected")
	ErrAlreadyRegistered   = errors.New("webhook already registered")
	ErrRegistrationFailed  = errors.New("webhook registration failed")

	// Routing errors. An unknown resource id is an expected race with
	// cleanup or expiry, not a defect.
	ErrUnknownResource = errors.New("unknown resource id")
)
