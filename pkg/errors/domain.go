package errors

import (
	stdErrors "errors"
	"fmt"
)

// Licensing failure kinds. Typed errors wrap these so callers can branch
// with errors.Is while the HTTP layer keeps using the code metadata.
var (
	ErrNotFound             = stdErrors.New("not found")
	ErrDuplicateTrial       = stdErrors.New("duplicate trial")
	ErrTrialExhausted       = stdErrors.New("trial exhausted")
	ErrLicenseAlreadyActive = stdErrors.New("license already active")
	ErrDowngradeNotAllowed  = stdErrors.New("downgrade not allowed")
	ErrCheckoutRequired     = stdErrors.New("checkout required")
	ErrNoValidLicense       = stdErrors.New("no valid license")
	ErrFeatureNotEntitled   = stdErrors.New("feature not entitled")
	ErrGateway              = stdErrors.New("gateway failure")
	ErrSignatureInvalid     = stdErrors.New("signature invalid")
	ErrPersistence          = stdErrors.New("persistence failure")
)

// NotFound builds a NOT_FOUND error that matches ErrNotFound.
func NotFound(message string) *Error {
	return Wrap(CodeNotFound, ErrNotFound, message)
}

// Persistence marks a failed store write. The driver error stays in the chain
// so Dump can surface Postgres details.
func Persistence(err error, message string) *Error {
	if err == nil {
		return Wrap(CodeInternal, ErrPersistence, message)
	}
	return Wrap(CodeInternal, fmt.Errorf("%w: %w", ErrPersistence, err), message)
}

// Gateway marks a failed payment gateway call.
func Gateway(err error, message string) *Error {
	if err == nil {
		return Wrap(CodeDependency, ErrGateway, message)
	}
	return Wrap(CodeDependency, fmt.Errorf("%w: %w", ErrGateway, err), message)
}

// HasCode reports whether err carries the given typed code.
func HasCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.Code() == code
}
