package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")
)

// Authentication flow errors. Each maps to a distinct user-facing message.
var (
	ErrValidation           = errors.New("validation failed")
	ErrUnsupportedDomain    = errors.New("email domain is not supported")
	ErrAccountNotFound      = errors.New("account not found")
	ErrAccountAlreadyExists = errors.New("account already exists")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrEmailNotConfirmed    = errors.New("email not confirmed")
	ErrInvalidOrExpiredCode = errors.New("invalid or expired code")
	ErrAttemptsExhausted    = errors.New("verification attempts exhausted")
	ErrChannelDelivery      = errors.New("code delivery failed")
	ErrRequestInFlight      = errors.New("request already in progress")
	ErrCooldownActive       = errors.New("resend cooldown active")
	ErrInvalidTransition    = errors.New("action not allowed in current state")

	// ErrNoPendingVerification is reported by a remote verifier that holds
	// no outstanding code for the target.
	ErrNoPendingVerification = errors.New("no pending verification")
)

// ErrInvalidCode and ErrCodeExpired are both reported as ErrInvalidOrExpiredCode.
var (
	ErrInvalidCode = &codeError{msg: "invalid code"}
	ErrCodeExpired = &codeError{msg: "code expired"}
)

type codeError struct{ msg string }

func (e *codeError) Error() string { return e.msg }

func (e *codeError) Unwrap() error { return ErrInvalidOrExpiredCode }
