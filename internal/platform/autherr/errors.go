// Package autherr defines the closed set of failure kinds returned by the account
// and auth services. The HTTP layer maps each Kind to a status code.
package autherr

import (
	"errors"
	"fmt"
	"time"
)

// Kind is the failure category of an Error.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindDuplicateIdentity
	KindInvalidCredentials
	KindAccountLocked
	KindAccountInactive
	KindTokenInvalid
	KindTokenExpired
	KindTokenInvalidOrExpired
	KindAccountLinkError
	KindRateLimited
)

var kindNames = map[Kind]string{
	KindInternal:              "INTERNAL",
	KindValidation:            "VALIDATION_ERROR",
	KindDuplicateIdentity:     "DUPLICATE_IDENTITY",
	KindInvalidCredentials:    "INVALID_CREDENTIALS",
	KindAccountLocked:         "ACCOUNT_LOCKED",
	KindAccountInactive:       "ACCOUNT_INACTIVE",
	KindTokenInvalid:          "TOKEN_INVALID",
	KindTokenExpired:          "TOKEN_EXPIRED",
	KindTokenInvalidOrExpired: "TOKEN_INVALID_OR_EXPIRED",
	KindAccountLinkError:      "ACCOUNT_LINK_ERROR",
	KindRateLimited:           "RATE_LIMITED",
}

// String returns the wire code of the kind (e.g. "ACCOUNT_LOCKED").
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return kindNames[KindInternal]
}

// Error is a typed failure. Message is safe to show to clients.
type Error struct {
	Kind    Kind
	Message string
	// Fields holds per-field messages for KindValidation.
	Fields map[string]string
	// LockedUntil is set for KindAccountLocked.
	LockedUntil *time.Time
	// Err is the underlying cause; never exposed to clients.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same Kind, so sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons and for returning the default message.
var (
	ErrInvalidCredentials    = &Error{Kind: KindInvalidCredentials, Message: "invalid email or password"}
	ErrAccountInactive       = &Error{Kind: KindAccountInactive, Message: "account is inactive"}
	ErrTokenInvalid          = &Error{Kind: KindTokenInvalid, Message: "token is invalid"}
	ErrTokenExpired          = &Error{Kind: KindTokenExpired, Message: "token has expired"}
	ErrTokenInvalidOrExpired = &Error{Kind: KindTokenInvalidOrExpired, Message: "token is invalid or has expired"}
	ErrDuplicateIdentity     = &Error{Kind: KindDuplicateIdentity, Message: "an account with these details already exists"}
	ErrAccountLink           = &Error{Kind: KindAccountLinkError, Message: "could not link social account"}
	ErrRateLimited           = &Error{Kind: KindRateLimited, Message: "too many requests, try again later"}
	ErrAccountLocked         = &Error{Kind: KindAccountLocked, Message: "account is temporarily locked"}
	ErrValidation            = &Error{Kind: KindValidation, Message: "invalid input"}
	ErrInternal              = &Error{Kind: KindInternal, Message: "internal error"}
)

// New returns an Error of kind with message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap returns an Error of kind carrying err as the cause, with the kind's default message.
func Wrap(kind Kind, err error) *Error {
	return &Error{Kind: kind, Message: defaultMessage(kind), Err: err}
}

// Validation returns a KindValidation error with per-field messages.
func Validation(fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: ErrValidation.Message, Fields: fields}
}

// Locked returns a KindAccountLocked error carrying the unlock time.
func Locked(until time.Time) *Error {
	u := until.UTC()
	return &Error{Kind: KindAccountLocked, Message: ErrAccountLocked.Message, LockedUntil: &u}
}

// KindOf returns the Kind of err, or KindInternal when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// As returns err as *Error, converting unknown errors to an internal error that wraps them.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(KindInternal, err)
}

func defaultMessage(kind Kind) string {
	switch kind {
	case KindValidation:
		return ErrValidation.Message
	case KindDuplicateIdentity:
		return ErrDuplicateIdentity.Message
	case KindInvalidCredentials:
		return ErrInvalidCredentials.Message
	case KindAccountLocked:
		return ErrAccountLocked.Message
	case KindAccountInactive:
		return ErrAccountInactive.Message
	case KindTokenInvalid:
		return ErrTokenInvalid.Message
	case KindTokenExpired:
		return ErrTokenExpired.Message
	case KindTokenInvalidOrExpired:
		return ErrTokenInvalidOrExpired.Message
	case KindAccountLinkError:
		return ErrAccountLink.Message
	case KindRateLimited:
		return ErrRateLimited.Message
	default:
		return ErrInternal.Message
	}
}
