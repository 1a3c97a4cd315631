// Package apperr carries the error taxonomy shared by the transfer and settlement flows.
// Handlers translate a Kind into an HTTP status; everything else is an internal error.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindNotFound           Kind = "not_found"
	KindConflict           Kind = "conflict"
	KindBadRequest         Kind = "bad_request"
	KindProviderKycBlocked Kind = "provider_kyc_blocked"
	KindServiceUnavailable Kind = "service_unavailable"
	KindLimitExceeded      Kind = "limit_exceeded"
	KindProcessing         Kind = "processing"
	KindLockAcquisition    Kind = "lock_acquisition"
	KindInternal           Kind = "internal"
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind, so errors.Is(err, apperr.Conflict("")) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func NotFound(message string) *Error           { return New(KindNotFound, message) }
func Conflict(message string) *Error           { return New(KindConflict, message) }
func BadRequest(message string) *Error         { return New(KindBadRequest, message) }
func ProviderKycBlocked(message string) *Error { return New(KindProviderKycBlocked, message) }
func LimitExceeded(message string) *Error      { return New(KindLimitExceeded, message) }
func Processing(message string) *Error         { return New(KindProcessing, message) }

func ServiceUnavailable(message string, err error) *Error {
	return Wrap(KindServiceUnavailable, message, err)
}

// KindOf returns KindInternal for anything outside the taxonomy.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the user-facing message of a taxonomy error.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return ""
}
