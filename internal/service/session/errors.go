package session

import (
	"errors"
	"fmt"

	"livechat-backend/internal/model"
)

type ErrorCode string

const (
	ErrorCodeValidation        ErrorCode = "validation_error"
	ErrorCodeUnauthorized      ErrorCode = "unauthorized"
	ErrorCodeForbidden         ErrorCode = "forbidden"
	ErrorCodeNotFound          ErrorCode = "not_found"
	ErrorCodeInvalidTransition ErrorCode = "invalid_transition"
	ErrorCodeUnavailable       ErrorCode = "unavailable"
	ErrorCodeInternal          ErrorCode = "internal_error"
)

// Reason names the precondition an invalid transition violated.
type Reason string

const (
	ReasonNotAIMode   Reason = "not_ai_mode"
	ReasonNotLiveMode Reason = "not_live_mode"
	ReasonNotActive   Reason = "not_active"
	ReasonNotPending  Reason = "not_pending"
	ReasonClosed      Reason = "closed"
)

type Error struct {
	Code    ErrorCode
	Reason  Reason
	Message string
	Err     error

	// Session is the record as it stood when a transition was refused, so
	// callers can show who holds the chat. Nil for other failures.
	Session *model.Session
}

func (e *Error) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Reason)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) withSession(s model.Session) *Error {
	current := s.Clone()
	e.Session = &current
	return e
}

func newError(code ErrorCode, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func invalidTransition(reason Reason, message string) *Error {
	return &Error{
		Code:    ErrorCodeInvalidTransition,
		Reason:  reason,
		Message: message,
	}
}

func notFound(err error) *Error {
	return newError(ErrorCodeNotFound, "Session not found", err)
}

// storageError classifies repository failures. Not-found is a normal
// outcome, corruption is internal and everything else is retryable.
func storageError(action string, err error) error {
	var svcErr *Error
	switch {
	case errors.As(err, &svcErr):
		return svcErr
	case errors.Is(err, ErrNotFound):
		return notFound(err)
	case errors.Is(err, ErrCorrupt):
		return newError(ErrorCodeInternal, "failed to "+action, err)
	default:
		return newError(ErrorCodeUnavailable, "session storage unavailable, retry later", fmt.Errorf("%s: %w", action, err))
	}
}

// CodeOf returns the code of a service error, or internal for anything else.
func CodeOf(err error) ErrorCode {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Code
	}
	return ErrorCodeInternal
}

// ReasonOf returns the violated precondition of an invalid transition.
func ReasonOf(err error) Reason {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Reason
	}
	return ""
}
