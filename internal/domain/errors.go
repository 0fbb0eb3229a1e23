package domain

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the transport boundary.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindPermission
	KindNotFound
	KindState
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindPermission:
		return "permission"
	case KindNotFound:
		return "not_found"
	case KindState:
		return "state"
	default:
		return "internal"
	}
}

// Error codes used in responses and for errors.Is matching.
const (
	CodeValidation        = "VALIDATION_ERROR"
	CodePastDate          = "PAST_DATE"
	CodeDoctorUnavailable = "DOCTOR_UNAVAILABLE"
	CodeSlotConflict      = "SLOT_CONFLICT"
	CodeOverpayment       = "OVERPAYMENT"
	CodeDuplicate         = "DUPLICATE"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodePermissionDenied  = "INSUFFICIENT_PERMISSIONS"
	CodeNotFound          = "RESOURCE_NOT_FOUND"
	CodeRateLimited       = "RATE_LIMITED"
	CodeNotBillable       = "NOT_BILLABLE"
	CodeBadCredentials    = "INVALID_CREDENTIALS"
	CodeInternal          = "INTERNAL_ERROR"
)

// Error is the typed error returned by every core operation.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches two domain errors by code so sentinels survive WithDetail and Wrap.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithDetail returns a copy of e carrying an extra detail entry.
func (e *Error) WithDetail(key string, value any) *Error {
	cp := *e
	cp.Details = make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	cp.Details[key] = value
	return &cp
}

// WithMessage returns a copy of e with a different human-readable message.
func (e *Error) WithMessage(msg string) *Error {
	cp := *e
	cp.Message = msg
	return &cp
}

var (
	ErrPastDate          = &Error{Kind: KindValidation, Code: CodePastDate, Message: "appointment date cannot be in the past"}
	ErrDoctorUnavailable = &Error{Kind: KindConflict, Code: CodeDoctorUnavailable, Message: "doctor is not available"}
	ErrSlotConflict      = &Error{Kind: KindConflict, Code: CodeSlotConflict, Message: "this time is already booked"}
	ErrOverpayment       = &Error{Kind: KindConflict, Code: CodeOverpayment, Message: "payment exceeds the outstanding amount"}
	ErrDuplicate         = &Error{Kind: KindConflict, Code: CodeDuplicate, Message: "resource already exists"}
	ErrInvalidTransition = &Error{Kind: KindState, Code: CodeInvalidTransition, Message: "invalid status transition"}
	ErrPermissionDenied  = &Error{Kind: KindPermission, Code: CodePermissionDenied, Message: "access denied"}
	ErrNotFound          = &Error{Kind: KindNotFound, Code: CodeNotFound, Message: "resource not found"}
	ErrRateLimited       = &Error{Kind: KindPermission, Code: CodeRateLimited, Message: "too many requests, try again later"}
	ErrNotBillable       = &Error{Kind: KindState, Code: CodeNotBillable, Message: "cancelled appointments cannot be billed"}
	ErrBadCredentials    = &Error{Kind: KindPermission, Code: CodeBadCredentials, Message: "invalid username or password"}
)

// NewValidationError reports a bad input field.
func NewValidationError(field, reason string) *Error {
	return &Error{
		Kind:    KindValidation,
		Code:    CodeValidation,
		Message: reason,
		Details: map[string]any{"field": field},
	}
}

// NotFound reports a missing entity by name.
func NotFound(resource string) *Error {
	return ErrNotFound.WithMessage("the requested "+resource+" was not found").WithDetail("resource", resource)
}

// Internal hides err behind a generic message.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Code: CodeInternal, Message: "internal error", Err: err}
}

// KindOf classifies err. Anything that is not a *Error is internal.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// AsError returns err as a *Error, wrapping unknown errors as internal.
func AsError(err error) *Error {
	var de *Error
	if errors.As(err, &de) {
		return de
	}
	return Internal(err)
}
