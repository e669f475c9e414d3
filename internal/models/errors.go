package models

import (
	"errors"
	"net/http"
)

// ErrorCode categorizes business-rule failures.
type ErrorCode string

const (
	CodeValidation         ErrorCode = "VALIDATION_ERROR"
	CodeInvalidState       ErrorCode = "INVALID_STATE"
	CodeInvalidTransition  ErrorCode = "INVALID_TRANSITION"
	CodeAlreadyBooked      ErrorCode = "ALREADY_BOOKED"
	CodeNotFound           ErrorCode = "NOT_FOUND"
	CodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// Error describes a business-rule failure with a code and a user-facing
// message. Handlers map StatusCode straight to the HTTP response.
type Error struct {
	StatusCode int       `json:"-"`
	Code       ErrorCode `json:"code"`
	Message    string    `json:"reason"`
}

func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

// NewValidationError flags malformed input, caught before any store write.
func NewValidationError(message string) *Error {
	return &Error{StatusCode: http.StatusUnprocessableEntity, Code: CodeValidation, Message: message}
}

// NewInvalidStateError flags an operation not permitted in the current status.
func NewInvalidStateError(message string) *Error {
	return &Error{StatusCode: http.StatusConflict, Code: CodeInvalidState, Message: message}
}

// NewInvalidTransitionError flags a (state, action) pair the state machine rejects.
func NewInvalidTransitionError(message string) *Error {
	return &Error{StatusCode: http.StatusConflict, Code: CodeInvalidTransition, Message: message}
}

// NewAlreadyBookedError flags a lost compare-and-swap race on accept.
func NewAlreadyBookedError() *Error {
	return &Error{StatusCode: http.StatusConflict, Code: CodeAlreadyBooked, Message: "this load was just booked by another carrier"}
}

// NewNotFoundError flags an unknown posting or bid id.
func NewNotFoundError(message string) *Error {
	return &Error{StatusCode: http.StatusNotFound, Code: CodeNotFound, Message: message}
}

// NewServiceUnavailableError flags an unreachable external collaborator.
func NewServiceUnavailableError(message string) *Error {
	return &Error{StatusCode: http.StatusServiceUnavailable, Code: CodeServiceUnavailable, Message: message}
}

// IsCode returns true when err is (or wraps) an Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsAlreadyBooked returns true for a lost accept race.
func IsAlreadyBooked(err error) bool { return IsCode(err, CodeAlreadyBooked) }

// IsInvalidState returns true when the operation hit a stale status.
func IsInvalidState(err error) bool { return IsCode(err, CodeInvalidState) }

// IsNotFound returns true for an unknown id.
func IsNotFound(err error) bool { return IsCode(err, CodeNotFound) }
