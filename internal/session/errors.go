package session

import (
	"errors"
	"fmt"
)

// Code identifies one failure class of the driver's closed taxonomy.
type Code uint8

const (
	CodeStateViolation Code = iota + 1
	CodeNavigationModeViolation
	CodeForbiddenJump
	CodeLogicError
	CodeUnknownVariable
	CodeOutOfRange
	CodeOutOfScope
	CodeResponseProcessing
	CodeOutcomeProcessing
	CodeResultSubmission
	CodeTestDurationOverflow
	CodeTestDurationUnderflow
	CodeTestPartDurationOverflow
	CodeTestPartDurationUnderflow
	CodeSectionDurationOverflow
	CodeSectionDurationUnderflow
	CodeItemDurationOverflow
	CodeItemDurationUnderflow
)

func (c Code) String() string {
	switch c {
	case CodeStateViolation:
		return "state violation"
	case CodeNavigationModeViolation:
		return "navigation mode violation"
	case CodeForbiddenJump:
		return "forbidden jump"
	case CodeLogicError:
		return "logic error"
	case CodeUnknownVariable:
		return "unknown variable"
	case CodeOutOfRange:
		return "out of range"
	case CodeOutOfScope:
		return "out of scope"
	case CodeResponseProcessing:
		return "response processing error"
	case CodeOutcomeProcessing:
		return "outcome processing error"
	case CodeResultSubmission:
		return "result submission error"
	case CodeTestDurationOverflow:
		return "test duration overflow"
	case CodeTestDurationUnderflow:
		return "test duration underflow"
	case CodeTestPartDurationOverflow:
		return "test part duration overflow"
	case CodeTestPartDurationUnderflow:
		return "test part duration underflow"
	case CodeSectionDurationOverflow:
		return "section duration overflow"
	case CodeSectionDurationUnderflow:
		return "section duration underflow"
	case CodeItemDurationOverflow:
		return "item duration overflow"
	case CodeItemDurationUnderflow:
		return "item duration underflow"
	}
	return "unknown"
}

// Error is a driver fault. Cause carries the originating item session
// or expression fault when the error was mapped at the driver
// boundary.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// IsCode reports whether err is or wraps a driver Error carrying the
// given code.
func IsCode(err error, code Code) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

func newError(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func wrapError(code Code, cause error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// ItemCode identifies one failure class of an item session.
type ItemCode uint8

const (
	ItemStateViolation ItemCode = iota + 1
	ItemDurationOverflow
	ItemDurationUnderflow
	ItemAttemptsOverflow
	ItemInvalidResponse
	ItemSkippingForbidden
)

func (c ItemCode) String() string {
	switch c {
	case ItemStateViolation:
		return "state violation"
	case ItemDurationOverflow:
		return "duration overflow"
	case ItemDurationUnderflow:
		return "duration underflow"
	case ItemAttemptsOverflow:
		return "attempts overflow"
	case ItemInvalidResponse:
		return "invalid response"
	case ItemSkippingForbidden:
		return "skipping forbidden"
	}
	return "unknown"
}

// ItemError is a fault raised by one item session. Session is the
// "<itemRef>.<occurrence>" label of the occurrence that failed.
type ItemError struct {
	Code    ItemCode
	Session string
	Message string
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("item session %s: %s: %s", e.Session, e.Code, e.Message)
}

// IsItemCode reports whether err is or wraps an ItemError carrying
// the given code.
func IsItemCode(err error, code ItemCode) bool {
	var e *ItemError
	return errors.As(err, &e) && e.Code == code
}

func newItemError(code ItemCode, session, format string, args ...interface{}) *ItemError {
	return &ItemError{Code: code, Session: session, Message: fmt.Sprintf(format, args...)}
}

// mapItemError lifts an item session fault to the closest driver
// code, keeping the original as the cause.
func mapItemError(err error, context string) *Error {
	var ie *ItemError
	if !errors.As(err, &ie) {
		return wrapError(CodeLogicError, err, "%s", context)
	}
	code := CodeStateViolation
	switch ie.Code {
	case ItemDurationOverflow:
		code = CodeItemDurationOverflow
	case ItemDurationUnderflow:
		code = CodeItemDurationUnderflow
	case ItemInvalidResponse:
		code = CodeResponseProcessing
	}
	return wrapError(code, ie, "%s", context)
}
