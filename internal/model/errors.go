package model

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes failures surfaced by tether components.
type ErrorCode string

const (
	// CodeStorageUnavailable indicates the durable store could not be opened.
	CodeStorageUnavailable ErrorCode = "STORAGE_UNAVAILABLE"

	// CodeTransactionFailure indicates a single store operation failed.
	CodeTransactionFailure ErrorCode = "TRANSACTION_FAILURE"

	// CodeDecryptionFailure indicates a wrong password or corrupted payload.
	CodeDecryptionFailure ErrorCode = "DECRYPTION_FAILURE"

	// CodeConnectionFailure indicates a peer handshake or transport failure.
	CodeConnectionFailure ErrorCode = "CONNECTION_FAILURE"

	// CodeProtocolParseError indicates an undecodable peer message.
	CodeProtocolParseError ErrorCode = "PROTOCOL_PARSE_ERROR"

	// CodeImportValidation indicates an import payload failed validation.
	CodeImportValidation ErrorCode = "IMPORT_VALIDATION_ERROR"
)

// Error is the structured error carried across package boundaries.
//
// Errors compare equal under errors.Is when their codes match, so callers
// test categories with the sentinels below:
//
//	if errors.Is(err, model.ErrDecryptionFailure) { ... }
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Op names the failing operation, e.g. "store.save".
	Op string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is.
var (
	ErrStorageUnavailable = &Error{Code: CodeStorageUnavailable}
	ErrTransactionFailure = &Error{Code: CodeTransactionFailure}
	ErrDecryptionFailure  = &Error{Code: CodeDecryptionFailure}
	ErrConnectionFailure  = &Error{Code: CodeConnectionFailure}
	ErrProtocolParse      = &Error{Code: CodeProtocolParseError}
	ErrImportValidation   = &Error{Code: CodeImportValidation}
)

// NewError creates an Error with a formatted message.
func NewError(code ErrorCode, op string, err error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// StorageUnavailable wraps err as a storage-unavailable failure.
func StorageUnavailable(op string, err error) *Error {
	return &Error{Code: CodeStorageUnavailable, Op: op, Err: err}
}

// TransactionFailure wraps err as a failed store operation.
func TransactionFailure(op string, err error) *Error {
	return &Error{Code: CodeTransactionFailure, Op: op, Err: err}
}

// DecryptionFailure wraps err as a decryption failure.
func DecryptionFailure(op string, err error) *Error {
	return &Error{Code: CodeDecryptionFailure, Op: op, Err: err}
}

// ConnectionFailure wraps err as a peer connection failure.
func ConnectionFailure(op string, err error) *Error {
	return &Error{Code: CodeConnectionFailure, Op: op, Err: err}
}

// ProtocolParseError wraps err as an undecodable protocol message.
func ProtocolParseError(op string, err error) *Error {
	return &Error{Code: CodeProtocolParseError, Op: op, Err: err}
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsStorageUnavailable reports whether err is a storage-unavailable error.
func IsStorageUnavailable(err error) bool { return CodeOf(err) == CodeStorageUnavailable }

// IsTransactionFailure reports whether err is a failed store operation.
func IsTransactionFailure(err error) bool { return CodeOf(err) == CodeTransactionFailure }

// IsDecryptionFailure reports whether err is a decryption failure.
func IsDecryptionFailure(err error) bool { return CodeOf(err) == CodeDecryptionFailure }

// IsConnectionFailure reports whether err is a peer connection failure.
func IsConnectionFailure(err error) bool { return CodeOf(err) == CodeConnectionFailure }

// IsProtocolParseError reports whether err is a protocol parse error.
func IsProtocolParseError(err error) bool { return CodeOf(err) == CodeProtocolParseError }
