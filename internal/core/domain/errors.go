package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a directory rule violation with a structured error code.
// Message is the short machine-oriented text sent to clients in an error Response.
type DomainError struct {
	Code    string // Error code (e.g., "DM-RES-4090")
	Message string // Wire message
	Details string // Optional additional details, never sent to clients
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support for error comparison.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// Wrap wraps an error with this domain error as the cause.
func (e *DomainError) Wrap(cause error) *DomainError {
	return e.WithCause(cause)
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// WireMessage returns the message reported to a client for err.
// Errors that are not domain errors are reported as an internal error.
func WireMessage(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Message
	}
	return ErrInternal.Message
}

// ============================================================================
// Command Errors (CMD)
// ============================================================================

var (
	// ErrMalformedCommand indicates the frame is not an object with a string command field.
	ErrMalformedCommand = NewDomainError("DM-CMD-4000", "missing or incorrect type for command")

	// ErrInvalidCommand indicates an unknown discriminator or a field of the wrong type.
	ErrInvalidCommand = NewDomainError("DM-CMD-4001", "invalid command")

	// ErrUnexpectedCommand indicates a non-subscription command on a persistent connection.
	ErrUnexpectedCommand = NewDomainError("DM-CMD-4002", "unexpected command in persistent connection")
)

// ============================================================================
// Resource Errors (RES)
// ============================================================================

var (
	// ErrMissingResource indicates PUBLISH/REMOVE/SHARE carried no resource.
	ErrMissingResource = NewDomainError("DM-RES-4000", "missing resource")

	// ErrInvalidResource indicates a reserved owner, an unparsable or illegal URI,
	// or an unreadable shared file.
	ErrInvalidResource = NewDomainError("DM-RES-4001", "invalid resource")

	// ErrMissingTemplate indicates QUERY/FETCH/SUBSCRIBE carried no template.
	ErrMissingTemplate = NewDomainError("DM-RES-4002", "missing resourceTemplate")

	// ErrInvalidTemplate indicates a FETCH template that does not name a known local file.
	ErrInvalidTemplate = NewDomainError("DM-RES-4003", "invalid resourceTemplate")

	// ErrCannotPublish indicates a publish ownership conflict.
	ErrCannotPublish = NewDomainError("DM-RES-4090", "cannot publish resource")

	// ErrCannotShare indicates a share ownership conflict.
	ErrCannotShare = NewDomainError("DM-RES-4091", "cannot share resource")

	// ErrCannotRemove indicates a remove of a missing or foreign resource.
	ErrCannotRemove = NewDomainError("DM-RES-4092", "cannot remove resource")

	// ErrOwnershipViolation is returned by the directory when an entry
	// with a different owner already exists at the key.
	ErrOwnershipViolation = NewDomainError("DM-RES-4093", "ownership violation")

	// ErrResourceNotFound is returned by the directory for an unknown key.
	ErrResourceNotFound = NewDomainError("DM-RES-4040", "resource not found")
)

// ============================================================================
// Authentication Errors (AUTH)
// ============================================================================

var (
	// ErrMissingSecret indicates SHARE without a resource or a secret.
	ErrMissingSecret = NewDomainError("DM-AUTH-4000", "missing resource and/or secret")

	// ErrIncorrectSecret indicates SHARE with a secret that does not match.
	ErrIncorrectSecret = NewDomainError("DM-AUTH-4010", "incorrect secret")
)

// ============================================================================
// File Errors (FILE)
// ============================================================================

var (
	// ErrFileNotFound indicates a fetched file disappeared from the local disk.
	ErrFileNotFound = NewDomainError("DM-FILE-4040", "file not found on server")
)

// ============================================================================
// Peer Errors (PEER)
// ============================================================================

var (
	// ErrMissingServerList indicates EXCHANGE with no servers.
	ErrMissingServerList = NewDomainError("DM-PEER-4000", "missing or invalid server list")

	// ErrInvalidServerRecord indicates EXCHANGE with at least one invalid entry.
	ErrInvalidServerRecord = NewDomainError("DM-PEER-4001", "invalid server record found")
)

// ============================================================================
// System Errors (SYS)
// ============================================================================

var (
	// ErrInternal indicates an unexpected server-side failure.
	ErrInternal = NewDomainError("DM-SYS-5000", "internal server error")
)
