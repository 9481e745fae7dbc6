package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *DomainError
		expected string
	}{
		{
			name:     "error without details",
			err:      NewDomainError("DM-TEST-1000", "test message"),
			expected: "[DM-TEST-1000] test message",
		},
		{
			name:     "error with details",
			err:      NewDomainError("DM-TEST-1001", "test message").WithDetails("extra info"),
			expected: "[DM-TEST-1001] test message: extra info",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestDomainError_Is(t *testing.T) {
	err1 := NewDomainError("DM-TEST-1000", "message 1")
	err2 := NewDomainError("DM-TEST-1000", "message 2") // Same code, different message
	err3 := NewDomainError("DM-TEST-1001", "message 1") // Different code

	// Same code should match
	if !errors.Is(err1, err2) {
		t.Error("errors.Is should return true for same error code")
	}

	// Different code should not match
	if errors.Is(err1, err3) {
		t.Error("errors.Is should return false for different error code")
	}

	// Should not match non-DomainError
	if errors.Is(err1, fmt.Errorf("some error")) {
		t.Error("errors.Is should return false for non-DomainError")
	}
}

func TestDomainError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("underlying cause")
	err := NewDomainError("DM-TEST-1000", "wrapper").WithCause(cause)

	unwrapped := errors.Unwrap(err)
	if unwrapped != cause {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, cause)
	}

	// Without cause
	errNoCause := NewDomainError("DM-TEST-1000", "no cause")
	if errors.Unwrap(errNoCause) != nil {
		t.Error("Unwrap() should return nil when no cause")
	}
}

func TestDomainError_WithDetails(t *testing.T) {
	original := NewDomainError("DM-TEST-1000", "original message")
	withDetails := original.WithDetails("additional details")

	// Check original is unchanged
	if original.Details != "" {
		t.Error("WithDetails should not modify original error")
	}

	// Check new error has details
	if withDetails.Details != "additional details" {
		t.Errorf("Details = %q, want %q", withDetails.Details, "additional details")
	}

	// Check code and message are preserved
	if withDetails.Code != original.Code {
		t.Errorf("Code = %q, want %q", withDetails.Code, original.Code)
	}
	if withDetails.Message != original.Message {
		t.Errorf("Message = %q, want %q", withDetails.Message, original.Message)
	}
}

func TestDomainError_WithCause(t *testing.T) {
	original := NewDomainError("DM-TEST-1000", "original message")
	cause := fmt.Errorf("root cause")
	withCause := original.WithCause(cause)

	// Check original is unchanged
	if original.Cause != nil {
		t.Error("WithCause should not modify original error")
	}

	// Check new error has cause
	if withCause.Cause != cause {
		t.Errorf("Cause = %v, want %v", withCause.Cause, cause)
	}

	// Check code and message are preserved
	if withCause.Code != original.Code {
		t.Errorf("Code = %q, want %q", withCause.Code, original.Code)
	}
}

func TestDomainError_Wrap(t *testing.T) {
	original := NewDomainError("DM-TEST-1000", "original")
	cause := fmt.Errorf("cause")
	wrapped := original.Wrap(cause)

	if wrapped.Cause != cause {
		t.Errorf("Wrap() should set cause, got %v", wrapped.Cause)
	}
}

func TestIsDomainError(t *testing.T) {
	err := ErrCannotRemove

	if !IsDomainError(err, "DM-RES-4092") {
		t.Error("IsDomainError should return true for matching code")
	}

	if IsDomainError(err, "DM-RES-9999") {
		t.Error("IsDomainError should return false for non-matching code")
	}

	if IsDomainError(fmt.Errorf("regular error"), "DM-RES-4092") {
		t.Error("IsDomainError should return false for non-DomainError")
	}

	// Test with wrapped error
	wrapped := fmt.Errorf("wrapped: %w", ErrCannotRemove)
	if !IsDomainError(wrapped, "DM-RES-4092") {
		t.Error("IsDomainError should work with wrapped errors")
	}
}

func TestGetErrorCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "domain error",
			err:      ErrCannotRemove,
			expected: "DM-RES-4092",
		},
		{
			name:     "wrapped domain error",
			err:      fmt.Errorf("wrapped: %w", ErrInvalidCommand),
			expected: "DM-CMD-4001",
		},
		{
			name:     "regular error",
			err:      fmt.Errorf("regular error"),
			expected: "",
		},
		{
			name:     "nil error",
			err:      nil,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetErrorCode(tt.err); got != tt.expected {
				t.Errorf("GetErrorCode() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestPredefinedErrors(t *testing.T) {
	tests := []struct {
		err     *DomainError
		code    string
		message string
	}{
		{ErrMalformedCommand, "DM-CMD-4000", "missing or incorrect type for command"},
		{ErrInvalidCommand, "DM-CMD-4001", "invalid command"},
		{ErrUnexpectedCommand, "DM-CMD-4002", "unexpected command in persistent connection"},

		{ErrMissingResource, "DM-RES-4000", "missing resource"},
		{ErrInvalidResource, "DM-RES-4001", "invalid resource"},
		{ErrMissingTemplate, "DM-RES-4002", "missing resourceTemplate"},
		{ErrInvalidTemplate, "DM-RES-4003", "invalid resourceTemplate"},
		{ErrCannotPublish, "DM-RES-4090", "cannot publish resource"},
		{ErrCannotShare, "DM-RES-4091", "cannot share resource"},
		{ErrCannotRemove, "DM-RES-4092", "cannot remove resource"},

		{ErrMissingSecret, "DM-AUTH-4000", "missing resource and/or secret"},
		{ErrIncorrectSecret, "DM-AUTH-4010", "incorrect secret"},
		{ErrFileNotFound, "DM-FILE-4040", "file not found on server"},
		{ErrMissingServerList, "DM-PEER-4000", "missing or invalid server list"},
		{ErrInvalidServerRecord, "DM-PEER-4001", "invalid server record found"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Error code = %q, want %q", tt.err.Code, tt.code)
			}
			if tt.err.Message != tt.message {
				t.Errorf("Message = %q, want %q", tt.err.Message, tt.message)
			}
		})
	}
}

func TestWireMessage(t *testing.T) {
	if got := WireMessage(ErrIncorrectSecret.WithDetails("client 10.0.0.1")); got != "incorrect secret" {
		t.Errorf("WireMessage() = %q, want %q", got, "incorrect secret")
	}
	if got := WireMessage(fmt.Errorf("share: %w", ErrCannotShare)); got != "cannot share resource" {
		t.Errorf("WireMessage(wrapped) = %q, want %q", got, "cannot share resource")
	}
	if got := WireMessage(errors.New("disk on fire")); got != ErrInternal.Message {
		t.Errorf("WireMessage(plain) = %q, want %q", got, ErrInternal.Message)
	}
}

func TestErrorChaining(t *testing.T) {
	// Test chaining WithDetails and WithCause
	cause := fmt.Errorf("root cause")
	err := ErrCannotRemove.
		WithDetails("channel: docs").
		WithCause(cause)

	// Verify all properties are preserved
	if err.Code != "DM-RES-4092" {
		t.Errorf("Code = %q, want %q", err.Code, "DM-RES-4092")
	}
	if err.Details != "channel: docs" {
		t.Errorf("Details = %q", err.Details)
	}
	if err.Cause != cause {
		t.Error("Cause should be preserved")
	}

	// Verify errors.Is still works
	if !errors.Is(err, ErrCannotRemove) {
		t.Error("errors.Is should work after chaining")
	}
}
