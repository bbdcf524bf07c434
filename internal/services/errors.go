package services

import (
	"errors"
	"fmt"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidEmail       = errors.New("a valid email is required")
	ErrWeakPassword       = errors.New("password must be at least 6 characters")
	ErrPasswordRequired   = errors.New("password is required")

	ErrNoContent       = errors.New("no content provided")
	ErrInvalidUpload   = errors.New("invalid upload")
	ErrQuotaExhausted  = errors.New("daily limit reached")
	ErrDocumentMissing = errors.New("document not found")
	ErrPersistence     = errors.New("failed to record analysis")

	ErrProviderConfig      = errors.New("ai provider is not configured")
	ErrProviderUnavailable = errors.New("ai provider unavailable")
)

// ProviderError describes a failed AI provider call. It always matches
// ErrProviderUnavailable via errors.Is.
type ProviderError struct {
	StatusCode int // 0 for transport failures
	Details    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("ai provider returned status %d: %s", e.StatusCode, e.Details)
	}
	if e.Err != nil {
		return fmt.Sprintf("ai provider request failed: %v", e.Err)
	}
	return "ai provider request failed: " + e.Details
}

func (e *ProviderError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrProviderUnavailable, e.Err}
	}
	return []error{ErrProviderUnavailable}
}

// UploadError is a client-side validation failure of the submitted file.
type UploadError struct {
	Reason string
}

func (e *UploadError) Error() string { return e.Reason }

func (e *UploadError) Unwrap() error { return ErrInvalidUpload }
