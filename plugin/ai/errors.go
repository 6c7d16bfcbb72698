package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorCode represents a specific failure kind of a generation call.
type ErrorCode string

const (
	// ErrCodeQuotaExceeded indicates upstream rate or quota exhaustion.
	ErrCodeQuotaExceeded ErrorCode = "QUOTA_EXCEEDED"
	// ErrCodeCredentialInvalid indicates a missing, invalid or rejected API key.
	ErrCodeCredentialInvalid ErrorCode = "CREDENTIAL_INVALID"
	// ErrCodeUpstreamFailure indicates any other upstream failure.
	ErrCodeUpstreamFailure ErrorCode = "UPSTREAM_FAILURE"
	// ErrCodeTimeout indicates the generation deadline passed.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeContextCanceled indicates the caller went away.
	ErrCodeContextCanceled ErrorCode = "CONTEXT_CANCELED"
)

// Error is the typed failure returned by every GenerationGateway.
type Error struct {
	Code     ErrorCode
	Provider string
	Message  string
	Cause    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s: %v", e.Code, e.Provider, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Provider, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// QuotaExceeded creates a quota exhaustion error.
func QuotaExceeded(provider string, cause error) *Error {
	return &Error{Code: ErrCodeQuotaExceeded, Provider: provider, Message: "quota exhausted", Cause: cause}
}

// CredentialInvalid creates a credential error.
func CredentialInvalid(provider string, cause error) *Error {
	return &Error{Code: ErrCodeCredentialInvalid, Provider: provider, Message: "credential rejected", Cause: cause}
}

// UpstreamFailure creates a generic upstream error.
func UpstreamFailure(provider, msg string, cause error) *Error {
	return &Error{Code: ErrCodeUpstreamFailure, Provider: provider, Message: msg, Cause: cause}
}

// GetCodeFromError extracts the error code from any error.
// Returns the provided default code if the error is not an *Error.
func GetCodeFromError(err error, defaultCode ErrorCode) ErrorCode {
	var aiErr *Error
	if errors.As(err, &aiErr) {
		return aiErr.Code
	}
	return defaultCode
}

// Upstream status signatures shared by the Google and OpenAI-compatible APIs.
var (
	// Kept narrow: "quota project" or "rate limit settings" in a configuration
	// error must not read as a quota wait.
	quotaSignatures = []string{
		"resource_exhausted",
		"too many requests",
		"rate limit exceeded",
		"quota exceeded",
		"exceeded your current quota",
	}
	credentialSignatures = []string{
		"api key not found",
		"api key not valid",
		"api_key_invalid",
		"invalid api key",
		"incorrect api key",
		"unauthenticated",
		"permission_denied",
	}
)

// classifyStatus maps an HTTP status and message to a typed error.
// status may be 0 when the provider did not report one.
func classifyStatus(provider string, status int, cause error) *Error {
	switch status {
	case 429:
		return QuotaExceeded(provider, cause)
	case 401, 403:
		return CredentialInvalid(provider, cause)
	}
	return classifyMessage(provider, cause)
}

// classifyMessage maps the provider's error text to a typed error.
func classifyMessage(provider string, cause error) *Error {
	switch {
	case errors.Is(cause, context.DeadlineExceeded):
		return &Error{Code: ErrCodeTimeout, Provider: provider, Message: "generation timed out", Cause: cause}
	case errors.Is(cause, context.Canceled):
		return &Error{Code: ErrCodeContextCanceled, Provider: provider, Message: "generation canceled", Cause: cause}
	}

	msg := strings.ToLower(cause.Error())
	for _, sig := range quotaSignatures {
		if strings.Contains(msg, sig) {
			return QuotaExceeded(provider, cause)
		}
	}
	for _, sig := range credentialSignatures {
		if strings.Contains(msg, sig) {
			return CredentialInvalid(provider, cause)
		}
	}
	return UpstreamFailure(provider, "generation failed", cause)
}
