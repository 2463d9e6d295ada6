package models

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed set of failure categories surfaced to the user.
// Every terminal failure in the system maps to exactly one kind; anything
// that cannot be categorized falls to KindUnknown.
type ErrorKind string

const (
	// KindInvalidInput marks a malformed or empty turn, rejected before any
	// network call.
	KindInvalidInput ErrorKind = "invalid_input"
	// KindNoProviderConfigured marks the absence of any provider credential.
	KindNoProviderConfigured ErrorKind = "no_provider_configured"
	// KindMissingCredentials marks a rejected or absent API key.
	KindMissingCredentials ErrorKind = "missing_credentials"
	// KindQuotaExceeded marks an exhausted provider quota or billing limit.
	KindQuotaExceeded ErrorKind = "quota_exceeded"
	// KindRateLimited marks a provider rate limit rejection.
	KindRateLimited ErrorKind = "rate_limited"
	// KindNetworkUnavailable marks a transport-level failure reaching the provider.
	KindNetworkUnavailable ErrorKind = "network_unavailable"
	// KindTimeout marks an exceeded streaming wall-clock bound.
	KindTimeout ErrorKind = "timeout"
	// KindBusy marks a submit issued while a previous turn is still streaming.
	KindBusy ErrorKind = "busy"
	// KindStoreUnavailable marks a history persistence failure. It is reported
	// but never fails the turn.
	KindStoreUnavailable ErrorKind = "store_unavailable"
	// KindUnknown marks an unclassified provider or streaming failure.
	KindUnknown ErrorKind = "unknown"
)

// Error is a classified error carrying a user-presentable message. The kind
// drives messaging only; it never changes retry behavior, since the system
// performs no automatic retries.
type Error struct {
	Kind    ErrorKind
	Message string
}

// NewError creates a classified error with the given kind and message.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// NewErrorf creates a classified error with a formatted message.
func NewErrorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// UserMessage returns the human-readable description shown in the UI for
// this error. The wording for provider failures follows the guidance the
// user can act on for each category.
func (e *Error) UserMessage() string {
	switch e.Kind {
	case KindInvalidInput:
		return "Please enter a message before submitting."
	case KindNoProviderConfigured:
		return "No AI API key configured. Please add a GROQ_API_KEY (free) or OPENAI_API_KEY environment variable."
	case KindMissingCredentials:
		return "The AI API key was rejected. Please check your GROQ_API_KEY or OPENAI_API_KEY."
	case KindQuotaExceeded:
		return "You've exceeded your API quota. Please check your billing details or try the Groq API (free alternative)."
	case KindRateLimited:
		return "Rate limit exceeded. Please wait a moment and try again."
	case KindNetworkUnavailable:
		return "Network error. Please check your connection and try again."
	case KindTimeout:
		return "The response took too long and was stopped. Please try again."
	case KindBusy:
		return "A response is still being generated. Please wait for it to finish."
	case KindStoreUnavailable:
		return "Your page was generated, but saving the conversation failed."
	default:
		return "Failed to generate a response. Please try again."
	}
}

// KindOf extracts the kind from a classified error, or KindUnknown when the
// error is of any other type.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
