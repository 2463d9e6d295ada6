package models

import (
	"strings"
	"time"
)

// Message represents an individual entry within a conversation. Messages are
// immutable once created; the ordered sequence of messages for a user forms
// the transcript.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Role represents the author of a message.
type Role string

const (
	// RoleUser represents a message typed by the user.
	RoleUser Role = "user"
	// RoleAssistant represents a message produced by the model.
	RoleAssistant Role = "assistant"
)

// ValidateTranscript checks that a transcript is well-formed for submission:
// non-empty, roles strictly alternating starting with user, and ending in a
// user message. A violation is reported before any network call is made.
func ValidateTranscript(messages []Message) error {
	if len(messages) == 0 {
		return NewError(KindInvalidInput, "transcript is empty")
	}

	want := RoleUser
	for i, msg := range messages {
		if strings.TrimSpace(msg.Content) == "" {
			return NewError(KindInvalidInput, "message content is empty")
		}
		if msg.Role != want {
			return NewErrorf(KindInvalidInput, "unexpected role %q at position %d", msg.Role, i)
		}
		if want == RoleUser {
			want = RoleAssistant
		} else {
			want = RoleUser
		}
	}

	if messages[len(messages)-1].Role != RoleUser {
		return NewError(KindInvalidInput, "transcript must end with a user message")
	}

	return nil
}
