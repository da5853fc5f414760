package chat

import (
	"fmt"
	"time"
)

// Core chat entities independent of frameworks and vendors

// Role identifies who authored a message in a session
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// roleTags maps every known role to the tag sent to model back-ends.
// Adding a role means adding a row here; RoleTag rejects anything else.
var roleTags = map[Role]string{
	RoleUser:      "user",
	RoleAssistant: "assistant",
	RoleSystem:    "system",
}

// Roles returns all known roles
func Roles() []Role {
	return []Role{RoleUser, RoleAssistant, RoleSystem}
}

// Valid reports whether the role is one of the closed set
func (r Role) Valid() bool {
	_, ok := roleTags[r]
	return ok
}

// RoleTag converts a role to its back-end tag
func RoleTag(r Role) (string, error) {
	tag, ok := roleTags[r]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, string(r))
	}
	return tag, nil
}

// RoleFromTag converts a back-end tag back into a role
func RoleFromTag(tag string) (Role, error) {
	for role, t := range roleTags {
		if t == tag {
			return role, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRole, tag)
}

// ChatMessage is one turn of a session. It is never mutated after construction.
type ChatMessage struct {
	SessionID string    `json:"session_id"`
	Sender    Role      `json:"sender"`
	Text      string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage creates a message stamped with the given time at microsecond precision
func NewMessage(sessionID string, sender Role, text string, at time.Time) ChatMessage {
	return ChatMessage{
		SessionID: sessionID,
		Sender:    sender,
		Text:      text,
		Timestamp: at.UTC().Truncate(time.Microsecond),
	}
}

// SessionIDOf returns the session of the first message, or "" for an empty history
func SessionIDOf(history []ChatMessage) string {
	if len(history) == 0 {
		return ""
	}
	return history[0].SessionID
}
