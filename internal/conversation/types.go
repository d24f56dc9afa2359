package conversation

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MaxContentRunes bounds a single turn's content.
const MaxContentRunes = 4000

var (
	// ErrInvalidRole is returned for roles other than user or assistant.
	ErrInvalidRole = errors.New("invalid role")
	// ErrEmptyContent is returned for blank turns.
	ErrEmptyContent = errors.New("empty content")
	// ErrContentTooLong is returned when content exceeds MaxContentRunes.
	ErrContentTooLong = errors.New("content too long")
)

// Turn is one message in a conversation.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// User returns a user turn.
func User(content string) Turn { return Turn{Role: RoleUser, Content: content} }

// Assistant returns an assistant turn.
func Assistant(content string) Turn { return Turn{Role: RoleAssistant, Content: content} }

// Validate checks role and content bounds.
func (t Turn) Validate() error {
	if t.Role != RoleUser && t.Role != RoleAssistant {
		return fmt.Errorf("%w: %q", ErrInvalidRole, t.Role)
	}
	if strings.TrimSpace(t.Content) == "" {
		return ErrEmptyContent
	}
	if utf8.RuneCountInString(t.Content) > MaxContentRunes {
		return fmt.Errorf("%w: %d runes (max %d)", ErrContentTooLong, utf8.RuneCountInString(t.Content), MaxContentRunes)
	}
	return nil
}
