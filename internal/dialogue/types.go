package dialogue

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/healthqa/internal/clarify"
	"github.com/fyrsmithlabs/healthqa/internal/compose"
	"github.com/fyrsmithlabs/healthqa/internal/conversation"
	"github.com/fyrsmithlabs/healthqa/internal/evidence"
)

// Request is one chat turn from a client.
type Request struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	// ConversationHistory seeds a new session. Stored history wins once a
	// session exists.
	ConversationHistory     conversation.History `json:"conversation_history"`
	IsClarificationResponse bool                 `json:"is_clarification_response"`
}

// Response is the reply to a Request. Exactly one of ClarificationQuestion
// and Answer is set.
type Response struct {
	SessionID             string            `json:"session_id"`
	NeedsClarification    bool              `json:"needs_clarification"`
	ClarificationQuestion *string           `json:"clarification_question"`
	Answer                *string           `json:"answer"`
	Evidences             []evidence.Graded `json:"evidences"`
	Disclaimer            string            `json:"disclaimer"`
}

// Kind classifies an Error.
type Kind string

const (
	KindInvalidRequest        Kind = "invalid_request"
	KindSessionBusy           Kind = "session_busy"
	KindSessionUnavailable    Kind = "session_unavailable"
	KindGenerationUnavailable Kind = "generation_unavailable"
	KindInternal              Kind = "internal"
)

// Error is the only error type returned by Handle.
type Error struct {
	Kind Kind
	// Detail is safe to show to end users.
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, detail string, err error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: err}
}

// KindOf returns the Kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// Retriever fetches candidate passages.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]evidence.Passage, error)
}

// Grader grades and sorts passages.
type Grader interface {
	GradeAll(passages []evidence.Passage) []evidence.Graded
}

// Composer writes the answer.
type Composer interface {
	Compose(ctx context.Context, question string, history conversation.History, graded []evidence.Graded) (compose.Answer, error)
}

// Policy decides whether to ask a clarification question.
type Policy interface {
	Decide(ctx context.Context, message string, history conversation.History, isClarificationResponse bool) clarify.Decision
}
