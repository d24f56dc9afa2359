// Package events publishes dialogue turn events for audit and analytics.
//
// Each completed turn is published as JSON to the NATS subject
//
//	{subject}.{outcome}
//
// where outcome is one of clarification, answer or apology. Publishing is
// best effort: failures are logged by the caller and never fail a turn.
package events

import (
	"context"
	"time"
)

// Outcome classifies a completed turn.
type Outcome string

const (
	OutcomeClarification Outcome = "clarification"
	OutcomeAnswer        Outcome = "answer"
	OutcomeApology       Outcome = "apology"
)

// TurnEvent describes one completed dialogue turn. Message text is not
// included.
type TurnEvent struct {
	SessionID     string    `json:"session_id"`
	RequestID     string    `json:"request_id,omitempty"`
	Outcome       Outcome   `json:"outcome"`
	Category      string    `json:"category,omitempty"`
	EvidenceCount int       `json:"evidence_count"`
	TopLevel      int       `json:"top_evidence_level,omitempty"`
	Rewritten     bool      `json:"query_rewritten,omitempty"`
	HistoryLen    int       `json:"history_len"`
	DurationMS    int64     `json:"duration_ms"`
	Timestamp     time.Time `json:"timestamp"`
}

// Publisher publishes turn events.
type Publisher interface {
	PublishTurn(ctx context.Context, ev TurnEvent) error
	Close() error
}

// Nop discards events.
type Nop struct{}

func (Nop) PublishTurn(context.Context, TurnEvent) error { return nil }
func (Nop) Close() error                                 { return nil }
