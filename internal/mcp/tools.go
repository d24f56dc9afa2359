package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/healthqa/internal/dialogue"
	"github.com/fyrsmithlabs/healthqa/internal/evidence"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

type healthAskInput struct {
	Message                 string `json:"message" jsonschema:"The user's health question or clarification answer"`
	SessionID               string `json:"session_id,omitempty" jsonschema:"Session id from a previous call; omit to start a conversation"`
	IsClarificationResponse bool   `json:"is_clarification_response,omitempty" jsonschema:"True when message answers the previous clarification question"`
}

type healthAskOutput struct {
	SessionID             string           `json:"session_id"`
	NeedsClarification    bool             `json:"needs_clarification"`
	ClarificationQuestion string           `json:"clarification_question,omitempty"`
	Answer                string           `json:"answer,omitempty"`
	Evidences             []evidenceOutput `json:"evidences"`
	Disclaimer            string           `json:"disclaimer"`
}

type evidenceOutput struct {
	Content          string  `json:"content"`
	SourceName       string  `json:"source_name"`
	SourceURL        string  `json:"source_url,omitempty"`
	Title            string  `json:"title,omitempty"`
	PublicationDate  string  `json:"publication_date,omitempty"`
	EvidenceLevel    int     `json:"evidence_level"`
	LevelName        string  `json:"evidence_level_name"`
	LevelExplanation string  `json:"level_explanation"`
	Similarity       float64 `json:"similarity_score"`
	Score            float64 `json:"evidence_score"`
}

func toEvidenceOutput(graded []evidence.Graded) []evidenceOutput {
	out := make([]evidenceOutput, len(graded))
	for i, g := range graded {
		out[i] = evidenceOutput{
			Content:          g.Content,
			SourceName:       g.SourceName,
			SourceURL:        g.SourceURL,
			Title:            g.Title,
			PublicationDate:  g.PublicationDate,
			EvidenceLevel:    int(g.Level),
			LevelName:        g.LevelName,
			LevelExplanation: g.LevelExplanation,
			Similarity:       g.Similarity,
			Score:            g.Score,
		}
	}
	return out
}

type gradingLevelsInput struct{}

type gradingLevelsOutput struct {
	Levels []evidence.LevelInfo `json:"levels"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "health_ask",
		Description: "Ask the evidence-graded health assistant a question. Returns either a clarification question or a cited answer with graded evidence and a disclaimer.",
	}, s.healthAsk)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "grading_levels",
		Description: "List the evidence levels (4 = highest) with their names and explanations",
	}, s.gradingLevels)
}

func (s *Server) healthAsk(ctx context.Context, _ *mcp.CallToolRequest, args healthAskInput) (_ *mcp.CallToolResult, _ healthAskOutput, err error) {
	result := "answer"
	done := s.metrics.Start(ctx, "health_ask")
	defer func() { done(result, err) }()

	resp, err := s.chat.Handle(ctx, dialogue.Request{
		SessionID:               args.SessionID,
		Message:                 args.Message,
		IsClarificationResponse: args.IsClarificationResponse,
	})
	if err != nil {
		var de *dialogue.Error
		if errors.As(err, &de) {
			s.logger.Debug("health_ask failed", zap.String("kind", string(de.Kind)), zap.Error(de.Err))
			return nil, healthAskOutput{}, &toolError{de: de}
		}
		return nil, healthAskOutput{}, err
	}

	out := healthAskOutput{
		SessionID:          resp.SessionID,
		NeedsClarification: resp.NeedsClarification,
		Evidences:          toEvidenceOutput(resp.Evidences),
		Disclaimer:         resp.Disclaimer,
	}
	var text string
	if resp.NeedsClarification && resp.ClarificationQuestion != nil {
		result = "clarification"
		out.ClarificationQuestion = *resp.ClarificationQuestion
		text = out.ClarificationQuestion
	} else if resp.Answer != nil {
		out.Answer = *resp.Answer
		text = fmt.Sprintf("%s\n\n(%d evidence passages)\n%s", out.Answer, len(out.Evidences), out.Disclaimer)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, out, nil
}

// toolError shows the user-facing detail while keeping the kind for metrics.
type toolError struct{ de *dialogue.Error }

func (e *toolError) Error() string { return e.de.Detail }
func (e *toolError) Unwrap() error { return e.de }

func (s *Server) gradingLevels(ctx context.Context, _ *mcp.CallToolRequest, _ gradingLevelsInput) (*mcp.CallToolResult, gradingLevelsOutput, error) {
	done := s.metrics.Start(ctx, "grading_levels")
	defer done("levels", nil)

	levels := s.rules.Rules().Levels
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("%d evidence levels", len(levels))}},
	}, gradingLevelsOutput{Levels: levels}, nil
}
