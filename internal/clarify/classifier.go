package clarify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/healthqa/internal/conversation"
	"github.com/fyrsmithlabs/healthqa/internal/generation"
)

// Verdict is a classifier's opinion on a message.
type Verdict struct {
	Ambiguous bool   `json:"ambiguous"`
	Question  string `json:"question"`
}

// Classifier decides whether a message is too vague to answer.
type Classifier interface {
	Classify(ctx context.Context, message string, history conversation.History) (Verdict, error)
}

// ErrUnparseable is returned when the classifier output holds no verdict.
var ErrUnparseable = errors.New("unparseable classifier output")

const classifierPrompt = `你是一名分诊助手。判断用户的健康问题是否过于模糊，以至于无法给出有针对性的建议。
只输出一个 JSON 对象，格式为 {"ambiguous": true|false, "question": "追问内容"}。
如果问题足够具体，ambiguous 为 false，question 为空字符串。`

// LLMClassifier asks the generation service for a verdict.
type LLMClassifier struct {
	gen generation.Generator
}

// NewLLMClassifier returns a classifier backed by gen.
func NewLLMClassifier(gen generation.Generator) *LLMClassifier {
	return &LLMClassifier{gen: gen}
}

// Classify implements Classifier.
func (c *LLMClassifier) Classify(ctx context.Context, message string, history conversation.History) (Verdict, error) {
	zero := 0.0
	out, err := c.gen.Generate(ctx, generation.Request{
		System:      classifierPrompt,
		History:     history.Last(4),
		Prompt:      message,
		MaxTokens:   200,
		Temperature: &zero,
	})
	if err != nil {
		return Verdict{}, err
	}
	return parseVerdict(out)
}

// parseVerdict extracts the first JSON object from model output, which may
// be wrapped in prose or a code fence.
func parseVerdict(out string) (Verdict, error) {
	start := strings.Index(out, "{")
	end := strings.LastIndex(out, "}")
	if start < 0 || end <= start {
		return Verdict{}, ErrUnparseable
	}
	var v Verdict
	if err := json.Unmarshal([]byte(out[start:end+1]), &v); err != nil {
		return Verdict{}, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	return v, nil
}
