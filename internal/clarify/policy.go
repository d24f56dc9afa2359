package clarify

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fyrsmithlabs/healthqa/internal/conversation"
	"go.uber.org/zap"
)

// Reason explains a Decision.
type Reason string

const (
	ReasonClarificationAnswer Reason = "clarification_answer"
	ReasonSpecific            Reason = "specific"
	ReasonMissingQualifiers   Reason = "missing_qualifiers"
	ReasonTooShort            Reason = "too_short"
	ReasonClassifier          Reason = "classifier"
)

// Decision is the outcome of Decide.
type Decision struct {
	NeedsClarification bool
	// Question is set iff NeedsClarification.
	Question string
	Category string
	Missing  []Slot
	Reason   Reason
}

// Policy implements the clarification rules.
type Policy struct {
	taxonomy          []Category
	historyWindow     int
	shortRunes        int
	classifier        Classifier
	classifierTimeout time.Duration
	classifierMax     int
	logger            *zap.Logger
}

// Option configures a Policy.
type Option func(*Policy)

// WithTaxonomy replaces the default symptom taxonomy.
func WithTaxonomy(t []Category) Option { return func(p *Policy) { p.taxonomy = t } }

// WithHistoryWindow sets how many recent user turns may satisfy slots.
func WithHistoryWindow(n int) Option { return func(p *Policy) { p.historyWindow = n } }

// WithShortMessageRunes sets the length below which a message naming no
// condition is too vague to search.
func WithShortMessageRunes(n int) Option { return func(p *Policy) { p.shortRunes = n } }

// WithClassifier enables a second-opinion classifier for short messages the
// rules consider specific.
func WithClassifier(c Classifier, timeout time.Duration) Option {
	return func(p *Policy) {
		p.classifier = c
		p.classifierTimeout = timeout
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(p *Policy) { p.logger = l } }

// NewPolicy returns a Policy with the default taxonomy.
func NewPolicy(opts ...Option) *Policy {
	p := &Policy{
		taxonomy:          DefaultTaxonomy(),
		historyWindow:     4,
		shortRunes:        5,
		classifierTimeout: 3 * time.Second,
		classifierMax:     20,
		logger:            zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Decide returns whether message needs a follow-up question.
//
// isClarificationResponse short-circuits to proceed, which bounds every
// query to a single clarification round. Decide never blocks longer than
// the classifier timeout and never fails.
func (p *Policy) Decide(ctx context.Context, message string, history conversation.History, isClarificationResponse bool) Decision {
	if isClarificationResponse {
		return Decision{Reason: ReasonClarificationAnswer}
	}

	msg := strings.TrimSpace(message)

	for _, cat := range p.taxonomy {
		if !cat.Trigger.MatchString(msg) {
			continue
		}
		satisfied, missing := evaluateSlots(cat, msg, p.historyText(history, cat))
		if satisfied < cat.MinSlots {
			return Decision{
				NeedsClarification: true,
				Question:           cat.Template,
				Category:           cat.Name,
				Missing:            missing,
				Reason:             ReasonMissingQualifiers,
			}
		}
		return p.secondOpinion(ctx, msg, history, Decision{Category: cat.Name, Reason: ReasonSpecific})
	}

	if utf8.RuneCountInString(msg) < p.shortRunes && !slotDetectors[SlotCondition].MatchString(msg) {
		return Decision{
			NeedsClarification: true,
			Question:           GeneralQuestion,
			Category:           "general",
			Reason:             ReasonTooShort,
		}
	}

	return p.secondOpinion(ctx, msg, history, Decision{Reason: ReasonSpecific})
}

// historyText joins the recent user turns that may satisfy slots for cat.
// Only turns about the same symptom count, so qualifiers of an earlier,
// unrelated query are not carried over.
func (p *Policy) historyText(history conversation.History, cat Category) string {
	if p.historyWindow <= 0 {
		return ""
	}
	var related []string
	for _, turn := range history.RecentUser(p.historyWindow) {
		if cat.Trigger.MatchString(turn) {
			related = append(related, turn)
		}
	}
	return strings.Join(related, "\n")
}

// evaluateSlots counts satisfied slots. Trigger phrases are removed first so
// the symptom itself never counts as its own qualifier.
func evaluateSlots(cat Category, msg, history string) (int, []Slot) {
	text := cat.Trigger.ReplaceAllString(msg, " ") + "\n" + cat.Trigger.ReplaceAllString(history, " ")
	satisfied := 0
	var missing []Slot
	for _, slot := range cat.Slots {
		det, ok := slotDetectors[slot]
		if ok && det.MatchString(text) {
			satisfied++
		} else {
			missing = append(missing, slot)
		}
	}
	return satisfied, missing
}

// secondOpinion consults the classifier for short messages. Any classifier
// error or timeout keeps the proceed decision.
func (p *Policy) secondOpinion(ctx context.Context, msg string, history conversation.History, d Decision) Decision {
	if p.classifier == nil || utf8.RuneCountInString(msg) > p.classifierMax {
		return d
	}

	cctx, cancel := context.WithTimeout(ctx, p.classifierTimeout)
	defer cancel()

	verdict, err := p.classifier.Classify(cctx, msg, history)
	if err != nil {
		p.logger.Warn("clarification classifier failed, proceeding", zap.Error(err))
		return d
	}
	if !verdict.Ambiguous {
		return d
	}

	question := strings.TrimSpace(verdict.Question)
	if question == "" {
		question = templateSymptom
	}
	return Decision{
		NeedsClarification: true,
		Question:           question,
		Category:           d.Category,
		Reason:             ReasonClassifier,
	}
}
