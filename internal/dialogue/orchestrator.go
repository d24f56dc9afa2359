// Package dialogue drives one chat turn end to end.
//
// The Orchestrator is the only component that mutates sessions. Each turn
// runs under a per-session lock:
//
//	resolve session -> decide clarification -> (ask) or
//	(retrieve -> grade -> compose) -> append turns -> save
//
// Retrieval failures degrade to the no-evidence apology. Generation
// failures leave the session untouched so the same turn can be retried.
package dialogue

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fyrsmithlabs/healthqa/internal/compose"
	"github.com/fyrsmithlabs/healthqa/internal/conversation"
	"github.com/fyrsmithlabs/healthqa/internal/events"
	"github.com/fyrsmithlabs/healthqa/internal/evidence"
	"github.com/fyrsmithlabs/healthqa/internal/logging"
	"github.com/fyrsmithlabs/healthqa/internal/session"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// rewriteSeparator joins the ambiguous question and the clarification answer.
const rewriteSeparator = "。补充信息："

// Config configures an Orchestrator.
type Config struct {
	// TopK is the number of passages requested from retrieval.
	TopK int
	// MaxHistoryTurns bounds stored history. Zero keeps everything.
	MaxHistoryTurns int
	// EventTimeout bounds event publishing.
	EventTimeout time.Duration
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Policy    Policy
	Retriever Retriever
	Grader    Grader
	Composer  Composer
	Store     session.Store
	// Locker defaults to an in-process session.LocalLocker.
	Locker session.Locker
	// Publisher defaults to events.Nop.
	Publisher events.Publisher
	Logger    *logging.Logger
	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider
}

// Orchestrator handles chat turns.
type Orchestrator struct {
	deps    Deps
	config  Config
	metrics *Metrics
	logger  *logging.Logger
	tracer  trace.Tracer
}

// New returns an Orchestrator.
func New(deps Deps, cfg Config) (*Orchestrator, error) {
	var missing []string
	if deps.Policy == nil {
		missing = append(missing, "policy")
	}
	if deps.Retriever == nil {
		missing = append(missing, "retriever")
	}
	if deps.Grader == nil {
		missing = append(missing, "grader")
	}
	if deps.Composer == nil {
		missing = append(missing, "composer")
	}
	if deps.Store == nil {
		missing = append(missing, "store")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("dialogue: missing dependencies: %s", strings.Join(missing, ", "))
	}

	if deps.Locker == nil {
		deps.Locker = session.NewLocalLocker()
	}
	if deps.Publisher == nil {
		deps.Publisher = events.Nop{}
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}
	if deps.TracerProvider == nil {
		deps.TracerProvider = otel.GetTracerProvider()
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.EventTimeout <= 0 {
		cfg.EventTimeout = 2 * time.Second
	}

	return &Orchestrator{
		deps:    deps,
		config:  cfg,
		metrics: NewMetrics(),
		logger:  deps.Logger.Named("dialogue"),
		tracer:  deps.TracerProvider.Tracer("healthqa.dialogue"),
	}, nil
}

// Handle runs one turn. Every returned error is a *Error.
func (o *Orchestrator) Handle(ctx context.Context, req Request) (resp *Response, err error) {
	start := time.Now()
	outcome := ""

	ctx, span := o.tracer.Start(ctx, "Orchestrator.Handle")
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error(ctx, "panic in dialogue turn",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			resp, err = nil, newError(KindInternal, "服务器内部错误，请稍后重试。", fmt.Errorf("panic: %v", r))
		}
		if err != nil {
			kind := KindOf(err)
			o.metrics.ErrorsTotal.WithLabelValues(string(kind)).Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, string(kind))
			return
		}
		o.metrics.TurnsTotal.WithLabelValues(outcome).Inc()
		o.metrics.TurnDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
		span.SetAttributes(attribute.String("outcome", outcome))
	}()

	message := strings.TrimSpace(req.Message)
	if verr := validate(req, message); verr != nil {
		return nil, verr
	}

	id := req.SessionID
	if id == "" {
		id = uuid.NewString()
	}
	ctx = logging.WithSessionID(ctx, id)
	span.SetAttributes(attribute.String("session.id", id))

	unlock, lerr := o.deps.Locker.Lock(ctx, id)
	if errors.Is(lerr, session.ErrUnavailable) {
		return nil, newError(KindSessionUnavailable, "会话存储暂时不可用，请稍后重试。", lerr)
	}
	if lerr != nil {
		return nil, newError(KindSessionBusy, "该会话正在处理上一条消息，请稍后再试。", lerr)
	}
	defer unlock()

	sess, serr := o.loadSession(ctx, id, req.ConversationHistory)
	if serr != nil {
		return nil, serr
	}

	flag := req.IsClarificationResponse || sess.PendingClarification
	decision := o.deps.Policy.Decide(ctx, message, sess.History, flag)
	if decision.NeedsClarification && flag {
		// A second consecutive clarification is never allowed.
		o.logger.Error(ctx, "clarification policy asked twice for one query; proceeding",
			zap.String("category", decision.Category))
		decision.NeedsClarification = false
	}

	if decision.NeedsClarification {
		outcome = string(events.OutcomeClarification)
		resp, err = o.clarify(ctx, sess, message, decision.Question)
		if err == nil {
			o.publish(ctx, events.TurnEvent{
				SessionID:  sess.ID,
				Outcome:    events.OutcomeClarification,
				Category:   decision.Category,
				HistoryLen: len(sess.History),
				DurationMS: time.Since(start).Milliseconds(),
			})
		}
		return resp, err
	}

	query, rewritten := message, false
	if flag && sess.PendingQuery != "" {
		query = sess.PendingQuery + rewriteSeparator + message
		rewritten = true
		o.metrics.QueryRewrites.Inc()
	}

	graded := o.gather(ctx, query)

	answer, cerr := o.deps.Composer.Compose(ctx, query, sess.History, graded)
	if cerr != nil {
		return nil, newError(KindGenerationUnavailable, "回答生成服务暂时不可用，请稍后重试。", cerr)
	}

	sess.History = sess.History.Append(conversation.User(message), conversation.Assistant(answer.Text)).
		Trim(o.config.MaxHistoryTurns)
	sess.PendingClarification = false
	sess.PendingQuery = ""
	if err := o.save(ctx, sess); err != nil {
		return nil, err
	}

	outcome = string(events.OutcomeAnswer)
	if answer.Text == compose.Apology {
		outcome = string(events.OutcomeApology)
	}
	for _, g := range graded {
		o.metrics.EvidenceLevelTotal.WithLabelValues(strconv.Itoa(int(g.Level))).Inc()
	}

	ev := events.TurnEvent{
		SessionID:     sess.ID,
		Outcome:       events.Outcome(outcome),
		Category:      decision.Category,
		EvidenceCount: len(graded),
		Rewritten:     rewritten,
		HistoryLen:    len(sess.History),
		DurationMS:    time.Since(start).Milliseconds(),
	}
	if len(graded) > 0 {
		ev.TopLevel = int(graded[0].Level)
	}
	o.publish(ctx, ev)

	text := answer.Text
	return &Response{
		SessionID:  sess.ID,
		Answer:     &text,
		Evidences:  graded,
		Disclaimer: answer.Disclaimer,
	}, nil
}

func validate(req Request, message string) *Error {
	if message == "" {
		return newError(KindInvalidRequest, "消息内容不能为空。", conversation.ErrEmptyContent)
	}
	if utf8.RuneCountInString(message) > conversation.MaxContentRunes {
		return newError(KindInvalidRequest,
			fmt.Sprintf("消息过长，请控制在%d字以内。", conversation.MaxContentRunes),
			conversation.ErrContentTooLong)
	}
	if req.SessionID != "" {
		if err := session.ValidateID(req.SessionID); err != nil {
			return newError(KindInvalidRequest, "会话ID无效。", err)
		}
	}
	if err := req.ConversationHistory.Validate(); err != nil {
		return newError(KindInvalidRequest, "对话历史格式无效。", err)
	}
	return nil
}

// loadSession returns the stored session or a new one seeded with the
// client's history.
func (o *Orchestrator) loadSession(ctx context.Context, id string, seed conversation.History) (*session.Session, *Error) {
	sess, err := o.deps.Store.Get(ctx, id)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, session.ErrNotFound) {
		o.logger.Error(ctx, "loading session failed", zap.Error(err))
		return nil, newError(KindSessionUnavailable, "会话存储暂时不可用，请稍后重试。", err)
	}

	sess = session.New(id)
	sess.History = seed.Trim(o.config.MaxHistoryTurns)
	o.logger.Debug(ctx, "created session", zap.Int("seed_turns", len(sess.History)))
	return sess, nil
}

func (o *Orchestrator) clarify(ctx context.Context, sess *session.Session, message, question string) (*Response, error) {
	sess.History = sess.History.Append(conversation.User(message), conversation.Assistant(question)).
		Trim(o.config.MaxHistoryTurns)
	sess.PendingClarification = true
	sess.PendingQuery = message
	if err := o.save(ctx, sess); err != nil {
		return nil, err
	}

	o.logger.Info(ctx, "asked clarification")
	q := question
	return &Response{
		SessionID:             sess.ID,
		NeedsClarification:    true,
		ClarificationQuestion: &q,
		Evidences:             []evidence.Graded{},
		Disclaimer:            compose.Disclaimer,
	}, nil
}

// gather retrieves and grades evidence. Retrieval failures yield no evidence.
func (o *Orchestrator) gather(ctx context.Context, query string) []evidence.Graded {
	passages, err := o.deps.Retriever.Retrieve(ctx, query, o.config.TopK)
	if err != nil {
		o.metrics.RetrievalFailures.Inc()
		o.logger.Warn(ctx, "retrieval unavailable, continuing without evidence", zap.Error(err))
		return []evidence.Graded{}
	}

	graded := o.deps.Grader.GradeAll(passages)
	if graded == nil {
		graded = []evidence.Graded{}
	}
	o.logger.Debug(ctx, "evidence graded",
		zap.Int("retrieved", len(passages)),
		zap.Int("graded", len(graded)))
	return graded
}

func (o *Orchestrator) save(ctx context.Context, sess *session.Session) error {
	sess.UpdatedAt = time.Now().UTC()
	if err := o.deps.Store.Save(ctx, sess); err != nil {
		o.logger.Error(ctx, "saving session failed", zap.Error(err))
		return newError(KindSessionUnavailable, "会话存储暂时不可用，请稍后重试。", err)
	}
	return nil
}

func (o *Orchestrator) publish(ctx context.Context, ev events.TurnEvent) {
	ev.RequestID = logging.RequestIDFromContext(ctx)
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.config.EventTimeout)
	defer cancel()
	if err := o.deps.Publisher.PublishTurn(pctx, ev); err != nil {
		o.logger.Warn(ctx, "publishing turn event failed", zap.Error(err))
	}
}
