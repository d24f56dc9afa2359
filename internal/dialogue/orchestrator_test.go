package dialogue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fyrsmithlabs/healthqa/internal/clarify"
	"github.com/fyrsmithlabs/healthqa/internal/compose"
	"github.com/fyrsmithlabs/healthqa/internal/conversation"
	"github.com/fyrsmithlabs/healthqa/internal/events"
	"github.com/fyrsmithlabs/healthqa/internal/evidence"
	"github.com/fyrsmithlabs/healthqa/internal/generation"
	"github.com/fyrsmithlabs/healthqa/internal/logging"
	"github.com/fyrsmithlabs/healthqa/internal/retrieval"
	"github.com/fyrsmithlabs/healthqa/internal/session"
	"github.com/fyrsmithlabs/healthqa/internal/telemetry"
	"github.com/fyrsmithlabs/healthqa/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap/zapcore"
)

type fakeRetriever struct {
	mu       sync.Mutex
	passages []evidence.Passage
	err      error
	panics   bool
	queries  []string
}

func (f *fakeRetriever) Retrieve(_ context.Context, query string, _ int) ([]evidence.Passage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panics {
		panic("index exploded")
	}
	f.queries = append(f.queries, query)
	return f.passages, f.err
}

func (f *fakeRetriever) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

type fakeGen struct {
	mu    sync.Mutex
	out   string
	err   error
	calls int
}

func (f *fakeGen) Generate(context.Context, generation.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.out, f.err
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.TurnEvent
}

func (r *recordingPublisher) PublishTurn(_ context.Context, ev events.TurnEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingPublisher) Close() error { return nil }

func (r *recordingPublisher) last() events.TurnEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

type failingStore struct{ session.Store }

func (failingStore) Get(context.Context, string) (*session.Session, error) {
	return nil, session.ErrUnavailable
}

type harness struct {
	orch      *Orchestrator
	store     *session.MemoryStore
	locker    *session.LocalLocker
	retriever *fakeRetriever
	gen       *fakeGen
	pub       *recordingPublisher
	logs      *logging.TestLogger
}

func hypertensionPassages() []evidence.Passage {
	return []evidence.Passage{
		{Content: "有网友说多吃芹菜能降压。", SourceName: "健康论坛", DocumentType: "forum", Similarity: 0.95},
		{Content: "成人每日食盐摄入应少于5克。", SourceName: "WHO", SourceURL: "https://www.who.int/news-room/fact-sheets/detail/hypertension", DocumentType: "guideline", Similarity: 0.80},
		{Content: "高血压患者宜多吃蔬菜水果。", SourceName: "默沙东诊疗手册", DocumentType: "encyclopedia", Similarity: 0.85},
	}
}

func newHarness(t *testing.T, opts ...func(*Deps)) *harness {
	t.Helper()
	h := &harness{
		store:     session.NewMemoryStore(time.Hour, 100),
		locker:    session.NewLocalLocker(),
		retriever: &fakeRetriever{passages: hypertensionPassages()},
		gen:       &fakeGen{out: "建议低盐饮食，每日食盐少于5克 [1]。"},
		pub:       &recordingPublisher{},
		logs:      logging.NewTestLogger(),
	}
	deps := Deps{
		Policy:    clarify.NewPolicy(),
		Retriever: h.retriever,
		Grader:    evidence.NewGrader(nil),
		Composer:  compose.New(h.gen, compose.Config{Timeout: time.Second, HistoryTurns: 6}, nil),
		Store:     h.store,
		Locker:    h.locker,
		Publisher: h.pub,
		Logger:    h.logs.Logger,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	orch, err := New(deps, Config{TopK: 5, MaxHistoryTurns: 40})
	require.NoError(t, err)
	h.orch = orch
	return h
}

func assertExclusive(t *testing.T, resp *Response) {
	t.Helper()
	if resp.NeedsClarification {
		require.NotNil(t, resp.ClarificationQuestion)
		assert.NotEmpty(t, *resp.ClarificationQuestion)
		assert.Nil(t, resp.Answer)
		assert.Empty(t, resp.Evidences)
		return
	}
	require.NotNil(t, resp.Answer)
	assert.Nil(t, resp.ClarificationQuestion)
}

func TestHandle_SpecificQuestionAnswers(t *testing.T) {
	h := newHarness(t)

	resp, err := h.orch.Handle(context.Background(), Request{Message: "高血压患者的饮食建议"})
	require.NoError(t, err)
	assertExclusive(t, resp)

	assert.NotEmpty(t, resp.SessionID)
	assert.False(t, resp.NeedsClarification)
	assert.Equal(t, h.gen.out, *resp.Answer)
	assert.Equal(t, compose.Disclaimer, resp.Disclaimer)

	require.Len(t, resp.Evidences, 3)
	assert.True(t, evidence.IsSorted(resp.Evidences))
	for _, ev := range resp.Evidences {
		assert.True(t, ev.Level.Valid())
	}
	assert.Equal(t, evidence.LevelHigh, resp.Evidences[0].Level)
	assert.Equal(t, "WHO", resp.Evidences[0].SourceName)
	assert.Equal(t, evidence.LevelReference, resp.Evidences[2].Level)

	sess, err := h.store.Get(context.Background(), resp.SessionID)
	require.NoError(t, err)
	assert.Len(t, sess.History, 2)
	assert.False(t, sess.PendingClarification)

	ev := h.pub.last()
	assert.Equal(t, events.OutcomeAnswer, ev.Outcome)
	assert.Equal(t, 3, ev.EvidenceCount)
	assert.Equal(t, 4, ev.TopLevel)
}

func TestHandle_RecordsSpan(t *testing.T) {
	tel := telemetry.NewTestTelemetry()
	h := newHarness(t, func(d *Deps) { d.TracerProvider = tel.TracerProvider() })

	resp, err := h.orch.Handle(context.Background(), Request{Message: "我头疼"})
	require.NoError(t, err)

	tel.AssertSpanExists(t, "Orchestrator.Handle")
	id, ok := tel.SpanAttribute("Orchestrator.Handle", "session.id")
	require.True(t, ok)
	assert.Equal(t, resp.SessionID, id.AsString())
	outcome, ok := tel.SpanAttribute("Orchestrator.Handle", "outcome")
	require.True(t, ok)
	assert.Equal(t, string(events.OutcomeClarification), outcome.AsString())

	_, err = h.orch.Handle(context.Background(), Request{Message: "   "})
	require.Error(t, err)
	var failed int
	for _, s := range tel.Spans() {
		if s.Status().Code == codes.Error {
			failed++
			assert.Equal(t, string(KindInvalidRequest), s.Status().Description)
		}
	}
	assert.Equal(t, 1, failed)
}

func TestHandle_ShortHistoryBoundKeepsPendingPair(t *testing.T) {
	h := newHarness(t)
	h.orch.config.MaxHistoryTurns = 1

	resp, err := h.orch.Handle(context.Background(), Request{Message: "我头疼"})
	require.NoError(t, err)
	require.True(t, resp.NeedsClarification)

	sess, err := h.store.Get(context.Background(), resp.SessionID)
	require.NoError(t, err)
	assert.True(t, sess.PendingClarification)
	require.Len(t, sess.History, 2)
	last, ok := sess.History.LastAssistant()
	require.True(t, ok)
	assert.Equal(t, *resp.ClarificationQuestion, last.Content)
}

func TestHandle_VagueSymptomClarifies(t *testing.T) {
	h := newHarness(t)

	resp, err := h.orch.Handle(context.Background(), Request{Message: "我头疼"})
	require.NoError(t, err)
	assertExclusive(t, resp)

	assert.True(t, resp.NeedsClarification)
	assert.NotNil(t, resp.Evidences)
	assert.Zero(t, h.retriever.calls())
	assert.Zero(t, h.gen.calls)

	sess, err := h.store.Get(context.Background(), resp.SessionID)
	require.NoError(t, err)
	assert.True(t, sess.PendingClarification)
	assert.Equal(t, "我头疼", sess.PendingQuery)
	require.Len(t, sess.History, 2)
	assert.Equal(t, *resp.ClarificationQuestion, sess.History[1].Content)

	assert.Equal(t, events.OutcomeClarification, h.pub.last().Outcome)
	assert.Equal(t, "headache", h.pub.last().Category)
	h.logs.AssertNoText(t, "我头疼")
}

func TestHandle_ClarificationAnswerProceeds(t *testing.T) {
	for _, flag := range []bool{true, false} {
		t.Run(fmt.Sprintf("flag=%v", flag), func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()

			first, err := h.orch.Handle(ctx, Request{Message: "我头疼"})
			require.NoError(t, err)
			require.True(t, first.NeedsClarification)

			resp, err := h.orch.Handle(ctx, Request{
				SessionID:               first.SessionID,
				Message:                 "左侧太阳穴，持续三天，光照加重",
				IsClarificationResponse: flag,
			})
			require.NoError(t, err)
			assertExclusive(t, resp)
			assert.False(t, resp.NeedsClarification)
			assert.Equal(t, first.SessionID, resp.SessionID)

			require.Equal(t, 1, h.retriever.calls())
			assert.Equal(t, "我头疼。补充信息：左侧太阳穴，持续三天，光照加重", h.retriever.queries[0])

			sess, err := h.store.Get(ctx, resp.SessionID)
			require.NoError(t, err)
			require.Len(t, sess.History, 4)
			assert.Equal(t, "我头疼", sess.History[0].Content)
			assert.Equal(t, *first.ClarificationQuestion, sess.History[1].Content)
			assert.Equal(t, "左侧太阳穴，持续三天，光照加重", sess.History[2].Content)
			assert.Equal(t, *resp.Answer, sess.History[3].Content)
			assert.False(t, sess.PendingClarification)
			assert.Empty(t, sess.PendingQuery)
			assert.True(t, h.pub.last().Rewritten)
		})
	}
}

func TestHandle_RetrieverTimeoutApologises(t *testing.T) {
	slow := &slowStore{delay: time.Second}
	h := newHarness(t, func(d *Deps) {
		d.Retriever = retrieval.New(slow, retrieval.Config{Timeout: 20 * time.Millisecond}, nil)
	})

	start := time.Now()
	resp, err := h.orch.Handle(context.Background(), Request{Message: "高血压患者的饮食建议"})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	assertExclusive(t, resp)
	assert.Equal(t, compose.Apology, *resp.Answer)
	assert.NotEmpty(t, resp.Disclaimer)
	assert.NotNil(t, resp.Evidences)
	assert.Empty(t, resp.Evidences)
	assert.Zero(t, h.gen.calls)

	sess, err := h.store.Get(context.Background(), resp.SessionID)
	require.NoError(t, err)
	assert.Len(t, sess.History, 2)
	assert.Equal(t, events.OutcomeApology, h.pub.last().Outcome)
	h.logs.AssertLogged(t, zapcore.WarnLevel, "retrieval unavailable, continuing without evidence")
}

func TestHandle_GenerationFailureKeepsHistory(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.orch.Handle(ctx, Request{Message: "我头疼"})
	require.NoError(t, err)

	h.gen.err = errors.New("quota exceeded")
	_, err = h.orch.Handle(ctx, Request{SessionID: first.SessionID, Message: "左侧太阳穴，持续三天", IsClarificationResponse: true})
	require.Error(t, err)

	var de *Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, KindGenerationUnavailable, de.Kind)
	assert.NotEmpty(t, de.Detail)
	assert.ErrorIs(t, err, compose.ErrGenerationUnavailable)

	sess, err := h.store.Get(ctx, first.SessionID)
	require.NoError(t, err)
	assert.Len(t, sess.History, 2)
	assert.True(t, sess.PendingClarification, "retry must still be treated as the clarification answer")

	h.gen.err = nil
	resp, err := h.orch.Handle(ctx, Request{SessionID: first.SessionID, Message: "左侧太阳穴，持续三天", IsClarificationResponse: true})
	require.NoError(t, err)
	assert.NotNil(t, resp.Answer)
}

func TestHandle_InvalidRequests(t *testing.T) {
	h := newHarness(t)
	long := make([]rune, conversation.MaxContentRunes+1)
	for i := range long {
		long[i] = '字'
	}

	tests := []struct {
		name string
		req  Request
	}{
		{"empty message", Request{Message: "   "}},
		{"too long", Request{Message: string(long)}},
		{"oversized session id", Request{SessionID: string(make([]byte, session.MaxIDLength+1)), Message: "hi"}},
		{"bad history", Request{Message: "高血压患者的饮食建议", ConversationHistory: conversation.History{{Role: "system", Content: "x"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.orch.Handle(context.Background(), tt.req)
			assert.Equal(t, KindInvalidRequest, KindOf(err))
		})
	}
}

func TestHandle_SeedsNewSessionFromClientHistory(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seed := conversation.History{conversation.User("最近一周一直睡不好"), conversation.Assistant("建议规律作息。")}

	resp, err := h.orch.Handle(ctx, Request{SessionID: "client-1", Message: "现在头痛得厉害", ConversationHistory: seed})
	require.NoError(t, err)
	assert.False(t, resp.NeedsClarification, "seeded history satisfies the duration slot")

	sess, err := h.store.Get(ctx, "client-1")
	require.NoError(t, err)
	assert.Len(t, sess.History, 4)

	// Stored history wins once the session exists.
	_, err = h.orch.Handle(ctx, Request{SessionID: "client-1", Message: "高血压患者的饮食建议", ConversationHistory: seed[:1]})
	require.NoError(t, err)
	sess, err = h.store.Get(ctx, "client-1")
	require.NoError(t, err)
	assert.Len(t, sess.History, 6)
}

func TestHandle_SessionBusy(t *testing.T) {
	h := newHarness(t)
	unlock, err := h.locker.Lock(context.Background(), "busy")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = h.orch.Handle(ctx, Request{SessionID: "busy", Message: "高血压患者的饮食建议"})
	assert.Equal(t, KindSessionBusy, KindOf(err))
}

func TestHandle_SessionStoreUnavailable(t *testing.T) {
	h := newHarness(t, func(d *Deps) { d.Store = failingStore{} })
	_, err := h.orch.Handle(context.Background(), Request{SessionID: "s1", Message: "高血压患者的饮食建议"})
	assert.Equal(t, KindSessionUnavailable, KindOf(err))
}

type brokenLocker struct{}

func (brokenLocker) Lock(context.Context, string) (func(), error) {
	return nil, fmt.Errorf("%w: setnx: connection refused", session.ErrUnavailable)
}

func TestHandle_LockBackendUnavailable(t *testing.T) {
	h := newHarness(t, func(d *Deps) { d.Locker = brokenLocker{} })
	_, err := h.orch.Handle(context.Background(), Request{SessionID: "s1", Message: "高血压患者的饮食建议"})
	assert.Equal(t, KindSessionUnavailable, KindOf(err))
}

func TestHandle_RecoversPanics(t *testing.T) {
	h := newHarness(t)
	h.retriever.panics = true

	resp, err := h.orch.Handle(context.Background(), Request{Message: "高血压患者的饮食建议"})
	assert.Nil(t, resp)
	assert.Equal(t, KindInternal, KindOf(err))
	h.logs.AssertLogged(t, zapcore.ErrorLevel, "panic in dialogue turn")

	// The lock was released.
	h.retriever.panics = false
	_, err = h.orch.Handle(context.Background(), Request{Message: "高血压患者的饮食建议"})
	assert.NoError(t, err)
}

type alwaysClarify struct{}

func (alwaysClarify) Decide(context.Context, string, conversation.History, bool) clarify.Decision {
	return clarify.Decision{NeedsClarification: true, Question: "again?", Category: "loop"}
}

func TestHandle_NeverClarifiesTwice(t *testing.T) {
	h := newHarness(t, func(d *Deps) { d.Policy = alwaysClarify{} })
	ctx := context.Background()

	first, err := h.orch.Handle(ctx, Request{Message: "anything"})
	require.NoError(t, err)
	require.True(t, first.NeedsClarification)

	second, err := h.orch.Handle(ctx, Request{SessionID: first.SessionID, Message: "more detail"})
	require.NoError(t, err)
	assert.False(t, second.NeedsClarification)
	assert.NotNil(t, second.Answer)
	h.logs.AssertLogged(t, zapcore.ErrorLevel, "clarification policy asked twice for one query; proceeding")
}

func TestHandle_SerialisesSameSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	const n = 8

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.orch.Handle(ctx, Request{SessionID: "shared", Message: "高血压患者的饮食建议"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	sess, err := h.store.Get(ctx, "shared")
	require.NoError(t, err)
	require.Len(t, sess.History, 2*n)
	for i, turn := range sess.History {
		if i%2 == 0 {
			assert.Equal(t, conversation.RoleUser, turn.Role)
		} else {
			assert.Equal(t, conversation.RoleAssistant, turn.Role)
		}
	}
}

func TestResponse_JSONShape(t *testing.T) {
	h := newHarness(t)
	resp, err := h.orch.Handle(context.Background(), Request{Message: "我头疼"})
	require.NoError(t, err)

	data, err := json.Marshal(resp)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Nil(t, m["answer"])
	assert.Equal(t, []any{}, m["evidences"])
	assert.Equal(t, true, m["needs_clarification"])
	assert.NotEmpty(t, m["disclaimer"])
}

func TestNew_RequiresDeps(t *testing.T) {
	_, err := New(Deps{}, Config{})
	assert.ErrorContains(t, err, "policy")
}

type slowStore struct {
	delay time.Duration
}

func (s *slowStore) AddDocuments(context.Context, []vectorstore.Document) ([]string, error) {
	return nil, nil
}

func (s *slowStore) Search(ctx context.Context, _ string, _ int) ([]vectorstore.SearchResult, error) {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
	}
	return nil, ctx.Err()
}

func (s *slowStore) Count(context.Context) (int, error) { return 0, nil }
func (s *slowStore) Close() error                       { return nil }
