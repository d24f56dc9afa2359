package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/healthqa/internal/clarify"
	"github.com/fyrsmithlabs/healthqa/internal/compose"
	"github.com/fyrsmithlabs/healthqa/internal/config"
	"github.com/fyrsmithlabs/healthqa/internal/dialogue"
	"github.com/fyrsmithlabs/healthqa/internal/embeddings"
	"github.com/fyrsmithlabs/healthqa/internal/events"
	"github.com/fyrsmithlabs/healthqa/internal/evidence"
	"github.com/fyrsmithlabs/healthqa/internal/generation"
	"github.com/fyrsmithlabs/healthqa/internal/logging"
	"github.com/fyrsmithlabs/healthqa/internal/retrieval"
	"github.com/fyrsmithlabs/healthqa/internal/session"
	"github.com/fyrsmithlabs/healthqa/internal/telemetry"
	"github.com/fyrsmithlabs/healthqa/internal/vectorstore"
)

// initLogger builds the service logger from the observability section.
// stderr keeps stdout free for protocol traffic.
func initLogger(o config.ObservabilityConfig, stderr bool) (*logging.Logger, error) {
	lc := logging.NewDefaultConfig()
	level, err := logging.ParseLevel(o.LogLevel)
	if err != nil {
		return nil, err
	}
	lc.Level = level
	lc.Format = o.LogFormat
	lc.Stderr = stderr
	if o.ServiceName != "" {
		lc.Fields["service"] = o.ServiceName
	}
	return logging.NewLogger(lc, nil)
}

// knowledgeBase is the embedder and index pair shared by serve and kb import.
type knowledgeBase struct {
	embedder embeddings.Provider
	store    vectorstore.Store
}

func openKnowledgeBase(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*knowledgeBase, error) {
	embedder, err := embeddings.NewProvider(cfg.Embeddings, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding provider: %w", err)
	}
	store, err := vectorstore.NewStore(ctx, cfg.VectorStore, embedder, embedder.Dimension(), logger)
	if err != nil {
		_ = embedder.Close()
		return nil, fmt.Errorf("failed to open knowledge base: %w", err)
	}
	return &knowledgeBase{embedder: embedder, store: store}, nil
}

func (kb *knowledgeBase) Close() error {
	return errors.Join(kb.store.Close(), kb.embedder.Close())
}

// dependencies holds all infrastructure dependencies.
type dependencies struct {
	logger    *logging.Logger
	telemetry *telemetry.Telemetry
	kb        *knowledgeBase
	sessions  session.Store
	publisher events.Publisher
	watcher   *evidence.RulesWatcher
}

// Close releases all infrastructure resources.
func (d *dependencies) Close(ctx context.Context) {
	zl := d.logger.Underlying()
	if d.watcher != nil {
		_ = d.watcher.Close()
	}
	if d.publisher != nil {
		if err := d.publisher.Close(); err != nil {
			zl.Warn("closing event publisher", zap.Error(err))
		}
	}
	if d.sessions != nil {
		if err := d.sessions.Close(); err != nil {
			zl.Warn("closing session store", zap.Error(err))
		}
	}
	if d.kb != nil {
		if err := d.kb.Close(); err != nil {
			zl.Warn("closing knowledge base", zap.Error(err))
		}
	}
	if d.telemetry != nil {
		if err := d.telemetry.Shutdown(ctx); err != nil {
			zl.Warn("telemetry shutdown", zap.Error(err))
		}
	}
	_ = d.logger.Sync()
}

// services holds the components the transports call into.
type services struct {
	grader       *evidence.Grader
	orchestrator *dialogue.Orchestrator
}

// initDependencies connects to infrastructure:
//  1. Telemetry providers
//  2. Embedding provider and knowledge-base index
//  3. Session store
//  4. Event publisher (NATS when enabled)
func initDependencies(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*dependencies, error) {
	zl := logger.Underlying()
	deps := &dependencies{logger: logger}

	tel, err := telemetry.New(ctx, telemetry.FromServiceConfig(cfg.Observability, version))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	deps.telemetry = tel
	if h := tel.Health(); h.Degraded {
		zl.Warn("telemetry degraded, continuing without export", zap.String("error", h.Error))
	}

	kb, err := openKnowledgeBase(ctx, cfg, zl)
	if err != nil {
		deps.Close(ctx)
		return nil, err
	}
	deps.kb = kb

	sessions, err := session.NewStore(ctx, cfg.Session, zl)
	if err != nil {
		deps.Close(ctx)
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}
	deps.sessions = sessions

	if cfg.Events.Enabled {
		pub, err := events.Connect(cfg.Events.URL, cfg.Events.Subject, zl)
		if err != nil {
			deps.Close(ctx)
			return nil, err
		}
		deps.publisher = pub
		zl.Info("publishing turn events", zap.String("url", cfg.Events.URL))
	} else {
		deps.publisher = events.Nop{}
	}

	return deps, nil
}

// initServices wires grading, clarification, composition and the
// orchestrator. A rules watcher is started on ctx when configured.
func initServices(ctx context.Context, cfg *config.Config, deps *dependencies) (*services, error) {
	zl := deps.logger.Underlying()

	rules := evidence.DefaultRules()
	if cfg.Grading.RulesFile != "" {
		r, err := evidence.LoadRules(cfg.Grading.RulesFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load grading rules: %w", err)
		}
		rules = r
	}
	grader := evidence.NewGrader(rules)

	if cfg.Grading.RulesFile != "" && cfg.Grading.Watch {
		w, err := evidence.NewRulesWatcher(cfg.Grading.RulesFile, grader, zl.Named("rules"))
		if err != nil {
			return nil, fmt.Errorf("failed to watch grading rules: %w", err)
		}
		deps.watcher = w
		go w.Run(ctx)
	}

	gen, err := generation.NewOpenAIGenerator(cfg.Generation, zl.Named("generation"))
	if err != nil {
		return nil, fmt.Errorf("failed to create generator: %w", err)
	}

	policyOpts := []clarify.Option{
		clarify.WithHistoryWindow(cfg.Clarify.HistoryWindow),
		clarify.WithShortMessageRunes(cfg.Clarify.ShortMessageRunes),
		clarify.WithLogger(zl.Named("clarify")),
	}
	if cfg.Clarify.Classifier {
		policyOpts = append(policyOpts,
			clarify.WithClassifier(clarify.NewLLMClassifier(gen), cfg.Clarify.ClassifierTimeout.Duration()))
	}

	orch, err := dialogue.New(dialogue.Deps{
		Policy: clarify.NewPolicy(policyOpts...),
		Retriever: retrieval.New(deps.kb.store, retrieval.Config{
			Timeout:  cfg.Retrieval.Timeout.Duration(),
			MinScore: cfg.Retrieval.MinScore,
		}, zl.Named("retrieval")),
		Grader: grader,
		Composer: compose.New(gen, compose.Config{
			Timeout:               cfg.Generation.Timeout.Duration(),
			HistoryTurns:          cfg.Generation.HistoryTurns,
			AnswerWithoutEvidence: cfg.Generation.AnswerWithoutEvidence,
		}, zl.Named("compose")),
		Store:          deps.sessions,
		Locker:         session.NewLockerFor(deps.sessions, cfg.Session.LockTTL.Duration(), zl.Named("session")),
		Publisher:      deps.publisher,
		Logger:         deps.logger,
		TracerProvider: deps.telemetry.TracerProvider(),
	}, dialogue.Config{
		TopK:            cfg.Retrieval.TopK,
		MaxHistoryTurns: cfg.Session.MaxHistoryTurns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}

	return &services{grader: grader, orchestrator: orch}, nil
}
