// Package http provides the HTTP API for healthqa.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/fyrsmithlabs/healthqa/internal/dialogue"
	"github.com/fyrsmithlabs/healthqa/internal/evidence"
	"github.com/fyrsmithlabs/healthqa/internal/logging"
	"github.com/fyrsmithlabs/healthqa/internal/telemetry"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// maxBodyBytes bounds chat request bodies, history included.
const maxBodyBytes = "1M"

// ChatHandler handles one chat turn.
type ChatHandler interface {
	Handle(ctx context.Context, req dialogue.Request) (*dialogue.Response, error)
}

// RulesSource exposes the active grading rules.
type RulesSource interface {
	Rules() *evidence.Rules
}

// Counter reports the number of indexed passages.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// Server provides HTTP endpoints for healthqa.
type Server struct {
	echo      *echo.Echo
	chat      ChatHandler
	rules     RulesSource
	kb        Counter
	telemetry *telemetry.Telemetry
	metrics   *HTTPMetrics
	logger    *zap.Logger
	config    *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
	// CORSOrigins defaults to all origins.
	CORSOrigins []string
	Version     string
}

// Option configures optional Server collaborators.
type Option func(*Server)

// WithKnowledgeBase reports the index size on /api/status.
func WithKnowledgeBase(kb Counter) Option { return func(s *Server) { s.kb = kb } }

// WithTelemetry reports exporter health on /api/status.
func WithTelemetry(t *telemetry.Telemetry) Option { return func(s *Server) { s.telemetry = t } }

// NewServer creates a new HTTP server.
func NewServer(chat ChatHandler, rules RulesSource, logger *zap.Logger, cfg *Config, opts ...Option) (*Server, error) {
	if chat == nil {
		return nil, fmt.Errorf("chat handler cannot be nil")
	}
	if rules == nil {
		return nil, fmt.Errorf("rules source cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8000,
		}
	}
	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(logger)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization, echo.HeaderXRequestID},
	}))
	metrics := NewHTTPMetrics(logger)
	e.Use(metrics.MetricsMiddleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			rid := c.Response().Header().Get(echo.HeaderXRequestID)
			req := c.Request()
			c.SetRequest(req.WithContext(logging.WithRequestID(req.Context(), rid)))

			err := next(c)
			if err != nil {
				c.Error(err)
				err = nil
			}

			logger.Info("http request",
				zap.String("method", req.Method),
				zap.String("path", c.Path()),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", rid),
			)

			return err
		}
	})

	s := &Server{
		echo:    e,
		chat:    chat,
		rules:   rules,
		metrics: metrics,
		logger:  logger,
		config:  cfg,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/", s.handleRoot)
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := s.echo.Group("/api")
	api.POST("/chat", s.handleChat, middleware.BodyLimit(maxBodyBytes))
	api.POST("/chat/simple", s.handleChatSimple)
	api.GET("/grading/levels", s.handleLevels)
	api.GET("/status", s.handleStatus)
}

func (s *Server) handleRoot(c echo.Context) error {
	return c.JSON(http.StatusOK, RootResponse{Message: "在线健康问答助手 API", Status: "ok"})
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "healthy"})
}

// handleChat runs one chat turn.
func (s *Server) handleChat(c echo.Context) error {
	var req dialogue.Request
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid chat request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "请求格式无效。")
	}
	return s.chatTurn(c, req)
}

// handleChatSimple takes the message and session id as query parameters.
func (s *Server) handleChatSimple(c echo.Context) error {
	return s.chatTurn(c, dialogue.Request{
		SessionID: c.QueryParam("session_id"),
		Message:   c.QueryParam("message"),
	})
}

func (s *Server) chatTurn(c echo.Context, req dialogue.Request) error {
	ctx := c.Request().Context()
	resp, err := s.chat.Handle(ctx, req)
	if err != nil {
		s.metrics.RecordTurn(ctx, string(dialogue.KindOf(err)))
		return err
	}
	result := "answer"
	if resp.NeedsClarification {
		result = "clarification"
	}
	s.metrics.RecordTurn(ctx, result)
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleLevels(c echo.Context) error {
	return c.JSON(http.StatusOK, LevelsResponse{Levels: s.rules.Rules().Levels})
}

func (s *Server) handleStatus(c echo.Context) error {
	resp := StatusResponse{
		Status:        "ok",
		Version:       s.config.Version,
		KnowledgeBase: KnowledgeBaseStatus{Documents: -1},
	}
	if s.kb != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if n, err := s.kb.Count(ctx); err == nil {
			resp.KnowledgeBase.Documents = n
		} else {
			s.logger.Warn("counting knowledge base failed", zap.Error(err))
			resp.Status = "degraded"
		}
	}
	if s.telemetry != nil {
		h := s.telemetry.Health()
		resp.Telemetry = &h
	}
	return c.JSON(http.StatusOK, resp)
}

// statusFor maps dialogue error kinds to HTTP status codes.
func statusFor(kind dialogue.Kind) int {
	switch kind {
	case dialogue.KindInvalidRequest:
		return http.StatusBadRequest
	case dialogue.KindSessionBusy:
		return http.StatusConflict
	case dialogue.KindSessionUnavailable, dialogue.KindGenerationUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorHandler renders every error as {"detail": "..."}.
func errorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		detail := "服务器内部错误，请稍后重试。"

		var de *dialogue.Error
		var he *echo.HTTPError
		switch {
		case errors.As(err, &de):
			status = statusFor(de.Kind)
			detail = de.Detail
			if status >= http.StatusInternalServerError {
				logger.Error("chat turn failed", zap.String("kind", string(de.Kind)), zap.Error(err))
			}
		case errors.As(err, &he):
			status = he.Code
			if msg, ok := he.Message.(string); ok {
				detail = msg
			} else {
				detail = http.StatusText(status)
			}
		default:
			logger.Error("unhandled error", zap.Error(err))
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, ErrorResponse{Detail: detail})
		}
		if err != nil {
			logger.Warn("writing error response failed", zap.Error(err))
		}
	}
}

// Handler returns the underlying http.Handler.
func (s *Server) Handler() http.Handler { return s.echo }

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := s.config.Host + ":" + strconv.Itoa(s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
