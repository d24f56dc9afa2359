package http

import (
	"context"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const httpInstrumentationName = "github.com/fyrsmithlabs/healthqa/internal/http"

// unmatchedRoute labels requests that hit no registered route, so scans
// of arbitrary paths cannot blow up label cardinality.
const unmatchedRoute = "unmatched"

// HTTPMetrics records request and chat-turn metrics.
type HTTPMetrics struct {
	meter    metric.Meter
	logger   *zap.Logger
	requests metric.Int64Counter
	latency  metric.Float64Histogram
	inflight metric.Int64UpDownCounter
	turns    metric.Int64Counter
}

// NewHTTPMetrics creates metrics on the global meter provider.
func NewHTTPMetrics(logger *zap.Logger) *HTTPMetrics {
	return newHTTPMetrics(otel.Meter(httpInstrumentationName), logger)
}

func newHTTPMetrics(meter metric.Meter, logger *zap.Logger) *HTTPMetrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &HTTPMetrics{meter: meter, logger: logger}

	var err error
	m.requests, err = meter.Int64Counter(
		"healthqa.http.requests_total",
		metric.WithDescription("HTTP requests by method, route and status class"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		logger.Warn("failed to create requests counter", zap.Error(err))
	}

	// Chat requests include generation, so buckets reach 60s.
	m.latency, err = meter.Float64Histogram(
		"healthqa.http.request_duration_seconds",
		metric.WithDescription("HTTP request latency by method and route"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 20, 30, 60),
	)
	if err != nil {
		logger.Warn("failed to create latency histogram", zap.Error(err))
	}

	m.inflight, err = meter.Int64UpDownCounter(
		"healthqa.http.inflight_requests",
		metric.WithDescription("Requests currently being served"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		logger.Warn("failed to create inflight gauge", zap.Error(err))
	}

	m.turns, err = meter.Int64Counter(
		"healthqa.http.chat_turns_total",
		metric.WithDescription("Chat turns served over HTTP by result: clarification, answer or the error kind"),
		metric.WithUnit("{turn}"),
	)
	if err != nil {
		logger.Warn("failed to create chat turns counter", zap.Error(err))
	}
	return m
}

// MetricsMiddleware returns an Echo middleware that records request metrics.
func (m *HTTPMetrics) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			ctx := req.Context()

			if m.inflight != nil {
				m.inflight.Add(ctx, 1)
				defer m.inflight.Add(ctx, -1)
			}

			err := next(c)
			if err != nil {
				// The status is only known once the error handler ran.
				c.Error(err)
				err = nil
			}

			route := routeLabel(c.Path())
			if m.requests != nil {
				m.requests.Add(ctx, 1, metric.WithAttributes(
					attribute.String("method", req.Method),
					attribute.String("route", route),
					attribute.String("status_class", statusClass(c.Response().Status)),
				))
			}
			if m.latency != nil {
				m.latency.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
					attribute.String("method", req.Method),
					attribute.String("route", route),
				))
			}
			return err
		}
	}
}

// RecordTurn counts one chat turn by result.
func (m *HTTPMetrics) RecordTurn(ctx context.Context, result string) {
	if m == nil || m.turns == nil {
		return
	}
	m.turns.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func routeLabel(path string) string {
	if path == "" {
		return unmatchedRoute
	}
	return path
}

// statusClass buckets codes as "2xx", "4xx" and so on.
func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "unknown"
	}
	return strconv.Itoa(code/100) + "xx"
}
