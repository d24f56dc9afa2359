package mcp

import (
	"context"
	"errors"
	"time"

	"github.com/fyrsmithlabs/healthqa/internal/dialogue"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/healthqa/internal/mcp"

// Metrics records MCP tool calls.
type Metrics struct {
	calls    metric.Int64Counter
	duration metric.Float64Histogram
	inflight metric.Int64UpDownCounter
}

// NewMetrics creates metrics on the global meter provider.
func NewMetrics(logger *zap.Logger) *Metrics {
	return newMetrics(otel.Meter(instrumentationName), logger)
}

func newMetrics(meter metric.Meter, logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Metrics{}

	var err error
	m.calls, err = meter.Int64Counter(
		"healthqa.mcp.tool.calls_total",
		metric.WithDescription("MCP tool calls by tool and result"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		logger.Warn("failed to create calls counter", zap.Error(err))
	}

	m.duration, err = meter.Float64Histogram(
		"healthqa.mcp.tool.duration_seconds",
		metric.WithDescription("MCP tool call duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 20, 30, 60),
	)
	if err != nil {
		logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	m.inflight, err = meter.Int64UpDownCounter(
		"healthqa.mcp.tool.inflight",
		metric.WithDescription("MCP tool calls currently running"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		logger.Warn("failed to create inflight gauge", zap.Error(err))
	}
	return m
}

// Start marks a call to tool as running. The returned func must be called
// once with the call's result label, or with the error it failed with.
func (m *Metrics) Start(ctx context.Context, tool string) func(result string, err error) {
	start := time.Now()
	toolAttr := attribute.String("tool", tool)
	if m.inflight != nil {
		m.inflight.Add(ctx, 1, metric.WithAttributes(toolAttr))
	}
	return func(result string, err error) {
		if m.inflight != nil {
			m.inflight.Add(ctx, -1, metric.WithAttributes(toolAttr))
		}
		if err != nil {
			result = errorResult(err)
		}
		if m.calls != nil {
			m.calls.Add(ctx, 1, metric.WithAttributes(toolAttr, attribute.String("result", result)))
		}
		if m.duration != nil {
			m.duration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(toolAttr))
		}
	}
}

// errorResult maps err to a low-cardinality label.
func errorResult(err error) string {
	var de *dialogue.Error
	switch {
	case errors.As(err, &de):
		return string(de.Kind)
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return string(dialogue.KindInternal)
	}
}
