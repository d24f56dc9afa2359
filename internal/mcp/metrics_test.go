package mcp

import (
	"context"
	"fmt"
	"testing"

	"github.com/fyrsmithlabs/healthqa/internal/dialogue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestMetrics_Start(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m := newMetrics(mp.Meter(instrumentationName), nil)

	ctx := context.Background()
	m.Start(ctx, "health_ask")("clarification", nil)
	m.Start(ctx, "health_ask")("answer", nil)
	m.Start(ctx, "health_ask")("answer", &toolError{de: &dialogue.Error{Kind: dialogue.KindSessionBusy}})
	m.Start(ctx, "grading_levels")("levels", nil)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	calls := map[string]int64{}
	var inflight int64
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			switch md.Name {
			case "healthqa.mcp.tool.calls_total":
				for _, dp := range md.Data.(metricdata.Sum[int64]).DataPoints {
					tool, _ := dp.Attributes.Value(attribute.Key("tool"))
					result, _ := dp.Attributes.Value(attribute.Key("result"))
					calls[tool.AsString()+"/"+result.AsString()] += dp.Value
				}
			case "healthqa.mcp.tool.inflight":
				for _, dp := range md.Data.(metricdata.Sum[int64]).DataPoints {
					inflight += dp.Value
				}
			}
		}
	}

	assert.Equal(t, map[string]int64{
		"health_ask/clarification": 1,
		"health_ask/answer":        1,
		"health_ask/session_busy":  1,
		"grading_levels/levels":    1,
	}, calls)
	assert.Zero(t, inflight, "every started call finished")
}

func TestErrorResult(t *testing.T) {
	assert.Equal(t, "generation_unavailable", errorResult(&dialogue.Error{Kind: dialogue.KindGenerationUnavailable}))
	assert.Equal(t, "session_busy", errorResult(fmt.Errorf("wrapped: %w", &dialogue.Error{Kind: dialogue.KindSessionBusy})))
	assert.Equal(t, "timeout", errorResult(fmt.Errorf("call: %w", context.DeadlineExceeded)))
	assert.Equal(t, "canceled", errorResult(context.Canceled))
	assert.Equal(t, "internal", errorResult(assert.AnError))
}

func TestToolError(t *testing.T) {
	de := &dialogue.Error{Kind: dialogue.KindInvalidRequest, Detail: "消息内容不能为空。", Err: assert.AnError}
	err := error(&toolError{de: de})

	assert.Equal(t, "消息内容不能为空。", err.Error())
	assert.Equal(t, dialogue.KindInvalidRequest, dialogue.KindOf(err))
}
