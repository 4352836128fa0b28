package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextAccessors(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RunID(ctx))
	assert.Empty(t, SuiteID(ctx))
	assert.Empty(t, ScriptID(ctx))

	ctx = WithRunID(ctx, "run-1")
	ctx = WithSuiteID(ctx, "suite-2")
	ctx = WithScriptID(ctx, "sequence-3")

	assert.Equal(t, "run-1", RunID(ctx))
	assert.Equal(t, "suite-2", SuiteID(ctx))
	assert.Equal(t, "sequence-3", ScriptID(ctx))
}

func TestCorrelationHandlerInjectsIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewJSONHandler(&buf, nil)))

	ctx := WithScriptID(WithSuiteID(WithRunID(context.Background(), "run-1"), "suite-2"), "sequence-3")
	logger.InfoContext(ctx, "script finished", slog.String("runtime", "python"))

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "run-1", record["run_id"])
	assert.Equal(t, "suite-2", record["suite_id"])
	assert.Equal(t, "sequence-3", record["script_id"])
	assert.Equal(t, "python", record["runtime"])
}

func TestCorrelationHandlerBareContext(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewJSONHandler(&buf, nil)))

	logger.InfoContext(context.Background(), "no correlation")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.NotContains(t, record, "run_id")
	assert.NotContains(t, record, "suite_id")
	assert.NotContains(t, record, "script_id")
}

func TestCorrelationHandlerWithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewJSONHandler(&buf, nil))).
		With(slog.String("component", "executor")).
		WithGroup("details")

	logger.InfoContext(WithRunID(context.Background(), "run-1"), "msg", slog.Int("count", 2))

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "executor", record["component"])
	details, ok := record["details"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(2), details["count"])
}
