package logger

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLogLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLogLevel("WARN"))
	assert.Equal(t, slog.LevelError, parseLogLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel("bogus"))
}

func TestToAttributesSkipsUnsupported(t *testing.T) {
	attrs := toAttributes([]any{"ticker", "AAPL", "turns", 9, "ok", true, 42, "x", "dangling"})
	require.Len(t, attrs, 3)
	assert.Equal(t, "ticker", string(attrs[0].Key))
	assert.Equal(t, int64(9), attrs[1].Value.AsInt64())
	assert.True(t, attrs[2].Value.AsBool())
}

func TestOperationTimerWithoutTracing(t *testing.T) {
	require.NoError(t, Init(LogConfig{Level: "ERROR", Format: "text"}))
	ctx := context.Background()
	op := StartOperation(ctx, "test.op", "ticker", "MSFT")
	assert.NotNil(t, op.Context())
	op.End("turns", 3)
	StartOperation(ctx, "test.fail").EndWithError(errors.New("boom"))
	Decision(ctx, "MSFT", "SELL", false, "buy", 1)
}
