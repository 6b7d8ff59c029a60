package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger(t *testing.T) {
	t.Run("none_level_is_noop", func(t *testing.T) {
		l, err := NewLogger("text", "none")
		require.NoError(t, err)
		l.Info("ignored")
	})

	t.Run("unknown_level", func(t *testing.T) {
		_, err := NewLogger("text", "chatty")
		require.ErrorContains(t, err, "unknown log level")
	})

	t.Run("unknown_format", func(t *testing.T) {
		_, err := NewLogger("xml", "info")
		require.ErrorContains(t, err, "unknown log format")
	})

	t.Run("json", func(t *testing.T) {
		l, err := NewLogger("json", "debug")
		require.NoError(t, err)
		require.NotNil(t, l.Logger)
	})
}

func TestContextFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := &ZapLogger{zap.New(core)}

	ctx := ContextWithRequestID(context.Background(), "req-1")
	l.InfoWithContext(ctx, "hello", zap.String("k", "v"))

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "v", fields["k"])
}
