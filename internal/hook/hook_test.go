package hook

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hmans/entityql/internal/apperr"
	"github.com/hmans/entityql/internal/logger"
	"github.com/hmans/entityql/internal/metrics"
	"github.com/hmans/entityql/internal/storage"
)

func observed() (*logger.ZapLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return &logger.ZapLogger{Logger: zap.New(core)}, logs
}

func TestAuthorize(t *testing.T) {
	ctx := context.Background()

	t.Run("unset allows", func(t *testing.T) {
		g := NewGateway(Hooks{}, nil)
		assert.True(t, g.Authorize(ctx, Before, Create, "Person", nil))
	})

	t.Run("passes arguments", func(t *testing.T) {
		var got []any
		g := NewGateway(Hooks{Authorizer: func(_ context.Context, m Moment, op Operation, typ string, e *storage.Entity) (bool, error) {
			got = []any{m, op, typ, e}
			return true, nil
		}}, nil)
		e := &storage.Entity{Type: "Person", Values: map[string]any{"id": "p1"}}
		assert.True(t, g.Authorize(ctx, After, Update, "Person", e))
		assert.Equal(t, []any{After, Update, "Person", e}, got)
	})

	t.Run("deny is counted", func(t *testing.T) {
		counter := metrics.AuthorizationDenialsCounter.WithLabelValues("Robot", "delete", "before")
		before := testutil.ToFloat64(counter)
		g := NewGateway(Hooks{Authorizer: func(context.Context, Moment, Operation, string, *storage.Entity) (bool, error) {
			return false, nil
		}}, nil)
		assert.False(t, g.Authorize(ctx, Before, Delete, "Robot", nil))
		assert.Equal(t, before+1, testutil.ToFloat64(counter))
	})

	t.Run("error denies", func(t *testing.T) {
		log, logs := observed()
		g := NewGateway(Hooks{Authorizer: func(context.Context, Moment, Operation, string, *storage.Entity) (bool, error) {
			return true, errors.New("boom")
		}}, log)
		assert.False(t, g.Authorize(ctx, Before, Create, "Person", nil))
		assert.Equal(t, 1, logs.FilterMessage("authorizer failed").Len())
	})

	t.Run("panic denies", func(t *testing.T) {
		log, logs := observed()
		g := NewGateway(Hooks{Authorizer: func(context.Context, Moment, Operation, string, *storage.Entity) (bool, error) {
			panic("boom")
		}}, log)
		assert.False(t, g.Authorize(ctx, Before, Create, "Person", nil))
		assert.Equal(t, 1, logs.FilterMessage("authorizer panicked").Len())
	})
}

func TestValidate(t *testing.T) {
	ctx := context.Background()
	attrs := map[string]any{"name": "Ada"}

	tests := []struct {
		name      string
		validator Validator
		wantErr   bool
	}{
		{"unset", nil, false},
		{"valid", func(context.Context, string, map[string]any) (bool, error) { return true, nil }, false},
		{"invalid", func(context.Context, string, map[string]any) (bool, error) { return false, nil }, true},
		{"error", func(context.Context, string, map[string]any) (bool, error) { return true, errors.New("bad") }, true},
		{"panic", func(context.Context, string, map[string]any) (bool, error) { panic("bad") }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewGateway(Hooks{Validator: tt.validator}, nil).Validate(ctx, "Person", attrs)
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, apperr.ErrValidation)
			assert.Contains(t, err.Error(), "Person")
		})
	}
}

func TestTrace(t *testing.T) {
	ctx := context.Background()
	ev := TraceEvent{Op: Read, Arity: One, Via: Direct, Type: "Tracer", IDs: []string{"p1"}, Fields: []string{"name"}}

	t.Run("delivers and counts", func(t *testing.T) {
		counter := metrics.OperationsCounter.WithLabelValues("Tracer", "read", "one")
		before := testutil.ToFloat64(counter)
		var got TraceEvent
		g := NewGateway(Hooks{Tracer: func(_ context.Context, e TraceEvent) error {
			got = e
			return nil
		}}, nil)
		g.Trace(ctx, ev)
		assert.Equal(t, ev, got)
		assert.Equal(t, before+1, testutil.ToFloat64(counter))
	})

	t.Run("failures are swallowed", func(t *testing.T) {
		log, logs := observed()
		NewGateway(Hooks{Tracer: func(context.Context, TraceEvent) error { return errors.New("down") }}, log).Trace(ctx, ev)
		NewGateway(Hooks{Tracer: func(context.Context, TraceEvent) error { panic("down") }}, log).Trace(ctx, ev)
		assert.Equal(t, 1, logs.FilterMessage("tracer failed").Len())
		assert.Equal(t, 1, logs.FilterMessage("tracer panicked").Len())
	})

	t.Run("log tracer", func(t *testing.T) {
		log, logs := observed()
		NewGateway(Hooks{Tracer: LogTracer(log)}, nil).Trace(ctx, ev)
		require.Equal(t, 1, logs.FilterMessage("access").Len())
		assert.Equal(t, "Tracer", logs.All()[0].ContextMap()["type"])
	})
}

func TestDeny(t *testing.T) {
	err := Deny(After, Create, "Person")
	require.ErrorIs(t, err, apperr.ErrAuthorization)
	assert.Equal(t, apperr.Code(err), "UNAUTHORIZED")
}
