// Package hook is the checkpoint the engine calls around entity operations:
// authorization before and after a change, attribute validation and access
// tracing.
package hook

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hmans/entityql/internal/apperr"
	"github.com/hmans/entityql/internal/logger"
	"github.com/hmans/entityql/internal/metrics"
	"github.com/hmans/entityql/internal/storage"
)

// Moment is when an authorization check runs relative to the change.
type Moment string

const (
	Before Moment = "before"
	After  Moment = "after"
)

// Operation is the operation being authorized.
type Operation string

const (
	Create Operation = "create"
	Read   Operation = "read"
	Update Operation = "update"
	Delete Operation = "delete"
)

// Arity of a traced access.
const (
	One  = "one"
	Many = "many"
)

// Via tells whether an entity was reached directly or through a relation.
const (
	Direct   = "direct"
	Relation = "relation"
)

// Authorizer decides whether op on an entity of typ may happen at moment.
// e is nil when no instance exists yet.
type Authorizer func(ctx context.Context, moment Moment, op Operation, typ string, e *storage.Entity) (bool, error)

// Validator decides whether attrs are acceptable attribute values for typ.
type Validator func(ctx context.Context, typ string, attrs map[string]any) (bool, error)

// Tracer observes completed accesses.
type Tracer func(ctx context.Context, ev TraceEvent) error

// TraceEvent describes one completed access.
type TraceEvent struct {
	Op     Operation `json:"op"`
	Arity  string    `json:"arity"`
	Via    string    `json:"via"`
	Type   string    `json:"type"`
	IDs    []string  `json:"ids"`
	Fields []string  `json:"fields"`
}

// Hooks are the optional callbacks of a Gateway.
type Hooks struct {
	Authorizer Authorizer
	Validator  Validator
	Tracer     Tracer
}

// Gateway invokes the hooks, shielding the engine from their failures.
type Gateway struct {
	hooks  Hooks
	logger logger.Logger
}

// NewGateway returns a gateway for h. Unset hooks allow everything and
// trace nothing.
func NewGateway(h Hooks, log logger.Logger) *Gateway {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	return &Gateway{hooks: h, logger: log}
}

// Authorize reports whether the authorizer allows op. An authorizer error
// or panic denies.
func (g *Gateway) Authorize(ctx context.Context, moment Moment, op Operation, typ string, e *storage.Entity) (ok bool) {
	if g.hooks.Authorizer == nil {
		return true
	}
	defer func() {
		if r := recover(); r != nil {
			g.logger.WarnWithContext(ctx, "authorizer panicked",
				zap.String("type", typ), zap.String("op", string(op)), zap.Any("panic", r))
			ok = false
		}
		if !ok {
			metrics.ObserveDenial(typ, string(op), string(moment))
		}
	}()

	allowed, err := g.hooks.Authorizer(ctx, moment, op, typ, e)
	if err != nil {
		g.logger.WarnWithContext(ctx, "authorizer failed",
			zap.String("type", typ), zap.String("op", string(op)), zap.Error(err))
		return false
	}
	return allowed
}

// Validate runs the validator over attrs. A rejection, error or panic
// yields a validation error.
func (g *Gateway) Validate(ctx context.Context, typ string, attrs map[string]any) (err error) {
	if g.hooks.Validator == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = apperr.Errorf(apperr.ErrValidation, "validation of %s attributes failed: %v", typ, r)
		}
	}()

	valid, verr := g.hooks.Validator(ctx, typ, attrs)
	if verr != nil {
		return apperr.Wrap(apperr.ErrValidation, verr, "validation of %s attributes failed", typ)
	}
	if !valid {
		return apperr.Errorf(apperr.ErrValidation, "validation of %s attributes failed", typ)
	}
	return nil
}

// Trace counts ev and hands it to the tracer. Tracer failures are logged
// and otherwise ignored.
func (g *Gateway) Trace(ctx context.Context, ev TraceEvent) {
	metrics.ObserveOperation(ev.Type, string(ev.Op), ev.Arity)
	if g.hooks.Tracer == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			g.logger.WarnWithContext(ctx, "tracer panicked", zap.Any("panic", r))
		}
	}()
	if err := g.hooks.Tracer(ctx, ev); err != nil {
		g.logger.WarnWithContext(ctx, "tracer failed", zap.Error(err))
	}
}

// Deny builds the authorization error for a denied check.
func Deny(moment Moment, op Operation, typ string) error {
	return apperr.Errorf(apperr.ErrAuthorization, "not allowed to %s entity of type %q (%s)", op, typ, moment)
}

// LogTracer returns a tracer writing every event to log at debug level.
func LogTracer(log logger.Logger) Tracer {
	return func(ctx context.Context, ev TraceEvent) error {
		log.DebugWithContext(ctx, "access",
			zap.String("op", string(ev.Op)),
			zap.String("arity", ev.Arity),
			zap.String("via", ev.Via),
			zap.String("type", ev.Type),
			zap.Strings("ids", ev.IDs),
			zap.Strings("fields", ev.Fields))
		return nil
	}
}

// String renders ev for logs and errors.
func (ev TraceEvent) String() string {
	return fmt.Sprintf("%s/%s %s %v via %s", ev.Op, ev.Arity, ev.Type, ev.IDs, ev.Via)
}
