package graph

import (
	"context"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"

	"github.com/hmans/entityql/internal/apperr"
	"github.com/hmans/entityql/internal/engine"
	"github.com/hmans/entityql/internal/storage"
)

// Resolver is the root resolver for the generated GraphQL schema.
// It holds a reference to engine.Engine for data access.
type Resolver struct {
	Engine *engine.Engine
}

// fieldError carries the error code into the GraphQL error extensions.
type fieldError struct {
	err error
}

func (e *fieldError) Error() string { return e.err.Error() }
func (e *fieldError) Unwrap() error { return e.err }

func (e *fieldError) Extensions() map[string]any {
	return map[string]any{"code": apperr.Code(e.err)}
}

func wrap(err error) error {
	if err == nil {
		return nil
	}
	return &fieldError{err: err}
}

// operationContext marks the context with the kind of the executing
// operation, which gates the mutation methods.
func operationContext(p graphql.ResolveParams) context.Context {
	ctx := p.Context
	if ctx == nil {
		ctx = context.Background()
	}
	if op, ok := p.Info.Operation.(*ast.OperationDefinition); ok {
		return engine.WithOperation(ctx, op.Operation)
	}
	return ctx
}

func handleOf(src any) engine.Handle {
	if h, ok := src.(engine.Handle); ok {
		return h
	}
	return nil
}

func entityOf(src any, typ, field string) (*storage.Entity, error) {
	if c, ok := src.(*engine.Concrete); ok && c != nil && c.Entity != nil {
		return c.Entity, nil
	}
	return nil, apperr.Errorf(apperr.ErrContext, "field %q only available in non-anonymous %s context", field, typ)
}

func concrete(ent *storage.Entity) any {
	if ent == nil {
		return nil
	}
	return &engine.Concrete{Entity: ent}
}

func list(entities []*storage.Entity) []any {
	out := make([]any, len(entities))
	for i, ent := range entities {
		out[i] = &engine.Concrete{Entity: ent}
	}
	return out
}

// queryOne resolves the root field fetching one entity of typ.
func (r *Resolver) queryOne(typ string) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (any, error) {
		h, err := r.Engine.QueryOne(p.Context, typ, nil, "", p.Args, requested(p))
		if err != nil || h == nil {
			return nil, wrap(err)
		}
		return h, nil
	}
}

// queryMany resolves the root field listing entities of typ.
func (r *Resolver) queryMany(typ string) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (any, error) {
		entities, err := r.Engine.QueryMany(p.Context, typ, nil, "", p.Args, requested(p))
		if err != nil {
			return nil, wrap(err)
		}
		return list(entities), nil
	}
}

func (r *Resolver) attribute(typ, name string) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (any, error) {
		ent, err := entityOf(p.Source, typ, name)
		if err != nil {
			return nil, wrap(err)
		}
		return ent.Values[name], nil
	}
}

func (r *Resolver) hashCode(typ string) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (any, error) {
		ent, err := entityOf(p.Source, typ, "hc")
		if err != nil {
			return nil, wrap(err)
		}
		hc, err := r.Engine.HashCode(ent)
		return hc, wrap(err)
	}
}

func (r *Resolver) relation(target, name string, many bool) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (any, error) {
		parent := handleOf(p.Source)
		if many {
			entities, err := r.Engine.QueryMany(p.Context, target, parent, name, p.Args, requested(p))
			if err != nil {
				return nil, wrap(err)
			}
			return list(entities), nil
		}
		h, err := r.Engine.QueryOne(p.Context, target, parent, name, p.Args, requested(p))
		if err != nil || h == nil {
			return nil, wrap(err)
		}
		return h, nil
	}
}

func (r *Resolver) method(typ, name string) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (any, error) {
		ctx := operationContext(p)
		h := handleOf(p.Source)
		var (
			ent *storage.Entity
			err error
		)
		switch name {
		case "create":
			ent, err = r.Engine.Create(ctx, typ, h, p.Args)
		case "clone":
			ent, err = r.Engine.Clone(ctx, typ, h)
		case "update":
			ent, err = r.Engine.Update(ctx, typ, h, p.Args)
		case "delete":
			id, err := r.Engine.Delete(ctx, typ, h)
			if err != nil {
				return nil, wrap(err)
			}
			return id, nil
		case "batch":
			ent, err = r.Engine.Batch(ctx, typ, h, p.Args)
		default:
			err = apperr.Errorf(apperr.ErrSchema, "no such method %q on type %q", name, typ)
		}
		if err != nil {
			return nil, wrap(err)
		}
		return concrete(ent), nil
	}
}
