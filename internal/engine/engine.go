// Package engine resolves entity queries and mutations against a store. It
// classifies schema fields, turns GraphQL arguments into storage options,
// gates every state transition through the hook gateway and keeps the
// full-text index in step with the changes it makes.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/hmans/entityql/internal/apperr"
	"github.com/hmans/entityql/internal/hook"
	"github.com/hmans/entityql/internal/ident"
	"github.com/hmans/entityql/internal/logger"
	"github.com/hmans/entityql/internal/model"
	"github.com/hmans/entityql/internal/schema"
	"github.com/hmans/entityql/internal/search"
	"github.com/hmans/entityql/internal/storage"
)

// FTSIndex is the full-text capability the engine searches and maintains.
type FTSIndex interface {
	IDs(typ, query string) ([]string, error)
	Search(ctx context.Context, typ, query string, opts storage.FindOptions) ([]*storage.Entity, error)
	Update(ctx context.Context, typ, id string, e *storage.Entity, op search.Op) error
}

// Options configure an Engine.
type Options struct {
	// IDGenerator allocates identifiers of new entities. Defaults to UUIDs.
	IDGenerator ident.Generator
	Hooks       hook.Hooks
	// FTS is optional; without it full-text search is unavailable.
	FTS    FTSIndex
	Logger logger.Logger
}

// Engine resolves the entity operations of one schema.
type Engine struct {
	registry *schema.Registry
	store    storage.Store
	gateway  *hook.Gateway
	fts      FTSIndex
	newID    ident.Generator
	logger   logger.Logger
}

// New returns an engine for the entity types of registry, persisting to
// store.
func New(registry *schema.Registry, store storage.Store, opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = logger.NewNoopLogger()
	}
	if opts.IDGenerator == nil {
		opts.IDGenerator = ident.UUID
	}
	return &Engine{
		registry: registry,
		store:    store,
		gateway:  hook.NewGateway(opts.Hooks, opts.Logger),
		fts:      opts.FTS,
		newID:    opts.IDGenerator,
		logger:   opts.Logger,
	}
}

// Registry returns the schema registry of the engine.
func (e *Engine) Registry() *schema.Registry { return e.registry }

// Store returns the store of the engine.
func (e *Engine) Store() storage.Store { return e.store }

// Handle is what a resolver receives as its parent: an entity of a
// declared type that either exists (*Concrete) or not yet (Anonymous).
type Handle interface {
	TypeName() string
	handle()
}

// Anonymous stands for "no instance yet" of Type. It is the receiver of
// create and never persisted.
type Anonymous struct {
	Type string
}

// Concrete wraps a stored entity.
type Concrete struct {
	Entity *storage.Entity
}

func (a Anonymous) TypeName() string { return a.Type }
func (Anonymous) handle()            {}

func (c *Concrete) TypeName() string { return c.Entity.Type }
func (*Concrete) handle()            {}

type operationKey struct{}

// WithOperation marks ctx as executing a GraphQL operation of the given
// kind ("query" or "mutation").
func WithOperation(ctx context.Context, kind string) context.Context {
	return context.WithValue(ctx, operationKey{}, kind)
}

func requireMutation(ctx context.Context, method string) error {
	if kind, _ := ctx.Value(operationKey{}).(string); kind != "mutation" {
		return apperr.Errorf(apperr.ErrContext, "method %q only allowed under \"mutation\" operation", method)
	}
	return nil
}

func anonymous(h Handle, typ, method string) error {
	if a, ok := h.(Anonymous); ok && a.Type == typ {
		return nil
	}
	return apperr.Errorf(apperr.ErrContext, "method %q only allowed in anonymous %s context", method, typ)
}

func concrete(h Handle, typ, method string) (*storage.Entity, error) {
	if c, ok := h.(*Concrete); ok && c != nil && c.Entity != nil && c.Entity.Type == typ {
		return c.Entity, nil
	}
	return nil, apperr.Errorf(apperr.ErrContext, "method %q only allowed in non-anonymous %s context", method, typ)
}

// HashCode fingerprints the id and attribute values of ent. Clients send it
// back with update to detect concurrent modification.
func (e *Engine) HashCode(ent *storage.Entity) (string, error) {
	m := e.registry.Model().Entity(ent.Type)
	if m == nil {
		return "", apperr.Errorf(apperr.ErrSchema, "no such entity type %q", ent.Type)
	}
	values := map[string]any{model.IDField: ent.ID()}
	for _, attr := range m.AttributeNames() {
		values[attr] = ent.Values[attr]
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("hashing %s#%s: %w", ent.Type, ent.ID(), err)
	}
	return fmt.Sprintf("%016x", xxhash.Sum64(data)), nil
}

// mapNull makes every attribute of ent that storage left undefined an
// explicit null.
func (e *Engine) mapNull(ent *storage.Entity) {
	c, err := e.registry.Classify(ent.Type)
	if err != nil {
		return
	}
	for attr := range c.Attribute {
		if attr == model.HashCodeField {
			continue
		}
		if _, ok := ent.Values[attr]; !ok {
			ent.Values[attr] = nil
		}
	}
}

func (e *Engine) authorize(ctx context.Context, moment hook.Moment, op hook.Operation, typ string, ent *storage.Entity) error {
	if !e.gateway.Authorize(ctx, moment, op, typ, ent) {
		return hook.Deny(moment, op, typ)
	}
	return nil
}

func (e *Engine) readable(ctx context.Context, typ string, ent *storage.Entity) bool {
	return e.gateway.Authorize(ctx, hook.After, hook.Read, typ, ent)
}

func (e *Engine) trace(ctx context.Context, op hook.Operation, arity, via, typ string, ids, fields []string) {
	e.gateway.Trace(ctx, hook.TraceEvent{Op: op, Arity: arity, Via: via, Type: typ, IDs: ids, Fields: fields})
}

// index updates the full-text index. Failures are logged; the index is
// best-effort.
func (e *Engine) index(ctx context.Context, typ, id string, ent *storage.Entity, op search.Op) {
	if e.fts == nil {
		return
	}
	if err := e.fts.Update(ctx, typ, id, ent, op); err != nil {
		e.logger.WarnWithContext(ctx, "fts update failed",
			zap.String("type", typ), zap.String("id", id), zap.Error(err))
	}
}

func (e *Engine) generateID() (string, error) {
	id, err := e.newID()
	if err != nil {
		return "", fmt.Errorf("generating id: %w", err)
	}
	return id, nil
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
