package engine

import (
	"context"

	"github.com/hmans/entityql/internal/apperr"
	"github.com/hmans/entityql/internal/hook"
	"github.com/hmans/entityql/internal/model"
	"github.com/hmans/entityql/internal/search"
	"github.com/hmans/entityql/internal/storage"
)

// Create creates an entity of typ from the id and with arguments. It must
// run in a mutation on an Anonymous handle of typ. The result is nil when
// the caller may not read the new entity.
func (e *Engine) Create(ctx context.Context, typ string, h Handle, args map[string]any) (*storage.Entity, error) {
	if err := requireMutation(ctx, "create"); err != nil {
		return nil, err
	}
	if err := anonymous(h, typ, "create"); err != nil {
		return nil, err
	}
	ent, visible, err := e.create(ctx, typ, args)
	if err != nil || !visible {
		return nil, err
	}
	return ent, nil
}

func (e *Engine) create(ctx context.Context, typ string, args map[string]any) (*storage.Entity, bool, error) {
	req, err := e.ResolveRequest(typ, args["with"])
	if err != nil {
		return nil, false, err
	}

	id, given := args["id"].(string)
	if given {
		existing, err := e.store.FindByID(ctx, typ, id, storage.FindOptions{Attributes: []string{}})
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			return nil, false, apperr.Errorf(apperr.ErrConflict, "entity %s#%s already exists", typ, id)
		}
	} else if id, err = e.generateID(); err != nil {
		return nil, false, err
	}

	if err := e.checkRequired(typ, req.Attributes); err != nil {
		return nil, false, err
	}
	if err := e.gateway.Validate(ctx, typ, req.Attributes); err != nil {
		return nil, false, err
	}
	if err := e.authorize(ctx, hook.Before, hook.Create, typ, nil); err != nil {
		return nil, false, err
	}

	values := make(map[string]any, len(req.Attributes)+1)
	for k, v := range req.Attributes {
		values[k] = v
	}
	values[model.IDField] = id
	ent := e.store.Build(typ, values)
	if err := e.store.Save(ctx, ent); err != nil {
		return nil, false, err
	}

	if err := e.ApplyRelationChanges(ctx, typ, ent, req.Relations); err != nil {
		return nil, false, err
	}

	if err := e.authorize(ctx, hook.After, hook.Create, typ, ent); err != nil {
		return nil, false, err
	}
	e.index(ctx, typ, id, ent, search.OpCreate)
	if !e.readable(ctx, typ, ent) {
		return ent, false, nil
	}
	e.mapNull(ent)
	e.trace(ctx, hook.Create, hook.One, hook.Direct, typ, []string{id}, requestFields(req))
	return ent, true, nil
}

// checkRequired rejects creates that leave a non-null attribute unset.
func (e *Engine) checkRequired(typ string, attrs map[string]any) error {
	m := e.registry.Model().Entity(typ)
	for _, attr := range m.AttributeNames() {
		if _, required, _ := m.AttributeType(attr); required && attrs[attr] == nil {
			return apperr.Errorf(apperr.ErrValidation, "field %q on type %q is required", attr, typ)
		}
	}
	return nil
}

// Clone copies the attributes, but not the relations, of the entity behind
// h into a new entity with a fresh id.
func (e *Engine) Clone(ctx context.Context, typ string, h Handle) (*storage.Entity, error) {
	if err := requireMutation(ctx, "clone"); err != nil {
		return nil, err
	}
	src, err := concrete(h, typ, "clone")
	if err != nil {
		return nil, err
	}
	ent, visible, err := e.clone(ctx, typ, src.ID())
	if err != nil || !visible {
		return nil, err
	}
	return ent, nil
}

func (e *Engine) clone(ctx context.Context, typ, srcID string) (*storage.Entity, bool, error) {
	src, err := e.load(ctx, typ, srcID)
	if err != nil {
		return nil, false, err
	}
	if err := e.authorize(ctx, hook.After, hook.Read, typ, src); err != nil {
		return nil, false, err
	}

	id, err := e.generateID()
	if err != nil {
		return nil, false, err
	}
	values := map[string]any{model.IDField: id}
	for _, attr := range e.registry.Model().Entity(typ).AttributeNames() {
		values[attr] = src.Values[attr]
	}
	ent := e.store.Build(typ, values)

	if err := e.authorize(ctx, hook.Before, hook.Create, typ, ent); err != nil {
		return nil, false, err
	}
	if err := e.store.Save(ctx, ent); err != nil {
		return nil, false, err
	}
	if err := e.authorize(ctx, hook.After, hook.Create, typ, ent); err != nil {
		return nil, false, err
	}
	e.index(ctx, typ, id, ent, search.OpCreate)
	if !e.readable(ctx, typ, ent) {
		return ent, false, nil
	}
	e.mapNull(ent)
	e.trace(ctx, hook.Create, hook.One, hook.Direct, typ, []string{id}, keys(values))
	return ent, true, nil
}

// Update changes the entity behind h according to the with argument. An hc
// argument must match the entity's current hash code. The result is nil
// when the caller may no longer read the entity.
func (e *Engine) Update(ctx context.Context, typ string, h Handle, args map[string]any) (*storage.Entity, error) {
	if err := requireMutation(ctx, "update"); err != nil {
		return nil, err
	}
	cur, err := concrete(h, typ, "update")
	if err != nil {
		return nil, err
	}
	ent, visible, err := e.update(ctx, typ, cur.ID(), args)
	if err != nil || !visible {
		return nil, err
	}
	return ent, nil
}

func (e *Engine) update(ctx context.Context, typ, id string, args map[string]any) (*storage.Entity, bool, error) {
	ent, err := e.load(ctx, typ, id)
	if err != nil {
		return nil, false, err
	}

	req, err := e.ResolveRequest(typ, args["with"])
	if err != nil {
		return nil, false, err
	}
	if err := e.authorize(ctx, hook.Before, hook.Update, typ, ent); err != nil {
		return nil, false, err
	}
	if hc, ok := args[model.HashCodeField].(string); ok && hc != "" {
		current, err := e.HashCode(ent)
		if err != nil {
			return nil, false, err
		}
		if hc != current {
			return nil, false, apperr.Errorf(apperr.ErrConflict, "entity %s#%s was modified concurrently", typ, id)
		}
	}
	if err := e.gateway.Validate(ctx, typ, req.Attributes); err != nil {
		return nil, false, err
	}
	if err := e.store.Update(ctx, ent, req.Attributes); err != nil {
		return nil, false, err
	}
	if err := e.ApplyRelationChanges(ctx, typ, ent, req.Relations); err != nil {
		return nil, false, err
	}
	if len(req.Relations) > 0 {
		// belongsTo changes rewrite foreign keys
		if ent, err = e.load(ctx, typ, id); err != nil {
			return nil, false, err
		}
	}

	if err := e.authorize(ctx, hook.After, hook.Update, typ, ent); err != nil {
		return nil, false, err
	}
	e.index(ctx, typ, id, ent, search.OpUpdate)
	if !e.readable(ctx, typ, ent) {
		return ent, false, nil
	}
	e.mapNull(ent)
	e.trace(ctx, hook.Update, hook.One, hook.Direct, typ, []string{id}, requestFields(req))
	return ent, true, nil
}

// Delete removes the entity behind h and returns its id.
func (e *Engine) Delete(ctx context.Context, typ string, h Handle) (string, error) {
	if err := requireMutation(ctx, "delete"); err != nil {
		return "", err
	}
	cur, err := concrete(h, typ, "delete")
	if err != nil {
		return "", err
	}
	return e.delete(ctx, typ, cur.ID())
}

func (e *Engine) delete(ctx context.Context, typ, id string) (string, error) {
	ent, err := e.load(ctx, typ, id)
	if err != nil {
		return "", err
	}
	if err := e.authorize(ctx, hook.Before, hook.Delete, typ, ent); err != nil {
		return "", err
	}
	if err := e.store.Destroy(ctx, ent); err != nil {
		return "", err
	}
	e.index(ctx, typ, id, nil, search.OpDelete)
	e.trace(ctx, hook.Delete, hook.One, hook.Direct, typ, []string{id}, []string{"*"})
	return id, nil
}

// load fetches all columns of typ#id.
func (e *Engine) load(ctx context.Context, typ, id string) (*storage.Entity, error) {
	ent, err := e.store.FindByID(ctx, typ, id, storage.FindOptions{})
	if err != nil {
		return nil, err
	}
	if ent == nil {
		return nil, apperr.Errorf(apperr.ErrNotFound, "no such entity %s#%s found", typ, id)
	}
	return ent, nil
}

func requestFields(req *Request) []string {
	fields := keys(req.Attributes)
	return append(fields, keys(req.Relations)...)
}
