package engine

import (
	"context"

	"github.com/hmans/entityql/internal/apperr"
	"github.com/hmans/entityql/internal/hook"
	"github.com/hmans/entityql/internal/schema"
	"github.com/hmans/entityql/internal/storage"
)

// QueryOne resolves a to-one field of type typ. With an empty relation it is
// the root query: the id and where arguments select the entity, and without
// either an Anonymous handle is returned. Otherwise relation is followed from
// parent. A missing or unreadable entity yields nil.
func (e *Engine) QueryOne(ctx context.Context, typ string, parent Handle, relation string, args map[string]any, sel schema.Selection) (Handle, error) {
	opts, err := e.BuildFindOptions(typ, args, sel)
	if err != nil {
		return nil, err
	}

	var ent *storage.Entity
	via := hook.Direct
	if relation == "" {
		id, hasID := args["id"].(string)
		if !hasID && opts.Where == nil {
			return Anonymous{Type: typ}, nil
		}
		if hasID {
			opts.Where = withID(opts.Where, id)
		}
		ent, err = e.store.FindOne(ctx, typ, opts)
	} else {
		via = hook.Relation
		ent, err = e.follow(ctx, parent, relation, opts)
	}
	if err != nil || ent == nil {
		return nil, err
	}

	if !e.readable(ctx, typ, ent) {
		return nil, nil
	}
	e.mapNull(ent)
	e.trace(ctx, hook.Read, hook.One, via, typ, []string{ent.ID()}, sel.Names())
	return &Concrete{Entity: ent}, nil
}

func (e *Engine) follow(ctx context.Context, parent Handle, relation string, opts storage.FindOptions) (*storage.Entity, error) {
	owner, err := relationOwner(parent, relation)
	if err != nil {
		return nil, err
	}
	acc, err := e.store.Relation(owner.Type, relation)
	if err != nil {
		return nil, err
	}
	list, err := acc.Get(ctx, owner, opts)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return list[0], nil
}

// QueryMany resolves a to-many field of type typ: the root query when
// relation is empty, a relation of parent otherwise. An fts argument
// searches the full-text index. Entities the caller may not read are left
// out; the storage order is kept.
func (e *Engine) QueryMany(ctx context.Context, typ string, parent Handle, relation string, args map[string]any, sel schema.Selection) ([]*storage.Entity, error) {
	opts, err := e.BuildFindOptions(typ, args, sel)
	if err != nil {
		return nil, err
	}
	query, hasFTS := args["fts"].(string)

	var list []*storage.Entity
	via := hook.Direct
	switch {
	case relation != "":
		via = hook.Relation
		owner, err := relationOwner(parent, relation)
		if err != nil {
			return nil, err
		}
		if hasFTS {
			if err := e.restrictToMatches(typ, query, &opts); err != nil {
				return nil, err
			}
		}
		acc, err := e.store.Relation(owner.Type, relation)
		if err != nil {
			return nil, err
		}
		list, err = acc.Get(ctx, owner, opts)
		if err != nil {
			return nil, err
		}
	case hasFTS:
		if e.fts == nil {
			return nil, apperr.Errorf(apperr.ErrFeatureUnavailable, "full-text search not available at all")
		}
		list, err = e.fts.Search(ctx, typ, query, opts)
		if err != nil {
			return nil, err
		}
	default:
		list, err = e.store.FindAll(ctx, typ, opts)
		if err != nil {
			return nil, err
		}
	}

	out := make([]*storage.Entity, 0, len(list))
	for _, ent := range list {
		if e.readable(ctx, typ, ent) {
			out = append(out, ent)
		}
	}
	fields := sel.Names()
	for _, ent := range out {
		e.mapNull(ent)
		e.trace(ctx, hook.Read, hook.Many, via, typ, []string{ent.ID()}, fields)
	}
	return out, nil
}

// restrictToMatches limits opts to the entities matching a full-text query.
func (e *Engine) restrictToMatches(typ, query string, opts *storage.FindOptions) error {
	if e.fts == nil {
		return apperr.Errorf(apperr.ErrFeatureUnavailable, "full-text search not available at all")
	}
	ids, err := e.fts.IDs(typ, query)
	if err != nil {
		return err
	}
	list := make([]any, len(ids))
	for i, id := range ids {
		list[i] = id
	}
	opts.Where = and(opts.Where, storage.Where{storage.IDColumn: list})
	return nil
}

func relationOwner(parent Handle, relation string) (*storage.Entity, error) {
	c, ok := parent.(*Concrete)
	if !ok || c == nil || c.Entity == nil {
		typ := ""
		if parent != nil {
			typ = parent.TypeName()
		}
		return nil, apperr.Errorf(apperr.ErrContext, "relation %q can only be followed from a non-anonymous %s context", relation, typ)
	}
	return c.Entity, nil
}

func withID(w storage.Where, id string) storage.Where {
	return and(w, storage.Where{storage.IDColumn: id})
}

func and(a, b storage.Where) storage.Where {
	if len(a) == 0 {
		return b
	}
	return storage.Where{string(storage.OpAnd): []any{a, b}}
}
