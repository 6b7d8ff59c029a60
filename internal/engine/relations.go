package engine

import (
	"context"

	"github.com/hmans/entityql/internal/apperr"
	"github.com/hmans/entityql/internal/schema"
	"github.com/hmans/entityql/internal/storage"
)

// ApplyRelationChanges applies changes to the relations of owner, relation
// by relation in name order and within one relation as set, del, add.
func (e *Engine) ApplyRelationChanges(ctx context.Context, typ string, owner *storage.Entity, changes map[string]*RelationChange) error {
	for _, name := range keys(changes) {
		rc := changes[name]
		rel, err := e.registry.Relation(typ, name)
		if err != nil {
			return err
		}
		card, err := e.registry.Cardinality(typ, name)
		if err != nil {
			return err
		}
		acc, err := e.store.Relation(typ, name)
		if err != nil {
			return err
		}
		change := relationChange{
			engine: e, acc: acc, owner: owner,
			typ: typ, name: name, target: rel.Target, one: card == schema.One,
		}

		if rc.Set != nil {
			if err := change.set(ctx, rc.Set); err != nil {
				return err
			}
		}
		if rc.Del != nil {
			if err := change.del(ctx, rc.Del); err != nil {
				return err
			}
		}
		if rc.Add != nil {
			if err := change.add(ctx, rc.Add); err != nil {
				return err
			}
		}
	}
	return nil
}

type relationChange struct {
	engine *Engine
	acc    storage.RelationAccessor
	owner  *storage.Entity
	typ    string
	name   string
	target string
	one    bool
}

func (c *relationChange) set(ctx context.Context, ids []string) error {
	targets, err := c.resolve(ctx, ids)
	if err != nil {
		return err
	}
	return c.acc.Set(ctx, c.owner, targets)
}

func (c *relationChange) del(ctx context.Context, ids []string) error {
	targets, err := c.resolve(ctx, ids)
	if err != nil {
		return err
	}
	if c.one {
		return c.acc.Set(ctx, c.owner, nil)
	}
	return c.acc.Remove(ctx, c.owner, targets)
}

func (c *relationChange) add(ctx context.Context, ids []string) error {
	targets, err := c.resolve(ctx, ids)
	if err != nil {
		return err
	}
	if c.one {
		return c.acc.Set(ctx, c.owner, targets)
	}
	return c.acc.Add(ctx, c.owner, targets)
}

// resolve loads the entities of ids, failing on the first missing one and
// on more than one target for a to-one relation.
func (c *relationChange) resolve(ctx context.Context, ids []string) ([]*storage.Entity, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	list := make([]any, len(ids))
	for i, id := range ids {
		list[i] = id
	}
	found, err := c.engine.store.FindAll(ctx, c.target, storage.FindOptions{Where: storage.Where{storage.IDColumn: list}})
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*storage.Entity, len(found))
	for _, t := range found {
		byID[t.ID()] = t
	}

	targets := make([]*storage.Entity, 0, len(ids))
	seen := map[string]bool{}
	for _, id := range ids {
		t, ok := byID[id]
		if !ok {
			return nil, apperr.Errorf(apperr.ErrNotFound, "no such entity %s#%s found for relation %q on type %q", c.target, id, c.name, c.typ)
		}
		if !seen[id] {
			seen[id] = true
			targets = append(targets, t)
		}
	}
	if c.one && len(targets) > 1 {
		return nil, apperr.Errorf(apperr.ErrCardinality, "relationship %q on type %q has cardinality 0..1 and cannot receive more than one foreign entity", c.name, c.typ)
	}
	return targets, nil
}
