package sqlstore

import (
	"context"

	sq "github.com/Masterminds/squirrel"

	"github.com/hmans/entityql/internal/model"
	"github.com/hmans/entityql/internal/storage"
)

// relationAccessor implements storage.RelationAccessor for one model relation.
type relationAccessor struct {
	store  *Datastore
	rel    *model.Relation
	owner  *model.Entity
	target *model.Entity
}

// Get returns the related entities of owner.
func (a *relationAccessor) Get(ctx context.Context, owner *storage.Entity, opts storage.FindOptions) ([]*storage.Entity, error) {
	var extra sq.Sqlizer
	switch a.rel.Kind {
	case model.BelongsTo:
		fk, err := a.foreignKey(ctx, owner)
		if err != nil || fk == nil {
			return nil, err
		}
		extra = sq.Eq{qualify("t0", model.IDField): fk}
	case model.HasOne, model.HasMany:
		extra = sq.Eq{qualify("t0", a.rel.ForeignKey): owner.ID()}
	case model.BelongsToMany:
		sub := sq.Select(quote(a.rel.OtherKey)).From(quote(a.rel.Through)).Where(sq.Eq{quote(a.rel.ForeignKey): owner.ID()})
		extra = sq.Expr(qualify("t0", model.IDField)+" IN (?)", sub)
	}
	if !a.rel.Kind.Many() {
		opts.Limit = intPtr(1)
	}
	return a.store.find(ctx, a.target, opts, extra)
}

// Set replaces the associations of owner with targets.
func (a *relationAccessor) Set(ctx context.Context, owner *storage.Entity, targets []*storage.Entity) error {
	switch a.rel.Kind {
	case model.BelongsTo:
		var fk any
		if len(targets) > 0 {
			fk = targets[len(targets)-1].ID()
		}
		return a.setOwnerKey(ctx, owner, fk)
	case model.HasOne, model.HasMany:
		if err := a.exec(ctx, sq.Update(quote(a.target.Table)).
			Set(quote(a.rel.ForeignKey), nil).
			Where(sq.Eq{quote(a.rel.ForeignKey): owner.ID()})); err != nil {
			return err
		}
		if a.rel.Kind == model.HasOne && len(targets) > 1 {
			targets = targets[len(targets)-1:]
		}
		return a.attach(ctx, owner, targets)
	case model.BelongsToMany:
		if err := a.exec(ctx, sq.Delete(quote(a.rel.Through)).
			Where(sq.Eq{quote(a.rel.ForeignKey): owner.ID()})); err != nil {
			return err
		}
		return a.Add(ctx, owner, targets)
	}
	return nil
}

// Add associates targets with owner, keeping existing associations.
func (a *relationAccessor) Add(ctx context.Context, owner *storage.Entity, targets []*storage.Entity) error {
	if len(targets) == 0 {
		return nil
	}
	switch a.rel.Kind {
	case model.BelongsTo:
		return a.setOwnerKey(ctx, owner, targets[len(targets)-1].ID())
	case model.HasOne:
		return a.Set(ctx, owner, targets)
	case model.HasMany:
		return a.attach(ctx, owner, targets)
	case model.BelongsToMany:
		stmt := sq.Insert(quote(a.rel.Through)).Options("OR IGNORE").
			Columns(quote(a.rel.ForeignKey), quote(a.rel.OtherKey))
		for _, t := range targets {
			stmt = stmt.Values(owner.ID(), t.ID())
		}
		return a.exec(ctx, stmt)
	}
	return nil
}

// Remove dissociates targets from owner.
func (a *relationAccessor) Remove(ctx context.Context, owner *storage.Entity, targets []*storage.Entity) error {
	if len(targets) == 0 {
		return nil
	}
	switch a.rel.Kind {
	case model.BelongsTo:
		current, err := a.foreignKey(ctx, owner)
		if err != nil {
			return err
		}
		for _, t := range targets {
			if current == t.ID() {
				return a.setOwnerKey(ctx, owner, nil)
			}
		}
		return nil
	case model.HasOne, model.HasMany:
		return a.exec(ctx, sq.Update(quote(a.target.Table)).
			Set(quote(a.rel.ForeignKey), nil).
			Where(sq.Eq{quote(a.rel.ForeignKey): owner.ID(), quote(model.IDField): ids(targets)}))
	case model.BelongsToMany:
		return a.exec(ctx, sq.Delete(quote(a.rel.Through)).
			Where(sq.Eq{quote(a.rel.ForeignKey): owner.ID(), quote(a.rel.OtherKey): ids(targets)}))
	}
	return nil
}

// attach points the foreign key of targets at owner.
func (a *relationAccessor) attach(ctx context.Context, owner *storage.Entity, targets []*storage.Entity) error {
	if len(targets) == 0 {
		return nil
	}
	return a.exec(ctx, sq.Update(quote(a.target.Table)).
		Set(quote(a.rel.ForeignKey), owner.ID()).
		Where(sq.Eq{quote(model.IDField): ids(targets)}))
}

// foreignKey returns owner's foreign key value, loading it when the owner was
// fetched with a narrowed projection.
func (a *relationAccessor) foreignKey(ctx context.Context, owner *storage.Entity) (any, error) {
	if v, ok := owner.Get(a.rel.ForeignKey); ok {
		return v, nil
	}
	fresh, err := a.store.find(ctx, a.owner, storage.FindOptions{Attributes: []string{a.rel.ForeignKey}, Limit: intPtr(1)},
		sq.Eq{qualify("t0", model.IDField): owner.ID()})
	if err != nil || len(fresh) == 0 {
		return nil, err
	}
	v := fresh[0].Values[a.rel.ForeignKey]
	owner.Values[a.rel.ForeignKey] = v
	return v, nil
}

func (a *relationAccessor) setOwnerKey(ctx context.Context, owner *storage.Entity, fk any) error {
	if err := a.exec(ctx, sq.Update(quote(a.owner.Table)).
		Set(quote(a.rel.ForeignKey), fk).
		Where(sq.Eq{quote(model.IDField): owner.ID()})); err != nil {
		return err
	}
	owner.Values[a.rel.ForeignKey] = fk
	return nil
}

func (a *relationAccessor) exec(ctx context.Context, stmt sq.Sqlizer) error {
	a.store.logQuery(ctx, stmt)
	query, args, err := stmt.ToSql()
	if err != nil {
		return err
	}
	if _, err := a.store.runner(ctx).ExecContext(ctx, query, args...); err != nil {
		return HandleSQLError(err)
	}
	return nil
}

func ids(entities []*storage.Entity) []string {
	out := make([]string, len(entities))
	for i, e := range entities {
		out[i] = e.ID()
	}
	return out
}
