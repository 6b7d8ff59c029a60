package sqlstore

import (
	"context"

	sq "github.com/Masterminds/squirrel"

	"github.com/hmans/entityql/internal/apperr"
	"github.com/hmans/entityql/internal/model"
	"github.com/hmans/entityql/internal/storage"
)

// Build implements storage.Store. The entity is not persisted.
func (s *Datastore) Build(typ string, values map[string]any) *storage.Entity {
	copied := make(map[string]any, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return &storage.Entity{Type: typ, Values: copied}
}

// Save inserts e. Columns absent from e.Values are stored as NULL and set
// to nil on e.
func (s *Datastore) Save(ctx context.Context, e *storage.Entity) error {
	ent, err := s.entity(e.Type)
	if err != nil {
		return err
	}
	if e.ID() == "" {
		return apperr.Errorf(apperr.ErrValidation, "cannot save %s without an id", e.Type)
	}

	clauses := map[string]any{}
	for col, v := range e.Values {
		if !hasColumn(ent, col) {
			return apperr.Errorf(apperr.ErrUnknownField, "no such column %q on type %q", col, e.Type)
		}
		clauses[quote(col)] = dbValue(ent, col, v)
	}

	stmt := sq.Insert(quote(ent.Table)).SetMap(clauses)
	s.logQuery(ctx, stmt)
	if _, err := stmt.RunWith(s.runner(ctx)).ExecContext(ctx); err != nil {
		return HandleSQLError(err, e)
	}

	for _, col := range ent.Columns() {
		if _, ok := e.Values[col]; !ok {
			e.Values[col] = nil
		}
	}
	return nil
}

// Update writes values to e's row and applies them to e.
func (s *Datastore) Update(ctx context.Context, e *storage.Entity, values map[string]any) error {
	ent, err := s.entity(e.Type)
	if err != nil {
		return err
	}
	if len(values) == 0 {
		return nil
	}

	clauses := map[string]any{}
	for col, v := range values {
		if col == model.IDField || !hasColumn(ent, col) {
			return apperr.Errorf(apperr.ErrUnknownField, "no such updatable column %q on type %q", col, e.Type)
		}
		clauses[quote(col)] = dbValue(ent, col, v)
	}

	stmt := sq.Update(quote(ent.Table)).SetMap(clauses).Where(sq.Eq{quote(model.IDField): e.ID()})
	s.logQuery(ctx, stmt)
	res, err := stmt.RunWith(s.runner(ctx)).ExecContext(ctx)
	if err != nil {
		return HandleSQLError(err, e)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperr.Errorf(apperr.ErrNotFound, "no such entity %s#%s found", e.Type, e.ID())
	}

	for col, v := range values {
		e.Values[col] = v
	}
	return nil
}

// Destroy deletes e's row.
func (s *Datastore) Destroy(ctx context.Context, e *storage.Entity) error {
	ent, err := s.entity(e.Type)
	if err != nil {
		return err
	}

	stmt := sq.Delete(quote(ent.Table)).Where(sq.Eq{quote(model.IDField): e.ID()})
	s.logQuery(ctx, stmt)
	res, err := stmt.RunWith(s.runner(ctx)).ExecContext(ctx)
	if err != nil {
		return HandleSQLError(err, e)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperr.Errorf(apperr.ErrNotFound, "no such entity %s#%s found", e.Type, e.ID())
	}
	return nil
}
