package sqlstore

import (
	"context"
	"encoding/json"

	sq "github.com/Masterminds/squirrel"

	"github.com/hmans/entityql/internal/apperr"
	"github.com/hmans/entityql/internal/model"
	"github.com/hmans/entityql/internal/schema"
	"github.com/hmans/entityql/internal/storage"
)

// FindByID implements storage.Store. It returns nil when no row matches.
func (s *Datastore) FindByID(ctx context.Context, typ, id string, opts storage.FindOptions) (*storage.Entity, error) {
	e, err := s.entity(typ)
	if err != nil {
		return nil, err
	}
	opts.Limit = intPtr(1)
	opts.Offset = 0
	list, err := s.find(ctx, e, opts, sq.Eq{qualify("t0", model.IDField): id})
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return list[0], nil
}

// FindOne implements storage.Store. It returns nil when no row matches.
func (s *Datastore) FindOne(ctx context.Context, typ string, opts storage.FindOptions) (*storage.Entity, error) {
	e, err := s.entity(typ)
	if err != nil {
		return nil, err
	}
	opts.Limit = intPtr(1)
	list, err := s.find(ctx, e, opts, nil)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return list[0], nil
}

// FindAll implements storage.Store.
func (s *Datastore) FindAll(ctx context.Context, typ string, opts storage.FindOptions) ([]*storage.Entity, error) {
	e, err := s.entity(typ)
	if err != nil {
		return nil, err
	}
	return s.find(ctx, e, opts, nil)
}

func (s *Datastore) find(ctx context.Context, e *model.Entity, opts storage.FindOptions, extra sq.Sqlizer) ([]*storage.Entity, error) {
	q, cols, err := s.selectQuery(e, opts, extra)
	if err != nil {
		return nil, err
	}
	s.logQuery(ctx, q)

	rows, err := q.RunWith(s.runner(ctx)).QueryContext(ctx)
	if err != nil {
		return nil, HandleSQLError(err)
	}
	defer rows.Close()

	var out []*storage.Entity
	for rows.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, HandleSQLError(err)
		}
		values := make(map[string]any, len(cols))
		for i, col := range cols {
			values[col] = fromDB(e, col, raw[i])
		}
		out = append(out, &storage.Entity{Type: e.Name, Values: values})
	}
	if err := rows.Err(); err != nil {
		return nil, HandleSQLError(err)
	}
	return out, nil
}

func (s *Datastore) selectQuery(e *model.Entity, opts storage.FindOptions, extra sq.Sqlizer) (sq.SelectBuilder, []string, error) {
	c := &compiler{store: s}
	alias := c.alias()

	cols, err := projection(e, opts.Attributes)
	if err != nil {
		return sq.SelectBuilder{}, nil, err
	}
	qualified := make([]string, len(cols))
	for i, col := range cols {
		qualified[i] = qualify(alias, col)
	}

	q := sq.Select(qualified...).From(quote(e.Table) + " AS " + alias)
	if extra != nil {
		q = q.Where(extra)
	}
	if len(opts.Where) > 0 {
		pred, err := c.where(alias, e, opts.Where)
		if err != nil {
			return sq.SelectBuilder{}, nil, err
		}
		q = q.Where(pred)
	}
	for _, inc := range opts.Include {
		pred, err := c.include(alias, e, inc)
		if err != nil {
			return sq.SelectBuilder{}, nil, err
		}
		q = q.Where(pred)
	}
	for _, term := range opts.Order {
		if !hasColumn(e, term.Field) {
			return sq.SelectBuilder{}, nil, apperr.Errorf(apperr.ErrValidation, "invalid \"order\" argument: no such field %q on type %q", term.Field, e.Name)
		}
		dir := " ASC"
		if term.Desc {
			dir = " DESC"
		}
		q = q.OrderBy(qualify(alias, term.Field) + dir)
	}
	// insertion order breaks ties
	q = q.OrderBy(alias + ".rowid")

	switch {
	case opts.Limit != nil:
		limit := *opts.Limit
		if limit < 0 {
			limit = 0
		}
		q = q.Limit(uint64(limit))
		if opts.Offset > 0 {
			q = q.Offset(uint64(opts.Offset))
		}
	case opts.Offset > 0:
		q = q.Suffix("LIMIT -1 OFFSET ?", opts.Offset)
	}

	return q, cols, nil
}

// projection returns the columns to load: the id first, then the requested
// attributes, or every column when none were requested.
func projection(e *model.Entity, attrs []string) ([]string, error) {
	if attrs == nil {
		return e.Columns(), nil
	}
	cols := []string{model.IDField}
	seen := map[string]bool{model.IDField: true}
	for _, a := range attrs {
		if seen[a] {
			continue
		}
		if !hasColumn(e, a) {
			return nil, apperr.Errorf(apperr.ErrValidation, "no such column %q on type %q", a, e.Name)
		}
		seen[a] = true
		cols = append(cols, a)
	}
	return cols, nil
}

// fromDB converts a scanned value into the representation of the column's type.
func fromDB(e *model.Entity, col string, v any) any {
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	if v == nil {
		return nil
	}
	typ, _, ok := e.AttributeType(col)
	if !ok {
		return v
	}
	switch typ {
	case "Boolean":
		if i, ok := schema.ToInt64(v); ok {
			return i != 0
		}
	case "Int":
		if i, ok := schema.ToInt64(v); ok {
			return i
		}
	case "Float":
		if f, ok := schema.ToFloat64(v); ok {
			return f
		}
	case "JSON":
		if str, ok := v.(string); ok {
			var out any
			if err := json.Unmarshal([]byte(str), &out); err == nil {
				return out
			}
		}
	}
	return v
}

// dbValue converts an attribute value for binding.
func dbValue(e *model.Entity, col string, v any) any {
	if v == nil {
		return nil
	}
	if typ, _, ok := e.AttributeType(col); ok && typ == "JSON" {
		data, err := json.Marshal(v)
		if err != nil {
			return v
		}
		return string(data)
	}
	return v
}

func dbValues(e *model.Entity, col string, list []any) []any {
	out := make([]any, len(list))
	for i, v := range list {
		out[i] = dbValue(e, col, v)
	}
	return out
}

func intPtr(i int) *int { return &i }
