package sqlstore

import (
	"fmt"
	"sort"

	sq "github.com/Masterminds/squirrel"

	"github.com/hmans/entityql/internal/apperr"
	"github.com/hmans/entityql/internal/model"
	"github.com/hmans/entityql/internal/storage"
)

// compiler turns where trees and includes into squirrel predicates. Each
// nested relation gets its own table alias.
type compiler struct {
	store *Datastore
	n     int
}

func (c *compiler) alias() string {
	a := fmt.Sprintf("t%d", c.n)
	c.n++
	return a
}

func (c *compiler) where(alias string, e *model.Entity, w storage.Where) (sq.Sqlizer, error) {
	and := sq.And{}
	for _, key := range sortedKeys(w) {
		val := w[key]
		if storage.IsOperator(key) {
			part, err := c.logical(alias, e, storage.Operator(key), val)
			if err != nil {
				return nil, err
			}
			and = append(and, part)
			continue
		}
		if !hasColumn(e, key) {
			return nil, apperr.Errorf(apperr.ErrValidation, "invalid \"where\" argument: no such field %q on type %q", key, e.Name)
		}
		part, err := c.column(e, qualify(alias, key), key, val)
		if err != nil {
			return nil, err
		}
		and = append(and, part)
	}
	return and, nil
}

// logical handles operators at the object level of a where tree.
func (c *compiler) logical(alias string, e *model.Entity, op storage.Operator, val any) (sq.Sqlizer, error) {
	switch op {
	case storage.OpAnd, storage.OpOr:
		var parts []sq.Sqlizer
		for _, sub := range asWhereList(val) {
			if sub == nil {
				return nil, apperr.Errorf(apperr.ErrValidation, "invalid \"where\" argument: %s expects objects on type %q", op, e.Name)
			}
			part, err := c.where(alias, e, sub)
			if err != nil {
				return nil, err
			}
			parts = append(parts, part)
		}
		if op == storage.OpAnd {
			return sq.And(parts), nil
		}
		return sq.Or(parts), nil
	case storage.OpNot:
		sub := asWhere(val)
		if sub == nil {
			return nil, apperr.Errorf(apperr.ErrValidation, "invalid \"where\" argument: %s expects an object on type %q", op, e.Name)
		}
		part, err := c.where(alias, e, sub)
		if err != nil {
			return nil, err
		}
		return sq.Expr("NOT (?)", part), nil
	default:
		return nil, apperr.Errorf(apperr.ErrValidation, "invalid \"where\" argument: operator %s needs a field on type %q", op, e.Name)
	}
}

// column compiles the condition on one column.
func (c *compiler) column(e *model.Entity, col, name string, val any) (sq.Sqlizer, error) {
	if sub := asWhere(val); sub != nil {
		and := sq.And{}
		for _, key := range sortedKeys(sub) {
			if !storage.IsOperator(key) {
				return nil, apperr.Errorf(apperr.ErrValidation, "invalid \"where\" argument: unexpected key %q below field %q on type %q", key, name, e.Name)
			}
			part, err := c.op(e, col, name, storage.Operator(key), sub[key])
			if err != nil {
				return nil, err
			}
			and = append(and, part)
		}
		return and, nil
	}
	if list, ok := val.([]any); ok {
		return sq.Eq{col: dbValues(e, name, list)}, nil
	}
	return sq.Eq{col: dbValue(e, name, val)}, nil
}

func (c *compiler) op(e *model.Entity, col, name string, op storage.Operator, val any) (sq.Sqlizer, error) {
	bad := func(expect string) error {
		return apperr.Errorf(apperr.ErrValidation, "invalid \"where\" argument: %s on field %q of type %q expects %s", op, name, e.Name, expect)
	}
	v := dbValue(e, name, val)

	switch op {
	case storage.OpEq:
		return sq.Eq{col: v}, nil
	case storage.OpNe:
		return sq.NotEq{col: v}, nil
	case storage.OpGt:
		return sq.Gt{col: v}, nil
	case storage.OpGte:
		return sq.GtOrEq{col: v}, nil
	case storage.OpLt:
		return sq.Lt{col: v}, nil
	case storage.OpLte:
		return sq.LtOrEq{col: v}, nil
	case storage.OpLike:
		return sq.Like{col: v}, nil
	case storage.OpNotLike:
		return sq.NotLike{col: v}, nil
	case storage.OpILike:
		return sq.Expr("LOWER("+col+") LIKE LOWER(?)", v), nil
	case storage.OpNotILike:
		return sq.Expr("LOWER("+col+") NOT LIKE LOWER(?)", v), nil
	case storage.OpIn, storage.OpNotIn:
		list, ok := val.([]any)
		if !ok {
			return nil, bad("a list")
		}
		if op == storage.OpIn {
			return sq.Eq{col: dbValues(e, name, list)}, nil
		}
		return sq.NotEq{col: dbValues(e, name, list)}, nil
	case storage.OpIs:
		if val == nil {
			return sq.Eq{col: nil}, nil
		}
		if _, ok := val.(bool); !ok {
			return nil, bad("null or a boolean")
		}
		return sq.Expr(col+" IS ?", v), nil
	case storage.OpNot:
		if val == nil {
			return sq.NotEq{col: nil}, nil
		}
		return sq.Expr(col+" IS NOT ?", v), nil
	case storage.OpBetween, storage.OpNotBetween:
		list, ok := val.([]any)
		if !ok || len(list) != 2 {
			return nil, bad("a list of two values")
		}
		keyword := "BETWEEN"
		if op == storage.OpNotBetween {
			keyword = "NOT BETWEEN"
		}
		return sq.Expr(col+" "+keyword+" ? AND ?", dbValue(e, name, list[0]), dbValue(e, name, list[1])), nil
	case storage.OpAnd, storage.OpOr:
		list, ok := val.([]any)
		if !ok {
			return nil, bad("a list")
		}
		var parts []sq.Sqlizer
		for _, item := range list {
			part, err := c.column(e, col, name, item)
			if err != nil {
				return nil, err
			}
			parts = append(parts, part)
		}
		if op == storage.OpAnd {
			return sq.And(parts), nil
		}
		return sq.Or(parts), nil
	default:
		return nil, apperr.Errorf(apperr.ErrValidation, "invalid \"where\" argument: unknown operator %s on type %q", op, e.Name)
	}
}

// include compiles a relation include into an EXISTS subquery against the
// owner alias.
func (c *compiler) include(alias string, e *model.Entity, inc storage.Include) (sq.Sqlizer, error) {
	rel, ok := e.Relations[inc.Relation]
	if !ok {
		return nil, apperr.Errorf(apperr.ErrValidation, "invalid \"include\" argument: no such relation %q on type %q", inc.Relation, e.Name)
	}
	target := c.store.model.Entity(rel.Target)
	sub := c.alias()

	q := sq.Select("1").From(quote(target.Table) + " AS " + sub)
	switch rel.Kind {
	case model.BelongsTo:
		q = q.Where(qualify(sub, model.IDField) + " = " + qualify(alias, rel.ForeignKey))
	case model.HasOne, model.HasMany:
		q = q.Where(qualify(sub, rel.ForeignKey) + " = " + qualify(alias, model.IDField))
	case model.BelongsToMany:
		join := c.alias()
		q = q.Join(fmt.Sprintf("%s AS %s ON %s = %s", quote(rel.Through), join, qualify(join, rel.OtherKey), qualify(sub, model.IDField))).
			Where(qualify(join, rel.ForeignKey) + " = " + qualify(alias, model.IDField))
	}

	if len(inc.Where) > 0 {
		pred, err := c.where(sub, target, inc.Where)
		if err != nil {
			return nil, err
		}
		q = q.Where(pred)
	}
	for _, nested := range inc.Include {
		pred, err := c.include(sub, target, nested)
		if err != nil {
			return nil, err
		}
		q = q.Where(pred)
	}
	return sq.Expr("EXISTS (?)", q), nil
}

func asWhere(v any) storage.Where {
	switch w := v.(type) {
	case storage.Where:
		return w
	case map[string]any:
		return storage.Where(w)
	default:
		return nil
	}
}

func asWhereList(v any) []storage.Where {
	switch list := v.(type) {
	case []any:
		out := make([]storage.Where, 0, len(list))
		for _, item := range list {
			out = append(out, asWhere(item))
		}
		return out
	case []storage.Where:
		return list
	default:
		if w := asWhere(v); w != nil {
			out := make([]storage.Where, 0, len(w))
			for _, key := range sortedKeys(w) {
				out = append(out, storage.Where{key: w[key]})
			}
			return out
		}
		return []storage.Where{nil}
	}
}

func hasColumn(e *model.Entity, name string) bool {
	if name == model.IDField {
		return true
	}
	if _, ok := e.Attributes[name]; ok {
		return true
	}
	_, ok := e.ForeignKeyTarget(name)
	return ok
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
