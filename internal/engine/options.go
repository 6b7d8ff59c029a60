package engine

import (
	"strings"

	"github.com/hmans/entityql/internal/apperr"
	"github.com/hmans/entityql/internal/model"
	"github.com/hmans/entityql/internal/schema"
	"github.com/hmans/entityql/internal/storage"
)

// includeKey nests includes inside an include's where object.
const includeKey = "_include"

// BuildFindOptions turns the where, include, order, offset and limit
// arguments of a query on typ into storage options, and narrows the loaded
// columns to the requested attributes when that is safe.
func (e *Engine) BuildFindOptions(typ string, args map[string]any, sel schema.Selection) (storage.FindOptions, error) {
	var opts storage.FindOptions
	c, err := e.registry.Classify(typ)
	if err != nil {
		return opts, err
	}

	if raw, ok := args["where"]; ok && raw != nil {
		w, err := e.rewriteWhere(typ, raw)
		if err != nil {
			return opts, err
		}
		opts.Where = w
	}

	if raw, ok := args["include"]; ok && raw != nil {
		inc, err := e.buildIncludes(typ, raw)
		if err != nil {
			return opts, err
		}
		opts.Include = inc
	}

	if raw, ok := args["order"]; ok && raw != nil {
		order, err := e.parseOrder(typ, raw)
		if err != nil {
			return opts, err
		}
		opts.Order = order
	}

	if raw, ok := args["offset"]; ok && raw != nil {
		n, err := nonNegative("offset", raw)
		if err != nil {
			return opts, err
		}
		opts.Offset = n
	}
	if raw, ok := args["limit"]; ok && raw != nil {
		n, err := nonNegative("limit", raw)
		if err != nil {
			return opts, err
		}
		opts.Limit = &n
	}

	_, hcArg := args[model.HashCodeField]
	opts.Attributes = e.projection(typ, c, sel, hcArg)
	return opts, nil
}

// projection returns the attributes to load for sel, or nil to load every
// column. Narrowing is skipped whenever something besides plain columns is
// requested, because following a relation needs the foreign keys.
func (e *Engine) projection(typ string, c *schema.Classification, sel schema.Selection, hcArg bool) []string {
	if sel == nil || hcArg || sel.Has(model.HashCodeField) {
		return nil
	}
	columns := map[string]bool{}
	for _, col := range e.registry.Columns(typ) {
		columns[col] = true
	}
	attrs := []string{}
	for _, name := range sel.Names() {
		kind, ok := c.KindOf(name)
		if !ok {
			continue
		}
		if kind != schema.Attribute || !columns[name] {
			return nil
		}
		if name != model.IDField {
			attrs = append(attrs, name)
		}
	}
	return attrs
}

// rewriteWhere validates a where tree of typ and maps the public operator
// names onto storage operators.
func (e *Engine) rewriteWhere(typ string, raw any) (storage.Where, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, apperr.Errorf(apperr.ErrValidation, "invalid \"where\" argument on type %q: object expected", typ)
	}
	c, err := e.registry.Classify(typ)
	if err != nil {
		return nil, err
	}
	out, err := e.rewriteValue(typ, c, obj)
	if err != nil {
		return nil, err
	}
	return storage.Where(out.(map[string]any)), nil
}

func (e *Engine) rewriteValue(typ string, c *schema.Classification, v any) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		ops := e.store.Operators()
		out := make(map[string]any, len(val))
		for _, key := range keys(val) {
			sub, err := e.rewriteValue(typ, c, val[key])
			if err != nil {
				return nil, err
			}
			if op, ok := ops[key]; ok {
				out[string(op)] = sub
				continue
			}
			if c.Attribute[key] == "" || key == model.HashCodeField {
				return nil, apperr.Errorf(apperr.ErrValidation, "invalid \"where\" argument: no such field %q on type %q", key, typ)
			}
			out[key] = sub
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			sub, err := e.rewriteValue(typ, c, item)
			if err != nil {
				return nil, err
			}
			out[i] = sub
		}
		return out, nil
	default:
		return v, nil
	}
}

// buildIncludes turns {relation: where} into include descriptors. A where
// object may carry nested includes under "_include"; true or null include
// without a filter.
func (e *Engine) buildIncludes(typ string, raw any) ([]storage.Include, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, apperr.Errorf(apperr.ErrValidation, "invalid \"include\" argument on type %q: object expected", typ)
	}
	c, err := e.registry.Classify(typ)
	if err != nil {
		return nil, err
	}

	var out []storage.Include
	for _, name := range keys(obj) {
		target, ok := c.Relation[name]
		if !ok {
			return nil, apperr.Errorf(apperr.ErrValidation, "invalid \"include\" argument: no such relation %q on type %q", name, typ)
		}
		inc := storage.Include{Relation: name}

		switch val := obj[name].(type) {
		case nil, bool:
		case map[string]any:
			where := make(map[string]any, len(val))
			for k, v := range val {
				if k == includeKey {
					nested, err := e.buildIncludes(target, v)
					if err != nil {
						return nil, err
					}
					inc.Include = nested
					continue
				}
				where[k] = v
			}
			if len(where) > 0 {
				w, err := e.rewriteWhere(target, where)
				if err != nil {
					return nil, err
				}
				inc.Where = w
			}
		default:
			return nil, apperr.Errorf(apperr.ErrValidation, "invalid \"include\" argument: relation %q on type %q expects an object", name, typ)
		}
		out = append(out, inc)
	}
	return out, nil
}

// parseOrder accepts a field name or a list of field names and
// [field, direction] pairs.
func (e *Engine) parseOrder(typ string, raw any) ([]storage.OrderTerm, error) {
	if err := orderShape.Check(raw); err != nil {
		return nil, apperr.Wrap(apperr.ErrValidation, err, "invalid \"order\" argument on type %q, expected %s", typ, orderShape.Expect)
	}
	c, err := e.registry.Classify(typ)
	if err != nil {
		return nil, err
	}

	var items []any
	if s, ok := raw.(string); ok {
		items = []any{s}
	} else {
		items = raw.([]any)
	}

	terms := make([]storage.OrderTerm, 0, len(items))
	for _, item := range items {
		var term storage.OrderTerm
		switch it := item.(type) {
		case string:
			term.Field = it
		case []any:
			term.Field = it[0].(string)
			switch dir := strings.ToUpper(it[1].(string)); dir {
			case "ASC":
			case "DESC":
				term.Desc = true
			default:
				return nil, apperr.Errorf(apperr.ErrValidation, "invalid \"order\" argument: unknown direction %q for field %q on type %q", it[1], term.Field, typ)
			}
		}
		if c.Attribute[term.Field] == "" || term.Field == model.HashCodeField {
			return nil, apperr.Errorf(apperr.ErrValidation, "invalid \"order\" argument: no such field %q on type %q", term.Field, typ)
		}
		terms = append(terms, term)
	}
	return terms, nil
}

func nonNegative(name string, raw any) (int, error) {
	n, ok := schema.ToInt64(raw)
	if !ok || n < 0 {
		return 0, apperr.Errorf(apperr.ErrValidation, "invalid %q argument: non-negative integer expected", name)
	}
	return int(n), nil
}
