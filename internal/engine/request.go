package engine

import (
	"github.com/hmans/entityql/internal/apperr"
	"github.com/hmans/entityql/internal/model"
)

// RelationChange is the normalized change of one relation. A nil list is
// absent; an empty Set clears the relation.
type RelationChange struct {
	Set []string
	Add []string
	Del []string
}

// Payload renders the change in its object form.
func (rc *RelationChange) Payload() map[string]any {
	out := map[string]any{}
	for name, ids := range map[string][]string{"set": rc.Set, "add": rc.Add, "del": rc.Del} {
		if ids == nil {
			continue
		}
		list := make([]any, len(ids))
		for i, id := range ids {
			list[i] = id
		}
		out[name] = list
	}
	return out
}

// Request is a validated with payload.
type Request struct {
	Attributes map[string]any
	Relations  map[string]*RelationChange
}

// ResolveRequest type checks the with payload of a mutation on typ.
// Attribute values are coerced through their scalar or enum parser and
// relation values are normalized into RelationChanges.
func (e *Engine) ResolveRequest(typ string, with any) (*Request, error) {
	c, err := e.registry.Classify(typ)
	if err != nil {
		return nil, err
	}
	req := &Request{Attributes: map[string]any{}, Relations: map[string]*RelationChange{}}
	if with == nil {
		return req, nil
	}
	fields, ok := with.(map[string]any)
	if !ok {
		return nil, apperr.Errorf(apperr.ErrValidation, "invalid \"with\" argument on type %q: object expected", typ)
	}

	for _, name := range keys(fields) {
		value := fields[name]
		switch {
		case name == model.IDField || name == model.HashCodeField:
			return nil, apperr.Errorf(apperr.ErrValidation, "field %q on type %q is read-only", name, typ)
		case c.Relation[name] != "":
			rc, err := normalizeRelationChange(typ, name, value)
			if err != nil {
				return nil, err
			}
			req.Relations[name] = rc
		case c.Attribute[name] != "":
			v, err := e.registry.ParseAttribute(typ, name, value)
			if err != nil {
				return nil, err
			}
			req.Attributes[name] = v
		default:
			return nil, apperr.Errorf(apperr.ErrUnknownField, "field %q not known on type %q", name, typ)
		}
	}
	return req, nil
}

func normalizeRelationChange(typ, name string, value any) (*RelationChange, error) {
	invalid := func(cause error) error {
		if cause != nil {
			return apperr.Wrap(apperr.ErrValidation, cause, "invalid value for relation %q on type %q, expected %s", name, typ, relationChangeShape.Expect)
		}
		return apperr.Errorf(apperr.ErrValidation, "invalid value for relation %q on type %q, expected %s", name, typ, relationChangeShape.Expect)
	}

	switch v := value.(type) {
	case nil:
		return &RelationChange{Set: []string{}}, nil
	case string:
		return &RelationChange{Set: []string{v}}, nil
	case []any:
		ids, ok := stringList(v)
		if !ok {
			return nil, invalid(nil)
		}
		return &RelationChange{Set: ids}, nil
	case map[string]any:
		obj := make(map[string]any, len(v))
		for k, item := range v {
			switch item := item.(type) {
			case string:
				obj[k] = []any{item}
			case nil:
				if k == "set" {
					obj[k] = []any{}
				} else {
					obj[k] = item
				}
			default:
				obj[k] = item
			}
		}
		if err := relationChangeShape.Check(obj); err != nil {
			return nil, invalid(err)
		}
		rc := &RelationChange{}
		if list, ok := obj["set"].([]any); ok {
			rc.Set, _ = stringList(list)
		}
		if list, ok := obj["add"].([]any); ok {
			rc.Add, _ = stringList(list)
		}
		if list, ok := obj["del"].([]any); ok {
			rc.Del, _ = stringList(list)
		}
		return rc, nil
	default:
		return nil, invalid(nil)
	}
}

func stringList(list []any) ([]string, bool) {
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}
