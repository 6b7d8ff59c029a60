package engine

import (
	"context"
	"fmt"

	"github.com/hmans/entityql/internal/apperr"
	"github.com/hmans/entityql/internal/model"
	"github.com/hmans/entityql/internal/storage"
)

// Batch step operations.
const (
	StepCreate = "CREATE"
	StepClone  = "CLONE"
	StepUpdate = "UPDATE"
	StepDelete = "DELETE"
)

type stepResult struct {
	op      string
	typ     string
	id      string
	root    bool
	entity  *storage.Entity
	visible bool
}

// Batch runs the create, clone, update and delete steps of the with
// argument in order. A string value inside a step's with payload that
// equals the ref of an earlier create or clone step is replaced by that
// step's new id. The caller is expected to run Batch inside one transaction
// and roll it back on error.
//
// Called on an Anonymous handle the result is the entity of the step marked
// root, else of the first step of typ. Called on a concrete entity the
// result is that entity re-fetched, or nil when a step deleted it.
func (e *Engine) Batch(ctx context.Context, typ string, h Handle, args map[string]any) (*storage.Entity, error) {
	if err := requireMutation(ctx, "batch"); err != nil {
		return nil, err
	}
	var outer *storage.Entity
	switch v := h.(type) {
	case Anonymous:
		if v.Type != typ {
			return nil, anonymous(h, typ, "batch")
		}
	case *Concrete:
		var err error
		if outer, err = concrete(h, typ, "batch"); err != nil {
			return nil, err
		}
	default:
		return nil, apperr.Errorf(apperr.ErrContext, "method %q called without %s context", "batch", typ)
	}

	steps, ok := args["with"].([]any)
	if !ok {
		return nil, apperr.Errorf(apperr.ErrValidation, "invalid argument for method %q: list of operations expected", "batch")
	}

	refs := map[string]string{}
	results := make([]stepResult, 0, len(steps))
	for i, raw := range steps {
		step, ok := raw.(map[string]any)
		if !ok {
			return nil, apperr.Errorf(apperr.ErrValidation, "invalid argument for method %q: step #%d is not an object", "batch", i)
		}
		if with, ok := step["with"]; ok && len(refs) > 0 {
			step = copyStep(step)
			step["with"] = substituteRefs(with, refs)
		}
		res, err := e.runStep(ctx, i, step)
		if err != nil {
			return nil, err
		}
		if ref, ok := step["ref"].(string); ok {
			if _, dup := refs[ref]; dup {
				return nil, apperr.Errorf(apperr.ErrConflict, "reference %q already exists, but it must be unique in one batch", ref)
			}
			refs[ref] = res.id
		}
		results = append(results, res)
	}

	if outer == nil {
		for _, res := range results {
			if res.root {
				return res.result(), nil
			}
		}
		for _, res := range results {
			if res.typ == typ {
				return res.result(), nil
			}
		}
		return nil, nil
	}

	for _, res := range results {
		if res.op == StepDelete && res.typ == typ && res.id == outer.ID() {
			return nil, nil
		}
	}
	ent, err := e.load(ctx, typ, outer.ID())
	if err != nil {
		return nil, err
	}
	if !e.readable(ctx, typ, ent) {
		return nil, nil
	}
	e.mapNull(ent)
	return ent, nil
}

func (r stepResult) result() *storage.Entity {
	if !r.visible {
		return nil
	}
	return r.entity
}

func (e *Engine) runStep(ctx context.Context, i int, step map[string]any) (stepResult, error) {
	op, _ := step["op"].(string)
	shape, ok := map[string]*Shape{
		StepCreate: createStepShape,
		StepClone:  cloneStepShape,
		StepUpdate: updateStepShape,
		StepDelete: deleteStepShape,
	}[op]
	if !ok {
		return stepResult{}, apperr.Errorf(apperr.ErrValidation, "invalid operation %q in step #%d, must be %q, %q, %q or %q", op, i, StepCreate, StepClone, StepUpdate, StepDelete)
	}
	if err := shape.Check(step); err != nil {
		return stepResult{}, apperr.Wrap(apperr.ErrValidation, err, "invalid argument for method %q: step #%d with op %q must have the structure %s", "batch", i, op, shape.Expect)
	}

	res := stepResult{op: op}
	res.typ, _ = step["type"].(string)
	res.id, _ = step["id"].(string)
	res.root, _ = step["root"].(bool)
	if e.registry.Model().Entity(res.typ) == nil {
		return stepResult{}, apperr.Errorf(apperr.ErrValidation, "invalid type %q in step #%d", res.typ, i)
	}

	var err error
	switch op {
	case StepCreate:
		args := map[string]any{"with": step["with"]}
		if res.id != "" {
			args[model.IDField] = res.id
		}
		res.entity, res.visible, err = e.create(ctx, res.typ, args)
	case StepClone:
		res.entity, res.visible, err = e.clone(ctx, res.typ, res.id)
	case StepUpdate:
		args := map[string]any{"with": step["with"]}
		if hc, ok := step[model.HashCodeField]; ok {
			args[model.HashCodeField] = hc
		}
		res.entity, res.visible, err = e.update(ctx, res.typ, res.id, args)
	case StepDelete:
		_, err = e.delete(ctx, res.typ, res.id)
	}
	if err != nil {
		return stepResult{}, fmt.Errorf("batch step #%d: %w", i, err)
	}
	if res.entity != nil {
		res.id = res.entity.ID()
	}
	return res, nil
}

func copyStep(step map[string]any) map[string]any {
	out := make(map[string]any, len(step))
	for k, v := range step {
		out[k] = v
	}
	return out
}

// substituteRefs replaces every string equal to a ref name, at any depth.
func substituteRefs(v any, refs map[string]string) any {
	switch val := v.(type) {
	case string:
		if id, ok := refs[val]; ok {
			return id
		}
		return val
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = substituteRefs(item, refs)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = substituteRefs(item, refs)
		}
		return out
	default:
		return v
	}
}
