// Package policy implements authorization and attribute validation rules
// written as CEL expressions in a YAML file.
package policy

import (
	"context"
	"fmt"
	"os"
	"reflect"
	"slices"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common"
	"gopkg.in/yaml.v3"

	"github.com/hmans/entityql/internal/hook"
	"github.com/hmans/entityql/internal/storage"
)

// Effect is the decision of a matching rule.
type Effect string

const (
	Allow Effect = "allow"
	Deny  Effect = "deny"
)

// Rule is an authorization rule. Empty selector lists match everything and
// an empty condition is always true.
type Rule struct {
	Name       string   `yaml:"name"`
	Effect     Effect   `yaml:"effect"`
	Moments    []string `yaml:"moments,omitempty"`
	Operations []string `yaml:"operations,omitempty"`
	Types      []string `yaml:"types,omitempty"`
	When       string   `yaml:"when,omitempty"`

	program cel.Program
}

// Validation is an assertion over the proposed attributes of an entity.
type Validation struct {
	Name   string   `yaml:"name"`
	Types  []string `yaml:"types,omitempty"`
	Assert string   `yaml:"assert"`

	program cel.Program
}

// Policy is a compiled set of rules. The first matching rule decides; when
// none matches, Default does.
type Policy struct {
	Default     Effect        `yaml:"default"`
	Rules       []*Rule       `yaml:"rules"`
	Validations []*Validation `yaml:"validations"`
}

// AllowAll is the policy used when none is configured.
func AllowAll() *Policy {
	return &Policy{Default: Allow}
}

func newEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("moment", cel.StringType),
		cel.Variable("operation", cel.StringType),
		cel.Variable("type", cel.StringType),
		cel.Variable("entity", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("user", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("attributes", cel.MapType(cel.StringType, cel.DynType)),
	)
}

func compile(env *cel.Env, name, expr string) (cel.Program, error) {
	ast, issues := env.CompileSource(common.NewStringSource(expr, name))
	if issues != nil {
		if err := issues.Err(); err != nil {
			return nil, fmt.Errorf("compiling %q: %w", name, err)
		}
	}
	if !reflect.DeepEqual(ast.OutputType(), cel.BoolType) && !reflect.DeepEqual(ast.OutputType(), cel.DynType) {
		return nil, fmt.Errorf("compiling %q: expected a bool expression, got '%s'", name, ast.OutputType())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("compiling %q: %w", name, err)
	}
	return prg, nil
}

// Parse reads and compiles a policy document.
func Parse(data []byte) (*Policy, error) {
	p := &Policy{}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parsing policy: %w", err)
	}
	if p.Default == "" {
		p.Default = Deny
	}
	if p.Default != Allow && p.Default != Deny {
		return nil, fmt.Errorf("invalid default effect %q", p.Default)
	}

	env, err := newEnv()
	if err != nil {
		return nil, err
	}

	for i, r := range p.Rules {
		if r.Name == "" {
			r.Name = fmt.Sprintf("rule #%d", i+1)
		}
		if r.Effect != Allow && r.Effect != Deny {
			return nil, fmt.Errorf("rule %q: invalid effect %q", r.Name, r.Effect)
		}
		if r.When == "" {
			continue
		}
		if r.program, err = compile(env, r.Name, r.When); err != nil {
			return nil, err
		}
	}
	for i, v := range p.Validations {
		if v.Name == "" {
			v.Name = fmt.Sprintf("validation #%d", i+1)
		}
		if v.Assert == "" {
			return nil, fmt.Errorf("validation %q: missing assert", v.Name)
		}
		if v.program, err = compile(env, v.Name, v.Assert); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Load reads the policy file at path.
func Load(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func matches(list []string, v string) bool {
	return len(list) == 0 || slices.Contains(list, v)
}

func eval(prg cel.Program, vars map[string]any) (bool, error) {
	out, _, err := prg.Eval(vars)
	if err != nil {
		return false, err
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression yielded %T, not bool", out.Value())
	}
	return b, nil
}

func vars(ctx context.Context) map[string]any {
	p := PrincipalFromContext(ctx)
	roles := p.Roles
	if roles == nil {
		roles = []string{}
	}
	return map[string]any{
		"moment":     "",
		"operation":  "",
		"type":       "",
		"entity":     map[string]any{},
		"user":       map[string]any{"id": p.ID, "roles": roles},
		"attributes": map[string]any{},
	}
}

// Authorize decides op on an entity of typ at moment for the principal of
// ctx. e may be nil.
func (p *Policy) Authorize(ctx context.Context, moment hook.Moment, op hook.Operation, typ string, e *storage.Entity) (bool, error) {
	v := vars(ctx)
	v["moment"] = string(moment)
	v["operation"] = string(op)
	v["type"] = typ
	if e != nil {
		v["entity"] = e.Values
	}

	for _, r := range p.Rules {
		if !matches(r.Moments, string(moment)) || !matches(r.Operations, string(op)) || !matches(r.Types, typ) {
			continue
		}
		if r.program != nil {
			ok, err := eval(r.program, v)
			if err != nil {
				return false, fmt.Errorf("rule %q: %w", r.Name, err)
			}
			if !ok {
				continue
			}
		}
		return r.Effect == Allow, nil
	}
	return p.Default == Allow, nil
}

// Validate checks attrs against every validation selecting typ.
func (p *Policy) Validate(ctx context.Context, typ string, attrs map[string]any) (bool, error) {
	v := vars(ctx)
	v["type"] = typ
	if attrs != nil {
		v["attributes"] = attrs
	}

	for _, val := range p.Validations {
		if !matches(val.Types, typ) {
			continue
		}
		ok, err := eval(val.program, v)
		if err != nil {
			return false, fmt.Errorf("validation %q: %w", val.Name, err)
		}
		if !ok {
			return false, fmt.Errorf("validation %q rejected the attributes", val.Name)
		}
	}
	return true, nil
}
