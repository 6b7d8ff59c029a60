package policy

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hmans/entityql/internal/hook"
	"github.com/hmans/entityql/internal/storage"
)

const samplePolicy = `
default: allow
rules:
  - name: directors-delete-anything
    effect: allow
    operations: [delete]
    when: '"DIRECTOR" in user.roles'
  - name: nobody-else-deletes
    effect: deny
    operations: [delete]
  - name: hide-inactive
    effect: deny
    moments: [after]
    operations: [read]
    types: [Person]
    when: 'has(entity.active) && entity.active == false'
validations:
  - name: project-name
    types: [Project]
    assert: '!has(attributes.name) || size(attributes.name) > 0'
`

func TestParse(t *testing.T) {
	p, err := Parse([]byte(samplePolicy))
	require.NoError(t, err)
	assert.Equal(t, Allow, p.Default)
	require.Len(t, p.Rules, 3)
	assert.Nil(t, p.Rules[1].program)
	assert.NotNil(t, p.Rules[0].program)

	p, err = Parse([]byte("rules: []"))
	require.NoError(t, err)
	assert.Equal(t, Deny, p.Default)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"yaml", "rules: ["},
		{"default", "default: maybe"},
		{"effect", "rules: [{effect: perhaps}]"},
		{"syntax", `rules: [{effect: allow, when: "user.id =="}]`},
		{"undeclared variable", `rules: [{effect: allow, when: "request.ip == 1"}]`},
		{"not bool", `rules: [{effect: allow, when: "'yes'"}]`},
		{"missing assert", `validations: [{name: empty}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
		})
	}
}

func TestAuthorize(t *testing.T) {
	p, err := Parse([]byte(samplePolicy))
	require.NoError(t, err)

	director := WithPrincipal(context.Background(), Principal{ID: "u1", Roles: []string{"DIRECTOR"}})
	engineer := WithPrincipal(context.Background(), Principal{ID: "u2", Roles: []string{"ENGINEER"}})
	active := &storage.Entity{Type: "Person", Values: map[string]any{"id": "p1", "active": true}}
	inactive := &storage.Entity{Type: "Person", Values: map[string]any{"id": "p2", "active": false}}

	tests := []struct {
		name   string
		ctx    context.Context
		moment hook.Moment
		op     hook.Operation
		typ    string
		e      *storage.Entity
		want   bool
	}{
		{"director deletes", director, hook.Before, hook.Delete, "Person", active, true},
		{"engineer cannot delete", engineer, hook.Before, hook.Delete, "Person", active, false},
		{"anonymous cannot delete", context.Background(), hook.Before, hook.Delete, "Project", nil, false},
		{"read active", engineer, hook.After, hook.Read, "Person", active, true},
		{"read inactive", engineer, hook.After, hook.Read, "Person", inactive, false},
		{"create without instance", engineer, hook.Before, hook.Create, "Person", nil, true},
		{"other type unaffected", engineer, hook.After, hook.Read, "OrgUnit", inactive, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.Authorize(tt.ctx, tt.moment, tt.op, tt.typ, tt.e)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAuthorizeEvalError(t *testing.T) {
	p, err := Parse([]byte(`rules: [{name: missing, effect: allow, when: "entity.owner == 'x'"}]`))
	require.NoError(t, err)

	_, err = p.Authorize(context.Background(), hook.After, hook.Read, "Person",
		&storage.Entity{Type: "Person", Values: map[string]any{"id": "p1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}

func TestValidate(t *testing.T) {
	p, err := Parse([]byte(samplePolicy))
	require.NoError(t, err)
	ctx := context.Background()

	ok, err := p.Validate(ctx, "Project", map[string]any{"name": "Apollo"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.Validate(ctx, "Project", map[string]any{"name": ""})
	assert.False(t, ok)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "project-name")

	ok, err = p.Validate(ctx, "Person", map[string]any{"name": ""})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPrincipalFromRequest(t *testing.T) {
	r := httptest.NewRequest("POST", "/graphql", nil)
	r.Header.Set(HeaderUserID, " u1 ")
	r.Header.Set(HeaderUserRoles, "MANAGER, DIRECTOR,,")

	assert.Equal(t, Principal{ID: "u1", Roles: []string{"MANAGER", "DIRECTOR"}}, PrincipalFromRequest(r))
	assert.Equal(t, Principal{}, PrincipalFromContext(context.Background()))
}

func TestEnforcerHooks(t *testing.T) {
	e, err := NewEnforcer("", nil)
	require.NoError(t, err)

	g := hook.NewGateway(e.Hooks(), nil)
	assert.True(t, g.Authorize(context.Background(), hook.Before, hook.Delete, "Person", nil))
	require.NoError(t, g.Validate(context.Background(), "Person", map[string]any{}))
}
