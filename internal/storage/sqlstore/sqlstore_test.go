package sqlstore

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hmans/entityql/internal/apperr"
	"github.com/hmans/entityql/internal/model"
	"github.com/hmans/entityql/internal/storage"
)

func newTestStore(t *testing.T) *Datastore {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"), model.Sample(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Bootstrap(context.Background()))
	return s
}

func mustSave(t *testing.T, s *Datastore, typ string, values map[string]any) *storage.Entity {
	t.Helper()
	e := s.Build(typ, values)
	require.NoError(t, s.Save(context.Background(), e))
	return e
}

func entityIDs(list []*storage.Entity) []string {
	out := make([]string, len(list))
	for i, e := range list {
		out[i] = e.ID()
	}
	return out
}

func TestPrepareDSN(t *testing.T) {
	dsn, err := PrepareDSN("data.db")
	require.NoError(t, err)
	assert.Contains(t, dsn, "journal_mode%28WAL%29")
	assert.Contains(t, dsn, "foreign_keys%281%29")
	assert.Contains(t, dsn, "_txlock=immediate")

	dsn, err = PrepareDSN("data.db?_pragma=journal_mode(DELETE)&_txlock=deferred")
	require.NoError(t, err)
	assert.NotContains(t, dsn, "WAL")
	assert.Contains(t, dsn, "_txlock=deferred")
}

func TestBootstrapStatements(t *testing.T) {
	stmts := BootstrapStatements(model.Sample())
	require.Len(t, stmts, 4)
	assert.True(t, strings.HasPrefix(stmts[3], `CREATE TABLE IF NOT EXISTS "ProjectStaff"`))
	assert.Contains(t, stmts[1], `"orgUnitId" TEXT REFERENCES "OrgUnit"("id") ON DELETE SET NULL`)
}

func TestSaveAndFind(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustSave(t, s, "Project", map[string]any{
		"id":        "p1",
		"name":      "Apollo",
		"budget":    12.5,
		"headcount": int64(3),
		"meta":      map[string]any{"tags": []any{"space"}},
	})
	mustSave(t, s, "Person", map[string]any{"id": "a", "name": "Ada", "active": true})

	p, err := s.FindByID(ctx, "Project", "p1", storage.FindOptions{})
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "Apollo", p.Values["name"])
	assert.Equal(t, 12.5, p.Values["budget"])
	assert.Equal(t, int64(3), p.Values["headcount"])
	assert.Equal(t, map[string]any{"tags": []any{"space"}}, p.Values["meta"])
	due, loaded := p.Get("due")
	assert.True(t, loaded)
	assert.Nil(t, due)

	person, err := s.FindByID(ctx, "Person", "a", storage.FindOptions{})
	require.NoError(t, err)
	assert.Equal(t, true, person.Values["active"])

	missing, err := s.FindByID(ctx, "Person", "nope", storage.FindOptions{})
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSaveDuplicate(t *testing.T) {
	s := newTestStore(t)
	mustSave(t, s, "Person", map[string]any{"id": "a"})

	err := s.Save(context.Background(), s.Build("Person", map[string]any{"id": "a"}))
	require.ErrorIs(t, err, apperr.ErrConflict)
}

func TestProjection(t *testing.T) {
	s := newTestStore(t)
	mustSave(t, s, "Person", map[string]any{"id": "a", "name": "Ada", "initials": "AL"})

	p, err := s.FindByID(context.Background(), "Person", "a", storage.FindOptions{Attributes: []string{"name"}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": "a", "name": "Ada"}, p.Values)

	_, err = s.FindByID(context.Background(), "Person", "a", storage.FindOptions{Attributes: []string{"salary"}})
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestWhere(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustSave(t, s, "Person", map[string]any{"id": "a", "name": "Ada", "role": "ENGINEER", "active": true})
	mustSave(t, s, "Person", map[string]any{"id": "b", "name": "Bob", "role": "MANAGER", "active": false})
	mustSave(t, s, "Person", map[string]any{"id": "c", "name": "Cyd", "role": "ENGINEER"})

	tests := []struct {
		name  string
		where storage.Where
		want  []string
	}{
		{"equality", storage.Where{"role": "ENGINEER"}, []string{"a", "c"}},
		{"list means membership", storage.Where{"name": []any{"Ada", "Cyd"}}, []string{"a", "c"}},
		{"null", storage.Where{"active": nil}, []string{"c"}},
		{"boolean", storage.Where{"active": true}, []string{"a"}},
		{"like", storage.Where{"name": map[string]any{"$like": "B%"}}, []string{"b"}},
		{"ilike", storage.Where{"name": map[string]any{"$iLike": "%Y%"}}, []string{"c"}},
		{"ne", storage.Where{"role": map[string]any{"$ne": "ENGINEER"}}, []string{"b"}},
		{"in", storage.Where{"id": map[string]any{"$in": []any{"b", "c"}}}, []string{"b", "c"}},
		{"notIn", storage.Where{"id": map[string]any{"$notIn": []any{"b", "c"}}}, []string{"a"}},
		{"between", storage.Where{"name": map[string]any{"$between": []any{"B", "Z"}}}, []string{"b", "c"}},
		{"not null", storage.Where{"active": map[string]any{"$not": nil}}, []string{"a", "b"}},
		{"or", storage.Where{"$or": []any{
			map[string]any{"name": "Ada"},
			map[string]any{"role": "MANAGER"},
		}}, []string{"a", "b"}},
		{"not", storage.Where{"$not": map[string]any{"role": "ENGINEER"}}, []string{"b"}},
		{"field level or", storage.Where{"name": map[string]any{"$or": []any{"Ada", "Bob"}}}, []string{"a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.FindAll(ctx, "Person", storage.FindOptions{Where: tt.where})
			require.NoError(t, err)
			assert.Equal(t, tt.want, entityIDs(got))
		})
	}
}

func TestWhereErrors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.FindAll(ctx, "Person", storage.FindOptions{Where: storage.Where{"salary": 1}})
	require.ErrorIs(t, err, apperr.ErrValidation)
	assert.Contains(t, err.Error(), `"salary"`)

	_, err = s.FindAll(ctx, "Person", storage.FindOptions{Where: storage.Where{"id": map[string]any{"$in": "a"}}})
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = s.FindAll(ctx, "Person", storage.FindOptions{Order: []storage.OrderTerm{{Field: "salary"}}})
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestOrderOffsetLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, p := range []struct{ id, name string }{{"1", "Cyd"}, {"2", "Ada"}, {"3", "Bob"}, {"4", "Dan"}} {
		mustSave(t, s, "Person", map[string]any{"id": p.id, "name": p.name})
	}

	limit := 2
	got, err := s.FindAll(ctx, "Person", storage.FindOptions{
		Order:  []storage.OrderTerm{{Field: "name", Desc: true}},
		Offset: 1,
		Limit:  &limit,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "3"}, entityIDs(got))

	got, err = s.FindAll(ctx, "Person", storage.FindOptions{Offset: 3})
	require.NoError(t, err)
	assert.Equal(t, []string{"4"}, entityIDs(got))
}

func TestUpdateAndDestroy(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := mustSave(t, s, "Person", map[string]any{"id": "a", "name": "Ada"})

	require.NoError(t, s.Update(ctx, p, map[string]any{"name": "Ada L."}))
	assert.Equal(t, "Ada L.", p.Values["name"])

	fresh, err := s.FindByID(ctx, "Person", "a", storage.FindOptions{})
	require.NoError(t, err)
	assert.Equal(t, "Ada L.", fresh.Values["name"])

	require.ErrorIs(t, s.Update(ctx, p, map[string]any{"id": "b"}), apperr.ErrUnknownField)

	require.NoError(t, s.Destroy(ctx, p))
	require.ErrorIs(t, s.Destroy(ctx, p), apperr.ErrNotFound)
}

func TestBelongsTo(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	unit := mustSave(t, s, "OrgUnit", map[string]any{"id": "u1"})
	other := mustSave(t, s, "OrgUnit", map[string]any{"id": "u2"})
	person := mustSave(t, s, "Person", map[string]any{"id": "p1"})

	acc, err := s.Relation("Person", "belongsTo")
	require.NoError(t, err)

	got, err := acc.Get(ctx, person, storage.FindOptions{})
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, acc.Set(ctx, person, []*storage.Entity{unit}))
	got, err = acc.Get(ctx, person, storage.FindOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, entityIDs(got))

	// a narrowed owner reloads the foreign key
	narrowed, err := s.FindByID(ctx, "Person", "p1", storage.FindOptions{Attributes: []string{"name"}})
	require.NoError(t, err)
	got, err = acc.Get(ctx, narrowed, storage.FindOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, entityIDs(got))

	require.NoError(t, acc.Remove(ctx, person, []*storage.Entity{other}))
	got, err = acc.Get(ctx, person, storage.FindOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, entityIDs(got), "removing a non-associated target keeps the association")

	require.NoError(t, acc.Remove(ctx, person, []*storage.Entity{unit}))
	got, err = acc.Get(ctx, person, storage.FindOptions{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestHasManyAndHasOne(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	unit := mustSave(t, s, "OrgUnit", map[string]any{"id": "u1"})
	a := mustSave(t, s, "Person", map[string]any{"id": "a"})
	b := mustSave(t, s, "Person", map[string]any{"id": "b"})
	c := mustSave(t, s, "Person", map[string]any{"id": "c"})

	members, err := s.Relation("OrgUnit", "members")
	require.NoError(t, err)

	require.NoError(t, members.Add(ctx, unit, []*storage.Entity{a, b}))
	require.NoError(t, members.Add(ctx, unit, []*storage.Entity{b}))
	got, err := members.Get(ctx, unit, storage.FindOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, entityIDs(got))

	require.NoError(t, members.Remove(ctx, unit, []*storage.Entity{a}))
	require.NoError(t, members.Add(ctx, unit, []*storage.Entity{c}))
	got, err = members.Get(ctx, unit, storage.FindOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, entityIDs(got))

	require.NoError(t, members.Set(ctx, unit, []*storage.Entity{a}))
	got, err = members.Get(ctx, unit, storage.FindOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, entityIDs(got))

	director, err := s.Relation("OrgUnit", "director")
	require.NoError(t, err)
	require.NoError(t, director.Set(ctx, unit, []*storage.Entity{b}))
	require.NoError(t, director.Add(ctx, unit, []*storage.Entity{c}))
	got, err = director.Get(ctx, unit, storage.FindOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, entityIDs(got))

	require.NoError(t, director.Set(ctx, unit, nil))
	got, err = director.Get(ctx, unit, storage.FindOptions{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestBelongsToMany(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	project := mustSave(t, s, "Project", map[string]any{"id": "p", "name": "Apollo"})
	a := mustSave(t, s, "Person", map[string]any{"id": "a"})
	b := mustSave(t, s, "Person", map[string]any{"id": "b"})

	staff, err := s.Relation("Project", "staff")
	require.NoError(t, err)

	require.NoError(t, staff.Add(ctx, project, []*storage.Entity{a, b}))
	require.NoError(t, staff.Add(ctx, project, []*storage.Entity{a}))
	got, err := staff.Get(ctx, project, storage.FindOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, entityIDs(got))

	require.NoError(t, staff.Remove(ctx, project, []*storage.Entity{a}))
	got, err = staff.Get(ctx, project, storage.FindOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, entityIDs(got))

	require.NoError(t, staff.Set(ctx, project, nil))
	got, err = staff.Get(ctx, project, storage.FindOptions{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestInclude(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u1 := mustSave(t, s, "OrgUnit", map[string]any{"id": "u1", "name": "Research"})
	mustSave(t, s, "OrgUnit", map[string]any{"id": "u2", "name": "Sales"})
	ada := mustSave(t, s, "Person", map[string]any{"id": "a", "name": "Ada"})

	members, err := s.Relation("OrgUnit", "members")
	require.NoError(t, err)
	require.NoError(t, members.Add(ctx, u1, []*storage.Entity{ada}))

	got, err := s.FindAll(ctx, "OrgUnit", storage.FindOptions{
		Include: []storage.Include{{Relation: "members", Where: storage.Where{"name": "Ada"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, entityIDs(got))

	got, err = s.FindAll(ctx, "Person", storage.FindOptions{
		Include: []storage.Include{{Relation: "belongsTo", Where: storage.Where{"name": map[string]any{"$like": "Res%"}}}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, entityIDs(got))

	_, err = s.FindAll(ctx, "OrgUnit", storage.FindOptions{Include: []storage.Include{{Relation: "owners"}}})
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestDestroyNullsForeignKeys(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	unit := mustSave(t, s, "OrgUnit", map[string]any{"id": "u1"})
	person := mustSave(t, s, "Person", map[string]any{"id": "p1"})

	acc, err := s.Relation("Person", "belongsTo")
	require.NoError(t, err)
	require.NoError(t, acc.Set(ctx, person, []*storage.Entity{unit}))
	require.NoError(t, s.Destroy(ctx, unit))

	fresh, err := s.FindByID(ctx, "Person", "p1", storage.FindOptions{})
	require.NoError(t, err)
	assert.Nil(t, fresh.Values["orgUnitId"])
}

func TestTransactions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	t.Run("rollback", func(t *testing.T) {
		txCtx, tx, err := s.Begin(ctx)
		require.NoError(t, err)
		committed := false
		tx.OnCommit(func() { committed = true })
		require.NoError(t, s.Save(txCtx, s.Build("Person", map[string]any{"id": "r"})))
		require.NoError(t, tx.Rollback())
		assert.False(t, committed)

		got, err := s.FindByID(ctx, "Person", "r", storage.FindOptions{})
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("commit", func(t *testing.T) {
		txCtx, tx, err := s.Begin(ctx)
		require.NoError(t, err)
		committed := false
		tx.OnCommit(func() { committed = true })
		require.NoError(t, s.Save(txCtx, s.Build("Person", map[string]any{"id": "c"})))
		require.NoError(t, tx.Commit())
		assert.True(t, committed)

		got, err := s.FindByID(ctx, "Person", "c", storage.FindOptions{})
		require.NoError(t, err)
		assert.NotNil(t, got)
	})
}
