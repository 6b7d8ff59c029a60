package search

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hmans/entityql/internal/apperr"
	"github.com/hmans/entityql/internal/model"
	"github.com/hmans/entityql/internal/storage"
	"github.com/hmans/entityql/internal/storage/sqlstore"
)

func setupStore(t *testing.T) *sqlstore.Datastore {
	t.Helper()
	s, err := sqlstore.New(filepath.Join(t.TempDir(), "test.db"), model.Sample(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Bootstrap(context.Background()))
	return s
}

func setupManager(t *testing.T, s storage.Store, cfg Config) *Manager {
	t.Helper()
	m := NewManager(cfg, s, nil)
	require.NoError(t, m.Boot(context.Background()))
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func personConfig() Config {
	return Config{Enabled: true, Types: map[string][]string{"Person": {"name", "initials"}}}
}

func createPerson(t *testing.T, s storage.Store, m *Manager, id, name, initials string) *storage.Entity {
	t.Helper()
	ctx := context.Background()
	e := s.Build("Person", map[string]any{"id": id, "name": name, "initials": initials})
	require.NoError(t, s.Save(ctx, e))
	require.NoError(t, m.Update(ctx, "Person", id, e, OpCreate))
	return e
}

func TestRoundTrip(t *testing.T) {
	s := setupStore(t)
	m := setupManager(t, s, personConfig())
	ctx := context.Background()

	e := createPerson(t, s, m, "p1", "Acme", "AC")

	ids, err := m.IDs("Person", "name:Acme")
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, ids)

	require.NoError(t, s.Destroy(ctx, e))
	require.NoError(t, m.Update(ctx, "Person", "p1", nil, OpDelete))

	ids, err = m.IDs("Person", "name:Acme")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestBootIndexesExistingRows(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, s.Build("Person", map[string]any{"id": "p1", "name": "Grace Hopper"})))
	require.NoError(t, s.Save(ctx, s.Build("Person", map[string]any{"id": "p2", "name": "Alan Turing"})))

	m := setupManager(t, s, personConfig())

	ids, err := m.IDs("Person", "hopper")
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, ids)

	n, err := m.index("Person").DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), n)
}

func TestQueryGrammar(t *testing.T) {
	s := setupStore(t)
	m := setupManager(t, s, personConfig())

	createPerson(t, s, m, "p1", "Grace Hopper", "GH")
	createPerson(t, s, m, "p2", "Grace Kelly", "GK")
	createPerson(t, s, m, "p3", "Alan Turing", "AT")

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"any field", "grace", []string{"p1", "p2"}},
		{"prefix", "name:Gra", []string{"p1", "p2"}},
		{"case insensitive", "name:TURING", []string{"p3"}},
		{"and within group", "grace hopper", []string{"p1"}},
		{"field restricted and", "name:grace initials:GK", []string{"p2"}},
		{"or across groups", "hopper, turing", []string{"p1", "p3"}},
		{"no match", "lovelace", []string{}},
		{"empty", "  ", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids, err := m.IDs("Person", tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestUpdateReplacesDocument(t *testing.T) {
	s := setupStore(t)
	m := setupManager(t, s, personConfig())
	ctx := context.Background()

	e := createPerson(t, s, m, "p1", "Grace", "GH")
	require.NoError(t, s.Update(ctx, e, map[string]any{"name": "Ada"}))
	require.NoError(t, m.Update(ctx, "Person", "p1", e, OpUpdate))

	ids, err := m.IDs("Person", "name:grace")
	require.NoError(t, err)
	assert.Empty(t, ids)

	ids, err = m.IDs("Person", "name:ada")
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, ids)
}

func TestUnavailable(t *testing.T) {
	s := setupStore(t)
	m := setupManager(t, s, personConfig())

	_, err := m.IDs("Project", "anything")
	require.ErrorIs(t, err, apperr.ErrFeatureUnavailable)

	_, err = m.IDs("Person", "role:ENGINEER")
	require.ErrorIs(t, err, apperr.ErrFeatureUnavailable)
	assert.Contains(t, err.Error(), `"role"`)

	disabled := setupManager(t, s, Config{Enabled: false, Types: personConfig().Types})
	_, err = disabled.IDs("Person", "anything")
	require.ErrorIs(t, err, apperr.ErrFeatureUnavailable)
	assert.False(t, disabled.Configured("Person"))

	// updates of unindexed types are ignored
	require.NoError(t, m.Update(context.Background(), "Project", "x", nil, OpDelete))
}

func TestBootRejectsUnknownFields(t *testing.T) {
	s := setupStore(t)

	m := NewManager(Config{Enabled: true, Types: map[string][]string{"Person": {"salary"}}}, s, nil)
	require.ErrorIs(t, m.Boot(context.Background()), apperr.ErrSchema)

	m = NewManager(Config{Enabled: true, Types: map[string][]string{"Robot": {"name"}}}, s, nil)
	require.ErrorIs(t, m.Boot(context.Background()), apperr.ErrSchema)
}

func TestSearchFetchesFromStorage(t *testing.T) {
	s := setupStore(t)
	m := setupManager(t, s, personConfig())
	ctx := context.Background()

	createPerson(t, s, m, "p1", "Grace Hopper", "GH")
	createPerson(t, s, m, "p2", "Grace Kelly", "GK")
	createPerson(t, s, m, "p3", "Alan Turing", "AT")

	limit := 1
	got, err := m.Search(ctx, "Person", "grace", storage.FindOptions{
		Order: []storage.OrderTerm{{Field: "name", Desc: true}},
		Limit: &limit,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "p2", got[0].ID())

	got, err = m.Search(ctx, "Person", "grace", storage.FindOptions{Where: storage.Where{"initials": "GH"}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "p1", got[0].ID())

	got, err = m.Search(ctx, "Person", "lovelace", storage.FindOptions{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDeferUntilCommit(t *testing.T) {
	s := setupStore(t)
	cfg := personConfig()
	cfg.DeferUntilCommit = true
	m := setupManager(t, s, cfg)
	ctx := context.Background()

	t.Run("commit applies", func(t *testing.T) {
		txCtx, tx, err := s.Begin(ctx)
		require.NoError(t, err)
		e := s.Build("Person", map[string]any{"id": "p1", "name": "Grace"})
		require.NoError(t, s.Save(txCtx, e))
		require.NoError(t, m.Update(txCtx, "Person", "p1", e, OpCreate))

		ids, err := m.IDs("Person", "grace")
		require.NoError(t, err)
		assert.Empty(t, ids)

		require.NoError(t, tx.Commit())
		ids, err = m.IDs("Person", "grace")
		require.NoError(t, err)
		assert.Equal(t, []string{"p1"}, ids)
	})

	t.Run("rollback drops", func(t *testing.T) {
		txCtx, tx, err := s.Begin(ctx)
		require.NoError(t, err)
		e := s.Build("Person", map[string]any{"id": "p2", "name": "Alan"})
		require.NoError(t, s.Save(txCtx, e))
		require.NoError(t, m.Update(txCtx, "Person", "p2", e, OpCreate))
		require.NoError(t, tx.Rollback())

		ids, err := m.IDs("Person", "alan")
		require.NoError(t, err)
		assert.Empty(t, ids)
	})
}
