package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/hmans/entityql/internal/config"
	"github.com/hmans/entityql/internal/engine"
	"github.com/hmans/entityql/internal/graph"
	"github.com/hmans/entityql/internal/hook"
	"github.com/hmans/entityql/internal/ident"
	"github.com/hmans/entityql/internal/model"
	"github.com/hmans/entityql/internal/policy"
	"github.com/hmans/entityql/internal/schema"
	"github.com/hmans/entityql/internal/search"
	"github.com/hmans/entityql/internal/storage/sqlstore"
)

// application is everything a command needs to execute GraphQL requests.
type application struct {
	registry *schema.Registry
	store    *sqlstore.Datastore
	fts      *search.Manager
	enforcer *policy.Enforcer
	engine   *engine.Engine
	executor *graph.Executor
}

// openApp wires the model, database, search indexes and policy of the
// project in dir according to c.
func openApp(ctx context.Context, dir string, c *config.Config) (*application, error) {
	m, err := model.Load(config.ResolvePath(dir, c.Model))
	if err != nil {
		return nil, fmt.Errorf("loading model: %w", err)
	}

	registry, err := schema.NewRegistry(m, c.ID.Type)
	if err != nil {
		return nil, err
	}

	store, err := sqlstore.New(databasePath(dir, c.Database), m, log)
	if err != nil {
		return nil, err
	}
	if err := store.Bootstrap(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}

	app := &application{registry: registry, store: store}

	app.fts = search.NewManager(search.Config{
		Enabled:          c.FTS.Enabled,
		Types:            c.FTS.Types,
		DeferUntilCommit: c.FTS.DeferUntilCommit,
	}, store, log)
	if err := app.fts.Boot(ctx); err != nil {
		app.Close()
		return nil, fmt.Errorf("building search indexes: %w", err)
	}

	app.enforcer, err = policy.NewEnforcer(config.ResolvePath(dir, c.Policy), log)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("loading policy: %w", err)
	}

	newID, err := ident.New(c.ID.Generator)
	if err != nil {
		app.Close()
		return nil, err
	}

	hooks := app.enforcer.Hooks()
	hooks.Tracer = hook.LogTracer(log)

	app.engine = engine.New(registry, store, engine.Options{
		IDGenerator: newID,
		Hooks:       hooks,
		FTS:         app.fts,
		Logger:      log,
	})

	app.executor, err = graph.NewExecutor(&graph.Resolver{Engine: app.engine}, log)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("building schema: %w", err)
	}
	return app, nil
}

// Close releases the indexes, the policy watcher and the database.
func (a *application) Close() {
	if a.enforcer != nil {
		a.enforcer.Unwatch()
	}
	if a.fts != nil {
		_ = a.fts.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
}

// databasePath resolves a database file relative to dir. In-memory and URI
// style names are used as given.
func databasePath(dir, db string) string {
	if strings.HasPrefix(db, ":") || strings.HasPrefix(db, "file:") {
		return db
	}
	return config.ResolvePath(dir, db)
}
