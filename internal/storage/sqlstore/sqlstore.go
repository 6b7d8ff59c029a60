// Package sqlstore implements storage.Store on SQLite using squirrel to
// build statements from the entity model.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"go.uber.org/zap"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/hmans/entityql/internal/apperr"
	"github.com/hmans/entityql/internal/logger"
	"github.com/hmans/entityql/internal/model"
	"github.com/hmans/entityql/internal/storage"
)

// Datastore is a SQLite backed storage.Store.
type Datastore struct {
	db        *sql.DB
	model     *model.Model
	ops       map[string]storage.Operator
	relations map[string]map[string]*relationAccessor
	logger    logger.Logger
}

var _ storage.Store = (*Datastore)(nil)

// PrepareDSN adds default pragmas for journal mode, busy timeout and foreign
// keys, and immediate transaction locking, unless the DSN sets them.
func PrepareDSN(uri string) (string, error) {
	query := url.Values{}
	var err error

	if i := strings.Index(uri, "?"); i != -1 {
		query, err = url.ParseQuery(uri[i+1:])
		if err != nil {
			return uri, fmt.Errorf("error parsing dsn: %w", err)
		}
		uri = uri[:i]
	}

	foundJournalMode := false
	foundBusyTimeout := false
	foundForeignKeys := false
	for _, val := range query["_pragma"] {
		switch {
		case strings.HasPrefix(val, "journal_mode"):
			foundJournalMode = true
		case strings.HasPrefix(val, "busy_timeout"):
			foundBusyTimeout = true
		case strings.HasPrefix(val, "foreign_keys"):
			foundForeignKeys = true
		}
	}

	if !foundJournalMode {
		query.Add("_pragma", "journal_mode(WAL)")
	}
	if !foundBusyTimeout {
		query.Add("_pragma", "busy_timeout(100)")
	}
	if !foundForeignKeys {
		query.Add("_pragma", "foreign_keys(1)")
	}
	if !query.Has("_txlock") {
		query.Set("_txlock", "immediate")
	}

	return uri + "?" + query.Encode(), nil
}

// New opens the database at uri for the entities of m. Tables are not
// created; call Bootstrap for that.
func New(uri string, m *model.Model, log logger.Logger) (*Datastore, error) {
	uri, err := PrepareDSN(uri)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", uri)
	if err != nil {
		return nil, fmt.Errorf("initialize sqlite connection: %w", err)
	}
	// SQLite has a single writer, and in-memory databases exist per connection.
	db.SetMaxOpenConns(1)

	if log == nil {
		log = logger.NewNoopLogger()
	}

	s := &Datastore{
		db:        db,
		model:     m,
		ops:       storage.DefaultOperators(),
		relations: map[string]map[string]*relationAccessor{},
		logger:    log,
	}
	for _, name := range m.EntityNames() {
		e := m.Entity(name)
		s.relations[name] = map[string]*relationAccessor{}
		for _, relName := range e.RelationNames() {
			rel := e.Relations[relName]
			s.relations[name][relName] = &relationAccessor{
				store:  s,
				rel:    rel,
				owner:  e,
				target: m.Entity(rel.Target),
			}
		}
	}
	return s, nil
}

// Close closes the database.
func (s *Datastore) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for health checks and tests.
func (s *Datastore) DB() *sql.DB {
	return s.db
}

// Operators implements storage.Store.
func (s *Datastore) Operators() map[string]storage.Operator {
	return s.ops
}

// Columns implements storage.Store.
func (s *Datastore) Columns(typ string) []string {
	if e := s.model.Entity(typ); e != nil {
		return e.Columns()
	}
	return nil
}

// Relation implements storage.Store.
func (s *Datastore) Relation(typ, name string) (storage.RelationAccessor, error) {
	rels, ok := s.relations[typ]
	if !ok {
		return nil, apperr.Errorf(apperr.ErrSchema, "no such entity type %q", typ)
	}
	acc, ok := rels[name]
	if !ok {
		return nil, apperr.Errorf(apperr.ErrSchema, "no such relation %q on type %q", name, typ)
	}
	return acc, nil
}

// Tx is a SQLite transaction.
type Tx struct {
	tx    *sql.Tx
	store *Datastore
	hooks storage.CommitHooks
}

// Commit commits and then runs the OnCommit callbacks.
func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		t.hooks.Discard()
		return HandleSQLError(err)
	}
	t.hooks.Run()
	return nil
}

// Rollback aborts and drops the OnCommit callbacks.
func (t *Tx) Rollback() error {
	t.hooks.Discard()
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return HandleSQLError(err)
	}
	return nil
}

// OnCommit implements storage.Tx.
func (t *Tx) OnCommit(fn func()) {
	t.hooks.Add(fn)
}

// Begin implements storage.Store.
func (s *Datastore) Begin(ctx context.Context) (context.Context, storage.Tx, error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ctx, nil, HandleSQLError(err)
	}
	tx := &Tx{tx: sqlTx, store: s}
	return storage.WithTx(ctx, tx), tx, nil
}

// dbRunner is satisfied by both *sql.DB and *sql.Tx.
type dbRunner interface {
	sq.BaseRunner
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// runner returns the transaction carried by ctx, or the database.
func (s *Datastore) runner(ctx context.Context) dbRunner {
	if tx, ok := storage.TxFromContext(ctx); ok {
		if t, ok := tx.(*Tx); ok && t.store == s {
			return t.tx
		}
	}
	return s.db
}

func (s *Datastore) entity(typ string) (*model.Entity, error) {
	e := s.model.Entity(typ)
	if e == nil {
		return nil, apperr.Errorf(apperr.ErrSchema, "no such entity type %q", typ)
	}
	return e, nil
}

// HandleSQLError maps driver errors onto the error taxonomy.
func HandleSQLError(err error, args ...any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.Wrap(apperr.ErrNotFound, err, "not found")
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		if sqliteErr.Code()&0xFF == sqlite3.SQLITE_CONSTRAINT {
			if len(args) > 0 {
				if e, ok := args[0].(*storage.Entity); ok {
					return apperr.Wrap(apperr.ErrConflict, err, "constraint violation on %s#%s", e.Type, e.ID())
				}
			}
			return apperr.Wrap(apperr.ErrConflict, err, "constraint violation")
		}
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	return apperr.Wrap(apperr.ErrStorage, err, "sql error")
}

func (s *Datastore) logQuery(ctx context.Context, stmt sq.Sqlizer) {
	query, args, err := stmt.ToSql()
	if err != nil {
		return
	}
	s.logger.DebugWithContext(ctx, "sql", zap.String("query", query), zap.Any("args", args))
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func qualify(alias, column string) string {
	return alias + "." + quote(column)
}
