// Package search provides full-text search over configured entity types
// using in-memory Bleve indexes.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"go.uber.org/zap"

	"github.com/hmans/entityql/internal/apperr"
	"github.com/hmans/entityql/internal/logger"
	"github.com/hmans/entityql/internal/metrics"
	"github.com/hmans/entityql/internal/storage"
)

// AnyField is the synthetic field holding the id and all indexed values.
const AnyField = "__any"

// Op is the kind of change an index update reflects.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Config selects the indexed entity types and their fields.
type Config struct {
	Enabled bool
	// Types maps an entity type to its indexed attributes.
	Types map[string][]string
	// DeferUntilCommit applies index changes made inside a transaction only
	// once it commits.
	DeferUntilCommit bool
}

// Manager keeps one index per configured entity type.
type Manager struct {
	cfg    Config
	store  storage.Store
	logger logger.Logger

	mu      sync.RWMutex
	indexes map[string]bleve.Index
}

// NewManager returns a manager for cfg. Indexes exist only after Boot.
func NewManager(cfg Config, store storage.Store, log logger.Logger) *Manager {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	return &Manager{
		cfg:     cfg,
		store:   store,
		logger:  log,
		indexes: map[string]bleve.Index{},
	}
}

// buildIndexMapping creates the mapping for documents of one entity type.
func buildIndexMapping(fields []string) mapping.IndexMapping {
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = "standard"

	keywordFieldMapping := bleve.NewKeywordFieldMapping()

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("id", keywordFieldMapping)
	docMapping.AddFieldMappingsAt(AnyField, textFieldMapping)
	for _, f := range fields {
		docMapping.AddFieldMappingsAt(f, textFieldMapping)
	}

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = "standard"
	indexMapping.IndexDynamic = false
	indexMapping.StoreDynamic = false
	indexMapping.ScoringModel = "bm25"

	return indexMapping
}

// Boot builds the index of every configured type from the rows currently
// stored. Calling it again rebuilds the indexes.
func (m *Manager) Boot(ctx context.Context) error {
	if !m.cfg.Enabled {
		return nil
	}

	types := make([]string, 0, len(m.cfg.Types))
	for typ := range m.cfg.Types {
		types = append(types, typ)
	}
	sort.Strings(types)

	indexes := make(map[string]bleve.Index, len(types))
	for _, typ := range types {
		idx, err := m.bootType(ctx, typ)
		if err != nil {
			for _, built := range indexes {
				_ = built.Close()
			}
			return err
		}
		indexes[typ] = idx
	}

	m.mu.Lock()
	old := m.indexes
	m.indexes = indexes
	m.mu.Unlock()
	for _, idx := range old {
		_ = idx.Close()
	}
	return nil
}

func (m *Manager) bootType(ctx context.Context, typ string) (bleve.Index, error) {
	fields := m.cfg.Types[typ]
	cols := m.store.Columns(typ)
	if cols == nil {
		return nil, apperr.Errorf(apperr.ErrSchema, "full-text search configured for unknown entity type %q", typ)
	}
	for _, f := range fields {
		if !contains(cols, f) {
			return nil, apperr.Errorf(apperr.ErrSchema, "full-text search configured for unknown field %q of entity type %q", f, typ)
		}
	}

	idx, err := bleve.NewMemOnly(buildIndexMapping(fields))
	if err != nil {
		return nil, fmt.Errorf("creating index for %s: %w", typ, err)
	}

	rows, err := m.store.FindAll(ctx, typ, storage.FindOptions{Attributes: fields})
	if err != nil {
		_ = idx.Close()
		return nil, err
	}

	batch := idx.NewBatch()
	for _, e := range rows {
		if err := batch.Index(e.ID(), m.document(typ, e)); err != nil {
			_ = idx.Close()
			return nil, err
		}
	}
	if err := idx.Batch(batch); err != nil {
		_ = idx.Close()
		return nil, err
	}

	m.logger.Debug("fts index built", zap.String("type", typ), zap.Int("documents", len(rows)))
	m.observe(typ, idx)
	return idx, nil
}

// Close closes all indexes.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	for typ, idx := range m.indexes {
		if err := idx.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(m.indexes, typ)
	}
	return firstErr
}

// Enabled reports whether full-text search is enabled at all.
func (m *Manager) Enabled() bool {
	return m.cfg.Enabled
}

// Configured reports whether typ has an index.
func (m *Manager) Configured(typ string) bool {
	return m.index(typ) != nil
}

func (m *Manager) index(typ string) bleve.Index {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.indexes[typ]
}

// document derives the indexed document of e.
func (m *Manager) document(typ string, e *storage.Entity) map[string]any {
	id := e.ID()
	doc := map[string]any{"id": id}
	all := []string{id}
	for _, f := range m.cfg.Types[typ] {
		val := stringify(e.Values[f])
		doc[f] = val
		all = append(all, val)
	}
	doc[AnyField] = strings.Join(all, " ")
	return doc
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case map[string]any, []any:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	default:
		return fmt.Sprint(val)
	}
}

// Update reflects a change of the entity id of typ in its index. e is the
// post-image for create and update and ignored for delete. Types without an
// index are ignored.
func (m *Manager) Update(ctx context.Context, typ, id string, e *storage.Entity, op Op) error {
	idx := m.index(typ)
	if idx == nil {
		return nil
	}

	var doc map[string]any
	if op != OpDelete {
		if e == nil {
			return fmt.Errorf("fts %s of %s#%s without an entity", op, typ, id)
		}
		doc = m.document(typ, e)
	}

	apply := func() error {
		var err error
		if op == OpDelete {
			err = idx.Delete(id)
		} else {
			err = idx.Index(id, doc)
		}
		if err != nil {
			return fmt.Errorf("fts %s of %s#%s: %w", op, typ, id, err)
		}
		m.observe(typ, idx)
		return nil
	}

	if m.cfg.DeferUntilCommit {
		if tx, ok := storage.TxFromContext(ctx); ok {
			tx.OnCommit(func() {
				if err := apply(); err != nil {
					m.logger.Warn("deferred fts update failed", zap.Error(err))
				}
			})
			return nil
		}
	}
	return apply()
}

func (m *Manager) observe(typ string, idx bleve.Index) {
	if n, err := idx.DocCount(); err == nil {
		metrics.SetFTSDocuments(typ, n)
	}
}

var (
	groupSepRe  = regexp.MustCompile(`\s*,\s*`)
	fieldTermRe = regexp.MustCompile(`^(.+):(.+)$`)
)

// parseQuery splits "[field:]keyword [field:]keyword [, ...]" into OR groups
// of AND terms, each term mapped to the field it searches.
func (m *Manager) parseQuery(typ, q string) ([][]term, error) {
	var groups [][]term
	for _, group := range groupSepRe.Split(strings.TrimSpace(q), -1) {
		var terms []term
		for _, word := range strings.Fields(group) {
			t := term{field: AnyField, keyword: word}
			if match := fieldTermRe.FindStringSubmatch(word); match != nil {
				t.field, t.keyword = match[1], match[2]
			}
			if t.field != AnyField && !contains(m.cfg.Types[typ], t.field) {
				return nil, apperr.Errorf(apperr.ErrFeatureUnavailable, "full-text search not available for field %q of entity %q", t.field, typ)
			}
			terms = append(terms, t)
		}
		if len(terms) > 0 {
			groups = append(groups, terms)
		}
	}
	return groups, nil
}

type term struct {
	field   string
	keyword string
}

// compile turns the groups into a Bleve query. A keyword matches analyzed
// tokens exactly or as a prefix.
func compile(groups [][]term) query.Query {
	var ors []query.Query
	for _, group := range groups {
		var ands []query.Query
		for _, t := range group {
			match := bleve.NewMatchQuery(t.keyword)
			match.SetField(t.field)
			match.SetOperator(query.MatchQueryOperatorAnd)

			prefix := bleve.NewPrefixQuery(strings.ToLower(t.keyword))
			prefix.SetField(t.field)

			ands = append(ands, bleve.NewDisjunctionQuery(match, prefix))
		}
		ors = append(ors, bleve.NewConjunctionQuery(ands...))
	}
	return bleve.NewDisjunctionQuery(ors...)
}

// IDs returns the ids of typ matching q, sorted.
func (m *Manager) IDs(typ, q string) ([]string, error) {
	if !m.cfg.Enabled {
		return nil, apperr.Errorf(apperr.ErrFeatureUnavailable, "full-text search not available at all")
	}
	idx := m.index(typ)
	if idx == nil {
		return nil, apperr.Errorf(apperr.ErrFeatureUnavailable, "full-text search not available for entity %q", typ)
	}

	groups, err := m.parseQuery(typ, q)
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return []string{}, nil
	}

	total, err := idx.DocCount()
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return []string{}, nil
	}

	req := bleve.NewSearchRequest(compile(groups))
	req.Size = int(total)
	req.Fields = []string{"id"}

	result, err := idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", typ, err)
	}

	ids := make([]string, 0, len(result.Hits))
	for _, hit := range result.Hits {
		ids = append(ids, hit.ID)
	}
	sort.Strings(ids)
	return ids, nil
}

// Search returns the entities of typ matching q, fetched from storage with
// the order, offset, limit and projection of opts. A where of opts further
// restricts the matches.
func (m *Manager) Search(ctx context.Context, typ, q string, opts storage.FindOptions) ([]*storage.Entity, error) {
	ids, err := m.IDs(typ, q)
	if err != nil {
		return nil, err
	}

	list := make([]any, len(ids))
	for i, id := range ids {
		list[i] = id
	}
	byID := storage.Where{storage.IDColumn: list}
	if len(opts.Where) > 0 {
		opts.Where = storage.Where{string(storage.OpAnd): []any{opts.Where, byID}}
	} else {
		opts.Where = byID
	}
	return m.store.FindAll(ctx, typ, opts)
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
