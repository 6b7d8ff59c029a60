// Package storage defines the persistence contract the resolver engine runs
// against: entity lookup and mutation, relation accessors and transactions.
package storage

import (
	"context"
	"sort"
)

// Entity is a stored (or about to be stored) row of an entity type.
// Values holds the loaded columns; a missing key means the column was not
// loaded, while a nil value is a stored NULL.
type Entity struct {
	Type   string
	Values map[string]any
}

// IDColumn is the primary key column of every entity table.
const IDColumn = "id"

// ID returns the entity's identifier.
func (e *Entity) ID() string {
	id, _ := e.Values[IDColumn].(string)
	return id
}

// Get returns a column value and whether it was loaded.
func (e *Entity) Get(column string) (any, bool) {
	v, ok := e.Values[column]
	return v, ok
}

// Operator is a storage level comparison or logical operator.
type Operator string

const (
	OpEq         Operator = "$eq"
	OpNe         Operator = "$ne"
	OpGt         Operator = "$gt"
	OpGte        Operator = "$gte"
	OpLt         Operator = "$lt"
	OpLte        Operator = "$lte"
	OpLike       Operator = "$like"
	OpNotLike    Operator = "$notLike"
	OpILike      Operator = "$iLike"
	OpNotILike   Operator = "$notILike"
	OpIn         Operator = "$in"
	OpNotIn      Operator = "$notIn"
	OpIs         Operator = "$is"
	OpNot        Operator = "$not"
	OpBetween    Operator = "$between"
	OpNotBetween Operator = "$notBetween"
	OpAnd        Operator = "$and"
	OpOr         Operator = "$or"
)

// IsOperator reports whether a rewritten where key is a storage operator.
func IsOperator(key string) bool {
	return len(key) > 0 && key[0] == '$'
}

// Where is a filter tree. Keys are attribute names or storage operators.
// Attribute values are leaves (equality), lists (membership) or nested
// operator maps.
type Where map[string]any

// Include restricts results to entities having at least one related entity
// through Relation matching Where (and the nested includes).
type Include struct {
	Relation string
	Where    Where
	Include  []Include
}

// OrderTerm sorts by one column.
type OrderTerm struct {
	Field string
	Desc  bool
}

// FindOptions parameterize lookups.
type FindOptions struct {
	Where   Where
	Include []Include
	Order   []OrderTerm
	Offset  int
	// Limit nil means unlimited.
	Limit *int
	// Attributes restricts the loaded columns; nil loads all. The id column
	// is always loaded.
	Attributes []string
}

// Store is the storage collaborator of the engine.
type Store interface {
	FindByID(ctx context.Context, typ, id string, opts FindOptions) (*Entity, error)
	FindOne(ctx context.Context, typ string, opts FindOptions) (*Entity, error)
	FindAll(ctx context.Context, typ string, opts FindOptions) ([]*Entity, error)
	Build(typ string, values map[string]any) *Entity
	Save(ctx context.Context, e *Entity) error
	Update(ctx context.Context, e *Entity, values map[string]any) error
	Destroy(ctx context.Context, e *Entity) error

	// Relation returns the accessor registered for relation name of typ.
	Relation(typ, name string) (RelationAccessor, error)
	// Operators maps the public where operator names onto storage operators.
	Operators() map[string]Operator
	// Columns returns the storage-native columns of typ.
	Columns(typ string) []string

	// Begin starts a transaction and returns a context carrying it.
	Begin(ctx context.Context) (context.Context, Tx, error)
}

// RelationAccessor reads and changes the associations of one relation.
type RelationAccessor interface {
	Get(ctx context.Context, owner *Entity, opts FindOptions) ([]*Entity, error)
	Set(ctx context.Context, owner *Entity, targets []*Entity) error
	Add(ctx context.Context, owner *Entity, targets []*Entity) error
	Remove(ctx context.Context, owner *Entity, targets []*Entity) error
}

// DefaultOperators is the public operator vocabulary of where arguments.
func DefaultOperators() map[string]Operator {
	return map[string]Operator{
		"_eq":         OpEq,
		"_ne":         OpNe,
		"_gt":         OpGt,
		"_gte":        OpGte,
		"_lt":         OpLt,
		"_lte":        OpLte,
		"_like":       OpLike,
		"_notLike":    OpNotLike,
		"_iLike":      OpILike,
		"_notILike":   OpNotILike,
		"_in":         OpIn,
		"_notIn":      OpNotIn,
		"_is":         OpIs,
		"_not":        OpNot,
		"_between":    OpBetween,
		"_notBetween": OpNotBetween,
		"_and":        OpAnd,
		"_or":         OpOr,
	}
}

// OperatorNames returns the public operator names, sorted.
func OperatorNames(ops map[string]Operator) []string {
	names := make([]string, 0, len(ops))
	for name := range ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
