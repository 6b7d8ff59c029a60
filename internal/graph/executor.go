package graph

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/gqlerrors"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"go.uber.org/zap"

	"github.com/hmans/entityql/internal/apperr"
	"github.com/hmans/entityql/internal/logger"
	"github.com/hmans/entityql/internal/storage"
)

// Request is a GraphQL request as posted by clients.
type Request struct {
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables,omitempty"`
	OperationName string         `json:"operationName,omitempty"`
}

// Executor runs requests against the schema, each in its own transaction.
type Executor struct {
	schema graphql.Schema
	store  storage.Store
	logger logger.Logger
}

// NewExecutor builds the schema of r and returns an executor for it.
func NewExecutor(r *Resolver, log logger.Logger) (*Executor, error) {
	s, err := NewSchema(r)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewNoopLogger()
	}
	return &Executor{schema: s, store: r.Engine.Store(), logger: log}, nil
}

// Schema returns the executable schema.
func (x *Executor) Schema() graphql.Schema {
	return x.schema
}

// Execute runs req inside a transaction that is committed when the result
// has no errors and rolled back otherwise.
func (x *Executor) Execute(ctx context.Context, req Request) *graphql.Result {
	start := time.Now()

	txCtx, tx, err := x.store.Begin(ctx)
	if err != nil {
		return &graphql.Result{Errors: []gqlerrors.FormattedError{formatError(err)}}
	}

	result := graphql.Do(graphql.Params{
		Schema:         x.schema,
		RequestString:  req.Query,
		VariableValues: req.Variables,
		OperationName:  req.OperationName,
		Context:        txCtx,
	})

	if result.HasErrors() {
		if err := tx.Rollback(); err != nil {
			x.logger.WarnWithContext(ctx, "rollback failed", zap.Error(err))
		}
	} else if err := tx.Commit(); err != nil {
		result.Data = nil
		result.Errors = append(result.Errors, formatError(err))
	}

	x.logger.DebugWithContext(ctx, "graphql request",
		zap.String("operation", req.OperationName),
		zap.Int("errors", len(result.Errors)),
		zap.Duration("duration", time.Since(start)))
	return result
}

func formatError(err error) gqlerrors.FormattedError {
	return gqlerrors.FormattedError{
		Message:    err.Error(),
		Extensions: map[string]any{"code": apperr.Code(err)},
	}
}

// ErrorList converts result errors for printing with gqlparser's error
// formatting.
func ErrorList(errs []gqlerrors.FormattedError) gqlerror.List {
	list := make(gqlerror.List, 0, len(errs))
	for _, e := range errs {
		list = append(list, &gqlerror.Error{Message: e.Message, Extensions: e.Extensions})
	}
	return list
}

// ServeHTTP answers POST requests with a JSON encoded result.
func (x *Executor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	result := x.Execute(r.Context(), req)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		x.logger.WarnWithContext(r.Context(), "writing response failed", zap.Error(err))
	}
}
