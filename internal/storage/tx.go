package storage

import (
	"context"
	"sync"
)

// Tx is a storage transaction.
type Tx interface {
	Commit() error
	Rollback() error
	// OnCommit registers fn to run after a successful commit.
	OnCommit(fn func())
}

type txKey struct{}

// WithTx returns a context carrying tx.
func WithTx(ctx context.Context, tx Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFromContext returns the transaction carried by ctx, if any.
func TxFromContext(ctx context.Context) (Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(Tx)
	return tx, ok
}

// CommitHooks collects OnCommit callbacks for Tx implementations.
type CommitHooks struct {
	mu    sync.Mutex
	hooks []func()
}

// Add registers fn.
func (h *CommitHooks) Add(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = append(h.hooks, fn)
}

// Run invokes and clears all registered callbacks in registration order.
func (h *CommitHooks) Run() {
	h.mu.Lock()
	hooks := h.hooks
	h.hooks = nil
	h.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
}

// Discard clears all registered callbacks.
func (h *CommitHooks) Discard() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = nil
}
