package tx

import (
	"context"
	"sync"

	"github.com/jmoiron/sqlx"
)

type ctxKey struct{}

var txKey = ctxKey{}

// WithTx stores a SQL transaction in context for downstream store usage.
func WithTx(ctx context.Context, tx *sqlx.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey, tx)
}

// From extracts a SQL transaction from context if present.
func From(ctx context.Context) (*sqlx.Tx, bool) {
	tx, ok := ctx.Value(txKey).(*sqlx.Tx)
	return tx, ok
}

// Executor is the subset of sqlx shared by *sqlx.DB and *sqlx.Tx.
type Executor interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

// Pick returns the transaction carried by ctx, falling back to db.
func Pick(ctx context.Context, db *sqlx.DB) Executor {
	if tx, ok := From(ctx); ok {
		return tx
	}
	return db
}

// Runner executes fn atomically.
type Runner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// LockRunner serializes every transaction behind one lock. It gives in-memory
// stores the isolation a database transaction would. Nested calls on the same
// runner reuse the held lock. Stores that read through View never observe a
// transaction half applied.
type LockRunner struct {
	mu sync.RWMutex
}

type lockHeldKey struct{}

func (r *LockRunner) held(ctx context.Context) bool {
	held, _ := ctx.Value(lockHeldKey{}).(*LockRunner)
	return held == r
}

func (r *LockRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if r.held(ctx) {
		return fn(ctx)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(context.WithValue(ctx, lockHeldKey{}, r))
}

// View takes the shared side of the lock for a read outside any transaction
// and returns its release. Reads made inside RunInTx, and reads through a nil
// runner, take nothing.
func (r *LockRunner) View(ctx context.Context) (release func()) {
	if r == nil || r.held(ctx) {
		return func() {}
	}
	r.mu.RLock()
	return r.mu.RUnlock
}
