package engine

import (
	"context"

	"github.com/roach88/syncset/internal/binding"
	"github.com/roach88/syncset/internal/predicate"
	"github.com/roach88/syncset/internal/record"
)

// Store is the backing-store boundary the engine consumes. A store
// hands out transactional scopes; every read and write runs inside one.
//
// Implementations translate their native failures into SyncError codes:
// constraint violations to CodeConstraint, exceeded deadlines to
// CodeTimeout, rejected queries to CodeQuery.
type Store interface {
	Begin(ctx context.Context) (Scope, error)
}

// Scope is one transactional unit of store work. Commit or Rollback
// must be called exactly once; Rollback after Commit is a no-op so
// `defer scope.Rollback()` is always safe.
type Scope interface {
	// Select returns the rows of b's table matching pred, as rows of
	// schema, ordered by primary key.
	Select(ctx context.Context, b *binding.Binding, schema *record.Schema, pred predicate.Pred) ([]*record.Row, error)

	// Insert writes one full row, skip-listed fields included.
	Insert(ctx context.Context, b *binding.Binding, row *record.Row) error

	// Update writes the dirty fields of row to the storage row
	// identified by before's key (and version, when bound). Returns the
	// number of rows affected; zero means a concurrent writer won.
	Update(ctx context.Context, b *binding.Binding, row *record.Row, dirty []string, before *record.Row) (int64, error)

	// Delete removes the storage row identified by key. Returns the
	// number of rows affected; zero means the row was already gone.
	Delete(ctx context.Context, b *binding.Binding, key record.KeyValue) (int64, error)

	Commit() error
	Rollback() error
}
