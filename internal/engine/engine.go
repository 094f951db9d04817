// Package engine reconciles change-tracked containers with a backing
// store: it fills containers from queries and turns tracked mutations
// into the minimal, correctly ordered set of insert, update, and delete
// statements, inside a single transactional scope.
//
// The engine runs request/response style: one synchronization operation
// completes before the next begins against the same dataset. It holds
// no internal parallelism and performs no blocking waits of its own
// beyond the store call.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/roach88/syncset/internal/binding"
	"github.com/roach88/syncset/internal/dataset"
	"github.com/roach88/syncset/internal/predicate"
	"github.com/roach88/syncset/internal/record"
	"github.com/roach88/syncset/internal/track"
)

// DeletePolicy decides what a delete affecting zero storage rows means.
type DeletePolicy int

const (
	// DeleteIdempotent treats a zero-row delete as success: the row is
	// gone either way, and the local tombstone is removed. This is the
	// default, matching the tolerant behavior of the pattern this
	// library grew out of.
	DeleteIdempotent DeletePolicy = iota

	// DeleteStrict reports a zero-row delete as CodeNotFound, for
	// callers that treat a stale key as a bug worth surfacing.
	DeleteStrict
)

// Validator is a pluggable business-rule check, invoked per affected
// row before Create and Update. A false result rejects the row with the
// message; sibling rows are unaffected.
type Validator func(row *record.Row) (valid bool, message string)

// KeyGenerator produces generated keys for inserts whose single text
// key field is still zero.
type KeyGenerator func() string

// RowError identifies one rejected row.
type RowError struct {
	Container string
	Row       int
	Key       string
	Code      Code
	Message   string
}

// Report summarizes one synchronization call. Rejected lists rows that
// were refused (validation) without aborting their siblings.
type Report struct {
	Inserted int
	Updated  int
	Deleted  int
	Rejected []RowError
}

// OK reports whether every affected row was accepted.
func (r *Report) OK() bool {
	return len(r.Rejected) == 0
}

// Engine executes synchronization primitives against a Store.
type Engine struct {
	store        Store
	log          *slog.Logger
	deletePolicy DeletePolicy
	genKey       KeyGenerator
}

// Option configures an engine.
type Option func(*Engine)

// WithLogger sets the engine's logger. Without it, logs are dropped.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithDeletePolicy sets the zero-row delete policy.
func WithDeletePolicy(p DeletePolicy) Option {
	return func(e *Engine) { e.deletePolicy = p }
}

// WithKeyGenerator replaces the default uuid key generator.
func WithKeyGenerator(g KeyGenerator) Option {
	return func(e *Engine) { e.genKey = g }
}

// New creates an engine over the given store.
func New(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:        store,
		log:          slog.New(slog.DiscardHandler),
		deletePolicy: DeleteIdempotent,
		genKey:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Read fills the container with the rows matching pred, replacing its
// contents. All-or-nothing: on error the container is left untouched.
// Returns whether the result was non-empty.
func (e *Engine) Read(ctx context.Context, c *track.Container, b *binding.Binding, pred predicate.Pred) (bool, error) {
	if err := predicate.Validate(pred, c.Schema()); err != nil {
		return false, &SyncError{Code: CodeQuery, Container: b.Table, Row: -1, Err: err}
	}

	scope, err := e.store.Begin(ctx)
	if err != nil {
		return false, &SyncError{Code: CodeQuery, Container: b.Table, Row: -1, Message: "begin read scope", Err: err}
	}
	defer scope.Rollback()

	rows, err := scope.Select(ctx, b, c.Schema(), pred)
	if err != nil {
		return false, annotate(err, b.Table, -1, "")
	}
	if err := scope.Commit(); err != nil {
		return false, &SyncError{Code: CodeQuery, Container: b.Table, Row: -1, Message: "commit read scope", Err: err}
	}

	if err := c.Load(rows); err != nil {
		return false, &SyncError{Code: CodeShapeMismatch, Container: b.Table, Row: -1, Err: err}
	}
	e.log.Debug("read", "table", b.Table, "rows", len(rows))
	return len(rows) > 0, nil
}

// Create inserts the container's pending-insert rows in its own scope.
func (e *Engine) Create(ctx context.Context, c *track.Container, b *binding.Binding, v Validator) (*Report, error) {
	return e.withScope(ctx, func(scope Scope, j *journal, rep *Report) error {
		return e.createRows(ctx, scope, b.Table, c, b, v, j, rep)
	})
}

// Update writes the container's pending-update rows in its own scope,
// restricted to each row's dirty fields. Rows with nothing dirty cost
// no store round-trip.
func (e *Engine) Update(ctx context.Context, c *track.Container, b *binding.Binding, v Validator) (*Report, error) {
	return e.withScope(ctx, func(scope Scope, j *journal, rep *Report) error {
		return e.updateRows(ctx, scope, b.Table, c, b, v, j, rep)
	})
}

// Delete removes the container's tombstoned rows in its own scope.
func (e *Engine) Delete(ctx context.Context, c *track.Container, b *binding.Binding) (*Report, error) {
	return e.withScope(ctx, func(scope Scope, j *journal, rep *Report) error {
		return e.deleteRows(ctx, scope, b.Table, c, b, j, rep)
	})
}

// SyncAll reconciles every container of the dataset in one transaction:
// deletes first (children before parents), then updates, then inserts
// (parents before children). On any error the whole scope rolls back
// and no before-image is advanced; the dataset keeps exactly the
// tombstones and dirty marks it already held.
func (e *Engine) SyncAll(ctx context.Context, ds *dataset.Dataset, bindings map[string]*binding.Binding, v Validator) (*Report, error) {
	rep, err := e.withScope(ctx, func(scope Scope, j *journal, rep *Report) error {
		for _, m := range ds.DeleteOrder() {
			b, err := bindingFor(bindings, m.Name)
			if err != nil {
				return err
			}
			if err := e.deleteRows(ctx, scope, m.Name, m.Container, b, j, rep); err != nil {
				return err
			}
		}
		for _, m := range ds.Members() {
			b, err := bindingFor(bindings, m.Name)
			if err != nil {
				return err
			}
			if err := e.updateRows(ctx, scope, m.Name, m.Container, b, v, j, rep); err != nil {
				return err
			}
		}
		for _, m := range ds.InsertOrder() {
			b, err := bindingFor(bindings, m.Name)
			if err != nil {
				return err
			}
			if err := e.createRows(ctx, scope, m.Name, m.Container, b, v, j, rep); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.log.Info("sync complete",
		"dataset", ds.Name(),
		"inserted", rep.Inserted,
		"updated", rep.Updated,
		"deleted", rep.Deleted,
		"rejected", len(rep.Rejected))
	return rep, nil
}

// withScope runs fn inside one transactional scope. Container state
// (before-images, tombstone removal, generated keys) is journaled and
// applied only after the store commit succeeds, so a rollback leaves
// every container exactly as the caller had it.
func (e *Engine) withScope(ctx context.Context, fn func(Scope, *journal, *Report) error) (*Report, error) {
	scope, err := e.store.Begin(ctx)
	if err != nil {
		return nil, &SyncError{Code: CodeTxAborted, Row: -1, Message: "begin sync scope", Err: err}
	}
	defer scope.Rollback()

	rep := &Report{}
	j := &journal{}
	if err := fn(scope, j, rep); err != nil {
		return nil, &SyncError{Code: CodeTxAborted, Row: -1, Message: "sync rolled back", Err: err}
	}
	if err := scope.Commit(); err != nil {
		return nil, &SyncError{Code: CodeTxAborted, Row: -1, Message: "commit failed", Err: err}
	}
	j.apply()
	return rep, nil
}

func (e *Engine) createRows(ctx context.Context, scope Scope, label string, c *track.Container, b *binding.Binding, v Validator, j *journal, rep *Report) error {
	for i, row := range c.All() {
		if err := ctx.Err(); err != nil {
			return err
		}
		state, err := c.Classify(row)
		if err != nil {
			return err
		}
		if state != track.StatePendingInsert {
			continue
		}

		if v != nil {
			if ok, msg := v(row); !ok {
				rep.Rejected = append(rep.Rejected, RowError{
					Container: label, Row: i, Key: keyString(row, b), Code: CodeValidation, Message: msg,
				})
				continue
			}
		}

		// A zero single-field text key gets a generated value. The
		// insert carries the generated key, but the caller's row only
		// learns it once the scope commits.
		insertRow := row
		genField, genValue := "", record.Text("")
		kv, err := row.Key(b.Key)
		if err != nil {
			return err
		}
		if kv.IsZero() && len(b.Key) == 1 {
			if f, ok := c.Schema().Field(b.Key[0]); ok && f.Type == record.TypeText {
				genField = b.Key[0]
				genValue = record.NewText(e.genKey())
				insertRow = row.Clone()
				if err := insertRow.Set(genField, genValue); err != nil {
					return err
				}
			}
		}

		if err := scope.Insert(ctx, b, insertRow); err != nil {
			return annotate(err, label, i, keyString(insertRow, b))
		}

		finalKey, err := insertRow.Key(b.Key)
		if err != nil {
			return err
		}
		target := row
		j.add(func() {
			if genField != "" {
				_ = target.Set(genField, genValue)
			}
			_ = c.CommitRow(target)
		})
		rep.Inserted++
		e.log.Debug("insert", "table", b.Table, "key", finalKey.String())
	}
	return nil
}

func (e *Engine) updateRows(ctx context.Context, scope Scope, label string, c *track.Container, b *binding.Binding, v Validator, j *journal, rep *Report) error {
	for i, row := range c.All() {
		if err := ctx.Err(); err != nil {
			return err
		}
		state, err := c.Classify(row)
		if err != nil {
			return err
		}
		if state != track.StatePendingUpdate {
			continue
		}

		if v != nil {
			if ok, msg := v(row); !ok {
				rep.Rejected = append(rep.Rejected, RowError{
					Container: label, Row: i, Key: keyString(row, b), Code: CodeValidation, Message: msg,
				})
				continue
			}
		}

		dirty, err := c.DirtyFields(row)
		if err != nil {
			return err
		}
		// The version column is maintained by the update statement
		// itself; a hand-edited value must not reach the SET clause.
		if b.Version != "" {
			kept := dirty[:0]
			for _, f := range dirty {
				if f != b.Version {
					kept = append(kept, f)
				}
			}
			dirty = kept
		}
		before, err := c.Before(row)
		if err != nil {
			return err
		}

		affected, err := scope.Update(ctx, b, row, dirty, before)
		if err != nil {
			return annotate(err, label, i, keyString(row, b))
		}
		if affected == 0 {
			return &SyncError{
				Code: CodeConflict, Container: label, Row: i, Key: keyString(row, b),
				Message: "update affected no rows: concurrent modification",
			}
		}

		kv, err := row.Key(b.Key)
		if err != nil {
			return err
		}
		target := row
		j.add(func() {
			// The store bumped the version column; mirror it locally so
			// a later save from the same container matches again.
			if b.Version != "" {
				if n, ok := target.MustGet(b.Version).(record.Int); ok {
					_ = target.Set(b.Version, n+1)
				}
			}
			_ = c.CommitRow(target)
		})
		rep.Updated++
		e.log.Debug("update", "table", b.Table, "key", kv.String(), "fields", dirty)
	}
	return nil
}

func (e *Engine) deleteRows(ctx context.Context, scope Scope, label string, c *track.Container, b *binding.Binding, j *journal, rep *Report) error {
	for i, row := range c.All() {
		if err := ctx.Err(); err != nil {
			return err
		}
		state, err := c.Classify(row)
		if err != nil {
			return err
		}
		if state != track.StatePendingDelete {
			continue
		}

		// Tombstoned rows always have a before-image: pending inserts
		// marked deleted are removed locally, never tombstoned.
		before, err := c.Before(row)
		if err != nil {
			return err
		}
		beforeKey, err := before.Key(b.Key)
		if err != nil {
			return err
		}

		affected, err := scope.Delete(ctx, b, beforeKey)
		if err != nil {
			return annotate(err, label, i, beforeKey.String())
		}
		if affected == 0 && e.deletePolicy == DeleteStrict {
			return &SyncError{
				Code: CodeNotFound, Container: label, Row: i, Key: beforeKey.String(),
				Message: "delete affected no rows",
			}
		}

		target := row
		j.add(func() { _ = c.RemoveRow(target) })
		rep.Deleted++
		e.log.Debug("delete", "table", b.Table, "key", beforeKey.String())
	}
	return nil
}

// journal defers container mutations until the scope commits.
type journal struct {
	actions []func()
}

func (j *journal) add(fn func()) {
	j.actions = append(j.actions, fn)
}

func (j *journal) apply() {
	for _, fn := range j.actions {
		fn()
	}
}

// annotate fills row context into a SyncError, or wraps a foreign
// error with it.
func annotate(err error, label string, row int, key string) error {
	var se *SyncError
	if errors.As(err, &se) {
		if se.Container == "" {
			se.Container = label
		}
		se.Row = row
		if se.Key == "" {
			se.Key = key
		}
		return se
	}
	return fmt.Errorf("%s row %d (key %q): %w", label, row, key, err)
}

func bindingFor(bindings map[string]*binding.Binding, name string) (*binding.Binding, error) {
	b, ok := bindings[name]
	if !ok {
		return nil, fmt.Errorf("no binding for container %q", name)
	}
	return b, nil
}

func keyString(row *record.Row, b *binding.Binding) string {
	kv, err := row.Key(b.Key)
	if err != nil {
		return ""
	}
	return kv.String()
}
