// Package entity exposes compiled definitions as business entities: an
// aggregate rooted at a primary table, fetched by key with its related
// child rows, edited through tracked containers, and saved as one
// synchronized scope.
package entity

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/syncset/internal/binding"
	"github.com/roach88/syncset/internal/dataset"
	"github.com/roach88/syncset/internal/engine"
	"github.com/roach88/syncset/internal/predicate"
	"github.com/roach88/syncset/internal/record"
)

// Entity is a facade over one compiled model and an engine. The first
// table of the model is the entity's primary table; FetchByKey roots
// the aggregate there.
type Entity struct {
	model     *binding.Model
	eng       *engine.Engine
	log       *slog.Logger
	validator engine.Validator
}

// Option configures an entity.
type Option func(*Entity)

// WithValidator installs a per-row business rule applied on Save.
func WithValidator(v engine.Validator) Option {
	return func(e *Entity) { e.validator = v }
}

// WithLogger sets the entity's logger. Without it, logs are dropped.
func WithLogger(log *slog.Logger) Option {
	return func(e *Entity) { e.log = log }
}

// New builds an entity over model and eng. The model must have at
// least one table.
func New(model *binding.Model, eng *engine.Engine, opts ...Option) (*Entity, error) {
	if len(model.Tables) == 0 {
		return nil, fmt.Errorf("entity %q: model has no tables", model.Name)
	}
	e := &Entity{
		model: model,
		eng:   eng,
		log:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Name returns the entity's definition name.
func (e *Entity) Name() string {
	return e.model.Name
}

// Model returns the compiled model behind the entity.
func (e *Entity) Model() *binding.Model {
	return e.model
}

// Primary returns the primary (first-declared) table.
func (e *Entity) Primary() binding.Table {
	return e.model.Tables[0]
}

// NewDataset returns a fresh, empty dataset shaped like the entity.
func (e *Entity) NewDataset() (*dataset.Dataset, error) {
	return e.model.NewDataset()
}

// FetchByKey loads the aggregate identified by the primary table's key:
// the primary row plus, relation by relation, the related child rows.
// Returns found=false with an empty dataset when no primary row exists.
//
// Child rows are located through the declared relations, parent before
// child. A relation whose parent container holds more than one row
// cannot be expressed as a single conjunctive filter; such shapes must
// be loaded through Query instead.
func (e *Entity) FetchByKey(ctx context.Context, key record.KeyValue) (*dataset.Dataset, bool, error) {
	ds, err := e.model.NewDataset()
	if err != nil {
		return nil, false, err
	}

	primary := e.Primary()
	c, _ := ds.Container(primary.Name)
	found, err := e.eng.Read(ctx, c, primary.Binding, predicate.KeyEquals(key))
	if err != nil {
		return nil, false, fmt.Errorf("fetch %s: %w", e.model.Name, err)
	}
	if !found {
		return ds, false, nil
	}

	for _, rel := range e.model.Relations {
		parent, ok := ds.Container(rel.Parent)
		if !ok {
			return nil, false, fmt.Errorf("fetch %s: relation parent %q not in dataset", e.model.Name, rel.Parent)
		}
		parentRows := parent.Rows()
		if len(parentRows) == 0 {
			continue
		}
		if len(parentRows) > 1 {
			return nil, false, fmt.Errorf("fetch %s: relation %s->%s: parent has %d rows, use Query",
				e.model.Name, rel.Parent, rel.Child, len(parentRows))
		}

		preds := make([]predicate.Pred, len(rel.ChildKey))
		for i, cf := range rel.ChildKey {
			v, err := parentRows[0].Get(rel.ParentKey[i])
			if err != nil {
				return nil, false, fmt.Errorf("fetch %s: %w", e.model.Name, err)
			}
			preds[i] = predicate.Eq(cf, v)
		}

		childTable, ok := e.model.Table(rel.Child)
		if !ok {
			return nil, false, fmt.Errorf("fetch %s: relation child %q not in model", e.model.Name, rel.Child)
		}
		child, _ := ds.Container(rel.Child)
		if _, err := e.eng.Read(ctx, child, childTable.Binding, predicate.And(preds...)); err != nil {
			return nil, false, fmt.Errorf("fetch %s: %w", e.model.Name, err)
		}
	}

	e.log.Debug("fetched", "entity", e.model.Name, "key", key.String())
	return ds, true, nil
}

// Query loads the named table's rows matching pred into a fresh
// dataset, leaving the other containers empty. Returns whether any row
// matched.
func (e *Entity) Query(ctx context.Context, table string, pred predicate.Pred) (*dataset.Dataset, bool, error) {
	t, ok := e.model.Table(table)
	if !ok {
		return nil, false, fmt.Errorf("query %s: no table %q", e.model.Name, table)
	}
	ds, err := e.model.NewDataset()
	if err != nil {
		return nil, false, err
	}
	c, _ := ds.Container(table)
	found, err := e.eng.Read(ctx, c, t.Binding, pred)
	if err != nil {
		return nil, false, fmt.Errorf("query %s: %w", e.model.Name, err)
	}
	return ds, found, nil
}

// Save synchronizes every pending change in ds inside one scope and
// returns the per-row report. Validation rejections appear in the
// report without failing the call; store errors roll the scope back.
func (e *Entity) Save(ctx context.Context, ds *dataset.Dataset) (*engine.Report, error) {
	rep, err := e.eng.SyncAll(ctx, ds, e.model.Bindings(), e.validator)
	if err != nil {
		return nil, fmt.Errorf("save %s: %w", e.model.Name, err)
	}
	return rep, nil
}

// Remove tombstones every row of the aggregate identified by key and
// synchronizes the deletes. Removing an absent aggregate is a no-op
// under the engine's idempotent delete policy.
func (e *Entity) Remove(ctx context.Context, key record.KeyValue) (*engine.Report, error) {
	ds, found, err := e.FetchByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if !found {
		return &engine.Report{}, nil
	}
	for _, m := range ds.Members() {
		for _, row := range m.Container.Rows() {
			kv, err := row.Key(m.Container.KeyFields())
			if err != nil {
				return nil, fmt.Errorf("remove %s: %w", e.model.Name, err)
			}
			if err := m.Container.MarkDeleted(kv); err != nil {
				return nil, fmt.Errorf("remove %s: %w", e.model.Name, err)
			}
		}
	}
	return e.Save(ctx, ds)
}
