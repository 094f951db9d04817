// Package testutil provides test doubles for the store boundary.
package testutil

import (
	"context"

	"github.com/roach88/syncset/internal/binding"
	"github.com/roach88/syncset/internal/engine"
	"github.com/roach88/syncset/internal/predicate"
	"github.com/roach88/syncset/internal/record"
)

// Op is one recorded store call.
type Op struct {
	Kind   string // "select", "insert", "update", "delete"
	Table  string
	Key    string
	Fields []string // dirty fields for updates
}

// FakeStore implements engine.Store in memory, recording every call in
// order and letting tests script failures. The zero behavior accepts
// everything: inserts succeed, updates and deletes affect one row.
type FakeStore struct {
	Ops       []Op
	Begins    int
	Commits   int
	Rollbacks int

	BeginErr  error
	CommitErr error

	// Hooks override the default behavior when non-nil.
	OnSelect func(b *binding.Binding, pred predicate.Pred) ([]*record.Row, error)
	OnInsert func(b *binding.Binding, row *record.Row) (err error)
	OnUpdate func(b *binding.Binding, row *record.Row, dirty []string) (affected int64, err error)
	OnDelete func(b *binding.Binding, key record.KeyValue) (affected int64, err error)
}

// NewFakeStore creates an accept-everything fake.
func NewFakeStore() *FakeStore {
	return &FakeStore{}
}

// Begin implements engine.Store.
func (s *FakeStore) Begin(ctx context.Context) (engine.Scope, error) {
	if s.BeginErr != nil {
		return nil, s.BeginErr
	}
	s.Begins++
	return &fakeScope{store: s}, nil
}

// OpKinds returns the kinds of all recorded ops in order, for concise
// call-sequence assertions.
func (s *FakeStore) OpKinds() []string {
	kinds := make([]string, len(s.Ops))
	for i, op := range s.Ops {
		kinds[i] = op.Kind + ":" + op.Table
	}
	return kinds
}

type fakeScope struct {
	store *FakeStore
	done  bool
}

func (sc *fakeScope) Select(ctx context.Context, b *binding.Binding, schema *record.Schema, pred predicate.Pred) ([]*record.Row, error) {
	sc.store.Ops = append(sc.store.Ops, Op{Kind: "select", Table: b.Table})
	if sc.store.OnSelect != nil {
		return sc.store.OnSelect(b, pred)
	}
	return []*record.Row{}, nil
}

func (sc *fakeScope) Insert(ctx context.Context, b *binding.Binding, row *record.Row) error {
	kv, _ := row.Key(b.Key)
	sc.store.Ops = append(sc.store.Ops, Op{Kind: "insert", Table: b.Table, Key: kv.String()})
	if sc.store.OnInsert != nil {
		return sc.store.OnInsert(b, row)
	}
	return nil
}

func (sc *fakeScope) Update(ctx context.Context, b *binding.Binding, row *record.Row, dirty []string, before *record.Row) (int64, error) {
	kv, _ := before.Key(b.Key)
	sc.store.Ops = append(sc.store.Ops, Op{Kind: "update", Table: b.Table, Key: kv.String(), Fields: dirty})
	if sc.store.OnUpdate != nil {
		return sc.store.OnUpdate(b, row, dirty)
	}
	return 1, nil
}

func (sc *fakeScope) Delete(ctx context.Context, b *binding.Binding, key record.KeyValue) (int64, error) {
	sc.store.Ops = append(sc.store.Ops, Op{Kind: "delete", Table: b.Table, Key: key.String()})
	if sc.store.OnDelete != nil {
		return sc.store.OnDelete(b, key)
	}
	return 1, nil
}

func (sc *fakeScope) Commit() error {
	if sc.done {
		return nil
	}
	sc.done = true
	if sc.store.CommitErr != nil {
		return sc.store.CommitErr
	}
	sc.store.Commits++
	return nil
}

func (sc *fakeScope) Rollback() error {
	if sc.done {
		return nil
	}
	sc.done = true
	sc.store.Rollbacks++
	return nil
}
