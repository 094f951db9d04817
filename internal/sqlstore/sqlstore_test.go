package sqlstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/syncset/internal/binding"
	"github.com/roach88/syncset/internal/engine"
	"github.com/roach88/syncset/internal/predicate"
	"github.com/roach88/syncset/internal/record"
)

var itemSchema = record.MustSchema(
	record.FieldDef{Name: "item_id", Type: record.TypeText},
	record.FieldDef{Name: "label", Type: record.TypeText},
	record.FieldDef{Name: "qty", Type: record.TypeInt},
	record.FieldDef{Name: "price", Type: record.TypeDecimal},
	record.FieldDef{Name: "active", Type: record.TypeBool},
	record.FieldDef{Name: "created", Type: record.TypeTime},
	record.FieldDef{Name: "version", Type: record.TypeInt},
)

func itemBinding() *binding.Binding {
	return &binding.Binding{Table: "items", Key: []string{"item_id"}, Version: "version"}
}

func openStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.ApplyDDL(context.Background(), itemBinding().DDL(itemSchema)))
	return s
}

func itemRow(t *testing.T, id string, qty int64) *record.Row {
	t.Helper()
	row := itemSchema.NewRow()
	require.NoError(t, row.Set("item_id", record.NewText(id)))
	require.NoError(t, row.Set("label", record.NewText("label-"+id)))
	require.NoError(t, row.Set("qty", record.NewInt(qty)))

	price, err := record.NewDecimal("9.50")
	require.NoError(t, err)
	require.NoError(t, row.Set("price", price))
	require.NoError(t, row.Set("active", record.NewBool(true)))
	require.NoError(t, row.Set("created", record.NewTime(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))))
	require.NoError(t, row.Set("version", record.NewInt(1)))
	return row
}

func insertItems(t *testing.T, s *Store, rows ...*record.Row) {
	t.Helper()
	ctx := context.Background()
	scope, err := s.Begin(ctx)
	require.NoError(t, err)
	for _, row := range rows {
		require.NoError(t, scope.Insert(ctx, itemBinding(), row))
	}
	require.NoError(t, scope.Commit())
}

func selectAll(t *testing.T, s *Store, pred predicate.Pred) []*record.Row {
	t.Helper()
	ctx := context.Background()
	scope, err := s.Begin(ctx)
	require.NoError(t, err)
	defer scope.Rollback()
	rows, err := scope.Select(ctx, itemBinding(), itemSchema, pred)
	require.NoError(t, err)
	require.NoError(t, scope.Commit())
	return rows
}

func TestInsertSelectRoundTrip(t *testing.T) {
	s := openStore(t)
	want := itemRow(t, "I-1", 3)
	insertItems(t, s, want)

	got := selectAll(t, s, predicate.Eq("item_id", record.NewText("I-1")))
	require.Len(t, got, 1)
	for _, f := range itemSchema.FieldNames() {
		assert.True(t, record.Equal(want.MustGet(f), got[0].MustGet(f)), "field %s", f)
	}
}

func TestSelectEmptyIsNotNil(t *testing.T) {
	s := openStore(t)
	got := selectAll(t, s, predicate.Eq("item_id", record.NewText("missing")))
	require.NotNil(t, got)
	assert.Len(t, got, 0)
}

func TestSelectOrderIsDeterministic(t *testing.T) {
	s := openStore(t)
	insertItems(t, s, itemRow(t, "I-3", 1), itemRow(t, "I-1", 1), itemRow(t, "I-2", 1))

	got := selectAll(t, s, nil)
	require.Len(t, got, 3)
	ids := make([]string, len(got))
	for i, row := range got {
		ids[i] = string(row.MustGet("item_id").(record.Text))
	}
	assert.Equal(t, []string{"I-1", "I-2", "I-3"}, ids)
}

func TestSelectNullComparison(t *testing.T) {
	s := openStore(t)
	row := itemRow(t, "I-1", 1)
	require.NoError(t, row.Set("label", record.Null{}))
	insertItems(t, s, row, itemRow(t, "I-2", 1))

	got := selectAll(t, s, predicate.Eq("label", record.Null{}))
	require.Len(t, got, 1)
	assert.Equal(t, record.NewText("I-1"), got[0].MustGet("item_id"))
}

func TestUpdateDirtyFieldsWithVersionGuard(t *testing.T) {
	s := openStore(t)
	before := itemRow(t, "I-1", 3)
	insertItems(t, s, before)

	ctx := context.Background()
	scope, err := s.Begin(ctx)
	require.NoError(t, err)

	after := before.Clone()
	require.NoError(t, after.Set("qty", record.NewInt(7)))
	affected, err := scope.Update(ctx, itemBinding(), after, []string{"qty"}, before)
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)
	require.NoError(t, scope.Commit())

	got := selectAll(t, s, nil)
	require.Len(t, got, 1)
	assert.Equal(t, record.NewInt(7), got[0].MustGet("qty"))
	// The version guard advanced server-side.
	assert.Equal(t, record.NewInt(2), got[0].MustGet("version"))
}

func TestUpdateStaleVersionAffectsNoRows(t *testing.T) {
	s := openStore(t)
	before := itemRow(t, "I-1", 3)
	insertItems(t, s, before)

	stale := before.Clone()
	require.NoError(t, stale.Set("version", record.NewInt(0)))
	after := stale.Clone()
	require.NoError(t, after.Set("qty", record.NewInt(7)))

	ctx := context.Background()
	scope, err := s.Begin(ctx)
	require.NoError(t, err)
	defer scope.Rollback()

	affected, err := scope.Update(ctx, itemBinding(), after, []string{"qty"}, stale)
	require.NoError(t, err)
	assert.Equal(t, int64(0), affected)
}

func TestDeleteReportsAffected(t *testing.T) {
	s := openStore(t)
	row := itemRow(t, "I-1", 3)
	insertItems(t, s, row)
	kv, err := row.Key([]string{"item_id"})
	require.NoError(t, err)

	ctx := context.Background()
	scope, err := s.Begin(ctx)
	require.NoError(t, err)
	affected, err := scope.Delete(ctx, itemBinding(), kv)
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	// Same key again inside the scope: nothing left to delete.
	affected, err = scope.Delete(ctx, itemBinding(), kv)
	require.NoError(t, err)
	assert.Equal(t, int64(0), affected)
	require.NoError(t, scope.Commit())
}

func TestDuplicateInsertIsConstraintError(t *testing.T) {
	s := openStore(t)
	insertItems(t, s, itemRow(t, "I-1", 3))

	ctx := context.Background()
	scope, err := s.Begin(ctx)
	require.NoError(t, err)
	defer scope.Rollback()

	err = scope.Insert(ctx, itemBinding(), itemRow(t, "I-1", 5))
	require.Error(t, err)
	assert.Equal(t, engine.CodeConstraint, engine.CodeOf(err))
}

func TestRollbackDiscardsWrites(t *testing.T) {
	s := openStore(t)

	ctx := context.Background()
	scope, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, scope.Insert(ctx, itemBinding(), itemRow(t, "I-1", 3)))
	require.NoError(t, scope.Rollback())

	assert.Len(t, selectAll(t, s, nil), 0)
}

func TestRollbackAfterCommitIsNoOp(t *testing.T) {
	s := openStore(t)

	ctx := context.Background()
	scope, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, scope.Insert(ctx, itemBinding(), itemRow(t, "I-1", 3)))
	require.NoError(t, scope.Commit())
	require.NoError(t, scope.Rollback())

	assert.Len(t, selectAll(t, s, nil), 1)
}

func TestTimeoutBoundsEveryRoundTrip(t *testing.T) {
	// A bound this small has always expired by the time the driver
	// runs, so every call must come back as a reported timeout.
	s := openStore(t, WithTimeout(time.Nanosecond))

	ctx := context.Background()
	scope, err := s.Begin(ctx)
	require.NoError(t, err)
	defer scope.Rollback()

	_, err = scope.Select(ctx, itemBinding(), itemSchema, nil)
	require.Error(t, err)
	assert.Equal(t, engine.CodeTimeout, engine.CodeOf(err))
	assert.True(t, engine.IsTimeout(err))

	err = scope.Insert(ctx, itemBinding(), itemRow(t, "I-1", 3))
	require.Error(t, err)
	assert.Equal(t, engine.CodeTimeout, engine.CodeOf(err))
}

func TestTimeoutDoesNotOutliveTheCall(t *testing.T) {
	// A generous bound must not interfere with normal operation.
	s := openStore(t, WithTimeout(time.Minute))
	insertItems(t, s, itemRow(t, "I-1", 3))

	got := selectAll(t, s, nil)
	assert.Len(t, got, 1)
}

func TestBadPredicateFieldSurfacesAsQueryError(t *testing.T) {
	s := openStore(t)

	ctx := context.Background()
	scope, err := s.Begin(ctx)
	require.NoError(t, err)
	defer scope.Rollback()

	_, err = scope.Select(ctx, itemBinding(), itemSchema, predicate.Lt("label", record.Null{}))
	require.Error(t, err)
	assert.Equal(t, engine.CodeQuery, engine.CodeOf(err))
}
