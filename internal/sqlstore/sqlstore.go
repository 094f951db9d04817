// Package sqlstore adapts a SQLite database to the engine's store
// boundary. It is the only package that speaks SQL to the driver;
// statement shapes come from the binding builders and WHERE clauses
// from the predicate compiler, so no caller input is ever interpolated.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/roach88/syncset/internal/binding"
	"github.com/roach88/syncset/internal/engine"
	"github.com/roach88/syncset/internal/predicate"
	"github.com/roach88/syncset/internal/record"
)

// Store is a SQLite-backed implementation of engine.Store.
type Store struct {
	db      *sql.DB
	timeout time.Duration
}

// Option configures a store.
type Option func(*Store)

// WithTimeout bounds every store round-trip. An exceeded bound is
// reported as CodeTimeout, never silently retried.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) { s.timeout = d }
}

// Open creates or opens a SQLite database at the given path.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect database: %w", err)
	}

	// SQLite only supports one writer at a time; a single connection
	// avoids SQLITE_BUSY between the pool's own connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}

	s := &Store{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer the store boundary when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// ApplyDDL executes schema statements (binding DDL) outside any scope.
func (s *Store) ApplyDDL(ctx context.Context, stmts ...string) error {
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply ddl: %w", err)
		}
	}
	return nil
}

// Begin starts a transactional scope.
func (s *Store) Begin(ctx context.Context) (engine.Scope, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, translate(err)
	}
	return &scope{tx: tx, timeout: s.timeout}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

// scope is one transaction. done guards double-finish so that a
// deferred Rollback after Commit is a no-op.
type scope struct {
	tx      *sql.Tx
	timeout time.Duration
	done    bool
}

func (sc *scope) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if sc.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, sc.timeout)
}

func (sc *scope) Select(ctx context.Context, b *binding.Binding, schema *record.Schema, pred predicate.Pred) ([]*record.Row, error) {
	whereSQL, params, err := predicate.Compile(pred)
	if err != nil {
		return nil, &engine.SyncError{Code: engine.CodeQuery, Container: b.Table, Row: -1, Err: err}
	}

	ctx, cancel := sc.bound(ctx)
	defer cancel()

	rows, err := sc.tx.QueryContext(ctx, b.SelectSQL(schema, whereSQL), params...)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var out []*record.Row
	for rows.Next() {
		row, err := scanRow(rows, schema)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err)
	}
	// Return empty slice instead of nil
	if out == nil {
		out = []*record.Row{}
	}
	return out, nil
}

func (sc *scope) Insert(ctx context.Context, b *binding.Binding, row *record.Row) error {
	schema := row.Schema()
	params := make([]any, 0, schema.Len())
	for _, f := range schema.Fields() {
		p, err := record.ToParam(row.MustGet(f.Name))
		if err != nil {
			return fmt.Errorf("field %q: %w", f.Name, err)
		}
		params = append(params, p)
	}

	ctx, cancel := sc.bound(ctx)
	defer cancel()

	if _, err := sc.tx.ExecContext(ctx, b.InsertSQL(schema), params...); err != nil {
		return translate(err)
	}
	return nil
}

func (sc *scope) Update(ctx context.Context, b *binding.Binding, row *record.Row, dirty []string, before *record.Row) (int64, error) {
	params := make([]any, 0, len(dirty)+len(b.Key)+1)
	for _, f := range dirty {
		v, err := row.Get(f)
		if err != nil {
			return 0, err
		}
		p, err := record.ToParam(v)
		if err != nil {
			return 0, fmt.Errorf("field %q: %w", f, err)
		}
		params = append(params, p)
	}
	// The WHERE clause addresses the persisted row: before-image key
	// values, plus the before-image version when one is bound.
	for _, k := range b.Key {
		p, err := record.ToParam(before.MustGet(k))
		if err != nil {
			return 0, fmt.Errorf("key field %q: %w", k, err)
		}
		params = append(params, p)
	}
	if b.Version != "" {
		p, err := record.ToParam(before.MustGet(b.Version))
		if err != nil {
			return 0, fmt.Errorf("version field %q: %w", b.Version, err)
		}
		params = append(params, p)
	}

	ctx, cancel := sc.bound(ctx)
	defer cancel()

	res, err := sc.tx.ExecContext(ctx, b.UpdateSQL(dirty), params...)
	if err != nil {
		return 0, translate(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, translate(err)
	}
	return affected, nil
}

func (sc *scope) Delete(ctx context.Context, b *binding.Binding, key record.KeyValue) (int64, error) {
	params := make([]any, len(key.Values))
	for i, v := range key.Values {
		p, err := record.ToParam(v)
		if err != nil {
			return 0, fmt.Errorf("key field %q: %w", key.Fields[i], err)
		}
		params[i] = p
	}

	ctx, cancel := sc.bound(ctx)
	defer cancel()

	res, err := sc.tx.ExecContext(ctx, b.DeleteSQL(), params...)
	if err != nil {
		return 0, translate(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, translate(err)
	}
	return affected, nil
}

func (sc *scope) Commit() error {
	if sc.done {
		return nil
	}
	sc.done = true
	if err := sc.tx.Commit(); err != nil {
		return translate(err)
	}
	return nil
}

func (sc *scope) Rollback() error {
	if sc.done {
		return nil
	}
	sc.done = true
	if err := sc.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return translate(err)
	}
	return nil
}

// scanRow converts one result row into a typed record row.
func scanRow(rows *sql.Rows, schema *record.Schema) (*record.Row, error) {
	raw := make([]any, schema.Len())
	ptrs := make([]any, schema.Len())
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, translate(err)
	}

	row := schema.NewRow()
	for i, f := range schema.Fields() {
		v, err := record.FromScan(f.Type, raw[i])
		if err != nil {
			return nil, &engine.SyncError{Code: engine.CodeShapeMismatch, Row: -1, Message: fmt.Sprintf("column %q", f.Name), Err: err}
		}
		if err := row.Set(f.Name, v); err != nil {
			return nil, err
		}
	}
	return row, nil
}

// translate maps driver failures onto the engine's error taxonomy.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &engine.SyncError{Code: engine.CodeTimeout, Row: -1, Message: "store call exceeded bound", Err: err}
	}
	var serr sqlite3.Error
	if errors.As(err, &serr) && serr.Code == sqlite3.ErrConstraint {
		return &engine.SyncError{Code: engine.CodeConstraint, Row: -1, Err: err}
	}
	return &engine.SyncError{Code: engine.CodeQuery, Row: -1, Err: err}
}
