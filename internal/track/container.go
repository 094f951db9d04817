// Package track implements the change-tracked container: an ordered set
// of record snapshots plus a before-image per row, from which each row's
// pending operation (insert, update, delete, or nothing) is computed.
//
// A container is not safe for concurrent writers. One logical caller
// edits it at a time; callers needing shared access must serialize
// externally or use separate containers.
package track

import (
	"errors"
	"fmt"

	"github.com/roach88/syncset/internal/record"
)

// State classifies a tracked row relative to its before-image.
// The states are mutually exclusive and exhaustive: every tracked row is
// in exactly one of them at any time.
type State string

const (
	// StateNew is a freshly added row that has not been edited yet.
	// It has no before-image and every field still holds its default.
	// New rows are not synchronized until something is set on them.
	StateNew State = "new"

	// StateUnchanged means current values equal the before-image.
	StateUnchanged State = "unchanged"

	// StatePendingInsert is a row with no before-image that has been
	// edited; it will be inserted on the next sync.
	StatePendingInsert State = "pending-insert"

	// StatePendingUpdate is a row whose current values differ from its
	// before-image in at least one non-skip-listed field.
	StatePendingUpdate State = "pending-update"

	// StatePendingDelete is a tombstoned row, removed on the next sync.
	// Tombstoning wins over any other difference.
	StatePendingDelete State = "pending-delete"
)

var (
	// ErrShapeMismatch reports a row whose schema does not match the
	// container's. This is a programming error, fatal to the call.
	ErrShapeMismatch = errors.New("row shape does not match container schema")

	// ErrNotFound reports a key with no corresponding tracked row.
	ErrNotFound = errors.New("row not found in container")

	// ErrDuplicateKey reports two rows sharing a key during Load.
	ErrDuplicateKey = errors.New("duplicate key in container")

	// ErrUntracked reports a row that does not belong to this container.
	ErrUntracked = errors.New("row is not tracked by this container")
)

// entry pairs a row with its tracking state. before is nil until the
// row has been persisted (or loaded), which is what distinguishes
// pending inserts from everything else.
type entry struct {
	row     *record.Row
	before  *record.Row
	deleted bool
}

// Container is an ordered collection of tracked rows.
// Insertion order is preserved so sync operations are deterministic.
type Container struct {
	schema  *record.Schema
	key     []string
	skip    map[string]bool
	entries []*entry
}

// Option configures a container.
type Option func(*Container)

// WithSkipList excludes fields from dirty comparison. Skip-listed
// fields are still transmitted on insert; they just never make a row
// dirty on their own (computed or display-only columns).
func WithSkipList(fields ...string) Option {
	return func(c *Container) {
		for _, f := range fields {
			c.skip[f] = true
		}
	}
}

// New creates a container for rows of the given schema, identified by
// the named key fields.
func New(schema *record.Schema, keyFields []string, opts ...Option) (*Container, error) {
	if len(keyFields) == 0 {
		return nil, fmt.Errorf("container requires at least one key field")
	}
	if !schema.Has(keyFields...) {
		return nil, fmt.Errorf("key fields %v: %w", keyFields, ErrShapeMismatch)
	}
	c := &Container{
		schema: schema,
		key:    append([]string(nil), keyFields...),
		skip:   make(map[string]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	if !schema.Has(setKeys(c.skip)...) {
		return nil, fmt.Errorf("skip-list fields: %w", ErrShapeMismatch)
	}
	return c, nil
}

// Schema returns the container's row schema.
func (c *Container) Schema() *record.Schema {
	return c.schema
}

// KeyFields returns the names of the key fields.
func (c *Container) KeyFields() []string {
	return c.key
}

// SkipList returns the set of fields excluded from dirty comparison.
func (c *Container) SkipList() map[string]bool {
	return c.skip
}

// Len returns the number of tracked rows, tombstoned rows included.
func (c *Container) Len() int {
	return len(c.entries)
}

// Load replaces the container contents with rows, capturing each row's
// before-image so every loaded row starts out unchanged.
// All-or-nothing: on any error the container is left as it was.
func (c *Container) Load(rows []*record.Row) error {
	entries := make([]*entry, 0, len(rows))
	seen := make(map[string]bool, len(rows))
	for i, row := range rows {
		if row.Schema() != c.schema {
			return fmt.Errorf("row %d: %w", i, ErrShapeMismatch)
		}
		kv, err := row.Key(c.key)
		if err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		ks := kv.String()
		if seen[ks] {
			return fmt.Errorf("row %d key %q: %w", i, ks, ErrDuplicateKey)
		}
		seen[ks] = true
		entries = append(entries, &entry{row: row, before: row.Clone()})
	}
	c.entries = entries
	return nil
}

// Clear removes all tracked rows. Used at the start of a request cycle
// to reuse a long-lived container.
func (c *Container) Clear() {
	c.entries = nil
}

// AddNew appends a row with default field values and no before-image,
// and returns it for the caller to mutate directly.
func (c *Container) AddNew() *record.Row {
	row := c.schema.NewRow()
	c.entries = append(c.entries, &entry{row: row})
	return row
}

// Get returns the tracked row for key, tombstoned rows included.
func (c *Container) Get(key record.KeyValue) (*record.Row, bool) {
	e := c.find(key.String())
	if e == nil {
		return nil, false
	}
	return e.row, true
}

// Rows returns the live (non-tombstoned) rows in insertion order.
func (c *Container) Rows() []*record.Row {
	out := make([]*record.Row, 0, len(c.entries))
	for _, e := range c.entries {
		if !e.deleted {
			out = append(out, e.row)
		}
	}
	return out
}

// All returns every tracked row in insertion order, tombstones included.
func (c *Container) All() []*record.Row {
	out := make([]*record.Row, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.row
	}
	return out
}

// MarkDeleted tombstones the row identified by key. The row stays in
// the container until a sync removes it, so a failed sync can retry.
// A row that was never persisted (pending insert) is removed locally
// right away: inserting then deleting before a sync is a no-op and must
// not cost a store round-trip.
func (c *Container) MarkDeleted(key record.KeyValue) error {
	ks := key.String()
	for i, e := range c.entries {
		kv, err := e.row.Key(c.key)
		if err != nil {
			return err
		}
		if kv.String() != ks {
			continue
		}
		if e.before == nil {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			return nil
		}
		e.deleted = true
		return nil
	}
	return fmt.Errorf("key %q: %w", ks, ErrNotFound)
}

// Classify computes the row's state from its current values, its
// before-image, and its tombstone flag. Pure with respect to the row:
// calling it never changes anything.
func (c *Container) Classify(row *record.Row) (State, error) {
	e := c.findRow(row)
	if e == nil {
		return "", ErrUntracked
	}
	return c.classify(e), nil
}

func (c *Container) classify(e *entry) State {
	if e.deleted {
		return StatePendingDelete
	}
	if e.before == nil {
		if e.row.EqualRow(c.schema.NewRow(), nil) {
			return StateNew
		}
		return StatePendingInsert
	}
	if len(e.row.DiffFields(e.before, c.skip)) > 0 {
		return StatePendingUpdate
	}
	return StateUnchanged
}

// DirtyFields returns the fields whose current value differs from the
// before-image, excluding skip-listed fields, in schema order. An empty
// result means the row needs no update. Rows without a before-image
// have no dirty set; every field goes out on insert.
func (c *Container) DirtyFields(row *record.Row) ([]string, error) {
	e := c.findRow(row)
	if e == nil {
		return nil, ErrUntracked
	}
	if e.before == nil {
		return nil, nil
	}
	return e.row.DiffFields(e.before, c.skip), nil
}

// Before returns a copy of the row's before-image, or nil if the row
// has never been persisted. The sync engine addresses storage rows by
// their persisted identity, which is the before-image's key even when
// the caller has edited key fields in place.
func (c *Container) Before(row *record.Row) (*record.Row, error) {
	e := c.findRow(row)
	if e == nil {
		return nil, ErrUntracked
	}
	if e.before == nil {
		return nil, nil
	}
	return e.before.Clone(), nil
}

// Commit advances the before-image of the row identified by key to its
// current values and clears its tombstone. Callers that hold the row
// itself should prefer CommitRow, which stays unambiguous when a
// pending insert shares its key with a tracked row.
func (c *Container) Commit(key record.KeyValue) error {
	e := c.find(key.String())
	if e == nil {
		return fmt.Errorf("key %q: %w", key.String(), ErrNotFound)
	}
	e.before = e.row.Clone()
	e.deleted = false
	return nil
}

// CommitRow is Commit addressed by row identity rather than key, so a
// pending insert that shares its current key with another tracked row
// still advances its own before-image.
func (c *Container) CommitRow(row *record.Row) error {
	e := c.findRow(row)
	if e == nil {
		return ErrUntracked
	}
	e.before = e.row.Clone()
	e.deleted = false
	return nil
}

// RemoveRow is Remove addressed by row identity rather than key.
func (c *Container) RemoveRow(row *record.Row) error {
	for i, e := range c.entries {
		if e.row == row {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			return nil
		}
	}
	return ErrUntracked
}

// Remove drops the row identified by key from the container entirely.
// Callers that hold the row itself should prefer RemoveRow.
func (c *Container) Remove(key record.KeyValue) error {
	ks := key.String()
	for i, e := range c.entries {
		kv, err := e.row.Key(c.key)
		if err != nil {
			return err
		}
		if kv.String() == ks {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("key %q: %w", ks, ErrNotFound)
}

// Pending reports how many rows are in each non-terminal state.
// Diagnostic helper for logging sync summaries.
func (c *Container) Pending() (inserts, updates, deletes int) {
	for _, e := range c.entries {
		switch c.classify(e) {
		case StatePendingInsert:
			inserts++
		case StatePendingUpdate:
			updates++
		case StatePendingDelete:
			deletes++
		}
	}
	return inserts, updates, deletes
}

// find locates an entry by the string form of its current key.
// Containers are request-scoped and small; a linear scan avoids keeping
// an index consistent while callers mutate key fields in place.
func (c *Container) find(ks string) *entry {
	for _, e := range c.entries {
		kv, err := e.row.Key(c.key)
		if err != nil {
			continue
		}
		if kv.String() == ks {
			return e
		}
	}
	return nil
}

// findRow locates an entry by row identity.
func (c *Container) findRow(row *record.Row) *entry {
	for _, e := range c.entries {
		if e.row == row {
			return e
		}
	}
	return nil
}

func setKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
