// Package dataset groups change-tracked containers that load and
// synchronize as one transactional unit, with optional parent/child
// relations that order deletes (children first) and inserts (parents
// first).
package dataset

import (
	"errors"
	"fmt"

	"github.com/roach88/syncset/internal/track"
)

// ErrCycle reports a relation that would make the parent/child graph
// cyclic, which has no valid sync order.
var ErrCycle = errors.New("relation would create a cycle")

// Member is a named container within a dataset.
type Member struct {
	Name      string
	Container *track.Container
}

// Relation declares that rows in Child reference rows in Parent:
// ChildKey fields of a child row hold the ParentKey values of its
// parent row. Relations constrain sync ordering only; the backing
// store's foreign keys enforce the actual integrity.
type Relation struct {
	Parent    string
	Child     string
	ParentKey []string
	ChildKey  []string
}

// Dataset is a named, ordered set of containers plus their relations.
type Dataset struct {
	name      string
	members   []Member
	index     map[string]int
	relations []Relation
}

// New creates an empty dataset.
func New(name string) *Dataset {
	return &Dataset{name: name, index: make(map[string]int)}
}

// Name returns the dataset name.
func (d *Dataset) Name() string {
	return d.name
}

// Add appends a named container. Names must be unique.
func (d *Dataset) Add(name string, c *track.Container) error {
	if name == "" {
		return fmt.Errorf("container name must not be empty")
	}
	if _, dup := d.index[name]; dup {
		return fmt.Errorf("duplicate container %q", name)
	}
	d.index[name] = len(d.members)
	d.members = append(d.members, Member{Name: name, Container: c})
	return nil
}

// Container returns the named container.
func (d *Dataset) Container(name string) (*track.Container, bool) {
	i, ok := d.index[name]
	if !ok {
		return nil, false
	}
	return d.members[i].Container, true
}

// Members returns the containers in declaration order.
func (d *Dataset) Members() []Member {
	return d.members
}

// Relations returns the declared relations.
func (d *Dataset) Relations() []Relation {
	return d.relations
}

// Relate declares a parent/child relation between two members.
// Both containers must exist, the key field lists must be the same
// length, and each field must exist in its container's schema.
func (d *Dataset) Relate(parent, child string, parentKey, childKey []string) error {
	pc, ok := d.Container(parent)
	if !ok {
		return fmt.Errorf("unknown parent container %q", parent)
	}
	cc, ok := d.Container(child)
	if !ok {
		return fmt.Errorf("unknown child container %q", child)
	}
	if parent == child {
		return fmt.Errorf("container %q: %w", parent, ErrCycle)
	}
	if len(parentKey) == 0 || len(parentKey) != len(childKey) {
		return fmt.Errorf("relation %s->%s: key field lists must be non-empty and equal length", parent, child)
	}
	if !pc.Schema().Has(parentKey...) {
		return fmt.Errorf("relation %s->%s: parent key fields %v not in schema", parent, child, parentKey)
	}
	if !cc.Schema().Has(childKey...) {
		return fmt.Errorf("relation %s->%s: child key fields %v not in schema", parent, child, childKey)
	}

	rel := Relation{Parent: parent, Child: child, ParentKey: parentKey, ChildKey: childKey}
	d.relations = append(d.relations, rel)
	if _, err := d.topoOrder(); err != nil {
		d.relations = d.relations[:len(d.relations)-1]
		return fmt.Errorf("relation %s->%s: %w", parent, child, err)
	}
	return nil
}

// InsertOrder returns members with every parent before its children.
// Declaration order breaks ties so the result is deterministic.
func (d *Dataset) InsertOrder() []Member {
	order, err := d.topoOrder()
	if err != nil {
		// Relate rejects cycles, so the graph here is always acyclic.
		return d.members
	}
	return order
}

// DeleteOrder returns members with every child before its parents,
// the reverse of InsertOrder.
func (d *Dataset) DeleteOrder() []Member {
	insert := d.InsertOrder()
	out := make([]Member, len(insert))
	for i, m := range insert {
		out[len(insert)-1-i] = m
	}
	return out
}

// topoOrder runs a stable Kahn topological sort over the parent→child
// edges. Returns ErrCycle if the relation graph is cyclic.
func (d *Dataset) topoOrder() ([]Member, error) {
	indegree := make(map[string]int, len(d.members))
	children := make(map[string][]string, len(d.members))
	for _, m := range d.members {
		indegree[m.Name] = 0
	}
	for _, rel := range d.relations {
		children[rel.Parent] = append(children[rel.Parent], rel.Child)
		indegree[rel.Child]++
	}

	var out []Member
	done := make(map[string]bool, len(d.members))
	for len(out) < len(d.members) {
		progressed := false
		for _, m := range d.members {
			if done[m.Name] || indegree[m.Name] != 0 {
				continue
			}
			done[m.Name] = true
			out = append(out, m)
			for _, child := range children[m.Name] {
				indegree[child]--
			}
			progressed = true
		}
		if !progressed {
			return nil, ErrCycle
		}
	}
	return out, nil
}
