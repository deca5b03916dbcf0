// Package changeset tracks local edits to an entry's attributes against the
// last known remote snapshot and reduces them to a minimal change batch.
package changeset

import (
	"fmt"
	"slices"

	"github.com/isometry/ldaptree/internal/nested"
)

// State is the pending state of one attribute.
type State int

const (
	Unchanged State = iota
	Replace
	Add
	Delete
)

func (s State) String() string {
	switch s {
	case Unchanged:
		return "unchanged"
	case Replace:
		return "replace"
	case Add:
		return "add"
	case Delete:
		return "delete"
	default:
		return "unknown"
	}
}

type pendingChange struct {
	state  State
	values []string
}

// ChangeSet maps attribute names to values with deferred-write tracking.
//
// The baseline is read-only until Commit or Rebase. Each name has at most one
// pending state; a later write overwrites the earlier one and pending values
// are never merged with the baseline.
type ChangeSet struct {
	name      string
	baseline  map[string][]string
	pending   map[string]pendingChange
	order     []string
	discarded bool
}

// New returns a change set for the entry called name over a copy of baseline.
func New(name string, baseline map[string][]string) *ChangeSet {
	return &ChangeSet{
		name:     name,
		baseline: cloneAttributes(baseline),
		pending:  make(map[string]pendingChange),
	}
}

// Name returns the name of the entry the change set belongs to.
func (cs *ChangeSet) Name() string {
	return cs.name
}

// Exists reports whether attr is visible: pending Add/Replace, or baseline
// membership when nothing is pending.
func (cs *ChangeSet) Exists(attr string) bool {
	if p, ok := cs.pending[attr]; ok {
		return p.state != Delete
	}
	_, ok := cs.baseline[attr]
	return ok
}

// Get returns a copy of the visible values of attr, or nil.
func (cs *ChangeSet) Get(attr string) []string {
	if p, ok := cs.pending[attr]; ok {
		if p.state == Delete {
			return nil
		}
		return slices.Clone(p.values)
	}
	if v, ok := cs.baseline[attr]; ok {
		return slices.Clone(v)
	}
	return nil
}

// State returns the pending state of attr.
func (cs *ChangeSet) State(attr string) State {
	if p, ok := cs.pending[attr]; ok {
		return p.state
	}
	return Unchanged
}

// Set records a full replacement of attr's values.
func (cs *ChangeSet) Set(attr string, values ...string) {
	cs.record(attr, pendingChange{state: Replace, values: slices.Clone(values)})
}

// AddValues records values to be added to attr.
func (cs *ChangeSet) AddValues(attr string, values ...string) {
	cs.record(attr, pendingChange{state: Add, values: slices.Clone(values)})
}

// Unset records the removal of attr.
func (cs *ChangeSet) Unset(attr string) {
	cs.record(attr, pendingChange{state: Delete})
}

// Revert drops any pending state for attr.
func (cs *ChangeSet) Revert(attr string) {
	if _, ok := cs.pending[attr]; !ok {
		return
	}
	delete(cs.pending, attr)
	cs.order = slices.DeleteFunc(cs.order, func(n string) bool { return n == attr })
}

func (cs *ChangeSet) record(attr string, p pendingChange) {
	if _, ok := cs.pending[attr]; !ok {
		cs.order = append(cs.order, attr)
	}
	cs.pending[attr] = p
}

// Dirty reports whether any pending change would reach the directory.
func (cs *ChangeSet) Dirty() bool {
	return !cs.Diff().Empty()
}

// Names returns the visible attribute names, sorted.
func (cs *ChangeSet) Names() []string {
	var names []string
	for n := range cs.baseline {
		if cs.Exists(n) {
			names = append(names, n)
		}
	}
	for _, n := range cs.order {
		if _, inBaseline := cs.baseline[n]; !inBaseline && cs.Exists(n) {
			names = append(names, n)
		}
	}
	slices.Sort(names)
	return names
}

// Baseline returns a copy of the last known remote snapshot.
func (cs *ChangeSet) Baseline() map[string][]string {
	return cloneAttributes(cs.baseline)
}

// Diff reduces pending state to a batch: add (Add, or Replace of a name absent
// from the baseline), delete, then replace (Replace of a baseline name).
// A Replace with no values deletes a baseline name and is dropped otherwise.
// Within a bucket, changes keep the order their names first became pending.
func (cs *ChangeSet) Diff() Batch {
	if len(cs.pending) == 0 {
		return nil
	}

	var adds, deletes, replaces Batch
	for _, attr := range cs.order {
		p := cs.pending[attr]
		switch p.state {
		case Add:
			if len(p.values) > 0 {
				adds = append(adds, Change{Kind: ChangeAdd, Attribute: attr, Values: slices.Clone(p.values)})
			}
		case Replace:
			_, inBaseline := cs.baseline[attr]
			switch {
			case len(p.values) == 0 && inBaseline:
				deletes = append(deletes, Change{Kind: ChangeDelete, Attribute: attr})
			case len(p.values) == 0:
				// Emptied before it was ever written: nothing to send.
			case inBaseline:
				replaces = append(replaces, Change{Kind: ChangeReplace, Attribute: attr, Values: slices.Clone(p.values)})
			default:
				adds = append(adds, Change{Kind: ChangeAdd, Attribute: attr, Values: slices.Clone(p.values)})
			}
		case Delete:
			deletes = append(deletes, Change{Kind: ChangeDelete, Attribute: attr})
		}
	}

	batch := make(Batch, 0, len(adds)+len(deletes)+len(replaces))
	batch = append(batch, adds...)
	batch = append(batch, deletes...)
	return append(batch, replaces...)
}

// Commit folds applied changes into the baseline and clears their pending state.
func (cs *ChangeSet) Commit(changes ...Change) {
	for _, c := range changes {
		switch c.Kind {
		case ChangeAdd:
			cs.baseline[c.Attribute] = append(cs.baseline[c.Attribute], c.Values...)
		case ChangeReplace:
			if len(c.Values) == 0 {
				delete(cs.baseline, c.Attribute)
			} else {
				cs.baseline[c.Attribute] = slices.Clone(c.Values)
			}
		case ChangeDelete:
			delete(cs.baseline, c.Attribute)
		}
		cs.Revert(c.Attribute)
	}
}

// Rebase swaps in a freshly read baseline, keeping pending state.
func (cs *ChangeSet) Rebase(baseline map[string][]string) {
	cs.baseline = cloneAttributes(baseline)
}

// Reset drops every pending change.
func (cs *ChangeSet) Reset() {
	clear(cs.pending)
	cs.order = nil
}

// Discard releases the change set. Proxies bound to it become dangling.
func (cs *ChangeSet) Discard() {
	cs.discarded = true
	cs.Reset()
	cs.baseline = nil
}

// Discarded reports whether Discard has been called.
func (cs *ChangeSet) Discarded() bool {
	return cs.discarded
}

// Attribute returns a proxy over the values of attr.
func (cs *ChangeSet) Attribute(attr string) *nested.Proxy {
	return nested.New(cs, attr)
}

// Lookup implements nested.Owner.
func (cs *ChangeSet) Lookup(key any) (any, error) {
	if cs.discarded {
		return nil, fmt.Errorf("%w: change set for %q was discarded", nested.ErrDanglingProxy, cs.name)
	}
	attr, ok := key.(string)
	if !ok {
		return nil, fmt.Errorf("%w: attribute names are strings, got %T", nested.ErrInvalidKey, key)
	}
	if !cs.Exists(attr) {
		return nil, fmt.Errorf("%w: attribute %q", nested.ErrNoSuchKey, attr)
	}
	return cs.Get(attr), nil
}

// Store implements nested.Owner. Stores record a Replace.
func (cs *ChangeSet) Store(key, value any) error {
	if cs.discarded {
		return fmt.Errorf("%w: change set for %q was discarded", nested.ErrDanglingProxy, cs.name)
	}
	attr, ok := key.(string)
	if !ok {
		return fmt.Errorf("%w: attribute names are strings, got %T", nested.ErrInvalidKey, key)
	}
	values, err := toStrings(value)
	if err != nil {
		return err
	}
	cs.Set(attr, values...)
	return nil
}

func toStrings(value any) ([]string, error) {
	switch v := value.(type) {
	case []string:
		return v, nil
	case string:
		return []string{v}, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("%w: attribute values are strings, got %T", nested.ErrInvalidValue, e)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: attribute values are strings, got %T", nested.ErrInvalidValue, value)
	}
}

func cloneAttributes(attrs map[string][]string) map[string][]string {
	out := make(map[string][]string, len(attrs))
	for k, v := range attrs {
		out[k] = slices.Clone(v)
	}
	return out
}
