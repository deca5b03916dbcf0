package directory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/isometry/ldaptree/internal/ldap"
)

// CursorState is the position of a Collection cursor.
type CursorState int

const (
	NotStarted CursorState = iota
	Positioned
	Exhausted
)

func (s CursorState) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Positioned:
		return "positioned"
	case Exhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Collection is a forward-only cursor over the children of one entry whose
// RDN type matches a selector.
type Collection struct {
	dir      Directory
	base     string
	rdn      string
	dn       string
	selector string
	opts     options
	err      error

	state    CursorState
	keys     []string
	pos      int
	current  *Entry
	deferred []*Entry
}

// NewCollection returns a collection over the children of rdn below base
// named by selector ("uid" and "uid=" are equivalent). It makes no request.
// A selector that is not an attribute type makes every listing and lookup
// fail with ErrInvalidSelector.
func NewCollection(dir Directory, base, rdn, selector string, opts ...Option) *Collection {
	typ := ldap.RDNType(selector)
	if typ == "" {
		typ = strings.TrimSpace(selector)
	}

	c := &Collection{
		dir:      dir,
		base:     base,
		rdn:      rdn,
		dn:       ldap.JoinDN(base, rdn),
		selector: typ,
		opts:     buildOptions(opts),
	}
	if !ldap.IsAttributeType(typ) {
		c.err = fmt.Errorf("%w: %q", ErrInvalidSelector, selector)
	}
	return c
}

// DN returns the DN whose children the collection iterates.
func (c *Collection) DN() string { return c.dn }

// Selector returns the naming attribute the collection is filtered on.
func (c *Collection) Selector() string { return c.selector }

// State returns the cursor state.
func (c *Collection) State() CursorState { return c.state }

// Valid reports whether the cursor is on an element.
func (c *Collection) Valid() bool { return c.state == Positioned }

// Key returns the relative name of the current element, or "".
func (c *Collection) Key() string {
	if c.state != Positioned {
		return ""
	}
	return c.keys[c.pos]
}

// Rewind lists the matching children and positions on the first one. An
// empty listing leaves the cursor Exhausted. The current element is settled
// as by Next first.
func (c *Collection) Rewind(ctx context.Context) error {
	if c.err != nil {
		return c.err
	}
	if err := c.settle(ctx); err != nil {
		return err
	}

	res, err := c.dir.SearchWithPaging(ctx, &ldap.SearchRequest{
		BaseDN:     c.dn,
		Scope:      ldap.ScopeSingleLevel,
		Filter:     fmt.Sprintf("(%s=*)", c.selector),
		Attributes: []string{"1.1"},
	})
	if ldap.IsNoSuchObject(err) {
		return fmt.Errorf("%w: %s", ErrNotFound, c.dn)
	}
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(res.Entries))
	for _, child := range res.Entries {
		rel, err := ldap.SplitDN(child.DN, c.dn)
		if err != nil {
			return err
		}
		// The filter matches any child carrying the attribute; only the
		// naming attribute counts.
		if !strings.EqualFold(ldap.RDNType(rel), c.selector) {
			continue
		}
		keys = append(keys, rel)
	}

	c.keys, c.pos, c.current = keys, 0, nil
	if len(keys) == 0 {
		c.state = Exhausted
	} else {
		c.state = Positioned
	}

	tflog.SubsystemDebug(ctx, ldap.SubsystemDirectory, "Rewound collection", map[string]any{
		"dn":       c.dn,
		"selector": c.selector,
		"count":    len(keys),
	})
	return nil
}

// Next advances the cursor. From NotStarted it rewinds. In live mode a
// current element with pending changes is saved first; if that fails the
// error is returned and the cursor does not move.
func (c *Collection) Next(ctx context.Context) error {
	switch c.state {
	case NotStarted:
		return c.Rewind(ctx)
	case Exhausted:
		return nil
	}

	if err := c.settle(ctx); err != nil {
		return err
	}

	c.current = nil
	c.pos++
	if c.pos >= len(c.keys) {
		c.state = Exhausted
	}
	return nil
}

// settle saves (live) or parks (deferred) the current element if it has
// pending changes.
func (c *Collection) settle(ctx context.Context) error {
	if c.current == nil || !c.current.Dirty() {
		return nil
	}

	if c.opts.deferred {
		c.queueCurrent()
		return nil
	}

	return c.current.Save(ctx)
}

// Current returns the entry at the cursor, or nil when the cursor is not on
// an element. The entry is cached until the cursor moves.
func (c *Collection) Current(ctx context.Context) (*Entry, error) {
	if c.state != Positioned {
		return nil, nil
	}
	if c.current != nil {
		return c.current, nil
	}

	key := c.keys[c.pos]
	dn := ldap.JoinDN(c.dn, key)
	for _, e := range c.deferred {
		if strings.EqualFold(e.dn, dn) {
			c.current = e
			return e, nil
		}
	}

	e := newEntry(c.dir, c.dn, key, c.opts)
	e.exists = true
	c.current = e
	return e, nil
}

// Count returns the number of elements, listing them first if needed.
func (c *Collection) Count(ctx context.Context) (int, error) {
	if c.state == NotStarted {
		if err := c.Rewind(ctx); err != nil {
			return 0, err
		}
	}
	return len(c.keys), nil
}

// Pending returns the number of entries waiting for Flush.
func (c *Collection) Pending() int {
	c.queueCurrent()

	n := 0
	for _, e := range c.deferred {
		if e.Dirty() {
			n++
		}
	}
	return n
}

// Flush saves every entry with pending changes, in the order they were left.
// Entries that fail stay queued for the next Flush.
func (c *Collection) Flush(ctx context.Context) error {
	c.queueCurrent()

	var errs []error
	remaining := c.deferred[:0]
	for _, e := range c.deferred {
		if err := e.Save(ctx); err != nil {
			errs = append(errs, err)
			remaining = append(remaining, e)
		}
	}
	c.deferred = slices.Clip(remaining)

	return errors.Join(errs...)
}

func (c *Collection) queueCurrent() {
	if c.current != nil && c.current.Dirty() && !slices.Contains(c.deferred, c.current) {
		c.deferred = append(c.deferred, c.current)
	}
}

// Close flushes pending changes and releases every entry handed out, leaving
// the cursor Exhausted. Entries whose save failed are discarded.
func (c *Collection) Close(ctx context.Context) error {
	err := c.Flush(ctx)

	for _, e := range c.deferred {
		e.Discard()
	}
	if c.current != nil {
		c.current.Discard()
	}

	c.deferred, c.current, c.keys = nil, nil, nil
	c.state = Exhausted
	return err
}

func (c *Collection) childRDN(id string) string {
	return c.selector + "=" + ldap.EscapeDNValue(id)
}

// Exists reports whether the child named selector=id exists.
func (c *Collection) Exists(ctx context.Context, id string) (bool, error) {
	if c.err != nil {
		return false, c.err
	}
	return probe(ctx, c.dir, ldap.JoinDN(c.dn, c.childRDN(id)))
}

// Get returns a fresh entry for selector=id, or nil if it does not exist.
func (c *Collection) Get(ctx context.Context, id string) (*Entry, error) {
	ok, err := c.Exists(ctx, id)
	if err != nil || !ok {
		return nil, err
	}

	e := newEntry(c.dir, c.dn, c.childRDN(id), c.opts)
	e.exists = true
	return e, nil
}

// Set is not supported; renaming needs a dedicated operation.
func (c *Collection) Set(_ context.Context, id string, _ *Entry) error {
	return fmt.Errorf("%w: replacing %s in %s", ErrNotImplemented, c.childRDN(id), c.dn)
}

// Remove is not supported.
func (c *Collection) Remove(_ context.Context, id string) error {
	return fmt.Errorf("%w: removing %s from %s", ErrNotImplemented, c.childRDN(id), c.dn)
}

// HasChildren reports whether the current element has children.
func (c *Collection) HasChildren(ctx context.Context) (bool, error) {
	e, err := c.Current(ctx)
	if err != nil || e == nil {
		return false, err
	}
	return e.HasChildren(ctx)
}

// Children returns the child collections of the current element.
func (c *Collection) Children(ctx context.Context) ([]*Collection, error) {
	e, err := c.Current(ctx)
	if err != nil || e == nil {
		return nil, err
	}
	return e.Children(ctx)
}
