package directory

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/isometry/ldaptree/internal/changeset"
	"github.com/isometry/ldaptree/internal/ldap"
	"github.com/isometry/ldaptree/internal/nested"
)

// Entry is one node of the tree with deferred attribute writes.
type Entry struct {
	dir  Directory
	base string
	rdn  string
	dn   string
	opts options

	exists  bool
	closed  bool
	changes *changeset.ChangeSet // nil until first attribute access

	childTypes  []string
	childrenSet bool
}

// Open returns the entry rdn below base. It fails with ErrNotFound if the
// entry does not exist, unless WithCreate is given.
func Open(ctx context.Context, dir Directory, base, rdn string, opts ...Option) (*Entry, error) {
	e := newEntry(dir, base, rdn, buildOptions(opts))

	exists, err := probe(ctx, dir, e.dn)
	if err != nil {
		return nil, err
	}

	if !exists {
		if !e.opts.create {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, e.dn)
		}
		e.changes = changeset.New(e.dn, nil)
	}
	e.exists = exists

	tflog.SubsystemDebug(ctx, ldap.SubsystemDirectory, "Opened entry", map[string]any{
		"dn":     e.dn,
		"exists": exists,
	})
	return e, nil
}

func newEntry(dir Directory, base, rdn string, opts options) *Entry {
	return &Entry{
		dir:  dir,
		base: base,
		rdn:  rdn,
		dn:   ldap.JoinDN(base, rdn),
		opts: opts,
	}
}

// DN returns the absolute name of the entry.
func (e *Entry) DN() string { return e.dn }

// Base returns the base DN the entry was addressed from.
func (e *Entry) Base() string { return e.base }

// RDN returns the name of the entry relative to Base.
func (e *Entry) RDN() string { return e.rdn }

// Exists reports whether the entry is known to exist in the directory.
func (e *Entry) Exists() bool { return e.exists }

// Dirty reports whether unsaved changes are pending.
func (e *Entry) Dirty() bool {
	return e.changes != nil && e.changes.Dirty()
}

func (e *Entry) load(ctx context.Context) error {
	if e.changes != nil {
		return nil
	}

	baseline, err := e.fetch(ctx)
	if err != nil {
		return err
	}
	e.changes = changeset.New(e.dn, baseline)
	return nil
}

func (e *Entry) fetch(ctx context.Context) (map[string][]string, error) {
	attrs := e.opts.attributes
	if len(attrs) == 0 {
		attrs = []string{"*"}
	}

	res, err := e.dir.Search(ctx, &ldap.SearchRequest{
		BaseDN:     e.dn,
		Scope:      ldap.ScopeBaseObject,
		Filter:     "(objectClass=*)",
		Attributes: attrs,
	})
	if ldap.IsNoSuchObject(err) || (err == nil && len(res.Entries) == 0) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, e.dn)
	}
	if err != nil {
		return nil, err
	}

	return ldap.EntryAttributes(res.Entries[0]), nil
}

// Reload refreshes the baseline from the directory. Pending changes are kept.
func (e *Entry) Reload(ctx context.Context) error {
	if e.changes == nil {
		return e.load(ctx)
	}
	if !e.exists {
		return nil
	}

	baseline, err := e.fetch(ctx)
	if err != nil {
		return err
	}
	e.changes.Rebase(baseline)
	return nil
}

// Get returns the values of name, or nil if it is not set.
func (e *Entry) Get(ctx context.Context, name string) ([]string, error) {
	if err := e.load(ctx); err != nil {
		return nil, err
	}
	return e.changes.Get(name), nil
}

// Has reports whether name is set.
func (e *Entry) Has(ctx context.Context, name string) (bool, error) {
	if err := e.load(ctx); err != nil {
		return false, err
	}
	return e.changes.Exists(name), nil
}

// Attributes returns the names of all set attributes, sorted.
func (e *Entry) Attributes(ctx context.Context) ([]string, error) {
	if err := e.load(ctx); err != nil {
		return nil, err
	}
	return e.changes.Names(), nil
}

// Set replaces the values of name.
func (e *Entry) Set(ctx context.Context, name string, values ...string) error {
	if err := e.load(ctx); err != nil {
		return err
	}
	e.changes.Set(name, values...)
	return nil
}

// Add records values to be added to name.
func (e *Entry) Add(ctx context.Context, name string, values ...string) error {
	if err := e.load(ctx); err != nil {
		return err
	}
	e.changes.AddValues(name, values...)
	return nil
}

// Unset removes name.
func (e *Entry) Unset(ctx context.Context, name string) error {
	if err := e.load(ctx); err != nil {
		return err
	}
	e.changes.Unset(name)
	return nil
}

// Attribute returns a write-through proxy over the values of name. Writes
// through the proxy are recorded as a replacement of the whole attribute.
func (e *Entry) Attribute(ctx context.Context, name string) (*nested.Proxy, error) {
	if err := e.load(ctx); err != nil {
		return nil, err
	}
	return e.changes.Attribute(name), nil
}

// Diff returns the pending change batch.
func (e *Entry) Diff(ctx context.Context) (changeset.Batch, error) {
	if err := e.load(ctx); err != nil {
		return nil, err
	}
	return e.changes.Diff(), nil
}

// Save applies pending changes. A new entry is created with one request; an
// existing one is modified with one request per non-empty bucket, in the
// order add, delete, replace. Each bucket is committed locally as soon as its
// request succeeds, so after a failure only the remaining buckets are sent
// again by the next Save.
func (e *Entry) Save(ctx context.Context) error {
	if e.closed {
		return fmt.Errorf("%w: %s", ErrEntryClosed, e.dn)
	}
	if !e.Dirty() {
		return nil
	}

	diff := e.changes.Diff()
	return ldap.LogOperation(ctx, ldap.SubsystemDirectory, "save", map[string]any{
		"dn":      e.dn,
		"create":  !e.exists,
		"changes": len(diff),
	}, func() error {
		if !e.exists {
			return e.create(ctx, diff)
		}
		return e.modify(ctx, diff)
	})
}

func (e *Entry) create(ctx context.Context, diff changeset.Batch) error {
	adds := diff.Bucket(changeset.ChangeAdd)
	if adds.Empty() {
		// Only deletions of attributes that were never written.
		e.changes.Reset()
		return nil
	}

	req := &ldap.AddRequest{DN: e.dn}
	for _, c := range adds {
		req.Attributes = append(req.Attributes, ldap.Attribute{Name: c.Attribute, Values: c.Values})
	}

	if err := e.dir.Add(ctx, req); err != nil {
		return &OperationError{Bucket: "create", Code: ldap.ResultCode(err), DN: e.dn, Err: err}
	}

	e.changes.Commit(diff...)
	e.exists = true
	e.opts.metrics.RecordChanges("create", len(adds))
	return nil
}

func (e *Entry) modify(ctx context.Context, diff changeset.Batch) error {
	for _, kind := range changeset.Kinds {
		bucket := diff.Bucket(kind)
		if bucket.Empty() {
			continue
		}

		req := &ldap.ModifyRequest{DN: e.dn, Changes: toModifications(bucket)}
		if err := e.dir.Modify(ctx, req); err != nil {
			return &OperationError{Bucket: kind.String(), Code: ldap.ResultCode(err), DN: e.dn, Err: err}
		}

		e.changes.Commit(bucket...)
		e.opts.metrics.RecordChanges(kind.String(), len(bucket))
	}
	return nil
}

func toModifications(batch changeset.Batch) []ldap.Modification {
	mods := make([]ldap.Modification, 0, len(batch))
	for _, c := range batch {
		mod := ldap.Modification{Attribute: c.Attribute, Values: c.Values}
		switch c.Kind {
		case changeset.ChangeAdd:
			mod.Operation = ldap.ModifyAdd
		case changeset.ChangeDelete:
			mod.Operation = ldap.ModifyDelete
		case changeset.ChangeReplace:
			mod.Operation = ldap.ModifyReplace
		}
		mods = append(mods, mod)
	}
	return mods
}

// Close saves pending changes once and releases the entry. A failed save is
// logged and passed to the ErrorHandler, never returned; call Save first when
// the outcome matters. Close is idempotent.
func (e *Entry) Close(ctx context.Context) {
	if e.closed {
		return
	}

	if err := e.Save(ctx); err != nil {
		tflog.SubsystemError(ctx, ldap.SubsystemDirectory, "Implicit save on close failed", map[string]any{
			"dn":    e.dn,
			"error": err.Error(),
		})
		if e.opts.onError != nil {
			e.opts.onError(ctx, e.dn, err)
		}
	}

	e.Discard()
}

// Discard drops pending changes and closes the entry without saving.
func (e *Entry) Discard() {
	e.closed = true
	if e.changes != nil {
		e.changes.Discard()
	}
}

// ChildTypes returns the distinct naming attributes of the entry's immediate
// children, in first-seen order. The listing is cached until
// InvalidateChildren.
func (e *Entry) ChildTypes(ctx context.Context) ([]string, error) {
	if e.childrenSet {
		return e.childTypes, nil
	}
	if !e.exists {
		return nil, nil
	}

	res, err := e.dir.SearchWithPaging(ctx, &ldap.SearchRequest{
		BaseDN:     e.dn,
		Scope:      ldap.ScopeSingleLevel,
		Filter:     "(objectClass=*)",
		Attributes: []string{"1.1"},
	})
	if err != nil {
		return nil, err
	}

	var types []string
	for _, child := range res.Entries {
		rel, err := ldap.SplitDN(child.DN, e.dn)
		if err != nil {
			return nil, err
		}
		typ := ldap.RDNType(rel)
		if typ == "" || containsFold(types, typ) {
			continue
		}
		types = append(types, typ)
	}

	tflog.SubsystemTrace(ctx, ldap.SubsystemDirectory, "Listed child types", map[string]any{
		"dn":    e.dn,
		"types": types,
	})

	e.childTypes, e.childrenSet = types, true
	return types, nil
}

// InvalidateChildren drops the cached child listing.
func (e *Entry) InvalidateChildren() {
	e.childTypes, e.childrenSet = nil, false
}

// HasChildren reports whether the entry has any immediate children.
func (e *Entry) HasChildren(ctx context.Context) (bool, error) {
	types, err := e.ChildTypes(ctx)
	return len(types) > 0, err
}

// Children returns one collection per child naming attribute.
func (e *Entry) Children(ctx context.Context) ([]*Collection, error) {
	types, err := e.ChildTypes(ctx)
	if err != nil {
		return nil, err
	}

	collections := make([]*Collection, 0, len(types))
	for _, typ := range types {
		collections = append(collections, e.Collection(typ))
	}
	return collections, nil
}

// Collection returns the children of the entry named by selector, such as
// "uid" or "ou". No request is made until the collection is iterated.
func (e *Entry) Collection(selector string, opts ...Option) *Collection {
	return NewCollection(e.dir, e.base, e.rdn, selector, append(e.opts.childOptions(), opts...)...)
}

// Move is not supported.
func (e *Entry) Move(context.Context, string) error {
	return fmt.Errorf("%w: moving %s", ErrNotImplemented, e.dn)
}

// RemoveChildren is not supported.
func (e *Entry) RemoveChildren(context.Context) error {
	return fmt.Errorf("%w: removing the subtree of %s", ErrNotImplemented, e.dn)
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
