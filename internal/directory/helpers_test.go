package directory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	goldap "github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/mock"

	"github.com/isometry/ldaptree/internal/ldap"
)

const testBase = "dc=example,dc=com"

// MockDirectory implements Directory with testify expectations.
type MockDirectory struct {
	mock.Mock
}

func (m *MockDirectory) Search(ctx context.Context, req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	args := m.Called(ctx, req)
	if result, ok := args.Get(0).(*ldap.SearchResult); ok {
		return result, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDirectory) SearchWithPaging(ctx context.Context, req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	args := m.Called(ctx, req)
	if result, ok := args.Get(0).(*ldap.SearchResult); ok {
		return result, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDirectory) Add(ctx context.Context, req *ldap.AddRequest) error {
	return m.Called(ctx, req).Error(0)
}

func (m *MockDirectory) Modify(ctx context.Context, req *ldap.ModifyRequest) error {
	return m.Called(ctx, req).Error(0)
}

func resultError(code uint16) error {
	return goldap.NewError(code, errors.New(goldap.LDAPResultCodeMap[code]))
}

type memEntry struct {
	dn    string
	attrs map[string][]string
}

// memDirectory is a small in-memory directory. Names are matched
// case-insensitively; children are listed in creation order.
type memDirectory struct {
	entries []*memEntry
	calls   []string
	fail    map[string]error // "add"/"modify:<op>" -> error for the next such call
}

func newMemDirectory(dns ...string) *memDirectory {
	d := &memDirectory{fail: map[string]error{}}
	for _, dn := range dns {
		d.put(dn, nil)
	}
	return d
}

// put stores an entry, adding its naming attribute when absent.
func (d *memDirectory) put(dn string, attrs map[string][]string) {
	if attrs == nil {
		attrs = map[string][]string{}
	}
	typ, value, _ := strings.Cut(strings.SplitN(dn, ",", 2)[0], "=")
	if _, ok := attrs[typ]; !ok {
		attrs[typ] = []string{value}
	}
	d.entries = append(d.entries, &memEntry{dn: dn, attrs: attrs})
}

func (d *memDirectory) find(dn string) *memEntry {
	for _, e := range d.entries {
		if strings.EqualFold(e.dn, dn) {
			return e
		}
	}
	return nil
}

func (d *memDirectory) takeFailure(key string) error {
	err := d.fail[key]
	delete(d.fail, key)
	return err
}

func (d *memDirectory) project(e *memEntry, attrs []string) *goldap.Entry {
	out := map[string][]string{}
	switch {
	case slices.Contains(attrs, "1.1"):
	case len(attrs) == 0 || slices.Contains(attrs, "*"):
		for k, v := range e.attrs {
			out[k] = slices.Clone(v)
		}
	default:
		for _, name := range attrs {
			for k, v := range e.attrs {
				if strings.EqualFold(k, name) {
					out[k] = slices.Clone(v)
				}
			}
		}
	}
	return goldap.NewEntry(e.dn, out)
}

func (d *memDirectory) Search(_ context.Context, req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	d.calls = append(d.calls, "search "+req.BaseDN)

	e := d.find(req.BaseDN)
	if e == nil {
		return nil, resultError(goldap.LDAPResultNoSuchObject)
	}
	return &ldap.SearchResult{Entries: []*goldap.Entry{d.project(e, req.Attributes)}, Total: 1}, nil
}

func (d *memDirectory) SearchWithPaging(_ context.Context, req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	d.calls = append(d.calls, "list "+req.BaseDN)

	if d.find(req.BaseDN) == nil {
		return nil, resultError(goldap.LDAPResultNoSuchObject)
	}

	present := strings.TrimSuffix(strings.TrimPrefix(req.Filter, "("), "=*)")

	res := &ldap.SearchResult{}
	for _, e := range d.entries {
		parent, err := ldap.ParentDN(e.dn)
		if err != nil || !strings.EqualFold(parent, req.BaseDN) {
			continue
		}
		if !strings.EqualFold(present, "objectClass") && !hasAttr(e.attrs, present) {
			continue
		}
		res.Entries = append(res.Entries, d.project(e, req.Attributes))
	}
	res.Total = len(res.Entries)
	return res, nil
}

func hasAttr(attrs map[string][]string, name string) bool {
	for k := range attrs {
		if strings.EqualFold(k, name) {
			return true
		}
	}
	return false
}

func (d *memDirectory) Add(_ context.Context, req *ldap.AddRequest) error {
	d.calls = append(d.calls, "add "+req.DN)

	if err := d.takeFailure("add"); err != nil {
		return err
	}
	if d.find(req.DN) != nil {
		return resultError(goldap.LDAPResultEntryAlreadyExists)
	}

	attrs := map[string][]string{}
	for _, a := range req.Attributes {
		attrs[a.Name] = slices.Clone(a.Values)
	}
	d.put(req.DN, attrs)
	return nil
}

func (d *memDirectory) Modify(_ context.Context, req *ldap.ModifyRequest) error {
	ops := make([]string, 0, len(req.Changes))
	for _, c := range req.Changes {
		ops = append(ops, c.Operation.String()+":"+c.Attribute)
	}
	d.calls = append(d.calls, fmt.Sprintf("modify %s %s", req.DN, strings.Join(ops, " ")))

	if len(req.Changes) > 0 {
		if err := d.takeFailure("modify:" + req.Changes[0].Operation.String()); err != nil {
			return err
		}
	}

	e := d.find(req.DN)
	if e == nil {
		return resultError(goldap.LDAPResultNoSuchObject)
	}

	for _, c := range req.Changes {
		switch c.Operation {
		case ldap.ModifyAdd:
			e.attrs[c.Attribute] = append(e.attrs[c.Attribute], c.Values...)
		case ldap.ModifyDelete:
			delete(e.attrs, c.Attribute)
		case ldap.ModifyReplace:
			if len(c.Values) == 0 {
				delete(e.attrs, c.Attribute)
			} else {
				e.attrs[c.Attribute] = slices.Clone(c.Values)
			}
		}
	}
	return nil
}

// writes returns the recorded add and modify calls.
func (d *memDirectory) writes() []string {
	var out []string
	for _, c := range d.calls {
		if strings.HasPrefix(c, "add ") || strings.HasPrefix(c, "modify ") {
			out = append(out, c)
		}
	}
	return out
}
