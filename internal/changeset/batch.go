package changeset

import (
	"github.com/go-ldap/ldap/v3"
	"github.com/go-ldap/ldif"
)

// ChangeKind is the bucket a pending change is applied in. The numeric order
// is the order buckets are applied at save time.
type ChangeKind int

const (
	ChangeAdd ChangeKind = iota
	ChangeDelete
	ChangeReplace
)

// Kinds lists every bucket in application order.
var Kinds = []ChangeKind{ChangeAdd, ChangeDelete, ChangeReplace}

func (k ChangeKind) String() string {
	switch k {
	case ChangeAdd:
		return "add"
	case ChangeDelete:
		return "delete"
	case ChangeReplace:
		return "replace"
	default:
		return "unknown"
	}
}

// Change is one attribute operation. Values is nil for deletes.
type Change struct {
	Kind      ChangeKind
	Attribute string
	Values    []string
}

// Batch is an ordered list of changes: adds, then deletes, then replaces.
type Batch []Change

// Empty reports whether the batch carries no changes.
func (b Batch) Empty() bool {
	return len(b) == 0
}

// Bucket returns the changes of one kind, in batch order.
func (b Batch) Bucket(kind ChangeKind) Batch {
	var out Batch
	for _, c := range b {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

// Attributes returns the attribute names touched by the batch.
func (b Batch) Attributes() []string {
	names := make([]string, 0, len(b))
	for _, c := range b {
		names = append(names, c.Attribute)
	}
	return names
}

// LDIF renders the batch as an LDIF change record modifying dn. Values that
// are not safe as plain LDIF text are base64 encoded.
func (b Batch) LDIF(dn string) (string, error) {
	if b.Empty() {
		return "", nil
	}

	req := ldap.NewModifyRequest(dn, nil)
	for _, c := range b {
		switch c.Kind {
		case ChangeAdd:
			req.Add(c.Attribute, c.Values)
		case ChangeDelete:
			req.Delete(c.Attribute, c.Values)
		case ChangeReplace:
			req.Replace(c.Attribute, c.Values)
		}
	}
	return ldif.Marshal(&ldif.LDIF{Entries: []*ldif.Entry{{Modify: req}}})
}

// AddLDIF renders the add bucket as an LDIF record creating dn. Other
// changes are ignored; a new entry has nothing to delete or replace.
func (b Batch) AddLDIF(dn string) (string, error) {
	adds := b.Bucket(ChangeAdd)
	if adds.Empty() {
		return "", nil
	}

	req := ldap.NewAddRequest(dn, nil)
	for _, c := range adds {
		req.Attribute(c.Attribute, c.Values)
	}
	return ldif.Marshal(&ldif.LDIF{Entries: []*ldif.Entry{{Add: req}}})
}
