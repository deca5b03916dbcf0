/*
Package nested provides write-through access to values nested inside
composites owned by someone else.

Owners hand out copies on every read, so an element two levels down cannot be
edited through a reference. A Proxy instead remembers the slot it came from
(owner + key) and turns every mutation into a read-modify-write of the whole
composite held in that slot. Indexed reads of composite elements return a new
Proxy chained through the current one, so arbitrarily deep edits reach the
root owner exactly once per mutation.

	holder := nested.NewHolder(map[string]any{
		"posix": map[string]any{"groups": []any{"wheel", "staff"}},
	})
	posix, _ := holder.Get("posix")
	groups, _ := posix.(*nested.Proxy).Get("groups")
	_ = groups.(*nested.Proxy).Set(1, "admin")

Proxies carry no locks; callers serialise concurrent writers themselves.
*/
package nested

import (
	"errors"
	"fmt"
)

// Owner is a keyed container that a Proxy can read from and write back to.
//
// Lookup returns ErrNoSuchKey for an absent key and ErrDanglingProxy once the
// owner itself has been discarded. Values returned by Lookup must not alias the
// owner's internal state.
type Owner interface {
	Lookup(key any) (any, error)
	Store(key, value any) error
}

// Proxy is a writable capability over the composite held at (owner, key).
// It holds no data of its own.
type Proxy struct {
	owner Owner
	key   any
}

// New returns a proxy for the composite held by owner at key.
func New(owner Owner, key any) *Proxy {
	return &Proxy{owner: owner, key: key}
}

// Key returns the slot key this proxy is bound to.
func (p *Proxy) Key() any {
	return p.key
}

// composite fetches a fresh copy of the value this proxy stands for.
func (p *Proxy) composite() (any, error) {
	v, err := p.owner.Lookup(p.key)
	if err != nil {
		if errors.Is(err, ErrNoSuchKey) {
			return nil, fmt.Errorf("%w: slot %v is absent", ErrNotComposite, p.key)
		}
		return nil, err
	}
	if !IsComposite(v) {
		return nil, fmt.Errorf("%w: slot %v holds %T", ErrNotComposite, p.key, v)
	}
	return Clone(v), nil
}

// Value returns a copy of the whole composite.
func (p *Proxy) Value() (any, error) {
	return p.composite()
}

// Len returns the number of elements in the composite.
func (p *Proxy) Len() (int, error) {
	c, err := p.composite()
	if err != nil {
		return 0, err
	}
	switch v := c.(type) {
	case []string:
		return len(v), nil
	case []any:
		return len(v), nil
	case map[string]any:
		return len(v), nil
	}
	return 0, nil
}

// Get returns the element at subkey. Composite elements come back as a
// *Proxy chained through p rather than as a raw value.
func (p *Proxy) Get(subkey any) (any, error) {
	c, err := p.composite()
	if err != nil {
		return nil, err
	}
	v, err := index(c, subkey)
	if err != nil {
		return nil, err
	}
	if IsComposite(v) {
		return New(p, subkey), nil
	}
	return v, nil
}

// Has reports whether subkey is present in the composite.
func (p *Proxy) Has(subkey any) (bool, error) {
	c, err := p.composite()
	if err != nil {
		return false, err
	}
	return contains(c, subkey), nil
}

// Set stores value at subkey and writes the composite back to the owner.
func (p *Proxy) Set(subkey, value any) error {
	c, err := p.composite()
	if err != nil {
		return err
	}
	updated, err := assign(c, subkey, Clone(value))
	if err != nil {
		return err
	}
	return p.owner.Store(p.key, updated)
}

// Delete removes subkey and writes the composite back to the owner.
// Deleting an absent subkey is a no-op.
func (p *Proxy) Delete(subkey any) error {
	c, err := p.composite()
	if err != nil {
		return err
	}
	if !contains(c, subkey) {
		return nil
	}
	updated, err := remove(c, subkey)
	if err != nil {
		return err
	}
	return p.owner.Store(p.key, updated)
}

// Lookup implements Owner for proxies chained below p. A slot that has
// disappeared from p's owner makes every descendant dangling.
func (p *Proxy) Lookup(subkey any) (any, error) {
	c, err := p.composite()
	if err != nil {
		if errors.Is(err, ErrNotComposite) {
			return nil, fmt.Errorf("%w: %w", ErrDanglingProxy, err)
		}
		return nil, err
	}
	return index(c, subkey)
}

// Store implements Owner for proxies chained below p.
func (p *Proxy) Store(subkey, value any) error {
	return p.Set(subkey, value)
}
