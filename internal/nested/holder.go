package nested

import (
	"fmt"
	"slices"
)

// Holder is a root Owner over a map of arbitrary values. Reads return copies.
type Holder struct {
	content map[string]any
}

// NewHolder returns a holder over a copy of content.
func NewHolder(content map[string]any) *Holder {
	h := &Holder{content: make(map[string]any, len(content))}
	for k, v := range content {
		h.content[k] = Clone(v)
	}
	return h
}

// Lookup implements Owner.
func (h *Holder) Lookup(key any) (any, error) {
	k, err := mapKey(key)
	if err != nil {
		return nil, err
	}
	v, ok := h.content[k]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoSuchKey, k)
	}
	return Clone(v), nil
}

// Store implements Owner.
func (h *Holder) Store(key, value any) error {
	k, err := mapKey(key)
	if err != nil {
		return err
	}
	h.content[k] = Clone(value)
	return nil
}

// Get returns the value at key, wrapping composites in a Proxy.
func (h *Holder) Get(key string) (any, error) {
	v, err := h.Lookup(key)
	if err != nil {
		return nil, err
	}
	if IsComposite(v) {
		return New(h, key), nil
	}
	return v, nil
}

// Set stores value at key.
func (h *Holder) Set(key string, value any) {
	h.content[key] = Clone(value)
}

// Has reports whether key is present.
func (h *Holder) Has(key string) bool {
	_, ok := h.content[key]
	return ok
}

// Delete removes key.
func (h *Holder) Delete(key string) {
	delete(h.content, key)
}

// Keys returns the held keys in sorted order.
func (h *Holder) Keys() []string {
	keys := make([]string, 0, len(h.content))
	for k := range h.content {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
