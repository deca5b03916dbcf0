package nested

import (
	"fmt"
	"maps"
	"slices"
)

// IsComposite reports whether v can be indexed with a subkey.
//
// Supported composites are []string (LDAP attribute values), []any and map[string]any.
func IsComposite(v any) bool {
	switch v.(type) {
	case []string, []any, map[string]any:
		return true
	default:
		return false
	}
}

// Clone returns a deep copy of v. Scalars are returned unchanged.
func Clone(v any) any {
	switch c := v.(type) {
	case []string:
		return slices.Clone(c)
	case []any:
		out := make([]any, len(c))
		for i, e := range c {
			out[i] = Clone(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(c))
		for k, e := range c {
			out[k] = Clone(e)
		}
		return out
	default:
		return v
	}
}

func sliceIndex(key any, length int, allowAppend bool) (int, error) {
	i, ok := key.(int)
	if !ok {
		return 0, fmt.Errorf("%w: %T cannot index a list", ErrInvalidKey, key)
	}
	limit := length
	if allowAppend {
		limit++
	}
	if i < 0 || i >= limit {
		return 0, fmt.Errorf("%w: index %d (length %d)", ErrNoSuchKey, i, length)
	}
	return i, nil
}

func mapKey(key any) (string, error) {
	k, ok := key.(string)
	if !ok {
		return "", fmt.Errorf("%w: %T cannot index a map", ErrInvalidKey, key)
	}
	return k, nil
}

// index returns the element of c at key.
func index(c, key any) (any, error) {
	switch v := c.(type) {
	case []string:
		i, err := sliceIndex(key, len(v), false)
		if err != nil {
			return nil, err
		}
		return v[i], nil
	case []any:
		i, err := sliceIndex(key, len(v), false)
		if err != nil {
			return nil, err
		}
		return v[i], nil
	case map[string]any:
		k, err := mapKey(key)
		if err != nil {
			return nil, err
		}
		e, ok := v[k]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrNoSuchKey, k)
		}
		return e, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrNotComposite, c)
	}
}

func contains(c, key any) bool {
	_, err := index(c, key)
	return err == nil
}

// assign stores value at key in c and returns the resulting composite.
// Assigning one past the end of a list appends. c must already be a private copy.
func assign(c, key, value any) (any, error) {
	switch v := c.(type) {
	case []string:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %T in a string list", ErrInvalidValue, value)
		}
		i, err := sliceIndex(key, len(v), true)
		if err != nil {
			return nil, err
		}
		if i == len(v) {
			return append(v, s), nil
		}
		v[i] = s
		return v, nil
	case []any:
		i, err := sliceIndex(key, len(v), true)
		if err != nil {
			return nil, err
		}
		if i == len(v) {
			return append(v, value), nil
		}
		v[i] = value
		return v, nil
	case map[string]any:
		k, err := mapKey(key)
		if err != nil {
			return nil, err
		}
		if v == nil {
			v = make(map[string]any)
		}
		v[k] = value
		return v, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrNotComposite, c)
	}
}

// remove deletes key from c, preserving the order of remaining list elements.
func remove(c, key any) (any, error) {
	switch v := c.(type) {
	case []string:
		i, err := sliceIndex(key, len(v), false)
		if err != nil {
			return nil, err
		}
		return slices.Delete(v, i, i+1), nil
	case []any:
		i, err := sliceIndex(key, len(v), false)
		if err != nil {
			return nil, err
		}
		return slices.Delete(v, i, i+1), nil
	case map[string]any:
		k, err := mapKey(key)
		if err != nil {
			return nil, err
		}
		if _, ok := v[k]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrNoSuchKey, k)
		}
		out := maps.Clone(v)
		delete(out, k)
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrNotComposite, c)
	}
}
