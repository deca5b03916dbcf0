package nested

import "errors"

var (
	// ErrNotComposite is returned when a slot is absent or holds a scalar value.
	ErrNotComposite = errors.New("value is not composite")

	// ErrDanglingProxy is returned when an owner somewhere up the chain no longer exists.
	ErrDanglingProxy = errors.New("dangling proxy")

	// ErrNoSuchKey is returned by Owner.Lookup and Get for an absent key.
	ErrNoSuchKey = errors.New("no such key")

	// ErrInvalidKey is returned when a key has the wrong type for the composite it indexes.
	ErrInvalidKey = errors.New("invalid key")

	// ErrInvalidValue is returned when a value cannot be stored in the target composite.
	ErrInvalidValue = errors.New("invalid value")
)
